package planner

import (
	"testing"
	"time"

	"github.com/paulschiretz/profile-backup/pkg/config"
	"github.com/paulschiretz/profile-backup/pkg/pathacl"
	"github.com/paulschiretz/profile-backup/pkg/profilearchive"
)

func baseConfig() config.Config {
	cfg := config.NewDefault()
	cfg.Source = `C:\Users`
	cfg.TargetBase = `D:\backup`
	return cfg
}

func TestGenerateBackupPlanCompress(t *testing.T) {
	cfg := baseConfig()
	cfg.UserExcludeFiles = []string{"*.tmp"}

	plan, err := GenerateBackupPlan(cfg)
	if err != nil {
		t.Fatalf("GenerateBackupPlan failed: %v", err)
	}

	if plan.Mode != Compress {
		t.Errorf("mode = %v, want Compress", plan.Mode)
	}
	if plan.SourceRoot != cfg.Source || plan.TargetRoot != cfg.TargetBase {
		t.Errorf("plan roots = %q/%q", plan.SourceRoot, plan.TargetRoot)
	}
	if !plan.ProfilePattern.MatchString("10000") || plan.ProfilePattern.MatchString("admin") {
		t.Errorf("profile pattern %q does not select numeric names only", plan.ProfilePattern.String())
	}
	if plan.Preflight.RequireMirrorTool {
		t.Error("compress mode must not require the mirror tool")
	}
	if plan.Archive.Format != profilearchive.Zip || plan.Archive.Level != profilearchive.Optimal {
		t.Errorf("archive plan = %+v", plan.Archive)
	}

	// The built-in hive exclusions and the user's are carried into both
	// worker plans.
	for _, excludes := range [][]string{plan.Archive.ExcludeFiles, plan.Mirror.ExcludeFiles} {
		found := map[string]bool{}
		for _, e := range excludes {
			found[e] = true
		}
		if !found["ntuser*"] || !found["*.tmp"] {
			t.Errorf("exclude patterns = %v, want ntuser* and *.tmp", excludes)
		}
	}
}

func TestGenerateBackupPlanMirror(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = "mirror"
	cfg.Mirror.RetryCount = 2
	cfg.Mirror.RetryWaitSeconds = 30

	plan, err := GenerateBackupPlan(cfg)
	if err != nil {
		t.Fatalf("GenerateBackupPlan failed: %v", err)
	}

	if plan.Mode != Mirror {
		t.Errorf("mode = %v, want Mirror", plan.Mode)
	}
	if !plan.Preflight.RequireMirrorTool {
		t.Error("mirror mode must require the mirror tool")
	}
	if plan.Mirror.RetryCount != 2 {
		t.Errorf("retry count = %d, want 2", plan.Mirror.RetryCount)
	}
	if plan.Mirror.RetryWait != 30*time.Second {
		t.Errorf("retry wait = %v, want 30s", plan.Mirror.RetryWait)
	}
}

func TestGenerateBackupPlanAccessPolicy(t *testing.T) {
	cfg := baseConfig()
	cfg.AccessControl.GrantIdentities = []string{"S-1-5-21-1-2-3-500"}

	plan, err := GenerateBackupPlan(cfg)
	if err != nil {
		t.Fatalf("GenerateBackupPlan failed: %v", err)
	}

	if plan.AccessPolicy.ReplicateFilter != pathacl.DefaultReplicateFilter {
		t.Errorf("replicate filter = %q, want default", plan.AccessPolicy.ReplicateFilter)
	}
	if len(plan.AccessPolicy.Grants) != 3 {
		t.Fatalf("grants = %d, want administrators, system, and one extra", len(plan.AccessPolicy.Grants))
	}
	if plan.AccessPolicy.Grants[2].Principal != "S-1-5-21-1-2-3-500" {
		t.Errorf("extra grant = %+v", plan.AccessPolicy.Grants[2])
	}
}

func TestGenerateBackupPlanRejectsBadStrings(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"Bad mode", func(c *config.Config) { c.Mode = "differential" }},
		{"Bad pattern", func(c *config.Config) { c.ProfilePattern = "[" }},
		{"Bad format", func(c *config.Config) { c.Compression.Format = "rar" }},
		{"Bad level", func(c *config.Config) { c.Compression.Level = "turbo" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig()
			tc.mutate(&cfg)
			if _, err := GenerateBackupPlan(cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestModeRoundTrip(t *testing.T) {
	for _, s := range []string{"mirror", "compress"} {
		m, err := ParseMode(s)
		if err != nil {
			t.Fatalf("ParseMode(%q) failed: %v", s, err)
		}
		if m.String() != s {
			t.Errorf("round trip of %q yielded %q", s, m.String())
		}
	}
	if _, err := ParseMode("differential"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
