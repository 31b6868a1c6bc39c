// Package planner translates a validated configuration into the typed plans
// the engine and its workers consume. All parsing of enum-like config
// strings happens here, so the workers downstream never see raw strings.
package planner

import (
	"regexp"
	"time"

	"github.com/paulschiretz/profile-backup/pkg/config"
	"github.com/paulschiretz/profile-backup/pkg/pathacl"
	"github.com/paulschiretz/profile-backup/pkg/preflight"
	"github.com/paulschiretz/profile-backup/pkg/profile"
	"github.com/paulschiretz/profile-backup/pkg/profilearchive"
	"github.com/paulschiretz/profile-backup/pkg/profilemirror"
)

type BackupPlan struct {
	Mode Mode

	SourceRoot string
	TargetRoot string

	// ProfilePattern selects which directories under SourceRoot are treated
	// as profiles.
	ProfilePattern *regexp.Regexp

	BufferSizeKB int

	Preflight    *preflight.Plan
	Archive      *profilearchive.Plan
	Mirror       *profilemirror.Plan
	AccessPolicy *pathacl.Policy
}

// GenerateBackupPlan builds the complete backup plan from a validated
// configuration.
func GenerateBackupPlan(cfg config.Config) (*BackupPlan, error) {
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	pattern, err := profile.CompilePattern(cfg.ProfilePattern)
	if err != nil {
		return nil, err
	}

	compressionFormat, err := profilearchive.ParseFormat(cfg.Compression.Format)
	if err != nil {
		return nil, err
	}

	compressionLevel, err := profilearchive.ParseLevel(cfg.Compression.Level)
	if err != nil {
		return nil, err
	}

	excludeFiles := cfg.ExcludeFiles()

	return &BackupPlan{
		Mode: mode,

		SourceRoot: cfg.Source,
		TargetRoot: cfg.TargetBase,

		ProfilePattern: pattern,

		BufferSizeKB: cfg.Performance.BufferSizeKB,

		Preflight: &preflight.Plan{
			SourceRoot:        cfg.Source,
			TargetRoot:        cfg.TargetBase,
			RequireMirrorTool: mode == Mirror,
		},
		Archive: &profilearchive.Plan{
			Format:       compressionFormat,
			Level:        compressionLevel,
			ExcludeFiles: excludeFiles,
		},
		Mirror: &profilemirror.Plan{
			RetryCount:   cfg.Mirror.RetryCount,
			RetryWait:    time.Duration(cfg.Mirror.RetryWaitSeconds) * time.Second,
			ExcludeFiles: excludeFiles,
		},
		AccessPolicy: pathacl.NewPolicy(cfg.AccessControl.GrantIdentities, cfg.AccessControl.ReplicateFilter),
	}, nil
}
