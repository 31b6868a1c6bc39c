package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/paulschiretz/profile-backup/pkg/backupresult"
	"github.com/paulschiretz/profile-backup/pkg/buildinfo"
	"github.com/paulschiretz/profile-backup/pkg/config"
	"github.com/paulschiretz/profile-backup/pkg/engine"
	"github.com/paulschiretz/profile-backup/pkg/pathacl"
	"github.com/paulschiretz/profile-backup/pkg/planner"
	"github.com/paulschiretz/profile-backup/pkg/plog"
	"github.com/paulschiretz/profile-backup/pkg/preflight"
	"github.com/paulschiretz/profile-backup/pkg/profilearchive"
	"github.com/paulschiretz/profile-backup/pkg/profilemirror"
	"github.com/paulschiretz/profile-backup/pkg/util"
)

// SummaryFileName is the name of the per-run result file written into the
// backup target directory.
const SummaryFileName = "profile-backup.summary.json"

// RunBackup handles the logic for the main backup execution.
func RunBackup(ctx context.Context, flagMap map[string]interface{}) error {
	// For backup, the target flag is mandatory.
	targetPath, ok := flagMap["target"].(string)
	if !ok || targetPath == "" {
		return fmt.Errorf("the -target flag is required to run a backup")
	}

	// Load config from the target directory, or use defaults if not found.
	loadedConfig, err := config.Load(targetPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration from target: %w", err)
	}

	// Merge the flag values over the loaded config to get the final run config.
	runConfig := config.MergeConfigWithFlags(loadedConfig, flagMap)

	// CRITICAL: Validate the config for the run
	if err := runConfig.Validate(true); err != nil {
		return err
	}

	// Set the global log level based on the final configuration.
	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))

	runConfig.LogSummary()

	// Create the runner and feed it with our leaf workers
	runner := engine.NewRunner(
		preflight.NewValidator(),
		profilearchive.NewArchiver(runConfig.Performance.BufferSizeKB),
		profilemirror.NewMirrorer(),
		pathacl.NewConfigurator(pathacl.NewManager()),
	)

	// Get the Plan
	backupPlan, err := planner.GenerateBackupPlan(runConfig)
	if err != nil {
		return err
	}

	// Execute the plan
	startTime := time.Now()
	results, err := runner.ExecuteBackup(ctx, backupPlan)
	duration := time.Since(startTime).Round(time.Millisecond)

	// The per-profile results are reported even when the run aborted early;
	// they tell the operator which profiles were already safe.
	logRunSummary(results, duration)
	if writeErr := writeRunSummary(runConfig.TargetBase, results); writeErr != nil {
		plog.Warn("Could not write run summary file", "error", writeErr)
	}

	if err != nil {
		return err // The error will be logged with full details by main()
	}
	if failed := results.Summary().Failed; failed > 0 {
		return fmt.Errorf("%d of %d profiles failed", failed, results.Summary().Total)
	}
	plog.Info(buildinfo.Name+" finished successfully.", "duration", duration)
	return nil
}

// logRunSummary logs the per-profile outcomes and the aggregate counts.
func logRunSummary(results *backupresult.Aggregator, duration time.Duration) {
	for _, r := range results.Results() {
		switch {
		case r.Error != "":
			plog.Notice("Profile result", "profile", r.ProfileName, "status", r.Status.String(), "detail", r.Error)
		default:
			plog.Notice("Profile result", "profile", r.ProfileName, "status", r.Status.String())
		}
	}
	s := results.Summary()
	plog.Info("Run summary",
		"total", s.Total,
		"succeeded", s.Succeeded,
		"skipped", s.Skipped,
		"failed", s.Failed,
		"compressed_bytes", s.CompressedSizeBytes,
		"duration", duration,
	)
}

// writeRunSummary persists the result list next to the artifacts.
func writeRunSummary(targetBase string, results *backupresult.Aggregator) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(targetBase, SummaryFileName), data, util.UserWritableFilePerms)
}
