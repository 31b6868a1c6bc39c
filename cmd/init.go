package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulschiretz/profile-backup/pkg/buildinfo"
	"github.com/paulschiretz/profile-backup/pkg/config"
	"github.com/paulschiretz/profile-backup/pkg/plog"
	"github.com/paulschiretz/profile-backup/pkg/preflight"
)

// RunInit handles the logic for the 'init' command.
func RunInit(ctx context.Context, flagMap map[string]interface{}) error {
	// For init, the target flag is mandatory to know where to write.
	targetPath, ok := flagMap["target"].(string)
	if !ok || targetPath == "" {
		return fmt.Errorf("the -target flag is required for the init operation")
	}

	absTargetPath, err := filepath.Abs(targetPath)
	if err != nil {
		return fmt.Errorf("could not determine absolute target path for %s: %w", targetPath, err)
	}

	force := false
	if f, ok := flagMap["force"]; ok {
		force = f.(bool)
	}

	if !force {
		absConfigFilePath := filepath.Join(absTargetPath, config.ConfigFileName)
		if _, err := os.Stat(absConfigFilePath); err == nil {
			fmt.Printf("WARNING: Configuration file already exists at %s.\n", absConfigFilePath)
			fmt.Printf("Continuing will overwrite it. All custom settings will be lost.\n")
			if !PromptForConfirmation("Are you sure you want to continue?", false) {
				plog.Info(buildinfo.Name + " init operation canceled.")
				return nil
			}
		}
	}

	// Create a config from defaults merged with user flags.
	runConfig := config.MergeConfigWithFlags(config.NewDefault(), flagMap)
	runConfig.TargetBase = absTargetPath

	// Source may stay empty in the generated file; it must then be provided
	// for each backup run via the -source flag.
	if err := runConfig.Validate(false); err != nil {
		return err
	}

	startTime := time.Now()

	// Ensure the target directory exists (or can be created) and is writable.
	validator := preflight.NewValidator()
	pfPlan := &preflight.Plan{
		SourceRoot: runConfig.Source,
		TargetRoot: runConfig.TargetBase,
	}
	if runConfig.Source == "" {
		pfPlan.SourceRoot = "."
	}
	if err := validator.Validate(ctx, pfPlan); err != nil {
		return fmt.Errorf("initialization preflight failed: %w", err)
	}

	if err := config.Generate(runConfig); err != nil {
		return fmt.Errorf("failed to generate config file: %w", err)
	}

	duration := time.Since(startTime).Round(time.Millisecond)
	plog.Info(buildinfo.Name+" target successfully initialized.", "duration", duration)
	return nil
}

// PromptForConfirmation prompts the user for a yes/no response.
func PromptForConfirmation(prompt string, defaultYes bool) bool {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}
	fmt.Printf("%s %s: ", prompt, suffix)

	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return defaultYes
	}

	answer = strings.ToLower(strings.TrimSpace(answer))
	switch answer {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return defaultYes
	}
}
