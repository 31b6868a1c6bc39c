// Package config defines the run configuration, its defaults, and the
// load/merge/validate pipeline: file values overlay the defaults, explicitly
// set command-line flags overlay the file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/paulschiretz/profile-backup/pkg/buildinfo"
	"github.com/paulschiretz/profile-backup/pkg/pathacl"
	"github.com/paulschiretz/profile-backup/pkg/plog"
	"github.com/paulschiretz/profile-backup/pkg/profile"
	"github.com/paulschiretz/profile-backup/pkg/profilearchive"
	"github.com/paulschiretz/profile-backup/pkg/util"
)

// ConfigFileName is the name of the configuration file, looked up in the
// backup target directory.
const ConfigFileName = "profile-backup.config.json"

// defaultExcludeFilePatterns is the built-in set of file name patterns
// excluded from every profile backup. The registry hive files are excluded
// because they are locked while a profile is loaded and are not restorable
// by file copy anyway.
var defaultExcludeFilePatterns = []string{"ntuser*"}

type CompressionConfig struct {
	Format string `json:"format"`
	Level  string `json:"level"`
}

type MirrorConfig struct {
	RetryCount       int `json:"retryCount"`
	RetryWaitSeconds int `json:"retryWaitSeconds"`
}

type AccessControlConfig struct {
	// Note: omitempty is intentionally not used for user-configurable slices
	// so that they appear in the generated config file for better discoverability.
	// GrantIdentities are additional SIDs granted full control on each
	// artifact, after the built-in administrators and system grants.
	GrantIdentities []string `json:"grantIdentities"`
	// ReplicateFilter is a glob matched against the principals of the source
	// profile's permission entries; matching entries are replicated onto the
	// artifact.
	ReplicateFilter string `json:"replicateFilter"`
}

type PerformanceConfig struct {
	BufferSizeKB int `json:"bufferSizeKB" comment:"Size of the I/O buffer in kilobytes for compression. Default is 256 (256KB)."`
}

type Config struct {
	Version    string `json:"version"`
	Source     string `json:"source"`
	TargetBase string `json:"-"` // Never added to config file
	LogLevel   string `json:"logLevel"`

	// Mode selects the backup strategy: 'mirror' or 'compress'.
	Mode string `json:"mode"`

	// ProfilePattern is the regular expression a directory name under Source
	// must fully match to be backed up.
	ProfilePattern string `json:"profilePattern"`

	UserExcludeFiles []string `json:"userExcludeFiles"`

	Compression   CompressionConfig   `json:"compression"`
	Mirror        MirrorConfig        `json:"mirror"`
	AccessControl AccessControlConfig `json:"accessControl"`
	Performance   PerformanceConfig   `json:"performance"`
}

// NewDefault creates and returns a Config struct with sensible default
// values.
func NewDefault() Config {
	return Config{
		Version:        buildinfo.Version,
		Source:         "", // Intentionally empty to force user configuration.
		TargetBase:     "", // Intentionally empty to force user configuration.
		LogLevel:       "info",
		Mode:           "compress",
		ProfilePattern: profile.DefaultNamePattern,

		UserExcludeFiles: []string{},

		Compression: CompressionConfig{
			Format: "zip",
			Level:  "optimal",
		},
		Mirror: MirrorConfig{
			RetryCount:       3, // Default retries on failure.
			RetryWaitSeconds: 5, // Default wait time between retries.
		},
		AccessControl: AccessControlConfig{
			GrantIdentities: []string{},
			ReplicateFilter: pathacl.DefaultReplicateFilter,
		},
		Performance: PerformanceConfig{
			BufferSizeKB: 256, // Keep it between 64KB-4MB.
		},
	}
}

// Load attempts to load a configuration from the config file in targetBase.
// If the file doesn't exist, it returns the default config without an error.
// If the file exists but fails to parse, it returns an error and a
// zero-value config.
func Load(targetBase string) (Config, error) {
	absTargetBasePath, err := filepath.Abs(targetBase)
	if err != nil {
		return Config{}, fmt.Errorf("could not determine absolute path for load directory %s: %w", targetBase, err)
	}

	configPath := filepath.Join(absTargetBasePath, ConfigFileName)

	file, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := NewDefault()
			cfg.TargetBase = absTargetBasePath
			return cfg, nil // Config file doesn't exist, which is a normal case.
		}
		return Config{}, fmt.Errorf("error opening config file %s: %w", configPath, err)
	}
	defer file.Close()

	plog.Info("Loading configuration", "path", configPath)
	// Start with default values, then overwrite with the file's content.
	// This makes the config loading resilient to missing fields in the JSON file.
	config := NewDefault()
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}

	config.TargetBase = absTargetBasePath

	if config.Version != buildinfo.Version {
		config.Version = buildinfo.Version
	}
	return config, nil
}

// Generate creates or overwrites the config file in the configuration's
// target directory.
func Generate(configToGenerate Config) error {
	configPath := filepath.Join(configToGenerate.TargetBase, ConfigFileName)
	jsonData, err := json.MarshalIndent(configToGenerate, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON: %w", err)
	}

	if err := os.WriteFile(configPath, jsonData, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	plog.Info("Successfully saved config file", "path", configPath)
	return nil
}

// Validate checks the configuration for logical errors and inconsistencies.
// It performs strict checks, including ensuring the source path is non-empty
// and exists.
func (c *Config) Validate(checkSource bool) error {
	if checkSource && c.Source == "" {
		return fmt.Errorf("source path cannot be empty")
	}
	if c.TargetBase == "" {
		return fmt.Errorf("target path cannot be empty")
	}

	// Clean and expand paths for canonical representation before use.
	var err error

	if c.Source != "" {
		c.Source, err = util.ExpandPath(c.Source)
		if err != nil {
			return fmt.Errorf("could not expand source path: %w", err)
		}
		c.Source = filepath.Clean(c.Source)

		if checkSource {
			if _, err := os.Stat(c.Source); os.IsNotExist(err) {
				return fmt.Errorf("source path '%s' does not exist", c.Source)
			}
		}
	}

	c.TargetBase, err = util.ExpandPath(c.TargetBase)
	if err != nil {
		return fmt.Errorf("could not expand target path: %w", err)
	}
	c.TargetBase = filepath.Clean(c.TargetBase)

	switch c.Mode {
	case "mirror", "compress":
	default:
		return fmt.Errorf("invalid mode %q: must be 'mirror' or 'compress'", c.Mode)
	}

	if _, err := profile.CompilePattern(c.ProfilePattern); err != nil {
		return fmt.Errorf("invalid profilePattern: %w", err)
	}

	if _, err := profilearchive.ParseFormat(c.Compression.Format); err != nil {
		return err
	}
	if _, err := profilearchive.ParseLevel(c.Compression.Level); err != nil {
		return err
	}

	if c.Mirror.RetryCount < 0 {
		return fmt.Errorf("mirror.retryCount cannot be negative")
	}
	if c.Mirror.RetryWaitSeconds < 0 {
		return fmt.Errorf("mirror.retryWaitSeconds cannot be negative")
	}
	if c.Performance.BufferSizeKB <= 0 {
		return fmt.Errorf("performance.bufferSizeKB must be greater than 0")
	}

	if err := validateGlobPatterns("userExcludeFiles", c.UserExcludeFiles); err != nil {
		return err
	}
	if c.AccessControl.ReplicateFilter != "" {
		if err := validateGlobPatterns("accessControl.replicateFilter", []string{c.AccessControl.ReplicateFilter}); err != nil {
			return err
		}
	}

	for _, sid := range c.AccessControl.GrantIdentities {
		if !looksLikeSID(sid) {
			return fmt.Errorf("invalid grant identity %q: expected a SID in S-1-... form", sid)
		}
	}
	return nil
}

// ExcludeFiles returns the final, combined slice of file exclusion patterns,
// including built-in patterns and user-configured patterns. It automatically
// handles deduplication.
func (c *Config) ExcludeFiles() []string {
	return util.MergeAndDeduplicate(defaultExcludeFilePatterns, c.UserExcludeFiles)
}

// LogSummary prints a user-friendly summary of the configuration to the log.
func (c *Config) LogSummary() {
	logArgs := []interface{}{
		"mode", c.Mode,
		"log_level", c.LogLevel,
		"source", c.Source,
		"target", c.TargetBase,
		"profile_pattern", c.ProfilePattern,
	}
	switch c.Mode {
	case "compress":
		compressionSummary := fmt.Sprintf("f:%s l:%s", c.Compression.Format, c.Compression.Level)
		logArgs = append(logArgs, "compression", compressionSummary)
		logArgs = append(logArgs, "buffer_size_kb", c.Performance.BufferSizeKB)
	case "mirror":
		mirrorSummary := fmt.Sprintf("r:%d w:%ds", c.Mirror.RetryCount, c.Mirror.RetryWaitSeconds)
		logArgs = append(logArgs, "mirror", mirrorSummary)
	}
	if excludeFiles := c.ExcludeFiles(); len(excludeFiles) > 0 {
		logArgs = append(logArgs, "exclude_files", strings.Join(excludeFiles, ", "))
	}
	if len(c.AccessControl.GrantIdentities) > 0 {
		logArgs = append(logArgs, "grant_identities", strings.Join(c.AccessControl.GrantIdentities, ", "))
	}
	logArgs = append(logArgs, "acl_filter", c.AccessControl.ReplicateFilter)
	plog.Info("Configuration loaded", logArgs...)
}

// validateGlobPatterns checks if a list of strings are valid glob patterns.
func validateGlobPatterns(fieldName string, patterns []string) error {
	for _, pattern := range patterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid glob pattern for %s: %q - %w", fieldName, pattern, err)
		}
	}
	return nil
}

var sidPattern = regexp.MustCompile(`^[Ss]-1-\d+(-\d+)*$`)

// looksLikeSID reports whether s has the textual SID shape. Full resolution
// against the local security authority happens when the grant is applied.
func looksLikeSID(s string) bool {
	return sidPattern.MatchString(s)
}

// MergeConfigWithFlags overlays the configuration values from flags on top
// of a base configuration. It iterates over the setFlags map, which contains
// only the flags explicitly provided by the user on the command line.
func MergeConfigWithFlags(base Config, setFlags map[string]any) Config {
	merged := base

	for name, value := range setFlags {
		switch name {
		case "source":
			merged.Source = value.(string)
		case "target":
			merged.TargetBase = value.(string)
		case "log-level":
			merged.LogLevel = value.(string)
		case "mode":
			merged.Mode = value.(string)
		case "profile-pattern":
			merged.ProfilePattern = value.(string)
		case "exclude-files":
			merged.UserExcludeFiles = value.([]string)
		case "grant-identities":
			merged.AccessControl.GrantIdentities = value.([]string)
		case "acl-filter":
			merged.AccessControl.ReplicateFilter = value.(string)
		case "compression-format":
			merged.Compression.Format = value.(string)
		case "compression-level":
			merged.Compression.Level = value.(string)
		case "mirror-retry-count":
			merged.Mirror.RetryCount = value.(int)
		case "mirror-retry-wait":
			merged.Mirror.RetryWaitSeconds = value.(int)
		case "buffer-size-kb":
			merged.Performance.BufferSizeKB = value.(int)
		case "force":
			// Handled by the command layer.
		default:
			plog.Debug("unhandled flag in MergeConfigWithFlags", "flag", name)
		}
	}
	return merged
}
