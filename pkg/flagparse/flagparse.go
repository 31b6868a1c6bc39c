// Package flagparse turns command-line arguments into a command plus a map
// of the flags the user explicitly set. Only explicitly set flags enter the
// map, so the configuration layer can distinguish "left at default" from
// "set to the default value".
package flagparse

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/profile-backup/pkg/buildinfo"
)

// cliFlags holds pointers to all possible command-line flags.
// Fields are pointers so we can distinguish between "not registered for this
// command" (nil) and "registered but not set by user" (non-nil pointer to
// zero value).
type cliFlags struct {
	// Global
	LogLevel *string

	// Shared: Backup / Init
	Source          *string
	Target          *string
	Mode            *string
	ProfilePattern  *string
	ExcludeFiles    *string
	GrantIdentities *string
	ACLFilter       *string

	CompressionFormat *string
	CompressionLevel  *string

	MirrorRetryCount *int
	MirrorRetryWait  *int

	BufferSizeKB *int

	// Init specific
	Force *bool
}

func registerGlobalFlags(fs *flag.FlagSet, f *cliFlags) {
	f.LogLevel = fs.String("log-level", "info", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
}

func registerBackupFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Source = fs.String("source", "", "Directory containing the user profiles to back up. (Required)")
	f.Target = fs.String("target", "", "Destination directory for backup artifacts. (Required)")

	f.Mode = fs.String("mode", "", "Backup mode: 'mirror' or 'compress'.")
	f.ProfilePattern = fs.String("profile-pattern", "", "Regular expression a directory name must fully match to be backed up.")
	f.ExcludeFiles = fs.String("exclude-files", "", "Comma-separated list of case-insensitive file names to exclude (supports glob patterns).")
	f.GrantIdentities = fs.String("grant-identities", "", "Comma-separated list of additional SIDs granted full control on each artifact.")
	f.ACLFilter = fs.String("acl-filter", "", "Glob matched against source permission principals; matching entries are replicated onto the artifact.")

	f.CompressionFormat = fs.String("compression-format", "", "Compression format: 'zip', 'tar.gz', or 'tar.zst'.")
	f.CompressionLevel = fs.String("compression-level", "", "Compression level: 'optimal', 'fastest', or 'none'.")

	f.MirrorRetryCount = fs.Int("mirror-retry-count", 0, "Number of retries for failed copies in mirror mode.")
	f.MirrorRetryWait = fs.Int("mirror-retry-wait", 0, "Seconds to wait between retries in mirror mode.")

	f.BufferSizeKB = fs.Int("buffer-size-kb", 0, "Size of the I/O buffer in kilobytes for compression.")
}

func registerInitFlags(fs *flag.FlagSet, f *cliFlags) {
	// Init supports the backup configuration flags (to seed the generated
	// config file) plus 'force'.
	registerBackupFlags(fs, f)
	f.Force = fs.Bool("force", false, "Overwrite an existing configuration file.")
}

// Parse parses the provided arguments (usually os.Args[1:]) and returns the
// command and the map of explicitly set flags.
func Parse(args []string) (Command, map[string]interface{}, error) {
	// If no arguments provided, print help and exit.
	if len(args) == 0 {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	cmdStr := strings.ToLower(args[0])

	if cmdStr == "help" || cmdStr == "-h" || cmdStr == "-help" || cmdStr == "--help" {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	f := &cliFlags{}

	command, err := ParseCommand(cmdStr)
	if err != nil {
		return None, nil, err
	}

	switch command {
	case Backup:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, f)
		registerBackupFlags(fs, f)

		fs.Usage = func() {
			printSubcommandUsage(command, "Back up matching user profiles to the target directory.", fs)
		}

		if err := fs.Parse(args[1:]); err != nil {
			return command, nil, err
		}
		flagMap, err := flagsToMap(fs, f)
		return command, flagMap, err

	case Init:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, f)
		registerInitFlags(fs, f)

		fs.Usage = func() {
			printSubcommandUsage(command, "Generate a configuration file in the target directory.", fs)
		}

		if err := fs.Parse(args[1:]); err != nil {
			return command, nil, err
		}
		flagMap, err := flagsToMap(fs, f)
		return command, flagMap, err

	case Version:
		return command, nil, nil

	default:
		return None, nil, fmt.Errorf("unknown command: %s", args[0])
	}
}

func flagsToMap(fs *flag.FlagSet, f *cliFlags) (map[string]interface{}, error) {
	// Create a map of the flags that were explicitly set by the user, along
	// with their values. This map is used to selectively override the base
	// configuration.
	usedFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { usedFlags[f.Name] = true })

	flagMap := make(map[string]any)

	addIfUsed(flagMap, usedFlags, "log-level", f.LogLevel)

	addIfUsed(flagMap, usedFlags, "source", f.Source)
	addIfUsed(flagMap, usedFlags, "target", f.Target)
	addIfUsed(flagMap, usedFlags, "mode", f.Mode)
	addIfUsed(flagMap, usedFlags, "profile-pattern", f.ProfilePattern)
	addIfUsed(flagMap, usedFlags, "acl-filter", f.ACLFilter)

	addIfUsed(flagMap, usedFlags, "compression-format", f.CompressionFormat)
	addIfUsed(flagMap, usedFlags, "compression-level", f.CompressionLevel)

	addIfUsed(flagMap, usedFlags, "mirror-retry-count", f.MirrorRetryCount)
	addIfUsed(flagMap, usedFlags, "mirror-retry-wait", f.MirrorRetryWait)

	addIfUsed(flagMap, usedFlags, "buffer-size-kb", f.BufferSizeKB)

	addIfUsed(flagMap, usedFlags, "force", f.Force)

	// Handle flags that require parsing.
	addParsedIfUsed(flagMap, usedFlags, "exclude-files", f.ExcludeFiles, ParseList)
	addParsedIfUsed(flagMap, usedFlags, "grant-identities", f.GrantIdentities, ParseList)

	return flagMap, nil
}

// addIfUsed adds the value of ptr to flagMap if ptr is not nil and the flag was set.
func addIfUsed[T any](flagMap map[string]interface{}, usedFlags map[string]bool, name string, ptr *T) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = *ptr
	}
}

// addParsedIfUsed adds the parsed value of ptr to flagMap if ptr is not nil and the flag was set.
func addParsedIfUsed(flagMap map[string]interface{}, usedFlags map[string]bool, name string, ptr *string, parser func(string) []string) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = parser(*ptr)
	}
}

// printTopLevelUsage prints the main help message.
func printTopLevelUsage(fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "Backs up Windows user profiles and locks down the results.\n\n")
	fmt.Fprintf(fs.Output(), "Usage: %s <command> [flags]\n\n", execName)
	fmt.Fprintf(fs.Output(), "Commands:\n")
	fmt.Fprintf(fs.Output(), "  backup      Back up matching user profiles\n")
	fmt.Fprintf(fs.Output(), "  init        Generate a configuration file\n")
	fmt.Fprintf(fs.Output(), "  version     Print the application version\n")
	fmt.Fprintf(fs.Output(), "\nRun '%s <command> -help' for more information on a command.\n", execName)
}

// printSubcommandUsage prints the help message for a specific subcommand.
func printSubcommandUsage(command Command, desc string, fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "Backs up Windows user profiles and locks down the results.\n\n")
	fmt.Fprintf(fs.Output(), "Usage of the %s command: %s %s [flags]\n\n", command, execName, command)
	fmt.Fprintf(fs.Output(), "%s\n\n", desc)
	fmt.Fprintf(fs.Output(), "Flags:\n")
	fs.PrintDefaults()
}

// ParseList parses a comma-separated list of patterns or identifiers. Quotes
// group items containing commas or spaces and are removed from the output;
// backslashes are literal for Windows path compatibility.
func ParseList(s string) []string {
	var list []string
	var current strings.Builder
	var quoteChar rune

	appendItem := func() {
		trimmed := strings.TrimSpace(current.String())
		if trimmed != "" {
			list = append(list, trimmed)
		}
		current.Reset()
	}

	for _, r := range s {
		switch {
		case r == '\'' || r == '"':
			if quoteChar == 0 { // Start of a new quoted section.
				quoteChar = r
			} else if quoteChar == r { // End of the current quoted section.
				quoteChar = 0
			} else { // A different quote character inside a quoted section.
				current.WriteRune(r)
			}
		case r == ',' && quoteChar == 0: // Comma outside of any quotes.
			appendItem()
		default:
			current.WriteRune(r)
		}
	}
	appendItem()
	return list
}
