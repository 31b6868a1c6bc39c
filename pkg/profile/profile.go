// Package profile implements the discovery of user-profile directories under
// a source root. A profile is an immediate subdirectory whose name fully
// matches a configured pattern (by default all-digits).
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Profile identifies one user's data directory selected for backup.
type Profile struct {
	// Name is the directory base name, e.g. "10000".
	Name string
	// SourcePath is the absolute path of the profile directory.
	SourcePath string
}

// DefaultNamePattern selects directories whose name consists only of digits.
const DefaultNamePattern = `^\d+$`

// CompilePattern anchors and compiles a profile name pattern so that the
// whole directory name must match, not just a substring.
func CompilePattern(expr string) (*regexp.Regexp, error) {
	if expr == "" {
		expr = DefaultNamePattern
	}
	if expr[0] != '^' {
		expr = "^" + expr
	}
	if expr[len(expr)-1] != '$' {
		expr = expr + "$"
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid profile name pattern %q: %w", expr, err)
	}
	return re, nil
}

// Select returns the profiles under sourceRoot whose directory name matches
// the pattern, in directory-listing order. Non-directory entries and
// non-matching names are skipped. Zero matches is not an error.
//
// The caller is expected to have validated sourceRoot beforehand (preflight);
// a read failure here is reported as-is.
func Select(sourceRoot string, pattern *regexp.Regexp) ([]Profile, error) {
	entries, err := os.ReadDir(sourceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read source root %s: %w", sourceRoot, err)
	}

	var profiles []Profile
	for _, entry := range entries {
		if !entry.IsDir() || !pattern.MatchString(entry.Name()) {
			continue
		}
		profiles = append(profiles, Profile{
			Name:       entry.Name(),
			SourcePath: filepath.Join(sourceRoot, entry.Name()),
		})
	}
	return profiles, nil
}
