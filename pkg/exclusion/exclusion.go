// Package exclusion implements the file-exclusion matcher used by both backup
// strategies. Patterns are matched against a file's base name only, never the
// full relative path, and matching is case-insensitive.
package exclusion

import (
	"path/filepath"
	"strings"

	"github.com/paulschiretz/profile-backup/pkg/plog"
)

type matchType int

const (
	literalMatch matchType = iota
	prefixMatch
	suffixMatch
	globMatch
)

// pattern stores the pre-analyzed pattern details.
type pattern struct {
	raw       string    // The original pattern for logging/debugging.
	clean     string    // The pattern without wildcards for prefix/suffix matching, or the full pattern for glob.
	matchType matchType // The type of match to perform.
}

// Set holds the categorized exclusion patterns for efficient matching.
// The zero value matches nothing.
type Set struct {
	// literals are for exact base-name matches, which are the fastest to check.
	literals map[string]struct{}
	// nonLiterals are for patterns requiring wildcard logic, checked in the
	// order they were configured. The first match wins.
	nonLiterals []pattern
}

// NewSet analyzes and categorizes patterns to enable optimized matching later.
func NewSet(patterns []string) Set {
	set := Set{
		literals:    make(map[string]struct{}),
		nonLiterals: make([]pattern, 0, len(patterns)),
	}

	for _, p := range patterns {
		// Normalize to a consistent, case-insensitive key.
		p = normalize(p)
		if p == "" {
			continue
		}
		switch {
		case !strings.ContainsAny(p, "*?["):
			// No wildcards: exact base-name match, e.g. "desktop.ini".
			set.literals[p] = struct{}{}
		case strings.HasSuffix(p, "*") && !strings.ContainsAny(p[:len(p)-1], "*?["):
			// A pattern like "ntuser*" or "temp_*".
			set.nonLiterals = append(set.nonLiterals, pattern{
				raw:       p,
				clean:     strings.TrimSuffix(p, "*"),
				matchType: prefixMatch,
			})
		case strings.HasPrefix(p, "*") && !strings.ContainsAny(p[1:], "*?["):
			// A pattern like "*.log" or "*.tmp".
			set.nonLiterals = append(set.nonLiterals, pattern{
				raw:       p,
				clean:     p[1:],
				matchType: suffixMatch,
			})
		default:
			// Otherwise, it's a general glob pattern.
			set.nonLiterals = append(set.nonLiterals, pattern{
				raw:       p,
				clean:     p,
				matchType: globMatch,
			})
		}
	}
	return set
}

// Matches reports whether a file base name matches any of the exclusion
// patterns. The first matching pattern short-circuits.
func (s *Set) Matches(baseName string) bool {
	name := normalize(baseName)

	// 1. Check for O(1) literal matches.
	if _, ok := s.literals[name]; ok {
		return true
	}

	// 2. If no literal match, check wildcard patterns in configured order.
	for _, p := range s.nonLiterals {
		switch p.matchType {
		case prefixMatch:
			if strings.HasPrefix(name, p.clean) {
				return true
			}
		case suffixMatch:
			if strings.HasSuffix(name, p.clean) {
				return true
			}
		case globMatch:
			match, err := filepath.Match(p.clean, name)
			if err != nil {
				// Log the error for the invalid pattern but continue checking others.
				plog.Warn("Invalid exclusion pattern", "pattern", p.raw, "error", err)
				continue
			}
			if match {
				return true
			}
		}
	}
	return false
}

// Empty reports whether the set contains no patterns.
func (s *Set) Empty() bool {
	return len(s.literals) == 0 && len(s.nonLiterals) == 0
}

// normalize converts a name or pattern into a standardized,
// case-insensitive key format.
func normalize(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}
