// Package filter restricts a scan result to some subjects or sessions.
package filter

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/nsap/bidsbatch/internal/models"
)

// Config holds filter configuration.
type Config struct {
	// Include patterns (glob-style). Empty means include all.
	// Example: []string{"sub-0*", "sub-1*/ses-M00"}
	Include []string

	// Exclude patterns (glob-style). Takes precedence over Include.
	Exclude []string
}

// Empty reports whether the filter keeps every run.
func (c Config) Empty() bool {
	return len(c.Include) == 0 && len(c.Exclude) == 0
}

// Validate checks every pattern.
func (c Config) Validate() error {
	for _, p := range append(append([]string(nil), c.Include...), c.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid subject pattern %q", p)
		}
	}
	return nil
}

// ApplyToRuns returns the runs whose subject, or subject/session label,
// matches the filter. The input slice is not modified.
func ApplyToRuns(runs []models.Run, config Config) []models.Run {
	if config.Empty() {
		return runs
	}

	filtered := make([]models.Run, 0, len(runs))
	for _, run := range runs {
		if matchesFilter(labels(run), config) {
			filtered = append(filtered, run)
		}
	}
	return filtered
}

// labels returns the names a run can be matched by: the subject, and the
// subject/session pair of every session it covers.
func labels(run models.Run) []string {
	out := []string{run.Subject}
	for _, s := range run.Sessions {
		out = append(out, run.Subject+"/"+s)
	}
	return out
}

// matchesFilter checks if any label matches the filter configuration.
func matchesFilter(names []string, config Config) bool {
	// Exclude patterns first (highest priority)
	if matchesAny(names, config.Exclude) {
		return false
	}
	if len(config.Include) > 0 {
		return matchesAny(names, config.Include)
	}
	return true
}

func matchesAny(names, patterns []string) bool {
	for _, pattern := range patterns {
		for _, name := range names {
			if matched, _ := doublestar.Match(pattern, name); matched {
				return true
			}
		}
	}
	return false
}

// ParsePatternList parses a comma-separated list of patterns into a slice.
// Example: "sub-01,sub-02" -> []string{"sub-01", "sub-02"}
func ParsePatternList(patternStr string) []string {
	if patternStr == "" {
		return nil
	}
	parts := strings.Split(patternStr, ",")
	patterns := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	return patterns
}
