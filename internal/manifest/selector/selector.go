// Package selector reduces a candidate set to the single file used for a
// (subject, session, modality) slot.
package selector

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nsap/bidsbatch/internal/constants"
	"github.com/nsap/bidsbatch/internal/models"
)

// Predicate reports whether a candidate path is preferred when a slot has
// several candidates.
type Predicate func(path string) bool

// Marker returns a predicate matching candidates whose base name contains
// substr. Directory components are ignored so that a marker appearing in a
// parent directory does not make every candidate preferred.
func Marker(substr string) Predicate {
	return func(path string) bool {
		return strings.Contains(filepath.Base(path), substr)
	}
}

// Selector applies the selection rule.
type Selector struct {
	Prefer Predicate
}

// New returns a selector preferring candidates carrying marker. An empty
// marker falls back to the default bias-corrected anatomical marker.
func New(marker string) *Selector {
	if marker == "" {
		marker = constants.DefaultSelectionMarker
	}
	return &Selector{Prefer: Marker(marker)}
}

// Select resolves candidates to one file:
//
//	0 candidates  -> ErrNoCandidate
//	1 candidate   -> that candidate
//	>1 candidates -> the single candidate satisfying Prefer, else ErrAmbiguousSelection
//
// The returned path is re-checked on disk.
func (s *Selector) Select(slot string, candidates []string) (models.SelectedFile, error) {
	var chosen string
	switch len(candidates) {
	case 0:
		return models.SelectedFile{}, &models.SelectionError{
			Slot: slot,
			Err:  models.ErrNoCandidate,
		}
	case 1:
		chosen = candidates[0]
	default:
		var preferred []string
		if s.Prefer != nil {
			for _, c := range candidates {
				if s.Prefer(c) {
					preferred = append(preferred, c)
				}
			}
		}
		if len(preferred) != 1 {
			return models.SelectedFile{}, &models.SelectionError{
				Slot:       slot,
				Candidates: append([]string(nil), candidates...),
				Matched:    len(preferred),
				Err:        models.ErrAmbiguousSelection,
			}
		}
		chosen = preferred[0]
	}

	if _, err := os.Stat(chosen); err != nil {
		return models.SelectedFile{}, &models.SelectionError{
			Slot: slot,
			Err:  fmt.Errorf("%w: %v", models.ErrNoCandidate, err),
		}
	}
	return models.SelectedFile{Path: chosen, Slot: slot}, nil
}
