package models

import (
	"errors"
	"fmt"
)

// Error taxonomy of the manifest builder. Discovery and metadata errors are
// recoverable at the session or subject level; length mismatches and an empty
// manifest block submission; dispatch failures are reported per job.
var (
	ErrNoCandidate        = errors.New("no candidate")
	ErrAmbiguousSelection = errors.New("ambiguous selection")
	ErrMissingSession     = errors.New("missing session")
	ErrSidecarDecode      = errors.New("sidecar decode error")
	ErrAlreadyProcessed   = errors.New("already processed")
	ErrLengthMismatch     = errors.New("length mismatch")
	ErrEmptyManifest      = errors.New("no data to process")
	ErrDispatchFailure    = errors.New("dispatch failure")
)

// SelectionError reports a candidate slot that could not be resolved to
// exactly one file.
type SelectionError struct {
	Slot       string
	Candidates []string
	// Matched is the size of the marker-filtered set (0 or >1) for
	// ambiguous selections, or the number of files found for a slot
	// expecting an exact count.
	Matched int
	// Expected is the exact file count of the slot, 0 for single selection.
	Expected int
	Err      error
}

func (e *SelectionError) Error() string {
	if e.Expected > 0 && len(e.Candidates) > 0 {
		return fmt.Sprintf("%s: expected %d file(s), found %d: %v",
			e.Slot, e.Expected, len(e.Candidates), e.Candidates)
	}
	if errors.Is(e.Err, ErrNoCandidate) {
		return fmt.Sprintf("%s: no candidate file", e.Slot)
	}
	return fmt.Sprintf("%s: %d candidates, %d preferred match(es): %v",
		e.Slot, len(e.Candidates), e.Matched, e.Candidates)
}

func (e *SelectionError) Unwrap() error { return e.Err }

// SidecarError reports a metadata file that could not be decoded or lacks a
// required key.
type SidecarError struct {
	Path string
	Key  string
	Err  error
}

func (e *SidecarError) Error() string {
	switch {
	case e.Key != "" && e.Err != nil:
		return fmt.Sprintf("sidecar %s: key %q: %v", e.Path, e.Key, e.Err)
	case e.Key != "":
		return fmt.Sprintf("sidecar %s: missing key %q", e.Path, e.Key)
	}
	return fmt.Sprintf("sidecar %s: %v", e.Path, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *SidecarError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSidecarDecode}
	}
	return []error{ErrSidecarDecode, e.Err}
}

// LengthMismatch reports a column whose length differs from what the
// manifest layout requires. Subject is empty for whole-column mismatches.
type LengthMismatch struct {
	Column   string
	Subject  string
	Expected int
	Actual   int
}

func (e *LengthMismatch) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("column %q in run %s: expected %d entries, got %d",
			e.Column, e.Subject, e.Expected, e.Actual)
	}
	return fmt.Sprintf("column %q: expected %d entries, got %d", e.Column, e.Expected, e.Actual)
}

func (e *LengthMismatch) Is(target error) bool { return target == ErrLengthMismatch }

// JobError reports a job that exited non-zero or could not be started.
type JobError struct {
	Index    int
	Subject  string
	ExitCode int
	Err      error
}

func (e *JobError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job %d (%s): exit code %d: %v", e.Index, e.Subject, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("job %d (%s): exit code %d", e.Index, e.Subject, e.ExitCode)
}

func (e *JobError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDispatchFailure}
	}
	return []error{ErrDispatchFailure, e.Err}
}
