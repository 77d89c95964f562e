// Package filescan walks a subject/session dataset and builds the runs of a
// manifest.
//
// The scanner never aborts on a file-level problem: missing sessions, failed
// selections and broken sidecars are recorded as skips at the narrowest
// scope (session before subject) and the walk continues.
package filescan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nsap/bidsbatch/internal/constants"
	"github.com/nsap/bidsbatch/internal/manifest/pattern"
	"github.com/nsap/bidsbatch/internal/manifest/selector"
	"github.com/nsap/bidsbatch/internal/manifest/sidecar"
	"github.com/nsap/bidsbatch/internal/models"
	"github.com/nsap/bidsbatch/internal/util/sanitize"
)

// Grouping decides how sessions map to runs.
type Grouping int

const (
	// GroupSubject produces one run per subject aggregating its sessions.
	GroupSubject Grouping = iota
	// GroupSession produces one run per (subject, session).
	GroupSession
)

func (g Grouping) String() string {
	if g == GroupSession {
		return "session"
	}
	return "subject"
}

// SidecarKey maps a sidecar key (alternatives separated by "|") to the list
// column receiving its values.
type SidecarKey struct {
	Key    string `yaml:"key"`
	Column string `yaml:"column"`
}

// SidecarSpec reads metadata from every file matched by the owning modality.
type SidecarSpec struct {
	Keys []SidecarKey `yaml:"keys"`
}

// ModalitySpec describes one input slot looked up in every session.
type ModalitySpec struct {
	// Column receiving the matched paths.
	Column string `yaml:"column"`
	// Dir is the modality directory under the session (e.g. "anat"), may be empty.
	Dir string `yaml:"dir"`
	// Pattern is a path template relative to Dir.
	Pattern string `yaml:"pattern"`
	// Suffix binds the {suffix} placeholder.
	Suffix string `yaml:"suffix"`
	// Count of zero resolves the slot through the candidate selector. A
	// positive count requires exactly that many matches, kept in sorted
	// order; any other number skips the unit of work.
	Count int `yaml:"count"`
	// Sessions restricts the slot to some session labels.
	Sessions []string `yaml:"sessions"`
	// Sidecar, when set, treats every match as a JSON metadata file.
	Sidecar *SidecarSpec `yaml:"sidecar"`
}

func (m ModalitySpec) appliesTo(session string) bool {
	if len(m.Sessions) == 0 {
		return true
	}
	for _, s := range m.Sessions {
		if s == session {
			return true
		}
	}
	return false
}

// ScanOptions configures a dataset scan.
type ScanOptions struct {
	DatasetRoot string
	OutputRoot  string
	// Name is the processing step; outputs go to OutputRoot/Name/<layout>.
	Name string

	Modalities []ModalitySpec
	// SessionLabels is the ordered list of expected sessions. Empty means
	// every session directory found under the subject.
	SessionLabels      []string
	RequireAllSessions bool
	Grouping           Grouping

	// OutputLayout accepts {subject} and {session}.
	OutputLayout string
	// DoneMarker is a pattern relative to the output dir; a run whose output
	// already holds a match is skipped.
	DoneMarker string

	SubjectPrefix string
	SessionPrefix string

	Selector *selector.Selector
}

// ScanResult contains the results of a dataset scan.
type ScanResult struct {
	Runs         []models.Run
	Skipped      []models.Skip
	SubjectCount int
}

// SkippedSubjects returns the subject-level skip records.
func (r ScanResult) SkippedSubjects() []models.Skip {
	var out []models.Skip
	for _, s := range r.Skipped {
		if s.Session == "" {
			out = append(out, s)
		}
	}
	return out
}

type scanner struct {
	opts   ScanOptions
	result ScanResult
}

// Scan walks opts.DatasetRoot and returns the runs in subject directory
// order. An unreadable dataset root yields an empty result with a single
// skip record; callers turn an empty result into models.ErrEmptyManifest.
func Scan(opts ScanOptions) ScanResult {
	if opts.SubjectPrefix == "" {
		opts.SubjectPrefix = constants.DefaultSubjectPrefix
	}
	if opts.SessionPrefix == "" {
		opts.SessionPrefix = constants.DefaultSessionPrefix
	}
	if opts.OutputLayout == "" {
		if opts.Grouping == GroupSession {
			opts.OutputLayout = constants.SessionLayout
		} else {
			opts.OutputLayout = constants.SubjectLayout
		}
	}
	if opts.Selector == nil {
		opts.Selector = selector.New("")
	}

	s := &scanner{opts: opts}

	subjects, err := listDirs(opts.DatasetRoot, opts.SubjectPrefix)
	if err != nil {
		s.skip(models.Skip{Subject: opts.DatasetRoot, Reason: "unreadable dataset root", Err: err})
		return s.result
	}

	for _, subject := range subjects {
		if !sanitize.IsSafeLabel(subject) {
			s.skip(models.Skip{Subject: subject, Reason: "invalid subject label"})
			continue
		}
		s.result.SubjectCount++
		s.scanSubject(subject)
	}
	return s.result
}

func (s *scanner) skip(sk models.Skip) {
	s.result.Skipped = append(s.result.Skipped, sk)
}

// sessionInputs holds the list columns gathered for one session.
type sessionInputs struct {
	session string
	lists   map[string][]string
	order   []string
}

func (si *sessionInputs) add(column string, values ...string) {
	if _, ok := si.lists[column]; !ok {
		si.order = append(si.order, column)
	}
	si.lists[column] = append(si.lists[column], values...)
}

func (s *scanner) scanSubject(subject string) {
	subjectDir := filepath.Join(s.opts.DatasetRoot, subject)

	labels := s.opts.SessionLabels
	if len(labels) == 0 {
		found, err := listDirs(subjectDir, s.opts.SessionPrefix)
		if err != nil {
			s.skip(models.Skip{Subject: subject, Reason: "unreadable subject directory", Err: err})
			return
		}
		labels = found
	}

	var usable []sessionInputs
	for _, session := range labels {
		sessionDir := filepath.Join(subjectDir, session)
		if !isDir(sessionDir) {
			s.skip(models.Skip{
				Subject: subject,
				Session: session,
				Reason:  reasonFor(models.ErrMissingSession),
				Err:     models.ErrMissingSession,
			})
			continue
		}

		inputs, err := s.scanSession(subject, session, sessionDir)
		if err != nil {
			var selErr *models.SelectionError
			if errors.As(err, &selErr) && s.opts.Grouping == GroupSubject {
				s.skip(models.Skip{Subject: subject, Reason: reasonFor(err), Err: err})
				return
			}
			s.skip(models.Skip{Subject: subject, Session: session, Reason: reasonFor(err), Err: err})
			continue
		}
		usable = append(usable, inputs)
	}

	if len(usable) == 0 {
		s.skip(models.Skip{
			Subject: subject,
			Reason:  reasonFor(models.ErrMissingSession),
			Err:     fmt.Errorf("%w: no usable session", models.ErrMissingSession),
		})
		return
	}
	if s.opts.RequireAllSessions && len(usable) < len(labels) {
		s.skip(models.Skip{
			Subject: subject,
			Reason:  reasonFor(models.ErrMissingSession),
			Err: fmt.Errorf("%w: %d of %d required sessions usable",
				models.ErrMissingSession, len(usable), len(labels)),
		})
		return
	}

	if s.opts.Grouping == GroupSession {
		for _, in := range usable {
			s.addRun(subject, []sessionInputs{in})
		}
		return
	}
	s.addRun(subject, usable)
}

func (s *scanner) scanSession(subject, session, sessionDir string) (sessionInputs, error) {
	in := sessionInputs{session: session, lists: make(map[string][]string)}

	for _, m := range s.opts.Modalities {
		if !m.appliesTo(session) {
			continue
		}
		root := filepath.Join(sessionDir, m.Dir)
		slot := slotName(subject, session, m.Column)
		candidates, err := pattern.Match(root, m.Pattern, pattern.Bindings{
			Subject: subject,
			Session: session,
			Suffix:  m.Suffix,
		})
		if err != nil {
			return in, fmt.Errorf("%s: %w", slot, err)
		}

		var paths []string
		if m.Count == 0 {
			selected, err := s.opts.Selector.Select(slot, candidates)
			if err != nil {
				return in, err
			}
			paths = []string{selected.Path}
		} else {
			if len(candidates) != m.Count {
				return in, countError(slot, m.Count, candidates)
			}
			paths = candidates
		}

		if m.Sidecar != nil {
			for _, p := range paths {
				values, err := sidecar.Read(p, sidecarKeys(m.Sidecar))
				if err != nil {
					return in, err
				}
				for _, k := range m.Sidecar.Keys {
					in.add(k.Column, values[k.Key])
				}
			}
		}
		if m.Column != "" {
			in.add(m.Column, paths...)
		}
	}
	return in, nil
}

func (s *scanner) addRun(subject string, sessions []sessionInputs) {
	run := models.NewRun(subject)
	for _, in := range sessions {
		run.Sessions = append(run.Sessions, in.session)
		for _, col := range in.order {
			run.Append(col, in.lists[col]...)
		}
	}
	run.Longitudinal = s.opts.Grouping == GroupSubject && len(run.Sessions) >= 2

	session := ""
	if len(run.Sessions) == 1 {
		session = run.Sessions[0]
	}
	run.OutputDir = s.outputDir(subject, session)

	if s.opts.DoneMarker != "" {
		done, err := pattern.Match(run.OutputDir, s.opts.DoneMarker, pattern.Bindings{
			Subject: subject,
			Session: session,
		})
		if err == nil && len(done) > 0 {
			s.skip(models.Skip{
				Subject: subject,
				Session: session,
				Reason:  reasonFor(models.ErrAlreadyProcessed),
				Err:     fmt.Errorf("%w: %s", models.ErrAlreadyProcessed, done[0]),
			})
			return
		}
	}
	s.result.Runs = append(s.result.Runs, run)
}

func (s *scanner) outputDir(subject, session string) string {
	layout := strings.ReplaceAll(s.opts.OutputLayout, "{subject}", subject)
	layout = strings.ReplaceAll(layout, "{session}", session)
	return filepath.Join(s.opts.OutputRoot, s.opts.Name, filepath.FromSlash(layout))
}

func sidecarKeys(spec *SidecarSpec) []string {
	keys := make([]string, len(spec.Keys))
	for i, k := range spec.Keys {
		keys[i] = k.Key
	}
	return keys
}

func slotName(subject, session, column string) string {
	return subject + "/" + session + "/" + column
}

// reasonFor maps an error to the short reason printed with a skip.
// countError reports a slot whose match count differs from the expected one:
// too few files is a missing candidate, too many an ambiguous selection.
func countError(slot string, expected int, candidates []string) error {
	err := models.ErrNoCandidate
	if len(candidates) > expected {
		err = models.ErrAmbiguousSelection
	}
	return &models.SelectionError{
		Slot:       slot,
		Candidates: candidates,
		Matched:    len(candidates),
		Expected:   expected,
		Err:        err,
	}
}

func reasonFor(err error) string {
	for _, sentinel := range []error{
		models.ErrNoCandidate,
		models.ErrAmbiguousSelection,
		models.ErrMissingSession,
		models.ErrSidecarDecode,
		models.ErrAlreadyProcessed,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "scan error"
}

// listDirs returns the sorted names of the directories in dir starting with prefix.
func listDirs(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		if e.IsDir() || isDir(filepath.Join(dir, e.Name())) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
