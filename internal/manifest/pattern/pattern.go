// Package pattern expands naming templates into file paths under a dataset root.
//
// A template is a doublestar glob with placeholders bound per lookup:
//
//	{subject}_{session}_*T1w.nii.gz
//	**/{subject}_{session}_acq-DWI*_run-*_dwi.{suffix}
//
// Results are absolute and sorted lexicographically, because callers pair
// related files (nii/bvec/bval/json) by position.
package pattern

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Placeholder names recognised in templates.
const (
	Subject = "subject"
	Session = "session"
	Suffix  = "suffix"
)

var placeholderRe = regexp.MustCompile(`\{([a-z]+)\}`)

// Bindings supplies the concrete values substituted into a template.
type Bindings struct {
	Subject string
	Session string
	Suffix  string
}

func (b Bindings) lookup(name string) (string, bool) {
	switch name {
	case Subject:
		return b.Subject, b.Subject != ""
	case Session:
		return b.Session, b.Session != ""
	case Suffix:
		return b.Suffix, b.Suffix != ""
	}
	return "", false
}

// Expand substitutes bindings into template. Only the three known
// placeholders are replaced; doublestar alternation braces such as
// {nii,nii.gz} are left for the glob engine. An unbound known placeholder is
// an error.
func Expand(template string, b Bindings) (string, error) {
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		switch name {
		case Subject, Session, Suffix:
		default:
			return m
		}
		v, ok := b.lookup(name)
		if !ok {
			missing = append(missing, name)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("template %q: unbound placeholder(s): %s", template, strings.Join(missing, ", "))
	}
	return out, nil
}

// Match returns the sorted absolute paths under root matching template.
// No match is not an error: an empty slice is returned and the caller
// decides whether absence matters. Only the template is glob syntax; root
// is taken literally even when it holds metacharacters.
func Match(root, template string, b Bindings) ([]string, error) {
	expanded, err := Expand(template, b)
	if err != nil {
		return nil, err
	}

	base, rel := root, expanded
	if filepath.IsAbs(expanded) {
		vol := filepath.VolumeName(expanded)
		base = vol + string(filepath.Separator)
		rel = strings.TrimLeft(expanded[len(vol):], `/\`)
	}
	rel = filepath.ToSlash(rel)
	if !doublestar.ValidatePattern(rel) {
		return nil, fmt.Errorf("invalid pattern %q: %w", expanded, doublestar.ErrBadPattern)
	}

	hits, err := doublestar.Glob(os.DirFS(base), rel)
	if err != nil {
		return nil, fmt.Errorf("expand pattern %q: %w", expanded, err)
	}

	paths := make([]string, 0, len(hits))
	for _, hit := range hits {
		full := filepath.Join(base, filepath.FromSlash(hit))
		abs, err := filepath.Abs(full)
		if err != nil {
			abs = full
		}
		paths = append(paths, abs)
	}
	sort.Strings(paths)
	return paths, nil
}
