package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nsap/bidsbatch/internal/models"
)

// Param is one named command-line parameter. Iterative parameters are bound
// to a manifest column and vary per job; constant parameters carry the same
// Value for every job.
type Param struct {
	Name   string `yaml:"name"`
	Column string `yaml:"column,omitempty"`
	Value  string `yaml:"value,omitempty"`
	// Join renders list values as a single token separated by Join.
	Join string `yaml:"join,omitempty"`
	// Bool renders the parameter as a bare flag when its value is true and
	// drops it when false. Longitudinal columns are always boolean.
	Bool bool `yaml:"bool,omitempty"`
	// Required rejects a constant parameter whose value is empty.
	Required bool `yaml:"required,omitempty"`
}

// Iterative reports whether the parameter varies per job.
func (p Param) Iterative() bool {
	return p.Column != ""
}

func (p Param) isBool() bool {
	return p.Bool || p.Column == models.ColumnLongitudinal
}

// CommandTemplate is the command run for every job followed by its
// parameters rendered as "--name value...".
type CommandTemplate struct {
	Command []string `yaml:"command"`
	Params  []Param  `yaml:"params"`
	// NameReplace turns underscores into dashes in flag names.
	NameReplace bool `yaml:"name_replace"`
}

// Validate returns every problem in the template.
func (t CommandTemplate) Validate() []string {
	var problems []string
	if len(t.Command) == 0 {
		problems = append(problems, "Command is required")
	}
	seen := make(map[string]bool)
	for i, p := range t.Params {
		switch {
		case p.Name == "":
			problems = append(problems, fmt.Sprintf("Parameter %d: name is required", i))
		case seen[p.Name]:
			problems = append(problems, fmt.Sprintf("Parameter %q is declared twice", p.Name))
		}
		seen[p.Name] = true
		if p.Column != "" && p.Value != "" {
			problems = append(problems, fmt.Sprintf("Parameter %q: column and value are mutually exclusive", p.Name))
		}
		if p.isBool() && !p.Iterative() && p.Value != "" {
			if _, err := strconv.ParseBool(p.Value); err != nil {
				problems = append(problems, fmt.Sprintf("Parameter %q: invalid boolean %q", p.Name, p.Value))
			}
		}
	}
	return problems
}

// IterativeValues maps every iterative parameter name to its per-job
// values, one entry per run, in manifest order.
func (t CommandTemplate) IterativeValues(m *models.Manifest) (map[string][][]string, error) {
	out := make(map[string][][]string)
	for _, p := range t.Params {
		if !p.Iterative() {
			continue
		}
		values, err := m.ColumnValues(p.Column)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		if len(values) != m.JobCount() {
			return nil, &models.LengthMismatch{Column: p.Column, Expected: m.JobCount(), Actual: len(values)}
		}
		out[p.Name] = values
	}
	return out, nil
}

// Build renders one JobSubmission per run.
func (t CommandTemplate) Build(m *models.Manifest) ([]models.JobSubmission, error) {
	if problems := t.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid command template: %s", strings.Join(problems, "; "))
	}
	iterative, err := t.IterativeValues(m)
	if err != nil {
		return nil, err
	}

	jobs := make([]models.JobSubmission, len(m.Runs))
	for i, run := range m.Runs {
		args := append([]string(nil), t.Command...)
		for _, p := range t.Params {
			var values []string
			if p.Iterative() {
				values = iterative[p.Name][i]
			} else if p.Value != "" {
				values = []string{p.Value}
			} else if p.Required {
				return nil, fmt.Errorf("parameter %q requires a value", p.Name)
			}
			rendered, err := t.render(p, values)
			if err != nil {
				return nil, fmt.Errorf("job %d (%s): %w", i, run, err)
			}
			args = append(args, rendered...)
		}
		jobs[i] = models.JobSubmission{
			Index:     i,
			Subject:   run.String(),
			OutputDir: run.OutputDir,
			Args:      args,
		}
	}
	return jobs, nil
}

func (t CommandTemplate) flag(name string) string {
	if t.NameReplace {
		name = strings.ReplaceAll(name, "_", "-")
	}
	return "--" + name
}

func (t CommandTemplate) render(p Param, values []string) ([]string, error) {
	flag := t.flag(p.Name)

	if p.isBool() {
		if len(values) == 0 {
			return nil, nil
		}
		if len(values) != 1 {
			return nil, fmt.Errorf("parameter %q: boolean needs one value, got %d", p.Name, len(values))
		}
		on, err := strconv.ParseBool(values[0])
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		if on {
			return []string{flag}, nil
		}
		return nil, nil
	}

	if len(values) == 0 {
		return nil, nil
	}
	if p.Join != "" {
		return []string{flag, strings.Join(values, p.Join)}, nil
	}
	return append([]string{flag}, values...), nil
}
