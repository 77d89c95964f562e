// Package drivers defines the processing steps bidsbatch knows how to build
// manifests for. A driver declares what to look for in a dataset, how the
// runs are grouped, the columns of its manifest and the command line of its
// jobs. The built-in drivers are embedded YAML definitions; custom ones are
// loaded from a pipeline file with the same schema.
package drivers

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/nsap/bidsbatch/internal/constants"
	"github.com/nsap/bidsbatch/internal/dispatch"
	"github.com/nsap/bidsbatch/internal/manifest/filescan"
	"github.com/nsap/bidsbatch/internal/manifest/selector"
	"github.com/nsap/bidsbatch/internal/manifest/validation"
	"github.com/nsap/bidsbatch/internal/models"
	"github.com/nsap/bidsbatch/internal/util/sanitize"
)

// ColumnSpec declares one manifest column.
type ColumnSpec struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"` // "flat" (default) or "list"
	PairWith string `yaml:"pair_with"`
	Count    int    `yaml:"count"`
	Uniform  bool   `yaml:"uniform"`
}

// Driver is a processing step definition.
type Driver struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Step is appended to the container entrypoint (or the command prefix).
	Step string `yaml:"step"`
	// DefaultCommand is used when neither an image nor a command is given.
	DefaultCommand string `yaml:"default_command"`
	// CleanEnv runs the container with a clean environment.
	CleanEnv bool `yaml:"cleanenv"`
	// Binds are extra container bind mounts; they may reference variables.
	Binds []string `yaml:"binds"`

	Grouping           string   `yaml:"grouping"` // "subject" (default) or "session"
	Sessions           []string `yaml:"sessions"`
	RequireAllSessions bool     `yaml:"require_all_sessions"`
	OutputLayout       string   `yaml:"output_layout"`
	DoneMarker         string   `yaml:"done_marker"`

	Modalities  []filescan.ModalitySpec `yaml:"modalities"`
	Columns     []ColumnSpec            `yaml:"columns"`
	Params      []dispatch.Param        `yaml:"params"`
	NameReplace bool                    `yaml:"name_replace"`
}

// Invocation carries the per-run settings a driver is built against.
type Invocation struct {
	DatasetRoot string
	OutputRoot  string
	// Name overrides the driver name in output paths and logs.
	Name string
	// Image is the container image run through Runtime.
	Image string
	// Command replaces the container invocation with a plain command prefix.
	Command string
	Runtime string

	Marker        string
	SubjectPrefix string
	SessionPrefix string

	// Vars are substituted for {name} references in params and binds.
	Vars map[string]string
}

// RunName returns the name used for output paths and logs.
func (inv Invocation) RunName(d *Driver) string {
	if inv.Name != "" {
		return inv.Name
	}
	return d.Name
}

var varRef = regexp.MustCompile(`\{([a-z][a-z0-9_]*)\}`)

// builtinColumns are filled by the scanner for every driver.
var builtinColumns = []string{
	models.ColumnSubject,
	models.ColumnSession,
	models.ColumnLongitudinal,
	models.ColumnOutputDir,
}

func isBuiltinColumn(name string) bool {
	for _, c := range builtinColumns {
		if c == name {
			return true
		}
	}
	return false
}

// grouping parses the Grouping field.
func (d *Driver) grouping() (filescan.Grouping, error) {
	switch strings.ToLower(d.Grouping) {
	case "", "subject":
		return filescan.GroupSubject, nil
	case "session":
		return filescan.GroupSession, nil
	}
	return 0, fmt.Errorf("invalid grouping %q (must be subject or session)", d.Grouping)
}

// Validate returns every problem in the driver definition.
func (d *Driver) Validate() []string {
	var problems []string

	if d.Name == "" {
		problems = append(problems, "Name is required")
	} else if !sanitize.IsSafeLabel(d.Name) {
		problems = append(problems, fmt.Sprintf("Name %q contains invalid characters", d.Name))
	}
	if d.Step == "" && d.DefaultCommand == "" {
		problems = append(problems, "Step or default_command is required")
	}
	if _, err := d.grouping(); err != nil {
		problems = append(problems, err.Error())
	}

	produced := make(map[string]bool)
	for i, m := range d.Modalities {
		if m.Pattern == "" {
			problems = append(problems, fmt.Sprintf("Modality %d: pattern is required", i))
		}
		if m.Count < 0 {
			problems = append(problems, fmt.Sprintf("Modality %d: count must be >= 0", i))
		}
		if m.Column == "" && m.Sidecar == nil {
			problems = append(problems, fmt.Sprintf("Modality %d: column or sidecar is required", i))
		}
		if m.Column != "" {
			produced[m.Column] = true
		}
		if m.Sidecar != nil {
			for _, k := range m.Sidecar.Keys {
				if k.Key == "" || k.Column == "" {
					problems = append(problems, fmt.Sprintf("Modality %d: sidecar keys need key and column", i))
					continue
				}
				produced[k.Column] = true
			}
		}
		for _, s := range m.Sessions {
			if len(d.Sessions) > 0 && !contains(d.Sessions, s) {
				problems = append(problems, fmt.Sprintf("Modality %d: session %q is not scanned", i, s))
			}
		}
	}

	columns, err := d.ModelColumns()
	if err != nil {
		problems = append(problems, err.Error())
	} else {
		problems = append(problems, validation.ValidateColumns(columns)...)
	}
	for _, c := range d.Columns {
		if c.Kind == "list" && !produced[c.Name] {
			problems = append(problems, fmt.Sprintf("Column %q is not produced by any modality", c.Name))
		}
	}

	declared := make(map[string]bool)
	for _, c := range columns {
		declared[c.Name] = true
	}
	for _, p := range d.Params {
		if p.Column != "" && !declared[p.Column] {
			problems = append(problems, fmt.Sprintf("Parameter %q: column %q is not declared", p.Name, p.Column))
		}
	}
	tmpl := dispatch.CommandTemplate{Command: []string{d.Name}, Params: d.Params, NameReplace: d.NameReplace}
	problems = append(problems, tmpl.Validate()...)

	return problems
}

// ModelColumns returns the manifest columns: subject and output_dir followed
// by the declared columns in order.
func (d *Driver) ModelColumns() ([]models.Column, error) {
	columns := []models.Column{
		{Name: models.ColumnSubject},
		{Name: models.ColumnOutputDir},
	}
	for _, c := range d.Columns {
		if c.Name == models.ColumnSubject || c.Name == models.ColumnOutputDir {
			continue
		}
		col := models.Column{Name: c.Name, PairWith: c.PairWith, Count: c.Count, Uniform: c.Uniform}
		switch c.Kind {
		case "", "flat":
			col.Kind = models.Flat
		case "list":
			if isBuiltinColumn(c.Name) {
				return nil, fmt.Errorf("column %q is built in and cannot be a list", c.Name)
			}
			col.Kind = models.List
		default:
			return nil, fmt.Errorf("column %q: invalid kind %q (must be flat or list)", c.Name, c.Kind)
		}
		if col.Kind == models.Flat && !isBuiltinColumn(c.Name) {
			return nil, fmt.Errorf("column %q: only %s can be flat", c.Name, strings.Join(builtinColumns, ", "))
		}
		columns = append(columns, col)
	}
	return columns, nil
}

// ScanOptions returns the dataset scan settings for an invocation.
func (d *Driver) ScanOptions(inv Invocation) (filescan.ScanOptions, error) {
	grouping, err := d.grouping()
	if err != nil {
		return filescan.ScanOptions{}, err
	}
	return filescan.ScanOptions{
		DatasetRoot:        inv.DatasetRoot,
		OutputRoot:         inv.OutputRoot,
		Name:               inv.RunName(d),
		Modalities:         d.Modalities,
		SessionLabels:      d.Sessions,
		RequireAllSessions: d.RequireAllSessions,
		Grouping:           grouping,
		OutputLayout:       d.OutputLayout,
		DoneMarker:         d.DoneMarker,
		SubjectPrefix:      inv.SubjectPrefix,
		SessionPrefix:      inv.SessionPrefix,
		Selector:           selector.New(inv.Marker),
	}, nil
}

// Command assembles the job command prefix. A user command wins over the
// container image; the driver default is used when neither is given.
func (d *Driver) Command(inv Invocation) ([]string, error) {
	var args []string
	switch {
	case inv.Command != "":
		args = sanitize.SplitCommand(inv.Command)
	case inv.Image != "":
		runtime := inv.Runtime
		if runtime == "" {
			runtime = constants.DefaultContainerRuntime
		}
		args = []string{runtime, "run", "--bind", filepath.Dir(filepath.Clean(inv.DatasetRoot))}
		for _, b := range d.Binds {
			bind, missing := expandVars(b, d.vars(inv))
			if len(missing) > 0 {
				return nil, fmt.Errorf("bind %q: variable(s) not set: %s", b, strings.Join(missing, ", "))
			}
			args = append(args, "--bind", bind)
		}
		if d.CleanEnv {
			args = append(args, "--cleanenv")
		}
		args = append(args, inv.Image, constants.ContainerEntrypoint)
	case d.DefaultCommand != "":
		args = sanitize.SplitCommand(d.DefaultCommand)
	default:
		return nil, fmt.Errorf("driver %s needs a container image or a command", d.Name)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("driver %s: empty command", d.Name)
	}
	if d.Step != "" {
		args = append(args, d.Step)
	}
	return args, nil
}

// Template returns the command template of the driver's jobs. Constant
// parameters referencing unset variables expand to an empty value and are
// omitted unless required.
func (d *Driver) Template(inv Invocation) (dispatch.CommandTemplate, error) {
	command, err := d.Command(inv)
	if err != nil {
		return dispatch.CommandTemplate{}, err
	}

	vars := d.vars(inv)
	params := make([]dispatch.Param, len(d.Params))
	for i, p := range d.Params {
		if !p.Iterative() && p.Value != "" {
			value, missing := expandVars(p.Value, vars)
			if len(missing) > 0 {
				value = ""
				if p.Required {
					return dispatch.CommandTemplate{}, fmt.Errorf("parameter %q: variable(s) not set: %s",
						p.Name, strings.Join(missing, ", "))
				}
			}
			p.Value = value
		}
		params[i] = p
	}

	return dispatch.CommandTemplate{
		Command:     command,
		Params:      params,
		NameReplace: d.NameReplace,
	}, nil
}

// Variables returns the variable names referenced by params and binds.
func (d *Driver) Variables() []string {
	seen := make(map[string]bool)
	collect := func(s string) {
		for _, m := range varRef.FindAllStringSubmatch(s, -1) {
			seen[m[1]] = true
		}
	}
	for _, p := range d.Params {
		collect(p.Value)
	}
	for _, b := range d.Binds {
		collect(b)
	}
	for _, name := range []string{"datadir", "outdir", "name"} {
		delete(seen, name)
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (d *Driver) vars(inv Invocation) map[string]string {
	vars := map[string]string{
		"datadir": inv.DatasetRoot,
		"outdir":  inv.OutputRoot,
		"name":    inv.RunName(d),
	}
	for k, v := range inv.Vars {
		vars[k] = v
	}
	return vars
}

// expandVars substitutes {name} references and reports unset ones.
func expandVars(s string, vars map[string]string) (string, []string) {
	var missing []string
	out := varRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := ref[1 : len(ref)-1]
		v, ok := vars[name]
		if !ok || v == "" {
			missing = append(missing, name)
			return ""
		}
		return v
	})
	return out, missing
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
