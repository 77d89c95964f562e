package drivers

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

var (
	builtinOnce sync.Once
	builtins    map[string]*Driver
	builtinErr  error
)

func loadBuiltins() {
	builtins = make(map[string]*Driver)
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		builtinErr = err
		return
	}
	for _, e := range entries {
		data, err := builtinFS.ReadFile(path.Join("builtin", e.Name()))
		if err != nil {
			builtinErr = err
			return
		}
		d, err := Parse(data)
		if err != nil {
			builtinErr = fmt.Errorf("built-in driver %s: %w", e.Name(), err)
			return
		}
		builtins[d.Name] = d
	}
}

// Builtins returns the built-in drivers sorted by name.
func Builtins() ([]*Driver, error) {
	builtinOnce.Do(loadBuiltins)
	if builtinErr != nil {
		return nil, builtinErr
	}
	out := make([]*Driver, 0, len(builtins))
	for _, d := range builtins {
		out = append(out, d.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Lookup returns a copy of the named built-in driver.
func Lookup(name string) (*Driver, error) {
	builtinOnce.Do(loadBuiltins)
	if builtinErr != nil {
		return nil, builtinErr
	}
	d, ok := builtins[name]
	if !ok {
		names := make([]string, 0, len(builtins))
		for n := range builtins {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown driver %q (available: %s)", name, strings.Join(names, ", "))
	}
	return d.clone(), nil
}

// clone copies the slices a caller may modify.
func (d *Driver) clone() *Driver {
	c := *d
	c.Sessions = append([]string(nil), d.Sessions...)
	c.Binds = append([]string(nil), d.Binds...)
	c.Modalities = append(c.Modalities[:0:0], d.Modalities...)
	c.Columns = append(c.Columns[:0:0], d.Columns...)
	c.Params = append(c.Params[:0:0], d.Params...)
	return &c
}
