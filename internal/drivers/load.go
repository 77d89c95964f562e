package drivers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes and validates a driver definition. Unknown keys are
// rejected so that typos do not silently drop settings.
func Parse(data []byte) (*Driver, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var d Driver
	if err := dec.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty pipeline definition")
		}
		return nil, fmt.Errorf("failed to parse pipeline definition: %w", err)
	}
	if problems := d.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid pipeline definition %q:\n  - %s", d.Name, strings.Join(problems, "\n  - "))
	}
	return &d, nil
}

// LoadFile reads a custom driver from a YAML pipeline file.
func LoadFile(path string) (*Driver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Marshal encodes a driver back to YAML.
func Marshal(d *Driver) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
