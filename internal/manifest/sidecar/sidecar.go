// Package sidecar reads acquisition parameters from the JSON metadata file
// stored next to an image.
package sidecar

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/nsap/bidsbatch/internal/models"
)

// AltSeparator separates alternative spellings of one key. The first
// alternative present in the document wins, e.g.
// "TotalReadoutTime|EstimatedTotalReadoutTime".
const AltSeparator = "|"

// Read decodes the JSON object at path and returns the requested keys as
// strings, keyed by the requested name (alternatives included).
//
// A file that cannot be read or decoded, or that lacks one of the keys,
// yields a *models.SidecarError matching models.ErrSidecarDecode.
func Read(path string, keys []string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.SidecarError{Path: path, Err: err}
	}

	doc, err := decode(data)
	if err != nil {
		return nil, &models.SidecarError{Path: path, Err: err}
	}

	out := make(map[string]string, len(keys))
	for _, key := range keys {
		raw, ok := lookup(doc, key)
		if !ok {
			return nil, &models.SidecarError{Path: path, Key: key}
		}
		value, err := render(raw)
		if err != nil {
			return nil, &models.SidecarError{Path: path, Key: key, Err: err}
		}
		out[key] = value
	}
	return out, nil
}

func decode(data []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if doc == nil {
		return nil, errors.New("document is not a JSON object")
	}
	return doc, nil
}

func lookup(doc map[string]interface{}, key string) (interface{}, bool) {
	for _, alt := range strings.Split(key, AltSeparator) {
		if v, ok := doc[strings.TrimSpace(alt)]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// render keeps numbers in their source spelling so that readout times are
// passed to commands exactly as recorded.
func render(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
