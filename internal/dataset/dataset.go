// Package dataset reads iteration data files: a JSON array of objects, a CSV
// file with a header row, or a YAML sequence of mappings.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Row is one iteration's variables.
type Row map[string]any

// Strings renders every value the way {{var}} substitution sees it.
func (r Row) Strings() map[string]string {
	out := make(map[string]string, len(r))
	for k, v := range r {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
			out[k] = ""
		case map[string]any, []any:
			b, err := json.Marshal(val)
			if err != nil {
				out[k] = fmt.Sprint(val)
				continue
			}
			out[k] = string(b)
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

// Clone returns a shallow copy.
func (r Row) Clone() Row {
	out := Row{}
	maps.Copy(out, r)
	return out
}

// ErrNotArray is returned when a structured dataset is valid but not a list.
var ErrNotArray = errors.New("dataset is not an array")

// Format names the encoding inferred from the file extension.
func Format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "csv"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// Load reads all rows from path.
func Load(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	defer f.Close()
	return Read(f, Format(path))
}

// Count returns the number of rows in path. Any top-level array counts
// element by element; the object check on each row is left to Load.
func Count(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("dataset: %w", err)
	}
	defer f.Close()
	format := Format(path)
	if format == "csv" {
		rows, err := readCSV(f)
		if err != nil {
			return 0, err
		}
		return len(rows), nil
	}
	raw, err := decode(f, format)
	if err != nil {
		return 0, err
	}
	arr, ok := raw.([]any)
	if !ok {
		return 0, ErrNotArray
	}
	return len(arr), nil
}

// Read decodes rows from r in the given format (json|csv|yaml).
func Read(r io.Reader, format string) ([]Row, error) {
	if format == "csv" {
		return readCSV(r)
	}
	raw, err := decode(r, format)
	if err != nil {
		return nil, err
	}
	return rowsFrom(raw)
}

// decode reads exactly one JSON value or YAML document from r.
func decode(r io.Reader, format string) (any, error) {
	var raw any
	if format == "yaml" {
		dec := yaml.NewDecoder(r)
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("dataset: empty document")
			}
			return nil, fmt.Errorf("dataset: %w", err)
		}
		var extra any
		if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
			if err != nil {
				return nil, fmt.Errorf("dataset: %w", err)
			}
			return nil, fmt.Errorf("dataset: multiple yaml documents")
		}
		return raw, nil
	}
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("dataset: trailing data after json value")
	}
	return raw, nil
}

func rowsFrom(raw any) ([]Row, error) {
	arr, ok := raw.([]any)
	if !ok {
		return nil, ErrNotArray
	}
	out := make([]Row, 0, len(arr))
	for i, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("dataset: row %d is not an object", i+1)
		}
		out = append(out, Row(obj))
	}
	return out, nil
}

func readCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	headers, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("dataset: csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	var out []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dataset: %w", err)
		}
		row := Row{}
		for i, h := range headers {
			val := ""
			if i < len(rec) {
				val = strings.TrimSpace(rec[i])
			}
			row[h] = val
		}
		out = append(out, row)
	}
	return out, nil
}
