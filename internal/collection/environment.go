package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment is a named set of variables.
type Environment struct {
	Name   string
	Values map[string]string
	// Order keeps keys in file order for stable reporting.
	Order []string
}

type environmentFile struct {
	Name   string `json:"name"`
	Values []struct {
		Key     string `json:"key"`
		Value   any    `json:"value"`
		Enabled *bool  `json:"enabled"`
	} `json:"values"`
}

// LoadEnvironment reads a Postman environment export. Files ending in
// .yaml/.yml are read as a flat key/value map instead.
func LoadEnvironment(ctx context.Context, path string) (Environment, error) {
	if err := ctx.Err(); err != nil {
		return Environment{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Environment{}, err
	}
	env := Environment{Values: map[string]string{}}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return Environment{}, fmt.Errorf("%s: %w", path, err)
		}
		if len(node.Content) == 0 {
			return env, nil
		}
		m := node.Content[0]
		if m.Kind != yaml.MappingNode {
			return Environment{}, fmt.Errorf("%s: environment must be a mapping", path)
		}
		for i := 0; i+1 < len(m.Content); i += 2 {
			k, v := m.Content[i].Value, m.Content[i+1]
			var val any
			if err := v.Decode(&val); err != nil {
				return Environment{}, fmt.Errorf("%s: %s: %w", path, k, err)
			}
			env.set(k, stringify(val))
		}
		env.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		return env, nil
	}
	var f environmentFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Environment{}, fmt.Errorf("%s: %w", path, err)
	}
	env.Name = f.Name
	for _, v := range f.Values {
		if v.Enabled != nil && !*v.Enabled {
			continue
		}
		env.set(v.Key, stringify(v.Value))
	}
	return env, nil
}

func (e *Environment) set(k, v string) {
	if _, ok := e.Values[k]; !ok {
		e.Order = append(e.Order, k)
	}
	e.Values[k] = v
}
