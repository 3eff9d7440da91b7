package runner

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"strings"

	"pkt.systems/postrun/internal/collection"
	"pkt.systems/postrun/internal/dataset"
)

// scopes holds the variable layers visible to substitution and scripts.
// Lookups go from the narrowest layer (local) to the widest (globals).
type scopes struct {
	globals     map[string]string
	collection  map[string]string
	environment map[string]string
	folder      map[string]string
	data        dataset.Row
	dataStr     map[string]string
	local       map[string]string
}

func newScopes(globals map[string]string, collVars []collection.Variable, env map[string]string) *scopes {
	s := &scopes{
		globals:     map[string]string{},
		collection:  map[string]string{},
		environment: map[string]string{},
	}
	maps.Copy(s.globals, globals)
	for _, v := range collVars {
		if !v.Disabled {
			s.collection[v.Key] = v.StringValue()
		}
	}
	maps.Copy(s.environment, env)
	s.startIteration(nil)
	return s
}

// startIteration swaps in the dataset row for a new iteration.
func (s *scopes) startIteration(row dataset.Row) {
	if row == nil {
		row = dataset.Row{}
	}
	s.data = row.Clone()
	s.dataStr = row.Strings()
	s.local = map[string]string{}
	s.folder = map[string]string{}
}

// startItem resets item-local variables and applies folder variables.
func (s *scopes) startItem(folderVars []collection.Variable) {
	s.local = map[string]string{}
	s.folder = map[string]string{}
	for _, v := range folderVars {
		if !v.Disabled {
			s.folder[v.Key] = v.StringValue()
		}
	}
}

func (s *scopes) get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	if after, ok := strings.CutPrefix(key, "process.env."); ok {
		return os.LookupEnv(after)
	}
	for _, layer := range []map[string]string{s.local, s.dataStr, s.environment, s.folder, s.collection, s.globals} {
		if v, ok := layer[key]; ok {
			return v, true
		}
	}
	return "", false
}

// merged flattens all layers with narrower layers winning.
func (s *scopes) merged() map[string]string {
	out := map[string]string{}
	for _, layer := range []map[string]string{s.globals, s.collection, s.folder, s.environment, s.dataStr, s.local} {
		maps.Copy(out, layer)
	}
	return out
}

func (s *scopes) expand(in string) string {
	return collection.Substitute(in, s.get)
}

// scriptValue converts a value set from a script into its stored string form.
func scriptValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64, float64, bool, int:
		return fmt.Sprint(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}
