package importer

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"pkt.systems/pslog"

	"pkt.systems/postrun/internal/collection"
)

// Result is the output of an import: the collection plus the variables an
// environment file should define.
type Result struct {
	Collection *collection.Collection
	// Variables holds baseUrl and auth placeholders.
	Variables map[string]string
}

// builder assembles a collection, creating folders on first use and keeping
// request names unique within their folder.
type builder struct {
	coll    *collection.Collection
	folders map[string]int
	names   map[string]int
}

func newBuilder(name string) *builder {
	return &builder{
		coll: &collection.Collection{
			Info: collection.Info{
				ID:     uuid.NewString(),
				Name:   name,
				Schema: collection.SchemaV21,
			},
			Item: []collection.Node{},
		},
		folders: map[string]int{},
		names:   map[string]int{},
	}
}

// add places node at the top level or inside folder.
func (b *builder) add(folder string, node collection.Node) {
	node.Name = b.uniqueName(folder, node.Name)
	if folder == "" {
		b.coll.Item = append(b.coll.Item, node)
		return
	}
	idx, ok := b.folders[folder]
	if !ok {
		idx = len(b.coll.Item)
		b.folders[folder] = idx
		b.coll.Item = append(b.coll.Item, collection.Node{Name: folder, Item: []collection.Node{}})
	}
	b.coll.Item[idx].Item = append(b.coll.Item[idx].Item, node)
}

func (b *builder) uniqueName(folder, name string) string {
	key := folder + "|" + name
	n := b.names[key]
	b.names[key] = n + 1
	if n == 0 {
		return name
	}
	return fmt.Sprintf("%s %d", name, n+1)
}

// count returns the number of requests added so far.
func (b *builder) count() int {
	n := 0
	for _, node := range b.coll.Item {
		if node.Request != nil {
			n++
		}
		n += len(node.Item)
	}
	return n
}

// write persists the collection and, when requested, the environment.
func write(res Result, opts Options, log pslog.Logger) error {
	if opts.OutputFile != "" {
		if err := writeJSONFile(opts.OutputFile, res.Collection); err != nil {
			return fmt.Errorf("write collection: %w", err)
		}
		log.Info("import.collection.write", "path", opts.OutputFile, "items", len(res.Collection.Item))
	}
	if opts.EnvironmentFile != "" {
		if err := writeJSONFile(opts.EnvironmentFile, environmentDocument(res.Collection.Info.Name, res.Variables)); err != nil {
			return fmt.Errorf("write environment: %w", err)
		}
		log.Info("import.environment.write", "path", opts.EnvironmentFile, "vars", len(res.Variables))
	}
	return nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

type environmentValue struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

type environmentDoc struct {
	ID     string             `json:"id"`
	Name   string             `json:"name"`
	Values []environmentValue `json:"values"`
}

func environmentDocument(name string, vars map[string]string) environmentDoc {
	doc := environmentDoc{ID: uuid.NewString(), Name: name, Values: []environmentValue{}}
	for _, k := range slices.Sorted(maps.Keys(vars)) {
		doc.Values = append(doc.Values, environmentValue{Key: k, Value: vars[k], Enabled: true})
	}
	return doc
}

// testEvent wraps script lines in a test event.
func testEvent(lines []string) collection.Event {
	return collection.Event{
		Listen: "test",
		Script: collection.Script{Type: "text/javascript", Exec: collection.Lines(lines)},
	}
}

// pmTest renders a pm.test block with an indented body.
func pmTest(name string, body ...string) []string {
	out := []string{fmt.Sprintf("pm.test(%q, function () {", name)}
	for _, l := range body {
		out = append(out, "    "+l)
	}
	return append(out, "});")
}

func statusTest() []string {
	return pmTest("status is 2xx", "pm.response.to.be.success;")
}

func rawBody(raw, lang string) *collection.Body {
	b := &collection.Body{Mode: "raw", Raw: raw}
	if lang != "" {
		b.Options = &collection.BodyOptions{}
		b.Options.Raw = &struct {
			Language string `json:"language"`
		}{Language: lang}
	}
	return b
}

func sortedHeaders(m map[string]string) []collection.Header {
	out := make([]collection.Header, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, collection.Header{Key: k, Value: m[k]})
	}
	return out
}

func sortedQuery(m map[string]string) []collection.QueryParam {
	out := make([]collection.QueryParam, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		v := m[k]
		out = append(out, collection.QueryParam{Key: k, Value: &v})
	}
	return out
}

func titleCase(s string) string {
	return cases.Title(language.Und).String(strings.ToLower(s))
}

// validJS reports whether the generated script parses.
func validJS(code string, log pslog.Logger) bool {
	_, err := goja.Parse("generated.js", "(function(){\n"+code+"\n})();")
	if err != nil {
		if log != nil {
			log.Error("import.tests.invalid-js", "err", err)
			log.Debug("import.tests.invalid-js.code", "code", code)
		}
		return false
	}
	return true
}
