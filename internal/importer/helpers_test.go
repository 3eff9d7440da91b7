package importer

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pkt.systems/pslog"

	"pkt.systems/postrun/internal/collection"
	"pkt.systems/postrun/internal/runner"
)

func quietLogger() pslog.Logger {
	return pslog.NewStructured(io.Discard)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// writeEnv writes a Postman environment holding vars.
func writeEnv(t *testing.T, dir string, vars map[string]string) string {
	t.Helper()
	var values []map[string]any
	for k, v := range vars {
		values = append(values, map[string]any{"key": k, "value": v, "enabled": true})
	}
	data, err := json.Marshal(map[string]any{"name": "test", "values": values})
	if err != nil {
		t.Fatalf("marshal env: %v", err)
	}
	return writeFile(t, dir, "env.json", string(data))
}

func loadCollection(t *testing.T, path string) *collection.Collection {
	t.Helper()
	coll, err := collection.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load generated collection: %v", err)
	}
	return coll
}

// findItem returns the flattened item with the given name.
func findItem(t *testing.T, coll *collection.Collection, name string) collection.Item {
	t.Helper()
	items, err := coll.Items()
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	for _, it := range items {
		if it.Name == name {
			return it
		}
	}
	var names []string
	for _, it := range items {
		names = append(names, it.FullName())
	}
	t.Fatalf("item %q not found in %v", name, names)
	return collection.Item{}
}

func testSource(t *testing.T, coll *collection.Collection, name string) string {
	t.Helper()
	return strings.Join(findItem(t, coll, name).Test, "\n")
}

func runGenerated(t *testing.T, collPath, envPath string) runner.Summary {
	t.Helper()
	engine, err := runner.New(context.Background(), runner.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	sum, err := engine.Run(context.Background(), runner.RunOptions{CollectionPath: collPath, EnvironmentPath: envPath})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return sum
}

func failureText(sum runner.Summary) string {
	var b strings.Builder
	for _, f := range sum.Failures {
		b.WriteString(f.At + " " + f.Error.Test + ": " + f.Error.Message + "\n")
	}
	return b.String()
}
