package runner

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"pkt.systems/pslog"

	"pkt.systems/postrun/internal/collection"
)

func quietLogger() pslog.Logger {
	return pslog.NewStructured(io.Discard)
}

func request(method, url string, headers ...collection.Header) *collection.Request {
	return &collection.Request{Method: method, URL: collection.URL{Raw: url}, Header: headers}
}

func item(name string, req *collection.Request, events ...collection.Event) collection.Node {
	return collection.Node{Name: name, Request: req, Event: events}
}

func folder(name string, nodes ...collection.Node) collection.Node {
	return collection.Node{Name: name, Item: nodes}
}

func testScript(src string) collection.Event {
	return collection.Event{Listen: "test", Script: collection.Script{Type: "text/javascript", Exec: collection.Lines{src}}}
}

func preScript(src string) collection.Event {
	return collection.Event{Listen: "prerequest", Script: collection.Script{Type: "text/javascript", Exec: collection.Lines{src}}}
}

func writeCollection(t *testing.T, dir string, nodes ...collection.Node) string {
	t.Helper()
	c := collection.Collection{
		Info: collection.Info{Name: "Test API", Schema: collection.SchemaV21},
		Item: nodes,
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		t.Fatalf("marshal collection: %v", err)
	}
	path := filepath.Join(dir, "collection.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write collection: %v", err)
	}
	return path
}

func writeText(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCollection(t *testing.T, opts RunOptions, engineOpts ...Option) Summary {
	t.Helper()
	engineOpts = append([]Option{WithLogger(quietLogger())}, engineOpts...)
	g, err := New(context.Background(), engineOpts...)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	sum, err := g.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return sum
}

func logFailures(t *testing.T, sum Summary) {
	t.Helper()
	for i, f := range sum.Failures {
		t.Logf("failure %d: %s %s: %s (%s)", i+1, f.Error.Name, f.Error.Test, f.Error.Message, f.At)
	}
}

func hookCommand(script string) []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd.exe", "/C", script}
	}
	return []string{script}
}
