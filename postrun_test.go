package postrun

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pkt.systems/pslog"
)

func TestFacadeRunsCollection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":7}`))
	}))
	defer srv.Close()

	tmp := t.TempDir()
	coll := `{
  "info": {"name": "facade", "schema": "https://schema.getpostman.com/json/collection/v2.1.0/collection.json"},
  "item": [{
    "name": "get",
    "request": {"method": "GET", "url": "` + srv.URL + `/things", "header": [{"key": "Authorization", "value": "Bearer s3cret"}]},
    "event": [{"listen": "test", "script": {"exec": [
      "pm.test(\"id\", function () { pm.expect(pm.response.json().id).to.equal(7); });"
    ]}}]
  }]
}`
	path := filepath.Join(tmp, "collection.json")
	if err := os.WriteFile(path, []byte(coll), 0o644); err != nil {
		t.Fatal(err)
	}

	var saw []string
	eng, err := New(context.Background(),
		WithLogger(pslog.NewStructured(io.Discard)),
		WithPreRequestHook(func(ctx context.Context, info HookInfo, req *http.Request, log pslog.Base) error {
			saw = append(saw, info.Name)
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	opts := RunOptions{CollectionPath: path}
	sum, err := eng.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !sum.Passed() || sum.Stats.Assertions.Total != 1 {
		t.Fatalf("unexpected summary: %+v", sum.Stats)
	}
	if len(saw) != 1 || saw[0] != "get" {
		t.Fatalf("hook calls: %v", saw)
	}

	filtered := FilterReportHeaders(sum, opts)
	if got := filtered.Executions[0].RequestHeaders["authorization"]; got != "********" {
		t.Fatalf("authorization not masked: %q", got)
	}
	if sum.Executions[0].RequestHeaders["authorization"] != "Bearer s3cret" {
		t.Fatalf("filter must not mutate the original summary")
	}

	out := filepath.Join(tmp, "report.json")
	if err := WriteReport("json", out, filtered); err != nil {
		t.Fatalf("write report: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var decoded Summary
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.Collection != "facade" || len(decoded.Executions) != 1 {
		t.Fatalf("decoded report: %+v", decoded)
	}
	if strings.Contains(string(data), "s3cret") {
		t.Fatalf("secret leaked into report")
	}
}

func TestFacadeImportOpenAPIInMemory(t *testing.T) {
	apiDoc := `openapi: 3.0.3
info:
  title: Facade
  version: "1"
paths:
  /things:
    get:
      operationId: listThings
      responses:
        "200":
          description: ok
`
	src := filepath.Join(t.TempDir(), "openapi.yaml")
	if err := os.WriteFile(src, []byte(apiDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := ImportOpenAPI(context.Background(), ImportOptions{Source: src, Logger: pslog.NewStructured(io.Discard)})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Collection == nil || res.Collection.Info.Name != "Facade" || len(res.Collection.Item) != 1 {
		t.Fatalf("collection: %+v", res.Collection)
	}
	if res.Variables["baseUrl"] == "" {
		t.Fatalf("baseUrl placeholder missing: %v", res.Variables)
	}
}
