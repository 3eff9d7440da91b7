package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"pkt.systems/postrun/internal/collection"
)

// writePingCollection writes a one-request collection asserting on the
// status code returned by {{baseUrl}}/ping.
func writePingCollection(t *testing.T, dir string, wantStatus int) string {
	t.Helper()
	coll := map[string]any{
		"info": map[string]any{"name": "CLI", "schema": collection.SchemaV21},
		"item": []any{
			map[string]any{
				"name":    "ping",
				"request": map[string]any{"method": "GET", "url": "{{baseUrl}}/ping?user={{user}}"},
				"event": []any{
					map[string]any{
						"listen": "test",
						"script": map[string]any{"exec": []string{
							fmt.Sprintf(`pm.test("status", function () { pm.response.to.have.status(%d); });`, wantStatus),
						}},
					},
				},
			},
		},
	}
	return writeJSON(t, filepath.Join(dir, "collection.json"), coll)
}

func writeEnvironment(t *testing.T, dir, baseURL string) string {
	t.Helper()
	env := map[string]any{
		"name":   "local",
		"values": []any{
			map[string]any{"key": "baseUrl", "value": baseURL, "enabled": true},
			map[string]any{"key": "user", "value": "anon", "enabled": true},
		},
	}
	return writeJSON(t, filepath.Join(dir, "env.json"), env)
}

func writeJSON(t *testing.T, path string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func pingServer(t *testing.T, users *[]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if users != nil {
			*users = append(*users, r.URL.Query().Get("user"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(t *testing.T, args ...string) (int, string) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "")
	var out bytes.Buffer
	code := execute(context.Background(), args, &out, &out)
	return code, out.String()
}

func TestRunCLISuccessWithDataset(t *testing.T) {
	var users []string
	srv := pingServer(t, &users)
	tmp := t.TempDir()
	coll := writePingCollection(t, tmp, 200)
	env := writeEnvironment(t, tmp, srv.URL)
	data := filepath.Join(tmp, "dataset.json")
	if err := os.WriteFile(data, []byte(`[{"user":"ada"},{"user":"bob"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(tmp, "results")

	code, out := runCLI(t, "-c", coll, "--env", env, "-d", data, "--output", outDir, "--reporters", "json,junit")
	if code != 0 {
		t.Fatalf("exit %d:\n%s", code, out)
	}
	if strings.Join(users, ",") != "ada,bob" {
		t.Fatalf("dataset rows not substituted: %v", users)
	}
	for _, name := range []string{"newman-report.json", "newman-report.xml"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Fatalf("report %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(outDir, "newman-report.html")); err == nil {
		t.Fatalf("html report written without being requested")
	}
}

func TestRunCLIMissingCollection(t *testing.T) {
	tmp := t.TempDir()
	code, out := runCLI(t, "-c", filepath.Join(tmp, "nope.json"), "--output", filepath.Join(tmp, "out"))
	if code != 1 {
		t.Fatalf("exit %d, want 1:\n%s", code, out)
	}
	if !strings.Contains(out, "Collection file not found") {
		t.Fatalf("missing message:\n%s", out)
	}
}

func TestRunCLIUnknownFlag(t *testing.T) {
	code, out := runCLI(t, "--no-such-flag")
	if code != 1 || !strings.Contains(out, "no-such-flag") {
		t.Fatalf("exit %d:\n%s", code, out)
	}
}

func TestRunCLIEngineFailure(t *testing.T) {
	tmp := t.TempDir()
	coll := filepath.Join(tmp, "broken.json")
	if err := os.WriteFile(coll, []byte(`{"info":`), 0o644); err != nil {
		t.Fatal(err)
	}
	code, out := runCLI(t, "-c", coll, "--output", filepath.Join(tmp, "out"), "--reporters", "json")
	if code != 2 {
		t.Fatalf("exit %d, want 2:\n%s", code, out)
	}
}

func TestRunCLIAssertionFailures(t *testing.T) {
	srv := pingServer(t, nil)
	tmp := t.TempDir()
	coll := writePingCollection(t, tmp, 201)
	env := writeEnvironment(t, tmp, srv.URL)

	code, out := runCLI(t, "-c", coll, "-e", env, "-d", filepath.Join(tmp, "missing.json"), "--output", filepath.Join(tmp, "out"), "--reporters", "json")
	if code != 3 {
		t.Fatalf("exit %d, want 3:\n%s", code, out)
	}
}

func TestRunCLIWithoutEnvironmentFailsOnUnresolvedURL(t *testing.T) {
	tmp := t.TempDir()
	coll := writePingCollection(t, tmp, 200)

	code, out := runCLI(t, "-c", coll, "--env", filepath.Join(tmp, "none.json"), "--output", filepath.Join(tmp, "out"), "--reporters", "json")
	if code != 3 {
		t.Fatalf("exit %d, want 3:\n%s", code, out)
	}
	if !strings.Contains(out, "baseUrl") {
		t.Fatalf("expected unresolved variable to be reported:\n%s", out)
	}
}

func TestRunCLIGlobalVars(t *testing.T) {
	var users []string
	srv := pingServer(t, &users)
	tmp := t.TempDir()
	coll := writePingCollection(t, tmp, 200)

	code, out := runCLI(t, "-c", coll, "--global-var", "baseUrl="+srv.URL, "--global-var", "user=eve", "--output", filepath.Join(tmp, "out"), "--reporters", "json")
	if code != 0 {
		t.Fatalf("exit %d:\n%s", code, out)
	}
	if len(users) != 1 || users[0] != "eve" {
		t.Fatalf("global var not used: %v", users)
	}

	code, out = runCLI(t, "-c", coll, "--global-var", "broken", "--output", filepath.Join(tmp, "out"))
	if code != 1 {
		t.Fatalf("invalid --global-var exit %d:\n%s", code, out)
	}
}

func TestRunCLIExecutesExternalHooks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell hooks")
	}
	srv := pingServer(t, nil)
	tmp := t.TempDir()
	coll := writePingCollection(t, tmp, 200)
	env := writeEnvironment(t, tmp, srv.URL)

	hookOut := filepath.Join(tmp, "hook.out")
	script := filepath.Join(tmp, "hook.sh")
	body := fmt.Sprintf("#!/bin/sh\necho HOOK-$POSTRUN_HOOK_PHASE-$POSTRUN_NAME >>%s\necho HOOK-$POSTRUN_HOOK_PHASE\n", hookOut)
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}

	code, out := runCLI(t,
		"--structured", "--log-level", "debug",
		"-c", coll, "-e", env, "--output", filepath.Join(tmp, "out"), "--reporters", "json",
		"--run-pre-request", script, "--run-post-request", script,
	)
	if code != 0 {
		t.Fatalf("exit %d:\n%s", code, out)
	}
	data, err := os.ReadFile(hookOut)
	if err != nil {
		t.Fatalf("hook output: %v", err)
	}
	if got := string(data); !strings.Contains(got, "HOOK-pre-ping") || !strings.Contains(got, "HOOK-post-ping") {
		t.Fatalf("hooks not invoked: %q", got)
	}
	if !strings.Contains(out, "HOOK-pre") {
		t.Fatalf("hook stdout not logged:\n%s", out)
	}
}

func TestRunCLIBadTransportFilesAreEngineFailures(t *testing.T) {
	tmp := t.TempDir()
	coll := writePingCollection(t, tmp, 200)
	notPEM := filepath.Join(tmp, "ca.pem")
	if err := os.WriteFile(notPEM, []byte("not a certificate"), 0o644); err != nil {
		t.Fatal(err)
	}
	for name, args := range map[string][]string{
		"missing cacert":      {"--cacert", filepath.Join(tmp, "absent.pem")},
		"cacert without pem":  {"--cacert", notPEM},
		"missing cert config": {"--client-cert-config", filepath.Join(tmp, "absent.json")},
	} {
		t.Run(name, func(t *testing.T) {
			code, out := runCLI(t, append([]string{"-c", coll, "--output", filepath.Join(tmp, "out")}, args...)...)
			if code != 2 {
				t.Fatalf("expected exit 2, got %d:\n%s", code, out)
			}
			if !strings.Contains(out, "http client") {
				t.Fatalf("missing transport error:\n%s", out)
			}
		})
	}
}
