package runner

import (
	"net/http"
	"strings"
	"testing"

	"pkt.systems/postrun/internal/collection"
)

func newTestState(body string, code int) *itemState {
	return &itemState{
		item:       collection.Item{Name: "lookup"},
		iterations: 1,
		scopes:     newScopes(nil, nil, nil),
		request:    &collection.Request{Method: "GET", URL: collection.URL{Raw: "http://example.test/"}},
		response: &response{
			code:   code,
			reason: http.StatusText(code),
			header: http.Header{"Content-Type": []string{"application/json"}, "X-Request-Id": []string{"r-1"}},
			body:   []byte(body),
		},
		logger: quietLogger(),
	}
}

func runAssertions(t *testing.T, st *itemState, src string) []Assertion {
	t.Helper()
	if err := st.run("test", src); err != nil {
		t.Fatalf("script error: %v", err)
	}
	return st.assertions
}

func TestExpectChainPasses(t *testing.T) {
	st := newTestState(`{"id":7,"name":"widget","tags":["a","b"],"nested":{"ok":true},"price":9.5}`, 200)
	src := `
var body = pm.response.json();
pm.test("equal", function () { pm.expect(body.id).to.equal(7); });
pm.test("not equal", function () { pm.expect(body.id).to.not.equal(8); });
pm.test("eql", function () { pm.expect(body.nested).to.eql({ ok: true }); });
pm.test("deep equal", function () { pm.expect(body.tags).to.deep.equal(["a", "b"]); });
pm.test("type", function () { pm.expect(body.name).to.be.a("string"); pm.expect(body.tags).to.be.an("array"); });
pm.test("include", function () { pm.expect(body.tags).to.include("b"); pm.expect(body.name).to.contain("idg"); });
pm.test("property", function () { pm.expect(body).to.have.property("nested").that.has.property("ok", true); });
pm.test("compare", function () { pm.expect(body.price).to.be.above(9).and.below(10); pm.expect(body.id).to.be.within(1, 10); });
pm.test("length", function () { pm.expect(body.tags).to.have.lengthOf(2); pm.expect(body.tags).to.have.length.above(1); });
pm.test("match", function () { pm.expect(body.name).to.match(/^wid/); });
pm.test("oneOf", function () { pm.expect(body.id).to.be.oneOf([5, 6, 7]); });
pm.test("keys", function () { pm.expect(body).to.have.any.keys("id", "missing"); pm.expect(body.nested).to.have.keys(["ok"]); });
pm.test("flags", function () { pm.expect(body.nested.ok).to.be.true; pm.expect(body.missing).to.be.undefined; pm.expect([]).to.be.empty; });
pm.test("status", function () { pm.response.to.have.status(200); pm.response.to.be.ok; pm.response.to.have.status("OK"); });
pm.test("header", function () { pm.response.to.have.header("x-request-id", "r-1"); pm.expect(pm.response.headers.get("X-Request-Id")).to.equal("r-1"); });
pm.test("jsonBody", function () { pm.response.to.have.jsonBody("tags[1]", "b"); pm.response.to.be.json; });
`
	for _, a := range runAssertions(t, st, src) {
		if !a.Passed {
			t.Errorf("%s failed: %s", a.Name, a.Error)
		}
	}
	if len(st.assertions) != 16 {
		t.Fatalf("expected 16 assertions, got %d", len(st.assertions))
	}
}

func TestExpectChainFailureMessages(t *testing.T) {
	st := newTestState(`{"id":7,"name":"widget"}`, 500)
	src := `
var body = pm.response.json();
pm.test("equal", function () { pm.expect(body.id).to.equal(8); });
pm.test("negated", function () { pm.expect(body.name).to.not.equal("widget"); });
pm.test("property", function () { pm.expect(body).to.have.property("missing"); });
pm.test("status", function () { pm.response.to.have.status(200); });
pm.test("server error", function () { pm.response.to.not.be.serverError; });
pm.test("thrown", function () { throw new Error("boom"); });
`
	want := map[string]string{
		"equal":        "expected 7 to equal 8",
		"negated":      "expected 'widget' to not equal 'widget'",
		"property":     "to have property 'missing'",
		"status":       "expected response to have status code 200 but got 500",
		"server error": "500",
		"thrown":       "boom",
	}
	got := runAssertions(t, st, src)
	if len(got) != len(want) {
		t.Fatalf("expected %d assertions, got %d", len(want), len(got))
	}
	for _, a := range got {
		if a.Passed {
			t.Errorf("%s should fail", a.Name)
			continue
		}
		if !strings.Contains(a.Error, want[a.Name]) {
			t.Errorf("%s: message %q does not contain %q", a.Name, a.Error, want[a.Name])
		}
	}
}

func TestTestSkipAndMissingCallback(t *testing.T) {
	st := newTestState(`{}`, 200)
	got := runAssertions(t, st, `
pm.test.skip("later", function () { throw new Error("never"); });
pm.test("no callback");`)
	if len(got) != 2 || !got[0].Skipped || !got[1].Skipped {
		t.Fatalf("unexpected assertions: %+v", got)
	}
}

func TestJSONSchemaAssertion(t *testing.T) {
	st := newTestState(`{"id":"seven"}`, 200)
	got := runAssertions(t, st, `
var schema = { type: "object", required: ["id"], properties: { id: { type: "integer" } } };
pm.test("schema", function () { pm.response.to.have.jsonSchema(schema); });
pm.test("expect schema", function () { pm.expect({ id: 1 }).to.have.jsonSchema(schema); });
tests["tv4"] = tv4.validate({ id: 2 }, schema);`)
	if len(got) != 3 {
		t.Fatalf("expected 3 assertions, got %+v", got)
	}
	if got[0].Passed || !strings.Contains(got[0].Error, "expected data to satisfy schema") {
		t.Fatalf("schema mismatch should fail: %+v", got[0])
	}
	if !got[1].Passed || !got[2].Passed {
		t.Fatalf("valid documents should pass: %+v", got[1:])
	}
}

func TestScriptVariablesAndConsole(t *testing.T) {
	st := newTestState(`{"token":"t-1"}`, 200)
	st.scopes.environment["host"] = "api.test"
	st.scopes.globals["shared"] = "g"
	got := runAssertions(t, st, `
pm.environment.set("token", pm.response.json().token);
pm.collectionVariables.set("count", 3);
pm.globals.unset("shared");
pm.variables.set("local", { a: 1 });
console.log("token is", pm.environment.get("token"), { n: 1 });
pm.test("replaceIn", function () {
  pm.expect(pm.variables.replaceIn("https://{{host}}/x")).to.equal("https://api.test/x");
  pm.expect(pm.variables.get("count")).to.equal("3");
});
pm.test("info", function () {
  pm.expect(pm.info.requestName).to.equal("lookup");
  pm.expect(pm.info.eventName).to.equal("test");
});`)
	for _, a := range got {
		if !a.Passed {
			t.Errorf("%s: %s", a.Name, a.Error)
		}
	}
	if st.scopes.environment["token"] != "t-1" || st.scopes.collection["count"] != "3" {
		t.Fatalf("variables not stored: env=%v coll=%v", st.scopes.environment, st.scopes.collection)
	}
	if _, ok := st.scopes.globals["shared"]; ok {
		t.Fatalf("global not removed")
	}
	if st.scopes.local["local"] != `{"a":1}` {
		t.Fatalf("object not serialised: %q", st.scopes.local["local"])
	}
	if len(st.console) != 1 || st.console[0] != `token is t-1 {"n":1}` {
		t.Fatalf("unexpected console: %q", st.console)
	}
}

func TestScriptErrorIsReturned(t *testing.T) {
	st := newTestState(`{}`, 200)
	err := st.run("test", `var x = ;`)
	if err == nil {
		t.Fatalf("expected syntax error")
	}
	if name, _ := jsError(err); name != "SyntaxError" {
		t.Fatalf("expected SyntaxError, got %q (%v)", name, err)
	}
}

func TestBodyObjectAssertionOnInvalidJSON(t *testing.T) {
	st := newTestState(`<html>not json</html>`, 200)
	got := runAssertions(t, st, `
pm.test("body object", function () { pm.response.to.have.body({ id: 7 }); });
pm.test("body null", function () { pm.response.to.have.body(null); });`)
	if len(got) != 2 {
		t.Fatalf("expected 2 assertions, got %+v", got)
	}
	for _, a := range got {
		if a.Passed {
			t.Errorf("%s should fail on a non-json body", a.Name)
			continue
		}
		if !strings.Contains(a.Error, "expected response body to be a valid json but got error") {
			t.Errorf("%s: parse error not reported: %q", a.Name, a.Error)
		}
	}
}
