package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/dop251/goja"
	"pkt.systems/pslog"

	"pkt.systems/postrun/internal/collection"
)

// response is what test scripts see of the HTTP exchange.
type response struct {
	code    int
	reason  string
	header  http.Header
	body    []byte
	elapsed time.Duration
}

// itemState is shared by every script of one item execution. Each script gets
// a fresh runtime; results accumulate here.
type itemState struct {
	item       collection.Item
	iteration  int
	iterations int
	scopes     *scopes
	request    *collection.Request
	sentURL    string
	response   *response
	assertions []Assertion
	console    []string
	logger     pslog.Base

	nextSet  bool
	nextName string
	nextStop bool
	skip     bool
}

func (st *itemState) setNext(v goja.Value) {
	st.nextSet = true
	if isUndefined(v) || goja.IsNull(v) {
		st.nextStop = true
		st.nextName = ""
		return
	}
	st.nextStop = false
	st.nextName = v.String()
}

type sandbox struct {
	vm     *goja.Runtime
	st     *itemState
	event  string
	reqObj *goja.Object
	tests  *goja.Object
}

// run executes one script for the given event (prerequest or test).
func (st *itemState) run(event, src string) error {
	sb := &sandbox{vm: goja.New(), st: st, event: event}
	sb.install()
	_, err := sb.vm.RunString(src)
	sb.collectLegacyTests()
	if event == "prerequest" {
		sb.applyRequest()
	}
	return err
}

func (sb *sandbox) install() {
	vm := sb.vm
	st := sb.st

	sb.registerConsole()

	pm := vm.NewObject()
	pm.Set("test", sb.testFunc())
	pm.Set("expect", expectFactory(vm))
	pm.Set("info", sb.infoObject())
	pm.Set("environment", sb.varScope(func() map[string]string { return st.scopes.environment }))
	pm.Set("collectionVariables", sb.varScope(func() map[string]string { return st.scopes.collection }))
	pm.Set("globals", sb.varScope(func() map[string]string { return st.scopes.globals }))
	pm.Set("variables", sb.variablesObject())
	pm.Set("iterationData", sb.iterationDataObject())
	sb.reqObj = sb.requestObject()
	pm.Set("request", sb.reqObj)
	execution := vm.NewObject()
	execution.Set("setNextRequest", func(call goja.FunctionCall) goja.Value {
		st.setNext(call.Argument(0))
		return goja.Undefined()
	})
	execution.Set("skipRequest", func(goja.FunctionCall) goja.Value {
		if sb.event == "prerequest" {
			st.skip = true
		}
		return goja.Undefined()
	})
	pm.Set("execution", execution)
	if st.response != nil {
		pm.Set("response", sb.responseObject())
	}
	vm.Set("pm", pm)

	sb.registerLegacy()
}

func (sb *sandbox) registerConsole() {
	vm := sb.vm
	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		console.Set(level, func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				if isObject(arg) && typeOf(arg) != "function" {
					parts[i] = inspect(vm, arg)
					continue
				}
				parts[i] = arg.String()
			}
			line := strings.Join(parts, " ")
			sb.st.console = append(sb.st.console, line)
			if sb.st.logger != nil {
				sb.st.logger.Debug("console", "item", sb.st.item.Name, "level", level, "msg", line)
			}
			return goja.Undefined()
		})
	}
	vm.Set("console", console)
}

func (sb *sandbox) testFunc() *goja.Object {
	vm := sb.vm
	done := vm.ToValue(func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	test := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		fn, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			sb.st.assertions = append(sb.st.assertions, Assertion{Name: name, Passed: true, Skipped: true})
			return goja.Undefined()
		}
		a := Assertion{Name: name, Passed: true}
		if _, err := fn(goja.Undefined(), done); err != nil {
			_, msg := jsError(err)
			a.Passed = false
			a.Error = msg
		}
		sb.st.assertions = append(sb.st.assertions, a)
		return goja.Undefined()
	}).ToObject(vm)
	test.Set("skip", func(call goja.FunctionCall) goja.Value {
		sb.st.assertions = append(sb.st.assertions, Assertion{Name: call.Argument(0).String(), Passed: true, Skipped: true})
		return goja.Undefined()
	})
	return test
}

func (sb *sandbox) infoObject() *goja.Object {
	info := sb.vm.NewObject()
	info.Set("iteration", sb.st.iteration)
	info.Set("iterationCount", sb.st.iterations)
	info.Set("requestName", sb.st.item.Name)
	info.Set("requestId", sb.st.item.ID)
	info.Set("eventName", sb.event)
	return info
}

// varScope exposes one variable layer. store is called on every access so
// layers that are swapped between items stay current.
func (sb *sandbox) varScope(store func() map[string]string) *goja.Object {
	vm := sb.vm
	obj := vm.NewObject()
	obj.Set("get", func(call goja.FunctionCall) goja.Value {
		if v, ok := store()[call.Argument(0).String()]; ok {
			return vm.ToValue(v)
		}
		return goja.Undefined()
	})
	obj.Set("set", func(call goja.FunctionCall) goja.Value {
		store()[call.Argument(0).String()] = scriptValue(call.Argument(1).Export())
		return goja.Undefined()
	})
	obj.Set("unset", func(call goja.FunctionCall) goja.Value {
		delete(store(), call.Argument(0).String())
		return goja.Undefined()
	})
	obj.Set("has", func(call goja.FunctionCall) goja.Value {
		_, ok := store()[call.Argument(0).String()]
		return vm.ToValue(ok)
	})
	obj.Set("toObject", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(maps.Clone(store()))
	})
	obj.Set("clear", func(goja.FunctionCall) goja.Value {
		clear(store())
		return goja.Undefined()
	})
	obj.Set("replaceIn", func(call goja.FunctionCall) goja.Value {
		m := store()
		return vm.ToValue(collection.Substitute(call.Argument(0).String(), func(k string) (string, bool) {
			v, ok := m[k]
			return v, ok
		}))
	})
	return obj
}

func (sb *sandbox) variablesObject() *goja.Object {
	vm := sb.vm
	s := sb.st.scopes
	obj := sb.varScope(func() map[string]string { return s.local })
	obj.Set("get", func(call goja.FunctionCall) goja.Value {
		if v, ok := s.get(call.Argument(0).String()); ok {
			return vm.ToValue(v)
		}
		return goja.Undefined()
	})
	obj.Set("has", func(call goja.FunctionCall) goja.Value {
		_, ok := s.get(call.Argument(0).String())
		return vm.ToValue(ok)
	})
	obj.Set("toObject", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(s.merged())
	})
	obj.Set("replaceIn", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(s.expand(call.Argument(0).String()))
	})
	return obj
}

func (sb *sandbox) iterationDataObject() *goja.Object {
	vm := sb.vm
	s := sb.st.scopes
	obj := vm.NewObject()
	obj.Set("get", func(call goja.FunctionCall) goja.Value {
		v, ok := s.data[call.Argument(0).String()]
		if !ok {
			return goja.Undefined()
		}
		return toJSValue(vm, v)
	})
	obj.Set("has", func(call goja.FunctionCall) goja.Value {
		_, ok := s.data[call.Argument(0).String()]
		return vm.ToValue(ok)
	})
	obj.Set("unset", func(call goja.FunctionCall) goja.Value {
		key := call.Argument(0).String()
		delete(s.data, key)
		delete(s.dataStr, key)
		return goja.Undefined()
	})
	all := func(goja.FunctionCall) goja.Value { return toJSValue(vm, map[string]any(s.data)) }
	obj.Set("toObject", all)
	obj.Set("toJSON", all)
	return obj
}

func (sb *sandbox) requestObject() *goja.Object {
	vm := sb.vm
	st := sb.st
	req := st.request
	obj := vm.NewObject()
	obj.Set("method", req.Method)
	obj.Set("name", st.item.Name)
	obj.Set("id", st.item.ID)

	urlObj := vm.NewObject()
	urlObj.Set("toString", func(goja.FunctionCall) goja.Value {
		if st.sentURL != "" {
			return vm.ToValue(st.sentURL)
		}
		return vm.ToValue(st.scopes.expand(req.URL.Raw))
	})
	urlObj.Set("update", func(call goja.FunctionCall) goja.Value {
		req.URL = collection.URL{Raw: call.Argument(0).String()}
		return goja.Undefined()
	})
	obj.Set("url", urlObj)

	headers := vm.NewObject()
	find := func(key string) int {
		return slices.IndexFunc(req.Header, func(h collection.Header) bool {
			return !h.Disabled && strings.EqualFold(h.Key, key)
		})
	}
	headerArgs := func(call goja.FunctionCall) (string, string) {
		if o, ok := call.Argument(0).(*goja.Object); ok && isObject(o) {
			return valueString(o.Get("key")), valueString(o.Get("value"))
		}
		return call.Argument(0).String(), call.Argument(1).String()
	}
	headers.Set("get", func(call goja.FunctionCall) goja.Value {
		if i := find(call.Argument(0).String()); i >= 0 {
			return vm.ToValue(req.Header[i].Value)
		}
		return goja.Undefined()
	})
	headers.Set("has", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(find(call.Argument(0).String()) >= 0)
	})
	headers.Set("add", func(call goja.FunctionCall) goja.Value {
		k, v := headerArgs(call)
		req.Header = append(req.Header, collection.Header{Key: k, Value: v})
		return goja.Undefined()
	})
	headers.Set("upsert", func(call goja.FunctionCall) goja.Value {
		k, v := headerArgs(call)
		if i := find(k); i >= 0 {
			req.Header[i].Value = v
			return goja.Undefined()
		}
		req.Header = append(req.Header, collection.Header{Key: k, Value: v})
		return goja.Undefined()
	})
	headers.Set("remove", func(call goja.FunctionCall) goja.Value {
		key := call.Argument(0).String()
		req.Header = slices.DeleteFunc(req.Header, func(h collection.Header) bool {
			return strings.EqualFold(h.Key, key)
		})
		return goja.Undefined()
	})
	headers.Set("toObject", func(goja.FunctionCall) goja.Value {
		out := map[string]string{}
		for _, h := range req.Header {
			if !h.Disabled {
				out[h.Key] = h.Value
			}
		}
		return vm.ToValue(out)
	})
	obj.Set("headers", headers)

	body := vm.NewObject()
	if req.Body != nil {
		body.Set("mode", req.Body.Mode)
		body.Set("raw", req.Body.Raw)
	}
	body.Set("toString", func(goja.FunctionCall) goja.Value {
		if req.Body == nil {
			return vm.ToValue("")
		}
		return vm.ToValue(req.Body.Raw)
	})
	body.Set("update", func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		next := collection.Body{Mode: "raw"}
		if req.Body != nil {
			next.Options = req.Body.Options
		}
		if o, ok := arg.(*goja.Object); ok && isObject(o) && typeOf(o) == "object" {
			if m := o.Get("mode"); m != nil && !isUndefined(m) {
				next.Mode = m.String()
			}
			if r := o.Get("raw"); r != nil && !isUndefined(r) {
				next.Raw = r.String()
			}
		} else {
			next.Raw = arg.String()
		}
		req.Body = &next
		body.Set("mode", next.Mode)
		body.Set("raw", next.Raw)
		return goja.Undefined()
	})
	obj.Set("body", body)
	return obj
}

// applyRequest copies plain property edits (method, body.raw) back to the draft.
func (sb *sandbox) applyRequest() {
	req := sb.st.request
	if m := sb.reqObj.Get("method"); m != nil && !isUndefined(m) {
		if method := strings.ToUpper(m.String()); method != "" {
			req.Method = method
		}
	}
	b, ok := sb.reqObj.Get("body").(*goja.Object)
	if !ok || req.Body == nil {
		return
	}
	if raw := b.Get("raw"); raw != nil && !isUndefined(raw) && raw.String() != req.Body.Raw {
		next := *req.Body
		next.Raw = raw.String()
		req.Body = &next
	}
}

func (sb *sandbox) responseObject() *goja.Object {
	vm := sb.vm
	res := sb.st.response
	obj := vm.NewObject()
	obj.Set("code", res.code)
	obj.Set("status", res.reason)
	obj.Set("responseTime", res.elapsed.Milliseconds())
	obj.Set("responseSize", len(res.body))
	obj.Set("reason", func(goja.FunctionCall) goja.Value { return vm.ToValue(res.reason) })

	headers := vm.NewObject()
	headers.Set("get", func(call goja.FunctionCall) goja.Value {
		key := call.Argument(0).String()
		if vals := res.header.Values(key); len(vals) > 0 {
			return vm.ToValue(strings.Join(vals, ", "))
		}
		return goja.Undefined()
	})
	headers.Set("has", func(call goja.FunctionCall) goja.Value {
		vals := res.header.Values(call.Argument(0).String())
		if len(call.Arguments) > 1 {
			return vm.ToValue(slices.Contains(vals, call.Arguments[1].String()))
		}
		return vm.ToValue(len(vals) > 0)
	})
	headers.Set("toObject", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(headerMap(res.header))
	})
	headers.Set("count", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(len(res.header))
	})
	obj.Set("headers", headers)

	text := string(res.body)
	obj.Set("text", func(goja.FunctionCall) goja.Value { return vm.ToValue(text) })
	obj.Set("json", func(goja.FunctionCall) goja.Value { return parseJSON(vm, text) })
	obj.Set("to", sb.responseChain(false))
	return obj
}

// responseChain implements pm.response.to.* assertions.
func (sb *sandbox) responseChain(neg bool) *goja.Object {
	vm := sb.vm
	res := sb.st.response
	obj := vm.NewObject()
	e := expectation{vm: vm, neg: neg}
	check := func(ok bool, msg, negMsg string) {
		if neg {
			ok = !ok
			msg = negMsg
		}
		if !ok {
			panic(assertionError(vm, msg))
		}
	}
	for _, w := range chainWords {
		e.getter(obj, w, func() goja.Value { return obj })
	}
	e.getter(obj, "not", func() goja.Value { return sb.responseChain(!neg) })

	codeIs := func(name string, ok func(int) bool, want string) {
		e.getter(obj, name, func() goja.Value {
			check(ok(res.code),
				fmt.Sprintf("expected response code to be %s but found %d", want, res.code),
				fmt.Sprintf("expected response code to not be %s but found %d", want, res.code))
			return obj
		})
	}
	exact := func(c int) func(int) bool { return func(got int) bool { return got == c } }
	class := func(c int) func(int) bool { return func(got int) bool { return got/100 == c } }
	codeIs("ok", exact(http.StatusOK), "200")
	codeIs("accepted", exact(http.StatusAccepted), "202")
	codeIs("badRequest", exact(http.StatusBadRequest), "400")
	codeIs("unauthorized", exact(http.StatusUnauthorized), "401")
	codeIs("forbidden", exact(http.StatusForbidden), "403")
	codeIs("notFound", exact(http.StatusNotFound), "404")
	codeIs("rateLimited", exact(http.StatusTooManyRequests), "429")
	codeIs("info", class(1), "1XX")
	codeIs("success", class(2), "2XX")
	codeIs("redirection", class(3), "3XX")
	codeIs("clientError", class(4), "4XX")
	codeIs("serverError", class(5), "5XX")
	codeIs("error", func(got int) bool { return got >= 400 && got < 600 }, "4XX or 5XX")

	e.getter(obj, "json", func() goja.Value {
		var v any
		err := json.Unmarshal(sb.st.response.body, &v)
		check(err == nil, "expected response body to be a valid json", "expected response body to not be a valid json")
		return obj
	})
	e.getter(obj, "withBody", func() goja.Value {
		check(len(res.body) > 0, "expected response to have content in body", "expected response to not have content in body")
		return obj
	})

	obj.Set("status", func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		if typeOf(arg) == "string" {
			want := arg.String()
			check(strings.EqualFold(res.reason, want),
				fmt.Sprintf("expected response to have status reason '%s' but got '%s'", want, res.reason),
				fmt.Sprintf("expected response to not have status reason '%s'", want))
			return obj
		}
		want := int(arg.ToInteger())
		check(res.code == want,
			fmt.Sprintf("expected response to have status code %d but got %d", want, res.code),
			fmt.Sprintf("expected response to not have status code %d", want))
		return obj
	})
	obj.Set("header", func(call goja.FunctionCall) goja.Value {
		key := call.Argument(0).String()
		vals := res.header.Values(key)
		if len(call.Arguments) < 2 {
			check(len(vals) > 0,
				fmt.Sprintf("expected response to have header with key '%s'", key),
				fmt.Sprintf("expected response to not have header with key '%s'", key))
			return obj
		}
		want := call.Arguments[1].String()
		got := strings.Join(vals, ", ")
		check(got == want,
			fmt.Sprintf("expected '%s' response header to be '%s' but got '%s'", key, want, got),
			fmt.Sprintf("expected '%s' response header to not be '%s'", key, want))
		return obj
	})
	obj.Set("body", func(call goja.FunctionCall) goja.Value {
		text := string(res.body)
		if len(call.Arguments) == 0 {
			check(len(res.body) > 0, "expected response to have content in body", "expected response to not have content in body")
			return obj
		}
		arg := call.Arguments[0]
		if typeOf(arg) == "string" {
			check(text == arg.String(),
				fmt.Sprintf("expected response body to equal '%s' but got '%s'", arg.String(), text),
				fmt.Sprintf("expected response body to not equal '%s'", arg.String()))
			return obj
		}
		var got any
		if err := json.Unmarshal(res.body, &got); err != nil {
			check(false, "expected response body to be a valid json but got error "+err.Error(), "expected response body to not be a valid json")
			return obj
		}
		check(jsonEqual(got, arg.Export()),
			"expected response body json to equal "+inspect(vm, arg)+" but got "+text,
			"expected response body json to not equal "+inspect(vm, arg))
		return obj
	})
	obj.Set("jsonBody", func(call goja.FunctionCall) goja.Value {
		var got any
		if err := json.Unmarshal(res.body, &got); err != nil {
			check(false, "expected response body to be a valid json but got error "+err.Error(), "expected response body to not be a valid json")
			return obj
		}
		if len(call.Arguments) == 0 {
			check(true, "", "expected response body to not be a valid json")
			return obj
		}
		path := call.Arguments[0].String()
		val, found := jsonPath(got, path)
		if len(call.Arguments) < 2 {
			check(found,
				fmt.Sprintf("expected response body json to have path '%s'", path),
				fmt.Sprintf("expected response body json to not have path '%s'", path))
			return obj
		}
		want := call.Arguments[1]
		check(found && jsonEqual(val, want.Export()),
			fmt.Sprintf("expected response body json at '%s' to contain %s", path, inspect(vm, want)),
			fmt.Sprintf("expected response body json at '%s' to not contain %s", path, inspect(vm, want)))
		return obj
	})
	obj.Set("jsonSchema", func(call goja.FunctionCall) goja.Value {
		var got any
		err := json.Unmarshal(res.body, &got)
		if err == nil {
			err = validateJSONSchema(call.Argument(0).Export(), got)
		}
		msg := "expected response body to satisfy schema"
		if err != nil {
			msg += " but found error: " + oneLine(err.Error())
		}
		check(err == nil, msg, "expected response body to not satisfy schema")
		return obj
	})
	return obj
}

// registerLegacy installs the pre-pm globals still found in older collections.
func (sb *sandbox) registerLegacy() {
	vm := sb.vm
	st := sb.st
	sb.tests = vm.NewObject()
	vm.Set("tests", sb.tests)

	postman := vm.NewObject()
	postman.Set("setNextRequest", func(call goja.FunctionCall) goja.Value {
		st.setNext(call.Argument(0))
		return goja.Undefined()
	})
	setter := func(store map[string]string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			store[call.Argument(0).String()] = scriptValue(call.Argument(1).Export())
			return goja.Undefined()
		}
	}
	getter := func(store map[string]string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			if v, ok := store[call.Argument(0).String()]; ok {
				return vm.ToValue(v)
			}
			return goja.Undefined()
		}
	}
	clearer := func(store map[string]string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			delete(store, call.Argument(0).String())
			return goja.Undefined()
		}
	}
	postman.Set("setEnvironmentVariable", setter(st.scopes.environment))
	postman.Set("getEnvironmentVariable", getter(st.scopes.environment))
	postman.Set("clearEnvironmentVariable", clearer(st.scopes.environment))
	postman.Set("setGlobalVariable", setter(st.scopes.globals))
	postman.Set("getGlobalVariable", getter(st.scopes.globals))
	postman.Set("clearGlobalVariable", clearer(st.scopes.globals))
	vm.Set("postman", postman)

	vm.Set("environment", maps.Clone(st.scopes.environment))
	vm.Set("globals", maps.Clone(st.scopes.globals))
	vm.Set("data", toJSValue(vm, map[string]any(st.scopes.data)))
	vm.Set("iteration", st.iteration)

	tv4 := vm.NewObject()
	tv4.Set("error", goja.Null())
	tv4.Set("validate", func(call goja.FunctionCall) goja.Value {
		err := validateJSONSchema(call.Argument(1).Export(), call.Argument(0).Export())
		if err != nil {
			tv4.Set("error", map[string]any{"message": oneLine(err.Error())})
			return vm.ToValue(false)
		}
		tv4.Set("error", goja.Null())
		return vm.ToValue(true)
	})
	vm.Set("tv4", tv4)

	if res := st.response; res != nil {
		vm.Set("responseBody", string(res.body))
		vm.Set("responseTime", res.elapsed.Milliseconds())
		code := vm.NewObject()
		code.Set("code", res.code)
		code.Set("name", res.reason)
		vm.Set("responseCode", code)
		vm.Set("responseHeaders", headerMap(res.header))
	}
}

// collectLegacyTests turns tests["name"] = bool entries into assertions.
func (sb *sandbox) collectLegacyTests() {
	if sb.tests == nil {
		return
	}
	for _, k := range sb.tests.Keys() {
		v := sb.tests.Get(k)
		a := Assertion{Name: k, Passed: v.ToBoolean()}
		if !a.Passed {
			a.Error = fmt.Sprintf("expected %s to be truthy", inspect(sb.vm, v))
		}
		sb.st.assertions = append(sb.st.assertions, a)
	}
}

// toJSValue marshals a Go value to JSON and re-parses it inside goja so the
// script sees native strings, arrays and objects.
func toJSValue(vm *goja.Runtime, v any) goja.Value {
	b, err := json.Marshal(v)
	if err != nil {
		return vm.ToValue(v)
	}
	return parseJSON(vm, string(b))
}

// parseJSON calls JSON.parse so syntax errors surface as script SyntaxErrors.
func parseJSON(vm *goja.Runtime, text string) goja.Value {
	jsonObj := vm.Get("JSON").ToObject(vm)
	parseFn, ok := goja.AssertFunction(jsonObj.Get("parse"))
	if !ok {
		panic(vm.NewGoError(errors.New("JSON.parse missing")))
	}
	out, err := parseFn(jsonObj, vm.ToValue(text))
	if err != nil {
		throw(vm, err)
	}
	return out
}

// jsError splits a script exception into its error name and message.
func jsError(err error) (string, string) {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		if obj, ok := ex.Value().(*goja.Object); ok && isObject(obj) {
			msg := obj.Get("message")
			if msg != nil && !isUndefined(msg) {
				name := ""
				if n := obj.Get("name"); n != nil && !isUndefined(n) {
					name = n.String()
				}
				return name, msg.String()
			}
		}
		return "", ex.Value().String()
	}
	var syn *goja.CompilerSyntaxError
	if errors.As(err, &syn) {
		return "SyntaxError", syn.Message
	}
	return "", err.Error()
}

// jsonPath walks dotted paths with optional [n] indexes, e.g. data.items[0].id.
func jsonPath(v any, path string) (any, bool) {
	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")
	cur := v
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			var idx int
			if _, err := fmt.Sscanf(part, "%d", &idx); err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func valueString(v goja.Value) string {
	if isUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

func jsonEqual(a, b any) bool {
	ab, errA := json.Marshal(normalize(a))
	bb, errB := json.Marshal(normalize(b))
	return errA == nil && errB == nil && string(ab) == string(bb)
}
