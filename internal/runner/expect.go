package runner

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/dop251/goja"
)

// chainWords are no-op properties that only improve readability.
var chainWords = []string{"to", "be", "been", "is", "that", "which", "and", "has", "have", "with", "at", "of", "same", "does", "but", "own"}

// expectation is one link of a pm.expect chain. Flags are copied into every
// new link so `not` and `deep` apply to the assertion that ends the chain.
type expectation struct {
	vm      *goja.Runtime
	subject goja.Value
	neg     bool
	deep    bool
	any     bool
}

func expectFactory(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		e := expectation{vm: vm, subject: call.Argument(0)}
		return e.object()
	}
}

func (e expectation) object() *goja.Object {
	vm := e.vm
	obj := vm.NewObject()
	for _, w := range chainWords {
		e.getter(obj, w, func() goja.Value { return obj })
	}
	e.getter(obj, "not", func() goja.Value {
		n := e
		n.neg = !e.neg
		return n.object()
	})
	e.getter(obj, "deep", func() goja.Value {
		n := e
		n.deep = true
		return n.object()
	})
	e.getter(obj, "any", func() goja.Value {
		n := e
		n.any = true
		return n.object()
	})
	e.getter(obj, "all", func() goja.Value {
		n := e
		n.any = false
		return n.object()
	})

	// property assertions
	e.getter(obj, "ok", func() goja.Value {
		e.assert(e.subject.ToBoolean(), "expected %s to be truthy", "expected %s to be falsy")
		return obj
	})
	e.getter(obj, "true", func() goja.Value {
		e.assert(e.subject.StrictEquals(vm.ToValue(true)), "expected %s to be true", "expected %s to not be true")
		return obj
	})
	e.getter(obj, "false", func() goja.Value {
		e.assert(e.subject.StrictEquals(vm.ToValue(false)), "expected %s to be false", "expected %s to not be false")
		return obj
	})
	e.getter(obj, "null", func() goja.Value {
		e.assert(goja.IsNull(e.subject), "expected %s to be null", "expected %s not to be null")
		return obj
	})
	e.getter(obj, "undefined", func() goja.Value {
		e.assert(isUndefined(e.subject), "expected %s to be undefined", "expected %s not to be undefined")
		return obj
	})
	e.getter(obj, "exist", func() goja.Value {
		e.assert(!isUndefined(e.subject) && !goja.IsNull(e.subject), "expected %s to exist", "expected %s to not exist")
		return obj
	})
	e.getter(obj, "empty", func() goja.Value {
		e.assert(isEmpty(e.subject), "expected %s to be empty", "expected %s not to be empty")
		return obj
	})
	e.getter(obj, "NaN", func() goja.Value {
		e.assert(math.IsNaN(e.subject.ToFloat()), "expected %s to be NaN", "expected %s not to be NaN")
		return obj
	})
	e.getter(obj, "length", func() goja.Value {
		return e.lengthChain(obj)
	})

	equal := func(call goja.FunctionCall) goja.Value {
		want := call.Argument(0)
		var ok bool
		if e.deep {
			ok = deepEqual(e.subject, want)
		} else {
			ok = e.subject.StrictEquals(want)
		}
		e.assertf(ok, "expected %s to equal %s", "expected %s to not equal %s", inspect(vm, want))
		return obj
	}
	eql := func(call goja.FunctionCall) goja.Value {
		want := call.Argument(0)
		e.assertf(deepEqual(e.subject, want), "expected %s to deeply equal %s", "expected %s to not deeply equal %s", inspect(vm, want))
		return obj
	}
	e.methods(obj, equal, "equal", "equals", "eq")
	e.methods(obj, eql, "eql", "eqls")

	e.methods(obj, e.compare(obj, "above", func(a, b float64) bool { return a > b }), "above", "gt", "greaterThan")
	e.methods(obj, e.compare(obj, "below", func(a, b float64) bool { return a < b }), "below", "lt", "lessThan")
	e.methods(obj, e.compare(obj, "at least", func(a, b float64) bool { return a >= b }), "least", "gte")
	e.methods(obj, e.compare(obj, "at most", func(a, b float64) bool { return a <= b }), "most", "lte")
	obj.Set("within", func(call goja.FunctionCall) goja.Value {
		lo, hi := call.Argument(0).ToFloat(), call.Argument(1).ToFloat()
		got := e.subject.ToFloat()
		e.assertf(got >= lo && got <= hi, "expected %s to be within %s", "expected %s to not be within %s", fmt.Sprintf("%v..%v", lo, hi))
		return obj
	})

	typeCheck := func(call goja.FunctionCall) goja.Value {
		want := strings.ToLower(call.Argument(0).String())
		e.assertf(typeOf(e.subject) == want, "expected %s to be a %s", "expected %s not to be a %s", want)
		return obj
	}
	e.methods(obj, typeCheck, "a", "an")

	include := func(call goja.FunctionCall) goja.Value {
		want := call.Argument(0)
		e.assertf(e.includes(want), "expected %s to include %s", "expected %s to not include %s", inspect(vm, want))
		return obj
	}
	e.methods(obj, include, "include", "includes", "contain", "contains")

	obj.Set("property", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		var prop goja.Value
		if o, ok := e.subject.(*goja.Object); ok && !goja.IsNull(e.subject) {
			prop = o.Get(name)
		}
		has := prop != nil
		if len(call.Arguments) > 1 {
			want := call.Arguments[1]
			matches := has && (prop.StrictEquals(want) || (e.deep && deepEqual(prop, want)))
			e.assertf(matches, "expected %s to have property '"+name+"' of %s", "expected %s to not have property '"+name+"' of %s", inspect(vm, want))
		} else {
			e.assertf(has, "expected %s to have property '%s'", "expected %s to not have property '%s'", name)
		}
		if !has || e.neg {
			return obj
		}
		n := e
		n.subject = prop
		return n.object()
	})
	obj.Set("lengthOf", func(call goja.FunctionCall) goja.Value {
		want := call.Argument(0).ToInteger()
		got := lengthOf(e.subject)
		e.assertf(got == want, "expected %s to have a length of %s", "expected %s to not have a length of %s", fmt.Sprint(want))
		return obj
	})
	obj.Set("match", func(call goja.FunctionCall) goja.Value {
		e.assertf(e.matches(call.Argument(0)), "expected %s to match %s", "expected %s not to match %s", call.Argument(0).String())
		return obj
	})
	obj.Set("oneOf", func(call goja.FunctionCall) goja.Value {
		list := call.Argument(0)
		found := false
		for _, item := range arrayItems(list) {
			if item.StrictEquals(e.subject) || (e.deep && deepEqual(item, e.subject)) {
				found = true
				break
			}
		}
		e.assertf(found, "expected %s to be one of %s", "expected %s to not be one of %s", inspect(vm, list))
		return obj
	})
	keys := func(call goja.FunctionCall) goja.Value {
		var want []string
		if len(call.Arguments) == 1 {
			if items := arrayItems(call.Arguments[0]); items != nil {
				for _, it := range items {
					want = append(want, it.String())
				}
			}
		}
		if want == nil {
			for _, a := range call.Arguments {
				want = append(want, a.String())
			}
		}
		e.assertf(e.hasKeys(want), "expected %s to have keys %s", "expected %s to not have keys %s", strings.Join(want, ", "))
		return obj
	}
	e.methods(obj, keys, "keys", "key")
	obj.Set("jsonSchema", func(call goja.FunctionCall) goja.Value {
		err := validateJSONSchema(call.Argument(0).Export(), e.subject.Export())
		msg := "expected data to satisfy schema"
		if err != nil {
			msg += " but found error: " + oneLine(err.Error())
		}
		e.assert(err == nil, msg, "expected data to not satisfy schema")
		return obj
	})
	return obj
}

// getter defines a property whose access runs fn, chai style.
func (e expectation) getter(obj *goja.Object, name string, fn func() goja.Value) {
	get := e.vm.ToValue(func(goja.FunctionCall) goja.Value { return fn() })
	_ = obj.DefineAccessorProperty(name, get, nil, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

func (e expectation) methods(obj *goja.Object, fn func(goja.FunctionCall) goja.Value, names ...string) {
	for _, n := range names {
		_ = obj.Set(n, fn)
	}
}

func (e expectation) compare(obj *goja.Object, word string, cmp func(a, b float64) bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		want := call.Argument(0).ToFloat()
		e.assertf(cmp(e.subject.ToFloat(), want), "expected %s to be "+word+" %s", "expected %s to not be "+word+" %s", fmt.Sprint(want))
		return obj
	}
}

// lengthChain backs both `.length(n)` and `.length.above(n)` style calls.
func (e expectation) lengthChain(parent *goja.Object) goja.Value {
	vm := e.vm
	got := lengthOf(e.subject)
	check := func(word string, ok bool, want int64) {
		e.assertf(ok, "expected %s to have a length "+word+" %s", "expected %s to not have a length "+word+" %s", fmt.Sprint(want))
	}
	fn := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		want := call.Argument(0).ToInteger()
		check("of", got == want, want)
		return parent
	}).ToObject(vm)
	set := func(word string, cmp func(a, b int64) bool, names ...string) {
		for _, n := range names {
			_ = fn.Set(n, func(call goja.FunctionCall) goja.Value {
				want := call.Argument(0).ToInteger()
				check(word, cmp(got, want), want)
				return parent
			})
		}
	}
	set("above", func(a, b int64) bool { return a > b }, "above", "gt", "greaterThan")
	set("below", func(a, b int64) bool { return a < b }, "below", "lt", "lessThan")
	set("at least", func(a, b int64) bool { return a >= b }, "least", "gte")
	set("at most", func(a, b int64) bool { return a <= b }, "most", "lte")
	set("of", func(a, b int64) bool { return a == b }, "equal", "eq")
	return fn
}

// assert throws an AssertionError when ok does not hold (or holds, under not).
// msg and negMsg take the inspected subject as their only verb.
func (e expectation) assert(ok bool, msg, negMsg string) {
	if e.neg {
		ok = !ok
		msg = negMsg
	}
	if ok {
		return
	}
	if strings.Contains(msg, "%s") {
		msg = fmt.Sprintf(msg, inspect(e.vm, e.subject))
	}
	panic(assertionError(e.vm, msg))
}

func (e expectation) assertf(ok bool, msg, negMsg, arg string) {
	if e.neg {
		ok = !ok
		msg = negMsg
	}
	if ok {
		return
	}
	panic(assertionError(e.vm, fmt.Sprintf(msg, inspect(e.vm, e.subject), arg)))
}

func (e expectation) includes(want goja.Value) bool {
	subject := e.subject
	if isUndefined(subject) || goja.IsNull(subject) {
		return false
	}
	if items := arrayItems(subject); items != nil {
		for _, it := range items {
			if it.StrictEquals(want) || ((e.deep || isObject(want)) && deepEqual(it, want)) {
				return true
			}
		}
		return false
	}
	if o, ok := subject.(*goja.Object); ok {
		wantObj, ok := want.(*goja.Object)
		if !ok {
			return strings.Contains(subject.String(), want.String())
		}
		for _, k := range wantObj.Keys() {
			got := o.Get(k)
			if got == nil || !(got.StrictEquals(wantObj.Get(k)) || deepEqual(got, wantObj.Get(k))) {
				return false
			}
		}
		return true
	}
	return strings.Contains(subject.String(), want.String())
}

func (e expectation) matches(pattern goja.Value) bool {
	vm := e.vm
	re, ok := pattern.(*goja.Object)
	if !ok || re.ClassName() != "RegExp" {
		ctor := vm.Get("RegExp")
		obj, err := vm.New(ctor, pattern)
		if err != nil {
			throw(vm, err)
		}
		re = obj
	}
	test, ok := goja.AssertFunction(re.Get("test"))
	if !ok {
		return false
	}
	res, err := test(re, vm.ToValue(e.subject.String()))
	if err != nil {
		throw(vm, err)
	}
	return res.ToBoolean()
}

func (e expectation) hasKeys(want []string) bool {
	o, ok := e.subject.(*goja.Object)
	if !ok || goja.IsNull(e.subject) {
		return false
	}
	have := map[string]bool{}
	for _, k := range o.Keys() {
		have[k] = true
	}
	if e.any {
		for _, k := range want {
			if have[k] {
				return true
			}
		}
		return false
	}
	for _, k := range want {
		if !have[k] {
			return false
		}
	}
	return len(have) == len(want)
}

// assertionError builds an Error object named AssertionError.
func assertionError(vm *goja.Runtime, msg string) goja.Value {
	obj, err := vm.New(vm.Get("Error"), vm.ToValue(msg))
	if err != nil {
		return vm.NewGoError(fmt.Errorf("%s", msg))
	}
	_ = obj.Set("name", ErrAssertion)
	return obj
}

// throw rethrows err inside the running script.
func throw(vm *goja.Runtime, err error) {
	if ex, ok := err.(*goja.Exception); ok {
		panic(ex)
	}
	panic(vm.NewGoError(err))
}

func isUndefined(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v)
}

func isObject(v goja.Value) bool {
	_, ok := v.(*goja.Object)
	return ok && !goja.IsNull(v)
}

func typeOf(v goja.Value) string {
	switch {
	case isUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	if o, ok := v.(*goja.Object); ok {
		switch o.ClassName() {
		case "Array":
			return "array"
		case "Function":
			return "function"
		case "RegExp":
			return "regexp"
		case "Date":
			return "date"
		}
		return "object"
	}
	switch v.Export().(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case int64, float64:
		return "number"
	}
	return "object"
}

func arrayItems(v goja.Value) []goja.Value {
	o, ok := v.(*goja.Object)
	if !ok || goja.IsNull(v) || o.ClassName() != "Array" {
		return nil
	}
	n := o.Get("length").ToInteger()
	out := make([]goja.Value, 0, n)
	for i := int64(0); i < n; i++ {
		out = append(out, o.Get(fmt.Sprint(i)))
	}
	return out
}

func lengthOf(v goja.Value) int64 {
	if isUndefined(v) || goja.IsNull(v) {
		return 0
	}
	if s, ok := v.Export().(string); ok {
		return int64(len([]rune(s)))
	}
	if o, ok := v.(*goja.Object); ok {
		if l := o.Get("length"); l != nil && !isUndefined(l) {
			return l.ToInteger()
		}
		return int64(len(o.Keys()))
	}
	return 0
}

func isEmpty(v goja.Value) bool {
	if isUndefined(v) || goja.IsNull(v) {
		return true
	}
	if s, ok := v.Export().(string); ok {
		return s == ""
	}
	if o, ok := v.(*goja.Object); ok {
		if o.ClassName() == "Array" {
			return o.Get("length").ToInteger() == 0
		}
		return len(o.Keys()) == 0
	}
	return false
}

// deepEqual compares two script values structurally via their JSON form.
func deepEqual(a, b goja.Value) bool {
	if isUndefined(a) || isUndefined(b) {
		return isUndefined(a) && isUndefined(b)
	}
	return reflect.DeepEqual(normalize(a.Export()), normalize(b.Export()))
}

func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// inspect renders a value for assertion messages.
func inspect(vm *goja.Runtime, v goja.Value) string {
	switch typeOf(v) {
	case "undefined":
		return "undefined"
	case "null":
		return "null"
	case "string":
		return "'" + v.String() + "'"
	case "number", "boolean", "regexp", "function":
		return v.String()
	}
	stringify, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify"))
	if !ok {
		return v.String()
	}
	out, err := stringify(goja.Undefined(), v)
	if err != nil || isUndefined(out) {
		return v.String()
	}
	return out.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
