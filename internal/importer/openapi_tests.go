package importer

import (
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// strictness selects how much of a response schema becomes field checks.
// loose only checks that required fields are present. standard adds type
// and constraint checks per field. strict also follows nested objects and
// array items.
type strictness int

const (
	strictLoose strictness = iota
	strictStandard
	strictFull
)

func parseStrictness(level string) strictness {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "loose":
		return strictLoose
	case "strict":
		return strictFull
	}
	return strictStandard
}

const maxSchemaDepth = 12

// jsonSchemaFor renders an OpenAPI schema as a self-contained JSON Schema
// document. References are inlined; recursion stops at maxSchemaDepth.
func jsonSchemaFor(s *openapi3.Schema, depth int) map[string]any {
	out := map[string]any{}
	if s == nil || depth > maxSchemaDepth {
		return out
	}
	if s.Type != nil && len(*s.Type) > 0 {
		types := slices.Clone([]string(*s.Type))
		if s.Nullable && !slices.Contains(types, "null") {
			types = append(types, "null")
		}
		if len(types) == 1 {
			out["type"] = types[0]
		} else {
			out["type"] = types
		}
	}
	if len(s.Enum) > 0 {
		enum := slices.Clone(s.Enum)
		if s.Nullable && !slices.ContainsFunc(enum, func(v any) bool { return v == nil }) {
			enum = append(enum, nil)
		}
		out["enum"] = enum
	}
	if len(s.Properties) > 0 {
		props := map[string]any{}
		for name, p := range s.Properties {
			if p != nil && p.Value != nil {
				props[name] = jsonSchemaFor(p.Value, depth+1)
			}
		}
		out["properties"] = props
	}
	if len(s.Required) > 0 {
		out["required"] = slices.Clone(s.Required)
	}
	if s.AdditionalProperties.Has != nil && !*s.AdditionalProperties.Has {
		out["additionalProperties"] = false
	} else if ap := s.AdditionalProperties.Schema; ap != nil && ap.Value != nil {
		out["additionalProperties"] = jsonSchemaFor(ap.Value, depth+1)
	}
	if s.Items != nil && s.Items.Value != nil {
		out["items"] = jsonSchemaFor(s.Items.Value, depth+1)
	}
	if s.MinItems > 0 {
		out["minItems"] = s.MinItems
	}
	if s.MaxItems != nil {
		out["maxItems"] = *s.MaxItems
	}
	if s.UniqueItems {
		out["uniqueItems"] = true
	}
	if s.MinLength > 0 {
		out["minLength"] = s.MinLength
	}
	if s.MaxLength != nil {
		out["maxLength"] = *s.MaxLength
	}
	if s.MinProps > 0 {
		out["minProperties"] = s.MinProps
	}
	if s.MaxProps != nil {
		out["maxProperties"] = *s.MaxProps
	}
	if s.Min != nil {
		if s.ExclusiveMin {
			out["exclusiveMinimum"] = *s.Min
		} else {
			out["minimum"] = *s.Min
		}
	}
	if s.Max != nil {
		if s.ExclusiveMax {
			out["exclusiveMaximum"] = *s.Max
		} else {
			out["maximum"] = *s.Max
		}
	}
	if usablePattern(s.Pattern) {
		out["pattern"] = s.Pattern
	}
	if s.Format != "" {
		out["format"] = s.Format
	}
	if branches := schemaList(s.AllOf, depth); len(branches) > 0 {
		out["allOf"] = branches
	}
	// oneOf is relaxed to anyOf: generated branches frequently overlap.
	if branches := schemaList(append(slices.Clone(s.OneOf), s.AnyOf...), depth); len(branches) > 0 {
		out["anyOf"] = branches
	}
	return out
}

func schemaList(refs openapi3.SchemaRefs, depth int) []any {
	var out []any
	for _, r := range refs {
		if r != nil && r.Value != nil {
			out = append(out, jsonSchemaFor(r.Value, depth+1))
		}
	}
	return out
}

// successResponse picks the response to assert on: 200, then the lowest
// other 2xx code, then a 2XX range or default entry.
func successResponse(op *openapi3.Operation) (string, *openapi3.Response) {
	if op == nil || op.Responses == nil {
		return "", nil
	}
	all := op.Responses.Map()
	codes := slices.Sorted(maps.Keys(all))
	pick := func(match func(string) bool) (string, *openapi3.Response) {
		for _, code := range codes {
			if rr := all[code]; match(code) && rr != nil && rr.Value != nil {
				return code, rr.Value
			}
		}
		return "", nil
	}
	if code, r := pick(func(c string) bool { return c == "200" }); r != nil {
		return code, r
	}
	if code, r := pick(func(c string) bool { return len(c) == 3 && c[0] == '2' && c != "2XX" }); r != nil {
		return code, r
	}
	return pick(func(c string) bool { return strings.EqualFold(c, "2XX") || c == "default" })
}

// responseTests builds the test script for one operation.
func responseTests(op *openapi3.Operation, doc *openapi3.T, opts Options) []string {
	code, resp := successResponse(op)
	var lines []string
	if n, err := strconv.Atoi(code); err == nil {
		lines = pmTest("status is "+code, fmt.Sprintf("pm.response.to.have.status(%d);", n))
	} else {
		lines = statusTest()
	}
	if opts.DisableTests || resp == nil {
		return lines
	}
	media := resp.Content.Get("application/json")
	if media == nil || media.Schema == nil || media.Schema.Value == nil {
		return lines
	}
	schemaJSON, err := marshalCompact(jsonSchemaFor(media.Schema.Value, 0))
	if err != nil {
		return lines
	}
	lines = append(lines, "var schema = "+schemaJSON+";")
	lines = append(lines, pmTest("response matches schema", "pm.response.to.have.jsonSchema(schema);")...)
	gen := assertGen{doc: doc, level: parseStrictness(opts.Strictness)}
	if asserts := gen.body(media.Schema.Value); len(asserts) > 0 {
		body := append([]string{"var body = pm.response.json();"}, asserts...)
		lines = append(lines, pmTest("response fields", body...)...)
	}
	return lines
}

// assertGen emits pm.expect statements for a response body schema.
type assertGen struct {
	doc   *openapi3.T
	level strictness
}

func (g assertGen) strict() bool { return g.level >= strictFull }

// depth is how far nested objects and array items are followed.
func (g assertGen) depth() int {
	switch g.level {
	case strictLoose:
		return 0
	case strictFull:
		return 2
	}
	return 1
}

func expectf(expr, chain string, args ...any) string {
	return "pm.expect(" + expr + ")." + fmt.Sprintf(chain, args...) + ";"
}

func truthy(cond string) string {
	return expectf(cond, "to.equal(true)")
}

// guarded runs checks only when expr is set.
func guarded(expr string, checks []string) string {
	return fmt.Sprintf("if (%s !== undefined && %s !== null) { %s }", expr, expr, strings.Join(checks, " "))
}

func sizeChecks(expr string, minimum uint64, maximum *uint64) []string {
	var out []string
	if minimum > 0 {
		out = append(out, expectf(expr, "to.be.at.least(%d)", minimum))
	}
	if maximum != nil && *maximum > 0 {
		out = append(out, expectf(expr, "to.be.at.most(%d)", *maximum))
	}
	return out
}

func rangeChecks(expr string, s *openapi3.Schema) []string {
	var out []string
	if s.Min != nil {
		chain := "to.be.at.least(%v)"
		if s.ExclusiveMin {
			chain = "to.be.above(%v)"
		}
		out = append(out, expectf(expr, chain, *s.Min))
	}
	if s.Max != nil {
		chain := "to.be.at.most(%v)"
		if s.ExclusiveMax {
			chain = "to.be.below(%v)"
		}
		out = append(out, expectf(expr, chain, *s.Max))
	}
	return out
}

// body generates the checks for the top-level response document.
func (g assertGen) body(s *openapi3.Schema) []string {
	const expr = "body"
	depth := g.depth()
	var out []string
	if isType(s, "array") {
		out = append(out, truthy("Array.isArray(body)"))
		out = append(out, g.arrayChecks(s, expr, depth)...)
	}
	if d := s.Discriminator; d != nil && d.PropertyName != "" {
		out = append(out, expectf(expr, "to.have.property(%q)", d.PropertyName))
		if len(d.Mapping) > 0 {
			out = append(out, expectf(fmt.Sprintf("body[%q]", d.PropertyName), "to.be.oneOf(%s)", jsStringArray(slices.Sorted(maps.Keys(d.Mapping)))))
		}
	}
	if conds := append(g.branchConds(s.OneOf, expr, depth), g.branchConds(s.AnyOf, expr, depth)...); len(conds) > 0 {
		out = append(out, truthy("["+strings.Join(conds, ", ")+"].some(Boolean)"))
	}
	if sw := g.discriminatorSwitch(s, expr, depth); sw != "" {
		out = append(out, sw)
	}
	if isType(s, "object") || len(s.Properties) > 0 {
		out = append(out, sizeChecks("Object.keys(body).length", s.MinProps, s.MaxProps)...)
		for _, req := range s.Required {
			out = append(out, expectf(expr, "to.have.property(%q)", req))
		}
		out = append(out, g.fields(s, expr, depth, true)...)
	}
	return out
}

// fields checks every declared property of s on expr. Optional fields are
// checked only when set. With presence, required non-nullable fields must
// also be defined and non-null.
func (g assertGen) fields(s *openapi3.Schema, expr string, depth int, presence bool) []string {
	var out []string
	for _, name := range slices.Sorted(maps.Keys(s.Properties)) {
		prop := s.Properties[name]
		if prop == nil || prop.Value == nil {
			continue
		}
		field := fmt.Sprintf("%s[%q]", expr, name)
		checks := g.value(prop.Value, field, depth)
		required := slices.Contains(s.Required, name)
		switch {
		case required && presence && !prop.Value.Nullable:
			out = append(out, expectf(field, "to.not.equal(undefined)"), expectf(field, "to.not.equal(null)"))
			out = append(out, checks...)
		case required && !presence:
			out = append(out, checks...)
		case len(checks) > 0:
			out = append(out, guarded(field, checks))
		}
	}
	return out
}

// value checks a single value against its schema: type, nested structure
// (strict only), length, pattern, format, enum and numeric range.
func (g assertGen) value(s *openapi3.Schema, expr string, depth int) []string {
	if g.level == strictLoose {
		return nil
	}
	var out []string
	switch tp := firstType(s); tp {
	case "":
	case "array":
		out = append(out, truthy("Array.isArray("+expr+")"))
		out = append(out, g.arrayChecks(s, expr, depth)...)
	case "object":
		if g.strict() {
			out = append(out, expectf("typeof "+expr, "to.equal('object')"), truthy("!Array.isArray("+expr+")"))
		}
		out = append(out, sizeChecks("Object.keys("+expr+").length", s.MinProps, s.MaxProps)...)
		if depth > 0 && g.strict() {
			out = append(out, g.fields(s, expr, depth-1, true)...)
		}
	default:
		out = append(out, expectf("typeof "+expr, "to.equal('%s')", jsTypeFor(tp)))
		if g.strict() && (tp == "number" || tp == "integer") {
			out = append(out, truthy("Number.isFinite("+expr+")"))
			if tp == "integer" {
				out = append(out, truthy("Number.isInteger("+expr+")"))
			}
		}
	}
	out = append(out, sizeChecks(expr+".length", s.MinLength, s.MaxLength)...)
	for _, c := range []string{patternCheck(s.Pattern, expr), formatCheck(s.Format, expr)} {
		if c != "" {
			out = append(out, c)
		}
	}
	if len(s.Enum) > 0 {
		out = append(out, expectf(expr, "to.be.oneOf(%s)", toJSArray(s.Enum)))
	}
	return append(out, rangeChecks(expr, s)...)
}

func (g assertGen) arrayChecks(s *openapi3.Schema, expr string, depth int) []string {
	out := sizeChecks(expr+".length", s.MinItems, s.MaxItems)
	if s.UniqueItems {
		out = append(out, expectf("new Set("+expr+".map(function(it){ return JSON.stringify(it); })).size", "to.equal(%s.length)", expr))
	}
	if s.Items == nil || s.Items.Value == nil {
		return out
	}
	item := s.Items.Value
	every := func(pred string) string {
		return truthy(expr + ".every(function(it){ return " + pred + "; })")
	}
	switch tp := firstType(item); tp {
	case "":
	case "array":
		out = append(out, every("Array.isArray(it)"))
	case "object":
		if g.strict() {
			out = append(out, every("typeof it === 'object' && !Array.isArray(it)"))
		}
	default:
		out = append(out, every("typeof it === '"+jsTypeFor(tp)+"'"))
	}
	if len(item.Enum) > 0 && g.strict() {
		out = append(out, every(toJSArray(item.Enum)+".includes(it)"))
	}
	if depth > 0 && g.strict() {
		if nested := g.value(item, "it", depth-1); len(nested) > 0 {
			out = append(out, expr+".forEach(function(it){ "+strings.Join(nested, " ")+" });")
		}
	}
	return out
}

func (g assertGen) branchConds(refs openapi3.SchemaRefs, expr string, depth int) []string {
	var conds []string
	for _, ref := range refs {
		if ref == nil || ref.Value == nil {
			continue
		}
		if c := g.matches(ref.Value, expr, depth); c != "" {
			conds = append(conds, c)
		}
	}
	return conds
}

// matches is a JS boolean expression that holds when expr fits the branch
// schema. Field checks run in a try block so a failing branch yields false
// instead of aborting the test.
func (g assertGen) matches(s *openapi3.Schema, expr string, depth int) string {
	var parts []string
	if c := typeCondition(s, expr); c != "" {
		parts = append(parts, c)
	}
	has := func(p string) string {
		return fmt.Sprintf("%s && %s.hasOwnProperty(%q)", expr, expr, p)
	}
	if d := s.Discriminator; d != nil && d.PropertyName != "" {
		parts = append(parts, has(d.PropertyName))
		if len(d.Mapping) > 0 {
			parts = append(parts, fmt.Sprintf("%s.includes(%s[%q])", jsStringArray(slices.Sorted(maps.Keys(d.Mapping))), expr, d.PropertyName))
		}
	}
	for _, req := range s.Required {
		parts = append(parts, has(req))
	}
	if checks := g.fields(s, expr, depth, false); len(checks) > 0 {
		parts = append(parts, "(function(){ try { "+strings.Join(checks, " ")+" return true; } catch (e) { return false; } })()")
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, " && ") + ")"
}

// discriminatorSwitch checks the fields of the schema selected by the
// discriminator value. Mapping targets are looked up among the oneOf/anyOf
// branches and the component schemas.
func (g assertGen) discriminatorSwitch(s *openapi3.Schema, expr string, depth int) string {
	d := s.Discriminator
	if d == nil || d.PropertyName == "" || len(d.Mapping) == 0 {
		return ""
	}
	choices := append(slices.Clone(s.OneOf), s.AnyOf...)
	if g.doc != nil && g.doc.Components != nil {
		for _, name := range slices.Sorted(maps.Keys(g.doc.Components.Schemas)) {
			if ref := g.doc.Components.Schemas[name]; ref != nil {
				choices = append(choices, &openapi3.SchemaRef{Ref: "#/components/schemas/" + name, Value: ref.Value})
			}
		}
	}
	var cases []string
	for _, val := range slices.Sorted(maps.Keys(d.Mapping)) {
		var checks []string
		if target := mappedSchema(d.Mapping[val], choices); target != nil {
			checks = g.fields(target, expr, depth, false)
			for _, req := range target.Required {
				checks = append(checks, expectf(expr, "to.have.property(%q)", req))
			}
		}
		cases = append(cases, fmt.Sprintf("case %q: %s break;", val, strings.Join(checks, " ")))
	}
	sel := fmt.Sprintf("%s[%q]", expr, d.PropertyName)
	return fmt.Sprintf("switch (%s) { %s default: throw new Error(%q + %s); }", sel, strings.Join(cases, " "), "unexpected "+d.PropertyName+": ", sel)
}

func mappedSchema(ref string, choices openapi3.SchemaRefs) *openapi3.Schema {
	for _, c := range choices {
		if c != nil && c.Ref != "" && (c.Ref == ref || strings.HasSuffix(c.Ref, "/"+ref)) {
			return c.Value
		}
	}
	return nil
}

// jsTypes maps OpenAPI types to the JavaScript typeof result.
var jsTypes = map[string]string{
	"integer": "number",
	"number":  "number",
	"boolean": "boolean",
	"string":  "string",
	"array":   "object",
	"object":  "object",
}

func typeCondition(s *openapi3.Schema, expr string) string {
	tp := firstType(s)
	if tp == "" && (len(s.Properties) > 0 || len(s.Required) > 0) {
		tp = "object"
	}
	switch tp {
	case "":
		return ""
	case "array":
		return "Array.isArray(" + expr + ")"
	case "object":
		return fmt.Sprintf("(%[1]s !== null && typeof %[1]s === 'object' && !Array.isArray(%[1]s))", expr)
	}
	return fmt.Sprintf("typeof %s === '%s'", expr, jsTypeFor(tp))
}

// formatPatterns are the string formats with a regex check. date-time is
// checked with Date.parse instead.
var formatPatterns = map[string]string{
	"email":    `/^[^@\s]+@[^@\s]+\.[^@\s]+$/`,
	"uuid":     `/^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$/i`,
	"ipv4":     `/^((25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(25[0-5]|2[0-4]\d|1?\d?\d)$/`,
	"ipv6":     `/^[0-9a-f:]*:[0-9a-f:.]*$/i`,
	"hostname": `/^(?=.{1,253}$)[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$/i`,
	"byte":     `/^([A-Za-z0-9+\/]{4})*([A-Za-z0-9+\/]{2}==|[A-Za-z0-9+\/]{3}=)?$/`,
	"date":     `/^\d{4}-\d{2}-\d{2}$/`,
	"uri":      `/^[A-Za-z][A-Za-z0-9+.-]*:\S*$/`,
}

func formatCheck(format, valExpr string) string {
	format = strings.ToLower(format)
	if format == "date-time" {
		return fmt.Sprintf("pm.expect(Date.parse(%s)).to.not.be.NaN;", valExpr)
	}
	re, ok := formatPatterns[format]
	if !ok {
		return ""
	}
	return fmt.Sprintf("pm.expect(%s).to.match(%s);", valExpr, re)
}

func patternCheck(pattern, valExpr string) string {
	if !usablePattern(pattern) {
		return ""
	}
	return fmt.Sprintf("pm.expect(%s).to.match(new RegExp(%s));", valExpr, strconv.Quote(pattern))
}

// usablePattern reports whether pattern compiles and is not flagged by
// complexRegex.
func usablePattern(pattern string) bool {
	if pattern == "" || len(pattern) > 512 || complexRegex(pattern) {
		return false
	}
	_, err := regexp.Compile(pattern)
	return err == nil
}

func complexRegex(pattern string) bool {
	if strings.Contains(pattern, "(?<") || strings.Contains(pattern, "(?P") {
		return true
	}
	depth, deepest := 0, 0
	for _, r := range pattern {
		switch r {
		case '(':
			depth++
			deepest = max(deepest, depth)
		case ')':
			depth = max(0, depth-1)
		}
	}
	quantifiers := strings.Count(pattern, "*") + strings.Count(pattern, "+") +
		strings.Count(pattern, "?") + strings.Count(pattern, "{")
	return deepest > 5 || quantifiers > 30
}

func firstType(s *openapi3.Schema) string {
	if s == nil {
		return ""
	}
	if types := s.Type.Slice(); len(types) > 0 {
		return types[0]
	}
	return ""
}

func isType(s *openapi3.Schema, want string) bool {
	return s != nil && s.Type.Includes(want)
}

func jsTypeFor(openapiType string) string {
	if t, ok := jsTypes[openapiType]; ok {
		return t
	}
	return "string"
}

// toJSArray renders enum values as a JavaScript array literal.
func toJSArray(vals []any) string {
	data, err := json.Marshal(vals)
	if err != nil {
		return "[]"
	}
	return string(data)
}
