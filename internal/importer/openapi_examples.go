package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/oasdiff/yaml"
)

// exampleAliases are vendor keys some generators emit instead of example.
var exampleAliases = []string{"exampleValue", "x-example"}

// hoistExampleAliases rewrites vendor example keys into standard ones so the
// loader sees them: entries of an examples map get value, anything else
// gets example. Documents that fail to parse are returned untouched.
func hoistExampleAliases(data []byte) []byte {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return data
	}
	hoist(doc, false)
	out, err := json.Marshal(doc)
	if err != nil {
		return data
	}
	return out
}

func hoist(node any, exampleEntry bool) {
	switch v := node.(type) {
	case map[string]any:
		target := "example"
		if exampleEntry {
			target = "value"
		}
		for _, alias := range exampleAliases {
			if val, ok := v[alias]; ok {
				if _, set := v[target]; !set {
					v[target] = val
				}
				delete(v, alias)
			}
		}
		for k, child := range v {
			if entries, ok := child.(map[string]any); ok && k == "examples" {
				for _, e := range entries {
					hoist(e, true)
				}
				continue
			}
			hoist(child, false)
		}
	case []any:
		for _, child := range v {
			hoist(child, false)
		}
	}
}

// mediaKind is the Postman raw language for a media type.
func mediaKind(mediaType string) string {
	mt := strings.ToLower(mediaType)
	switch {
	case strings.Contains(mt, "json"):
		return "json"
	case strings.Contains(mt, "xml"):
		return "xml"
	}
	return "text"
}

// exampleBody returns the raw request body for a media type from, in order,
// named examples (value then externalValue), the media example, the schema
// example and finally a document synthesized from the schema (JSON only).
func exampleBody(media *openapi3.MediaType, mediaType string, refs refPolicy) string {
	if media == nil {
		return ""
	}
	var candidates []any
	for _, name := range slices.Sorted(maps.Keys(media.Examples)) {
		ex := media.Examples[name]
		if ex == nil || ex.Value == nil {
			continue
		}
		if ex.Value.Value != nil {
			candidates = append(candidates, ex.Value.Value)
		}
		if ex.Value.ExternalValue != "" {
			if body, ok := refs.readExample(ex.Value.ExternalValue); ok {
				return indentJSON(body, mediaType)
			}
		}
	}
	candidates = append(candidates, media.Example)
	var schema *openapi3.Schema
	if media.Schema != nil {
		schema = media.Schema.Value
	}
	if schema != nil {
		candidates = append(candidates, schema.Example)
	}
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if body := examplePayload(c, mediaType, refs); body != "" {
			return body
		}
	}
	if schema != nil && mediaKind(mediaType) == "json" {
		if ex, ok := synthesizeExample(media.Schema); ok {
			return marshalExample(ex)
		}
	}
	return ""
}

// examplePayload renders one example value. Strings naming a URL or a file
// next to the source are loaded; XML examples must be literal strings.
func examplePayload(v any, mediaType string, refs refPolicy) string {
	xml := mediaKind(mediaType) == "xml"
	if s, ok := v.(string); ok {
		if refs.looksLikeExampleRef(s) {
			if body, ok := refs.readExample(s); ok {
				return indentJSON(body, mediaType)
			}
		}
		if xml {
			return strings.TrimSpace(s)
		}
	}
	if xml {
		return ""
	}
	return marshalExample(v)
}

func indentJSON(body, mediaType string) string {
	if mediaKind(mediaType) != "json" {
		return body
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(body), "", "  "); err != nil {
		return body
	}
	return buf.String()
}

func marshalExample(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

func marshalCompact(v any) (string, error) {
	data, err := json.Marshal(v)
	return string(data), err
}

// paramExample returns a value for a path, query or header parameter.
func paramExample(p *openapi3.Parameter) string {
	if p.Example != nil {
		return fmt.Sprint(p.Example)
	}
	for _, k := range slices.Sorted(maps.Keys(p.Examples)) {
		if ex := p.Examples[k]; ex != nil && ex.Value != nil && ex.Value.Value != nil {
			return fmt.Sprint(ex.Value.Value)
		}
	}
	if ex, ok := synthesizeExample(p.Schema); ok {
		return fmt.Sprint(ex)
	}
	return ""
}

func synthesizeExample(sref *openapi3.SchemaRef) (any, bool) {
	return synthesize(sref, 0)
}

// formatSamples are placeholder values that satisfy common string formats.
var formatSamples = map[string]string{
	"email":     "user@example.com",
	"uuid":      "00000000-0000-4000-8000-000000000000",
	"date":      "2024-01-01",
	"date-time": "2024-01-01T00:00:00Z",
	"uri":       "https://example.com",
	"hostname":  "example.com",
	"ipv4":      "192.0.2.1",
	"ipv6":      "2001:db8::1",
}

// synthesize builds a value satisfying the basic constraints of a schema:
// example, then default, then enum, then a type-based placeholder. Objects
// carry their required properties, or all properties when none are required.
func synthesize(sref *openapi3.SchemaRef, depth int) (any, bool) {
	if sref == nil || sref.Value == nil || depth > maxSchemaDepth {
		return nil, false
	}
	s := sref.Value
	switch {
	case s.Example != nil:
		return s.Example, true
	case s.Default != nil:
		return s.Default, true
	case len(s.Enum) > 0:
		return s.Enum[0], true
	}
	tp := firstType(s)
	if tp == "" {
		switch {
		case len(s.AllOf) > 0:
			return synthesizeAllOf(s.AllOf, depth)
		case len(s.OneOf) > 0:
			return synthesize(s.OneOf[0], depth+1)
		case len(s.AnyOf) > 0:
			return synthesize(s.AnyOf[0], depth+1)
		case len(s.Properties) > 0:
			tp = "object"
		}
	}
	switch tp {
	case "object":
		obj := map[string]any{}
		for name, prop := range s.Properties {
			if len(s.Required) > 0 && !slices.Contains(s.Required, name) {
				continue
			}
			if ex, ok := synthesize(prop, depth+1); ok {
				obj[name] = ex
			}
		}
		return obj, true
	case "array":
		item, ok := synthesize(s.Items, depth+1)
		if !ok {
			return []any{}, true
		}
		return []any{item}, true
	case "integer", "number":
		switch {
		case s.Min != nil && s.ExclusiveMin:
			return *s.Min + 1, true
		case s.Min != nil:
			return *s.Min, true
		}
		return 0, true
	case "boolean":
		return true, true
	}
	if sample, ok := formatSamples[strings.ToLower(s.Format)]; ok {
		return sample, true
	}
	word := "string"
	if n := uint64(len(word)); s.MinLength > n || (s.MaxLength != nil && *s.MaxLength < n) {
		return strings.Repeat("x", int(max(s.MinLength, 1))), true
	}
	return word, true
}

// synthesizeAllOf merges the object examples of every allOf branch.
func synthesizeAllOf(branches openapi3.SchemaRefs, depth int) (any, bool) {
	merged := map[string]any{}
	for _, b := range branches {
		ex, ok := synthesize(b, depth+1)
		if !ok {
			continue
		}
		obj, isObj := ex.(map[string]any)
		if !isObj {
			return ex, true
		}
		maps.Copy(merged, obj)
	}
	return merged, true
}
