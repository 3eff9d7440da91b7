package importer

import (
	"maps"
	"slices"
	"strings"
	"unicode"

	"github.com/getkin/kin-openapi/openapi3"
)

// authPlaceholders is what a security requirement adds to a request:
// header and query entries referencing {{variables}}, plus the environment
// entries declaring those variables.
type authPlaceholders struct {
	headers map[string]string
	query   map[string]string
	env     map[string]string
}

// operationAuth resolves the first security requirement of op, falling back
// to the document-wide requirement. An explicit empty list disables auth.
func operationAuth(op *openapi3.Operation, doc *openapi3.T) authPlaceholders {
	a := authPlaceholders{headers: map[string]string{}, query: map[string]string{}, env: map[string]string{}}
	reqs := doc.Security
	if op != nil && op.Security != nil {
		reqs = *op.Security
	}
	if len(reqs) == 0 || doc.Components == nil {
		return a
	}
	for _, name := range slices.Sorted(maps.Keys(reqs[0])) {
		ref := doc.Components.SecuritySchemes[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		a.apply(name, ref.Value)
	}
	return a
}

func (a authPlaceholders) apply(name string, s *openapi3.SecurityScheme) {
	placeholder := func(v string) string {
		a.env[v] = "CHANGEME"
		return "{{" + v + "}}"
	}
	switch strings.ToLower(s.Type) {
	case "apikey":
		v := toVarName(name)
		switch strings.ToLower(s.In) {
		case "header":
			a.headers[s.Name] = placeholder(v)
		case "query":
			a.query[s.Name] = placeholder(v)
		case "cookie":
			a.headers["Cookie"] = s.Name + "=" + placeholder(v)
		}
	case "http":
		switch strings.ToLower(s.Scheme) {
		case "bearer":
			a.headers["Authorization"] = "Bearer " + placeholder("bearerToken")
		case "basic":
			a.headers["Authorization"] = "Basic " + placeholder("basicAuth")
		}
	case "oauth2", "openidconnect":
		a.headers["Authorization"] = "Bearer " + placeholder("accessToken")
	}
}

// toVarName turns a security scheme name into a lowerCamelCase variable.
func toVarName(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return "auth"
	}
	var b strings.Builder
	b.WriteString(strings.ToLower(words[0]))
	for _, w := range words[1:] {
		b.WriteString(titleCase(w))
	}
	return b.String()
}
