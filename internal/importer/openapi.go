package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/oasdiff/yaml"
	"pkt.systems/pslog"

	"pkt.systems/postrun/internal/collection"
)

const defaultBaseURL = "https://api.example.com"

var httpVerbs = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD", "TRACE"}

// ImportOpenAPI converts an OpenAPI 3 or Swagger 2 document into a Postman
// collection. The collection (and environment) are written when
// opts.OutputFile (opts.EnvironmentFile) is set.
func ImportOpenAPI(ctx context.Context, opts Options) (Result, error) {
	if opts.Source == "" {
		return Result{}, fmt.Errorf("--source is required")
	}
	location, err := sourceLocation(&opts)
	if err != nil {
		return Result{}, err
	}
	refs := newRefPolicy(ctx, opts, location)
	data, err := readSource(ctx, opts.Source, refs.client)
	if err != nil {
		return Result{}, fmt.Errorf("load openapi source: %w", err)
	}
	doc, err := loadOpenAPI(ctx, hoistExampleAliases(data), location, refs)
	if err != nil {
		return Result{}, fmt.Errorf("load openapi: %w", err)
	}

	log := opts.logger().With("fn", pslog.CurrentFn())
	if verr := doc.Validate(ctx); verr != nil {
		log.Warn("import.openapi.validate.warn", "err", verr)
	}
	paths := doc.Paths.Map()
	log.Info("import.openapi.start", "source", opts.Source, "output", opts.OutputFile, "paths", len(paths))

	name := opts.CollectionName
	if name == "" && doc.Info != nil {
		name = doc.Info.Title
	}
	baseURL := serverURL(doc, location)
	vars := map[string]string{"baseUrl": baseURL}
	b := newBuilder(firstNonEmpty(name, "imported-openapi"))
	b.coll.Variable = []collection.Variable{{Key: "baseUrl", Value: baseURL}}

	for _, route := range slices.Sorted(maps.Keys(paths)) {
		item := paths[route]
		if item == nil || !shouldIncludePath(route, opts.IncludePaths) {
			continue
		}
		for _, verb := range httpVerbs {
			op := item.GetOperation(verb)
			if op == nil {
				continue
			}
			opName := operationName(op, verb, route)
			auth := operationAuth(op, doc)
			maps.Copy(vars, auth.env)
			req := buildRequest(verb, route, item, op, auth, refs, log)

			lines := responseTests(op, doc, opts)
			if !validJS(strings.Join(lines, "\n"), log) {
				log.Warn("import.openapi.tests.invalid", "op", opName, "path", route)
				lines = statusTest()
			}
			folder := folderFor(opts.GroupBy, route, op)
			b.add(folder, collection.Node{
				Name:    opName,
				Request: req,
				Event:   []collection.Event{testEvent(lines)},
			})
			log.Debug("import.openapi.op", "op", opName, "path", route, "verb", verb, "folder", folder)
		}
	}

	res := Result{Collection: b.coll, Variables: vars}
	if err := write(res, opts, log); err != nil {
		return res, err
	}
	log.Info("import.openapi.done", "requests", b.count())
	return res, nil
}

// sourceLocation returns the URL the loader resolves relative refs against.
// Local sources are made absolute in place.
func sourceLocation(opts *Options) (*url.URL, error) {
	if isURL(opts.Source) {
		return url.Parse(opts.Source)
	}
	abs, err := filepath.Abs(opts.Source)
	if err != nil {
		return nil, fmt.Errorf("resolve source: %w", err)
	}
	opts.Source = abs
	return &url.URL{Path: filepath.ToSlash(abs)}, nil
}

// loadOpenAPI parses an OpenAPI 3 document, or converts a Swagger 2 one, with
// every external read going through refs.
func loadOpenAPI(ctx context.Context, data []byte, location *url.URL, refs refPolicy) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true
	loader.Context = ctx
	loader.ReadFromURIFunc = func(_ *openapi3.Loader, u *url.URL) ([]byte, error) {
		return refs.readRef(u)
	}
	if !isSwagger2(data) {
		return loader.LoadFromDataWithPath(data, location)
	}
	var v2 openapi2.T
	if err := yaml.Unmarshal(data, &v2); err != nil {
		return nil, fmt.Errorf("unmarshal swagger: %w", err)
	}
	if v2.Swagger == "" {
		return nil, fmt.Errorf("invalid swagger: missing swagger field")
	}
	return openapi2conv.ToV3WithLoader(&v2, loader, location)
}

func isSwagger2(data []byte) bool {
	var head struct {
		Swagger string `json:"swagger"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		if err := yaml.Unmarshal(data, &head); err != nil {
			return bytes.Contains(data, []byte(`"swagger"`))
		}
	}
	return strings.HasPrefix(head.Swagger, "2")
}

func operationName(op *openapi3.Operation, verb, route string) string {
	switch {
	case op.OperationID != "":
		return op.OperationID
	case op.Summary != "":
		return op.Summary
	}
	return strings.TrimSpace(titleCase(verb) + " " + route)
}

func folderFor(groupBy, route string, op *openapi3.Operation) string {
	var dir string
	switch groupBy {
	case "none":
		return ""
	case "path":
		dir = strings.Trim(path.Dir(route), "/")
	default:
		if len(op.Tags) > 0 {
			dir = op.Tags[0]
		}
	}
	if dir == "." {
		return ""
	}
	return dir
}

// serverURL resolves the first server entry, substituting variable defaults
// and resolving relative URLs against a remote source.
func serverURL(doc *openapi3.T, location *url.URL) string {
	if len(doc.Servers) == 0 || doc.Servers[0] == nil || doc.Servers[0].URL == "" {
		return defaultBaseURL
	}
	srv := doc.Servers[0]
	u := srv.URL
	for name, v := range srv.Variables {
		if v != nil {
			u = strings.ReplaceAll(u, "{"+name+"}", v.Default)
		}
	}
	u = strings.TrimSuffix(u, "/")
	if !strings.HasPrefix(u, "/") {
		return u
	}
	if location != nil && location.Host != "" {
		return location.Scheme + "://" + location.Host + u
	}
	return defaultBaseURL + u
}

// buildRequest maps one operation to a Postman request.
func buildRequest(verb, route string, item *openapi3.PathItem, op *openapi3.Operation, auth authPlaceholders, refs refPolicy, log pslog.Logger) *collection.Request {
	headers := maps.Clone(auth.headers)
	req := &collection.Request{
		Method: verb,
		URL:    collection.URL{Raw: "{{baseUrl}}" + toPostmanRoute(route)},
	}

	var rawQuery []string
	for _, pref := range append(slices.Clone(item.Parameters), op.Parameters...) {
		if pref == nil || pref.Value == nil {
			continue
		}
		p := pref.Value
		val := paramExample(p)
		switch p.In {
		case openapi3.ParameterInPath:
			req.URL.Variable = append(req.URL.Variable, collection.Variable{Key: p.Name, Value: val})
		case openapi3.ParameterInQuery:
			req.URL.Query = append(req.URL.Query, collection.QueryParam{Key: p.Name, Value: &val, Disabled: !p.Required})
			if p.Required {
				rawQuery = append(rawQuery, p.Name+"="+val)
			}
		case openapi3.ParameterInHeader:
			if _, set := headers[p.Name]; p.Required && !set {
				headers[p.Name] = val
			}
		}
	}
	for _, q := range sortedQuery(auth.query) {
		req.URL.Query = append(req.URL.Query, q)
		rawQuery = append(rawQuery, q.Key+"="+*q.Value)
	}
	if len(rawQuery) > 0 {
		req.URL.Raw += "?" + strings.Join(rawQuery, "&")
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		body, mediaType := requestBody(op.RequestBody.Value.Content, refs)
		if body == nil {
			log.Debug("import.openapi.request.example.missing", "path", route)
		} else {
			req.Body = body
			if mediaType != "" {
				headers["Content-Type"] = mediaType
			}
			log.Debug("import.openapi.request.body", "path", route, "ct", mediaType, "mode", body.Mode)
		}
	}
	req.Header = sortedHeaders(headers)
	return req
}

// requestBody picks the preferred media type and builds a body from its
// examples, falling back to a synthesized document.
func requestBody(content openapi3.Content, refs refPolicy) (*collection.Body, string) {
	for _, mt := range []string{"application/json", "application/xml", "text/xml"} {
		if media := content.Get(mt); media != nil {
			raw := exampleBody(media, mt, refs)
			if raw == "" && mediaKind(mt) == "json" {
				raw = "{}"
			}
			return rawBody(raw, mediaKind(mt)), mt
		}
	}
	for _, mt := range []string{"application/x-www-form-urlencoded", "multipart/form-data"} {
		media := content.Get(mt)
		if media == nil {
			continue
		}
		fields := []collection.FormParam{}
		if media.Schema != nil && media.Schema.Value != nil {
			for _, name := range slices.Sorted(maps.Keys(media.Schema.Value.Properties)) {
				ex, _ := synthesizeExample(media.Schema.Value.Properties[name])
				fields = append(fields, collection.FormParam{Key: name, Value: fmt.Sprint(ex), Type: "text"})
			}
		}
		if mt == "multipart/form-data" {
			return &collection.Body{Mode: "formdata", FormData: fields}, ""
		}
		return &collection.Body{Mode: "urlencoded", URLEncoded: fields}, ""
	}
	for _, mt := range slices.Sorted(maps.Keys(content)) {
		if raw := exampleBody(content[mt], mt, refs); raw != "" {
			return rawBody(raw, mediaKind(mt)), mt
		}
	}
	return nil, ""
}

func shouldIncludePath(route string, includes []string) bool {
	if len(includes) == 0 {
		return true
	}
	return slices.ContainsFunc(includes, func(p string) bool { return strings.HasPrefix(route, p) })
}

var pathParamRe = regexp.MustCompile(`\{([^}]+)\}`)

// toPostmanRoute rewrites {param} path templates to :param.
func toPostmanRoute(route string) string {
	return pathParamRe.ReplaceAllString(route, ":$1")
}
