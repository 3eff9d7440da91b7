package runner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"pkt.systems/postrun/internal/collection"
)

// unresolvedError reports {{variables}} left in a request URL after substitution.
type unresolvedError struct {
	names []string
}

func (e *unresolvedError) Error() string {
	return fmt.Sprintf("unresolved variable(s) in url: %s (provide --environment or --global-var)", strings.Join(e.names, ", "))
}

var schemeRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)

// buildHTTPRequest turns a collection request into an *http.Request, resolving
// variables from s. Relative file references are resolved against baseDir.
func buildHTTPRequest(p collection.Request, auth *collection.Auth, s *scopes, baseDir string) (*http.Request, error) {
	rawURL := s.expand(p.URL.Raw)
	for _, v := range p.URL.Variable {
		if v.Disabled {
			continue
		}
		rawURL = replacePathParam(rawURL, v.Key, s.expand(v.StringValue()))
	}
	if names := collection.Unresolved(rawURL); len(names) > 0 {
		return nil, &unresolvedError{names: names}
	}
	if !schemeRe.MatchString(rawURL) {
		rawURL = "http://" + rawURL
	}

	headers := http.Header{}
	for _, h := range p.Header {
		if h.Disabled || strings.TrimSpace(h.Key) == "" {
			continue
		}
		headers.Add(s.expand(h.Key), s.expand(h.Value))
	}

	bodyReader, contentType, err := buildBody(p.Body, s, baseDir)
	if err != nil {
		return nil, err
	}
	if contentType != "" && headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", contentType)
	}

	method := strings.ToUpper(strings.TrimSpace(p.Method))
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequest(method, rawURL, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header = headers

	if p.URL.Query != nil {
		var parts []string
		for _, q := range p.URL.Query {
			if q.Disabled {
				continue
			}
			key := url.QueryEscape(s.expand(q.Key))
			if q.Value == nil {
				parts = append(parts, key)
				continue
			}
			parts = append(parts, key+"="+url.QueryEscape(s.expand(*q.Value)))
		}
		req.URL.RawQuery = strings.Join(parts, "&")
	}

	applyAuth(req, auth, s)
	return req, nil
}

// replacePathParam substitutes :key path segments, bounded by / ? # or end of string.
func replacePathParam(raw, key, val string) string {
	re, err := regexp.Compile(`:` + regexp.QuoteMeta(key) + `([/?#]|$)`)
	if err != nil {
		return raw
	}
	return re.ReplaceAllStringFunc(raw, func(m string) string {
		return val + m[len(key)+1:]
	})
}

func buildBody(b *collection.Body, s *scopes, baseDir string) (io.Reader, string, error) {
	if b == nil || b.Disabled {
		return http.NoBody, "", nil
	}
	switch b.Mode {
	case "raw":
		return strings.NewReader(s.expand(b.Raw)), rawContentType(b.Language()), nil
	case "urlencoded":
		var parts []string
		for _, f := range b.URLEncoded {
			if f.Disabled {
				continue
			}
			parts = append(parts, url.QueryEscape(s.expand(f.Key))+"="+url.QueryEscape(s.expand(f.Value)))
		}
		return strings.NewReader(strings.Join(parts, "&")), "application/x-www-form-urlencoded", nil
	case "formdata":
		return buildMultipart(b.FormData, s, baseDir)
	case "graphql":
		if b.GraphQL == nil {
			return http.NoBody, "", nil
		}
		payload := map[string]any{"query": s.expand(b.GraphQL.Query)}
		if vars := strings.TrimSpace(s.expand(b.GraphQL.Variables)); vars != "" {
			var parsed any
			if err := json.Unmarshal([]byte(vars), &parsed); err != nil {
				return nil, "", fmt.Errorf("graphql variables: %w", err)
			}
			payload["variables"] = parsed
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	case "file":
		if b.File == nil || b.File.Src == "" {
			return http.NoBody, "", nil
		}
		data, err := os.ReadFile(resolveFile(baseDir, s.expand(b.File.Src)))
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "", nil
	default:
		if b.Raw != "" {
			return strings.NewReader(s.expand(b.Raw)), "", nil
		}
		return http.NoBody, "", nil
	}
}

func rawContentType(lang string) string {
	switch lang {
	case "json":
		return "application/json"
	case "xml":
		return "application/xml"
	case "html":
		return "text/html"
	case "javascript":
		return "application/javascript"
	case "text":
		return "text/plain"
	}
	return ""
}

func buildMultipart(fields []collection.FormParam, s *scopes, baseDir string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if f.Disabled {
			continue
		}
		key := s.expand(f.Key)
		if f.Type == "file" {
			path := resolveFile(baseDir, s.expand(f.SrcPath()))
			file, err := os.Open(path)
			if err != nil {
				return nil, "", err
			}
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, key, filepath.Base(path)))
			ct := f.ContentType
			if ct == "" {
				ct = "application/octet-stream"
			}
			h.Set("Content-Type", ct)
			pw, err := w.CreatePart(h)
			if err != nil {
				file.Close()
				return nil, "", err
			}
			_, err = io.Copy(pw, file)
			file.Close()
			if err != nil {
				return nil, "", err
			}
			continue
		}
		if f.ContentType != "" {
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, key))
			h.Set("Content-Type", f.ContentType)
			pw, err := w.CreatePart(h)
			if err != nil {
				return nil, "", err
			}
			if _, err := pw.Write([]byte(s.expand(f.Value))); err != nil {
				return nil, "", err
			}
			continue
		}
		if err := w.WriteField(key, s.expand(f.Value)); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func resolveFile(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

// applyAuth sets credentials unless the request already carries them explicitly.
func applyAuth(req *http.Request, auth *collection.Auth, s *scopes) {
	if auth == nil {
		return
	}
	switch strings.ToLower(auth.Type) {
	case "bearer":
		if req.Header.Get("Authorization") == "" {
			req.Header.Set("Authorization", "Bearer "+s.expand(auth.Param("token")))
		}
	case "basic":
		if req.Header.Get("Authorization") == "" {
			req.SetBasicAuth(s.expand(auth.Param("username")), s.expand(auth.Param("password")))
		}
	case "apikey":
		key := s.expand(auth.Param("key"))
		val := s.expand(auth.Param("value"))
		if key == "" {
			return
		}
		if strings.EqualFold(auth.Param("in"), "query") {
			q := req.URL.Query()
			q.Set(key, val)
			req.URL.RawQuery = q.Encode()
			return
		}
		if req.Header.Get(key) == "" {
			req.Header.Set(key, val)
		}
	}
}

func headerMap(h http.Header) map[string]string {
	if h == nil {
		return nil
	}
	out := map[string]string{}
	for k, vals := range h {
		out[strings.ToLower(k)] = strings.Join(vals, ", ")
	}
	return out
}
