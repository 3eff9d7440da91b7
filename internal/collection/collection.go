package collection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// SchemaV21 is the schema URL written by Postman for v2.1 collections.
const SchemaV21 = "https://schema.getpostman.com/json/collection/v2.1.0/collection.json"

// ErrNoItems is returned when a collection holds no runnable requests.
var ErrNoItems = errors.New("collection has no requests")

// Collection is a parsed Postman v2.1 collection.
type Collection struct {
	Info     Info       `json:"info"`
	Item     []Node     `json:"item"`
	Event    []Event    `json:"event,omitempty"`
	Variable []Variable `json:"variable,omitempty"`
	Auth     *Auth      `json:"auth,omitempty"`
}

// Info holds collection metadata.
type Info struct {
	ID     string `json:"_postman_id,omitempty"`
	Name   string `json:"name"`
	Schema string `json:"schema,omitempty"`
}

// Node is either a folder (Item set) or a request (Request set).
type Node struct {
	ID       string     `json:"id,omitempty"`
	Name     string     `json:"name"`
	Item     []Node     `json:"item,omitempty"`
	Request  *Request   `json:"request,omitempty"`
	Event    []Event    `json:"event,omitempty"`
	Variable []Variable `json:"variable,omitempty"`
	Auth     *Auth      `json:"auth,omitempty"`
}

// IsFolder reports whether the node groups other nodes.
func (n Node) IsFolder() bool {
	return n.Request == nil && n.Item != nil
}

// Event attaches a script to the prerequest or test phase.
type Event struct {
	Listen   string `json:"listen"`
	Script   Script `json:"script"`
	Disabled bool   `json:"disabled,omitempty"`
}

// Script is the executable part of an event. Exec may be a string or a list of lines.
type Script struct {
	Type string `json:"type,omitempty"`
	Exec Lines  `json:"exec"`
}

// Source joins the script lines into one program.
func (s Script) Source() string {
	return strings.Join(s.Exec, "\n")
}

// Lines decodes from either a JSON string or an array of strings.
type Lines []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *Lines) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = strings.Split(s, "\n")
		return nil
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	*l = arr
	return nil
}

// Variable is a key/value pair used by collections, folders and URL path params.
type Variable struct {
	Key      string `json:"key"`
	Value    any    `json:"value"`
	Disabled bool   `json:"disabled,omitempty"`
}

// StringValue renders the variable value the way substitution sees it.
func (v Variable) StringValue() string {
	return stringify(v.Value)
}

// Header is one request header.
type Header struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled,omitempty"`
}

// Request describes the HTTP request of an item.
type Request struct {
	Method string   `json:"method"`
	Header []Header `json:"header,omitempty"`
	URL    URL      `json:"url"`
	Body   *Body    `json:"body,omitempty"`
	Auth   *Auth    `json:"auth,omitempty"`
}

// UnmarshalJSON accepts the short form where the request is only a URL string.
func (r *Request) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*r = Request{Method: "GET", URL: URL{Raw: raw}}
		return nil
	}
	type plain Request
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Request(p)
	if r.Method == "" {
		r.Method = "GET"
	}
	return nil
}

// URL is the request URL. Raw is authoritative; Query and Variable refine it.
type URL struct {
	Raw      string       `json:"raw"`
	Query    []QueryParam `json:"query,omitempty"`
	Variable []Variable   `json:"variable,omitempty"`
}

// UnmarshalJSON accepts both a plain string and the structured URL object.
func (u *URL) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &u.Raw)
	}
	var obj struct {
		Raw      string       `json:"raw"`
		Protocol string       `json:"protocol"`
		Host     Segments     `json:"host"`
		Path     Segments     `json:"path"`
		Port     string       `json:"port"`
		Query    []QueryParam `json:"query"`
		Variable []Variable   `json:"variable"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	u.Raw = obj.Raw
	u.Query = obj.Query
	u.Variable = obj.Variable
	if u.Raw == "" && len(obj.Host) > 0 {
		var b strings.Builder
		if obj.Protocol != "" {
			b.WriteString(obj.Protocol + "://")
		}
		b.WriteString(strings.Join(obj.Host, "."))
		if obj.Port != "" {
			b.WriteString(":" + obj.Port)
		}
		if len(obj.Path) > 0 {
			b.WriteString("/" + strings.Join(obj.Path, "/"))
		}
		u.Raw = b.String()
	}
	return nil
}

// Segments decodes host/path parts given either as a string or a list.
type Segments []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *Segments) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var one string
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*s = strings.Split(strings.Trim(one, "/"), "/")
		return nil
	}
	var parts []any
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		// path segments may be objects like {"type":"string","value":"x"}
		if m, ok := p.(map[string]any); ok {
			out = append(out, stringify(m["value"]))
			continue
		}
		out = append(out, stringify(p))
	}
	*s = out
	return nil
}

// QueryParam is a single query string entry.
type QueryParam struct {
	Key      string  `json:"key"`
	Value    *string `json:"value"`
	Disabled bool    `json:"disabled,omitempty"`
}

// Body is the request payload.
type Body struct {
	Mode       string       `json:"mode"`
	Raw        string       `json:"raw,omitempty"`
	URLEncoded []FormParam  `json:"urlencoded,omitempty"`
	FormData   []FormParam  `json:"formdata,omitempty"`
	GraphQL    *GraphQL     `json:"graphql,omitempty"`
	File       *FileRef     `json:"file,omitempty"`
	Options    *BodyOptions `json:"options,omitempty"`
	Disabled   bool         `json:"disabled,omitempty"`
}

// Language returns the raw body language hint (json, xml, text, ...).
func (b *Body) Language() string {
	if b == nil || b.Options == nil || b.Options.Raw == nil {
		return ""
	}
	return strings.ToLower(b.Options.Raw.Language)
}

// BodyOptions carries editor hints.
type BodyOptions struct {
	Raw *struct {
		Language string `json:"language"`
	} `json:"raw,omitempty"`
}

// FormParam is an urlencoded or multipart field.
type FormParam struct {
	Key         string `json:"key"`
	Value       string `json:"value,omitempty"`
	Type        string `json:"type,omitempty"` // text|file
	Src         any    `json:"src,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Disabled    bool   `json:"disabled,omitempty"`
}

// SrcPath returns the file path of a file-typed form field.
func (f FormParam) SrcPath() string {
	switch v := f.Src.(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			return stringify(v[0])
		}
	}
	return ""
}

// GraphQL holds a query and its variables (as raw JSON text).
type GraphQL struct {
	Query     string `json:"query"`
	Variables string `json:"variables,omitempty"`
}

// FileRef points at a file used as the whole body.
type FileRef struct {
	Src string `json:"src"`
}

// Auth describes request authentication.
type Auth struct {
	Type   string     `json:"type"`
	Bearer []Variable `json:"bearer,omitempty"`
	Basic  []Variable `json:"basic,omitempty"`
	APIKey []Variable `json:"apikey,omitempty"`
}

// Param looks up an auth attribute for the auth type in use.
func (a *Auth) Param(key string) string {
	if a == nil {
		return ""
	}
	var list []Variable
	switch strings.ToLower(a.Type) {
	case "bearer":
		list = a.Bearer
	case "basic":
		list = a.Basic
	case "apikey":
		list = a.APIKey
	}
	for _, v := range list {
		if v.Key == key {
			return v.StringValue()
		}
	}
	return ""
}

// Load reads and parses a collection file.
func Load(ctx context.Context, path string) (*Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := Parse(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a collection document. Both the bare v2.1 document and the
// API export wrapper {"collection": {...}} are accepted.
func Parse(ctx context.Context, r io.Reader) (*Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Collection *Collection `json:"collection"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil && wrapper.Collection != nil {
		return validate(wrapper.Collection)
	}
	var c Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse collection: %w", err)
	}
	return validate(&c)
}

func validate(c *Collection) (*Collection, error) {
	if c.Item == nil {
		return nil, fmt.Errorf("parse collection: missing item list")
	}
	if c.Info.Schema != "" && !strings.Contains(c.Info.Schema, "v2.") {
		return nil, fmt.Errorf("parse collection: unsupported schema %s", c.Info.Schema)
	}
	return c, nil
}

// Item is a flattened request ready for execution.
type Item struct {
	ID      string
	Name    string
	Path    []string // folder names from the root to the item
	Request Request
	// Auth is the effective auth after inheriting from folders and collection.
	Auth *Auth
	// Prerequest and Test hold scripts in execution order: collection, folders, item.
	Prerequest []string
	Test       []string
	// Variables are folder-level variables on the item's path.
	Variables []Variable
}

// FullName joins folder path and item name with " / ".
func (it Item) FullName() string {
	return strings.Join(append(slices.Clone(it.Path), it.Name), " / ")
}

// HasTests reports whether any test script applies to the item.
func (it Item) HasTests() bool {
	for _, s := range it.Test {
		if strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}

// Items flattens the collection depth-first. When folders are given, only
// requests beneath folders with those names are returned; naming a folder
// that does not exist is an error.
func (c *Collection) Items(folders ...string) ([]Item, error) {
	var out []Item
	found := map[string]bool{}
	root := scope{
		auth:       c.Auth,
		prerequest: scripts(c.Event, "prerequest"),
		test:       scripts(c.Event, "test"),
	}
	walk(c.Item, root, nil, folders, len(folders) == 0, found, &out)
	for _, f := range folders {
		if !found[f] {
			return nil, fmt.Errorf("folder %q not found in collection", f)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoItems
	}
	return out, nil
}

type scope struct {
	auth       *Auth
	prerequest []string
	test       []string
	vars       []Variable
}

func walk(nodes []Node, parent scope, path []string, folders []string, selected bool, found map[string]bool, out *[]Item) {
	for _, n := range nodes {
		sc := scope{
			auth:       parent.auth,
			prerequest: append(slices.Clone(parent.prerequest), scripts(n.Event, "prerequest")...),
			test:       append(slices.Clone(parent.test), scripts(n.Event, "test")...),
			vars:       append(slices.Clone(parent.vars), n.Variable...),
		}
		if n.Auth != nil && !strings.EqualFold(n.Auth.Type, "inherit") {
			sc.auth = n.Auth
		}
		if n.Request == nil {
			sel := selected
			if slices.Contains(folders, n.Name) {
				found[n.Name] = true
				sel = true
			}
			walk(n.Item, sc, append(slices.Clone(path), n.Name), folders, sel, found, out)
			continue
		}
		if !selected {
			continue
		}
		req := *n.Request
		auth := sc.auth
		if req.Auth != nil && !strings.EqualFold(req.Auth.Type, "inherit") {
			auth = req.Auth
		}
		*out = append(*out, Item{
			ID:         n.ID,
			Name:       n.Name,
			Path:       slices.Clone(path),
			Request:    req,
			Auth:       auth,
			Prerequest: sc.prerequest,
			Test:       sc.test,
			Variables:  sc.vars,
		})
	}
}

func scripts(events []Event, listen string) []string {
	var out []string
	for _, e := range events {
		if e.Disabled || e.Listen != listen {
			continue
		}
		if src := e.Script.Source(); strings.TrimSpace(src) != "" {
			out = append(out, src)
		}
	}
	return out
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64, bool, json.Number:
		return fmt.Sprint(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}
