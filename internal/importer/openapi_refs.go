package importer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// refPolicy decides which documents an OpenAPI import may read besides the
// source itself: $ref targets while loading and example bodies named by
// URL or path. Local files must sit inside the source directory and remote
// documents must share the source origin unless the matching allow flag is
// set.
type refPolicy struct {
	ctx         context.Context
	base        *url.URL // source location, http(s) URL or absolute path
	dir         string   // source directory for local sources
	allowFile   bool
	allowRemote bool
	client      *http.Client
}

func newRefPolicy(ctx context.Context, opts Options, base *url.URL) refPolicy {
	p := refPolicy{
		ctx:         ctx,
		base:        base,
		allowFile:   opts.AllowFileRefs,
		allowRemote: opts.AllowRemoteRefs,
		client:      sourceClient(opts.Insecure),
	}
	if !p.remoteSource() {
		p.dir = filepath.Dir(filepath.FromSlash(base.Path))
	}
	return p
}

func (p refPolicy) remoteSource() bool {
	return p.base != nil && p.base.Host != ""
}

// localAllowed reports whether the absolute path may be read.
func (p refPolicy) localAllowed(path string) bool {
	if p.allowFile {
		return true
	}
	if p.remoteSource() || path == "" {
		return false
	}
	rel, err := filepath.Rel(p.dir, filepath.Clean(path))
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (p refPolicy) remoteAllowed(u *url.URL) bool {
	if p.allowRemote {
		return true
	}
	return p.remoteSource() && strings.EqualFold(u.Scheme, p.base.Scheme) && strings.EqualFold(u.Host, p.base.Host)
}

// localPath makes a file reference absolute against the source directory.
func (p refPolicy) localPath(ref string) string {
	if filepath.IsAbs(ref) {
		return filepath.Clean(ref)
	}
	return filepath.Join(p.dir, ref)
}

// readRef loads a $ref target for the OpenAPI loader.
func (p refPolicy) readRef(u *url.URL) ([]byte, error) {
	switch u.Scheme {
	case "", "file":
		path := p.localPath(filepath.FromSlash(u.Path))
		if !p.localAllowed(path) {
			return nil, fmt.Errorf("file ref blocked: %s (use --allow-file-refs)", u)
		}
		return os.ReadFile(path)
	case "http", "https":
		if !p.remoteAllowed(u) {
			return nil, fmt.Errorf("remote ref blocked: %s (use --allow-remote-refs)", u)
		}
		return readSource(p.ctx, u.String(), p.client)
	}
	return nil, fmt.Errorf("unsupported ref scheme %q in %s", u.Scheme, u)
}

// readExample loads an external example body. Blocked or unreadable
// references yield ok == false.
func (p refPolicy) readExample(ref string) (string, bool) {
	ref = strings.TrimPrefix(ref, "file://")
	var target *url.URL
	switch {
	case isURL(ref):
		target, _ = url.Parse(ref)
	case p.remoteSource():
		u, err := p.base.Parse(ref)
		if err != nil {
			return "", false
		}
		target = u
	}
	if target != nil {
		if !p.remoteAllowed(target) {
			return "", false
		}
		data, err := readSource(p.ctx, target.String(), p.client)
		if err != nil {
			return "", false
		}
		return string(data), true
	}
	path := p.localPath(filepath.FromSlash(ref))
	if !p.localAllowed(path) {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// looksLikeExampleRef reports whether an example string names a document
// rather than being the example itself.
func (p refPolicy) looksLikeExampleRef(s string) bool {
	if strings.ContainsAny(s, "\n{}<>") || strings.TrimSpace(s) != s || s == "" {
		return false
	}
	if isURL(s) || strings.HasPrefix(s, "file://") {
		return true
	}
	if p.remoteSource() {
		return false
	}
	_, err := os.Stat(p.localPath(filepath.FromSlash(s)))
	return err == nil
}
