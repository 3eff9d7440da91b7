package importer

import (
	"os"

	"pkt.systems/pslog"
)

// Options configures an OpenAPI or WSDL import.
type Options struct {
	// Source is a file path or http(s) URL.
	Source string
	// OutputFile receives the Postman collection JSON. When empty the
	// collection is only returned.
	OutputFile string
	// EnvironmentFile, when set, receives a Postman environment with
	// baseUrl and auth placeholders.
	EnvironmentFile string
	CollectionName  string
	// GroupBy selects OpenAPI folders: tags (default), path or none.
	GroupBy  string
	Insecure bool
	// AllowRemoteRefs permits cross-origin $refs and example URLs.
	AllowRemoteRefs bool
	// AllowFileRefs permits local files outside the source directory.
	AllowFileRefs bool
	// DisableTests keeps only the status check on each generated request.
	DisableTests bool
	// IncludePaths limits OpenAPI operations to routes with these prefixes.
	IncludePaths []string
	// Strictness is loose, standard (default) or strict.
	Strictness string
	Logger     pslog.Logger
}

func (o Options) logger() pslog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return pslog.NewWithOptions(os.Stderr, pslog.Options{Mode: pslog.ModeConsole, MinLevel: pslog.InfoLevel})
}
