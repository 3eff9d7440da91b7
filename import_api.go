package postrun

import (
	"context"

	"pkt.systems/pslog"

	"pkt.systems/postrun/internal/collection"
	"pkt.systems/postrun/internal/importer"
)

// ImportOptions control how OpenAPI and WSDL documents become Postman collections.
type ImportOptions struct {
	Source string
	// OutputFile receives the collection JSON; empty keeps it in memory only.
	OutputFile      string
	EnvironmentFile string
	CollectionName  string
	GroupBy         string // for openapi: tags|path|none
	Insecure        bool
	AllowRemoteRefs bool
	AllowFileRefs   bool
	DisableTests    bool
	IncludePaths    []string
	Strictness      string // loose|standard|strict
	Logger          pslog.Logger
}

// Collection is a parsed Postman v2.1 collection.
type Collection = collection.Collection

// ImportResult is the generated collection plus the variables its
// environment needs.
type ImportResult struct {
	Collection *Collection
	Variables  map[string]string
}

// ImportOpenAPI generates a Postman collection from an OpenAPI 3 or Swagger 2 document.
func ImportOpenAPI(ctx context.Context, opts ImportOptions) (ImportResult, error) {
	res, err := importer.ImportOpenAPI(ctx, opts.internal())
	return ImportResult(res), err
}

// ImportWSDL generates a Postman collection with one SOAP request per
// binding operation.
func ImportWSDL(ctx context.Context, opts ImportOptions) (ImportResult, error) {
	res, err := importer.ImportWSDL(ctx, opts.internal())
	return ImportResult(res), err
}

func (o ImportOptions) internal() importer.Options {
	return importer.Options{
		Source:          o.Source,
		OutputFile:      o.OutputFile,
		EnvironmentFile: o.EnvironmentFile,
		CollectionName:  o.CollectionName,
		GroupBy:         o.GroupBy,
		Insecure:        o.Insecure,
		AllowRemoteRefs: o.AllowRemoteRefs,
		AllowFileRefs:   o.AllowFileRefs,
		DisableTests:    o.DisableTests,
		IncludePaths:    o.IncludePaths,
		Strictness:      o.Strictness,
		Logger:          o.Logger,
	}
}
