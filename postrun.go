package postrun

import (
	"context"

	"pkt.systems/postrun/internal/runner"
)

// Public type aliases to runner package

type (
	// Engine runs Postman collections.
	Engine = runner.Engine
	// RunOptions configure a single run invocation.
	RunOptions = runner.RunOptions
	// ReporterOptions configure one file reporter.
	ReporterOptions = runner.ReporterOptions
	// Summary aggregates stats, failures and executions of a run.
	Summary = runner.Summary
	// Stats holds per-category total/failed counters.
	Stats = runner.Stats
	// Failure is one failed assertion, script, request or variable lookup.
	Failure = runner.Failure
	// Execution captures one request of one iteration.
	Execution = runner.Execution
	// Assertion is the outcome of one pm.test.
	Assertion = runner.Assertion
	// HookInfo carries request metadata provided to hooks.
	HookInfo = runner.HookInfo
)

// Option tweaks engine construction.
type Option = runner.Option

var (
	// WithLogger supplies a custom pslog logger.
	WithLogger = runner.WithLogger
	// WithHTTPClient injects a custom HTTP client.
	WithHTTPClient = runner.WithHTTPClient
	// WithTimeout sets a default per-request timeout.
	WithTimeout = runner.WithTimeout
	// WithPreRequestHook registers a Go hook invoked before each request (logger provided).
	WithPreRequestHook = runner.WithPreRequestHook
	// WithPostRequestHook registers a Go hook invoked after each request (logger provided).
	WithPostRequestHook = runner.WithPostRequestHook
)

// Failure classifications reported in Failure.Error.Name.
const (
	ErrAssertion = runner.ErrAssertion
	ErrRequest   = runner.ErrRequest
	ErrScript    = runner.ErrScript
	ErrVariable  = runner.ErrVariable
)

// New constructs an Engine.
func New(ctx context.Context, opts ...Option) (Engine, error) {
	return runner.New(ctx, opts...)
}

// FilterReportHeaders applies reporter skip/redaction options to a summary
// before writing outputs.
func FilterReportHeaders(sum Summary, opts RunOptions) Summary {
	return runner.FilterReportHeaders(sum, opts.ReporterSkipAllHeaders, opts.ReporterSkipHeaders)
}

// WriteReport writes sum in format (json|junit|html) to path.
func WriteReport(format, path string, sum Summary) error {
	return runner.WriteReport(format, path, sum)
}
