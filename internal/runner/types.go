package runner

import (
	"context"
	"net/http"
	"time"

	"pkt.systems/pslog"
)

// Engine is the public interface exposed by this module. It is safe to hold and
// use concurrently from multiple goroutines; each Run keeps its own state.
type Engine interface {
	Run(ctx context.Context, opts RunOptions) (Summary, error)
}

// RunOptions controls one collection run.
type RunOptions struct {
	CollectionPath string
	// EnvironmentPath points to a Postman environment export (optional).
	EnvironmentPath string
	// IterationDataPath points to a JSON/CSV/YAML dataset (optional).
	IterationDataPath string
	// IterationCount executes the collection this many times. 0 means one
	// iteration per dataset row, or 1 without a dataset.
	IterationCount int
	// Reporters lists reporter names in order (cli|json|html|junit).
	Reporters []string
	// ReporterOptions holds per-reporter settings keyed by reporter name.
	ReporterOptions map[string]ReporterOptions
	Timeout         time.Duration // per request timeout; 0 means default (30s)
	Insecure        bool          // skip TLS verification when no HTTPClient is given
	Folders         []string      // only run requests under these folders
	Globals         map[string]string
	Bail            bool          // stop after the first failing request
	Delay           time.Duration // delay between requests; 0 to skip
	HTTPClient      *http.Client
	Logger          pslog.Base

	// ReporterSkipAllHeaders omits all request/response headers from reporter outputs.
	ReporterSkipAllHeaders bool
	// ReporterSkipHeaders removes specific headers (case-insensitive) from reporter outputs.
	ReporterSkipHeaders []string
	PreHookCmd          []string
	PostHookCmd         []string
}

// ReporterOptions configures a single reporter.
type ReporterOptions struct {
	// Export is the file the reporter writes to.
	Export string
}

// HookInfo provides the request metadata exposed to user hooks without
// leaking collection types.
type HookInfo struct {
	Name      string
	ID        string
	Folder    []string
	Iteration int
	Method    string
	URL       string
}

// PreRequestHook is invoked after prerequest scripts ran and the HTTP request
// was built. It can mutate the *http.Request or return an error to abort the run.
type PreRequestHook func(ctx context.Context, info HookInfo, req *http.Request, logger pslog.Base) error

// PostRequestHook is invoked after the response arrived and test scripts ran.
// Returning an error aborts the run.
type PostRequestHook func(ctx context.Context, info HookInfo, exec Execution, logger pslog.Base) error

// Summary is the outcome of one run.
type Summary struct {
	Collection  string      `json:"collection"`
	Environment string      `json:"environment,omitempty"`
	Stats       Stats       `json:"stats"`
	Failures    []Failure   `json:"failures"`
	Executions  []Execution `json:"executions"`
	Started     time.Time   `json:"started"`
	Completed   time.Time   `json:"completed"`
}

// Elapsed is the wall time of the run.
func (s Summary) Elapsed() time.Duration {
	if s.Completed.IsZero() {
		return 0
	}
	return s.Completed.Sub(s.Started)
}

// FailureCount returns the number of recorded failures.
func (s Summary) FailureCount() int { return len(s.Failures) }

// Passed reports whether the run recorded no failures.
func (s Summary) Passed() bool { return len(s.Failures) == 0 }

// Stats aggregates counters for a run.
type Stats struct {
	Iterations        Counter `json:"iterations"`
	Items             Counter `json:"items"`
	Requests          Counter `json:"requests"`
	PrerequestScripts Counter `json:"prerequestScripts"`
	TestScripts       Counter `json:"testScripts"`
	Assertions        Counter `json:"assertions"`
}

// Counter is a total/failed pair.
type Counter struct {
	Total  int `json:"total"`
	Failed int `json:"failed"`
}

// Failure classifications.
const (
	ErrAssertion = "AssertionError"
	ErrRequest   = "RequestError"
	ErrScript    = "ScriptError"
	ErrVariable  = "VariableError"
)

// Failure is one thing that went wrong during a run.
type Failure struct {
	Error     FailureError `json:"error"`
	Source    *Source      `json:"source,omitempty"`
	At        string       `json:"at"`
	Iteration int          `json:"iteration"`
}

// FailureError classifies a failure.
type FailureError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Test    string `json:"test,omitempty"`
}

// Source identifies the request a failure came from.
type Source struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Execution captures one request of one iteration.
type Execution struct {
	Item      string   `json:"item"`
	ItemID    string   `json:"itemId,omitempty"`
	Folder    []string `json:"folder,omitempty"`
	Iteration int      `json:"iteration"`
	Method    string   `json:"method"`
	URL       string   `json:"url"`
	// RequestHeaders captures the request headers sent.
	RequestHeaders map[string]string `json:"requestHeaders,omitempty"`
	// ResponseHeaders captures the response headers returned.
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	Code            int               `json:"code,omitempty"`
	Status          string            `json:"status,omitempty"`
	ResponseSize    int               `json:"responseSize,omitempty"`
	ResponseTime    time.Duration     `json:"responseTime"`
	Assertions      []Assertion       `json:"assertions,omitempty"`
	Console         []string          `json:"console,omitempty"`
	// Skipped is set when a prerequest script called pm.execution.skipRequest.
	Skipped bool `json:"skipped,omitempty"`
	// ErrorText is set when the request could not be built or sent.
	ErrorText string `json:"error,omitempty"`
}

// Failed reports whether the execution had a request error or a failed assertion.
func (e Execution) Failed() bool {
	if e.ErrorText != "" {
		return true
	}
	for _, a := range e.Assertions {
		if !a.Passed && !a.Skipped {
			return true
		}
	}
	return false
}

// Assertion is the result of one pm.test or tests[...] entry.
type Assertion struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Option modifies an Engine at construction time.
type Option func(*runnerConfig)

// WithPreRequestHook registers a Go hook invoked before each request is sent.
func WithPreRequestHook(h PreRequestHook) Option {
	return func(rc *runnerConfig) { rc.preHook = h }
}

// WithPostRequestHook registers a Go hook invoked after each request finishes (tests included).
func WithPostRequestHook(h PostRequestHook) Option {
	return func(rc *runnerConfig) { rc.postHook = h }
}

// WithLogger overrides the default logger (pslog console).
func WithLogger(logger pslog.Base) Option {
	return func(rc *runnerConfig) { rc.logger = logger }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(rc *runnerConfig) { rc.httpClient = client }
}

// WithTimeout sets the default per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(rc *runnerConfig) { rc.timeout = timeout }
}
