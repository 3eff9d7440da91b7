package runner

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"pkt.systems/pslog"

	"pkt.systems/postrun/internal/collection"
	"pkt.systems/postrun/internal/dataset"
)

const defaultTimeout = 30 * time.Second

// runner implements Engine.
type runner struct {
	logger     pslog.Base
	httpClient *http.Client
	timeout    time.Duration
	preHook    PreRequestHook
	postHook   PostRequestHook
}

type runnerConfig struct {
	logger     pslog.Base
	httpClient *http.Client
	timeout    time.Duration
	preHook    PreRequestHook
	postHook   PostRequestHook
}

// New constructs an Engine with optional configuration.
func New(ctx context.Context, opts ...Option) (Engine, error) {
	if ctx == nil {
		return nil, errors.New("nil context")
	}
	cfg := runnerConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = pslog.New(os.Stdout)
	}
	if cfg.timeout == 0 {
		cfg.timeout = defaultTimeout
	}
	return &runner{
		logger:     cfg.logger,
		httpClient: cfg.httpClient,
		timeout:    cfg.timeout,
		preHook:    cfg.preHook,
		postHook:   cfg.postHook,
	}, nil
}

// Run loads the collection, environment and iteration data named in opts and
// executes every item once per iteration. Failures inside the run (assertions,
// scripts, transport) are recorded in the summary; the error return is
// reserved for problems that prevent the run from completing.
func (r *runner) Run(ctx context.Context, opts RunOptions) (Summary, error) {
	if ctx == nil {
		return Summary{}, errors.New("nil context")
	}
	logger := r.logger
	if opts.Logger != nil {
		logger = opts.Logger
	}
	timeout := r.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	coll, err := collection.Load(ctx, opts.CollectionPath)
	if err != nil {
		return Summary{}, fmt.Errorf("load collection: %w", err)
	}
	items, err := coll.Items(opts.Folders...)
	if err != nil {
		if !errors.Is(err, collection.ErrNoItems) || len(opts.Folders) > 0 {
			return Summary{}, err
		}
		logger.Warn("collection has no requests", "collection", coll.Info.Name)
	}

	var envName string
	var envValues map[string]string
	if opts.EnvironmentPath != "" {
		env, err := collection.LoadEnvironment(ctx, opts.EnvironmentPath)
		if err != nil {
			return Summary{}, fmt.Errorf("load environment: %w", err)
		}
		envName, envValues = env.Name, env.Values
	}

	var rows []dataset.Row
	if opts.IterationDataPath != "" {
		rows, err = dataset.Load(opts.IterationDataPath)
		if err != nil {
			return Summary{}, fmt.Errorf("load iteration data: %w", err)
		}
	}
	iterations := opts.IterationCount
	if iterations <= 0 {
		iterations = max(len(rows), 1)
	}

	sum := Summary{
		Collection:  coll.Info.Name,
		Environment: envName,
		Failures:    []Failure{},
		Executions:  []Execution{},
		Started:     time.Now(),
	}
	x := &execRun{
		engine:     r,
		opts:       opts,
		logger:     logger,
		client:     r.clientFor(opts),
		timeout:    timeout,
		baseDir:    filepath.Dir(opts.CollectionPath),
		items:      items,
		rows:       rows,
		iterations: iterations,
		scopes:     newScopes(opts.Globals, coll.Variable, envValues),
		sum:        &sum,
	}
	logger.Debug("run start", "collection", coll.Info.Name, "items", len(items), "iterations", iterations)
	err = x.loop(ctx)
	sum.Completed = time.Now()
	if err != nil {
		return sum, err
	}
	if err := writeReports(sum, opts, logger); err != nil {
		return sum, err
	}
	logger.Debug("run complete", "failures", len(sum.Failures), "elapsed", sum.Elapsed())
	return sum, nil
}

func (r *runner) clientFor(opts RunOptions) *http.Client {
	if opts.HTTPClient != nil {
		return opts.HTTPClient
	}
	if r.httpClient != nil {
		return r.httpClient
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: opts.Insecure}, //nolint:gosec // user controlled
		},
	}
}

// execRun is the mutable state of a single Run call.
type execRun struct {
	engine     *runner
	opts       RunOptions
	logger     pslog.Base
	client     *http.Client
	timeout    time.Duration
	baseDir    string
	items      []collection.Item
	rows       []dataset.Row
	iterations int
	scopes     *scopes
	sum        *Summary
	sent       int
}

func (x *execRun) loop(ctx context.Context) error {
	for iter := 0; iter < x.iterations; iter++ {
		var row dataset.Row
		if len(x.rows) > 0 {
			row = x.rows[min(iter, len(x.rows)-1)]
		}
		x.scopes.startIteration(row)
		x.sum.Stats.Iterations.Total++
		failuresBefore := len(x.sum.Failures)
		bail := false

		for i := 0; i < len(x.items); {
			if err := ctx.Err(); err != nil {
				return err
			}
			if x.opts.Delay > 0 && x.sent > 0 {
				if err := sleepCtx(ctx, x.opts.Delay); err != nil {
					return err
				}
			}
			itemFailures := len(x.sum.Failures)
			st, err := x.runItem(ctx, x.items[i], iter)
			if err != nil {
				return err
			}
			if x.opts.Bail && len(x.sum.Failures) > itemFailures {
				bail = true
				break
			}
			if !st.nextSet {
				i++
				continue
			}
			if st.nextStop {
				x.logger.Debug("setNextRequest(null), ending iteration", "iter", iter+1, "item", st.item.Name)
				break
			}
			next := findItem(x.items, st.nextName)
			if next < 0 {
				x.logger.Warn("setNextRequest target not found, ending iteration", "iter", iter+1, "target", st.nextName)
				break
			}
			i = next
		}

		if len(x.sum.Failures) > failuresBefore {
			x.sum.Stats.Iterations.Failed++
		}
		if bail {
			x.logger.Warn("bail: stopping run after first failure", "iter", iter+1)
			return nil
		}
	}
	return nil
}

func (x *execRun) runItem(ctx context.Context, it collection.Item, iter int) (*itemState, error) {
	x.scopes.startItem(it.Variables)
	draft := cloneRequest(it.Request)
	st := &itemState{
		item:       it,
		iteration:  iter,
		iterations: x.iterations,
		scopes:     x.scopes,
		request:    &draft,
		logger:     x.logger,
	}
	ex := Execution{Item: it.Name, ItemID: it.ID, Folder: it.Path, Iteration: iter, Method: draft.Method}
	source := &Source{ID: it.ID, Name: it.FullName()}
	failuresBefore := len(x.sum.Failures)
	x.sum.Stats.Items.Total++
	flushed := 0
	defer func() {
		if len(x.sum.Failures) > failuresBefore {
			x.sum.Stats.Items.Failed++
		}
	}()

	for _, src := range it.Prerequest {
		x.sum.Stats.PrerequestScripts.Total++
		if err := st.run("prerequest", src); err != nil {
			x.sum.Stats.PrerequestScripts.Failed++
			x.scriptFailure(err, "prerequest", source, iter)
		}
		flushed = x.collect(st, &ex, flushed, "prerequest", source, iter)
	}

	if st.skip {
		ex.Skipped = true
		x.record(st, &ex)
		return st, nil
	}

	x.sent++
	x.sum.Stats.Requests.Total++
	req, err := buildHTTPRequest(*st.request, it.Auth, x.scopes, x.baseDir)
	if err != nil {
		name := ErrRequest
		var unresolved *unresolvedError
		if errors.As(err, &unresolved) {
			name = ErrVariable
		}
		x.sum.Stats.Requests.Failed++
		ex.Method = strings.ToUpper(st.request.Method)
		ex.URL = x.scopes.expand(st.request.URL.Raw)
		ex.ErrorText = err.Error()
		x.fail(name, err.Error(), "", "request", source, iter)
		x.record(st, &ex)
		return st, nil
	}
	ex.Method = req.Method
	ex.URL = req.URL.String()
	st.sentURL = ex.URL

	info := HookInfo{Name: it.Name, ID: it.ID, Folder: it.Path, Iteration: iter, Method: req.Method, URL: ex.URL}
	if x.engine.preHook != nil {
		if err := x.engine.preHook(ctx, info, req, x.logger); err != nil {
			return st, fmt.Errorf("pre-request hook: %w", err)
		}
		ex.Method, ex.URL = req.Method, req.URL.String()
	}
	if err := runExternalHook(ctx, "pre", x.opts.PreHookCmd, info, nil, x.logger); err != nil {
		return st, err
	}
	ex.RequestHeaders = headerMap(req.Header)

	res, elapsed, err := x.send(ctx, req)
	ex.ResponseTime = elapsed
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return st, ctxErr
		}
		// Surface connection/refused/timeout as an item failure instead of aborting the run.
		x.sum.Stats.Requests.Failed++
		ex.ErrorText = fmt.Sprintf("http request failed: %v", err)
		x.fail(ErrRequest, err.Error(), "", "request", source, iter)
		x.record(st, &ex)
		return st, nil
	}
	st.response = res
	ex.Code = res.code
	ex.Status = res.reason
	ex.ResponseHeaders = headerMap(res.header)
	ex.ResponseSize = len(res.body)

	for _, src := range it.Test {
		x.sum.Stats.TestScripts.Total++
		if err := st.run("test", src); err != nil {
			x.sum.Stats.TestScripts.Failed++
			x.scriptFailure(err, "test", source, iter)
		}
		flushed = x.collect(st, &ex, flushed, "test", source, iter)
	}
	x.record(st, &ex)

	if x.engine.postHook != nil {
		if err := x.engine.postHook(ctx, info, ex, x.logger); err != nil {
			return st, fmt.Errorf("post-request hook: %w", err)
		}
	}
	if err := runExternalHook(ctx, "post", x.opts.PostHookCmd, info, &ex, x.logger); err != nil {
		return st, err
	}
	return st, nil
}

func (x *execRun) send(ctx context.Context, req *http.Request) (*response, time.Duration, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	start := time.Now()
	resp, err := x.client.Do(req.WithContext(ctxTimeout))
	if err != nil {
		return nil, time.Since(start), err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		return nil, elapsed, err
	}
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	return &response{
		code:    resp.StatusCode,
		reason:  reason,
		header:  resp.Header,
		body:    body,
		elapsed: elapsed,
	}, elapsed, nil
}

// collect moves assertions recorded since `from` into the execution and
// records failed ones. It returns the new watermark.
func (x *execRun) collect(st *itemState, ex *Execution, from int, event string, source *Source, iter int) int {
	for i := from; i < len(st.assertions); i++ {
		a := st.assertions[i]
		ex.Assertions = append(ex.Assertions, a)
		if a.Skipped {
			continue
		}
		x.sum.Stats.Assertions.Total++
		if a.Passed {
			continue
		}
		x.sum.Stats.Assertions.Failed++
		x.fail(ErrAssertion, a.Error, a.Name, fmt.Sprintf("assertion:%d in %s-script", i, event), source, iter)
	}
	return len(st.assertions)
}

func (x *execRun) record(st *itemState, ex *Execution) {
	ex.Console = st.console
	x.sum.Executions = append(x.sum.Executions, *ex)
}

func (x *execRun) scriptFailure(err error, event string, source *Source, iter int) {
	name, msg := jsError(err)
	if name != "" {
		msg = name + ": " + msg
	}
	x.fail(ErrScript, msg, "", event+"-script", source, iter)
}

func (x *execRun) fail(name, msg, test, at string, source *Source, iter int) {
	x.logger.Debug("failure", "iter", iter+1, "item", source.Name, "kind", name, "err", msg)
	x.sum.Failures = append(x.sum.Failures, Failure{
		Error:     FailureError{Name: name, Message: msg, Test: test},
		Source:    source,
		At:        at,
		Iteration: iter,
	})
}

// findItem resolves a setNextRequest target by name, full path or id.
func findItem(items []collection.Item, target string) int {
	if i := slices.IndexFunc(items, func(it collection.Item) bool { return it.Name == target }); i >= 0 {
		return i
	}
	return slices.IndexFunc(items, func(it collection.Item) bool {
		return it.FullName() == target || (it.ID != "" && it.ID == target)
	})
}

func cloneRequest(r collection.Request) collection.Request {
	out := r
	out.Header = slices.Clone(r.Header)
	out.URL.Query = slices.Clone(r.URL.Query)
	out.URL.Variable = slices.Clone(r.URL.Variable)
	if r.Body != nil {
		b := *r.Body
		out.Body = &b
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
