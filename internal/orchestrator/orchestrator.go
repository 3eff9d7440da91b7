// Package orchestrator validates run inputs, derives the run configuration,
// hands it to the execution engine once and maps the result to an Outcome.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pkt.systems/pslog"

	"pkt.systems/postrun/internal/dataset"
	"pkt.systems/postrun/internal/runner"
)

// Defaults applied by DefaultOptions.
const (
	DefaultCollection  = "./collection.json"
	DefaultEnvironment = "./env.json"
	DefaultDataset     = "./dataset.json"
	DefaultReporters   = "cli,json,html"
	DefaultOutputDir   = "./newman-results"
	DefaultTimeout     = 30 * time.Second
)

// ErrCollectionNotFound is returned (wrapped with the path) when the
// collection file does not exist.
var ErrCollectionNotFound = errors.New("collection file not found")

// Outcome is the terminal state of one invocation. Its value is the process
// exit code.
type Outcome int

const (
	Success           Outcome = 0
	MissingCollection Outcome = 1
	EngineFailure     Outcome = 2
	AssertionFailures Outcome = 3
)

// ExitCode returns the process exit code for the outcome.
func (o Outcome) ExitCode() int { return int(o) }

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case MissingCollection:
		return "missing-collection"
	case EngineFailure:
		return "engine-failure"
	case AssertionFailures:
		return "assertion-failures"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Options is the raw input of one invocation, usually straight from flags.
type Options struct {
	CollectionPath  string
	EnvironmentPath string
	DataPath        string
	Reporters       []string
	OutputDir       string
	Timeout         time.Duration
	Insecure        bool

	Bail                   bool
	Delay                  time.Duration
	Folders                []string
	Globals                map[string]string
	ReporterSkipAllHeaders bool
	ReporterSkipHeaders    []string
	PreHookCmd             []string
	PostHookCmd            []string
	HTTPClient             *http.Client
}

// DefaultOptions returns the options used when no flag overrides them.
func DefaultOptions() Options {
	return Options{
		CollectionPath:  DefaultCollection,
		EnvironmentPath: DefaultEnvironment,
		DataPath:        DefaultDataset,
		Reporters:       ParseReporters(DefaultReporters),
		OutputDir:       DefaultOutputDir,
		Timeout:         DefaultTimeout,
		Insecure:        true,
	}
}

// ParseReporters splits a comma separated reporter list, dropping blanks.
func ParseReporters(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Config is the run configuration derived from Options. It is built once
// per invocation and passed by value.
type Config struct {
	CollectionPath string
	// EnvironmentPath is empty when no environment file was found.
	EnvironmentPath string
	// DataPath is empty when the dataset is absent or unusable.
	DataPath       string
	Reporters      []string
	OutputDir      string
	Timeout        time.Duration
	IterationCount int
	Insecure       bool

	opts Options
}

// RunOptions converts the configuration into the engine's options. File
// reporters export into the output directory.
func (c Config) RunOptions() runner.RunOptions {
	reporterOpts := map[string]runner.ReporterOptions{}
	for _, name := range c.Reporters {
		name = strings.ToLower(name)
		if ext := runner.ReportExtension(name); ext != "" {
			reporterOpts[name] = runner.ReporterOptions{Export: filepath.Join(c.OutputDir, "newman-report."+ext)}
		}
	}
	return runner.RunOptions{
		CollectionPath:         c.CollectionPath,
		EnvironmentPath:        c.EnvironmentPath,
		IterationDataPath:      c.DataPath,
		IterationCount:         c.IterationCount,
		Reporters:              append([]string(nil), c.Reporters...),
		ReporterOptions:        reporterOpts,
		Timeout:                c.Timeout,
		Insecure:               c.Insecure,
		Folders:                c.opts.Folders,
		Globals:                c.opts.Globals,
		Bail:                   c.opts.Bail,
		Delay:                  c.opts.Delay,
		HTTPClient:             c.opts.HTTPClient,
		ReporterSkipAllHeaders: c.opts.ReporterSkipAllHeaders,
		ReporterSkipHeaders:    c.opts.ReporterSkipHeaders,
		PreHookCmd:             c.opts.PreHookCmd,
		PostHookCmd:            c.opts.PostHookCmd,
	}
}

// Result is what Execute hands back to the caller.
type Result struct {
	Outcome Outcome
	Config  Config
	Summary runner.Summary
	Err     error
}

// Orchestrator drives a single run against an Engine.
type Orchestrator struct {
	engine runner.Engine
	out    io.Writer
	logger pslog.Base
}

// New returns an Orchestrator that prints its console summary to out.
func New(engine runner.Engine, out io.Writer, logger pslog.Base) *Orchestrator {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = pslog.New(os.Stdout)
	}
	return &Orchestrator{engine: engine, out: out, logger: logger}
}

// Execute validates inputs, prepares the output directory and calls the
// engine exactly once. It never exits the process.
func (o *Orchestrator) Execute(ctx context.Context, opts Options) Result {
	if len(opts.Reporters) == 0 {
		opts.Reporters = ParseReporters(DefaultReporters)
	}
	if opts.OutputDir == "" {
		opts.OutputDir = DefaultOutputDir
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	o.banner(opts)

	cfg := Config{
		Reporters:      opts.Reporters,
		OutputDir:      opts.OutputDir,
		Timeout:        opts.Timeout,
		IterationCount: 1,
		Insecure:       opts.Insecure,
		opts:           opts,
	}

	if !fileExists(opts.CollectionPath) {
		err := fmt.Errorf("%w: %s", ErrCollectionNotFound, opts.CollectionPath)
		o.logger.Error("collection file not found", "path", opts.CollectionPath)
		fmt.Fprintf(o.out, "Collection file not found: %s\n", opts.CollectionPath)
		return Result{Outcome: MissingCollection, Config: cfg, Err: err}
	}
	cfg.CollectionPath = absPath(opts.CollectionPath)

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		err = fmt.Errorf("create output directory: %w", err)
		o.logger.Error("output directory", "path", opts.OutputDir, "err", err)
		o.engineError(err)
		return Result{Outcome: EngineFailure, Config: cfg, Err: err}
	}

	if opts.EnvironmentPath != "" && fileExists(opts.EnvironmentPath) {
		o.logger.Info("loading environment file", "path", opts.EnvironmentPath)
		cfg.EnvironmentPath = absPath(opts.EnvironmentPath)
	} else {
		o.logger.Warn("environment file not found, continuing without it", "path", opts.EnvironmentPath)
	}

	if opts.DataPath != "" && fileExists(opts.DataPath) {
		o.logger.Info("loading dataset file for data-driven testing", "path", opts.DataPath)
		n, err := dataset.Count(opts.DataPath)
		if err != nil {
			o.logger.Warn("could not parse dataset, using default iteration count", "path", opts.DataPath, "err", err)
		} else {
			cfg.DataPath = absPath(opts.DataPath)
			cfg.IterationCount = n
			o.logger.Info("dataset loaded", "iterations", n)
		}
	} else {
		o.logger.Warn("dataset file not found, running single iteration", "path", opts.DataPath)
	}

	fmt.Fprintln(o.out, "\nStarting test execution...")
	fmt.Fprintln(o.out)
	sum, err := o.engine.Run(ctx, cfg.RunOptions())
	if err != nil {
		o.logger.Error("execution error", "err", err)
		o.engineError(err)
		return Result{Outcome: EngineFailure, Config: cfg, Summary: sum, Err: err}
	}

	o.summary(sum)
	if !sum.Passed() {
		o.failures(sum.Failures)
		return Result{Outcome: AssertionFailures, Config: cfg, Summary: sum}
	}
	o.success(cfg.OutputDir)
	return Result{Outcome: Success, Config: cfg, Summary: sum}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
