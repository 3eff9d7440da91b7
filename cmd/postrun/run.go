package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"pkt.systems/postrun/internal/orchestrator"
	"pkt.systems/postrun/internal/runner"
)

func addRunFlags(flags *pflag.FlagSet) {
	flags.StringP("collection", "c", orchestrator.DefaultCollection, "Path to the Postman collection")
	flags.StringP("environment", "e", orchestrator.DefaultEnvironment, "Path to the Postman environment (alias --env)")
	flags.StringP("data", "d", orchestrator.DefaultDataset, "Path to the iteration dataset (JSON array, CSV or YAML)")
	flags.String("reporters", orchestrator.DefaultReporters, "Comma separated reporters: cli|json|html|junit")
	flags.String("output", orchestrator.DefaultOutputDir, "Directory for report files")
	flags.Int("timeout", int(orchestrator.DefaultTimeout/time.Millisecond), "Per-request timeout (ms)")
	flags.Bool("insecure", true, "Skip TLS verification")
	flags.Bool("bail", false, "Stop after the first failing request")
	flags.Int("delay-request", 0, "Delay between requests (ms)")
	flags.StringArray("folder", nil, "Only run requests inside this folder (repeatable)")
	flags.StringArray("global-var", nil, "Global variable key=value (repeatable)")
	flags.String("cacert", "", "Path to custom CA certificate (PEM)")
	flags.Bool("ignore-truststore", false, "Use only the provided CA certificate")
	flags.String("client-cert-config", "", "Path to client certificate config JSON {\"cert\":\"\",\"key\":\"\"}")
	flags.Bool("noproxy", false, "Disable proxy (ignore environment)")
	flags.Bool("disable-cookies", false, "Do not store/send cookies between requests")
	flags.Bool("reporter-skip-all-headers", false, "Omit headers from reporter outputs")
	flags.StringSlice("reporter-skip-headers", nil, "Skip specific headers (case-insensitive) from reporter outputs")
	flags.String("run-pre-request", "", "Executable (with args) to run before each request")
	flags.String("run-post-request", "", "Executable (with args) to run after each request")
	flags.SetNormalizeFunc(normalizeRunFlag)
}

// normalizeRunFlag maps --env to --environment.
func normalizeRunFlag(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if name == "env" {
		name = "environment"
	}
	return pflag.NormalizedName(name)
}

func runE(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	collectionPath, _ := flags.GetString("collection")
	envPath, _ := flags.GetString("environment")
	dataPath, _ := flags.GetString("data")
	reporters, _ := flags.GetString("reporters")
	outputDir, _ := flags.GetString("output")
	timeoutMS, _ := flags.GetInt("timeout")
	insecure, _ := flags.GetBool("insecure")
	bail, _ := flags.GetBool("bail")
	delayMS, _ := flags.GetInt("delay-request")
	folders, _ := flags.GetStringArray("folder")
	globalVars, _ := flags.GetStringArray("global-var")
	reportSkipAll, _ := flags.GetBool("reporter-skip-all-headers")
	reportSkip, _ := flags.GetStringSlice("reporter-skip-headers")
	preHookCmd, _ := flags.GetString("run-pre-request")
	postHookCmd, _ := flags.GetString("run-post-request")

	logger := loggerFromCmd(cmd)

	if timeoutMS < 0 || delayMS < 0 {
		return fmt.Errorf("--timeout and --delay-request must be >= 0")
	}
	globals := map[string]string{}
	for _, kv := range globalVars {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return fmt.Errorf("invalid --global-var %q (want key=value)", kv)
		}
		globals[k] = v
	}

	httpClient, err := transportFromFlags(flags).client()
	if err != nil {
		return &exitError{code: orchestrator.EngineFailure.ExitCode(), err: fmt.Errorf("http client: %w", err)}
	}

	engine, err := runner.New(cmd.Context(), runner.WithLogger(logger), runner.WithHTTPClient(httpClient))
	if err != nil {
		return &exitError{code: orchestrator.EngineFailure.ExitCode(), err: err}
	}

	opts := orchestrator.Options{
		CollectionPath:         collectionPath,
		EnvironmentPath:        envPath,
		DataPath:               dataPath,
		Reporters:              orchestrator.ParseReporters(reporters),
		OutputDir:              outputDir,
		Timeout:                time.Duration(timeoutMS) * time.Millisecond,
		Insecure:               insecure,
		Bail:                   bail,
		Delay:                  time.Duration(delayMS) * time.Millisecond,
		Folders:                folders,
		Globals:                globals,
		ReporterSkipAllHeaders: reportSkipAll,
		ReporterSkipHeaders:    reportSkip,
		PreHookCmd:             splitCmd(preHookCmd),
		PostHookCmd:            splitCmd(postHookCmd),
	}
	res := orchestrator.New(engine, cmd.OutOrStdout(), logger).Execute(cmd.Context(), opts)
	if res.Outcome != orchestrator.Success {
		return &exitError{code: res.Outcome.ExitCode(), err: res.Err}
	}
	return nil
}

func splitCmd(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}
