package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"pkt.systems/postrun/internal/runner"
)

var (
	heavyRule = strings.Repeat("═", 55)
	lightRule = strings.Repeat("─", 55)
)

func (o *Orchestrator) banner(opts Options) {
	fmt.Fprintln(o.out, heavyRule)
	fmt.Fprintln(o.out, "postrun integration test runner")
	fmt.Fprintln(o.out, heavyRule)
	fmt.Fprintf(o.out, "Collection:  %s\n", opts.CollectionPath)
	fmt.Fprintf(o.out, "Environment: %s\n", opts.EnvironmentPath)
	fmt.Fprintf(o.out, "Dataset:     %s\n", opts.DataPath)
	fmt.Fprintf(o.out, "Reporters:   %s\n", strings.Join(opts.Reporters, ","))
	fmt.Fprintln(o.out, heavyRule)
}

func (o *Orchestrator) engineError(err error) {
	fmt.Fprintln(o.out, "\n"+heavyRule)
	fmt.Fprintf(o.out, "Execution error: %v\n", err)
	fmt.Fprintln(o.out, heavyRule)
}

func (o *Orchestrator) summary(sum runner.Summary) {
	fmt.Fprintln(o.out, "\n"+heavyRule)
	fmt.Fprintln(o.out, "Test execution summary:")
	fmt.Fprintln(o.out, heavyRule)
	fmt.Fprintf(o.out, "Total requests: %d\n", sum.Stats.Requests.Total)
	fmt.Fprintf(o.out, "Total assertions: %d\n", sum.Stats.Assertions.Total)
	fmt.Fprintf(o.out, "Failed assertions: %d\n", sum.Stats.Assertions.Failed)
	fmt.Fprintf(o.out, "Iterations: %d\n", sum.Stats.Iterations.Total)
	fmt.Fprintf(o.out, "Duration: %s\n", sum.Elapsed().Round(time.Millisecond))
}

// failures prints every failure numbered from 1.
func (o *Orchestrator) failures(list []runner.Failure) {
	fmt.Fprintf(o.out, "\nTest failures: %d\n", len(list))
	fmt.Fprintln(o.out, lightRule)
	for i, f := range list {
		source := "Unknown"
		if f.Source != nil && f.Source.Name != "" {
			source = f.Source.Name
		}
		fmt.Fprintf(o.out, "\n%d. %s\n", i+1, f.Error.Name)
		fmt.Fprintf(o.out, "   Source: %s\n", source)
		fmt.Fprintf(o.out, "   Message: %s\n", f.Error.Message)
		if f.Error.Test != "" {
			fmt.Fprintf(o.out, "   Test: %s\n", f.Error.Test)
		}
	}
	fmt.Fprintln(o.out, "\n"+heavyRule)
	fmt.Fprintln(o.out, "Integration tests FAILED")
	fmt.Fprintln(o.out, heavyRule)
}

func (o *Orchestrator) success(outputDir string) {
	fmt.Fprintln(o.out, "\nAll integration tests PASSED")
	fmt.Fprintln(o.out, heavyRule)
	fmt.Fprintf(o.out, "Reports saved to: %s\n", outputDir)
	fmt.Fprintln(o.out, heavyRule)
}
