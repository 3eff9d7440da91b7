package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"
)

// exitError carries a process exit code out of a cobra RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// ExitCode returns the process exit code.
func (e *exitError) ExitCode() int { return e.code }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "postrun",
		Short: "Run Postman collections with environments and data-driven iterations",
		Long: `postrun executes a Postman v2.1 collection, optionally with an environment
file and a dataset (JSON, CSV or YAML) that drives one iteration per row.

Exit codes: 0 all tests passed, 1 collection file missing, 2 execution error,
3 one or more test failures.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logConfigFrom(cmd.Flags()).build(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			cmd.SetContext(pslog.ContextWithLogger(cmd.Context(), logger))
			return nil
		},
		RunE: runE,
	}

	addLoggingFlags(root.PersistentFlags())
	addRunFlags(root.Flags())
	root.AddCommand(newImportCmd())
	return root
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		// the run already reported its outcome
		return ee.ExitCode()
	}
	// Cobra parse / usage errors
	fmt.Fprintln(stderr, err)
	return 1
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
