package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"pkt.systems/pslog"
)

// runExternalHook runs cmd with POSTRUN_* variables describing the request and
// streams its output through the logger. A non-zero exit aborts the run.
func runExternalHook(ctx context.Context, phase string, cmd []string, info HookInfo, res *Execution, logger pslog.Base) error {
	if len(cmd) == 0 {
		return nil
	}

	command := exec.CommandContext(ctx, cmd[0], cmd[1:]...)
	command.Env = append(os.Environ(), hookEnv(phase, info, res)...)

	stdout, err := command.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%s-hook: %w", phase, err)
	}
	stderr, err := command.StderrPipe()
	if err != nil {
		return fmt.Errorf("%s-hook: %w", phase, err)
	}

	if err := command.Start(); err != nil {
		return fmt.Errorf("%s-hook start: %w", phase, err)
	}

	var wg sync.WaitGroup
	logStream := func(stream string, rdr io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(rdr)
		for scanner.Scan() {
			logger.Info("hook", "phase", phase, "cmd", cmd[0], "stream", stream, "line", scanner.Text())
		}
	}
	wg.Add(2)
	go logStream("stdout", stdout)
	go logStream("stderr", stderr)

	// pipes must be drained before Wait closes them
	wg.Wait()
	if err := command.Wait(); err != nil {
		return fmt.Errorf("%s-hook failed: %w", phase, err)
	}
	return nil
}

func hookEnv(phase string, info HookInfo, ex *Execution) []string {
	vals := []string{
		"POSTRUN_HOOK_PHASE=" + phase,
		"POSTRUN_NAME=" + info.Name,
		"POSTRUN_ID=" + info.ID,
		"POSTRUN_FOLDER=" + strings.Join(info.Folder, "/"),
		fmt.Sprintf("POSTRUN_ITERATION=%d", info.Iteration),
		"POSTRUN_METHOD=" + info.Method,
		"POSTRUN_URL=" + info.URL,
	}
	if ex != nil {
		failed := 0
		for _, a := range ex.Assertions {
			if !a.Passed && !a.Skipped {
				failed++
			}
		}
		vals = append(vals,
			fmt.Sprintf("POSTRUN_STATUS=%d", ex.Code),
			fmt.Sprintf("POSTRUN_PASSED=%v", !ex.Failed()),
			fmt.Sprintf("POSTRUN_FAILED_COUNT=%d", failed),
			fmt.Sprintf("POSTRUN_DURATION_MS=%d", ex.ResponseTime.Milliseconds()),
		)
	}
	return vals
}
