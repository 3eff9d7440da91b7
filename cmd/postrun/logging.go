package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"pkt.systems/pslog"
)

// logConfig is the logging setup selected on the command line.
type logConfig struct {
	structured bool
	caller     bool
	level      string
	// explicit is set when --log-level was given; it then wins over LOG_LEVEL.
	explicit bool
}

func addLoggingFlags(flags *pflag.FlagSet) {
	if flags.Lookup("log-level") != nil {
		return
	}
	flags.String("log-level", "info", "Log level (trace|debug|info|warn|error)")
	flags.Bool("structured", false, "Emit structured JSON logs")
	flags.Bool("log-caller", false, "Include caller function name on each log line")
}

func logConfigFrom(flags *pflag.FlagSet) logConfig {
	var c logConfig
	c.structured, _ = flags.GetBool("structured")
	c.caller, _ = flags.GetBool("log-caller")
	c.level, _ = flags.GetString("log-level")
	if f := flags.Lookup("log-level"); f != nil {
		c.explicit = f.Changed
	}
	return c
}

// build creates the logger. The level comes from --log-level when given,
// then LOG_LEVEL, then the flag default.
func (c logConfig) build(w io.Writer) (pslog.Logger, error) {
	if w == nil {
		w = os.Stdout
	}
	mode := pslog.ModeConsole
	if c.structured {
		mode = pslog.ModeStructured
	}
	logger := pslog.NewWithOptions(w, pslog.Options{Mode: mode, CallerKeyval: c.caller})

	level, ok := pslog.ParseLevel(c.level)
	switch {
	case c.explicit && !ok:
		return nil, fmt.Errorf("unknown log level %q", c.level)
	case c.explicit:
	default:
		if env, set := pslog.LevelFromEnv("LOG_LEVEL"); set {
			level, ok = env, true
		}
	}
	if !ok {
		level = pslog.InfoLevel
	}
	return logger.LogLevel(level), nil
}

// loggerFromCmd returns the logger installed by the root command, or builds
// one from the flags when the command runs outside the root (tests).
func loggerFromCmd(cmd *cobra.Command) pslog.Logger {
	if logger := pslog.LoggerFromContext(cmd.Context()); logger != nil {
		return logger
	}
	logger, err := logConfigFrom(cmd.Flags()).build(cmd.OutOrStdout())
	if err != nil {
		return pslog.NewWithOptions(cmd.OutOrStdout(), pslog.Options{MinLevel: pslog.InfoLevel})
	}
	return logger
}
