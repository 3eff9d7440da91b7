package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"
)

func TestLogConfigLevels(t *testing.T) {
	cases := []struct {
		name     string
		env      string
		cfg      logConfig
		emit     func(pslog.Logger)
		want     []string
		filtered []string
	}{
		{
			name:     "default info",
			cfg:      logConfig{level: "info"},
			emit:     func(l pslog.Logger) { l.Debug("dbg-line"); l.Info("info-line") },
			want:     []string{"info-line"},
			filtered: []string{"dbg-line"},
		},
		{
			name: "env applies when flag unset",
			env:  "trace",
			cfg:  logConfig{level: "info"},
			emit: func(l pslog.Logger) { l.Debug("dbg-line") },
			want: []string{"dbg-line"},
		},
		{
			name:     "explicit flag beats env",
			env:      "trace",
			cfg:      logConfig{level: "error", explicit: true},
			emit:     func(l pslog.Logger) { l.Info("info-line"); l.Error("err-line") },
			want:     []string{"err-line"},
			filtered: []string{"info-line"},
		},
		{
			name: "structured",
			cfg:  logConfig{level: "info", structured: true},
			emit: func(l pslog.Logger) { l.Info("hello", "k", "v") },
			want: []string{`"k":"v"`},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tc.env)
			var buf bytes.Buffer
			logger, err := tc.cfg.build(&buf)
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			tc.emit(logger)
			out := buf.String()
			for _, w := range tc.want {
				if !strings.Contains(out, w) {
					t.Fatalf("missing %q in %q", w, out)
				}
			}
			for _, f := range tc.filtered {
				if strings.Contains(out, f) {
					t.Fatalf("%q should be filtered, got %q", f, out)
				}
			}
		})
	}
}

func TestLogConfigRejectsUnknownExplicitLevel(t *testing.T) {
	if _, err := (logConfig{level: "loud", explicit: true}).build(&bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestLogConfigFromFlags(t *testing.T) {
	cmd := &cobra.Command{}
	addLoggingFlags(cmd.Flags())
	if err := cmd.Flags().Parse([]string{"--log-level", "debug", "--structured"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := logConfigFrom(cmd.Flags())
	if !got.explicit || got.level != "debug" || !got.structured || got.caller {
		t.Fatalf("unexpected config %+v", got)
	}
}

func TestLoggerFromCmdPrefersContext(t *testing.T) {
	var buf bytes.Buffer
	want := pslog.NewStructured(&buf).With("marker", "ctx")
	cmd := &cobra.Command{}
	addLoggingFlags(cmd.Flags())
	cmd.SetContext(pslog.ContextWithLogger(context.Background(), want))

	loggerFromCmd(cmd).Info("from-context")
	if !strings.Contains(buf.String(), `"marker":"ctx"`) {
		t.Fatalf("expected context logger, got %q", buf.String())
	}
}
