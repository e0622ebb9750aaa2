package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   log.Level
		logFunc func(*log.Logger)
		wantLog bool
	}{
		{"info at info level", log.InfoLevel, func(l *log.Logger) { l.Info("resolved", "id", "Pester") }, true},
		{"debug at info level", log.InfoLevel, func(l *log.Logger) { l.Debug("query", "id", "Pester") }, false},
		{"debug at debug level", log.DebugLevel, func(l *log.Logger) { l.Debug("query", "id", "Pester") }, true},
		{"warn at info level", log.InfoLevel, func(l *log.Logger) { l.Warn("skipping untrusted repository") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.logFunc(newLogger(&buf, tt.level))

			if got := buf.Len() > 0; got != tt.wantLog {
				t.Errorf("got log output = %v, want %v", got, tt.wantLog)
			}
		})
	}
}

func TestNewLoggerKeyValues(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, log.InfoLevel).Info("installed", "id", "Pester", "version", "5.5.0")

	out := buf.String()
	for _, want := range []string{"installed", "id=Pester", "version=5.5.0"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestProgressDone(t *testing.T) {
	var buf bytes.Buffer
	prog := newProgress(newLogger(&buf, log.InfoLevel))
	time.Sleep(5 * time.Millisecond)
	prog.done("Install finished")

	out := buf.String()
	if !strings.Contains(out, "Install finished (") {
		t.Errorf("output %q missing message with elapsed time", out)
	}
}

func TestLoggerFromContext(t *testing.T) {
	if loggerFromContext(context.Background()) != log.Default() {
		t.Error("empty context should yield log.Default()")
	}

	var buf bytes.Buffer
	custom := newLogger(&buf, log.InfoLevel)
	if got := loggerFromContext(withLogger(context.Background(), custom)); got != custom {
		t.Error("loggerFromContext should return the attached logger")
	}
}

func TestRootCommandAttachesLogger(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, log.InfoLevel)
	root := c.RootCommand()

	var seen *log.Logger
	root.AddCommand(&cobra.Command{
		Use: "probe",
		Run: func(cmd *cobra.Command, args []string) {
			seen = loggerFromContext(cmd.Context())
		},
	})
	root.SetArgs([]string{"probe"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if seen != c.Logger {
		t.Error("commands should see the CLI logger in their context")
	}
}
