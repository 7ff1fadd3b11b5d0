package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/xyproto/env/v2"
)

// setenv sets a variable for the test and reloads the env cache, both now
// and after the variable is restored.
func setenv(t *testing.T, key, value string) {
	t.Helper()
	t.Cleanup(env.Load)
	t.Setenv(key, value)
	env.Load()
}

func TestLevel(t *testing.T) {
	tests := []struct {
		value string
		want  log.Level
	}{
		{"debug", log.DebugLevel},
		{"WARN", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"", log.InfoLevel},
		{"chatty", log.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			setenv(t, "SCTOOLS_LOG_LEVEL", tt.value)
			if got := Level(); got != tt.want {
				t.Errorf("Level() = %v, want %v", got, tt.want)
			}
			if IsDebug() != (tt.want == log.DebugLevel) {
				t.Errorf("IsDebug() = %v", IsDebug())
			}
		})
	}
}

func TestPrefixAndFiltering(t *testing.T) {
	setenv(t, "SCTOOLS_LOG_LEVEL", "warn")
	setenv(t, "SCTOOLS_LOG_PREFIX", "test ")

	var buf bytes.Buffer
	lg := NewLoggerWithWriter(&buf)
	lg.Info("hidden")
	lg.Warn("shown", "addr", 16)
	if err := lg.Close(); err != nil {
		t.Fatal(err)
	}
	if lg.GetLevel() != log.WarnLevel {
		t.Errorf("level = %v, want warn", lg.GetLevel())
	}

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at warn level: %q", out)
	}
	if !strings.Contains(out, "test") || !strings.Contains(out, "shown") || !strings.Contains(out, "addr=16") {
		t.Errorf("output = %q", out)
	}
}

func TestEnvironmentChangesAreSeen(t *testing.T) {
	setenv(t, "SCTOOLS_LOG_LEVEL", "error")
	if got := Level(); got != log.ErrorLevel {
		t.Fatalf("Level() = %v, want error", got)
	}
	setenv(t, "SCTOOLS_LOG_LEVEL", "debug")
	if got := Level(); got != log.DebugLevel {
		t.Errorf("Level() after change = %v, want debug", got)
	}
}
