package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestWithComponentTagsLines(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{Logger: zerolog.New(&buf)}

	l.WithComponent("reconciler").Info().Msg("tick")

	if line := buf.String(); !strings.Contains(line, `"component":"reconciler"`) {
		t.Errorf("expected component field, got %s", line)
	}
}

func TestWithFieldChains(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{Logger: zerolog.New(&buf)}

	l.WithField("company_id", "co-1").WithField("employee_id", "emp-1").Info().Msg("checked in")

	line := buf.String()
	for _, want := range []string{`"company_id":"co-1"`, `"employee_id":"emp-1"`} {
		if !strings.Contains(line, want) {
			t.Errorf("missing %s in %s", want, line)
		}
	}
}

func TestNewLevelFromEnv(t *testing.T) {
	original := os.Getenv("ATTENDLY_LOG_LEVEL")
	defer func() {
		if original != "" {
			os.Setenv("ATTENDLY_LOG_LEVEL", original)
		} else {
			os.Unsetenv("ATTENDLY_LOG_LEVEL")
		}
	}()

	os.Setenv("ATTENDLY_LOG_LEVEL", "debug")
	if got := New("test", "test").GetLevel(); got != zerolog.DebugLevel {
		t.Errorf("New() level = %v, want debug", got)
	}

	// An unknown value falls back to info rather than failing startup.
	os.Setenv("ATTENDLY_LOG_LEVEL", "chatty")
	if got := New("test", "test").GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("New() level = %v, want info", got)
	}
}
