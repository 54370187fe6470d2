package prettylog_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nsmith5/corosched/internal/prettylog"
)

// format runs input (one or more JSON log lines) through a Writer and
// returns the rendered console output.
func format(t *testing.T, input string) string {
	t.Helper()
	t.Setenv("NO_COLOR", "1")

	var buf bytes.Buffer
	w := prettylog.NewWriter(&buf)
	for _, line := range strings.SplitAfter(input, "\n") {
		if len(line) == 0 {
			continue
		}
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	return buf.String()
}

func TestPrettyLogRendersCoroutineAndTick(t *testing.T) {
	const line = `{"time":"2024-01-01T00:00:00Z","level":"INFO","msg":"hello","coroutine":3,"tick":42}` + "\n"

	out := format(t, line)
	// coroutine and tick are rendered as fixed-width columns (padded
	// bare values), not "key=value" fields like the generic ones below.
	for _, want := range []string{"INF", "hello", "42", "3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "coroutine=") || strings.Contains(out, "tick=") {
		t.Errorf("output %q should not key=value format coroutine/tick columns", out)
	}
}

// TestPrettyLogOmitsMissingCoroutineColumn verifies that a log record
// fired outside of a running coroutine (no "coroutine" attr attached)
// doesn't render a stray "<nil>" column.
func TestPrettyLogOmitsMissingCoroutineColumn(t *testing.T) {
	const line = `{"time":"2024-01-01T00:00:00Z","level":"INFO","msg":"hello","tick":7}` + "\n"

	out := format(t, line)
	if strings.Contains(out, "<nil>") {
		t.Errorf("output %q should omit the coroutine column entirely, not print <nil>", out)
	}
	if !strings.Contains(out, "hello") {
		t.Errorf("output %q missing message", out)
	}
}

func TestPrettyLogRendersExtraFields(t *testing.T) {
	const line = `{"time":"2024-01-01T00:00:00Z","level":"ERROR","msg":"boom","err":"deadline exceeded"}` + "\n"

	out := format(t, line)
	for _, want := range []string{"ERR", "boom", "err=", "deadline exceeded"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestPrettyLogPassesThroughUndecodableInput(t *testing.T) {
	var buf bytes.Buffer
	w := prettylog.NewWriter(&buf)

	_, err := w.Write([]byte("not json\n"))
	if err == nil {
		t.Fatal("expected a decode error")
	}
	if got := buf.String(); got != "not json\n" {
		t.Errorf("expected undecodable input written through unchanged, got %q", got)
	}
}

func TestNewWriterHonorsForceColor(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Setenv("TERM", "dumb")
	t.Setenv("FORCE_COLOR", "1")

	var buf bytes.Buffer
	w := prettylog.NewWriter(&buf)
	_, err := w.Write([]byte(`{"time":"2024-01-01T00:00:00Z","level":"INFO","msg":"colored"}` + "\n"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("expected ANSI escape codes with FORCE_COLOR set, got %q", buf.String())
	}
}
