package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	if !l.SetLogLevel("error") {
		t.Fatal("expected error level to be accepted")
	}
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at error level, got %q", buf.String())
	}

	if !l.SetLogLevel("DEBUG") {
		t.Fatal("expected level names to be case insensitive")
	}
	l.Debug("shown", "file", "a.txt")
	out := buf.String()
	if !strings.Contains(out, "shown") || !strings.Contains(out, "file=a.txt") {
		t.Errorf("unexpected output %q", out)
	}
	if !strings.Contains(out, "timestamp=") {
		t.Errorf("time key should be renamed, got %q", out)
	}

	if l.SetLogLevel("verbose") {
		t.Error("unknown level should be rejected")
	}
}
