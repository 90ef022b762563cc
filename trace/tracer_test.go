package trace

import (
	"bytes"
	"strings"
	"testing"
)

func TestDumpDisabledIsNoop(t *testing.T) {
	var buf bytes.Buffer
	Init(false, &buf)

	Dump(1, 0, nil, []int64{1, 2, 3})

	if buf.Len() != 0 {
		t.Fatalf("expected no output while disabled, got %q", buf.String())
	}
}

func TestDumpWritesPCAndStack(t *testing.T) {
	var buf bytes.Buffer
	Init(true, &buf)

	window := []OpWindowEntry{
		{Delta: -1, Text: "PUSH 2"},
		{Delta: 0, Text: "ADD"},
	}
	Dump(42, 7, window, []int64{5, 3})

	out := buf.String()
	if !strings.Contains(out, "PC: 7") {
		t.Fatalf("expected PC in output, got %q", out)
	}
	if !strings.Contains(out, "ADD") {
		t.Fatalf("expected opcode window in output, got %q", out)
	}
	if !strings.Contains(out, "(3)") || !strings.Contains(out, "(5)") {
		t.Fatalf("expected stack contents in output, got %q", out)
	}
	if !IsEnabled() {
		t.Fatalf("expected tracer to report enabled")
	}
}
