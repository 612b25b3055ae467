package main

import (
	"strings"
	"testing"
)

func TestRenderTablePlainStyleWithoutTerminal(t *testing.T) {
	if stdoutIsTerminal() {
		t.Skip("stdout is a terminal")
	}

	out := renderTable(
		[]string{"USER", "SCORE"},
		[][]string{{"alice", "97"}},
		[]columnAlignment{alignLeft, alignRight},
	)
	if strings.Contains(out, "╭") || strings.Contains(out, "╰") {
		t.Fatalf("rounded border used without a terminal:\n%s", out)
	}
	if !strings.Contains(out, "alice") || !strings.Contains(out, "97") {
		t.Fatalf("row missing from output:\n%s", out)
	}
}

func TestRenderTableEmptyHeaders(t *testing.T) {
	if out := renderTable(nil, nil, nil); out != "" {
		t.Fatalf("renderTable(nil) = %q, want empty", out)
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable(
		[]string{"CAPTURE", "LABEL", "SCORE"},
		[][]string{{"cap_001.json"}},
		nil,
	)
	if !strings.Contains(out, "cap_001.json") {
		t.Fatalf("short row dropped:\n%s", out)
	}
}
