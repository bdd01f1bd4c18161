package main

import (
	"testing"
)

func TestCompareResults(t *testing.T) {
	run := func(stdout string, code int) Execution { return Execution{Stdout: stdout, ExitCode: code} }
	tests := []struct {
		name   string
		golden TargetResult
		target TargetResult
		want   string
	}{
		{"matching behaviour without a pinned hash",
			TargetResult{Run: run("6765\n", 0)},
			TargetResult{AsmHash: "abc", Run: run("6765\n", 0)},
			"PASS"},
		{"matching hash and behaviour",
			TargetResult{AsmHash: "abc", Run: run("", 10)},
			TargetResult{AsmHash: "abc", Run: run("", 10)},
			"PASS"},
		{"assembly drift",
			TargetResult{AsmHash: "abc", Run: run("", 0)},
			TargetResult{AsmHash: "def", Run: run("", 0)},
			"FAIL"},
		{"wrong exit status",
			TargetResult{Run: run("", 10)},
			TargetResult{Run: run("", 9)},
			"FAIL"},
		{"wrong output",
			TargetResult{Run: run("30\n29\n33\n", 0)},
			TargetResult{Run: run("30\n30\n33\n", 0)},
			"FAIL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compareResults("x.ez", &tt.golden, &tt.target)
			if got.Status != tt.want {
				t.Errorf("status = %s, want %s (diff: %s)", got.Status, tt.want, got.Diff)
			}
		})
	}
}
