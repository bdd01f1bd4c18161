package config

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/ezc/pkg/cli"
)

func TestDefaults(t *testing.T) {
	cfg := NewConfig()
	if cfg.WordSize != 8 || cfg.StackAlignment != 16 {
		t.Errorf("word size %d, alignment %d, want 8 and 16", cfg.WordSize, cfg.StackAlignment)
	}
	if cfg.Output != "a.out" {
		t.Errorf("Output = %q, want a.out", cfg.Output)
	}
	for _, ft := range []Feature{FeatCapitalKeywords, FeatComments, FeatDeref} {
		if !cfg.IsFeatureEnabled(ft) {
			t.Errorf("feature %s disabled by default", cfg.Features[ft].Name)
		}
	}
	if cfg.IsWarningEnabled(WarnEmptyBody) {
		t.Error("empty-body enabled by default")
	}
	if !cfg.IsWarningEnabled(WarnInfiniteLoop) || !cfg.IsWarningEnabled(WarnUnreachableCode) {
		t.Error("control-flow warnings disabled by default")
	}
}

func TestApplyFlag(t *testing.T) {
	tests := []struct {
		flag    string
		known   bool
		check   func(*Config) bool
		message string
	}{
		{"-Wempty-body", true, func(c *Config) bool { return c.IsWarningEnabled(WarnEmptyBody) }, "empty-body on"},
		{"-Wno-infinite-loop", true, func(c *Config) bool { return !c.IsWarningEnabled(WarnInfiniteLoop) }, "infinite-loop off"},
		{"-Fno-deref", true, func(c *Config) bool { return !c.IsFeatureEnabled(FeatDeref) }, "deref off"},
		{"Fcomments", true, func(c *Config) bool { return c.IsFeatureEnabled(FeatComments) }, "comments on"},
		{"-Wno-all", true, func(c *Config) bool {
			for w := Warning(0); w < WarnCount; w++ {
				if c.IsWarningEnabled(w) {
					return false
				}
			}
			return true
		}, "every warning off"},
		{"-Wshadow", false, nil, ""},
		{"-Fgoto", false, nil, ""},
		{"-O2", false, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			cfg := NewConfig()
			if got := cfg.ApplyFlag(tt.flag); got != tt.known {
				t.Fatalf("ApplyFlag(%q) = %v, want %v", tt.flag, got, tt.known)
			}
			if tt.check != nil && !tt.check(cfg) {
				t.Errorf("after %s: want %s", tt.flag, tt.message)
			}
		})
	}
}

func TestSetTarget(t *testing.T) {
	cfg := NewConfig()
	if msg := cfg.SetTarget("linux", "amd64", ""); msg != "" {
		t.Errorf("host amd64 warned: %s", msg)
	}
	if cfg.Target != "amd64_sysv" {
		t.Errorf("Target = %q, want amd64_sysv", cfg.Target)
	}

	msg := cfg.SetTarget("linux", "amd64", "rv64")
	if !strings.Contains(msg, "rv64") {
		t.Errorf("warning %q does not name the target", msg)
	}
	if cfg.WordSize != 8 || cfg.StackAlignment != 16 {
		t.Errorf("unsupported target changed the word size to %d", cfg.WordSize)
	}
}

func TestFlagGroups(t *testing.T) {
	cfg := NewConfig()
	fs := cli.NewFlagSet("ezc")
	warnings, features := cfg.SetupFlagGroups(fs)

	if err := fs.Parse([]string{"-Wempty-body", "-Wno-target", "-Fno-capital-keywords", "main.ez"}); err != nil {
		t.Fatal(err)
	}
	cfg.ApplyToggles(warnings, features)

	got := map[string]bool{
		"empty-body":       cfg.IsWarningEnabled(WarnEmptyBody),
		"target":           cfg.IsWarningEnabled(WarnTarget),
		"capital-keywords": cfg.IsFeatureEnabled(FeatCapitalKeywords),
		"comments":         cfg.IsFeatureEnabled(FeatComments),
	}
	want := map[string]bool{"empty-body": true, "target": false, "capital-keywords": false, "comments": true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("toggles mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"main.ez"}, fs.Args()); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}
