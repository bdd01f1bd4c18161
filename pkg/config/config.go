package config

import (
	"fmt"
	"strings"

	"github.com/xplshn/ezc/pkg/cli"
	"github.com/xyproto/env/v2"
	"modernc.org/libqbe"
)

type Feature int

const (
	FeatCapitalKeywords Feature = iota
	FeatComments
	FeatDeref
	FeatCount
)

type Warning int

const (
	WarnUnreachableCode Warning = iota
	WarnInfiniteLoop
	WarnEmptyBody
	WarnTarget
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features       map[Feature]Info
	Warnings       map[Warning]Info
	FeatureMap     map[string]Feature
	WarningMap     map[string]Warning
	Target         string
	TargetArch     string
	WordSize       int
	StackAlignment int

	Library    bool
	Debug      bool
	NoLink     bool
	StdlibPath string
	Output     string

	Assembler string
	Linker    string
	NoColor   bool
}

func NewConfig() *Config {
	cfg := &Config{
		Features:       make(map[Feature]Info),
		Warnings:       make(map[Warning]Info),
		FeatureMap:     make(map[string]Feature),
		WarningMap:     make(map[string]Warning),
		WordSize:       8,
		StackAlignment: 16,
		Output:         "a.out",
		Assembler:      env.Str("EZC_AS", "nasm"),
		Linker:         env.Str("EZC_LD", "ld"),
		NoColor:        env.Str("NO_COLOR") != "",
	}

	features := map[Feature]Info{
		FeatCapitalKeywords: {"capital-keywords", true, "Accept 'Set' and 'Change' as keyword spellings."},
		FeatComments:        {"comments", true, "Recognize '#' line comments."},
		FeatDeref:           {"deref", true, "Allow '@name' pointer dereference."},
	}

	warnings := map[Warning]Info{
		WarnUnreachableCode: {"unreachable-code", true, "Warn about statements after 'break' or 'return'."},
		WarnInfiniteLoop:    {"infinite-loop", true, "Warn about loops that contain no 'break' or 'return'."},
		WarnEmptyBody:       {"empty-body", false, "Warn about conditionals, loops and functions with no statements."},
		WarnTarget:          {"target", true, "Warn when the host target is not amd64_sysv."},
		WarnExtra:           {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

// SetTarget selects the target ABI. An empty target means the host's.
// Only amd64_sysv is generated; anything else keeps amd64 properties and
// reports a warning string for the caller to print.
func (c *Config) SetTarget(goos, goarch, target string) (warning string) {
	if target == "" {
		target = libqbe.DefaultTarget(goos, goarch)
	}
	c.Target, c.TargetArch = target, goarch
	c.WordSize, c.StackAlignment = 8, 16
	if target != "amd64_sysv" {
		return fmt.Sprintf("target '%s' is not supported, emitting amd64_sysv code anyway", target)
	}
	return ""
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// ApplyFlag handles a single -W/-F style switch. It reports whether the
// name was recognized.
func (c *Config) ApplyFlag(flag string) bool {
	trimmed := strings.TrimPrefix(flag, "-")
	isWarning := strings.HasPrefix(trimmed, "W")
	if !isWarning && !strings.HasPrefix(trimmed, "F") {
		return false
	}
	name := trimmed[1:]
	enable := !strings.HasPrefix(name, "no-")
	name = strings.TrimPrefix(name, "no-")

	if isWarning && name == "all" {
		for i := Warning(0); i < WarnCount; i++ {
			c.SetWarning(i, enable)
		}
		return true
	}
	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
			return true
		}
		return false
	}
	if f, ok := c.FeatureMap[name]; ok {
		c.SetFeature(f, enable)
		return true
	}
	return false
}

// FlagToggles holds the enable/disable switches registered for one group.
type FlagToggles struct {
	Enable, Disable []bool
}

// SetupFlagGroups registers -W<name>/-Wno-<name> and -F<name>/-Fno-<name>
// on fs. The returned toggles are applied with ApplyToggles after parsing.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) (warnings, features *FlagToggles) {
	warnings = &FlagToggles{Enable: make([]bool, WarnCount), Disable: make([]bool, WarnCount)}
	var wEntries []cli.FlagGroupEntry
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		wEntries = append(wEntries, cli.FlagGroupEntry{
			Name: info.Name, Prefix: "W", Usage: info.Description,
			Enabled: &warnings.Enable[i], Disabled: &warnings.Disable[i],
			Default: info.Enabled,
		})
	}
	fs.AddFlagGroup("Warning Flags", "Enable or disable specific warnings", "warning", "Available Warnings:", wEntries)

	features = &FlagToggles{Enable: make([]bool, FeatCount), Disable: make([]bool, FeatCount)}
	var fEntries []cli.FlagGroupEntry
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		fEntries = append(fEntries, cli.FlagGroupEntry{
			Name: info.Name, Prefix: "F", Usage: info.Description,
			Enabled: &features.Enable[i], Disabled: &features.Disable[i],
			Default: info.Enabled,
		})
	}
	fs.AddFlagGroup("Feature Flags", "Enable or disable specific language features", "feature", "Available Features:", fEntries)
	return warnings, features
}

// ApplyToggles copies parsed group switches into the config.
func (c *Config) ApplyToggles(warnings, features *FlagToggles) {
	for i := range warnings.Enable {
		if warnings.Enable[i] {
			c.SetWarning(Warning(i), true)
		}
		if warnings.Disable[i] {
			c.SetWarning(Warning(i), false)
		}
	}
	for i := range features.Enable {
		if features.Enable[i] {
			c.SetFeature(Feature(i), true)
		}
		if features.Disable[i] {
			c.SetFeature(Feature(i), false)
		}
	}
}
