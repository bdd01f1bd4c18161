package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"
)

type Value interface {
	String() string
	Set(string) error
	Get() any
}

type stringValue struct{ p *string }

func (v *stringValue) Set(s string) error { *v.p = s; return nil }
func (v *stringValue) String() string     { return *v.p }
func (v *stringValue) Get() any           { return *v.p }

type boolValue struct{ p *bool }

func (v *boolValue) Set(s string) error {
	val, err := strconv.ParseBool(s)
	if err != nil && s != "" {
		return fmt.Errorf("invalid boolean value '%s': %w", s, err)
	}
	*v.p = val || s == ""
	return nil
}
func (v *boolValue) String() string { return strconv.FormatBool(*v.p) }
func (v *boolValue) Get() any       { return *v.p }

type listValue struct{ p *[]string }

func (v *listValue) Set(s string) error { *v.p = append(*v.p, s); return nil }
func (v *listValue) String() string     { return strings.Join(*v.p, ", ") }
func (v *listValue) Get() any           { return *v.p }

type Flag struct {
	Name         string
	Shorthand    string
	Usage        string
	Value        Value
	DefValue     string
	ExpectedType string
}

type FlagGroupEntry struct {
	Name     string
	Prefix   string
	Usage    string
	Enabled  *bool
	Disabled *bool
	Default  bool
}

type FlagGroup struct {
	Name                 string
	Description          string
	Flags                []FlagGroupEntry
	GroupType            string
	AvailableFlagsHeader string
}

type FlagSet struct {
	name          string
	flags         map[string]*Flag
	shorthands    map[string]*Flag
	specialPrefix map[string]*Flag
	args          []string
	flagGroups    []FlagGroup
}

func NewFlagSet(name string) *FlagSet {
	return &FlagSet{
		name:          name,
		flags:         make(map[string]*Flag),
		shorthands:    make(map[string]*Flag),
		specialPrefix: make(map[string]*Flag),
	}
}

func (f *FlagSet) Args() []string { return f.args }

func (f *FlagSet) String(p *string, name, shorthand, value, usage, expectedType string) {
	*p = value
	f.Var(&stringValue{p}, name, shorthand, usage, value, expectedType)
}

func (f *FlagSet) Bool(p *bool, name, shorthand string, value bool, usage string) {
	*p = value
	f.Var(&boolValue{p}, name, shorthand, usage, strconv.FormatBool(value), "")
}

func (f *FlagSet) List(p *[]string, name, shorthand string, value []string, usage, expectedType string) {
	*p = value
	f.Var(&listValue{p}, name, shorthand, usage, fmt.Sprintf("%v", value), expectedType)
}

// Special registers a prefix flag whose value is glued to it, as in -lfoo.
func (f *FlagSet) Special(p *[]string, prefix, usage, expectedType string) {
	*p = []string{}
	f.Var(&listValue{p}, prefix, "", usage, "", expectedType)
	f.specialPrefix[prefix] = f.flags[prefix]
}

func (f *FlagSet) AddFlagGroup(name, description, groupType, availableFlagsHeader string, entries []FlagGroupEntry) {
	for i := range entries {
		e := entries[i]
		if e.Enabled != nil {
			f.Bool(e.Enabled, e.Prefix+e.Name, "", false, e.Usage)
		}
		if e.Disabled != nil {
			f.Bool(e.Disabled, e.Prefix+"no-"+e.Name, "", false, "Disable '"+e.Name+"'")
		}
	}
	f.flagGroups = append(f.flagGroups, FlagGroup{
		Name:                 name,
		Description:          description,
		Flags:                entries,
		GroupType:            groupType,
		AvailableFlagsHeader: availableFlagsHeader,
	})
}

func (f *FlagSet) Var(value Value, name, shorthand, usage, defValue, expectedType string) {
	if name == "" {
		panic("flag name cannot be empty")
	}
	if _, ok := f.flags[name]; ok {
		panic(fmt.Sprintf("flag redefined: %s", name))
	}
	flag := &Flag{Name: name, Shorthand: shorthand, Usage: usage, Value: value, DefValue: defValue, ExpectedType: expectedType}
	f.flags[name] = flag
	if shorthand != "" {
		if _, ok := f.shorthands[shorthand]; ok {
			panic(fmt.Sprintf("shorthand flag redefined: %s", shorthand))
		}
		f.shorthands[shorthand] = flag
	}
}

func isBoolFlag(flag *Flag) bool {
	_, ok := flag.Value.(*boolValue)
	return ok
}

// Parse accepts --name, -name (single-dash long form), -x shorthands and
// prefix flags. Everything else is a positional argument.
func (f *FlagSet) Parse(arguments []string) error {
	f.args = []string{}
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		if len(arg) < 2 || arg[0] != '-' {
			f.args = append(f.args, arg)
			continue
		}
		if arg == "--" {
			f.args = append(f.args, arguments[i+1:]...)
			break
		}

		body := strings.TrimPrefix(strings.TrimPrefix(arg, "-"), "-")
		name, value, hasValue := strings.Cut(body, "=")
		if flag, ok := f.flags[name]; ok {
			if err := f.setFlag(flag, "-"+name, value, hasValue, arguments, &i); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(arg, "--") {
			return fmt.Errorf("unknown flag: %s", arg)
		}
		if err := f.parseShortFlag(arg, arguments, &i); err != nil {
			return err
		}
	}
	return nil
}

func (f *FlagSet) setFlag(flag *Flag, display, value string, hasValue bool, arguments []string, i *int) error {
	if hasValue {
		return flag.Value.Set(value)
	}
	if isBoolFlag(flag) {
		return flag.Value.Set("")
	}
	if *i+1 >= len(arguments) {
		return fmt.Errorf("flag needs an argument: %s", display)
	}
	*i++
	return flag.Value.Set(arguments[*i])
}

func (f *FlagSet) parseShortFlag(arg string, arguments []string, i *int) error {
	for prefix, flag := range f.specialPrefix {
		if strings.HasPrefix(arg, "-"+prefix) && len(arg) > len(prefix)+1 {
			return flag.Value.Set(arg[len(prefix)+1:])
		}
	}

	shorthand := arg[1:2]
	flag, ok := f.shorthands[shorthand]
	if !ok {
		return fmt.Errorf("unknown flag: %s", arg)
	}
	if isBoolFlag(flag) {
		return flag.Value.Set("")
	}
	if value := arg[2:]; value != "" {
		return flag.Value.Set(value)
	}
	return f.setFlag(flag, "-"+shorthand, "", false, arguments, i)
}

type App struct {
	Name        string
	Synopsis    string
	Description string
	Authors     []string
	Repository  string
	Since       int
	FlagSet     *FlagSet
	Action      func(args []string) error
}

func NewApp(name string) *App {
	return &App{Name: name, FlagSet: NewFlagSet(name)}
}

func (a *App) Run(arguments []string) error {
	help := false
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintf(os.Stderr, "Usage: %s %s\nRun '%s --help' for all available options and flags.\n", a.Name, a.Synopsis, a.Name)
		return err
	}
	if help {
		a.WriteHelp(os.Stdout, terminalWidth())
		return nil
	}
	if a.Action != nil {
		return a.Action(a.FlagSet.Args())
	}
	return nil
}

const indentUnit = "    "

// WriteHelp renders the full help page wrapped to width columns.
func (a *App) WriteHelp(w io.Writer, width int) {
	var sb strings.Builder

	optionFlags := a.optionFlags()
	leftWidth := 0
	for _, flag := range optionFlags {
		leftWidth = max(leftWidth, len(formatFlagString(flag)))
	}
	for _, group := range a.FlagSet.flagGroups {
		leftWidth = max(leftWidth, len(fmt.Sprintf("-%sno-<%s>", group.Flags[0].Prefix, group.GroupType)))
		for _, entry := range group.Flags {
			leftWidth = max(leftWidth, len(entry.Name))
		}
	}

	fmt.Fprintf(&sb, "\n%sCopyright (c) %d-%d: %s\n", indentUnit, a.Since, time.Now().Year(), strings.Join(a.Authors, ", ")+" and contributors")
	if a.Repository != "" {
		fmt.Fprintf(&sb, "%sFor more details refer to %s\n", indentUnit, a.Repository)
	}
	if a.Synopsis != "" {
		fmt.Fprintf(&sb, "\n%sSynopsis\n%s%s %s\n", indentUnit, indentUnit+indentUnit, a.Name, a.Synopsis)
	}
	if a.Description != "" {
		fmt.Fprintf(&sb, "\n%sDescription\n%s%s\n", indentUnit, indentUnit+indentUnit, a.Description)
	}

	if len(optionFlags) > 0 {
		fmt.Fprintf(&sb, "\n%sOptions\n", indentUnit)
		for _, flag := range optionFlags {
			right := ""
			if !isBoolFlag(flag) && flag.DefValue != "" && flag.DefValue != "[]" {
				right = "|" + flag.DefValue + "|"
			}
			writeEntry(&sb, width, leftWidth, formatFlagString(flag), flag.Usage, right)
		}
	}

	groups := append([]FlagGroup(nil), a.FlagSet.flagGroups...)
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	for _, group := range groups {
		prefix := group.Flags[0].Prefix
		fmt.Fprintf(&sb, "\n%s%s\n", indentUnit, group.Name)
		writeEntry(&sb, width, leftWidth, fmt.Sprintf("-%s<%s>", prefix, group.GroupType), "Enable a specific "+group.GroupType, "")
		writeEntry(&sb, width, leftWidth, fmt.Sprintf("-%sno-<%s>", prefix, group.GroupType), "Disable a specific "+group.GroupType, "")
		if group.AvailableFlagsHeader != "" {
			fmt.Fprintf(&sb, "%s%s\n", indentUnit, group.AvailableFlagsHeader)
		}
		entries := append([]FlagGroupEntry(nil), group.Flags...)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		for _, entry := range entries {
			mark := "|-|"
			if entry.Default {
				mark = "|x|"
			}
			writeEntry(&sb, width, leftWidth, entry.Name, entry.Usage, mark)
		}
	}
	fmt.Fprint(w, sb.String())
}

func (a *App) optionFlags() []*Flag {
	var out []*Flag
	for _, flag := range a.FlagSet.flags {
		if _, isSpecial := a.FlagSet.specialPrefix[flag.Name]; isSpecial || a.isGroupFlag(flag.Name) {
			continue
		}
		out = append(out, flag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (a *App) isGroupFlag(name string) bool {
	for _, group := range a.FlagSet.flagGroups {
		for _, entry := range group.Flags {
			if name == entry.Prefix+entry.Name || name == entry.Prefix+"no-"+entry.Name {
				return true
			}
		}
	}
	return false
}

func formatFlagString(flag *Flag) string {
	var sb strings.Builder
	isBool := isBoolFlag(flag)
	if flag.Shorthand != "" {
		fmt.Fprintf(&sb, "-%s", flag.Shorthand)
		if !isBool {
			fmt.Fprintf(&sb, " <%s>", flag.ExpectedType)
		}
		sb.WriteString(", ")
	}
	fmt.Fprintf(&sb, "--%s", flag.Name)
	if !isBool && flag.ExpectedType != "" {
		fmt.Fprintf(&sb, " <%s>", flag.ExpectedType)
	}
	return sb.String()
}

func writeEntry(sb *strings.Builder, width, leftWidth int, left, usage, right string) {
	indent := indentUnit + indentUnit
	usageWidth := width - len(indent) - leftWidth - 1 - len(right) - 2
	if usageWidth < 10 {
		usageWidth = 10
	}
	lines := wrapText(usage, usageWidth)
	first := ""
	if len(lines) > 0 {
		first = lines[0]
	}
	if right != "" {
		fmt.Fprintf(sb, "%s%-*s %-*s  %s\n", indent, leftWidth, left, usageWidth, first, right)
	} else {
		fmt.Fprintf(sb, "%s%-*s %s\n", indent, leftWidth, left, first)
	}
	pad := strings.Repeat(" ", leftWidth+1)
	for _, line := range lines[min(1, len(lines)):] {
		fmt.Fprintf(sb, "%s%s%s\n", indent, pad, line)
	}
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return max(width, 20)
}

func wrapText(text string, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	var line strings.Builder
	for _, word := range words {
		if line.Len() > 0 && line.Len()+len(word)+1 > maxWidth {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}
