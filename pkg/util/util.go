package util

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xplshn/ezc/pkg/token"
	"golang.org/x/term"
)

// CompileError is a positioned error raised while reading source text.
type CompileError struct {
	Tok token.Token
	Msg string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Tok.Line, e.Tok.Column, e.Msg)
}

func NewCompileError(tok token.Token, format string, args ...interface{}) *CompileError {
	return &CompileError{Tok: tok, Msg: fmt.Sprintf(format, args...)}
}

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

type palette struct{ red, yellow, green, bold, none string }

var (
	colored = palette{red: "\033[31m", yellow: "\033[33m", green: "\033[32m", bold: "\033[1m", none: "\033[0m"}
	plain   = palette{}
)

// Reporter renders diagnostics against a set of source files.
type Reporter struct {
	out   io.Writer
	files []SourceFileRecord
	pal   palette
}

// NewReporter writes to stderr, with colour only when stderr is a terminal.
func NewReporter(noColor bool) *Reporter {
	useColor := !noColor && term.IsTerminal(int(os.Stderr.Fd()))
	return NewReporterTo(os.Stderr, useColor)
}

func NewReporterTo(w io.Writer, useColor bool) *Reporter {
	r := &Reporter{out: w, pal: plain}
	if useColor {
		r.pal = colored
	}
	return r
}

// SetSourceFiles stores the source code for all input files for rich error messages
func (r *Reporter) SetSourceFiles(files []SourceFileRecord) { r.files = files }

func (r *Reporter) location(tok token.Token) (string, int, int) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(r.files) {
		return "ezc", tok.Line, tok.Column
	}
	return r.files[tok.FileIndex].Name, tok.Line, tok.Column
}

func (r *Reporter) sourceLine(tok token.Token) (string, bool) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(r.files) || tok.Line == 0 {
		return "", false
	}
	content := r.files[tok.FileIndex].Content
	lineNum, lineStart := tok.Line, 0
	for i, ch := range content {
		if lineNum <= 1 {
			break
		}
		if ch == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}
	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}
	return string(content[lineStart:lineEnd]), true
}

// printCaret prints the source line and a caret indicating the position
func (r *Reporter) printCaret(tok token.Token) {
	line, ok := r.sourceLine(tok)
	if !ok {
		return
	}
	fmt.Fprintf(r.out, "  %s\n", line)
	col := tok.Column
	if col < 1 {
		col = 1
	}
	fmt.Fprintf(r.out, "  %s%s^", strings.Repeat(" ", col-1), r.pal.green)
	if tok.Len > 1 {
		fmt.Fprint(r.out, strings.Repeat("~", tok.Len-1))
	}
	fmt.Fprintln(r.out, r.pal.none)
}

func (r *Reporter) header(tok token.Token, color, kind string) {
	if tok.Line == 0 {
		fmt.Fprintf(r.out, "ezc: %s%s:%s ", color, kind, r.pal.none)
		return
	}
	name, line, col := r.location(tok)
	fmt.Fprintf(r.out, "%s%s:%d:%d:%s %s%s:%s ", r.pal.bold, name, line, col, r.pal.none, color, kind, r.pal.none)
}

// Error prints a formatted error message at tok.
func (r *Reporter) Error(tok token.Token, format string, args ...interface{}) {
	r.header(tok, r.pal.red, "error")
	fmt.Fprintf(r.out, format, args...)
	fmt.Fprintln(r.out)
	r.printCaret(tok)
}

// Warn prints a formatted warning tagged with the flag that controls it.
func (r *Reporter) Warn(name string, tok token.Token, format string, args ...interface{}) {
	r.header(tok, r.pal.yellow, "warning")
	fmt.Fprintf(r.out, format, args...)
	fmt.Fprintf(r.out, " [-W%s]\n", name)
	r.printCaret(tok)
}

// Info prints an unpositioned informational line.
func (r *Reporter) Info(format string, args ...interface{}) {
	fmt.Fprintf(r.out, "ezc: info: "+format+"\n", args...)
}
