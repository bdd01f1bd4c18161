package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/goforj/godump"
	"github.com/xplshn/ezc/pkg/analyzer"
	"github.com/xplshn/ezc/pkg/ast"
	"github.com/xplshn/ezc/pkg/cli"
	"github.com/xplshn/ezc/pkg/codegen"
	"github.com/xplshn/ezc/pkg/config"
	"github.com/xplshn/ezc/pkg/lexer"
	"github.com/xplshn/ezc/pkg/parser"
	"github.com/xplshn/ezc/pkg/token"
	"github.com/xplshn/ezc/pkg/util"
)

func main() {
	app := cli.NewApp("ezc")
	app.Synopsis = "[options] <input.ez> ..."
	app.Description = "A compiler for the ez language. Reads like a sentence, assembles like NASM."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/ezc>"
	app.Since = 2025

	cfg := config.NewConfig()

	var (
		target  string
		asmOnly bool
		dumpIR  bool
		dumpAST bool
		verbose bool
		wall    bool
		extraW  []string
		extraF  []string
	)

	fs := app.FlagSet
	fs.String(&cfg.Output, "output", "o", "a.out", "Place the output into <file>.", "file")
	fs.String(&target, "target", "t", "", "Set the target ABI (default: host).", "target")
	fs.Bool(&asmOnly, "asm", "S", false, "Write the generated assembly to <file> and stop.")
	fs.Bool(&dumpIR, "dump-ir", "d", false, "Print the generated assembly and exit.")
	fs.Bool(&dumpAST, "dump-ast", "", false, "Print the analyzed syntax tree and exit.")
	fs.Bool(&cfg.Debug, "debug", "g", false, "Emit DWARF debug information.")
	fs.Bool(&cfg.Library, "lib", "", false, "Build a library: omit the _start entry point.")
	fs.Bool(&cfg.NoLink, "nolink", "", false, "Assemble only; write <file>.o.")
	fs.String(&cfg.StdlibPath, "stdlib-path", "", "", "Link the given object or archive.", "path")
	fs.Bool(&verbose, "verbose", "v", false, "Print each compilation stage.")
	fs.Bool(&wall, "Wall", "", false, "Enable all warnings.")

	warningFlags, featureFlags := cfg.SetupFlagGroups(fs)
	fs.Special(&extraW, "W", "Unrecognized warning switch", "warning")
	fs.Special(&extraF, "F", "Unrecognized feature switch", "feature")

	app.Action = func(inputFiles []string) error {
		rep := util.NewReporter(cfg.NoColor)

		if wall {
			cfg.ApplyFlag("-Wall")
		}
		cfg.ApplyToggles(warningFlags, featureFlags)
		for _, sw := range append(prefixed("-W", extraW), prefixed("-F", extraF)...) {
			if !cfg.ApplyFlag(sw) && cfg.IsWarningEnabled(config.WarnExtra) {
				rep.Warn("extra", token.Token{}, "unknown switch '%s'", sw)
			}
		}

		if msg := cfg.SetTarget(runtime.GOOS, runtime.GOARCH, target); msg != "" && cfg.IsWarningEnabled(config.WarnTarget) {
			rep.Warn("target", token.Token{}, "%s", msg)
		}

		if len(inputFiles) == 0 {
			rep.Error(token.Token{}, "no input files specified.")
			return errors.New("no input files")
		}

		logf := func(format string, args ...interface{}) {
			if verbose {
				fmt.Printf(format+"\n", args...)
			}
		}

		logf("Tokenizing %d source file(s)...", len(inputFiles))
		records, tokens, err := readAndTokenizeFiles(inputFiles, cfg)
		rep.SetSourceFiles(records)
		if err != nil {
			return report(rep, err)
		}

		logf("Parsing tokens into AST...")
		root, err := parser.NewParser(tokens).Parse()
		if err != nil {
			return report(rep, err)
		}

		logf("Analyzing...")
		res, err := analyzer.New(cfg).Analyze(root)
		if err != nil {
			return report(rep, err)
		}
		for _, w := range res.Warnings {
			rep.Warn(cfg.Warnings[w.Warning].Name, w.Tok, "%s", w.Msg)
		}

		if dumpAST {
			godump.Dump(root)
			return nil
		}

		logf("Generating code...")
		asm, err := generate(root, res, cfg)
		if err != nil {
			return report(rep, err)
		}

		if dumpIR {
			fmt.Print(asm)
			return nil
		}

		if asmOnly {
			logf("Writing assembly to '%s'...", cfg.Output)
			if err := os.WriteFile(cfg.Output, []byte(asm), 0o644); err != nil {
				return report(rep, fmt.Errorf("could not write '%s': %w", cfg.Output, err))
			}
			return nil
		}

		logf("Assembling and linking '%s'...", cfg.Output)
		if err := assembleAndLink(asm, cfg); err != nil {
			return report(rep, fmt.Errorf("assembler/linker failed: %w", err))
		}
		logf("Done!")
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

func prefixed(prefix string, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = prefix + n
	}
	return out
}

// report renders err against the source it points into.
func report(rep *util.Reporter, err error) error {
	var ce *util.CompileError
	var ae *analyzer.Error
	switch {
	case errors.As(err, &ce):
		rep.Error(ce.Tok, "%s", ce.Msg)
	case errors.As(err, &ae):
		rep.Error(ae.Tok, "%s [%s]", ae.Error(), ae.Kind)
	default:
		rep.Error(token.Token{}, "%v", err)
	}
	return err
}

func generate(root *ast.Node, res *analyzer.Result, cfg *config.Config) (asm string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal compiler error: %v", r)
		}
	}()
	prog := codegen.NewContext(cfg).GenerateIR(root, res)
	buf, err := codegen.NewNASMBackend().Generate(prog, cfg)
	if err != nil {
		return "", fmt.Errorf("backend code generation failed: %w", err)
	}
	return buf.String(), nil
}

func assembleAndLink(asm string, cfg *config.Config) error {
	asmFile, err := os.CreateTemp("", "ezc-main-*.asm")
	if err != nil {
		return fmt.Errorf("failed to create temp file for asm: %w", err)
	}
	defer os.Remove(asmFile.Name())
	if _, err := asmFile.WriteString(asm); err != nil {
		asmFile.Close()
		return fmt.Errorf("failed to write temp file for asm: %w", err)
	}
	asmFile.Close()

	objFile := strings.TrimSuffix(asmFile.Name(), ".asm") + ".o"
	if cfg.NoLink {
		objFile = cfg.Output + ".o"
	} else {
		defer os.Remove(objFile)
	}

	asArgs := []string{"-felf64"}
	if cfg.Debug {
		asArgs = append(asArgs, "-F", "dwarf", "-g")
	}
	asArgs = append(asArgs, "-o", objFile, asmFile.Name())
	if err := run(cfg.Assembler, asArgs); err != nil {
		return err
	}
	if cfg.NoLink {
		return nil
	}

	ldArgs := []string{objFile}
	if cfg.StdlibPath != "" {
		ldArgs = append(ldArgs, cfg.StdlibPath)
	}
	ldArgs = append(ldArgs, "-o", cfg.Output)
	return run(cfg.Linker, ldArgs)
}

func run(tool string, args []string) error {
	cmd := exec.Command(tool, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s command failed: %w\nOutput:\n%s", tool, err, string(output))
	}
	return nil
}

func readAndTokenizeFiles(paths []string, cfg *config.Config) ([]util.SourceFileRecord, []token.Token, error) {
	var records []util.SourceFileRecord
	var allTokens []token.Token

	for i, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return records, nil, fmt.Errorf("could not read file '%s': %w", path, err)
		}
		runeContent := []rune(string(content))
		records = append(records, util.SourceFileRecord{Name: path, Content: runeContent})
		l := lexer.NewLexer(runeContent, i, cfg)
		for {
			tok, err := l.Next()
			if err != nil {
				return records, nil, err
			}
			if tok.Type == token.EOF {
				break
			}
			allTokens = append(allTokens, tok)
		}
	}
	allTokens = append(allTokens, token.Token{Type: token.EOF, FileIndex: max(len(paths)-1, 0)})
	return records, allTokens, nil
}
