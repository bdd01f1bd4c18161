package codegen

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xplshn/ezc/pkg/config"
	"github.com/xplshn/ezc/pkg/ir"
)

type nasmBackend struct {
	out  *strings.Builder
	prog *ir.Program
}

func NewNASMBackend() Backend { return &nasmBackend{} }

func (b *nasmBackend) Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error) {
	if cfg.WordSize != 0 && cfg.WordSize != 8 {
		return nil, fmt.Errorf("nasm backend: unsupported word size %d", cfg.WordSize)
	}
	var asm strings.Builder
	b.out = &asm
	b.prog = prog

	b.gen()

	var buf bytes.Buffer
	buf.WriteString(asm.String())
	return &buf, nil
}

func (b *nasmBackend) gen() {
	for _, name := range b.prog.Externs {
		fmt.Fprintf(b.out, "extern %s\n", name)
	}
	if !b.prog.Library {
		b.out.WriteString("global _start\n")
	}
	for _, name := range b.prog.Symbols {
		fmt.Fprintf(b.out, "global %s\n", name)
	}

	b.out.WriteString("section .text\n")
	for _, instr := range b.prog.Text {
		b.genInstr(instr)
	}

	if len(b.prog.Bss) > 0 {
		b.out.WriteString("section .bss\n")
		for _, r := range b.prog.Bss {
			fmt.Fprintf(b.out, "%s resq %d\n", r.Name, r.Words)
		}
	}
}

func (b *nasmBackend) genInstr(instr ir.Instr) {
	if instr.Op == ir.OpLabel {
		fmt.Fprintf(b.out, "%s:\n", instr.Args[0])
		return
	}
	b.out.WriteString(instr.Op.Mnemonic())
	if len(instr.Args) > 0 {
		b.out.WriteString(" ")
		b.out.WriteString(strings.Join(instr.Args, ", "))
	}
	b.out.WriteString("\n")
}
