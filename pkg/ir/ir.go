// Package ir holds the generator's output: an x86-64 instruction stream
// plus the symbol and storage lists that surround it.
package ir

type Op int

const (
	OpLabel Op = iota
	OpPush
	OpPop
	OpMov
	OpLea
	OpAdd
	OpSub
	OpImul
	OpAnd
	OpOr
	OpXor
	OpCmp
	OpSetne
	OpMovzx
	OpJmp
	OpJe
	OpJne
	OpJl
	OpJg
	OpJle
	OpJge
	OpCall
	OpRet
	OpSyscall
)

var mnemonics = [...]string{
	OpLabel: "", OpPush: "push", OpPop: "pop", OpMov: "mov", OpLea: "lea",
	OpAdd: "add", OpSub: "sub", OpImul: "imul", OpAnd: "and", OpOr: "or",
	OpXor: "xor", OpCmp: "cmp", OpSetne: "setne", OpMovzx: "movzx",
	OpJmp: "jmp", OpJe: "je", OpJne: "jne", OpJl: "jl", OpJg: "jg",
	OpJle: "jle", OpJge: "jge", OpCall: "call", OpRet: "ret", OpSyscall: "syscall",
}

func (op Op) Mnemonic() string { return mnemonics[op] }

// Instr is one instruction, or a label definition when Op is OpLabel
// (Args[0] is then the label name). Operands are already in assembler
// syntax.
type Instr struct {
	Op   Op
	Args []string
}

// Reservation is one uninitialized global, sized in machine words.
type Reservation struct {
	Name  string
	Words int64
}

type Program struct {
	Externs []string
	Symbols []string // exported and internal function symbols
	Text    []Instr
	Bss     []Reservation
	Library bool
}

func (p *Program) Emit(op Op, args ...string) {
	p.Text = append(p.Text, Instr{Op: op, Args: args})
}

func (p *Program) Label(name string) {
	p.Emit(OpLabel, name)
}
