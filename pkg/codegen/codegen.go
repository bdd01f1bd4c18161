package codegen

import (
	"fmt"
	"strconv"

	"github.com/xplshn/ezc/pkg/analyzer"
	"github.com/xplshn/ezc/pkg/ast"
	"github.com/xplshn/ezc/pkg/config"
	"github.com/xplshn/ezc/pkg/ir"
)

// argRegs are the integer argument registers, in order.
var argRegs = [...]string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}

const (
	globalPrefix   = "__v_"
	internalPrefix = "__ezc_"
	entryLabel     = "_start"
)

type symbolType int

const (
	symGlobal symbolType = iota
	symStack
)

// symbol maps a name to where it lives. Stack symbols record the depth at
// which their lowest-addressed word sits; an array on the stack holds a
// pointer to its length word in that word.
type symbol struct {
	Name    string
	Type    symbolType
	Asm     string
	Depth   int64
	IsArray bool
	Next    *symbol
}

type scope struct {
	Symbols *symbol
	Parent  *scope
}

type Context struct {
	prog         *ir.Program
	text         *[]ir.Instr
	mainText     []ir.Instr
	funcText     []ir.Instr
	depth        int64
	labelCount   int
	currentScope *scope
	breakLabel   string
	returnLabel  string
	wordSize     int64
	cfg          *config.Config
	externs      map[string]bool
	usedExterns  map[string]bool
}

func NewContext(cfg *config.Config) *Context {
	ctx := &Context{
		prog:         &ir.Program{Library: cfg.Library},
		currentScope: newScope(nil),
		wordSize:     int64(cfg.WordSize),
		cfg:          cfg,
		externs:      make(map[string]bool),
		usedExterns:  make(map[string]bool),
	}
	if ctx.wordSize == 0 {
		ctx.wordSize = 8
	}
	ctx.text = &ctx.mainText
	return ctx
}

func newScope(parent *scope) *scope { return &scope{Parent: parent} }

func (ctx *Context) enterScope() { ctx.currentScope = newScope(ctx.currentScope) }
func (ctx *Context) exitScope() {
	if ctx.currentScope.Parent != nil {
		ctx.currentScope = ctx.currentScope.Parent
	}
}

func (ctx *Context) findSymbol(name string) *symbol {
	for s := ctx.currentScope; s != nil; s = s.Parent {
		for sym := s.Symbols; sym != nil; sym = sym.Next {
			if sym.Name == name {
				return sym
			}
		}
	}
	return nil
}

func (ctx *Context) mustFind(name string) *symbol {
	sym := ctx.findSymbol(name)
	if sym == nil {
		panic("codegen: unbound name '" + name + "'")
	}
	return sym
}

func (ctx *Context) addSymbol(sym *symbol) *symbol {
	sym.Next = ctx.currentScope.Symbols
	ctx.currentScope.Symbols = sym
	return sym
}

// newLabel returns a local label carrying a fresh program-wide number.
func (ctx *Context) newLabel(kind string) (string, int) {
	ctx.labelCount++
	return fmt.Sprintf(".%s_%d", kind, ctx.labelCount), ctx.labelCount
}

func (ctx *Context) emit(op ir.Op, args ...string) {
	*ctx.text = append(*ctx.text, ir.Instr{Op: op, Args: args})
}

func (ctx *Context) label(name string) { ctx.emit(ir.OpLabel, name) }

func (ctx *Context) push(operand string) {
	ctx.emit(ir.OpPush, operand)
	ctx.depth++
}

func (ctx *Context) pop(reg string) {
	ctx.emit(ir.OpPop, reg)
	ctx.depth--
}

// alloc reserves n words. A zero-sized reservation is still emitted so every
// conditional has the same shape.
func (ctx *Context) alloc(n int64) {
	ctx.emit(ir.OpSub, "rsp", strconv.FormatInt(n*ctx.wordSize, 10))
	ctx.depth += n
}

func (ctx *Context) free(n int64) {
	ctx.emit(ir.OpAdd, "rsp", strconv.FormatInt(n*ctx.wordSize, 10))
	ctx.depth -= n
}

// stackRef addresses word `words` above the symbol's lowest word,
// relative to the current stack pointer.
func (ctx *Context) stackRef(sym *symbol, words int64) string {
	off := (ctx.depth - sym.Depth + words) * ctx.wordSize
	if off < 0 {
		panic(fmt.Sprintf("codegen: '%s' addressed below the stack pointer", sym.Name))
	}
	if off == 0 {
		return "[rsp]"
	}
	return fmt.Sprintf("[rsp + %d]", off)
}

func (ctx *Context) stackAddr(sym *symbol, words int64) string {
	return "qword " + ctx.stackRef(sym, words)
}

func (ctx *Context) globalAddr(sym *symbol, words int64) string {
	if words == 0 {
		return "qword [" + sym.Asm + "]"
	}
	return fmt.Sprintf("qword [%s + %d]", sym.Asm, words*ctx.wordSize)
}

// slotAddr is the memory operand of a symbol's first word: a scalar's value,
// or a stack array's pointer.
func (ctx *Context) slotAddr(sym *symbol) string {
	if sym.Type == symGlobal {
		return ctx.globalAddr(sym, 0)
	}
	return ctx.stackAddr(sym, 0)
}

// loadValue puts a name's value into reg. An array's value is the address
// of its length word.
func (ctx *Context) loadValue(sym *symbol, reg string) {
	if sym.Type == symGlobal && sym.IsArray {
		ctx.emit(ir.OpLea, reg, "["+sym.Asm+"]")
		return
	}
	ctx.emit(ir.OpMov, reg, ctx.slotAddr(sym))
}

// functionLabel is the assembly symbol a function is defined or called by.
func functionLabel(name string, bare bool) string {
	if bare {
		return name
	}
	return internalPrefix + name
}

// GenerateIR lowers an analyzed program. The analysis result supplies the
// global reservations; everything else comes from the tree's annotations.
func (ctx *Context) GenerateIR(root *ast.Node, res *analyzer.Result) *ir.Program {
	block, ok := root.Data.(ast.BlockNode)
	if !ok {
		panic("codegen: root must be a Block node")
	}
	for _, g := range res.Globals {
		ctx.prog.Bss = append(ctx.prog.Bss, ir.Reservation{Name: globalPrefix + g.Name, Words: g.Slots})
	}

	for _, stmt := range block.Stmts {
		ctx.codegenStmt(stmt)
	}
	if ctx.depth != 0 {
		panic(fmt.Sprintf("codegen: stack depth %d at program end", ctx.depth))
	}

	if !ctx.prog.Library {
		ctx.prog.Label(entryLabel)
		ctx.prog.Text = append(ctx.prog.Text, ctx.mainText...)
		ctx.prog.Emit(ir.OpMov, "rax", "60")
		ctx.prog.Emit(ir.OpXor, "rdi", "rdi")
		ctx.prog.Emit(ir.OpSyscall)
	}
	ctx.prog.Text = append(ctx.prog.Text, ctx.funcText...)

	for _, name := range res.Externals {
		if ctx.usedExterns[name] {
			ctx.prog.Externs = append(ctx.prog.Externs, name)
		}
	}
	return ctx.prog
}

func (ctx *Context) codegenStmt(node *ast.Node) {
	switch d := node.Data.(type) {
	case ast.DeclareNode:
		if d.IsMutation {
			ctx.codegenMutation(d)
		} else {
			ctx.codegenDeclare(d)
		}

	case ast.IfNode:
		ctx.codegenIf(d)

	case ast.LoopNode:
		start, n := ctx.newLabel("LOOP")
		end := fmt.Sprintf(".LOOP_END_%d", n)
		ctx.label(start)
		outer := ctx.breakLabel
		ctx.breakLabel = end
		ctx.codegenBody(d.Body)
		ctx.breakLabel = outer
		ctx.emit(ir.OpJmp, start)
		ctx.label(end)

	case ast.BreakNode:
		if ctx.breakLabel == "" {
			panic("codegen: break outside of a loop")
		}
		ctx.emit(ir.OpJmp, ctx.breakLabel)

	case ast.ReturnNode:
		if ctx.returnLabel == "" {
			panic("codegen: return outside of a function")
		}
		ctx.codegenExpr(d.Expr)
		ctx.pop("rax")
		ctx.emit(ir.OpJmp, ctx.returnLabel)

	case ast.FuncDeclNode:
		ctx.codegenFuncDecl(d)

	case ast.ExternDeclNode:
		ctx.externs[d.Name] = true

	default:
		panic("codegen: unexpected statement " + node.Type.String())
	}
}

func (ctx *Context) codegenBody(stmts []*ast.Node) {
	for _, stmt := range stmts {
		ctx.codegenStmt(stmt)
	}
}

// bindLayout places a body's variables in the region just reserved, first
// declared at the highest address.
func (ctx *Context) bindLayout(layout *ast.Layout, base int64) {
	off := base
	for _, v := range layout.Vars {
		off += v.Slots
		ctx.addSymbol(&symbol{Name: v.Name, Type: symStack, Depth: off, IsArray: v.IsArray})
	}
}

func (ctx *Context) codegenIf(d ast.IfNode) {
	if d.Vars == nil {
		panic("codegen: conditional was not analyzed")
	}
	body, n := ctx.newLabel("IF")
	end := fmt.Sprintf(".IF_END_%d", n)

	ctx.codegenExpr(d.Cond)
	ctx.pop("r8")
	ctx.emit(ir.OpCmp, "r8", "0")
	ctx.emit(ir.OpJne, body)
	ctx.emit(ir.OpJmp, end)
	ctx.label(body)

	size := d.Vars.Size()
	base := ctx.depth
	ctx.alloc(size)
	ctx.enterScope()
	ctx.bindLayout(d.Vars, base)
	ctx.codegenBody(d.Body)
	ctx.exitScope()
	ctx.free(size)
	ctx.label(end)
}

func (ctx *Context) codegenFuncDecl(d ast.FuncDeclNode) {
	if d.Vars == nil {
		panic("codegen: function '" + d.Name + "' was not analyzed")
	}
	if len(d.Params) > len(argRegs) {
		panic("codegen: function '" + d.Name + "' has too many parameters")
	}
	name := functionLabel(d.Name, d.IsExport)
	ctx.prog.Symbols = append(ctx.prog.Symbols, name)

	outerText, outerDepth, outerScope := ctx.text, ctx.depth, ctx.currentScope
	outerBreak, outerReturn := ctx.breakLabel, ctx.returnLabel
	defer func() {
		ctx.text, ctx.depth, ctx.currentScope = outerText, outerDepth, outerScope
		ctx.breakLabel, ctx.returnLabel = outerBreak, outerReturn
	}()

	ctx.text = &ctx.funcText
	ctx.depth = 0
	ctx.currentScope = newScope(nil)
	ctx.breakLabel = ""
	ctx.returnLabel, _ = ctx.newLabel("RET")

	ctx.label(name)
	ctx.emit(ir.OpPush, "rbp")
	ctx.emit(ir.OpMov, "rbp", "rsp")

	for i, p := range d.Params {
		ctx.push(argRegs[i])
		ctx.addSymbol(&symbol{Name: p.Name, Type: symStack, Depth: ctx.depth, IsArray: p.IsArray})
	}

	size := d.Vars.Size()
	base := ctx.depth
	ctx.alloc(size)
	ctx.bindLayout(d.Vars, base)
	ctx.codegenBody(d.Body)

	ctx.emit(ir.OpMov, "rax", "0")
	ctx.label(ctx.returnLabel)
	ctx.emit(ir.OpMov, "rsp", "rbp")
	ctx.emit(ir.OpPop, "rbp")
	ctx.emit(ir.OpRet)
}

func (ctx *Context) codegenDeclare(d ast.DeclareNode) {
	name := ast.TargetName(d.Target)
	sym := ctx.findSymbolInCurrentScope(name)
	if sym == nil {
		if ctx.currentScope.Parent != nil || ctx.returnLabel != "" {
			panic("codegen: local '" + name + "' missing from its layout")
		}
		sym = ctx.addSymbol(&symbol{Name: name, Type: symGlobal, Asm: globalPrefix + name})
	}

	lit, isArray := d.Value.Data.(ast.ArrayLitNode)
	sym.IsArray = isArray
	switch {
	case !isArray:
		ctx.storeScalar(sym, d.Value)
	case sym.Type == symGlobal:
		ctx.emit(ir.OpMov, ctx.globalAddr(sym, 0), strconv.Itoa(len(lit.Elems)))
		ctx.storeElems(sym, lit.Elems)
	default:
		ctx.emit(ir.OpLea, "rax", ctx.stackRef(sym, 1))
		ctx.emit(ir.OpMov, ctx.stackAddr(sym, 0), "rax")
		ctx.emit(ir.OpMov, ctx.stackAddr(sym, 1), strconv.Itoa(len(lit.Elems)))
		ctx.storeElems(sym, lit.Elems)
	}
}

func (ctx *Context) findSymbolInCurrentScope(name string) *symbol {
	for sym := ctx.currentScope.Symbols; sym != nil; sym = sym.Next {
		if sym.Name == name {
			return sym
		}
	}
	return nil
}

func (ctx *Context) codegenMutation(d ast.DeclareNode) {
	name := ast.TargetName(d.Target)
	sym := ctx.mustFind(name)

	switch t := d.Target.Data.(type) {
	case ast.IdentNode:
		lit, isArray := d.Value.Data.(ast.ArrayLitNode)
		if !isArray {
			ctx.storeScalar(sym, d.Value)
			return
		}
		ctx.loadValue(sym, "r9")
		ctx.emit(ir.OpMov, "qword [r9]", strconv.Itoa(len(lit.Elems)))
		for k, elem := range lit.Elems {
			ctx.codegenExpr(elem)
			ctx.pop("rax")
			ctx.loadValue(sym, "r9")
			ctx.emit(ir.OpMov, fmt.Sprintf("qword [r9 + %d]", (int64(k)+1)*ctx.wordSize), "rax")
		}

	case ast.SubscriptNode:
		ctx.codegenExpr(t.Index)
		ctx.codegenExpr(d.Value)
		ctx.pop("rax")
		ctx.pop("r8")
		ctx.loadValue(sym, "r9")
		ctx.emit(ir.OpMov, ctx.elemAddr("r9", "r8"), "rax")

	case ast.DerefNode:
		ctx.codegenExpr(d.Value)
		ctx.pop("rax")
		ctx.loadValue(sym, "r9")
		ctx.emit(ir.OpMov, "qword [r9]", "rax")

	default:
		panic("codegen: bad mutation target " + d.Target.Type.String())
	}
}
