package codegen

import (
	"fmt"
	"math"
	"strconv"

	"github.com/xplshn/ezc/pkg/ast"
	"github.com/xplshn/ezc/pkg/ir"
	"github.com/xplshn/ezc/pkg/token"
)

// immediate returns a literal's text when it can be encoded as a
// sign-extended 32-bit operand.
func immediate(node *ast.Node) (string, bool) {
	num, ok := node.Data.(ast.NumberNode)
	if !ok {
		return "", false
	}
	v, err := strconv.ParseInt(num.Text, 10, 64)
	if err != nil || v < math.MinInt32 || v > math.MaxInt32 {
		return "", false
	}
	return strconv.FormatInt(v, 10), true
}

func (ctx *Context) elemAddr(base, index string) string {
	return fmt.Sprintf("qword [%s + %s*%d + %d]", base, index, ctx.wordSize, ctx.wordSize)
}

func (ctx *Context) storeScalar(sym *symbol, value *ast.Node) {
	if imm, ok := immediate(value); ok {
		ctx.emit(ir.OpMov, ctx.slotAddr(sym), imm)
		return
	}
	ctx.codegenExpr(value)
	ctx.pop("rax")
	ctx.emit(ir.OpMov, ctx.slotAddr(sym), "rax")
}

// storeElems fills a freshly declared array in place. Globals keep their
// elements after the length word; stack arrays after the pointer and the
// length word.
func (ctx *Context) storeElems(sym *symbol, elems []*ast.Node) {
	for k, elem := range elems {
		ctx.codegenExpr(elem)
		ctx.pop("rax")
		if sym.Type == symGlobal {
			ctx.emit(ir.OpMov, ctx.globalAddr(sym, int64(k)+1), "rax")
		} else {
			ctx.emit(ir.OpMov, ctx.stackAddr(sym, int64(k)+2), "rax")
		}
	}
}

// codegenExpr leaves the expression's value on top of the stack.
func (ctx *Context) codegenExpr(node *ast.Node) {
	switch d := node.Data.(type) {
	case ast.NumberNode, ast.IdentNode:
		ctx.pushLeaf(node)
	case ast.BinaryOpNode:
		ctx.codegenBinaryOp(d)
	case ast.FuncCallNode:
		ctx.codegenFuncCall(d)
	case ast.SubscriptNode:
		ctx.codegenExpr(d.Index)
		ctx.pop("r8")
		ctx.loadValue(ctx.mustFind(d.Name), "r9")
		ctx.push(ctx.elemAddr("r9", "r8"))
	case ast.DerefNode:
		ctx.loadValue(ctx.mustFind(d.Name), "r9")
		ctx.push("qword [r9]")
	default:
		panic("codegen: unexpected expression " + node.Type.String())
	}
}

// pushLeaf pushes a literal or a name. A global array pushes its address;
// a stack array already holds one.
func (ctx *Context) pushLeaf(node *ast.Node) {
	switch d := node.Data.(type) {
	case ast.NumberNode:
		if imm, ok := immediate(node); ok {
			ctx.push(imm)
			return
		}
		v, err := strconv.ParseInt(d.Text, 10, 64)
		if err != nil {
			panic("codegen: bad literal " + d.Text)
		}
		ctx.emit(ir.OpMov, "rax", strconv.FormatInt(v, 10))
		ctx.push("rax")
	case ast.IdentNode:
		sym := ctx.mustFind(d.Name)
		if sym.Type == symGlobal && sym.IsArray {
			ctx.loadValue(sym, "rax")
			ctx.push("rax")
			return
		}
		ctx.push(ctx.slotAddr(sym))
	default:
		panic("codegen: not a leaf: " + node.Type.String())
	}
}

func (ctx *Context) codegenBinaryOp(d ast.BinaryOpNode) {
	switch {
	case d.Left.IsLeaf() && d.Right.IsLeaf():
		ctx.pushLeaf(d.Left)
		ctx.pushLeaf(d.Right)
	case d.Right.IsLeaf():
		ctx.codegenExpr(d.Left)
		ctx.pushLeaf(d.Right)
	case d.Left.IsLeaf():
		ctx.pushLeaf(d.Left)
		ctx.codegenExpr(d.Right)
	default:
		ctx.codegenExpr(d.Left)
		ctx.codegenExpr(d.Right)
	}
	ctx.applyOp(d.Op)
}

var jumpFor = map[token.Type]ir.Op{
	token.Lt: ir.OpJl, token.Gt: ir.OpJg, token.Lte: ir.OpJle,
	token.Gte: ir.OpJge, token.Eq: ir.OpJe, token.Neq: ir.OpJne,
}

// applyOp consumes the two operands on top of the stack (right above left)
// and pushes the result.
func (ctx *Context) applyOp(op token.Type) {
	ctx.pop("r8")
	ctx.pop("r9")

	switch op {
	case token.Plus:
		ctx.emit(ir.OpAdd, "r9", "r8")
	case token.Minus:
		ctx.emit(ir.OpSub, "r9", "r8")
	case token.Star:
		ctx.emit(ir.OpImul, "r9", "r8")
	case token.And, token.Or:
		ctx.normalize("r9")
		ctx.normalize("r8")
		if op == token.And {
			ctx.emit(ir.OpAnd, "r9", "r8")
		} else {
			ctx.emit(ir.OpOr, "r9", "r8")
		}
	default:
		jump, ok := jumpFor[op]
		if !ok {
			panic("codegen: unknown operator " + op.String())
		}
		isTrue, n := ctx.newLabel("CMP_TRUE")
		end := fmt.Sprintf(".CMP_END_%d", n)
		ctx.emit(ir.OpCmp, "r9", "r8")
		ctx.emit(jump, isTrue)
		base := ctx.depth
		ctx.push("0")
		ctx.emit(ir.OpJmp, end)
		ctx.label(isTrue)
		ctx.depth = base
		ctx.push("1")
		ctx.label(end)
		return
	}
	ctx.push("r9")
}

// normalize turns any nonzero value in reg into 1.
func (ctx *Context) normalize(reg string) {
	ctx.emit(ir.OpCmp, reg, "0")
	ctx.emit(ir.OpSetne, "al")
	ctx.emit(ir.OpMovzx, reg, "al")
}

// codegenFuncCall loads the arguments into the argument registers, keeps
// the stack 16-byte aligned across the call and pushes the result.
func (ctx *Context) codegenFuncCall(d ast.FuncCallNode) {
	if len(d.Args) > len(argRegs) {
		panic("codegen: call to '" + d.Name + "' has too many arguments")
	}
	for _, arg := range d.Args {
		ctx.codegenExpr(arg)
	}
	for i := len(d.Args) - 1; i >= 0; i-- {
		ctx.pop(argRegs[i])
	}

	pad := ctx.depth%2 != 0
	if pad {
		ctx.alloc(1)
	}
	if ctx.externs[d.Name] {
		ctx.usedExterns[d.Name] = true
	}
	ctx.emit(ir.OpCall, functionLabel(d.Name, d.IsExternal))
	if pad {
		ctx.free(1)
	}
	ctx.push("rax")
}
