// Package ast defines the types used to represent the Abstract Syntax Tree (AST)
package ast

import (
	"github.com/xplshn/ezc/pkg/token"
)

// NodeType defines the kind of a node in the AST
type NodeType int

// Node types enum
const (
	// Expressions
	Number NodeType = iota
	Ident
	BinaryOp
	FuncCall
	Subscript
	Deref
	ArrayLit

	// Statements
	Declare
	If
	Loop
	Break
	Return
	FuncDecl
	ExternDecl
	Block
)

var nodeTypeNames = [...]string{
	Number: "Number", Ident: "Ident", BinaryOp: "BinaryOp", FuncCall: "FuncCall",
	Subscript: "Subscript", Deref: "Deref", ArrayLit: "ArrayLit", Declare: "Declare",
	If: "If", Loop: "Loop", Break: "Break", Return: "Return", FuncDecl: "FuncDecl",
	ExternDecl: "ExternDecl", Block: "Block",
}

func (t NodeType) String() string {
	if int(t) < len(nodeTypeNames) {
		return nodeTypeNames[t]
	}
	return "Unknown"
}

// Node represents a node in the Abstract Syntax Tree
type Node struct {
	Type NodeType
	Tok  token.Token
	Data interface{}
}

// IsLeaf reports whether an expression can be pushed as a single operand.
func (n *Node) IsLeaf() bool { return n.Type == Number || n.Type == Ident }

// Param is one entry of a function or external signature. Array
// parameters are written [N]name and carry the length text unparsed.
type Param struct {
	Name    string
	Tok     token.Token
	IsArray bool
	LenText string
}

// VarSlot is one variable reserved by a body: its slot count, shape and
// declaration ordinal.
type VarSlot struct {
	Name    string
	Slots   int64
	IsArray bool
	Len     int64
	Order   int
}

// Layout is the analyzer's annotation: the variables a body declares, in
// declaration order. A nil *Layout means the body was never analyzed.
type Layout struct {
	Vars []VarSlot
}

// Size is the number of stack slots the layout reserves.
func (l *Layout) Size() int64 {
	var n int64
	for _, v := range l.Vars {
		n += v.Slots
	}
	return n
}

// --- Node Data Structs ---
type NumberNode struct{ Text string }
type IdentNode struct{ Name string }
type BinaryOpNode struct {
	Op          token.Type
	Left, Right *Node
}
type FuncCallNode struct {
	Name       string
	Args       []*Node
	IsExternal bool // Set by the analyzer
}
type SubscriptNode struct {
	Name  string
	Index *Node
}
type DerefNode struct{ Name string }
type ArrayLitNode struct{ Elems []*Node }

// DeclareNode covers both `set` (fresh) and `change` (IsMutation).
// Target is an Ident, or for mutations also a Subscript or Deref.
type DeclareNode struct {
	Target     *Node
	Value      *Node
	IsMutation bool
}
type IfNode struct {
	Cond *Node
	Body []*Node
	Vars *Layout
}
type LoopNode struct{ Body []*Node }
type BreakNode struct{}
type ReturnNode struct{ Expr *Node }
type FuncDeclNode struct {
	Name     string
	Params   []Param
	Body     []*Node
	IsExport bool
	Vars     *Layout
}
type ExternDeclNode struct {
	Name   string
	Params []Param
}
type BlockNode struct{ Stmts []*Node }

// --- Node Constructors ---

func newNode(tok token.Token, nodeType NodeType, data interface{}) *Node {
	return &Node{Type: nodeType, Tok: tok, Data: data}
}

func NewNumber(tok token.Token, text string) *Node {
	return newNode(tok, Number, NumberNode{Text: text})
}
func NewIdent(tok token.Token, name string) *Node {
	return newNode(tok, Ident, IdentNode{Name: name})
}
func NewBinaryOp(tok token.Token, op token.Type, left, right *Node) *Node {
	return newNode(tok, BinaryOp, BinaryOpNode{Op: op, Left: left, Right: right})
}
func NewFuncCall(tok token.Token, name string, args []*Node) *Node {
	return newNode(tok, FuncCall, FuncCallNode{Name: name, Args: args})
}
func NewSubscript(tok token.Token, name string, index *Node) *Node {
	return newNode(tok, Subscript, SubscriptNode{Name: name, Index: index})
}
func NewDeref(tok token.Token, name string) *Node {
	return newNode(tok, Deref, DerefNode{Name: name})
}
func NewArrayLit(tok token.Token, elems []*Node) *Node {
	return newNode(tok, ArrayLit, ArrayLitNode{Elems: elems})
}
func NewDeclare(tok token.Token, target, value *Node, isMutation bool) *Node {
	return newNode(tok, Declare, DeclareNode{Target: target, Value: value, IsMutation: isMutation})
}
func NewIf(tok token.Token, cond *Node, body []*Node) *Node {
	return newNode(tok, If, IfNode{Cond: cond, Body: body})
}
func NewLoop(tok token.Token, body []*Node) *Node {
	return newNode(tok, Loop, LoopNode{Body: body})
}
func NewBreak(tok token.Token) *Node {
	return newNode(tok, Break, BreakNode{})
}
func NewReturn(tok token.Token, expr *Node) *Node {
	return newNode(tok, Return, ReturnNode{Expr: expr})
}
func NewFuncDecl(tok token.Token, name string, params []Param, body []*Node, isExport bool) *Node {
	return newNode(tok, FuncDecl, FuncDeclNode{Name: name, Params: params, Body: body, IsExport: isExport})
}
func NewExternDecl(tok token.Token, name string, params []Param) *Node {
	return newNode(tok, ExternDecl, ExternDeclNode{Name: name, Params: params})
}
func NewBlock(tok token.Token, stmts []*Node) *Node {
	return newNode(tok, Block, BlockNode{Stmts: stmts})
}

// TargetName returns the variable a declaration or mutation target names.
func TargetName(target *Node) string {
	switch d := target.Data.(type) {
	case IdentNode:
		return d.Name
	case SubscriptNode:
		return d.Name
	case DerefNode:
		return d.Name
	}
	return ""
}
