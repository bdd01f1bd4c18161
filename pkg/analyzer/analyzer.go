// Package analyzer checks scoping, lifetime and call rules, and annotates
// every conditional and function body with the layout of the variables it
// declares.
package analyzer

import (
	"strconv"

	"github.com/xplshn/ezc/pkg/ast"
	"github.com/xplshn/ezc/pkg/config"
	"github.com/xplshn/ezc/pkg/token"
)

// MaxParams is the number of integer argument registers.
const MaxParams = 6

type paramType struct {
	isArray bool
	length  int64
}

type signature struct {
	params []paramType
	// bareName is set for external and exported functions, which keep
	// their source name as the assembly symbol.
	bareName bool
}

// Diagnostic is a non-fatal finding.
type Diagnostic struct {
	Warning config.Warning
	Tok     token.Token
	Msg     string
}

// Result is what a successful analysis produces besides the annotations.
type Result struct {
	Globals   []ast.VarSlot
	Externals []string
	Warnings  []Diagnostic
}

type Analyzer struct {
	cfg         *config.Config
	globals     table
	blockLocals table
	funcLocals  table
	funcs       map[string]*signature
	externals   []string
	order       int
	warnings    []Diagnostic
}

func New(cfg *config.Config) *Analyzer {
	return &Analyzer{
		cfg:         cfg,
		globals:     make(table),
		blockLocals: make(table),
		funcs:       make(map[string]*signature),
	}
}

// Analyze checks the program rooted at a Block node and fills in the
// layout annotations in place. The first violation aborts the run.
func (a *Analyzer) Analyze(root *ast.Node) (*Result, error) {
	block, ok := root.Data.(ast.BlockNode)
	if !ok {
		panic("analyzer: root must be a Block node")
	}
	globals, err := a.analyzeBody(block.Stmts, Scope{})
	if err != nil {
		return nil, err
	}
	return &Result{Globals: globals.Vars, Externals: a.externals, Warnings: a.warnings}, nil
}

func (a *Analyzer) warn(w config.Warning, tok token.Token, msg string) {
	if a.cfg != nil && !a.cfg.IsWarningEnabled(w) {
		return
	}
	a.warnings = append(a.warnings, Diagnostic{Warning: w, Tok: tok, Msg: msg})
}

// tableFor is the table fresh declarations land in under s.
func (a *Analyzer) tableFor(s Scope) table {
	switch s.Class() {
	case FunctionLocal:
		return a.funcLocals
	case BlockLocal:
		return a.blockLocals
	default:
		return a.globals
	}
}

// lookup resolves a name through the chain visible under s. Functions see
// only their own locals and parameters.
func (a *Analyzer) lookup(name string, s Scope) (varInfo, bool) {
	if s.InFunc {
		v, ok := a.funcLocals[name]
		return v, ok
	}
	if v, ok := a.blockLocals[name]; ok {
		return v, true
	}
	v, ok := a.globals[name]
	return v, ok
}

// analyzeBody checks a statement list and returns the variables it
// declared. Those names go out of scope when the body ends, unless the
// body is the program's top level.
func (a *Analyzer) analyzeBody(stmts []*ast.Node, s Scope) (*ast.Layout, error) {
	tbl := a.tableFor(s)
	shadow := tbl.snapshot()
	layout := &ast.Layout{Vars: []ast.VarSlot{}}

	terminated := false
	for _, stmt := range stmts {
		if terminated {
			a.warn(config.WarnUnreachableCode, stmt.Tok, "unreachable code")
			terminated = false
		}
		if err := a.analyzeStmt(stmt, s, layout); err != nil {
			return nil, err
		}
		if stmt.Type == ast.Break || stmt.Type == ast.Return {
			terminated = true
		}
	}

	if s.InIf || s.InLoop || s.InFunc {
		declared := make([]string, len(layout.Vars))
		for i, v := range layout.Vars {
			declared[i] = v.Name
		}
		tbl.purge(declared, shadow)
	}
	return layout, nil
}

func (a *Analyzer) analyzeStmt(node *ast.Node, s Scope, layout *ast.Layout) error {
	switch d := node.Data.(type) {
	case ast.DeclareNode:
		if d.IsMutation {
			return a.analyzeMutation(d, s)
		}
		return a.analyzeDeclaration(node, d, s, layout)

	case ast.IfNode:
		if err := a.checkExpr(d.Cond, s); err != nil {
			return err
		}
		if len(d.Body) == 0 {
			a.warn(config.WarnEmptyBody, node.Tok, "empty 'if' body")
		}
		vars, err := a.analyzeBody(d.Body, s.enterIf())
		if err != nil {
			return err
		}
		d.Vars = vars
		node.Data = d

	case ast.LoopNode:
		if len(d.Body) == 0 {
			a.warn(config.WarnEmptyBody, node.Tok, "empty 'loop' body")
		}
		if !escapes(d.Body, true) {
			a.warn(config.WarnInfiniteLoop, node.Tok, "loop never breaks or returns")
		}
		if _, err := a.analyzeBody(d.Body, s.enterLoop()); err != nil {
			return err
		}

	case ast.BreakNode:
		if !s.InLoop {
			return newError(BreakWithoutLoop, "", node.Tok)
		}

	case ast.ReturnNode:
		if !s.InFunc {
			return newError(ReturnOutSideOfFunc, "", node.Tok)
		}
		return a.checkExpr(d.Expr, s)

	case ast.FuncDeclNode:
		return a.analyzeFunction(node, d)

	case ast.ExternDeclNode:
		sig, err := a.register(d.Name, d.Params, node.Tok)
		if err != nil {
			return err
		}
		sig.bareName = true
		a.externals = append(a.externals, d.Name)

	default:
		panic("analyzer: unexpected statement " + node.Type.String())
	}
	return nil
}

func (a *Analyzer) analyzeDeclaration(node *ast.Node, d ast.DeclareNode, s Scope, layout *ast.Layout) error {
	name := ast.TargetName(d.Target)
	if s.InLoop {
		return newError(SetInLoop, name, d.Target.Tok)
	}
	if _, exists := a.lookup(name, s); exists {
		return newError(DoubleSet, name, d.Target.Tok)
	}

	info, err := a.checkValue(name, d.Value, s)
	if err != nil {
		return err
	}

	a.order++
	layout.Vars = append(layout.Vars, ast.VarSlot{
		Name:    name,
		Slots:   s.Class().slotsFor(info.isArray, info.length),
		IsArray: info.isArray,
		Len:     info.length,
		Order:   a.order,
	})
	a.tableFor(s)[name] = info
	return nil
}

func (a *Analyzer) analyzeMutation(d ast.DeclareNode, s Scope) error {
	name := ast.TargetName(d.Target)
	target, ok := a.lookup(name, s)
	if !ok {
		return newError(VarNotExist, name, d.Target.Tok)
	}

	isArrayValue := d.Value.Type == ast.ArrayLit
	switch d.Target.Type {
	case ast.Ident:
		if isArrayValue != target.isArray {
			return newError(CannotChangeSomethingToArray, name, d.Value.Tok)
		}
		info, err := a.checkValue(name, d.Value, s)
		if err != nil {
			return err
		}
		if isArrayValue && info.length != target.length {
			e := newError(CannotChangeSomethingToArray, name, d.Value.Tok)
			e.Detail = "length " + strconv.FormatInt(info.length, 10) + " does not match " + strconv.FormatInt(target.length, 10)
			return e
		}
		return nil

	case ast.Subscript:
		if !target.isArray {
			return newError(TypeMismatch, name, d.Target.Tok)
		}
		if err := a.checkExpr(d.Target.Data.(ast.SubscriptNode).Index, s); err != nil {
			return err
		}
	}

	if isArrayValue {
		return newError(CannotChangeSomethingToArray, name, d.Value.Tok)
	}
	return a.checkExpr(d.Value, s)
}

// checkValue validates the right-hand side of a declaration or mutation
// and reports its shape.
func (a *Analyzer) checkValue(name string, value *ast.Node, s Scope) (varInfo, error) {
	lit, ok := value.Data.(ast.ArrayLitNode)
	if !ok {
		return varInfo{}, a.checkExpr(value, s)
	}
	for _, elem := range lit.Elems {
		if elem.Type == ast.ArrayLit {
			return varInfo{}, newError(MalformedArrayElement, name, elem.Tok)
		}
		if err := a.checkExpr(elem, s); err != nil {
			return varInfo{}, err
		}
	}
	return varInfo{isArray: true, length: int64(len(lit.Elems))}, nil
}

func (a *Analyzer) analyzeFunction(node *ast.Node, d ast.FuncDeclNode) error {
	sig, err := a.register(d.Name, d.Params, node.Tok)
	if err != nil {
		return err
	}
	sig.bareName = d.IsExport

	outer := a.funcLocals
	a.funcLocals = make(table, len(d.Params))
	for i, p := range d.Params {
		a.funcLocals[p.Name] = varInfo{isArray: sig.params[i].isArray, length: sig.params[i].length}
	}
	defer func() { a.funcLocals = outer }()

	if len(d.Body) == 0 {
		a.warn(config.WarnEmptyBody, node.Tok, "empty function body")
	}
	vars, err := a.analyzeBody(d.Body, Scope{}.enterFunc())
	if err != nil {
		return err
	}

	params := make(map[string]bool, len(d.Params))
	for _, p := range d.Params {
		params[p.Name] = true
	}
	stripped := &ast.Layout{Vars: []ast.VarSlot{}}
	for _, v := range vars.Vars {
		if !params[v.Name] {
			stripped.Vars = append(stripped.Vars, v)
		}
	}
	d.Vars = stripped
	node.Data = d
	return nil
}

// register adds a function or external signature to the program-wide table.
func (a *Analyzer) register(name string, params []ast.Param, tok token.Token) (*signature, error) {
	if _, exists := a.funcs[name]; exists {
		return nil, newError(FuncAlreadyExists, name, tok)
	}
	if len(params) > MaxParams {
		return nil, newError(TooManyParams, name, tok)
	}
	sig := &signature{params: make([]paramType, len(params))}
	seen := make(map[string]bool, len(params))
	for i, p := range params {
		if seen[p.Name] {
			return nil, newError(SameArgForFunction, p.Name, p.Tok)
		}
		seen[p.Name] = true
		if p.IsArray {
			length, err := strconv.ParseInt(p.LenText, 10, 64)
			if err != nil {
				return nil, newError(NumberTooBig, p.LenText, p.Tok)
			}
			sig.params[i] = paramType{isArray: true, length: length}
		}
	}
	a.funcs[name] = sig
	return sig, nil
}

func (a *Analyzer) checkExpr(node *ast.Node, s Scope) error {
	switch d := node.Data.(type) {
	case ast.NumberNode:
		if _, err := strconv.ParseInt(d.Text, 10, 64); err != nil {
			return newError(NumberTooBig, d.Text, node.Tok)
		}

	case ast.IdentNode:
		if _, ok := a.lookup(d.Name, s); !ok {
			return newError(VarNotExist, d.Name, node.Tok)
		}

	case ast.DerefNode:
		if _, ok := a.lookup(d.Name, s); !ok {
			return newError(VarNotExist, d.Name, node.Tok)
		}

	case ast.SubscriptNode:
		v, ok := a.lookup(d.Name, s)
		if !ok {
			return newError(VarNotExist, d.Name, node.Tok)
		}
		if !v.isArray {
			return newError(TypeMismatch, d.Name, node.Tok)
		}
		return a.checkExpr(d.Index, s)

	case ast.BinaryOpNode:
		if err := a.checkExpr(d.Left, s); err != nil {
			return err
		}
		return a.checkExpr(d.Right, s)

	case ast.FuncCallNode:
		return a.checkCall(node, d, s)

	case ast.ArrayLitNode:
		return newError(MalformedArrayElement, "", node.Tok)

	default:
		panic("analyzer: unexpected expression " + node.Type.String())
	}
	return nil
}

func (a *Analyzer) checkCall(node *ast.Node, d ast.FuncCallNode, s Scope) error {
	sig, ok := a.funcs[d.Name]
	if !ok {
		return newError(FuncCalledButNoExist, d.Name, node.Tok)
	}
	if len(d.Args) != len(sig.params) {
		e := newError(FuncCalledWithWrongArgsType, d.Name, node.Tok)
		e.Detail = "expected " + strconv.Itoa(len(sig.params)) + " arguments, got " + strconv.Itoa(len(d.Args))
		return e
	}
	for i, arg := range d.Args {
		if err := a.checkExpr(arg, s); err != nil {
			return err
		}
		want := sig.params[i]
		if !want.isArray {
			continue
		}
		got := a.argType(arg, s)
		if !got.isArray || got.length != want.length {
			e := newError(FuncCalledWithWrongArgsType, d.Name, arg.Tok)
			e.Detail = "argument " + strconv.Itoa(i+1) + " must be an array of length " + strconv.FormatInt(want.length, 10)
			return e
		}
	}
	d.IsExternal = sig.bareName
	node.Data = d
	return nil
}

// argType is the shape an argument passes: a bare array name passes the
// array by reference, everything else is a number.
func (a *Analyzer) argType(arg *ast.Node, s Scope) varInfo {
	if ident, ok := arg.Data.(ast.IdentNode); ok {
		if v, ok := a.lookup(ident.Name, s); ok && v.isArray {
			return v
		}
	}
	return varInfo{}
}

// escapes reports whether stmts can leave the enclosing loop. Breaks inside
// a nested loop only leave that loop.
func escapes(stmts []*ast.Node, breakCounts bool) bool {
	for _, stmt := range stmts {
		switch d := stmt.Data.(type) {
		case ast.BreakNode:
			if breakCounts {
				return true
			}
		case ast.ReturnNode:
			return true
		case ast.IfNode:
			if escapes(d.Body, breakCounts) {
				return true
			}
		case ast.LoopNode:
			if escapes(d.Body, false) {
				return true
			}
		}
	}
	return false
}
