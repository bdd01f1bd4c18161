package analyzer

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/ezc/pkg/ast"
	"github.com/xplshn/ezc/pkg/config"
	"github.com/xplshn/ezc/pkg/lexer"
	"github.com/xplshn/ezc/pkg/parser"
)

func mustParse(t *testing.T, src string) *ast.Node {
	t.Helper()
	toks, err := lexer.NewLexer([]rune(src), 0, config.NewConfig()).Tokenize()
	if err != nil {
		t.Fatalf("lex %q: %v", src, err)
	}
	root, err := parser.NewParser(toks).Parse()
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return root
}

func analyze(t *testing.T, cfg *config.Config, src string) (*ast.Node, *Result, error) {
	t.Helper()
	root := mustParse(t, src)
	res, err := New(cfg).Analyze(root)
	return root, res, err
}

func mustAnalyze(t *testing.T, src string) (*ast.Node, *Result) {
	t.Helper()
	root, res, err := analyze(t, config.NewConfig(), src)
	if err != nil {
		t.Fatalf("Analyze(%q): %v", src, err)
	}
	return root, res
}

func stmts(root *ast.Node) []*ast.Node { return root.Data.(ast.BlockNode).Stmts }

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantKind ErrorKind
		wantName string
	}{
		{"double set", "set x to 1. set x to 2.", DoubleSet, "x"},
		{"double set other shape", "set x to 1. set x to [1].", DoubleSet, "x"},
		{"double set of a global inside if", "set x to 1. if 1, set x to 2. !", DoubleSet, "x"},
		{"double set of a parameter", "function f(n), set n to 1. return n. !", DoubleSet, "n"},
		{"change undeclared", "change x to 1.", VarNotExist, "x"},
		{"index undeclared", "change x[0] to 1.", VarNotExist, "x"},
		{"deref undeclared", "change @x to 1.", VarNotExist, "x"},
		{"read undeclared", "set y to x + 1.", VarNotExist, "x"},
		{"read after its if ends", "if 1, set z to 1. ! change z to 2.", VarNotExist, "z"},
		{"global from a function", "set g to 1. function f(), return g. !", VarNotExist, "g"},
		{"number too big", "set x to 9223372036854775808.", NumberTooBig, "9223372036854775808"},
		{"set in loop", "loop, set x to 1. break. !", SetInLoop, "x"},
		{"set in if in loop", "loop, if 1, set x to 1. ! break. !", SetInLoop, "x"},
		{"break at top level", "break.", BreakWithoutLoop, ""},
		{"break in if", "if 1, break. !", BreakWithoutLoop, ""},
		{"break in function", "function f(), break. !", BreakWithoutLoop, ""},
		{"return at top level", "return 1.", ReturnOutSideOfFunc, ""},
		{"return in top-level if", "if 1, return 1. !", ReturnOutSideOfFunc, ""},
		{"function twice", "function f(), return 1. ! function f(), return 2. !", FuncAlreadyExists, "f"},
		{"external then function", "external function f(). function f(), return 1. !", FuncAlreadyExists, "f"},
		{"repeated parameter", "function f(a, a), return a. !", SameArgForFunction, "a"},
		{"wrong arity", "function f(a), return a. ! set x to f(1, 2).", FuncCalledWithWrongArgsType, "f"},
		{"scalar for array parameter", "function f([2]a), return a[0]. ! set x to f(1).", FuncCalledWithWrongArgsType, "f"},
		{"array of wrong length", "function f([2]a), return a[0]. ! set z to [1, 2, 3]. set x to f(z).", FuncCalledWithWrongArgsType, "f"},
		{"unknown function", "set x to g(1).", FuncCalledButNoExist, "g"},
		{"scalar to array", "set x to 1. change x to [1].", CannotChangeSomethingToArray, "x"},
		{"array to scalar", "set z to [1]. change z to 1.", CannotChangeSomethingToArray, "z"},
		{"array length change", "set z to [1, 2]. change z to [1].", CannotChangeSomethingToArray, "z"},
		{"element to array", "set z to [1]. change z[0] to [2].", CannotChangeSomethingToArray, "z"},
		{"seven parameters", "function f(a, b, c, d, e, g, h), return a. !", TooManyParams, "f"},
		{"nested array literal", "set z to [1, 2, 3, [1, 2]].", MalformedArrayElement, "z"},
		{"index a scalar", "set x to 1. set y to x[0].", TypeMismatch, "x"},
		{"change element of a scalar", "set x to 1. change x[0] to 1.", TypeMismatch, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := analyze(t, config.NewConfig(), tt.src)
			var ae *Error
			if !errors.As(err, &ae) {
				t.Fatalf("got %v, want *Error", err)
			}
			if ae.Kind != tt.wantKind || ae.Name != tt.wantName {
				t.Errorf("got %v(%q), want %v(%q)", ae.Kind, ae.Name, tt.wantKind, tt.wantName)
			}
		})
	}
}

func TestErrorPosition(t *testing.T) {
	_, _, err := analyze(t, nil, "set x to 1.\nset x to 2.")
	var ae *Error
	if !errors.As(err, &ae) {
		t.Fatalf("got %v, want *Error", err)
	}
	if ae.Tok.Line != 2 || ae.Tok.Column != 5 {
		t.Errorf("position = %d:%d, want 2:5", ae.Tok.Line, ae.Tok.Column)
	}
	if got, want := ae.Error(), "'x' is already set"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorDetail(t *testing.T) {
	_, _, err := analyze(t, nil, "function f(a), return a. ! set x to f().")
	var ae *Error
	if !errors.As(err, &ae) {
		t.Fatalf("got %v, want *Error", err)
	}
	want := "function 'f' called with the wrong arguments: expected 1 arguments, got 0"
	if got := ae.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

// Concrete scenario 1: two globals, then a mutation reading one of them.
func TestGlobalsInDeclarationOrder(t *testing.T) {
	_, res := mustAnalyze(t, "set x to 10. set y to 5. change x to 445235 + y. set z to [1, 2, 3].")
	want := []ast.VarSlot{
		{Name: "x", Slots: 1, Order: 1},
		{Name: "y", Slots: 1, Order: 2},
		{Name: "z", Slots: 4, IsArray: true, Len: 3, Order: 3},
	}
	if diff := cmp.Diff(want, res.Globals); diff != "" {
		t.Errorf("globals mismatch (-want +got):\n%s", diff)
	}
}

// Concrete scenario 2: a conditional that only mutates has an empty layout.
func TestConditionalWithoutLocals(t *testing.T) {
	root, _ := mustAnalyze(t, "set x to 10. set y to 5. if y != x, change x to y. !")
	ifNode := stmts(root)[2].Data.(ast.IfNode)
	if ifNode.Vars == nil {
		t.Fatal("conditional was not annotated")
	}
	if size := ifNode.Vars.Size(); size != 0 {
		t.Errorf("layout size = %d, want 0", size)
	}
}

func TestConditionalLayout(t *testing.T) {
	root, res := mustAnalyze(t, "set g to 1. if g, set a to 1. set b to [1, 2, 3]. if a, set c to 2. ! !")
	outer := stmts(root)[1].Data.(ast.IfNode)
	want := []ast.VarSlot{
		{Name: "a", Slots: 1, Order: 2},
		{Name: "b", Slots: 5, IsArray: true, Len: 3, Order: 3},
	}
	if diff := cmp.Diff(want, outer.Vars.Vars); diff != "" {
		t.Errorf("outer layout mismatch (-want +got):\n%s", diff)
	}
	inner := outer.Body[2].Data.(ast.IfNode)
	if diff := cmp.Diff([]ast.VarSlot{{Name: "c", Slots: 1, Order: 4}}, inner.Vars.Vars); diff != "" {
		t.Errorf("inner layout mismatch (-want +got):\n%s", diff)
	}
	if len(res.Globals) != 1 {
		t.Errorf("block locals leaked into globals: %+v", res.Globals)
	}
}

func TestFunctionLayout(t *testing.T) {
	root, res := mustAnalyze(t, "function f(n, [2]p), set a to [n, 2]. set b to p[1]. return a[0] + b. !")
	fn := stmts(root)[0].Data.(ast.FuncDeclNode)
	want := []ast.VarSlot{
		{Name: "a", Slots: 4, IsArray: true, Len: 2, Order: 1},
		{Name: "b", Slots: 1, Order: 2},
	}
	if diff := cmp.Diff(want, fn.Vars.Vars); diff != "" {
		t.Errorf("function layout mismatch (-want +got):\n%s", diff)
	}
	if len(res.Globals) != 0 {
		t.Errorf("function locals leaked into globals: %+v", res.Globals)
	}
}

func TestFunctionLocalsDoNotOutliveFunction(t *testing.T) {
	_, _, err := analyze(t, nil, "function f(n), set a to n. return a. ! set x to a.")
	var ae *Error
	if !errors.As(err, &ae) || ae.Kind != VarNotExist || ae.Name != "a" {
		t.Fatalf("got %v, want VarNotExist(a)", err)
	}
	// The same names are free again in the next function.
	mustAnalyze(t, "function f(n), set a to n. return a. ! function g(n), set a to n. return a. !")
}

// Concrete scenario 3: recursive calls resolve as internal.
func TestRecursiveCallsAreInternal(t *testing.T) {
	root, _ := mustAnalyze(t, "function fib(n), if n <= 1, return n. ! return fib(n - 1) + fib(n - 2). !")
	fn := stmts(root)[0].Data.(ast.FuncDeclNode)
	if len(fn.Params) != 1 || fn.Params[0].IsArray {
		t.Fatalf("params = %+v, want one scalar", fn.Params)
	}
	sum := fn.Body[1].Data.(ast.ReturnNode).Expr.Data.(ast.BinaryOpNode)
	for _, call := range []*ast.Node{sum.Left, sum.Right} {
		d := call.Data.(ast.FuncCallNode)
		if d.Name != "fib" || d.IsExternal {
			t.Errorf("call %+v: want internal call to fib", d)
		}
	}
}

func TestExternalAndExportedCalls(t *testing.T) {
	root, res := mustAnalyze(t, `
external function putint(n).
export function show(a), return putint(a). !
function twice(a), return a * 2. !
set x to show(twice(1)).`)
	if diff := cmp.Diff([]string{"putint"}, res.Externals); diff != "" {
		t.Errorf("externals mismatch (-want +got):\n%s", diff)
	}

	show := stmts(root)[1].Data.(ast.FuncDeclNode)
	inner := show.Body[0].Data.(ast.ReturnNode).Expr.Data.(ast.FuncCallNode)
	if !inner.IsExternal {
		t.Error("call to an external function resolved as internal")
	}

	outer := stmts(root)[3].Data.(ast.DeclareNode).Value.Data.(ast.FuncCallNode)
	if !outer.IsExternal {
		t.Error("call to an exported function resolved as internal")
	}
	if arg := outer.Args[0].Data.(ast.FuncCallNode); arg.IsExternal {
		t.Error("call to an internal function resolved as external")
	}
}

func TestArrayArguments(t *testing.T) {
	// An array name passes its reference to a scalar parameter.
	mustAnalyze(t, "set z to [1, 2]. function first(p), return @p. ! set x to first(z).")
	// An exact-length array passes to an array parameter, including a forwarded one.
	mustAnalyze(t, `
function sum([2]a), return a[0] + a[1]. !
function again([2]b), return sum(b). !
set z to [1, 2].
set s to again(z).`)
}

// Concrete scenario 5: break inside a conditional inside a loop.
func TestBreakInsideLoop(t *testing.T) {
	mustAnalyze(t, "loop, if 1, break. ! !")
	mustAnalyze(t, "function f(n), loop, if n, return n. ! ! !")
}

func TestWarnings(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		enable  []config.Warning
		disable []config.Warning
		want    []config.Warning
	}{
		{"unreachable after return", "function f(), return 1. return 2. !", nil, nil,
			[]config.Warning{config.WarnUnreachableCode}},
		{"unreachable after break", "loop, break. break. !", nil, nil,
			[]config.Warning{config.WarnUnreachableCode}},
		{"loop never exits", "set x to 0. loop, change x to x + 1. !", nil, nil,
			[]config.Warning{config.WarnInfiniteLoop}},
		{"inner break does not leave outer loop", "loop, loop, break. ! !", nil, nil,
			[]config.Warning{config.WarnInfiniteLoop}},
		{"return leaves every loop", "function f(), loop, loop, return 1. ! ! !", nil, nil, nil},
		{"empty body off by default", "if 1, !", nil, nil, nil},
		{"empty body enabled", "if 1, ! function f(), !", []config.Warning{config.WarnEmptyBody}, nil,
			[]config.Warning{config.WarnEmptyBody, config.WarnEmptyBody}},
		{"disabled warning is dropped", "loop, !", nil, []config.Warning{config.WarnInfiniteLoop}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewConfig()
			for _, w := range tt.enable {
				cfg.SetWarning(w, true)
			}
			for _, w := range tt.disable {
				cfg.SetWarning(w, false)
			}
			_, res, err := analyze(t, cfg, tt.src)
			if err != nil {
				t.Fatal(err)
			}
			var got []config.Warning
			for _, d := range res.Warnings {
				got = append(got, d.Warning)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("warnings mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScopeTracker(t *testing.T) {
	var s Scope
	if s.Class() != Global {
		t.Errorf("top level class = %v, want global", s.Class())
	}
	inIf := s.enterIf()
	if inIf.Class() != BlockLocal {
		t.Errorf("if class = %v, want block-local", inIf.Class())
	}
	loop := inIf.enterLoop()
	if loop.InIf || !loop.InLoop {
		t.Errorf("enterLoop = %+v, want InLoop without InIf", loop)
	}
	fn := loop.enterFunc()
	if diff := cmp.Diff(Scope{InFunc: true}, fn); diff != "" {
		t.Errorf("enterFunc mismatch (-want +got):\n%s", diff)
	}
	if fn.enterIf().Class() != FunctionLocal {
		t.Error("if inside a function is not function-local")
	}
	if s != (Scope{}) {
		t.Error("entering a scope changed the caller's copy")
	}
}

func TestSlotsFor(t *testing.T) {
	tests := []struct {
		class   StorageClass
		isArray bool
		length  int64
		want    int64
	}{
		{Global, false, 0, 1},
		{Global, true, 3, 4},
		{BlockLocal, true, 3, 5},
		{FunctionLocal, true, 0, 2},
		{FunctionLocal, false, 0, 1},
	}
	for _, tt := range tests {
		if got := tt.class.slotsFor(tt.isArray, tt.length); got != tt.want {
			t.Errorf("%v.slotsFor(%v, %d) = %d, want %d", tt.class, tt.isArray, tt.length, got, tt.want)
		}
	}
}

func TestPurgeKeepsShadowedNames(t *testing.T) {
	tbl := table{"x": {}, "outer": {}}
	shadow := tbl.snapshot()
	tbl["y"] = varInfo{isArray: true, length: 2}
	tbl["x"] = varInfo{isArray: true, length: 1}

	tbl.purge([]string{"x", "y"}, shadow)

	want := table{"x": {isArray: true, length: 1}, "outer": {}}
	if diff := cmp.Diff(want, tbl, cmp.AllowUnexported(varInfo{})); diff != "" {
		t.Errorf("table after purge mismatch (-want +got):\n%s", diff)
	}
}

func TestFunctionInsideFunctionBody(t *testing.T) {
	// The parser only allows top-level functions; trees built directly
	// may still nest them.
	root := mustParse(t, "function f(n), set a to n. return a. ! function g(m), return m. !")
	top := root.Data.(ast.BlockNode)
	outer := top.Stmts[0].Data.(ast.FuncDeclNode)
	outer.Body = append([]*ast.Node{top.Stmts[1]}, outer.Body...)
	top.Stmts[0].Data = outer
	root.Data = ast.BlockNode{Stmts: top.Stmts[:1]}

	if _, err := New(nil).Analyze(root); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	fn := root.Data.(ast.BlockNode).Stmts[0].Data.(ast.FuncDeclNode)
	if diff := cmp.Diff([]ast.VarSlot{{Name: "a", Slots: 1, Order: 1}}, fn.Vars.Vars); diff != "" {
		t.Errorf("outer layout mismatch (-want +got):\n%s", diff)
	}
}
