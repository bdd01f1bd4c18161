package parser

import (
	"github.com/xplshn/ezc/pkg/ast"
	"github.com/xplshn/ezc/pkg/token"
	"github.com/xplshn/ezc/pkg/util"
)

// Parser holds the state for the parsing process
type Parser struct {
	tokens   []token.Token
	pos      int
	current  token.Token
	previous token.Token
}

// bailout carries the first syntax error up to Parse.
type bailout struct{ err *util.CompileError }

// NewParser creates and initializes a new Parser from a token stream
func NewParser(tokens []token.Token) *Parser {
	p := &Parser{tokens: tokens, pos: 0}
	if len(tokens) > 0 {
		p.current = p.tokens[0]
	}
	return p
}

// Parse turns the token stream into a Block holding the top-level statements.
func (p *Parser) Parse() (root *ast.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			root, err = nil, b.err
		}
	}()

	tok := p.current
	var stmts []*ast.Node
	for !p.check(token.EOF) {
		stmts = append(stmts, p.parseTopLevel())
	}
	return ast.NewBlock(tok, stmts), nil
}

// Parser helpers
func (p *Parser) advance() {
	if p.pos < len(p.tokens) {
		p.previous = p.current
		p.pos++
		if p.pos < len(p.tokens) {
			p.current = p.tokens[p.pos]
		}
	}
}

func (p *Parser) check(tokType token.Type) bool {
	return p.current.Type == tokType
}

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) fail(tok token.Token, format string, args ...interface{}) {
	panic(bailout{util.NewCompileError(tok, format, args...)})
}

func (p *Parser) expect(tokType token.Type, context string) token.Token {
	if !p.check(tokType) {
		p.fail(p.current, "expected '%s' %s, found '%s'", tokType, context, describe(p.current))
	}
	p.advance()
	return p.previous
}

func describe(tok token.Token) string {
	if tok.Value != "" {
		return tok.Value
	}
	return tok.Type.String()
}

// Statement Parsing

func (p *Parser) parseTopLevel() *ast.Node {
	switch p.current.Type {
	case token.Export:
		exportTok := p.current
		p.advance()
		if !p.check(token.Function) {
			p.fail(p.current, "expected 'function' after 'export'")
		}
		return p.parseFuncDecl(exportTok, true)
	case token.Function:
		return p.parseFuncDecl(p.current, false)
	case token.External:
		return p.parseExternDecl()
	}
	return p.parseStmt()
}

func (p *Parser) parseStmt() *ast.Node {
	tok := p.current
	switch {
	case p.match(token.Set):
		target := p.parseIdent("after 'set'")
		p.expect(token.To, "after the declared name")
		value := p.parseValue()
		p.expect(token.Dot, "to end the statement")
		return ast.NewDeclare(tok, target, value, false)

	case p.match(token.Change):
		target := p.parseMutationTarget()
		p.expect(token.To, "after the changed name")
		value := p.parseValue()
		p.expect(token.Dot, "to end the statement")
		return ast.NewDeclare(tok, target, value, true)

	case p.match(token.If):
		cond := p.parseExpr()
		p.expect(token.Comma, "after the condition")
		return ast.NewIf(tok, cond, p.parseBody())

	case p.match(token.Loop):
		p.expect(token.Comma, "after 'loop'")
		return ast.NewLoop(tok, p.parseBody())

	case p.match(token.Break):
		p.expect(token.Dot, "after 'break'")
		return ast.NewBreak(tok)

	case p.match(token.Return):
		expr := p.parseExpr()
		p.expect(token.Dot, "to end the statement")
		return ast.NewReturn(tok, expr)

	case p.check(token.Function), p.check(token.Export), p.check(token.External):
		p.fail(tok, "functions may only be declared at the top level")
	}
	p.fail(tok, "expected a statement, found '%s'", describe(tok))
	return nil
}

// parseBody reads statements up to and including the closing '!'.
func (p *Parser) parseBody() []*ast.Node {
	var stmts []*ast.Node
	for !p.check(token.Bang) {
		if p.check(token.EOF) {
			p.fail(p.current, "unterminated block, expected '!'")
		}
		stmts = append(stmts, p.parseStmt())
	}
	p.advance()
	return stmts
}

func (p *Parser) parseIdent(context string) *ast.Node {
	tok := p.expect(token.Ident, context)
	return ast.NewIdent(tok, tok.Value)
}

func (p *Parser) parseMutationTarget() *ast.Node {
	tok := p.current
	if p.match(token.At) {
		name := p.expect(token.Ident, "after '@'")
		return ast.NewDeref(tok, name.Value)
	}
	ident := p.expect(token.Ident, "after 'change'")
	if p.match(token.LBracket) {
		index := p.parseExpr()
		p.expect(token.RBracket, "after the index")
		return ast.NewSubscript(ident, ident.Value, index)
	}
	return ast.NewIdent(ident, ident.Value)
}

// parseValue reads an expression or an array literal. Array elements are
// values too so that a nested literal reaches the analyzer intact.
func (p *Parser) parseValue() *ast.Node {
	tok := p.current
	if !p.match(token.LBracket) {
		return p.parseExpr()
	}
	var elems []*ast.Node
	if !p.check(token.RBracket) {
		for {
			elems = append(elems, p.parseValue())
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.RBracket, "to close the array literal")
	return ast.NewArrayLit(tok, elems)
}

func (p *Parser) parseParams() []ast.Param {
	p.expect(token.LParen, "after the function name")
	var params []ast.Param
	if p.match(token.RParen) {
		return params
	}
	for {
		var param ast.Param
		if p.match(token.LBracket) {
			length := p.expect(token.Number, "as the array parameter length")
			p.expect(token.RBracket, "after the array parameter length")
			param.IsArray, param.LenText = true, length.Value
		}
		name := p.expect(token.Ident, "as a parameter name")
		param.Name, param.Tok = name.Value, name
		params = append(params, param)
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.RParen, "after the parameters")
	return params
}

func (p *Parser) parseFuncDecl(tok token.Token, isExport bool) *ast.Node {
	p.expect(token.Function, "")
	name := p.expect(token.Ident, "after 'function'")
	params := p.parseParams()
	p.expect(token.Comma, "before the function body")
	body := p.parseBody()
	if !isExport {
		tok = name
	}
	return ast.NewFuncDecl(tok, name.Value, params, body, isExport)
}

func (p *Parser) parseExternDecl() *ast.Node {
	p.expect(token.External, "")
	p.expect(token.Function, "after 'external'")
	name := p.expect(token.Ident, "after 'function'")
	params := p.parseParams()
	p.expect(token.Dot, "after an external declaration")
	return ast.NewExternDecl(name, name.Value, params)
}

// Expression Parsing

func getBinaryOpPrecedence(op token.Type) int {
	switch op {
	case token.Star:
		return 20
	case token.Plus, token.Minus:
		return 10
	case token.Lt, token.Gt, token.Lte, token.Gte, token.Eq, token.Neq:
		return 5
	case token.And:
		return 3
	case token.Or:
		return 2
	default:
		return -1
	}
}

func (p *Parser) parseExpr() *ast.Node { return p.parseBinaryExpr(0) }

func (p *Parser) parseBinaryExpr(minPrec int) *ast.Node {
	left := p.parsePrimaryExpr()
	for {
		op := p.current.Type
		prec := getBinaryOpPrecedence(op)
		if prec < 0 || prec < minPrec {
			break
		}
		opTok := p.current
		p.advance()
		right := p.parseBinaryExpr(prec + 1)
		left = ast.NewBinaryOp(opTok, op, left, right)
	}
	return left
}

func (p *Parser) parsePrimaryExpr() *ast.Node {
	tok := p.current
	switch {
	case p.match(token.Number):
		return ast.NewNumber(tok, tok.Value)
	case p.match(token.At):
		name := p.expect(token.Ident, "after '@'")
		return ast.NewDeref(tok, name.Value)
	case p.match(token.LParen):
		expr := p.parseExpr()
		p.expect(token.RParen, "after expression")
		return expr
	case p.match(token.Ident):
		if p.match(token.LParen) {
			var args []*ast.Node
			if !p.check(token.RParen) {
				for {
					args = append(args, p.parseExpr())
					if !p.match(token.Comma) {
						break
					}
				}
			}
			p.expect(token.RParen, "after the call arguments")
			return ast.NewFuncCall(tok, tok.Value, args)
		}
		if p.match(token.LBracket) {
			index := p.parseExpr()
			p.expect(token.RBracket, "after the index")
			return ast.NewSubscript(tok, tok.Value, index)
		}
		return ast.NewIdent(tok, tok.Value)
	case p.check(token.LBracket):
		p.fail(tok, "array literals are only allowed as the whole value of 'set' or 'change'")
	}
	p.fail(tok, "expected an expression, found '%s'", describe(tok))
	return nil
}
