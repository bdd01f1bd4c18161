package lexer

import (
	"unicode"

	"github.com/xplshn/ezc/pkg/config"
	"github.com/xplshn/ezc/pkg/token"
	"github.com/xplshn/ezc/pkg/util"
)

type Lexer struct {
	source    []rune
	fileIndex int
	pos       int
	line      int
	column    int
	cfg       *config.Config
}

func NewLexer(source []rune, fileIndex int, cfg *config.Config) *Lexer {
	return &Lexer{
		source: source, fileIndex: fileIndex, line: 1, column: 1, cfg: cfg,
	}
}

// Tokenize scans the whole input. The returned slice always ends with EOF.
func (l *Lexer) Tokenize() ([]token.Token, error) {
	var tokens []token.Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == token.EOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) Next() (token.Token, error) {
	l.skipWhitespaceAndComments()
	startPos, startCol, startLine := l.pos, l.column, l.line

	if l.isAtEnd() {
		return l.makeToken(token.EOF, "", startPos, startCol, startLine), nil
	}

	ch := l.peek()
	if unicode.IsLetter(ch) || ch == '_' {
		return l.identifierOrKeyword(startPos, startCol, startLine), nil
	}
	if unicode.IsDigit(ch) {
		for unicode.IsDigit(l.peek()) {
			l.advance()
		}
		return l.makeToken(token.Number, string(l.source[startPos:l.pos]), startPos, startCol, startLine), nil
	}

	l.advance()
	switch ch {
	case '(':
		return l.makeToken(token.LParen, "", startPos, startCol, startLine), nil
	case ')':
		return l.makeToken(token.RParen, "", startPos, startCol, startLine), nil
	case '[':
		return l.makeToken(token.LBracket, "", startPos, startCol, startLine), nil
	case ']':
		return l.makeToken(token.RBracket, "", startPos, startCol, startLine), nil
	case ',':
		return l.makeToken(token.Comma, "", startPos, startCol, startLine), nil
	case '.':
		return l.makeToken(token.Dot, "", startPos, startCol, startLine), nil
	case '+':
		return l.makeToken(token.Plus, "", startPos, startCol, startLine), nil
	case '-':
		return l.makeToken(token.Minus, "", startPos, startCol, startLine), nil
	case '*':
		return l.makeToken(token.Star, "", startPos, startCol, startLine), nil
	case '=':
		return l.makeToken(token.Eq, "", startPos, startCol, startLine), nil
	case '!':
		return l.matchThen('=', token.Neq, token.Bang, startPos, startCol, startLine), nil
	case '<':
		return l.matchThen('=', token.Lte, token.Lt, startPos, startCol, startLine), nil
	case '>':
		return l.matchThen('=', token.Gte, token.Gt, startPos, startCol, startLine), nil
	case '@':
		tok := l.makeToken(token.At, "", startPos, startCol, startLine)
		if !l.cfg.IsFeatureEnabled(config.FeatDeref) {
			return tok, util.NewCompileError(tok, "pointer dereference is disabled (enable with -Fderef)")
		}
		return tok, nil
	}

	tok := l.makeToken(token.EOF, "", startPos, startCol, startLine)
	return tok, util.NewCompileError(tok, "unexpected character: '%c'", ch)
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() || l.source[l.pos] != expected {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(tokType token.Type, value string, startPos, startCol, startLine int) token.Token {
	return token.Token{
		Type: tokType, Value: value, FileIndex: l.fileIndex,
		Line: startLine, Column: startCol, Len: l.pos - startPos,
	}
}

func (l *Lexer) matchThen(expected rune, thenType, elseType token.Type, sPos, sCol, sLine int) token.Token {
	if l.match(expected) {
		return l.makeToken(thenType, "", sPos, sCol, sLine)
	}
	return l.makeToken(elseType, "", sPos, sCol, sLine)
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch ch := l.peek(); {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			l.advance()
		case ch == '#' && l.cfg.IsFeatureEnabled(config.FeatComments):
			for !l.isAtEnd() && l.peek() != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *Lexer) identifierOrKeyword(startPos, startCol, startLine int) token.Token {
	for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	value := string(l.source[startPos:l.pos])
	tok := l.makeToken(token.Ident, value, startPos, startCol, startLine)

	if tokType, isKeyword := token.KeywordMap[value]; isKeyword {
		tok.Type, tok.Value = tokType, ""
	} else if tokType, isCapital := token.CapitalKeywords[value]; isCapital && l.cfg.IsFeatureEnabled(config.FeatCapitalKeywords) {
		tok.Type, tok.Value = tokType, ""
	}
	return tok
}
