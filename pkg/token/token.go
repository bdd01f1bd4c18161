package token

type Type int

const (
	EOF Type = iota
	Ident
	Number
	Set
	Change
	To
	If
	Loop
	Break
	Return
	Function
	Export
	External
	And
	Or
	LParen
	RParen
	LBracket
	RBracket
	Comma
	Dot
	Bang
	At
	Plus
	Minus
	Star
	Eq
	Neq
	Lt
	Gt
	Lte
	Gte
)

var KeywordMap = map[string]Type{
	"set":      Set,
	"change":   Change,
	"to":       To,
	"if":       If,
	"loop":     Loop,
	"break":    Break,
	"return":   Return,
	"function": Function,
	"export":   Export,
	"external": External,
	"and":      And,
	"or":       Or,
}

// CapitalKeywords are the alternative spellings accepted at the start of a sentence.
var CapitalKeywords = map[string]Type{
	"Set":    Set,
	"Change": Change,
}

var punctStrings = map[Type]string{
	EOF:      "end of file",
	Ident:    "identifier",
	Number:   "number",
	LParen:   "(",
	RParen:   ")",
	LBracket: "[",
	RBracket: "]",
	Comma:    ",",
	Dot:      ".",
	Bang:     "!",
	At:       "@",
	Plus:     "+",
	Minus:    "-",
	Star:     "*",
	Eq:       "=",
	Neq:      "!=",
	Lt:       "<",
	Gt:       ">",
	Lte:      "<=",
	Gte:      ">=",
}

// Reverse mapping from Type to its source spelling
var TypeStrings = make(map[Type]string)

func init() {
	for str, typ := range KeywordMap {
		TypeStrings[typ] = str
	}
	for typ, str := range punctStrings {
		TypeStrings[typ] = str
	}
}

func (t Type) String() string {
	if s, ok := TypeStrings[t]; ok {
		return s
	}
	return "unknown"
}

type Token struct {
	Type      Type
	Value     string
	FileIndex int
	Line      int
	Column    int
	Len       int
}
