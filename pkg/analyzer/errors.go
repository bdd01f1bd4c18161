package analyzer

import (
	"fmt"

	"github.com/xplshn/ezc/pkg/token"
)

// ErrorKind discriminates the ways a program can be rejected.
type ErrorKind int

const (
	DoubleSet ErrorKind = iota
	VarNotExist
	NumberTooBig
	SetInLoop
	BreakWithoutLoop
	ReturnOutSideOfFunc
	FuncAlreadyExists
	SameArgForFunction
	FuncCalledWithWrongArgsType
	FuncCalledButNoExist
	CannotChangeSomethingToArray
	TooManyParams
	MalformedArrayElement
	TypeMismatch
)

var kindNames = [...]string{
	DoubleSet:                    "DoubleSet",
	VarNotExist:                  "VarNotExist",
	NumberTooBig:                 "NumberTooBig",
	SetInLoop:                    "SetInLoop",
	BreakWithoutLoop:             "BreakWithoutLoop",
	ReturnOutSideOfFunc:          "ReturnOutSideOfFunc",
	FuncAlreadyExists:            "FuncAlreadyExists",
	SameArgForFunction:           "SameArgForFunction",
	FuncCalledWithWrongArgsType:  "FuncCalledWithWrongArgsType",
	FuncCalledButNoExist:         "FuncCalledButNoExist",
	CannotChangeSomethingToArray: "CannotChangeSomethingToArray",
	TooManyParams:                "TooManyParams",
	MalformedArrayElement:        "MalformedArrayElement",
	TypeMismatch:                 "TypeMismatch",
}

func (k ErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is the single failure an analysis run reports. Name is the
// variable or function involved; Detail is optional extra context.
type Error struct {
	Kind   ErrorKind
	Name   string
	Tok    token.Token
	Detail string
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case DoubleSet:
		msg = fmt.Sprintf("'%s' is already set", e.Name)
	case VarNotExist:
		msg = fmt.Sprintf("'%s' does not exist in this scope", e.Name)
	case NumberTooBig:
		msg = fmt.Sprintf("number '%s' does not fit in 64 bits", e.Name)
	case SetInLoop:
		msg = fmt.Sprintf("cannot set '%s' inside a loop", e.Name)
	case BreakWithoutLoop:
		msg = "'break' outside of a loop"
	case ReturnOutSideOfFunc:
		msg = "'return' outside of a function"
	case FuncAlreadyExists:
		msg = fmt.Sprintf("function '%s' already exists", e.Name)
	case SameArgForFunction:
		msg = fmt.Sprintf("parameter '%s' is repeated", e.Name)
	case FuncCalledWithWrongArgsType:
		msg = fmt.Sprintf("function '%s' called with the wrong arguments", e.Name)
	case FuncCalledButNoExist:
		msg = fmt.Sprintf("function '%s' does not exist", e.Name)
	case CannotChangeSomethingToArray:
		msg = fmt.Sprintf("cannot change the shape of '%s'", e.Name)
	case TooManyParams:
		msg = fmt.Sprintf("function '%s' has more than %d parameters", e.Name, MaxParams)
	case MalformedArrayElement:
		msg = fmt.Sprintf("array '%s' has an element that is itself an array", e.Name)
	case TypeMismatch:
		msg = fmt.Sprintf("'%s' is not an array", e.Name)
	default:
		msg = e.Kind.String()
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func newError(kind ErrorKind, name string, tok token.Token) *Error {
	return &Error{Kind: kind, Name: name, Tok: tok}
}
