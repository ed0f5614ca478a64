// Package astfile is the on-disk form of a type-checked COOL program. The
// front end writes it after semantic analysis and the code generator reads
// it back, so every expression record carries its static type.
package astfile

import "fmt"

// Kind identifies what a Node record describes.
type Kind uint8

const (
	KindNone Kind = iota // absent optional child
	KindProgram
	KindClass
	KindAttribute
	KindMethod
	KindFormal
	KindInt
	KindString
	KindBool
	KindIdent
	KindAssign
	KindBinary
	KindUnary
	KindIf
	KindWhile
	KindBlock
	KindLet
	KindBinding
	KindCase
	KindBranch
	KindNew
	KindIsVoid
	KindDispatch
)

var kindNames = [...]string{
	KindNone:      "none",
	KindProgram:   "program",
	KindClass:     "class",
	KindAttribute: "attribute",
	KindMethod:    "method",
	KindFormal:    "formal",
	KindInt:       "int",
	KindString:    "string",
	KindBool:      "bool",
	KindIdent:     "ident",
	KindAssign:    "assign",
	KindBinary:    "binary",
	KindUnary:     "unary",
	KindIf:        "if",
	KindWhile:     "while",
	KindBlock:     "block",
	KindLet:       "let",
	KindBinding:   "binding",
	KindCase:      "case",
	KindBranch:    "branch",
	KindNew:       "new",
	KindIsVoid:    "isvoid",
	KindDispatch:  "dispatch",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Node is one record of the wire tree. Which fields are meaningful depends
// on Kind:
//
//	class      Name, Parent (empty for Object), Str (file name), Kids = features
//	attribute  Name, Type (declared), Kids = [init] or []
//	method     Name, Type (return), Kids = formals then body (none if native)
//	formal     Name, Type
//	binding    Name, Type (declared), Kids = [init] or []
//	branch     Name, Type (pattern), Kids = [body]
//	dispatch   Name (method), Parent (static class or empty), Kids = [receiver or none, args...]
//	new        Name (class)
//
// Expression records hold their static type in Type.
type Node struct {
	Kind   Kind    `cbor:"1,keyasint"`
	Type   string  `cbor:"2,keyasint,omitempty"`
	Name   string  `cbor:"3,keyasint,omitempty"`
	Str    string  `cbor:"4,keyasint,omitempty"`
	Int    int64   `cbor:"5,keyasint,omitempty"`
	Bool   bool    `cbor:"6,keyasint,omitempty"`
	Op     string  `cbor:"7,keyasint,omitempty"`
	Parent string  `cbor:"8,keyasint,omitempty"`
	Line   int     `cbor:"9,keyasint,omitempty"`
	Kids   []*Node `cbor:"10,keyasint,omitempty"`
}

// Version is written into the file header and checked on read.
const Version = 1

// File is the top-level record.
type File struct {
	Version int   `cbor:"1,keyasint"`
	Program *Node `cbor:"2,keyasint"`
}
