package ast

import (
	"fmt"
	"strings"
)

// Printer renders an indented tree dump of a program, one node per line.
type Printer struct {
	// ShowTypes appends each expression's static type in brackets.
	ShowTypes bool

	sb    strings.Builder
	depth int
}

// NewPrinter returns a printer that shows static types.
func NewPrinter() *Printer {
	return &Printer{ShowTypes: true}
}

func (p *Printer) PrintProgram(program *Program) string {
	p.reset()
	p.line("Program")
	p.nested(func() {
		for _, class := range program.Classes {
			p.class(class)
		}
	})
	return p.sb.String()
}

func (p *Printer) PrintExpression(expr Expression) string {
	p.reset()
	p.expr(expr)
	return p.sb.String()
}

func (p *Printer) reset() {
	p.sb.Reset()
	p.depth = 0
}

func (p *Printer) line(format string, args ...interface{}) {
	p.sb.WriteString(strings.Repeat("  ", p.depth))
	fmt.Fprintf(&p.sb, format, args...)
	p.sb.WriteByte('\n')
}

func (p *Printer) nested(body func()) {
	p.depth++
	body()
	p.depth--
}

// section writes a heading line with the given expressions beneath it.
func (p *Printer) section(heading string, exprs ...Expression) {
	p.line("%s:", heading)
	p.nested(func() {
		for _, e := range exprs {
			p.expr(e)
		}
	})
}

func (p *Printer) class(class *Class) {
	if class.Parent != nil {
		p.line("Class: %s inherits %s", class.Name.Value, class.Parent.Value)
	} else {
		p.line("Class: %s", class.Name.Value)
	}
	p.nested(func() {
		for _, feature := range class.Features {
			switch f := feature.(type) {
			case *Method:
				p.method(f)
			case *Attribute:
				p.line("Attribute: %s : %s", f.Name.Value, f.TypeDecl.Value)
				if f.Init != nil {
					p.nested(func() { p.section("Init", f.Init) })
				}
			default:
				p.line("Unknown feature type")
			}
		}
	})
}

func (p *Printer) method(m *Method) {
	p.line("Method: %s", m.Name.Value)
	p.nested(func() {
		p.line("Formals:")
		p.nested(func() {
			for _, formal := range m.Formals {
				p.line("%s: %s", formal.Name.Value, formal.TypeDecl.Value)
			}
		})
		p.line("Return Type: %s", m.TypeDecl.Value)
		p.section("Body", m.Body)
	})
}

func (p *Printer) typeTag(expr Expression) string {
	if t := expr.ExprType(); p.ShowTypes && t != "" {
		return " [" + t + "]"
	}
	return ""
}

func (p *Printer) expr(expr Expression) {
	if expr == nil {
		p.line("<nil>")
		return
	}

	tag := p.typeTag(expr)
	switch e := expr.(type) {
	case *IntegerLiteral:
		p.line("Int: %d%s", e.Value, tag)
	case *StringLiteral:
		p.line("String: %q%s", e.Value, tag)
	case *BooleanLiteral:
		p.line("Bool: %v%s", e.Value, tag)
	case *ObjectIdentifier:
		p.line("Identifier: %s%s", e.Value, tag)
	case *NewExpression:
		p.line("New: %s%s", e.Type.Value, tag)
	case *UnaryExpression:
		p.line("Unary: %s%s", e.Operator, tag)
		p.nested(func() { p.expr(e.Right) })
	case *BinaryExpression:
		p.line("Binary: %s%s", e.Operator, tag)
		p.nested(func() {
			p.expr(e.Left)
			p.expr(e.Right)
		})
	case *IsVoidExpression:
		p.line("IsVoid%s", tag)
		p.nested(func() { p.expr(e.Expression) })
	case *Assignment:
		p.line("Assign: %s%s", e.Name.Value, tag)
		p.nested(func() { p.expr(e.Value) })
	case *IfExpression:
		p.line("If%s", tag)
		p.nested(func() {
			p.section("Condition", e.Condition)
			p.section("Then", e.Consequence)
			p.section("Else", e.Alternative)
		})
	case *WhileExpression:
		p.line("While%s", tag)
		p.nested(func() {
			p.section("Condition", e.Condition)
			p.section("Body", e.Body)
		})
	case *BlockExpression:
		p.line("Block%s", tag)
		p.nested(func() {
			for _, sub := range e.Expressions {
				p.expr(sub)
			}
		})
	case *LetExpression:
		p.line("Let%s", tag)
		p.nested(func() {
			for _, b := range e.Bindings {
				p.line("Binding: %s: %s", b.Identifier.Value, b.Type.Value)
				if b.Init != nil {
					p.nested(func() { p.section("Init", b.Init) })
				}
			}
			p.section("In", e.In)
		})
	case *CaseExpression:
		p.line("Case%s", tag)
		p.nested(func() {
			p.section("Expression", e.Expr)
			p.line("Branches:")
			p.nested(func() {
				for _, b := range e.Branches {
					p.line("Branch %s: %s =>", b.Pattern.Value, b.Type.Value)
					p.nested(func() { p.expr(b.Expression) })
				}
			})
		})
	case *DispatchExpression:
		p.line("Dispatch%s:", tag)
		p.nested(func() {
			if e.Object != nil {
				p.section("Object", e.Object)
			}
			if e.StaticType != nil {
				p.line("Static Type: %s", e.StaticType.Value)
			}
			p.line("Method: %s", e.Method.Value)
			if len(e.Arguments) > 0 {
				p.section("Arguments", e.Arguments...)
			}
		})
	default:
		p.line("Unknown expression type: %T", expr)
	}
}
