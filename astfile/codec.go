package astfile

import (
	"fmt"
	"os"
	"strings"

	"cool-codegen/ast"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("coolc.astfile")

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("astfile: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Encode serializes a typed program.
func Encode(program *ast.Program) ([]byte, error) {
	if program == nil {
		return nil, fmt.Errorf("astfile: nil program")
	}
	f := File{Version: Version, Program: encodeProgram(program)}
	return encMode.Marshal(&f)
}

// Decode rebuilds a typed program from its encoded form.
func Decode(data []byte) (*ast.Program, error) {
	var f File
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("astfile: unmarshal: %w", err)
	}
	if f.Version != Version {
		return nil, fmt.Errorf("astfile: unsupported version %d", f.Version)
	}
	if f.Program == nil {
		return nil, fmt.Errorf("astfile: file holds no program")
	}
	d := &decoder{}
	program, err := d.program(f.Program)
	if err != nil {
		return nil, err
	}
	log.Debugf("decoded %d classes", len(program.Classes))
	return program, nil
}

// ReadFile decodes the program stored at path.
func ReadFile(path string) (*ast.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	log.Infof("reading typed AST from %s (%d bytes)", path, len(data))
	program, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return program, nil
}

// WriteFile encodes program to path.
func WriteFile(path string, program *ast.Program) error {
	data, err := Encode(program)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func encodeProgram(p *ast.Program) *Node {
	n := &Node{Kind: KindProgram}
	for _, c := range p.Classes {
		n.Kids = append(n.Kids, encodeClass(c))
	}
	return n
}

func encodeClass(c *ast.Class) *Node {
	n := &Node{Kind: KindClass, Name: c.Name.Value, Str: c.Filename, Line: c.Token.Line}
	if c.Parent != nil {
		n.Parent = c.Parent.Value
	}
	for _, f := range c.Features {
		switch f := f.(type) {
		case *ast.Attribute:
			attr := &Node{Kind: KindAttribute, Name: f.Name.Value, Type: f.TypeDecl.Value, Line: f.Token.Line}
			if f.Init != nil {
				attr.Kids = []*Node{encodeExpr(f.Init)}
			}
			n.Kids = append(n.Kids, attr)
		case *ast.Method:
			m := &Node{Kind: KindMethod, Name: f.Name.Value, Type: f.TypeDecl.Value, Line: f.Token.Line}
			for _, formal := range f.Formals {
				m.Kids = append(m.Kids, &Node{Kind: KindFormal, Name: formal.Name.Value, Type: formal.TypeDecl.Value})
			}
			m.Kids = append(m.Kids, encodeExpr(f.Body))
			n.Kids = append(n.Kids, m)
		}
	}
	return n
}

func encodeExpr(e ast.Expression) *Node {
	if e == nil {
		return &Node{Kind: KindNone}
	}
	n := &Node{Type: e.ExprType()}
	switch e := e.(type) {
	case *ast.IntegerLiteral:
		n.Kind, n.Int, n.Line = KindInt, e.Value, e.Token.Line
	case *ast.StringLiteral:
		n.Kind, n.Str, n.Line = KindString, e.Value, e.Token.Line
	case *ast.BooleanLiteral:
		n.Kind, n.Bool, n.Line = KindBool, e.Value, e.Token.Line
	case *ast.ObjectIdentifier:
		n.Kind, n.Name, n.Line = KindIdent, e.Value, e.Token.Line
	case *ast.Assignment:
		n.Kind, n.Name, n.Line = KindAssign, e.Name.Value, e.Token.Line
		n.Kids = []*Node{encodeExpr(e.Value)}
	case *ast.BinaryExpression:
		n.Kind, n.Op, n.Line = KindBinary, e.Operator, e.Token.Line
		n.Kids = []*Node{encodeExpr(e.Left), encodeExpr(e.Right)}
	case *ast.UnaryExpression:
		n.Kind, n.Op, n.Line = KindUnary, e.Operator, e.Token.Line
		n.Kids = []*Node{encodeExpr(e.Right)}
	case *ast.IfExpression:
		n.Kind, n.Line = KindIf, e.Token.Line
		n.Kids = []*Node{encodeExpr(e.Condition), encodeExpr(e.Consequence), encodeExpr(e.Alternative)}
	case *ast.WhileExpression:
		n.Kind, n.Line = KindWhile, e.Token.Line
		n.Kids = []*Node{encodeExpr(e.Condition), encodeExpr(e.Body)}
	case *ast.BlockExpression:
		n.Kind, n.Line = KindBlock, e.Token.Line
		for _, sub := range e.Expressions {
			n.Kids = append(n.Kids, encodeExpr(sub))
		}
	case *ast.LetExpression:
		n.Kind, n.Line = KindLet, e.Token.Line
		for _, b := range e.Bindings {
			binding := &Node{Kind: KindBinding, Name: b.Identifier.Value, Type: b.Type.Value}
			if b.Init != nil {
				binding.Kids = []*Node{encodeExpr(b.Init)}
			}
			n.Kids = append(n.Kids, binding)
		}
		n.Kids = append(n.Kids, encodeExpr(e.In))
	case *ast.CaseExpression:
		n.Kind, n.Line = KindCase, e.Token.Line
		n.Kids = []*Node{encodeExpr(e.Expr)}
		for _, b := range e.Branches {
			n.Kids = append(n.Kids, &Node{
				Kind: KindBranch,
				Name: b.Pattern.Value,
				Type: b.Type.Value,
				Kids: []*Node{encodeExpr(b.Expression)},
			})
		}
	case *ast.NewExpression:
		n.Kind, n.Name, n.Line = KindNew, e.Type.Value, e.Token.Line
	case *ast.IsVoidExpression:
		n.Kind, n.Line = KindIsVoid, e.Token.Line
		n.Kids = []*Node{encodeExpr(e.Expression)}
	case *ast.DispatchExpression:
		n.Kind, n.Name, n.Line = KindDispatch, e.Method.Value, e.Token.Line
		if e.StaticType != nil {
			n.Parent = e.StaticType.Value
		}
		n.Kids = []*Node{encodeExpr(e.Object)}
		for _, arg := range e.Arguments {
			n.Kids = append(n.Kids, encodeExpr(arg))
		}
	}
	return n
}

// decoder tracks the position in the tree for error messages.
type decoder struct {
	path []string
}

func (d *decoder) push(format string, args ...interface{}) {
	d.path = append(d.path, fmt.Sprintf(format, args...))
}

func (d *decoder) pop() {
	d.path = d.path[:len(d.path)-1]
}

func (d *decoder) errorf(format string, args ...interface{}) error {
	where := strings.Join(d.path, "/")
	if where == "" {
		where = "program"
	}
	return fmt.Errorf("astfile: %s: %s", where, fmt.Sprintf(format, args...))
}

func (d *decoder) expect(n *Node, kind Kind) error {
	if n == nil {
		return d.errorf("missing %s record", kind)
	}
	if n.Kind != kind {
		return d.errorf("found %s record, want %s", n.Kind, kind)
	}
	return nil
}

func (d *decoder) need(n *Node, field, value string) error {
	if value == "" {
		return d.errorf("%s record has no %s", n.Kind, field)
	}
	return nil
}

func (d *decoder) kids(n *Node, count int) error {
	if len(n.Kids) != count {
		return d.errorf("%s record has %d children, want %d", n.Kind, len(n.Kids), count)
	}
	return nil
}

func tok(n *Node, literal string) ast.Token {
	return ast.Token{Literal: literal, Line: n.Line}
}

func typeID(n *Node, name string) *ast.TypeIdentifier {
	return &ast.TypeIdentifier{Token: tok(n, name), Value: name}
}

func objectID(n *Node, name string) *ast.ObjectIdentifier {
	return &ast.ObjectIdentifier{Token: tok(n, name), Value: name}
}

func (d *decoder) program(n *Node) (*ast.Program, error) {
	if err := d.expect(n, KindProgram); err != nil {
		return nil, err
	}
	p := &ast.Program{}
	for i, kid := range n.Kids {
		d.push("class[%d]", i)
		c, err := d.class(kid)
		if err != nil {
			return nil, err
		}
		d.pop()
		p.Classes = append(p.Classes, c)
	}
	return p, nil
}

func (d *decoder) class(n *Node) (*ast.Class, error) {
	if err := d.expect(n, KindClass); err != nil {
		return nil, err
	}
	if err := d.need(n, "name", n.Name); err != nil {
		return nil, err
	}
	c := &ast.Class{Token: tok(n, "class"), Name: typeID(n, n.Name), Filename: n.Str}
	if n.Parent != "" {
		c.Parent = typeID(n, n.Parent)
	}
	for i, kid := range n.Kids {
		if kid == nil {
			return nil, d.errorf("feature %d is missing", i)
		}
		d.push("%s %s", kid.Kind, kid.Name)
		var f ast.Feature
		var err error
		switch kid.Kind {
		case KindAttribute:
			f, err = d.attribute(kid)
		case KindMethod:
			f, err = d.method(kid)
		default:
			err = d.errorf("%s record is not a feature", kid.Kind)
		}
		if err != nil {
			return nil, err
		}
		d.pop()
		c.Features = append(c.Features, f)
	}
	return c, nil
}

func (d *decoder) attribute(n *Node) (*ast.Attribute, error) {
	if err := d.need(n, "name", n.Name); err != nil {
		return nil, err
	}
	if err := d.need(n, "type", n.Type); err != nil {
		return nil, err
	}
	a := &ast.Attribute{Token: tok(n, n.Name), Name: objectID(n, n.Name), TypeDecl: typeID(n, n.Type)}
	init, err := d.optional(n)
	if err != nil {
		return nil, err
	}
	a.Init = init
	return a, nil
}

func (d *decoder) method(n *Node) (*ast.Method, error) {
	if err := d.need(n, "name", n.Name); err != nil {
		return nil, err
	}
	if err := d.need(n, "return type", n.Type); err != nil {
		return nil, err
	}
	if len(n.Kids) == 0 {
		return nil, d.errorf("method record has no body slot")
	}
	m := &ast.Method{Token: tok(n, n.Name), Name: objectID(n, n.Name), TypeDecl: typeID(n, n.Type)}
	last := len(n.Kids) - 1
	for i, kid := range n.Kids[:last] {
		d.push("formal[%d]", i)
		if err := d.expect(kid, KindFormal); err != nil {
			return nil, err
		}
		if err := d.need(kid, "name", kid.Name); err != nil {
			return nil, err
		}
		if err := d.need(kid, "type", kid.Type); err != nil {
			return nil, err
		}
		d.pop()
		m.Formals = append(m.Formals, &ast.Formal{
			Token:    tok(kid, kid.Name),
			Name:     objectID(kid, kid.Name),
			TypeDecl: typeID(kid, kid.Type),
		})
	}
	d.push("body")
	body, err := d.maybeExpr(n.Kids[last])
	if err != nil {
		return nil, err
	}
	d.pop()
	m.Body = body
	return m, nil
}

// optional decodes the zero-or-one child of an attribute or let binding.
func (d *decoder) optional(n *Node) (ast.Expression, error) {
	switch len(n.Kids) {
	case 0:
		return nil, nil
	case 1:
		d.push("init")
		e, err := d.maybeExpr(n.Kids[0])
		if err != nil {
			return nil, err
		}
		d.pop()
		return e, nil
	default:
		return nil, d.errorf("%s record has %d initializers", n.Kind, len(n.Kids))
	}
}

// maybeExpr accepts a none record as an absent expression.
func (d *decoder) maybeExpr(n *Node) (ast.Expression, error) {
	if n != nil && n.Kind == KindNone {
		return nil, nil
	}
	return d.expr(n)
}

// child decodes n.Kids[i], which must be present.
func (d *decoder) child(n *Node, i int, label string) (ast.Expression, error) {
	d.push(label)
	e, err := d.expr(n.Kids[i])
	if err != nil {
		return nil, err
	}
	d.pop()
	return e, nil
}

func (d *decoder) expr(n *Node) (ast.Expression, error) {
	if n == nil || n.Kind == KindNone {
		return nil, d.errorf("expression is missing")
	}
	if n.Type == "" {
		return nil, d.errorf("%s expression has no static type", n.Kind)
	}
	ann := ast.Annotation{Static: n.Type}

	switch n.Kind {
	case KindInt:
		return &ast.IntegerLiteral{Annotation: ann, Token: tok(n, fmt.Sprint(n.Int)), Value: n.Int}, nil

	case KindString:
		return &ast.StringLiteral{Annotation: ann, Token: tok(n, n.Str), Value: n.Str}, nil

	case KindBool:
		return &ast.BooleanLiteral{Annotation: ann, Token: tok(n, fmt.Sprint(n.Bool)), Value: n.Bool}, nil

	case KindIdent:
		if err := d.need(n, "name", n.Name); err != nil {
			return nil, err
		}
		id := objectID(n, n.Name)
		id.Annotation = ann
		return id, nil

	case KindAssign:
		if err := d.need(n, "name", n.Name); err != nil {
			return nil, err
		}
		if err := d.kids(n, 1); err != nil {
			return nil, err
		}
		value, err := d.child(n, 0, "value")
		if err != nil {
			return nil, err
		}
		return &ast.Assignment{Annotation: ann, Token: tok(n, "<-"), Name: objectID(n, n.Name), Value: value}, nil

	case KindBinary:
		switch n.Op {
		case "+", "-", "*", "/", "<", "<=", "=":
		default:
			return nil, d.errorf("unknown binary operator %q", n.Op)
		}
		if err := d.kids(n, 2); err != nil {
			return nil, err
		}
		left, err := d.child(n, 0, "left")
		if err != nil {
			return nil, err
		}
		right, err := d.child(n, 1, "right")
		if err != nil {
			return nil, err
		}
		return &ast.BinaryExpression{Annotation: ann, Token: tok(n, n.Op), Left: left, Operator: n.Op, Right: right}, nil

	case KindUnary:
		switch n.Op {
		case "~", "not":
		default:
			return nil, d.errorf("unknown unary operator %q", n.Op)
		}
		if err := d.kids(n, 1); err != nil {
			return nil, err
		}
		operand, err := d.child(n, 0, "operand")
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpression{Annotation: ann, Token: tok(n, n.Op), Operator: n.Op, Right: operand}, nil

	case KindIf:
		if err := d.kids(n, 3); err != nil {
			return nil, err
		}
		cond, err := d.child(n, 0, "if")
		if err != nil {
			return nil, err
		}
		then, err := d.child(n, 1, "then")
		if err != nil {
			return nil, err
		}
		els, err := d.child(n, 2, "else")
		if err != nil {
			return nil, err
		}
		return &ast.IfExpression{Annotation: ann, Token: tok(n, "if"), Condition: cond, Consequence: then, Alternative: els}, nil

	case KindWhile:
		if err := d.kids(n, 2); err != nil {
			return nil, err
		}
		cond, err := d.child(n, 0, "while")
		if err != nil {
			return nil, err
		}
		body, err := d.child(n, 1, "loop")
		if err != nil {
			return nil, err
		}
		return &ast.WhileExpression{Annotation: ann, Token: tok(n, "while"), Condition: cond, Body: body}, nil

	case KindBlock:
		if len(n.Kids) == 0 {
			return nil, d.errorf("empty block")
		}
		b := &ast.BlockExpression{Annotation: ann, Token: tok(n, "{")}
		for i := range n.Kids {
			e, err := d.child(n, i, fmt.Sprintf("block[%d]", i))
			if err != nil {
				return nil, err
			}
			b.Expressions = append(b.Expressions, e)
		}
		return b, nil

	case KindLet:
		if len(n.Kids) < 2 {
			return nil, d.errorf("let record needs at least one binding and a body")
		}
		let := &ast.LetExpression{Annotation: ann, Token: tok(n, "let")}
		last := len(n.Kids) - 1
		for i, kid := range n.Kids[:last] {
			d.push("binding[%d]", i)
			if err := d.expect(kid, KindBinding); err != nil {
				return nil, err
			}
			if err := d.need(kid, "name", kid.Name); err != nil {
				return nil, err
			}
			if err := d.need(kid, "type", kid.Type); err != nil {
				return nil, err
			}
			init, err := d.optional(kid)
			if err != nil {
				return nil, err
			}
			d.pop()
			let.Bindings = append(let.Bindings, &ast.LetBinding{
				Identifier: objectID(kid, kid.Name),
				Type:       typeID(kid, kid.Type),
				Init:       init,
			})
		}
		body, err := d.child(n, last, "in")
		if err != nil {
			return nil, err
		}
		let.In = body
		return let, nil

	case KindCase:
		if len(n.Kids) < 2 {
			return nil, d.errorf("case record needs a scrutinee and at least one branch")
		}
		scrutinee, err := d.child(n, 0, "case")
		if err != nil {
			return nil, err
		}
		c := &ast.CaseExpression{Annotation: ann, Token: tok(n, "case"), Expr: scrutinee}
		for i, kid := range n.Kids[1:] {
			d.push("branch[%d]", i)
			if err := d.expect(kid, KindBranch); err != nil {
				return nil, err
			}
			if err := d.need(kid, "name", kid.Name); err != nil {
				return nil, err
			}
			if err := d.need(kid, "type", kid.Type); err != nil {
				return nil, err
			}
			if err := d.kids(kid, 1); err != nil {
				return nil, err
			}
			body, err := d.expr(kid.Kids[0])
			if err != nil {
				return nil, err
			}
			d.pop()
			c.Branches = append(c.Branches, &ast.CaseBranch{
				Token:      tok(kid, kid.Name),
				Pattern:    objectID(kid, kid.Name),
				Type:       typeID(kid, kid.Type),
				Expression: body,
			})
		}
		return c, nil

	case KindNew:
		if err := d.need(n, "class", n.Name); err != nil {
			return nil, err
		}
		return &ast.NewExpression{Annotation: ann, Token: tok(n, "new"), Type: typeID(n, n.Name)}, nil

	case KindIsVoid:
		if err := d.kids(n, 1); err != nil {
			return nil, err
		}
		operand, err := d.child(n, 0, "isvoid")
		if err != nil {
			return nil, err
		}
		return &ast.IsVoidExpression{Annotation: ann, Token: tok(n, "isvoid"), Expression: operand}, nil

	case KindDispatch:
		if err := d.need(n, "method", n.Name); err != nil {
			return nil, err
		}
		if len(n.Kids) == 0 {
			return nil, d.errorf("dispatch record has no receiver slot")
		}
		dispatch := &ast.DispatchExpression{Annotation: ann, Token: tok(n, n.Name), Method: objectID(n, n.Name)}
		d.push("receiver")
		recv, err := d.maybeExpr(n.Kids[0])
		if err != nil {
			return nil, err
		}
		d.pop()
		dispatch.Object = recv
		if n.Parent != "" {
			if recv == nil {
				return nil, d.errorf("static dispatch to %s without a receiver", n.Parent)
			}
			dispatch.StaticType = typeID(n, n.Parent)
		}
		for i := 1; i < len(n.Kids); i++ {
			arg, err := d.child(n, i, fmt.Sprintf("arg[%d]", i-1))
			if err != nil {
				return nil, err
			}
			dispatch.Arguments = append(dispatch.Arguments, arg)
		}
		return dispatch, nil

	default:
		return nil, d.errorf("%s record is not an expression", n.Kind)
	}
}
