package codegen

import (
	"bytes"
	"errors"
	"testing"

	"cool-codegen/ast"
	"cool-codegen/internal/irexec"

	"github.com/llir/llvm/ir"
)

// Builders for typed ASTs. Every expression carries the static type the
// semantic checker would have assigned.

func tid(name string) *ast.TypeIdentifier {
	return &ast.TypeIdentifier{Value: name}
}

func intLit(n int64) *ast.IntegerLiteral {
	return &ast.IntegerLiteral{Annotation: ast.Annotation{Static: ast.IntType}, Value: n}
}

func boolLit(b bool) *ast.BooleanLiteral {
	return &ast.BooleanLiteral{Annotation: ast.Annotation{Static: ast.BoolType}, Value: b}
}

func strLit(s string) *ast.StringLiteral {
	return &ast.StringLiteral{Annotation: ast.Annotation{Static: ast.StringType}, Value: s}
}

func ident(name, typ string) *ast.ObjectIdentifier {
	return &ast.ObjectIdentifier{Annotation: ast.Annotation{Static: typ}, Value: name}
}

func assign(name string, value ast.Expression) *ast.Assignment {
	return &ast.Assignment{
		Annotation: ast.Annotation{Static: value.ExprType()},
		Name:       &ast.ObjectIdentifier{Value: name},
		Value:      value,
	}
}

func binop(op string, left, right ast.Expression) *ast.BinaryExpression {
	typ := ast.IntType
	switch op {
	case "<", "<=", "=":
		typ = ast.BoolType
	}
	return &ast.BinaryExpression{Annotation: ast.Annotation{Static: typ}, Left: left, Operator: op, Right: right}
}

func unop(op string, operand ast.Expression) *ast.UnaryExpression {
	typ := ast.IntType
	if op == "not" {
		typ = ast.BoolType
	}
	return &ast.UnaryExpression{Annotation: ast.Annotation{Static: typ}, Operator: op, Right: operand}
}

func seq(exprs ...ast.Expression) *ast.BlockExpression {
	return &ast.BlockExpression{
		Annotation:  ast.Annotation{Static: exprs[len(exprs)-1].ExprType()},
		Expressions: exprs,
	}
}

func ifte(cond, then, els ast.Expression, typ string) *ast.IfExpression {
	return &ast.IfExpression{
		Annotation:  ast.Annotation{Static: typ},
		Condition:   cond,
		Consequence: then,
		Alternative: els,
	}
}

func while(cond, body ast.Expression) *ast.WhileExpression {
	return &ast.WhileExpression{Annotation: ast.Annotation{Static: ast.ObjectType}, Condition: cond, Body: body}
}

func bind(name, typ string, init ast.Expression) *ast.LetBinding {
	return &ast.LetBinding{Identifier: &ast.ObjectIdentifier{Value: name}, Type: tid(typ), Init: init}
}

func let(body ast.Expression, bindings ...*ast.LetBinding) *ast.LetExpression {
	return &ast.LetExpression{Annotation: ast.Annotation{Static: body.ExprType()}, Bindings: bindings, In: body}
}

func branch(name, typ string, body ast.Expression) *ast.CaseBranch {
	return &ast.CaseBranch{Pattern: &ast.ObjectIdentifier{Value: name}, Type: tid(typ), Expression: body}
}

func typecase(expr ast.Expression, typ string, branches ...*ast.CaseBranch) *ast.CaseExpression {
	return &ast.CaseExpression{Annotation: ast.Annotation{Static: typ}, Expr: expr, Branches: branches}
}

func newObj(class string) *ast.NewExpression {
	return &ast.NewExpression{Annotation: ast.Annotation{Static: class}, Type: tid(class)}
}

func isvoid(expr ast.Expression) *ast.IsVoidExpression {
	return &ast.IsVoidExpression{Annotation: ast.Annotation{Static: ast.BoolType}, Expression: expr}
}

func call(recv ast.Expression, method, typ string, args ...ast.Expression) *ast.DispatchExpression {
	return &ast.DispatchExpression{
		Annotation: ast.Annotation{Static: typ},
		Object:     recv,
		Method:     &ast.ObjectIdentifier{Value: method},
		Arguments:  args,
	}
}

func staticCall(recv ast.Expression, class, method, typ string, args ...ast.Expression) *ast.DispatchExpression {
	d := call(recv, method, typ, args...)
	d.StaticType = tid(class)
	return d
}

func selfCall(method, typ string, args ...ast.Expression) *ast.DispatchExpression {
	return call(nil, method, typ, args...)
}

func class(name, parent string, features ...ast.Feature) *ast.Class {
	c := &ast.Class{Name: tid(name), Features: features, Filename: "test.cl"}
	if parent != "" {
		c.Parent = tid(parent)
	}
	return c
}

func method(name, ret string, body ast.Expression, formals ...*ast.Formal) *ast.Method {
	return &ast.Method{Name: &ast.ObjectIdentifier{Value: name}, TypeDecl: tid(ret), Formals: formals, Body: body}
}

func formal(name, typ string) *ast.Formal {
	return &ast.Formal{Name: &ast.ObjectIdentifier{Value: name}, TypeDecl: tid(typ)}
}

func attr(name, typ string, init ast.Expression) *ast.Attribute {
	return &ast.Attribute{Name: &ast.ObjectIdentifier{Value: name}, TypeDecl: tid(typ), Init: init}
}

func program(classes ...*ast.Class) *ast.Program {
	return &ast.Program{Classes: classes}
}

// mainReturning wraps body in class Main inherits IO { main(): typ { body } }.
func mainReturning(typ string, body ast.Expression, extra ...*ast.Class) *ast.Program {
	main := class("Main", ast.IOType, method("main", typ, body))
	return program(append(extra, main)...)
}

func compile(t *testing.T, prog *ast.Program) *ir.Module {
	t.Helper()
	return compileWith(t, DefaultOptions(), prog)
}

func compileWith(t *testing.T, opts Options, prog *ast.Program) *ir.Module {
	t.Helper()
	cg := New(opts)
	mod, err := cg.Generate(prog)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return mod
}

// run executes main and returns everything the program printed.
func run(t *testing.T, mod *ir.Module) (string, error) {
	t.Helper()
	m, err := irexec.New(mod)
	if err != nil {
		t.Fatalf("loading module: %v", err)
	}
	var out bytes.Buffer
	m.Stdout = &out
	m.MaxSteps = 200000
	_, err = m.RunMain()
	return out.String(), err
}

func isAbort(err error) bool {
	var abort *irexec.AbortError
	return errors.As(err, &abort)
}
