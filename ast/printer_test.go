package ast

import "testing"

func intLit(n int64) *IntegerLiteral {
	return &IntegerLiteral{Annotation: Annotation{Static: IntType}, Value: n}
}

func ident(name, typ string) *ObjectIdentifier {
	return &ObjectIdentifier{Annotation: Annotation{Static: typ}, Value: name}
}

func TestSerializeExpression(t *testing.T) {
	tests := []struct {
		name     string
		expr     Expression
		expected string
	}{
		{"literal", intLit(42), "42"},
		{
			"binary",
			&BinaryExpression{Left: intLit(1), Operator: "+", Right: &UnaryExpression{Operator: "~", Right: intLit(2)}},
			"(1 + (~ 2))",
		},
		{
			"let without init",
			&LetExpression{
				Bindings: []*LetBinding{
					{Identifier: &ObjectIdentifier{Value: "x"}, Type: &TypeIdentifier{Value: IntType}, Init: intLit(5)},
					{Identifier: &ObjectIdentifier{Value: "y"}, Type: &TypeIdentifier{Value: StringType}},
				},
				In: ident("x", IntType),
			},
			"let x:Int<-5,y:String in x",
		},
		{
			"static dispatch",
			&DispatchExpression{
				Object:     ident("a", "A"),
				StaticType: &TypeIdentifier{Value: "A"},
				Method:     &ObjectIdentifier{Value: "f"},
				Arguments:  []Expression{intLit(1), &StringLiteral{Value: "s"}},
			},
			`a@A.f(1, "s")`,
		},
		{
			"self dispatch",
			&DispatchExpression{Method: &ObjectIdentifier{Value: "g"}},
			"g()",
		},
		{
			"case",
			&CaseExpression{
				Expr: ident("o", ObjectType),
				Branches: []*CaseBranch{
					{Pattern: &ObjectIdentifier{Value: "i"}, Type: &TypeIdentifier{Value: IntType}, Expression: ident("i", IntType)},
					{Pattern: &ObjectIdentifier{Value: "x"}, Type: &TypeIdentifier{Value: ObjectType}, Expression: intLit(0)},
				},
			},
			"case o of i:Int=>i; x:Object=>0 esac",
		},
		{
			"loop with assignment",
			&WhileExpression{
				Condition: &BooleanLiteral{Value: true},
				Body:      &Assignment{Name: &ObjectIdentifier{Value: "n"}, Value: &NewExpression{Type: &TypeIdentifier{Value: "A"}}},
			},
			"while true loop n <- new A pool",
		},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if actual := SerializeExpression(tt.expr); actual != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, actual)
			}
		})
	}
}

func TestPrintProgramShowsStaticTypes(t *testing.T) {
	program := &Program{Classes: []*Class{{
		Name:   &TypeIdentifier{Value: "Main"},
		Parent: &TypeIdentifier{Value: IOType},
		Features: []Feature{
			&Attribute{Name: &ObjectIdentifier{Value: "n"}, TypeDecl: &TypeIdentifier{Value: IntType}, Init: intLit(3)},
			&Method{
				Name:     &ObjectIdentifier{Value: "main"},
				Formals:  []*Formal{{Name: &ObjectIdentifier{Value: "k"}, TypeDecl: &TypeIdentifier{Value: IntType}}},
				TypeDecl: &TypeIdentifier{Value: BoolType},
				Body: &BinaryExpression{
					Annotation: Annotation{Static: BoolType},
					Left:       ident("n", IntType),
					Operator:   "<",
					Right:      ident("k", IntType),
				},
			},
		},
	}}}

	expected := `Program
  Class: Main inherits IO
    Attribute: n : Int
      Init:
        Int: 3 [Int]
    Method: main
      Formals:
        k: Int
      Return Type: Bool
      Body:
        Binary: < [Bool]
          Identifier: n [Int]
          Identifier: k [Int]
`
	if actual := NewPrinter().PrintProgram(program); actual != expected {
		t.Errorf("expected:\n%s\ngot:\n%s", expected, actual)
	}
}

func TestParentName(t *testing.T) {
	c := &Class{Name: &TypeIdentifier{Value: "A"}}
	if got := c.ParentName(); got != ObjectType {
		t.Errorf("implicit parent = %q, want Object", got)
	}
	c.Parent = &TypeIdentifier{Value: "B"}
	if got := c.ParentName(); got != "B" {
		t.Errorf("explicit parent = %q, want B", got)
	}
}

func TestPrintExpressionWithoutTypes(t *testing.T) {
	expr := &IfExpression{
		Annotation:  Annotation{Static: IntType},
		Condition:   &IsVoidExpression{Annotation: Annotation{Static: BoolType}, Expression: ident("o", ObjectType)},
		Consequence: intLit(1),
		Alternative: &DispatchExpression{
			Annotation: Annotation{Static: IntType},
			Object:     ident("s", StringType),
			Method:     &ObjectIdentifier{Value: "length"},
		},
	}

	typed := `If [Int]
  Condition:
    IsVoid [Bool]
      Identifier: o [Object]
  Then:
    Int: 1 [Int]
  Else:
    Dispatch [Int]:
      Object:
        Identifier: s [String]
      Method: length
`
	untyped := `If
  Condition:
    IsVoid
      Identifier: o
  Then:
    Int: 1
  Else:
    Dispatch:
      Object:
        Identifier: s
      Method: length
`
	p := NewPrinter()
	if actual := p.PrintExpression(expr); actual != typed {
		t.Errorf("expected:\n%s\ngot:\n%s", typed, actual)
	}
	p.ShowTypes = false
	if actual := p.PrintExpression(expr); actual != untyped {
		t.Errorf("expected:\n%s\ngot:\n%s", untyped, actual)
	}
}
