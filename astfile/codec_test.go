package astfile

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"cool-codegen/ast"

	"github.com/fxamacker/cbor/v2"
)

func tid(name string) *ast.TypeIdentifier { return &ast.TypeIdentifier{Value: name} }

func oid(name string) *ast.ObjectIdentifier { return &ast.ObjectIdentifier{Value: name} }

func typed(t string) ast.Annotation { return ast.Annotation{Static: t} }

// sample covers every expression kind at least once.
func sample() *ast.Program {
	x := &ast.ObjectIdentifier{Annotation: typed("Int"), Value: "x"}
	body := &ast.LetExpression{
		Annotation: typed("Int"),
		Bindings: []*ast.LetBinding{
			{Identifier: oid("x"), Type: tid("Int"), Init: &ast.IntegerLiteral{Annotation: typed("Int"), Value: 5}},
			{Identifier: oid("o"), Type: tid("Object")},
		},
		In: &ast.BlockExpression{
			Annotation: typed("Int"),
			Expressions: []ast.Expression{
				&ast.Assignment{
					Annotation: typed("Int"),
					Name:       oid("x"),
					Value: &ast.BinaryExpression{
						Annotation: typed("Int"), Operator: "+",
						Left:  x,
						Right: &ast.UnaryExpression{Annotation: typed("Int"), Operator: "~", Right: &ast.IntegerLiteral{Annotation: typed("Int"), Value: 2}},
					},
				},
				&ast.WhileExpression{
					Annotation: typed("Object"),
					Condition:  &ast.BooleanLiteral{Annotation: typed("Bool"), Value: false},
					Body:       &ast.NewExpression{Annotation: typed("A"), Type: tid("A")},
				},
				&ast.IfExpression{
					Annotation:  typed("Object"),
					Condition:   &ast.IsVoidExpression{Annotation: typed("Bool"), Expression: &ast.ObjectIdentifier{Annotation: typed("Object"), Value: "o"}},
					Consequence: &ast.StringLiteral{Annotation: typed("String"), Value: "void\n"},
					Alternative: &ast.DispatchExpression{
						Annotation: typed("Object"),
						Object:     &ast.NewExpression{Annotation: typed("A"), Type: tid("A")},
						StaticType: tid("Object"),
						Method:     oid("copy"),
					},
				},
				&ast.DispatchExpression{
					Annotation: typed("SELF_TYPE"),
					Method:     oid("out_int"),
					Arguments:  []ast.Expression{x},
				},
				&ast.CaseExpression{
					Annotation: typed("Int"),
					Expr:       &ast.ObjectIdentifier{Annotation: typed("Object"), Value: "o"},
					Branches: []*ast.CaseBranch{
						{Pattern: oid("a"), Type: tid("A"), Expression: &ast.IntegerLiteral{Annotation: typed("Int"), Value: 1}},
						{Pattern: oid("i"), Type: tid("Int"), Expression: &ast.ObjectIdentifier{Annotation: typed("Int"), Value: "i"}},
					},
				},
			},
		},
	}

	return &ast.Program{Classes: []*ast.Class{
		{
			Name:     tid("A"),
			Filename: "sample.cl",
			Features: []ast.Feature{
				&ast.Attribute{Name: oid("n"), TypeDecl: tid("Int"), Init: &ast.IntegerLiteral{Annotation: typed("Int"), Value: 3}},
				&ast.Attribute{Name: oid("s"), TypeDecl: tid("String")},
			},
		},
		{
			Name:     tid("Main"),
			Parent:   tid("IO"),
			Filename: "sample.cl",
			Features: []ast.Feature{
				&ast.Method{
					Name:     oid("main"),
					TypeDecl: tid("Int"),
					Body:     body,
				},
				&ast.Method{
					Name:     oid("twice"),
					TypeDecl: tid("Int"),
					Formals:  []*ast.Formal{{Name: oid("y"), TypeDecl: tid("Int")}},
					Body: &ast.BinaryExpression{
						Annotation: typed("Int"), Operator: "*",
						Left:  &ast.ObjectIdentifier{Annotation: typed("Int"), Value: "y"},
						Right: &ast.IntegerLiteral{Annotation: typed("Int"), Value: 2},
					},
				},
			},
		},
	}}
}

func TestRoundTripPreservesTree(t *testing.T) {
	prog := sample()
	data, err := Encode(prog)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	want := ast.NewPrinter().PrintProgram(prog)
	got := ast.NewPrinter().PrintProgram(back)
	if got != want {
		t.Errorf("decoded tree differs\n--- got\n%s--- want\n%s", got, want)
	}
	if back.Classes[0].Parent != nil {
		t.Error("implicit Object parent became explicit")
	}
	if back.Classes[1].Filename != "sample.cl" {
		t.Errorf("file name = %q", back.Classes[1].Filename)
	}

	main := back.Classes[1].Features[0].(*ast.Method)
	block := main.Body.(*ast.LetExpression).In.(*ast.BlockExpression)
	if d := block.Expressions[3].(*ast.DispatchExpression); d.Object != nil || d.StaticType != nil {
		t.Error("self dispatch gained a receiver or static type")
	}
	if d := block.Expressions[2].(*ast.IfExpression).Alternative.(*ast.DispatchExpression); d.StaticType == nil || d.StaticType.Value != "Object" {
		t.Error("static dispatch type lost")
	}
}

func TestEncodingIsDeterministic(t *testing.T) {
	a, err := Encode(sample())
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encode(sample())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("two encodings of the same tree differ")
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.cbor")
	if err := WriteFile(path, sample()); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	prog, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(prog.Classes) != 2 {
		t.Errorf("read %d classes, want 2", len(prog.Classes))
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.cbor")); err == nil {
		t.Error("ReadFile of a missing file succeeded")
	}
}

func encodeRaw(t *testing.T, f File) []byte {
	t.Helper()
	data, err := cbor.Marshal(&f)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func mainWithBody(body *Node) *Node {
	return &Node{Kind: KindProgram, Kids: []*Node{{
		Kind: KindClass,
		Name: "Main",
		Kids: []*Node{{Kind: KindMethod, Name: "main", Type: "Int", Kids: []*Node{body}}},
	}}}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		file File
		want string
	}{
		{
			name: "wrong version",
			file: File{Version: 99, Program: &Node{Kind: KindProgram}},
			want: "unsupported version",
		},
		{
			name: "no program",
			file: File{Version: Version},
			want: "no program",
		},
		{
			name: "missing static type",
			file: File{Version: Version, Program: mainWithBody(&Node{Kind: KindInt, Int: 1})},
			want: "class[0]/method main/body: int expression has no static type",
		},
		{
			name: "unknown kind",
			file: File{Version: Version, Program: mainWithBody(&Node{Kind: Kind(200), Type: "Int"})},
			want: "kind(200) record is not an expression",
		},
		{
			name: "wrong arity",
			file: File{Version: Version, Program: mainWithBody(&Node{Kind: KindBinary, Op: "+", Type: "Int",
				Kids: []*Node{{Kind: KindInt, Type: "Int"}}})},
			want: "binary record has 1 children, want 2",
		},
		{
			name: "unknown operator",
			file: File{Version: Version, Program: mainWithBody(&Node{Kind: KindBinary, Op: "%", Type: "Int",
				Kids: []*Node{{Kind: KindInt, Type: "Int"}, {Kind: KindInt, Type: "Int"}}})},
			want: `unknown binary operator "%"`,
		},
		{
			name: "nested error names the path",
			file: File{Version: Version, Program: mainWithBody(&Node{Kind: KindIf, Type: "Int", Kids: []*Node{
				{Kind: KindBool, Type: "Bool"},
				{Kind: KindInt, Type: "Int"},
				{Kind: KindIdent, Type: "Int"},
			}})},
			want: "body/else: ident record has no name",
		},
		{
			name: "expression where a feature belongs",
			file: File{Version: Version, Program: &Node{Kind: KindProgram, Kids: []*Node{{
				Kind: KindClass, Name: "Main", Kids: []*Node{{Kind: KindInt, Type: "Int"}},
			}}}},
			want: "int record is not a feature",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(encodeRaw(t, tt.file))
			if err == nil {
				t.Fatal("Decode succeeded")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := Decode([]byte{0xff, 0x00, 0x13}); err == nil {
		t.Error("Decode accepted garbage")
	}
}
