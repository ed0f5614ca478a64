package codegen

import (
	"errors"
	"testing"

	"cool-codegen/ast"
)

func layoutProgram(t *testing.T, prog *ast.Program) *CodeGenerator {
	t.Helper()
	cg := New(DefaultOptions())
	if err := cg.buildClassTable(prog); err != nil {
		t.Fatalf("buildClassTable: %v", err)
	}
	if err := cg.setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return cg
}

func shapesProgram() *ast.Program {
	return program(
		class("P", "",
			attr("a", ast.IntType, nil),
			attr("b", ast.StringType, nil),
			method("m1", ast.IntType, intLit(1)),
			method("m2", ast.IntType, intLit(2)),
		),
		class("C", "P",
			attr("c", ast.BoolType, nil),
			method("m2", ast.IntType, intLit(20)),
			method("m3", ast.ObjectType, ident("self", ast.SelfType)),
		),
		class("D", "C",
			attr("d", "P", nil),
			method("m1", ast.IntType, intLit(100)),
		),
	)
}

func TestAttributeOffsets(t *testing.T) {
	cg := layoutProgram(t, shapesProgram())
	ct := cg.Context().Classes

	tests := []struct {
		class string
		attr  string
		field int
	}{
		{"P", "a", 1},
		{"P", "b", 2},
		{"C", "a", 1},
		{"C", "b", 2},
		{"C", "c", 3},
		{"D", "c", 3},
		{"D", "d", 4},
		{ast.StringType, "val", 1},
	}
	for _, tt := range tests {
		c, _ := ct.Lookup(tt.class)
		slot, ok := c.Attr(tt.attr)
		if !ok {
			t.Fatalf("%s has no attribute %s", tt.class, tt.attr)
		}
		if slot.Field != tt.field {
			t.Errorf("%s.%s at field %d, want %d", tt.class, tt.attr, slot.Field, tt.field)
		}
	}

	// Every inherited attribute keeps its offset all the way down.
	for _, c := range ct.Classes() {
		for _, anc := range ct.Ancestors(c) {
			for _, a := range anc.Attrs {
				got, ok := c.Attr(a.Name)
				if !ok || got.Field != a.Field {
					t.Errorf("%s.%s: field differs from ancestor %s", c.Name, a.Name, anc.Name)
				}
			}
		}
		if n := len(c.Type.Fields); n != len(c.Attrs)+1 {
			t.Errorf("%s struct has %d fields, want %d", c.Name, n, len(c.Attrs)+1)
		}
	}
}

func TestVTableSlots(t *testing.T) {
	cg := layoutProgram(t, shapesProgram())
	ct := cg.Context().Classes

	tests := []struct {
		class  string
		method string
		index  int
		owner  string
	}{
		{"P", "abort", 0, ast.ObjectType},
		{"P", "type_name", 1, ast.ObjectType},
		{"P", "copy", 2, ast.ObjectType},
		{"P", "m1", 3, "P"},
		{"P", "m2", 4, "P"},
		{"C", "m1", 3, "P"},
		{"C", "m2", 4, "C"},
		{"C", "m3", 5, "C"},
		{"D", "m1", 3, "D"},
		{"D", "m2", 4, "C"},
		{"D", "m3", 5, "C"},
		{ast.IOType, "out_string", 3, ast.IOType},
	}
	for _, tt := range tests {
		c, _ := ct.Lookup(tt.class)
		slot, ok := c.Slot(tt.method)
		if !ok {
			t.Fatalf("%s has no method %s", tt.class, tt.method)
		}
		if slot.Index != tt.index || slot.Owner.Name != tt.owner {
			t.Errorf("%s.%s: slot %d owned by %s, want %d owned by %s",
				tt.class, tt.method, slot.Index, slot.Owner.Name, tt.index, tt.owner)
		}
		if got := slot.Func.Name(); got != tt.owner+"_"+tt.method {
			t.Errorf("%s.%s implemented by %s", tt.class, tt.method, got)
		}
	}

	for _, c := range ct.Classes() {
		for _, anc := range ct.Ancestors(c) {
			for _, s := range anc.VTable {
				got, ok := c.Slot(s.Name)
				if !ok || got.Index != s.Index {
					t.Errorf("%s.%s: slot differs from ancestor %s", c.Name, s.Name, anc.Name)
				}
			}
		}
		if n := len(c.VTableType.Fields); n != len(c.VTable) {
			t.Errorf("%s vtable type has %d entries, want %d", c.Name, n, len(c.VTable))
		}
	}
}

func TestLayoutEmitsDescriptors(t *testing.T) {
	cg := layoutProgram(t, shapesProgram())
	mod := cg.Context().Module

	globals := make(map[string]bool)
	for _, g := range mod.Globals {
		globals[g.Name()] = true
	}
	funcs := make(map[string]bool)
	for _, f := range mod.Funcs {
		funcs[f.Name()] = len(f.Blocks) > 0
	}

	for _, name := range []string{"P.vtable", "C.vtable", "D.vtable", "Object.vtable", "class.table", "D.name"} {
		if !globals[name] {
			t.Errorf("global @%s not emitted", name)
		}
	}
	for _, name := range []string{"P_new", "C_new", "Int_new", "String_new"} {
		if defined, ok := funcs[name]; !ok || !defined {
			t.Errorf("constructor @%s not defined", name)
		}
	}
	for _, name := range []string{"Object_abort", "IO_out_string", "String_substr"} {
		if defined, ok := funcs[name]; !ok || defined {
			t.Errorf("runtime method @%s should be declared, not defined", name)
		}
	}
}

func TestOverrideSignatureMismatch(t *testing.T) {
	prog := program(
		class("P", "", method("f", ast.IntType, intLit(1), formal("x", ast.IntType))),
		class("C", "P", method("f", ast.IntType, intLit(2), formal("x", ast.StringType))),
	)
	cg := New(DefaultOptions())
	_, err := cg.Generate(prog)

	var fault *FaultError
	if !errors.As(err, &fault) {
		t.Fatalf("Generate error = %v, want FaultError", err)
	}
	if fault.Class != "C" || fault.Method != "f" {
		t.Errorf("fault at %s.%s, want C.f", fault.Class, fault.Method)
	}
	if len(cg.Errors()) != 1 {
		t.Errorf("Errors() = %v, want one entry", cg.Errors())
	}
}
