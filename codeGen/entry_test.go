package codegen

import (
	"errors"
	"strings"
	"testing"

	"cool-codegen/ast"
)

func TestEntryMethodRunsOnce(t *testing.T) {
	body := seq(selfCall("out_string", ast.SelfType, strLit("run")), intLit(42))
	expectOutput(t, mainReturning(ast.IntType, body), "run42\n")
}

func TestEntryOptions(t *testing.T) {
	app := class("App", "",
		method("start", ast.IntType, intLit(9)),
		method("greet", ast.ObjectType, newObj(ast.ObjectType)),
	)

	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"custom entry", Options{EntryClass: "App", EntryMethod: "start", PrintResult: true}, "9\n"},
		{"result not printed", Options{EntryClass: "App", EntryMethod: "start"}, ""},
		{"non-Int result never printed", Options{EntryClass: "App", EntryMethod: "greet", PrintResult: true}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, compileWith(t, tt.opts, program(app)))
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if out != tt.want {
				t.Errorf("output = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestEntryFaults(t *testing.T) {
	tests := []struct {
		name string
		prog *ast.Program
		msg  string
	}{
		{
			name: "no entry class",
			prog: program(class("App", "", method("main", ast.IntType, intLit(1)))),
			msg:  "entry class Main",
		},
		{
			name: "no entry method",
			prog: program(class("Main", "", method("run", ast.IntType, intLit(1)))),
			msg:  "entry method main",
		},
		{
			name: "entry method takes arguments",
			prog: program(class("Main", "",
				method("main", ast.IntType, ident("n", ast.IntType), formal("n", ast.IntType)))),
			msg: "must not take arguments",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cg := New(DefaultOptions())
			mod, err := cg.Generate(tt.prog)
			if mod != nil {
				t.Error("Generate returned a module alongside an error")
			}
			var fault *FaultError
			if !errors.As(err, &fault) {
				t.Fatalf("Generate error = %v, want FaultError", err)
			}
			if !strings.Contains(fault.Msg, tt.msg) {
				t.Errorf("fault %q does not mention %q", fault.Msg, tt.msg)
			}
		})
	}
}

func TestModuleText(t *testing.T) {
	opts := DefaultOptions()
	opts.TargetTriple = "x86_64-pc-linux-gnu"
	mod := compileWith(t, opts, mainReturning(ast.IntType, intLit(1)))
	text := mod.String()

	for _, want := range []string{
		`target triple = "x86_64-pc-linux-gnu"`,
		"%obj_header = type { i32, i8* }",
		"define i32 @main()",
		"define i32 @Main_main(%Object* ",
		"@Main.vtable = constant",
		"void @abort()",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("module text lacks %q", want)
		}
	}
}
