package codegen

import (
	"errors"
	"fmt"

	"cool-codegen/ast"
	"cool-codegen/symtab"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("coolc.codegen")

// Options control the parts of generation that are not dictated by the
// program itself.
type Options struct {
	EntryClass  string
	EntryMethod string
	// PrintResult makes main print an Int result of the entry method.
	PrintResult  bool
	TargetTriple string
	DataLayout   string
}

func DefaultOptions() Options {
	return Options{
		EntryClass:  "Main",
		EntryMethod: "main",
		PrintResult: true,
		DataLayout:  "e-m:e-p270:32:32-p271:32:32-p272:64:64-i64:64-f80:128-n8:16:32:64-S128",
	}
}

// FaultError is a broken precondition of the upstream semantic pass. It is
// fatal to the generation run.
type FaultError struct {
	Class  string
	Method string
	Msg    string
}

func (e *FaultError) Error() string {
	switch {
	case e.Class != "" && e.Method != "":
		return fmt.Sprintf("%s.%s: %s", e.Class, e.Method, e.Msg)
	case e.Class != "":
		return fmt.Sprintf("class %s: %s", e.Class, e.Msg)
	default:
		return e.Msg
	}
}

// Context is the state shared by every component of one compilation run.
// Nothing in this package is kept in package-level variables.
type Context struct {
	Module   *ir.Module
	Idents   *symtab.Table
	Literals *symtab.Table
	Classes  *ClassTable
	Pool     *ConstantPool
	Runtime  *Runtime

	// Shared LLVM types.
	headerType *types.StructType
	objType    *types.StructType
	objPtr     *types.PointerType
	bytePtr    *types.PointerType
}

// CodeGenerator maintains the state needed during code generation
type CodeGenerator struct {
	ctx  *Context
	opts Options

	// Current class, function and block being generated
	currentClass  *ClassNode
	currentMethod string
	currentFunc   *ir.Func
	currentBlock  *ir.Block
	entryBlock    *ir.Block
	env           *Environment
	allocaCount   int

	errors []string
}

// New creates a generator for a single compilation run.
func New(opts Options) *CodeGenerator {
	if opts.EntryClass == "" {
		opts.EntryClass = "Main"
	}
	if opts.EntryMethod == "" {
		opts.EntryMethod = "main"
	}

	ctx := &Context{
		Module:   ir.NewModule(),
		Idents:   symtab.NewTable(),
		Literals: symtab.NewTable(),
	}
	ctx.Module.TargetTriple = opts.TargetTriple
	ctx.Module.DataLayout = opts.DataLayout

	ctx.bytePtr = types.NewPointer(types.I8)
	ctx.headerType = types.NewStruct(types.I32, ctx.bytePtr)
	ctx.Module.NewTypeDef("obj_header", ctx.headerType)
	ctx.objType = types.NewStruct(ctx.headerType)
	ctx.Module.NewTypeDef(ast.ObjectType, ctx.objType)
	ctx.objPtr = types.NewPointer(ctx.objType)

	ctx.Classes = NewClassTable(ctx.Idents)
	ctx.Runtime = declareRuntime(ctx)
	ctx.Pool = NewConstantPool(ctx)

	return &CodeGenerator{ctx: ctx, opts: opts}
}

// Context exposes the compilation context, mainly for inspection in tests
// and by the driver.
func (cg *CodeGenerator) Context() *Context {
	return cg.ctx
}

// Generate lowers a type-checked program into an LLVM module. On error no
// module is returned.
func (cg *CodeGenerator) Generate(program *ast.Program) (*ir.Module, error) {
	if err := cg.buildClassTable(program); err != nil {
		return nil, cg.fail(fmt.Errorf("error building class table: %w", err))
	}
	log.Infof("class table built: %d classes", cg.ctx.Classes.Len())

	if err := cg.setup(); err != nil {
		return nil, cg.fail(fmt.Errorf("error laying out classes: %w", err))
	}
	log.Info("class layout finished")

	if err := cg.codeClasses(); err != nil {
		return nil, cg.fail(fmt.Errorf("error generating method implementations: %w", err))
	}
	log.Info("method implementations generated")

	if err := cg.generateEntryPoint(); err != nil {
		return nil, cg.fail(fmt.Errorf("error generating entry point: %w", err))
	}
	log.Info("entry point generated")

	cg.ctx.Pool.Emit()
	return cg.ctx.Module, nil
}

func (cg *CodeGenerator) buildClassTable(program *ast.Program) error {
	ct := cg.ctx.Classes
	ct.InstallBasicClasses()
	ct.InstallClasses(program.Classes)
	return ct.BuildInheritanceTree()
}

// setup is the first pass: tags, then layouts top-down.
func (cg *CodeGenerator) setup() error {
	ct := cg.ctx.Classes
	if err := ct.Setup(); err != nil {
		return err
	}
	for _, c := range ct.Classes() {
		if err := cg.layoutClass(c); err != nil {
			return err
		}
		log.Debugf("class %s: tag %d..%d depth %d, %d attributes, %d vtable slots",
			c.Name, c.Tag, c.MaxChildTag, c.Depth, len(c.Attrs), len(c.VTable))
	}
	cg.emitClassTable()
	for _, c := range ct.Classes() {
		if err := cg.generateConstructor(c); err != nil {
			return err
		}
	}
	return nil
}

// codeClasses is the second pass: one function body per user method.
func (cg *CodeGenerator) codeClasses() error {
	for _, c := range cg.ctx.Classes.Classes() {
		if c.Basic {
			continue
		}
		for _, m := range c.Methods() {
			if err := cg.generateMethodImplementation(c, m); err != nil {
				return fmt.Errorf("error generating method implementation for %s.%s: %w",
					c.Name, m.Name.Value, err)
			}
		}
	}
	return nil
}

// fail records err so Errors reports it and hands it back.
func (cg *CodeGenerator) fail(err error) error {
	cg.errors = append(cg.errors, err.Error())
	var fault *FaultError
	if errors.As(err, &fault) {
		log.Errorf("generator fault: %s", fault.Error())
	}
	return err
}

// Errors lists every error reported during code generation.
func (cg *CodeGenerator) Errors() []string {
	return cg.errors
}

func (cg *CodeGenerator) faultf(format string, args ...interface{}) error {
	fault := &FaultError{Msg: fmt.Sprintf(format, args...)}
	if cg.currentClass != nil {
		fault.Class = cg.currentClass.Name
	}
	fault.Method = cg.currentMethod
	return fault
}

// valueType maps a COOL type to the LLVM type of its values. Int and Bool
// are unboxed scalars, everything else is an object reference.
func (ctx *Context) valueType(coolType string) types.Type {
	switch coolType {
	case ast.IntType, primInt:
		return types.I32
	case ast.BoolType, primBool:
		return types.I1
	case primString:
		return ctx.bytePtr
	default:
		return ctx.objPtr
	}
}

// ObjectPointer is the LLVM type of every object reference.
func (ctx *Context) ObjectPointer() *types.PointerType {
	return ctx.objPtr
}

func isScalar(t types.Type) bool {
	_, ok := t.(*types.IntType)
	return ok
}

func isIntType(t types.Type) bool {
	it, ok := t.(*types.IntType)
	return ok && it.BitSize == 32
}

func isBoolType(t types.Type) bool {
	it, ok := t.(*types.IntType)
	return ok && it.BitSize == 1
}
