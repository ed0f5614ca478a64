package codegen

import (
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
)

// generateEntryPoint emits the C main: build the entry object, run the
// entry method once and print its result when it is an Int.
func (cg *CodeGenerator) generateEntryPoint() error {
	ctx := cg.ctx
	class, ok := ctx.Classes.Lookup(cg.opts.EntryClass)
	if !ok {
		return &FaultError{Msg: "entry class " + cg.opts.EntryClass + " is not defined"}
	}
	slot, ok := class.Slot(cg.opts.EntryMethod)
	if !ok {
		return &FaultError{Class: class.Name, Msg: "entry method " + cg.opts.EntryMethod + " is not defined"}
	}
	sig := slot.FuncType.ElemType.(*types.FuncType)
	if len(sig.Params) != 1 {
		return &FaultError{Class: class.Name, Method: slot.Name, Msg: "entry method must not take arguments"}
	}

	mainFunc := ctx.Module.NewFunc("main", types.I32)
	entry := mainFunc.NewBlock("entry")

	obj := entry.NewCall(class.Ctor)
	result := entry.NewCall(slot.Func, obj)

	if cg.opts.PrintResult && isIntType(sig.RetType) {
		format := ctx.Pool.Intern("%d\n")
		entry.NewCall(ctx.Runtime.Printf, ctx.Pool.BytesRef(format), result)
	}

	entry.NewRet(constant.NewInt(types.I32, 0))
	log.Debugf("entry point calls %s", slot.Func.Name())
	return nil
}
