package codegen

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// Runtime holds the C functions generated code calls. The basic class
// methods are declared by the layout pass like any other method and are
// resolved at link time.
type Runtime struct {
	Abort  *ir.Func
	Malloc *ir.Func
	Printf *ir.Func
	Strcmp *ir.Func
}

func declareRuntime(ctx *Context) *Runtime {
	m := ctx.Module
	rt := &Runtime{}

	rt.Abort = m.NewFunc("abort", types.Void)

	rt.Malloc = m.NewFunc("malloc", ctx.bytePtr,
		ir.NewParam("size", types.I64))

	// printf - variadic function
	rt.Printf = m.NewFunc("printf", types.I32,
		ir.NewParam("format", ctx.bytePtr))
	rt.Printf.Sig.Variadic = true

	rt.Strcmp = m.NewFunc("strcmp", types.I32,
		ir.NewParam("s1", ctx.bytePtr),
		ir.NewParam("s2", ctx.bytePtr))

	for _, fn := range []*ir.Func{rt.Abort, rt.Malloc, rt.Printf, rt.Strcmp} {
		fn.Linkage = enum.LinkageExternal
	}
	return rt
}

// emitAbort terminates block with a diagnostic and a call to abort.
func (cg *CodeGenerator) emitAbort(block *ir.Block, msg string) {
	text := cg.ctx.Pool.Intern(msg)
	block.NewCall(cg.ctx.Runtime.Printf, cg.ctx.Pool.BytesRef(text))
	block.NewCall(cg.ctx.Runtime.Abort)
	block.NewUnreachable()
}

// guard branches to a fresh abort block when cond holds and continues in a
// new ok block otherwise.
func (cg *CodeGenerator) guard(cond value.Value, msg string) {
	ok := cg.env.NewGuard()
	okBlock := cg.currentFunc.NewBlock(ok)
	failBlock := cg.currentFunc.NewBlock(ok + ".fail")
	cg.currentBlock.NewCondBr(cond, failBlock, okBlock)
	cg.emitAbort(failBlock, msg)
	cg.currentBlock = okBlock
}

// guardVoid aborts when ref is the null object.
func (cg *CodeGenerator) guardVoid(ref value.Value, what string) {
	isNull := cg.currentBlock.NewICmp(enum.IPredEQ, ref, constant.NewNull(cg.ctx.objPtr))
	cg.guard(isNull, cg.where()+": "+what+"\n")
}

// where names the method being generated for run-time diagnostics.
func (cg *CodeGenerator) where() string {
	if cg.currentClass == nil {
		return "main"
	}
	return cg.currentClass.Name + "." + cg.currentMethod
}
