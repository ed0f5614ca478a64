package codegen

import (
	"fmt"

	"cool-codegen/ast"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// staticClass resolves the class whose layout describes a value of static
// type typeName. SELF_TYPE means the class being generated.
func (cg *CodeGenerator) staticClass(typeName string) (*ClassNode, error) {
	if typeName == ast.SelfType || typeName == "" {
		return cg.currentClass, nil
	}
	class, ok := cg.ctx.Classes.Lookup(typeName)
	if !ok {
		return nil, cg.faultf("undefined class %s", typeName)
	}
	return class, nil
}

// generateDispatch lowers receiver.method(args) and receiver@T.method(args).
// The receiver is evaluated first, then arguments left to right.
func (cg *CodeGenerator) generateDispatch(dispatch *ast.DispatchExpression) (value.Value, error) {
	var recv value.Value
	var recvType string
	var err error

	if dispatch.Object != nil {
		recv, err = cg.generateExpression(dispatch.Object)
		if err != nil {
			return nil, fmt.Errorf("error generating dispatch object: %w", err)
		}
		recvType = dispatch.Object.ExprType()
	} else {
		// Self dispatch
		recv, err = cg.loadSelf()
		if err != nil {
			return nil, err
		}
		recvType = ast.SelfType
	}

	args := make([]value.Value, 0, len(dispatch.Arguments)+1)
	args = append(args, nil)
	for i, arg := range dispatch.Arguments {
		v, err := cg.generateExpression(arg)
		if err != nil {
			return nil, fmt.Errorf("error generating dispatch argument %d: %w", i+1, err)
		}
		args = append(args, v)
	}

	ref := cg.conform(recv, cg.ctx.objPtr)
	cg.guardVoid(ref, "dispatch to void")

	var class *ClassNode
	if dispatch.StaticType != nil {
		class, err = cg.staticClass(dispatch.StaticType.Value)
	} else {
		class, err = cg.staticClass(recvType)
	}
	if err != nil {
		return nil, err
	}
	slot, ok := class.Slot(dispatch.Method.Value)
	if !ok {
		return nil, cg.faultf("method %s not found in class %s or any ancestor (in %s)",
			dispatch.Method.Value, class.Name, ast.SerializeExpression(dispatch))
	}

	sig := slot.FuncType.ElemType.(*types.FuncType)
	if len(sig.Params) != len(args) {
		return nil, cg.faultf("%s.%s expects %d arguments, got %d",
			class.Name, slot.Name, len(sig.Params)-1, len(args)-1)
	}
	args[0] = ref
	for i := 1; i < len(args); i++ {
		args[i] = cg.conform(args[i], sig.Params[i])
	}

	var callee value.Value
	if dispatch.StaticType != nil {
		callee = slot.Func
	} else {
		callee = cg.loadVTableEntry(ref, class, slot)
	}
	return cg.currentBlock.NewCall(callee, args...), nil
}

// loadVTableEntry fetches slot's implementation from the receiver's own
// vtable, viewed through class's vtable layout.
func (cg *CodeGenerator) loadVTableEntry(ref value.Value, class *ClassNode, slot *VTableSlot) value.Value {
	block := cg.currentBlock
	zero := constant.NewInt(types.I32, 0)
	vtAddr := block.NewGetElementPtr(cg.ctx.objType, ref, zero, zero, constant.NewInt(types.I32, 1))
	rawVT := block.NewLoad(cg.ctx.bytePtr, vtAddr)
	vt := block.NewBitCast(rawVT, types.NewPointer(class.VTableType))
	entryAddr := block.NewGetElementPtr(class.VTableType, vt, zero, constant.NewInt(types.I32, int64(slot.Index)))
	return block.NewLoad(slot.FuncType, entryAddr)
}

func (cg *CodeGenerator) generateNewExpression(newExpr *ast.NewExpression) (value.Value, error) {
	if newExpr.Type.Value == ast.SelfType {
		return cg.generateNewSelfType()
	}
	class, ok := cg.ctx.Classes.Lookup(newExpr.Type.Value)
	if !ok {
		return nil, cg.faultf("new of undefined class %s", newExpr.Type.Value)
	}
	return cg.currentBlock.NewCall(class.Ctor), nil
}

// generateNewSelfType picks the constructor from self's run-time tag. Only
// tags in the current class's subtree can occur.
func (cg *CodeGenerator) generateNewSelfType() (value.Value, error) {
	self, err := cg.loadSelf()
	if err != nil {
		return nil, err
	}
	tag := cg.tagOf(self)
	current := cg.currentClass
	result := cg.newLocal("new.result", ast.SelfType, cg.ctx.objPtr)

	label := cg.env.NewLabel("new")
	mergeBlock := cg.currentFunc.NewBlock(label + ".merge")
	failBlock := cg.currentFunc.NewBlock(label + ".fail")

	var cases []*ir.Case
	for t := current.Tag; t <= current.MaxChildTag; t++ {
		class, ok := cg.ctx.Classes.ByTag(t)
		if !ok {
			return nil, cg.faultf("no class has tag %d", t)
		}
		block := cg.currentFunc.NewBlock(fmt.Sprintf("%s.%s", label, class.Name))
		obj := block.NewCall(class.Ctor)
		block.NewStore(obj, result.Addr)
		block.NewBr(mergeBlock)
		cases = append(cases, ir.NewCase(constant.NewInt(types.I32, int64(t)), block))
	}
	cg.currentBlock.NewSwitch(tag, failBlock, cases...)
	cg.emitAbort(failBlock, cg.where()+": new SELF_TYPE on unknown class tag\n")

	cg.currentBlock = mergeBlock
	return mergeBlock.NewLoad(cg.ctx.objPtr, result.Addr), nil
}

// generateConstructor emits C_new: allocate, write the header, store every
// attribute's default, then run the initializers in layout order.
func (cg *CodeGenerator) generateConstructor(c *ClassNode) error {
	ctx := cg.ctx
	act := cg.beginActivation(c, "new", c.Ctor)
	block := cg.currentBlock

	raw := block.NewCall(ctx.Runtime.Malloc, sizeOf(c.Type))
	obj := block.NewBitCast(raw, types.NewPointer(c.Type))

	zero := constant.NewInt(types.I32, 0)
	tagAddr := block.NewGetElementPtr(c.Type, obj, zero, zero, zero)
	block.NewStore(constant.NewInt(types.I32, int64(c.Tag)), tagAddr)
	vtAddr := block.NewGetElementPtr(c.Type, obj, zero, zero, constant.NewInt(types.I32, 1))
	block.NewStore(constant.NewBitCast(c.VTableGlobal, ctx.bytePtr), vtAddr)

	for _, attr := range c.Attrs {
		def := cg.conform(cg.defaultValue(attr.TypeName), attr.Type)
		cg.currentBlock.NewStore(def, cg.fieldAddr(c, obj, attr.Field))
	}

	self := cg.currentBlock.NewBitCast(obj, ctx.objPtr)
	cg.bindSelf(self)

	for _, attr := range c.Attrs {
		if attr.Attr.Init == nil {
			continue
		}
		v, err := cg.generateExpression(attr.Attr.Init)
		if err != nil {
			return fmt.Errorf("error generating initializer of %s.%s: %w", c.Name, attr.Name, err)
		}
		stored := cg.conform(v, attr.Type)
		typed := cg.currentBlock.NewBitCast(self, types.NewPointer(c.Type))
		cg.currentBlock.NewStore(stored, cg.fieldAddr(c, typed, attr.Field))
	}

	cg.currentBlock.NewRet(self)
	cg.endActivation(act)
	return nil
}
