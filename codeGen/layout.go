package codegen

import (
	"fmt"

	"cool-codegen/ast"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
)

// AttributeSlot places an attribute in the object struct. Field 0 is the
// header, so attributes start at 1.
type AttributeSlot struct {
	Name     string
	TypeName string
	Field    int
	Type     types.Type
	Owner    *ClassNode
	Attr     *ast.Attribute
}

// VTableSlot binds a method name to a fixed index. FuncType is fixed by the
// class that introduced the name; Func is the implementation the owning
// class installs there.
type VTableSlot struct {
	Name     string
	Index    int
	Owner    *ClassNode
	Method   *ast.Method
	Func     *ir.Func
	FuncType *types.PointerType
}

// layoutClass computes the attribute and vtable layout of c from its
// parent's and emits the class's types and method declarations. The parent
// must already be laid out.
func (cg *CodeGenerator) layoutClass(c *ClassNode) error {
	ctx := cg.ctx
	c.attrIndex = make(map[string]int)
	c.slotIndex = make(map[string]int)

	if parent := ctx.Classes.Parent(c); parent != nil {
		if !parent.laidOut {
			return &FaultError{Class: c.Name, Msg: fmt.Sprintf("parent %s has no layout", parent.Name)}
		}
		c.Attrs = append([]*AttributeSlot(nil), parent.Attrs...)
		for name, i := range parent.attrIndex {
			c.attrIndex[name] = i
		}
		c.VTable = append([]*VTableSlot(nil), parent.VTable...)
		for name, i := range parent.slotIndex {
			c.slotIndex[name] = i
		}
	}

	for _, attr := range c.Attributes() {
		name := attr.Name.Value
		if _, exists := c.attrIndex[name]; exists {
			return &FaultError{Class: c.Name, Msg: fmt.Sprintf("attribute %s is already defined", name)}
		}
		slot := &AttributeSlot{
			Name:     name,
			TypeName: attr.TypeDecl.Value,
			Field:    len(c.Attrs) + 1,
			Type:     ctx.valueType(attr.TypeDecl.Value),
			Owner:    c,
			Attr:     attr,
		}
		c.attrIndex[name] = len(c.Attrs)
		c.Attrs = append(c.Attrs, slot)
	}

	if c.Name == ast.ObjectType {
		c.Type = ctx.objType
	} else {
		fields := []types.Type{ctx.headerType}
		for _, a := range c.Attrs {
			fields = append(fields, a.Type)
		}
		c.Type = types.NewStruct(fields...)
		ctx.Module.NewTypeDef(c.Name, c.Type)
	}

	for _, m := range c.Methods() {
		if err := cg.placeMethod(c, m); err != nil {
			return err
		}
	}

	slotTypes := make([]types.Type, len(c.VTable))
	for i, slot := range c.VTable {
		slotTypes[i] = slot.FuncType
	}
	c.VTableType = types.NewStruct(slotTypes...)
	ctx.Module.NewTypeDef(c.Name+".vtable_type", c.VTableType)

	entries := make([]constant.Constant, len(c.VTable))
	for i, slot := range c.VTable {
		var impl constant.Constant = slot.Func
		if !slot.Func.Type().Equal(slot.FuncType) {
			impl = constant.NewBitCast(slot.Func, slot.FuncType)
		}
		entries[i] = impl
	}
	c.VTableGlobal = ctx.Module.NewGlobalDef(c.Name+".vtable", constant.NewStruct(c.VTableType, entries...))
	c.VTableGlobal.Immutable = true

	c.Ctor = ctx.Module.NewFunc(c.Name+"_new", ctx.objPtr)
	c.laidOut = true
	return nil
}

// placeMethod declares the function implementing m in c and installs it in
// the vtable, reusing the slot of an inherited name.
func (cg *CodeGenerator) placeMethod(c *ClassNode, m *ast.Method) error {
	ctx := cg.ctx
	name := m.Name.Value

	params := []*ir.Param{ir.NewParam(ast.SelfName, ctx.objPtr)}
	for _, f := range m.Formals {
		params = append(params, ir.NewParam(f.Name.Value, ctx.valueType(f.TypeDecl.Value)))
	}
	fn := ctx.Module.NewFunc(c.Name+"_"+name, ctx.valueType(m.TypeDecl.Value), params...)

	if i, exists := c.slotIndex[name]; exists {
		inherited := c.VTable[i]
		if inherited.Owner == c {
			return &FaultError{Class: c.Name, Method: name, Msg: "method is defined twice"}
		}
		if !fn.Sig.Equal(inherited.FuncType.ElemType) {
			return &FaultError{Class: c.Name, Method: name,
				Msg: fmt.Sprintf("override does not match the signature from %s", inherited.Owner.Name)}
		}
		c.VTable[i] = &VTableSlot{
			Name:     name,
			Index:    i,
			Owner:    c,
			Method:   m,
			Func:     fn,
			FuncType: inherited.FuncType,
		}
		return nil
	}

	c.slotIndex[name] = len(c.VTable)
	c.VTable = append(c.VTable, &VTableSlot{
		Name:     name,
		Index:    len(c.VTable),
		Owner:    c,
		Method:   m,
		Func:     fn,
		FuncType: types.NewPointer(fn.Sig),
	})
	return nil
}

// sizeOf is the store size of t as a constant expression.
func sizeOf(t types.Type) constant.Constant {
	null := constant.NewNull(types.NewPointer(t))
	end := constant.NewGetElementPtr(t, null, constant.NewInt(types.I32, 1))
	return constant.NewPtrToInt(end, types.I64)
}

// header builds the constant object header for c.
func (ctx *Context) header(c *ClassNode) constant.Constant {
	return constant.NewStruct(ctx.headerType,
		constant.NewInt(types.I32, int64(c.Tag)),
		constant.NewBitCast(c.VTableGlobal, ctx.bytePtr),
	)
}

// emitClassTable defines a String object with each class name and the
// tag-indexed descriptor table the runtime uses for type_name and copy.
func (cg *CodeGenerator) emitClassTable() {
	ctx := cg.ctx
	entryType := types.NewStruct(ctx.bytePtr, types.I64, ctx.bytePtr, types.I32)
	ctx.Module.NewTypeDef("class.entry", entryType)

	classes := ctx.Classes.Classes()
	rows := make([]constant.Constant, len(classes))
	for i, c := range classes {
		name := ctx.Pool.Intern(c.Name)
		c.NameGlobal = ctx.Module.NewGlobalDef(c.Name+".name", ctx.Pool.stringObject(name))
		c.NameGlobal.Immutable = true

		rows[i] = constant.NewStruct(entryType,
			ctx.Pool.BytesRef(name),
			sizeOf(c.Type),
			constant.NewBitCast(c.VTableGlobal, ctx.bytePtr),
			constant.NewInt(types.I32, int64(c.MaxChildTag)),
		)
	}
	table := ctx.Module.NewGlobalDef("class.table",
		constant.NewArray(types.NewArray(uint64(len(rows)), entryType), rows...))
	table.Immutable = true
}
