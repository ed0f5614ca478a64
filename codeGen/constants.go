package codegen

import (
	"fmt"

	"cool-codegen/ast"
	"cool-codegen/symtab"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
)

// Entry is one pooled string literal. Bytes is the NUL-terminated
// character data; Object is the constant String instance wrapping it and
// is only created once a String value is needed.
type Entry struct {
	ID     symtab.Symbol
	Value  string
	Bytes  *ir.Global
	Object *ir.Global
}

// ConstantPool deduplicates string literals by value. Integers and booleans
// are never pooled; they are immediates at their use site.
type ConstantPool struct {
	ctx     *Context
	entries map[symtab.Symbol]*Entry
	order   []*Entry
}

func NewConstantPool(ctx *Context) *ConstantPool {
	return &ConstantPool{
		ctx:     ctx,
		entries: make(map[symtab.Symbol]*Entry),
	}
}

// Intern returns the entry for s, allocating its byte array the first time
// s is seen.
func (p *ConstantPool) Intern(s string) *Entry {
	id := p.ctx.Literals.Intern(s)
	if e, ok := p.entries[id]; ok {
		return e
	}
	bytes := p.ctx.Module.NewGlobalDef(fmt.Sprintf("str.%d", id), constant.NewCharArrayFromString(s+"\x00"))
	bytes.Immutable = true
	bytes.Linkage = enum.LinkagePrivate

	e := &Entry{ID: id, Value: s, Bytes: bytes}
	p.entries[id] = e
	p.order = append(p.order, e)
	return e
}

// BytesRef is an i8* to the first character of e.
func (p *ConstantPool) BytesRef(e *Entry) constant.Constant {
	zero := constant.NewInt(types.I64, 0)
	return constant.NewGetElementPtr(e.Bytes.ContentType, e.Bytes, zero, zero)
}

// ObjectRef is an Object* to the constant String instance for e. The
// instance's initializer is filled in by Emit.
func (p *ConstantPool) ObjectRef(e *Entry) constant.Constant {
	if e.Object == nil {
		str, ok := p.ctx.Classes.Lookup(ast.StringType)
		if !ok || !str.laidOut {
			panic("constant pool: String objects requested before layout")
		}
		e.Object = p.ctx.Module.NewGlobal(fmt.Sprintf("String.obj.%d", e.ID), str.Type)
		e.Object.Immutable = true
	}
	return constant.NewBitCast(e.Object, p.ctx.objPtr)
}

// Literal interns s and returns it as a String object reference.
func (p *ConstantPool) Literal(s string) constant.Constant {
	return p.ObjectRef(p.Intern(s))
}

// stringObject is a constant String instance whose val points at e.
func (p *ConstantPool) stringObject(e *Entry) constant.Constant {
	str, _ := p.ctx.Classes.Lookup(ast.StringType)
	return constant.NewStruct(str.Type, p.ctx.header(str), p.BytesRef(e))
}

// Emit defines every String instance requested so far. It runs once,
// after all code has been generated.
func (p *ConstantPool) Emit() {
	for _, e := range p.order {
		if e.Object != nil && e.Object.Init == nil {
			e.Object.Init = p.stringObject(e)
		}
	}
	log.Debugf("constant pool: %d strings", len(p.order))
}

func (p *ConstantPool) Entries() []*Entry {
	return p.order
}

func (p *ConstantPool) Len() int {
	return len(p.order)
}
