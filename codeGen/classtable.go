package codegen

import (
	"fmt"

	"cool-codegen/ast"
	"cool-codegen/symtab"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
)

// Primitive slot types used by the basic classes. They never appear in
// user programs.
const (
	primInt    = "prim_int"
	primBool   = "prim_bool"
	primString = "prim_string"
)

const noParent = -1

// ClassNode is one class in the inheritance tree. Nodes live in the
// ClassTable arena and refer to each other by index.
type ClassNode struct {
	Name  string
	Sym   symtab.Symbol
	Class *ast.Class
	Basic bool

	index    int
	parent   int
	children []int

	// Written once by Setup.
	Tag         int
	MaxChildTag int
	Depth       int
	tagged      bool

	// Written once by the layout pass.
	Attrs        []*AttributeSlot
	VTable       []*VTableSlot
	attrIndex    map[string]int
	slotIndex    map[string]int
	Type         *types.StructType
	VTableType   *types.StructType
	VTableGlobal *ir.Global
	NameGlobal   *ir.Global
	Ctor         *ir.Func
	laidOut      bool
}

// Methods returns the methods declared directly in the class.
func (c *ClassNode) Methods() []*ast.Method {
	var out []*ast.Method
	for _, f := range c.Class.Features {
		if m, ok := f.(*ast.Method); ok {
			out = append(out, m)
		}
	}
	return out
}

// Attributes returns the attributes declared directly in the class.
func (c *ClassNode) Attributes() []*ast.Attribute {
	var out []*ast.Attribute
	for _, f := range c.Class.Features {
		if a, ok := f.(*ast.Attribute); ok {
			out = append(out, a)
		}
	}
	return out
}

// Attr resolves an attribute visible in the class, inherited ones included.
func (c *ClassNode) Attr(name string) (*AttributeSlot, bool) {
	i, ok := c.attrIndex[name]
	if !ok {
		return nil, false
	}
	return c.Attrs[i], true
}

// Slot resolves a method name to its vtable slot.
func (c *ClassNode) Slot(name string) (*VTableSlot, bool) {
	i, ok := c.slotIndex[name]
	if !ok {
		return nil, false
	}
	return c.VTable[i], true
}

// Contains reports whether tag belongs to the subtree rooted at c.
func (c *ClassNode) Contains(tag int) bool {
	return c.Tag <= tag && tag <= c.MaxChildTag
}

// ClassTable owns every class of one compilation run.
type ClassTable struct {
	idents *symtab.Table
	nodes  []*ClassNode
	byName map[symtab.Symbol]int
	byTag  []*ClassNode
	root   int
}

func NewClassTable(idents *symtab.Table) *ClassTable {
	return &ClassTable{
		idents: idents,
		byName: make(map[symtab.Symbol]int),
		root:   noParent,
	}
}

// Install adds a class to the table. A class whose name is already
// installed is ignored and Install reports false.
func (ct *ClassTable) Install(class *ast.Class, basic bool) bool {
	sym := ct.idents.Intern(class.Name.Value)
	if _, exists := ct.byName[sym]; exists {
		log.Debugf("ignoring duplicate definition of class %s", class.Name.Value)
		return false
	}
	node := &ClassNode{
		Name:   class.Name.Value,
		Sym:    sym,
		Class:  class,
		Basic:  basic,
		index:  len(ct.nodes),
		parent: noParent,
	}
	ct.byName[sym] = node.index
	ct.nodes = append(ct.nodes, node)
	return true
}

func (ct *ClassTable) InstallClasses(classes []*ast.Class) {
	for _, class := range classes {
		ct.Install(class, false)
	}
}

// InstallBasicClasses installs the classes the runtime provides. It must
// run before user classes are installed.
func (ct *ClassTable) InstallBasicClasses() {
	for _, class := range basicClasses() {
		ct.Install(class, true)
	}
}

// BuildInheritanceTree links every installed class to its parent. Children
// are recorded in installation order.
func (ct *ClassTable) BuildInheritanceTree() error {
	objSym, ok := ct.idents.Lookup(ast.ObjectType)
	if !ok {
		return &FaultError{Msg: "class Object is not installed"}
	}
	ct.root = ct.byName[objSym]

	for _, node := range ct.nodes {
		if node.index == ct.root {
			continue
		}
		parentName := node.Class.ParentName()
		sym, ok := ct.idents.Lookup(parentName)
		if !ok {
			return &FaultError{Class: node.Name, Msg: fmt.Sprintf("parent class %s is not defined", parentName)}
		}
		idx, ok := ct.byName[sym]
		if !ok {
			return &FaultError{Class: node.Name, Msg: fmt.Sprintf("parent class %s is not defined", parentName)}
		}
		node.parent = idx
		ct.nodes[idx].children = append(ct.nodes[idx].children, node.index)
	}
	return nil
}

// Setup assigns tags, subtree bounds and depths in one preorder walk from
// Object, then indexes the arena by tag.
func (ct *ClassTable) Setup() error {
	if ct.root == noParent {
		return &FaultError{Msg: "inheritance tree has not been built"}
	}
	next := 0
	var visit func(idx, depth int)
	visit = func(idx, depth int) {
		node := ct.nodes[idx]
		node.Tag = next
		node.Depth = depth
		node.tagged = true
		next++
		for _, child := range node.children {
			visit(child, depth+1)
		}
		node.MaxChildTag = next - 1
	}
	visit(ct.root, 0)

	ct.byTag = make([]*ClassNode, next)
	for _, node := range ct.nodes {
		if !node.tagged {
			return &FaultError{Class: node.Name, Msg: "class is not reachable from Object"}
		}
		ct.byTag[node.Tag] = node
	}
	return nil
}

func (ct *ClassTable) Lookup(name string) (*ClassNode, bool) {
	sym, ok := ct.idents.Lookup(name)
	if !ok {
		return nil, false
	}
	idx, ok := ct.byName[sym]
	if !ok {
		return nil, false
	}
	return ct.nodes[idx], true
}

func (ct *ClassTable) Root() *ClassNode {
	if ct.root == noParent {
		return nil
	}
	return ct.nodes[ct.root]
}

// Parent returns nil for Object.
func (ct *ClassTable) Parent(c *ClassNode) *ClassNode {
	if c.parent == noParent {
		return nil
	}
	return ct.nodes[c.parent]
}

func (ct *ClassTable) Children(c *ClassNode) []*ClassNode {
	out := make([]*ClassNode, len(c.children))
	for i, idx := range c.children {
		out[i] = ct.nodes[idx]
	}
	return out
}

// ByTag is only valid after Setup.
func (ct *ClassTable) ByTag(tag int) (*ClassNode, bool) {
	if tag < 0 || tag >= len(ct.byTag) {
		return nil, false
	}
	return ct.byTag[tag], true
}

// Classes lists every class in tag order, which is tree preorder.
func (ct *ClassTable) Classes() []*ClassNode {
	return ct.byTag
}

// Ancestors lists c and its ancestors, nearest first.
func (ct *ClassTable) Ancestors(c *ClassNode) []*ClassNode {
	var out []*ClassNode
	for node := c; node != nil; node = ct.Parent(node) {
		out = append(out, node)
	}
	return out
}

// IsSubclass reports whether a conforms to b.
func (ct *ClassTable) IsSubclass(a, b *ClassNode) bool {
	return b.Contains(a.Tag)
}

func (ct *ClassTable) Len() int {
	return len(ct.nodes)
}

func basicClasses() []*ast.Class {
	typeID := func(name string) *ast.TypeIdentifier {
		return &ast.TypeIdentifier{Value: name}
	}
	method := func(name, ret string, formals ...string) ast.Feature {
		m := &ast.Method{
			Name:     &ast.ObjectIdentifier{Value: name},
			TypeDecl: typeID(ret),
		}
		for i, f := range formals {
			m.Formals = append(m.Formals, &ast.Formal{
				Name:     &ast.ObjectIdentifier{Value: fmt.Sprintf("arg%d", i)},
				TypeDecl: typeID(f),
			})
		}
		return m
	}
	attr := func(name, typ string) ast.Feature {
		return &ast.Attribute{Name: &ast.ObjectIdentifier{Value: name}, TypeDecl: typeID(typ)}
	}
	class := func(name, parent string, features ...ast.Feature) *ast.Class {
		c := &ast.Class{Name: typeID(name), Features: features, Filename: "<basic class>"}
		if parent != "" {
			c.Parent = typeID(parent)
		}
		return c
	}

	return []*ast.Class{
		class(ast.ObjectType, "",
			method("abort", ast.ObjectType),
			method("type_name", ast.StringType),
			method("copy", ast.SelfType),
		),
		class(ast.IOType, ast.ObjectType,
			method("out_string", ast.SelfType, ast.StringType),
			method("out_int", ast.SelfType, ast.IntType),
			method("in_string", ast.StringType),
			method("in_int", ast.IntType),
		),
		class(ast.IntType, ast.ObjectType, attr("val", primInt)),
		class(ast.BoolType, ast.ObjectType, attr("val", primBool)),
		class(ast.StringType, ast.ObjectType,
			attr("val", primString),
			method("length", ast.IntType),
			method("concat", ast.StringType, ast.StringType),
			method("substr", ast.StringType, ast.IntType, ast.IntType),
		),
	}
}
