package codegen

import (
	"fmt"
	"math"

	"cool-codegen/ast"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// activation is the per-function state of a method or constructor body.
// Allocas go to the entry block, which branches to start once the body is
// complete.
type activation struct {
	entry *ir.Block
	start *ir.Block
}

func (cg *CodeGenerator) beginActivation(c *ClassNode, method string, fn *ir.Func) *activation {
	cg.currentClass = c
	cg.currentMethod = method
	cg.currentFunc = fn
	cg.env = NewEnvironment(c)
	cg.allocaCount = 0

	act := &activation{
		entry: fn.NewBlock("entry"),
		start: fn.NewBlock("start"),
	}
	cg.entryBlock = act.entry
	cg.currentBlock = act.start
	return act
}

func (cg *CodeGenerator) endActivation(act *activation) {
	act.entry.NewBr(act.start)
	cg.currentClass = nil
	cg.currentMethod = ""
	cg.currentFunc = nil
	cg.currentBlock = nil
	cg.entryBlock = nil
	cg.env = nil
}

// newLocal allocates a stack slot in the entry block.
func (cg *CodeGenerator) newLocal(name, typeName string, typ types.Type) *Location {
	addr := cg.entryBlock.NewAlloca(typ)
	addr.SetName(cg.env.NewTemp())
	cg.allocaCount++
	return &Location{Kind: LocalVar, Name: name, TypeName: typeName, Type: typ, Addr: addr}
}

// bindSelf stores the receiver in a slot and binds self to it.
func (cg *CodeGenerator) bindSelf(self value.Value) {
	loc := cg.newLocal(ast.SelfName, ast.SelfType, cg.ctx.objPtr)
	cg.currentBlock.NewStore(self, loc.Addr)
	cg.env.Bind(ast.SelfName, loc)
}

func (cg *CodeGenerator) loadSelf() (value.Value, error) {
	loc, err := cg.env.Resolve(ast.SelfName)
	if err != nil {
		return nil, cg.faultf("self is not bound")
	}
	return cg.currentBlock.NewLoad(loc.Type, loc.Addr), nil
}

// generateMethodImplementation emits the body of a user method.
func (cg *CodeGenerator) generateMethodImplementation(c *ClassNode, method *ast.Method) error {
	slot, ok := c.Slot(method.Name.Value)
	if !ok || slot.Owner != c {
		return &FaultError{Class: c.Name, Method: method.Name.Value, Msg: "method has no vtable slot"}
	}
	if method.Body == nil {
		return &FaultError{Class: c.Name, Method: method.Name.Value, Msg: "method has no body"}
	}
	fn := slot.Func
	act := cg.beginActivation(c, method.Name.Value, fn)
	log.Debugf("generating %s: %s", fn.Name(), ast.SerializeExpression(method.Body))

	cg.bindSelf(fn.Params[0])
	for i, formal := range method.Formals {
		param := fn.Params[i+1]
		loc := cg.newLocal(formal.Name.Value, formal.TypeDecl.Value, param.Type())
		cg.currentBlock.NewStore(param, loc.Addr)
		cg.env.Bind(formal.Name.Value, loc)
	}

	result, err := cg.generateExpression(method.Body)
	if err != nil {
		return err
	}
	cg.currentBlock.NewRet(cg.conform(result, fn.Sig.RetType))

	log.Debugf("generated %s (%d locals)", fn.Name(), cg.allocaCount)
	cg.endActivation(act)
	return nil
}

// conform re-views v as a value of type target, boxing or unboxing Int and
// Bool at the boundary between scalar and reference positions.
func (cg *CodeGenerator) conform(v value.Value, target types.Type) value.Value {
	from := v.Type()
	if from.Equal(target) {
		return v
	}
	switch {
	case isScalar(from) && !isScalar(target):
		boxed := cg.box(v)
		if target.Equal(cg.ctx.objPtr) {
			return boxed
		}
		return cg.currentBlock.NewBitCast(boxed, target)
	case !isScalar(from) && isIntType(target):
		return cg.unbox(v, ast.IntType)
	case !isScalar(from) && isBoolType(target):
		return cg.unbox(v, ast.BoolType)
	case !isScalar(from) && !isScalar(target):
		return cg.currentBlock.NewBitCast(v, target)
	}
	return v
}

func (cg *CodeGenerator) box(v value.Value) value.Value {
	className := ast.IntType
	if isBoolType(v.Type()) {
		className = ast.BoolType
	}
	class, _ := cg.ctx.Classes.Lookup(className)
	obj := cg.currentBlock.NewCall(class.Ctor)
	typed := cg.currentBlock.NewBitCast(obj, types.NewPointer(class.Type))
	cg.currentBlock.NewStore(v, cg.fieldAddr(class, typed, 1))
	return obj
}

func (cg *CodeGenerator) unbox(ref value.Value, className string) value.Value {
	class, _ := cg.ctx.Classes.Lookup(className)
	typed := cg.currentBlock.NewBitCast(ref, types.NewPointer(class.Type))
	return cg.currentBlock.NewLoad(class.Attrs[0].Type, cg.fieldAddr(class, typed, 1))
}

// fieldAddr addresses field of an object already cast to class's layout.
func (cg *CodeGenerator) fieldAddr(class *ClassNode, obj value.Value, field int) value.Value {
	return cg.currentBlock.NewGetElementPtr(class.Type, obj,
		constant.NewInt(types.I32, 0),
		constant.NewInt(types.I32, int64(field)))
}

// tagOf loads the run-time tag from an object's header.
func (cg *CodeGenerator) tagOf(ref value.Value) value.Value {
	zero := constant.NewInt(types.I32, 0)
	addr := cg.currentBlock.NewGetElementPtr(cg.ctx.objType, ref, zero, zero, zero)
	return cg.currentBlock.NewLoad(types.I32, addr)
}

// defaultValue is the initial value of an uninitialized slot of coolType.
func (cg *CodeGenerator) defaultValue(coolType string) value.Value {
	switch coolType {
	case ast.IntType, primInt:
		return constant.NewInt(types.I32, 0)
	case ast.BoolType, primBool:
		return constant.False
	case ast.StringType:
		return cg.ctx.Pool.Literal("")
	case primString:
		return cg.ctx.Pool.BytesRef(cg.ctx.Pool.Intern(""))
	default:
		return constant.NewNull(cg.ctx.objPtr)
	}
}

// generateExpression lowers expr into the current block and returns its
// value typed after the expression's static type.
func (cg *CodeGenerator) generateExpression(expr ast.Expression) (value.Value, error) {
	var v value.Value
	var err error

	switch e := expr.(type) {
	case *ast.IntegerLiteral:
		if e.Value < math.MinInt32 || e.Value > math.MaxInt32 {
			return nil, cg.faultf("integer literal %d does not fit in 32 bits", e.Value)
		}
		v = constant.NewInt(types.I32, e.Value)
	case *ast.BooleanLiteral:
		v = constant.False
		if e.Value {
			v = constant.True
		}
	case *ast.StringLiteral:
		v = cg.ctx.Pool.Literal(e.Value)
	case *ast.ObjectIdentifier:
		v, err = cg.generateObjectIdentifier(e)
	case *ast.Assignment:
		v, err = cg.generateAssignment(e)
	case *ast.BinaryExpression:
		v, err = cg.generateBinaryExpression(e)
	case *ast.UnaryExpression:
		v, err = cg.generateUnaryExpression(e)
	case *ast.IfExpression:
		v, err = cg.generateIfExpression(e)
	case *ast.WhileExpression:
		v, err = cg.generateWhileExpression(e)
	case *ast.BlockExpression:
		v, err = cg.generateBlockExpression(e)
	case *ast.LetExpression:
		v, err = cg.generateLetExpression(e)
	case *ast.CaseExpression:
		v, err = cg.generateCaseExpression(e)
	case *ast.NewExpression:
		v, err = cg.generateNewExpression(e)
	case *ast.IsVoidExpression:
		v, err = cg.generateIsVoidExpression(e)
	case *ast.DispatchExpression:
		v, err = cg.generateDispatch(e)
	case nil:
		return nil, cg.faultf("missing expression")
	default:
		return nil, cg.faultf("unsupported expression type: %T", expr)
	}
	if err != nil {
		return nil, err
	}

	if t := expr.ExprType(); t != "" {
		v = cg.conform(v, cg.ctx.valueType(t))
	}
	return v, nil
}

func (cg *CodeGenerator) generateObjectIdentifier(obj *ast.ObjectIdentifier) (value.Value, error) {
	loc, err := cg.env.Resolve(obj.Value)
	if err != nil {
		return nil, cg.faultf("%v", err)
	}
	addr, err := cg.address(loc)
	if err != nil {
		return nil, err
	}
	return cg.currentBlock.NewLoad(loc.Type, addr), nil
}

// address returns a pointer to the storage behind loc.
func (cg *CodeGenerator) address(loc *Location) (value.Value, error) {
	if loc.Kind == LocalVar {
		return loc.Addr, nil
	}
	self, err := cg.loadSelf()
	if err != nil {
		return nil, err
	}
	typed := cg.currentBlock.NewBitCast(self, types.NewPointer(cg.currentClass.Type))
	return cg.fieldAddr(cg.currentClass, typed, loc.Field), nil
}

func (cg *CodeGenerator) generateAssignment(assign *ast.Assignment) (value.Value, error) {
	if assign.Name.Value == ast.SelfName {
		return nil, cg.faultf("cannot assign to self")
	}
	loc, err := cg.env.Resolve(assign.Name.Value)
	if err != nil {
		return nil, cg.faultf("%v", err)
	}

	val, err := cg.generateExpression(assign.Value)
	if err != nil {
		return nil, fmt.Errorf("error generating assigned value: %w", err)
	}
	stored := cg.conform(val, loc.Type)

	addr, err := cg.address(loc)
	if err != nil {
		return nil, err
	}
	cg.currentBlock.NewStore(stored, addr)
	return stored, nil
}

func (cg *CodeGenerator) generateBinaryExpression(binary *ast.BinaryExpression) (value.Value, error) {
	left, err := cg.generateExpression(binary.Left)
	if err != nil {
		return nil, fmt.Errorf("error generating left operand: %w", err)
	}
	right, err := cg.generateExpression(binary.Right)
	if err != nil {
		return nil, fmt.Errorf("error generating right operand: %w", err)
	}

	if binary.Operator == "=" {
		return cg.generateEquality(binary, left, right), nil
	}

	left = cg.conform(left, types.I32)
	right = cg.conform(right, types.I32)
	block := cg.currentBlock

	switch binary.Operator {
	case "+":
		return block.NewAdd(left, right), nil
	case "-":
		return block.NewSub(left, right), nil
	case "*":
		return block.NewMul(left, right), nil
	case "/":
		isZero := block.NewICmp(enum.IPredEQ, right, constant.NewInt(types.I32, 0))
		cg.guard(isZero, cg.where()+": division by zero\n")
		// sdiv of INT_MIN by -1 is undefined; negation wraps instead.
		block = cg.currentBlock
		byNegOne := block.NewICmp(enum.IPredEQ, right, constant.NewInt(types.I32, -1))
		divisor := block.NewSelect(byNegOne, constant.NewInt(types.I32, 1), right)
		negated := block.NewSub(constant.NewInt(types.I32, 0), left)
		return block.NewSelect(byNegOne, negated, block.NewSDiv(left, divisor)), nil
	case "<":
		return block.NewICmp(enum.IPredSLT, left, right), nil
	case "<=":
		return block.NewICmp(enum.IPredSLE, left, right), nil
	default:
		return nil, cg.faultf("unsupported binary operator: %s", binary.Operator)
	}
}

// generateEquality compares Int, Bool and String by value and all other
// objects by identity. When neither static type is basic the operands may
// still hold basic objects, so the comparison falls back to their tags.
func (cg *CodeGenerator) generateEquality(binary *ast.BinaryExpression, left, right value.Value) value.Value {
	if isScalar(left.Type()) && isScalar(right.Type()) && left.Type().Equal(right.Type()) {
		return cg.currentBlock.NewICmp(enum.IPredEQ, left, right)
	}

	left = cg.conform(left, cg.ctx.objPtr)
	right = cg.conform(right, cg.ctx.objPtr)
	if binary.Left.ExprType() == ast.StringType && binary.Right.ExprType() == ast.StringType {
		return cg.stringEquals(left, right)
	}
	return cg.objectEquals(left, right)
}

// stringEquals compares the contents of two non-void String objects.
func (cg *CodeGenerator) stringEquals(left, right value.Value) value.Value {
	str, _ := cg.ctx.Classes.Lookup(ast.StringType)
	chars := func(ref value.Value) value.Value {
		typed := cg.currentBlock.NewBitCast(ref, types.NewPointer(str.Type))
		return cg.currentBlock.NewLoad(cg.ctx.bytePtr, cg.fieldAddr(str, typed, 1))
	}
	lval, rval := chars(left), chars(right)
	cmp := cg.currentBlock.NewCall(cg.ctx.Runtime.Strcmp, lval, rval)
	return cg.currentBlock.NewICmp(enum.IPredEQ, cmp, constant.NewInt(types.I32, 0))
}

// objectEquals is true for identical references, and for two boxed values
// or strings of the same class with equal contents.
func (cg *CodeGenerator) objectEquals(left, right value.Value) value.Value {
	null := constant.NewNull(cg.ctx.objPtr)
	result := cg.newLocal("eq.result", ast.BoolType, types.I1)
	same := cg.currentBlock.NewICmp(enum.IPredEQ, left, right)
	cg.currentBlock.NewStore(same, result.Addr)

	label := cg.env.NewLabel("eq")
	deepBlock := cg.currentFunc.NewBlock(label + ".deep")
	tagsBlock := cg.currentFunc.NewBlock(label + ".tags")
	valuesBlock := cg.currentFunc.NewBlock(label + ".values")
	doneBlock := cg.currentFunc.NewBlock(label + ".done")
	cg.currentBlock.NewCondBr(same, doneBlock, deepBlock)

	// The result slot holds false on every path out of here unless a
	// content comparison overwrites it.
	cg.currentBlock = deepBlock
	eitherVoid := deepBlock.NewOr(
		deepBlock.NewICmp(enum.IPredEQ, left, null),
		deepBlock.NewICmp(enum.IPredEQ, right, null))
	deepBlock.NewCondBr(eitherVoid, doneBlock, tagsBlock)

	cg.currentBlock = tagsBlock
	tag := cg.tagOf(left)
	sameTag := cg.currentBlock.NewICmp(enum.IPredEQ, tag, cg.tagOf(right))
	cg.currentBlock.NewCondBr(sameTag, valuesBlock, doneBlock)

	var cases []*ir.Case
	for _, basic := range []string{ast.IntType, ast.BoolType, ast.StringType} {
		class, _ := cg.ctx.Classes.Lookup(basic)
		block := cg.currentFunc.NewBlock(label + "." + basic)
		cases = append(cases, ir.NewCase(constant.NewInt(types.I32, int64(class.Tag)), block))

		cg.currentBlock = block
		var eq value.Value
		if basic == ast.StringType {
			eq = cg.stringEquals(left, right)
		} else {
			eq = cg.currentBlock.NewICmp(enum.IPredEQ, cg.unbox(left, basic), cg.unbox(right, basic))
		}
		cg.currentBlock.NewStore(eq, result.Addr)
		cg.currentBlock.NewBr(doneBlock)
	}
	valuesBlock.NewSwitch(tag, doneBlock, cases...)

	cg.currentBlock = doneBlock
	return doneBlock.NewLoad(types.I1, result.Addr)
}

func (cg *CodeGenerator) generateUnaryExpression(unary *ast.UnaryExpression) (value.Value, error) {
	operand, err := cg.generateExpression(unary.Right)
	if err != nil {
		return nil, fmt.Errorf("error generating unary operand: %w", err)
	}

	switch unary.Operator {
	case "~":
		operand = cg.conform(operand, types.I32)
		return cg.currentBlock.NewSub(constant.NewInt(types.I32, 0), operand), nil
	case "not":
		operand = cg.conform(operand, types.I1)
		return cg.currentBlock.NewXor(operand, constant.True), nil
	default:
		return nil, cg.faultf("unsupported unary operator: %s", unary.Operator)
	}
}

func (cg *CodeGenerator) generateIsVoidExpression(isVoid *ast.IsVoidExpression) (value.Value, error) {
	operand, err := cg.generateExpression(isVoid.Expression)
	if err != nil {
		return nil, fmt.Errorf("error generating isvoid operand: %w", err)
	}
	if isScalar(operand.Type()) {
		return constant.False, nil
	}
	ref := cg.conform(operand, cg.ctx.objPtr)
	return cg.currentBlock.NewICmp(enum.IPredEQ, ref, constant.NewNull(cg.ctx.objPtr)), nil
}
