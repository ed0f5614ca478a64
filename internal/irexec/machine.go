// Package irexec executes LLVM modules built with llir/llvm directly from
// their in-memory form. It understands the subset of instructions the COOL
// code generator emits and supplies the C library and COOL runtime
// functions those modules declare.
package irexec

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("coolc.irexec")

const DefaultMaxSteps = 1_000_000

// ErrStepLimit is returned when a program runs longer than MaxSteps
// instructions.
var ErrStepLimit = errors.New("step limit exceeded")

// AbortError reports that the program called abort.
type AbortError struct {
	Msg string
}

func (e *AbortError) Error() string {
	if e.Msg == "" {
		return "program aborted"
	}
	return "program aborted: " + e.Msg
}

func errorf(format string, args ...interface{}) error {
	return fmt.Errorf("irexec: "+format, args...)
}

// Builtin implements an external function.
type Builtin func(m *Machine, args []Value) (Value, error)

type Machine struct {
	Stdout   io.Writer
	Stdin    io.Reader
	MaxSteps int

	module   *ir.Module
	funcs    map[string]*ir.Func
	globals  map[*ir.Global]*object
	builtins map[string]Builtin
	stdin    *bufio.Reader
	steps    int
	nextID   int
}

// New loads module. Globals are initialized immediately; output goes to
// io.Discard until Stdout is set.
func New(module *ir.Module) (*Machine, error) {
	m := &Machine{
		Stdout:   io.Discard,
		Stdin:    strings.NewReader(""),
		MaxSteps: DefaultMaxSteps,
		module:   module,
		funcs:    make(map[string]*ir.Func),
		globals:  make(map[*ir.Global]*object),
		builtins: runtimeBuiltins(),
	}
	for _, fn := range module.Funcs {
		m.funcs[fn.Name()] = fn
	}
	for _, g := range module.Globals {
		m.globals[g] = m.newObject(g.Name())
	}
	for _, g := range module.Globals {
		if g.Init == nil {
			continue
		}
		if err := m.writeConst(m.globals[g], []int64{0}, g.Init); err != nil {
			return nil, fmt.Errorf("error initializing @%s: %w", g.Name(), err)
		}
	}
	return m, nil
}

// RunMain calls main and returns its exit status.
func (m *Machine) RunMain() (int64, error) {
	v, err := m.Call("main")
	if err != nil {
		return 0, err
	}
	status, _ := v.(int64)
	return status, nil
}

// Call runs the named function to completion.
func (m *Machine) Call(name string, args ...Value) (Value, error) {
	fn, ok := m.funcs[name]
	if !ok {
		return nil, errorf("no function @%s", name)
	}
	return m.call(fn, args)
}

// Steps is the number of instructions executed so far.
func (m *Machine) Steps() int {
	return m.steps
}

func (m *Machine) call(fn *ir.Func, args []Value) (Value, error) {
	if len(fn.Blocks) == 0 {
		builtin, ok := m.builtins[fn.Name()]
		if !ok {
			return nil, errorf("external function @%s is not provided", fn.Name())
		}
		log.Debugf("builtin @%s", fn.Name())
		return builtin(m, args)
	}
	if len(args) != len(fn.Params) {
		return nil, errorf("@%s takes %d arguments, got %d", fn.Name(), len(fn.Params), len(args))
	}

	fr := &frame{m: m, locals: make(map[value.Value]Value)}
	for i, p := range fn.Params {
		fr.locals[p] = args[i]
	}

	block := fn.Blocks[0]
	for {
		for _, inst := range block.Insts {
			if err := m.tick(); err != nil {
				return nil, err
			}
			if err := fr.exec(inst); err != nil {
				return nil, fmt.Errorf("@%s %%%s: %w", fn.Name(), block.Name(), err)
			}
		}
		if err := m.tick(); err != nil {
			return nil, err
		}

		switch term := block.Term.(type) {
		case *ir.TermRet:
			if term.X == nil {
				return nil, nil
			}
			return fr.eval(term.X)
		case *ir.TermBr:
			block = asBlock(term.Target)
		case *ir.TermCondBr:
			cond, err := fr.int(term.Cond)
			if err != nil {
				return nil, err
			}
			if cond != 0 {
				block = asBlock(term.TargetTrue)
			} else {
				block = asBlock(term.TargetFalse)
			}
		case *ir.TermSwitch:
			x, err := fr.int(term.X)
			if err != nil {
				return nil, err
			}
			next := asBlock(term.TargetDefault)
			for _, c := range term.Cases {
				cx, err := fr.int(c.X)
				if err != nil {
					return nil, err
				}
				if cx == x {
					next = asBlock(c.Target)
					break
				}
			}
			block = next
		case *ir.TermUnreachable:
			return nil, errorf("@%s reached unreachable in %%%s", fn.Name(), block.Name())
		case nil:
			return nil, errorf("@%s block %%%s has no terminator", fn.Name(), block.Name())
		default:
			return nil, errorf("unsupported terminator %T", term)
		}
		if block == nil {
			return nil, errorf("@%s branches to a non-block", fn.Name())
		}
	}
}

func asBlock(v interface{}) *ir.Block {
	b, _ := v.(*ir.Block)
	return b
}

func (m *Machine) tick() error {
	m.steps++
	if m.MaxSteps > 0 && m.steps > m.MaxSteps {
		return ErrStepLimit
	}
	return nil
}

type frame struct {
	m      *Machine
	locals map[value.Value]Value
}

func (fr *frame) eval(v value.Value) (Value, error) {
	if c, ok := v.(constant.Constant); ok {
		return fr.m.constValue(c)
	}
	val, ok := fr.locals[v]
	if !ok {
		return nil, errorf("use of undefined value %s", v.Ident())
	}
	return val, nil
}

func (fr *frame) int(v value.Value) (int64, error) {
	val, err := fr.eval(v)
	if err != nil {
		return 0, err
	}
	n, ok := val.(int64)
	if !ok {
		return 0, errorf("%s is not an integer", v.Ident())
	}
	return n, nil
}

func (fr *frame) pointer(v value.Value) (Pointer, error) {
	val, err := fr.eval(v)
	if err != nil {
		return Pointer{}, err
	}
	p, ok := val.(Pointer)
	if !ok {
		return Pointer{}, errorf("%s is not a data pointer", v.Ident())
	}
	return p, nil
}

func (fr *frame) indices(vs []value.Value) ([]int64, error) {
	out := make([]int64, len(vs))
	for i, v := range vs {
		n, err := fr.int(v)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func (fr *frame) exec(inst ir.Instruction) error {
	m := fr.m
	switch inst := inst.(type) {
	case *ir.InstAlloca:
		fr.locals[inst] = Pointer{obj: m.newObject(inst.Ident())}

	case *ir.InstLoad:
		p, err := fr.pointer(inst.Src)
		if err != nil {
			return err
		}
		v, err := m.load(p, inst.ElemType)
		if err != nil {
			return err
		}
		fr.locals[inst] = v

	case *ir.InstStore:
		v, err := fr.eval(inst.Src)
		if err != nil {
			return err
		}
		p, err := fr.pointer(inst.Dst)
		if err != nil {
			return err
		}
		return m.store(p, v)

	case *ir.InstGetElementPtr:
		p, err := fr.pointer(inst.Src)
		if err != nil {
			return err
		}
		idx, err := fr.indices(inst.Indices)
		if err != nil {
			return err
		}
		fr.locals[inst] = gep(p, idx)

	case *ir.InstBitCast:
		v, err := fr.eval(inst.From)
		if err != nil {
			return err
		}
		fr.locals[inst] = v

	case *ir.InstZExt:
		n, err := fr.int(inst.From)
		if err != nil {
			return err
		}
		fr.locals[inst] = n
	case *ir.InstSExt:
		n, err := fr.int(inst.From)
		if err != nil {
			return err
		}
		if it, ok := inst.From.Type().(*types.IntType); ok && it.BitSize == 1 && n != 0 {
			n = -1
		}
		fr.locals[inst] = n
	case *ir.InstTrunc:
		n, err := fr.int(inst.From)
		if err != nil {
			return err
		}
		fr.locals[inst] = normalize(inst.To, n)

	case *ir.InstPtrToInt:
		p, err := fr.pointer(inst.From)
		if err != nil {
			return err
		}
		fr.locals[inst] = ptrToInt(p)

	case *ir.InstICmp:
		x, err := fr.eval(inst.X)
		if err != nil {
			return err
		}
		y, err := fr.eval(inst.Y)
		if err != nil {
			return err
		}
		r, err := compare(inst.Pred, x, y)
		if err != nil {
			return err
		}
		fr.locals[inst] = r

	case *ir.InstAdd:
		return fr.arith(inst, inst.X, inst.Y, func(a, b int64) (int64, error) { return a + b, nil })
	case *ir.InstSub:
		return fr.arith(inst, inst.X, inst.Y, func(a, b int64) (int64, error) { return a - b, nil })
	case *ir.InstMul:
		return fr.arith(inst, inst.X, inst.Y, func(a, b int64) (int64, error) { return a * b, nil })
	case *ir.InstSDiv:
		return fr.arith(inst, inst.X, inst.Y, func(a, b int64) (int64, error) {
			if b == 0 {
				return 0, errorf("division by zero")
			}
			return a / b, nil
		})
	case *ir.InstXor:
		return fr.arith(inst, inst.X, inst.Y, func(a, b int64) (int64, error) { return a ^ b, nil })
	case *ir.InstAnd:
		return fr.arith(inst, inst.X, inst.Y, func(a, b int64) (int64, error) { return a & b, nil })
	case *ir.InstOr:
		return fr.arith(inst, inst.X, inst.Y, func(a, b int64) (int64, error) { return a | b, nil })

	case *ir.InstSelect:
		cond, err := fr.int(inst.Cond)
		if err != nil {
			return err
		}
		pick := inst.ValueFalse
		if cond != 0 {
			pick = inst.ValueTrue
		}
		v, err := fr.eval(pick)
		if err != nil {
			return err
		}
		fr.locals[inst] = v

	case *ir.InstCall:
		callee, err := fr.eval(inst.Callee)
		if err != nil {
			return err
		}
		fn, ok := callee.(*ir.Func)
		if !ok {
			return errorf("call through non-function %s", inst.Callee.Ident())
		}
		args := make([]Value, len(inst.Args))
		for i, a := range inst.Args {
			if args[i], err = fr.eval(a); err != nil {
				return err
			}
		}
		r, err := m.call(fn, args)
		if err != nil {
			return err
		}
		fr.locals[inst] = r

	default:
		return errorf("unsupported instruction %T", inst)
	}
	return nil
}

func (fr *frame) arith(inst value.Value, x, y value.Value, op func(a, b int64) (int64, error)) error {
	a, err := fr.int(x)
	if err != nil {
		return err
	}
	b, err := fr.int(y)
	if err != nil {
		return err
	}
	r, err := op(a, b)
	if err != nil {
		return err
	}
	fr.locals[inst] = normalize(inst.Type(), r)
	return nil
}

func compare(pred enum.IPred, x, y Value) (int64, error) {
	b2i := func(b bool) int64 {
		if b {
			return 1
		}
		return 0
	}
	switch a := x.(type) {
	case int64:
		b, ok := y.(int64)
		if !ok {
			return 0, errorf("icmp of integer with %T", y)
		}
		switch pred {
		case enum.IPredEQ:
			return b2i(a == b), nil
		case enum.IPredNE:
			return b2i(a != b), nil
		case enum.IPredSLT:
			return b2i(a < b), nil
		case enum.IPredSLE:
			return b2i(a <= b), nil
		case enum.IPredSGT:
			return b2i(a > b), nil
		case enum.IPredSGE:
			return b2i(a >= b), nil
		}
	case Pointer:
		b, ok := y.(Pointer)
		if !ok {
			return 0, errorf("icmp of pointer with %T", y)
		}
		switch pred {
		case enum.IPredEQ:
			return b2i(a.same(b)), nil
		case enum.IPredNE:
			return b2i(!a.same(b)), nil
		}
	case *ir.Func:
		switch pred {
		case enum.IPredEQ:
			return b2i(a == y), nil
		case enum.IPredNE:
			return b2i(a != y), nil
		}
	}
	return 0, errorf("unsupported icmp %s on %T", pred, x)
}

// constValue evaluates a constant operand.
func (m *Machine) constValue(c constant.Constant) (Value, error) {
	switch c := c.(type) {
	case *ir.Global:
		obj, ok := m.globals[c]
		if !ok {
			return nil, errorf("unknown global @%s", c.Name())
		}
		return Pointer{obj: obj}, nil
	case *ir.Func:
		return c, nil
	case *constant.Int:
		return normalize(c.Typ, c.X.Int64()), nil
	case *constant.Null:
		return Pointer{}, nil
	case *constant.ExprBitCast:
		return m.constValue(c.From)
	case *constant.ExprGetElementPtr:
		base, err := m.constValue(c.Src)
		if err != nil {
			return nil, err
		}
		p, ok := base.(Pointer)
		if !ok {
			return nil, errorf("constant getelementptr on %T", base)
		}
		idx := make([]int64, len(c.Indices))
		for i, ci := range c.Indices {
			v, err := m.constValue(ci)
			if err != nil {
				return nil, err
			}
			n, ok := v.(int64)
			if !ok {
				return nil, errorf("constant getelementptr index is %T", v)
			}
			idx[i] = n
		}
		return gep(p, idx), nil
	case *constant.ExprPtrToInt:
		v, err := m.constValue(c.From)
		if err != nil {
			return nil, err
		}
		p, ok := v.(Pointer)
		if !ok {
			return nil, errorf("constant ptrtoint of %T", v)
		}
		return ptrToInt(p), nil
	default:
		return nil, errorf("unsupported constant %T", c)
	}
}

// writeConst flattens an aggregate initializer into obj's cells.
func (m *Machine) writeConst(obj *object, path []int64, c constant.Constant) error {
	switch c := c.(type) {
	case *constant.Struct:
		for i, f := range c.Fields {
			if err := m.writeConst(obj, extend(path, int64(i)), f); err != nil {
				return err
			}
		}
	case *constant.Array:
		for i, e := range c.Elems {
			if err := m.writeConst(obj, extend(path, int64(i)), e); err != nil {
				return err
			}
		}
	case *constant.CharArray:
		for i, b := range c.X {
			obj.cells[pathKey(extend(path, int64(i)))] = int64(b)
		}
	default:
		v, err := m.constValue(c)
		if err != nil {
			return err
		}
		obj.cells[pathKey(path)] = v
	}
	return nil
}

var bytePtr = types.NewPointer(types.I8)
