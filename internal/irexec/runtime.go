package irexec

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/llir/llvm/ir/types"
)

func runtimeBuiltins() map[string]Builtin {
	return map[string]Builtin{
		"malloc": builtinMalloc,
		"printf": builtinPrintf,
		"abort":  builtinAbort,
		"strcmp": builtinStrcmp,

		"Object_abort":     objectAbort,
		"Object_type_name": objectTypeName,
		"Object_copy":      objectCopy,
		"IO_out_string":    ioOutString,
		"IO_out_int":       ioOutInt,
		"IO_in_string":     ioInString,
		"IO_in_int":        ioInInt,
		"String_length":    stringLength,
		"String_concat":    stringConcat,
		"String_substr":    stringSubstr,
	}
}

func argPointer(args []Value, i int) (Pointer, error) {
	if i >= len(args) {
		return Pointer{}, errorf("missing argument %d", i)
	}
	p, ok := args[i].(Pointer)
	if !ok {
		return Pointer{}, errorf("argument %d is %T, not a pointer", i, args[i])
	}
	return p, nil
}

func argInt(args []Value, i int) (int64, error) {
	if i >= len(args) {
		return 0, errorf("missing argument %d", i)
	}
	n, ok := args[i].(int64)
	if !ok {
		return 0, errorf("argument %d is %T, not an integer", i, args[i])
	}
	return n, nil
}

func builtinMalloc(m *Machine, args []Value) (Value, error) {
	return Pointer{obj: m.newObject("heap")}, nil
}

func builtinAbort(m *Machine, args []Value) (Value, error) {
	return nil, &AbortError{}
}

// builtinPrintf supports the %d, %s and %% directives.
func builtinPrintf(m *Machine, args []Value) (Value, error) {
	format, err := argPointer(args, 0)
	if err != nil {
		return nil, err
	}
	f, err := m.cString(format)
	if err != nil {
		return nil, err
	}

	var out strings.Builder
	next := 1
	for i := 0; i < len(f); i++ {
		if f[i] != '%' || i+1 == len(f) {
			out.WriteByte(f[i])
			continue
		}
		i++
		switch f[i] {
		case 'd':
			n, err := argInt(args, next)
			if err != nil {
				return nil, err
			}
			next++
			out.WriteString(strconv.FormatInt(n, 10))
		case 's':
			p, err := argPointer(args, next)
			if err != nil {
				return nil, err
			}
			next++
			s, err := m.cString(p)
			if err != nil {
				return nil, err
			}
			out.WriteString(s)
		case '%':
			out.WriteByte('%')
		default:
			out.WriteByte('%')
			out.WriteByte(f[i])
		}
	}
	n, err := io.WriteString(m.Stdout, out.String())
	return int64(n), err
}

func builtinStrcmp(m *Machine, args []Value) (Value, error) {
	a, err := argPointer(args, 0)
	if err != nil {
		return nil, err
	}
	b, err := argPointer(args, 1)
	if err != nil {
		return nil, err
	}
	sa, err := m.cString(a)
	if err != nil {
		return nil, err
	}
	sb, err := m.cString(b)
	if err != nil {
		return nil, err
	}
	return int64(strings.Compare(sa, sb)), nil
}

// tag reads the class tag from an object's header.
func (m *Machine) tag(ref Pointer) (int64, error) {
	v, err := m.load(gep(ref, []int64{0, 0, 0}), types.I32)
	if err != nil {
		return 0, err
	}
	n, _ := v.(int64)
	return n, nil
}

// ClassName returns the dynamic class of a COOL object.
func (m *Machine) ClassName(v Value) (string, error) {
	ref, ok := v.(Pointer)
	if !ok || ref.IsNull() {
		return "", errorf("not an object: %v", v)
	}
	tag, err := m.tag(ref)
	if err != nil {
		return "", err
	}
	table, ok := m.global("class.table")
	if !ok {
		return "", errorf("module has no class table")
	}
	name, err := m.load(gep(table, []int64{0, tag, 0}), bytePtr)
	if err != nil {
		return "", err
	}
	p, ok := name.(Pointer)
	if !ok || p.IsNull() {
		return "", errorf("no class has tag %d", tag)
	}
	return m.cString(p)
}

// StringValue returns the text of a COOL String object.
func (m *Machine) StringValue(v Value) (string, error) {
	ref, ok := v.(Pointer)
	if !ok || ref.IsNull() {
		return "", errorf("not a String object: %v", v)
	}
	val, err := m.load(gep(ref, []int64{0, 1}), bytePtr)
	if err != nil {
		return "", err
	}
	p, ok := val.(Pointer)
	if !ok {
		return "", errorf("String val is %T", val)
	}
	return m.cString(p)
}

// NewString builds a COOL String object through the module's own
// constructor.
func (m *Machine) NewString(s string) (Value, error) {
	obj, err := m.Call("String_new")
	if err != nil {
		return nil, err
	}
	ref, ok := obj.(Pointer)
	if !ok {
		return nil, errorf("String_new returned %T", obj)
	}
	if err := m.store(gep(ref, []int64{0, 1}), m.newCString(s)); err != nil {
		return nil, err
	}
	return ref, nil
}

func (m *Machine) readLine() (string, error) {
	if m.stdin == nil {
		m.stdin = bufio.NewReader(m.Stdin)
	}
	line, err := m.stdin.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func objectAbort(m *Machine, args []Value) (Value, error) {
	name, err := m.ClassName(args[0])
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(m.Stdout, "Abort called from class %s\n", name)
	return nil, &AbortError{Msg: "abort() called from class " + name}
}

func objectTypeName(m *Machine, args []Value) (Value, error) {
	name, err := m.ClassName(args[0])
	if err != nil {
		return nil, err
	}
	return m.NewString(name)
}

// objectCopy is a shallow copy: attribute values are shared.
func objectCopy(m *Machine, args []Value) (Value, error) {
	src, err := argPointer(args, 0)
	if err != nil {
		return nil, err
	}
	if src.IsNull() {
		return nil, errorf("copy of void")
	}
	clone := m.newObject(src.obj.name)
	for k, v := range src.obj.cells {
		clone.cells[k] = v
	}
	return Pointer{obj: clone, path: extend(src.path)}, nil
}

func ioOutString(m *Machine, args []Value) (Value, error) {
	s, err := m.StringValue(args[1])
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(m.Stdout, s); err != nil {
		return nil, err
	}
	return args[0], nil
}

func ioOutInt(m *Machine, args []Value) (Value, error) {
	n, err := argInt(args, 1)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(m.Stdout, strconv.FormatInt(n, 10)); err != nil {
		return nil, err
	}
	return args[0], nil
}

func ioInString(m *Machine, args []Value) (Value, error) {
	line, err := m.readLine()
	if err != nil {
		return nil, err
	}
	return m.NewString(line)
}

func ioInInt(m *Machine, args []Value) (Value, error) {
	line, err := m.readLine()
	if err != nil {
		return nil, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(line), 10, 32)
	if err != nil {
		return int64(0), nil
	}
	return n, nil
}

func stringLength(m *Machine, args []Value) (Value, error) {
	s, err := m.StringValue(args[0])
	if err != nil {
		return nil, err
	}
	return int64(len(s)), nil
}

func stringConcat(m *Machine, args []Value) (Value, error) {
	a, err := m.StringValue(args[0])
	if err != nil {
		return nil, err
	}
	b, err := m.StringValue(args[1])
	if err != nil {
		return nil, err
	}
	return m.NewString(a + b)
}

func stringSubstr(m *Machine, args []Value) (Value, error) {
	s, err := m.StringValue(args[0])
	if err != nil {
		return nil, err
	}
	start, err := argInt(args, 1)
	if err != nil {
		return nil, err
	}
	length, err := argInt(args, 2)
	if err != nil {
		return nil, err
	}
	if start < 0 || length < 0 || start+length > int64(len(s)) {
		fmt.Fprintf(m.Stdout, "substr(%d, %d) out of range\n", start, length)
		return nil, &AbortError{Msg: "substring out of range"}
	}
	return m.NewString(s[start : start+length])
}
