package irexec

import (
	"strconv"
	"strings"

	"github.com/llir/llvm/ir/types"
)

// Value is a run-time value: int64 for integers of any width, Pointer for
// data pointers and *ir.Func for function pointers.
type Value interface{}

// Pointer addresses a cell inside an object. Objects are untyped: cells are
// keyed by the getelementptr index path used to reach them, so two
// pointers into the same object agree whenever their paths do. A pointer
// with no object is null.
type Pointer struct {
	obj  *object
	path []int64
}

func (p Pointer) IsNull() bool {
	return p.obj == nil
}

func (p Pointer) key() string {
	return pathKey(p.path)
}

// same reports pointer identity.
func (p Pointer) same(q Pointer) bool {
	return p.obj == q.obj && p.key() == q.key()
}

type object struct {
	id    int
	name  string
	cells map[string]Value
}

func pathKey(path []int64) string {
	parts := make([]string, len(path))
	for i, n := range path {
		parts[i] = strconv.FormatInt(n, 10)
	}
	return strings.Join(parts, ",")
}

func extend(path []int64, more ...int64) []int64 {
	out := make([]int64, 0, len(path)+len(more))
	out = append(out, path...)
	return append(out, more...)
}

func (m *Machine) newObject(name string) *object {
	m.nextID++
	return &object{id: m.nextID, name: name, cells: make(map[string]Value)}
}

// gep applies getelementptr indices. The first index steps over whole
// elements at the pointer's current position; the rest descend.
func gep(p Pointer, indices []int64) Pointer {
	if len(indices) == 0 {
		return p
	}
	path := extend(p.path)
	if len(path) == 0 {
		path = append(path, indices[0])
	} else {
		path[len(path)-1] += indices[0]
	}
	path = append(path, indices[1:]...)
	return Pointer{obj: p.obj, path: path}
}

func (m *Machine) load(p Pointer, t types.Type) (Value, error) {
	if p.IsNull() {
		return nil, errorf("load through null pointer")
	}
	if v, ok := p.obj.cells[p.key()]; ok {
		return v, nil
	}
	return zero(t), nil
}

func (m *Machine) store(p Pointer, v Value) error {
	if p.IsNull() {
		return errorf("store through null pointer")
	}
	p.obj.cells[p.key()] = v
	return nil
}

// zero is the value of a cell that was never written.
func zero(t types.Type) Value {
	switch t.(type) {
	case *types.IntType:
		return int64(0)
	case *types.PointerType:
		return Pointer{}
	default:
		return nil
	}
}

func ptrToInt(p Pointer) int64 {
	if p.IsNull() {
		// Only reached through the gep-on-null size idiom.
		var n int64
		for _, i := range p.path {
			n += i
		}
		return n * 8
	}
	return int64(p.obj.id) << 20
}

// normalize truncates v to the width of t, sign-extending the result.
func normalize(t types.Type, v int64) int64 {
	it, ok := t.(*types.IntType)
	if !ok {
		return v
	}
	switch it.BitSize {
	case 1:
		return v & 1
	case 8:
		return int64(int8(v))
	case 16:
		return int64(int16(v))
	case 32:
		return int64(int32(v))
	default:
		return v
	}
}

// cString reads a NUL-terminated byte string starting at p.
func (m *Machine) cString(p Pointer) (string, error) {
	if p.IsNull() {
		return "", errorf("string read through null pointer")
	}
	if len(p.path) == 0 {
		p = Pointer{obj: p.obj, path: []int64{0, 0}}
	}
	var sb strings.Builder
	for i := int64(0); ; i++ {
		v, _ := m.load(gep(p, []int64{i}), types.I8)
		c, ok := v.(int64)
		if !ok {
			return "", errorf("non-byte value in string")
		}
		if c == 0 {
			return sb.String(), nil
		}
		sb.WriteByte(byte(c))
	}
}

// newCString allocates a NUL-terminated copy of s and points at its first
// byte.
func (m *Machine) newCString(s string) Pointer {
	obj := m.newObject("cstring")
	for i := 0; i < len(s); i++ {
		obj.cells[pathKey([]int64{0, int64(i)})] = int64(s[i])
	}
	obj.cells[pathKey([]int64{0, int64(len(s))})] = int64(0)
	return Pointer{obj: obj, path: []int64{0, 0}}
}

func (m *Machine) global(name string) (Pointer, bool) {
	for g, obj := range m.globals {
		if g.Name() == name {
			return Pointer{obj: obj}, true
		}
	}
	return Pointer{}, false
}
