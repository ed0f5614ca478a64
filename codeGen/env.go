package codegen

import (
	"fmt"

	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// LocationKind tells how a name is stored.
type LocationKind int

const (
	// LocalVar is an alloca in the current function.
	LocalVar LocationKind = iota
	// AttrField is a field of self.
	AttrField
)

// Location is the storage a name resolves to. Type is the type of the
// stored value, not of the address.
type Location struct {
	Kind     LocationKind
	Name     string
	TypeName string
	Type     types.Type
	Addr     value.Value
	Field    int
}

type binding struct {
	name string
	loc  *Location
}

// Environment is the scope chain and name supply for one function
// activation. Names not bound in any scope fall back to the attributes of
// the class being generated.
type Environment struct {
	class  *ClassNode
	scopes []binding

	temps  int
	labels int
	guards int
}

func NewEnvironment(class *ClassNode) *Environment {
	return &Environment{class: class}
}

// Bind opens a scope holding one name.
func (env *Environment) Bind(name string, loc *Location) {
	env.scopes = append(env.scopes, binding{name: name, loc: loc})
}

// Unbind closes the innermost scope.
func (env *Environment) Unbind() {
	if len(env.scopes) == 0 {
		panic("environment: unbind with no open scope")
	}
	env.scopes = env.scopes[:len(env.scopes)-1]
}

func (env *Environment) Depth() int {
	return len(env.scopes)
}

// Resolve finds the storage for name, innermost scope first.
func (env *Environment) Resolve(name string) (*Location, error) {
	for i := len(env.scopes) - 1; i >= 0; i-- {
		if env.scopes[i].name == name {
			return env.scopes[i].loc, nil
		}
	}
	if env.class != nil {
		if slot, ok := env.class.Attr(name); ok {
			return &Location{
				Kind:     AttrField,
				Name:     name,
				TypeName: slot.TypeName,
				Type:     slot.Type,
				Field:    slot.Field,
			}, nil
		}
	}
	return nil, fmt.Errorf("unresolved identifier %s", name)
}

func (env *Environment) NewTemp() string {
	env.temps++
	return fmt.Sprintf("tmp.%d", env.temps)
}

func (env *Environment) NewLabel(prefix string) string {
	env.labels++
	return fmt.Sprintf("%s.%d", prefix, env.labels)
}

func (env *Environment) NewGuard() string {
	env.guards++
	return fmt.Sprintf("ok.%d", env.guards)
}
