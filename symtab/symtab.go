// Package symtab interns identifier and literal text into small integer
// handles. A Table belongs to one compilation run.
package symtab

// Symbol is a stable handle for an interned string. Handles are dense and
// start at zero, so they can index side tables directly.
type Symbol int

// NoSymbol is returned by lookups that find nothing.
const NoSymbol Symbol = -1

type Table struct {
	index   map[string]Symbol
	strings []string
}

func NewTable() *Table {
	return &Table{
		index: make(map[string]Symbol),
	}
}

// Intern returns the handle for s, allocating one the first time s is seen.
func (t *Table) Intern(s string) Symbol {
	if sym, ok := t.index[s]; ok {
		return sym
	}
	sym := Symbol(len(t.strings))
	t.strings = append(t.strings, s)
	t.index[s] = sym
	return sym
}

func (t *Table) Lookup(s string) (Symbol, bool) {
	sym, ok := t.index[s]
	if !ok {
		return NoSymbol, false
	}
	return sym, true
}

// String returns the text behind sym. It panics on a handle that did not
// come from this table.
func (t *Table) String(sym Symbol) string {
	return t.strings[sym]
}

func (t *Table) Len() int {
	return len(t.strings)
}

// Each visits every entry in interning order.
func (t *Table) Each(fn func(sym Symbol, s string)) {
	for i, s := range t.strings {
		fn(Symbol(i), s)
	}
}
