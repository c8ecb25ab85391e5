package query

import (
	"strings"

	"github.com/wbrown/janus-live/datalog"
)

// Type is the structural type of a pattern: a primitive or a tuple of types
type Type struct {
	IsTuple bool
	Prim    datalog.PrimitiveType
	Elems   []Type
}

// PrimType creates a primitive type
func PrimType(p datalog.PrimitiveType) Type { return Type{Prim: p} }

// TupleType creates a tuple type
func TupleType(elems ...Type) Type { return Type{IsTuple: true, Elems: elems} }

var (
	SymbolT  = PrimType(datalog.SymbolType)
	IntegerT = PrimType(datalog.IntegerType)
)

// Equal reports structural equality
func (t Type) Equal(other Type) bool {
	if t.IsTuple != other.IsTuple {
		return false
	}
	if !t.IsTuple {
		return t.Prim == other.Prim
	}
	if len(t.Elems) != len(other.Elems) {
		return false
	}
	for i := range t.Elems {
		if !t.Elems[i].Equal(other.Elems[i]) {
			return false
		}
	}
	return true
}

// Arity returns the number of elements of a tuple type, or 1 for a primitive
func (t Type) Arity() int {
	if !t.IsTuple {
		return 1
	}
	return len(t.Elems)
}

// String renders "Integer" or "(Symbol, Integer)"
func (t Type) String() string {
	if !t.IsTuple {
		return t.Prim.String()
	}
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Key is the canonical form used for deduplication
func (t Type) Key() string { return t.String() }

// TypeOf returns the type of a ground pattern, or false if p has variables
func TypeOf(p Pattern) (Type, bool) {
	return Substitute(p, func(string) (Type, bool) { return Type{}, false })
}

// Substitute replaces each variable of p with its type from lookup and each
// literal with its primitive type. It fails if any variable is unknown.
func Substitute(p Pattern, lookup func(name string) (Type, bool)) (Type, bool) {
	if !p.IsTuple {
		if p.Term.IsVariable() {
			return lookup(p.Term.Variable)
		}
		return PrimType(p.Term.Value.Type()), true
	}
	elems := make([]Type, len(p.Elems))
	for i, e := range p.Elems {
		t, ok := Substitute(e, lookup)
		if !ok {
			return Type{}, false
		}
		elems[i] = t
	}
	return TupleType(elems...), true
}
