package datalog

import (
	"fmt"
	"strconv"
)

// PrimitiveType is the type of a single Value
type PrimitiveType uint8

const (
	SymbolType PrimitiveType = iota
	IntegerType
)

// String returns the name used in diagnostics and inlay hints
func (t PrimitiveType) String() string {
	switch t {
	case SymbolType:
		return "Symbol"
	case IntegerType:
		return "Integer"
	default:
		return fmt.Sprintf("PrimitiveType(%d)", uint8(t))
	}
}

// Value is a tagged union of a symbol or a 64-bit signed integer.
//
// Values are immutable and comparable with ==, so they can be used directly
// as map keys.
type Value struct {
	typ PrimitiveType
	sym string
	num int64
}

// Symbol creates a symbol value
func Symbol(s string) Value { return Value{typ: SymbolType, sym: s} }

// Integer creates an integer value
func Integer(i int64) Value { return Value{typ: IntegerType, num: i} }

// Type returns the primitive type of the value
func (v Value) Type() PrimitiveType { return v.typ }

// AsSymbol returns the symbol text and whether v is a symbol
func (v Value) AsSymbol() (string, bool) {
	return v.sym, v.typ == SymbolType
}

// AsInteger returns the integer and whether v is an integer
func (v Value) AsInteger() (int64, bool) {
	return v.num, v.typ == IntegerType
}

// Equal reports whether two values are identical
func (v Value) Equal(other Value) bool {
	return v == other
}

// String renders the value the way it appears in source text
func (v Value) String() string {
	if v.typ == IntegerType {
		return strconv.FormatInt(v.num, 10)
	}
	return v.sym
}

// GoString is used by %#v and test failure output
func (v Value) GoString() string {
	if v.typ == IntegerType {
		return fmt.Sprintf("datalog.Integer(%d)", v.num)
	}
	return fmt.Sprintf("datalog.Symbol(%q)", v.sym)
}
