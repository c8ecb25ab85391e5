package datalog

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Encoding tags. Symbols sort before integers in encoded form, matching
// CompareValues.
const (
	tagSymbol  byte = 0x01
	tagInteger byte = 0x02
)

var (
	// ErrShortBuffer is returned when an encoding is truncated
	ErrShortBuffer = errors.New("datalog: short buffer")
	// ErrUnknownTag is returned for an unrecognised value tag
	ErrUnknownTag = errors.New("datalog: unknown value tag")
)

// AppendValue appends the binary encoding of v to buf.
//
// Integers are stored big-endian with the sign bit flipped so that the
// byte order matches numeric order.
func AppendValue(buf []byte, v Value) []byte {
	switch v.typ {
	case IntegerType:
		buf = append(buf, tagInteger)
		return binary.BigEndian.AppendUint64(buf, uint64(v.num)^(1<<63))
	default:
		buf = append(buf, tagSymbol)
		buf = binary.AppendUvarint(buf, uint64(len(v.sym)))
		return append(buf, v.sym...)
	}
}

// DecodeValue decodes one value from data and returns it with the number of
// bytes consumed
func DecodeValue(data []byte) (Value, int, error) {
	if len(data) == 0 {
		return Value{}, 0, ErrShortBuffer
	}
	switch data[0] {
	case tagInteger:
		if len(data) < 9 {
			return Value{}, 0, fmt.Errorf("integer value must be 8 bytes, got %d: %w", len(data)-1, ErrShortBuffer)
		}
		return Integer(int64(binary.BigEndian.Uint64(data[1:9]) ^ (1 << 63))), 9, nil
	case tagSymbol:
		n, w := binary.Uvarint(data[1:])
		if w <= 0 {
			return Value{}, 0, fmt.Errorf("bad symbol length: %w", ErrShortBuffer)
		}
		start := 1 + w
		end := start + int(n)
		if end > len(data) {
			return Value{}, 0, fmt.Errorf("symbol needs %d bytes, have %d: %w", n, len(data)-start, ErrShortBuffer)
		}
		return InternSymbol(string(data[start:end])), end, nil
	default:
		return Value{}, 0, fmt.Errorf("tag 0x%02x: %w", data[0], ErrUnknownTag)
	}
}

// AppendTuple appends the arity-prefixed encoding of t to buf
func AppendTuple(buf []byte, t Tuple) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(t)))
	for _, v := range t {
		buf = AppendValue(buf, v)
	}
	return buf
}

// DecodeTuple decodes a tuple written by AppendTuple
func DecodeTuple(data []byte) (Tuple, int, error) {
	arity, w := binary.Uvarint(data)
	if w <= 0 {
		return nil, 0, fmt.Errorf("bad tuple arity: %w", ErrShortBuffer)
	}
	pos := w
	t := make(Tuple, arity)
	for i := range t {
		v, n, err := DecodeValue(data[pos:])
		if err != nil {
			return nil, 0, fmt.Errorf("tuple element %d: %w", i, err)
		}
		t[i] = v
		pos += n
	}
	return t, pos, nil
}
