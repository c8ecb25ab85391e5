package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/wbrown/janus-live/datalog"
)

// Key layout:
//
//	'r' + resource hash                -> context \x00 name
//	'f' + resource hash + tuple bytes  -> uvarint-zigzag multiplicity
const (
	prefixResource byte = 'r'
	prefixFact     byte = 'f'
	hashLen             = 20
)

func resourceKey(r datalog.ResourceID) []byte {
	key := make([]byte, 0, 1+hashLen)
	key = append(key, prefixResource)
	return append(key, r.Bytes()...)
}

func encodeResource(r datalog.ResourceID) []byte {
	buf := make([]byte, 0, len(r.Context())+len(r.Name())+1)
	buf = append(buf, r.Context()...)
	buf = append(buf, 0)
	return append(buf, r.Name()...)
}

func decodeResource(val []byte) (datalog.ResourceID, error) {
	i := bytes.IndexByte(val, 0)
	if i < 0 {
		return datalog.ResourceID{}, fmt.Errorf("resource record without separator")
	}
	return datalog.NewResourceID(string(val[:i]), string(val[i+1:])), nil
}

// factPrefix returns the key prefix shared by every tuple of r
func factPrefix(r datalog.ResourceID) []byte {
	key := make([]byte, 0, 1+hashLen)
	key = append(key, prefixFact)
	return append(key, r.Bytes()...)
}

func factKey(f datalog.Fact) []byte {
	return datalog.AppendTuple(factPrefix(f.Resource), f.Tuple)
}

// splitFactKey returns the resource hash and tuple encoded in a fact key
func splitFactKey(key []byte) ([hashLen]byte, datalog.Tuple, error) {
	var hash [hashLen]byte
	if len(key) < 1+hashLen || key[0] != prefixFact {
		return hash, nil, fmt.Errorf("not a fact key: %x", key)
	}
	copy(hash[:], key[1:1+hashLen])
	t, _, err := datalog.DecodeTuple(key[1+hashLen:])
	if err != nil {
		return hash, nil, fmt.Errorf("decode fact key: %w", err)
	}
	return hash, t, nil
}

func encodeCount(n int64) []byte {
	return binary.AppendVarint(nil, n)
}

func decodeCount(val []byte) (int64, error) {
	n, w := binary.Varint(val)
	if w <= 0 {
		return 0, fmt.Errorf("bad multiplicity encoding: %x", val)
	}
	return n, nil
}
