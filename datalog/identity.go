package datalog

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
)

// ResourceID identifies a named, persistent relation.
//
// It is derived from the relation's declaration site: the context (source
// document URI) and the relation name. Like an entity Identity it carries a
// SHA1 of its contents, which storage backends use as a fixed-width key
// prefix.
type ResourceID struct {
	context string
	name    string
	hash    [20]byte
}

// NewResourceID creates the identity of relation name declared in context
func NewResourceID(context, name string) ResourceID {
	h := sha1.New()
	h.Write([]byte(context))
	h.Write([]byte{0})
	h.Write([]byte(name))
	r := ResourceID{context: context, name: name}
	copy(r.hash[:], h.Sum(nil))
	return r
}

// Context returns the declaring document
func (r ResourceID) Context() string { return r.context }

// Name returns the relation name
func (r ResourceID) Name() string { return r.name }

// Hash returns the raw hash value
func (r ResourceID) Hash() [20]byte { return r.hash }

// Bytes returns the raw hash bytes
func (r ResourceID) Bytes() []byte { return r.hash[:] }

// ID returns a numeric ID (first 8 bytes as uint64)
func (r ResourceID) ID() uint64 {
	return binary.BigEndian.Uint64(r.hash[:8])
}

// IsZero reports whether r is the zero ResourceID
func (r ResourceID) IsZero() bool {
	return r == ResourceID{}
}

// String returns "name" for the empty context and "context#name" otherwise
func (r ResourceID) String() string {
	if r.context == "" {
		return r.name
	}
	return r.context + "#" + r.name
}

// Short returns a short hex prefix of the hash for logs
func (r ResourceID) Short() string {
	return hex.EncodeToString(r.hash[:4])
}
