// Package graph holds the compiled relational plan: a content-addressed arena
// of Join, Project, Load and Store nodes.
package graph

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/wbrown/janus-live/datalog"
)

// Key is the structural identity of a node: a hash of its definition.
// Two syntactically identical nodes share a key.
type Key uint64

// String renders the key as fixed-width hex
func (k Key) String() string {
	return fmt.Sprintf("%016x", uint64(k))
}

// Node is a single relational operator
type Node interface {
	// Key returns the structural hash of the node definition
	Key() Key
	// Inputs returns the keys of the nodes this node reads
	Inputs() []Key
	String() string
	node() // Private marker method
}

// Ensure our types implement Node
func (Join) node()    {}
func (Project) node() {}
func (Load) node()    {}
func (Store) node()   {}

// Node kind tags used in the hash encoding
const (
	tagJoin byte = iota + 1
	tagProject
	tagLoad
	tagStore
)

// Join equi-joins the outputs of Lhs and Rhs on their first Num elements.
// Output tuples are prefix ++ lhs trailing ++ rhs trailing.
type Join struct {
	Lhs Key
	Rhs Key
	Num int
}

// Project re-emits Src's tuples permuted or subset by Map
type Project struct {
	Src Key
	Map []int
}

// Load emits the current visible facts of Resource
type Load struct {
	Resource datalog.ResourceID
}

// Store projects Src's tuples by Map and writes them into Dst
type Store struct {
	Src Key
	Dst datalog.ResourceID
	Map []int
}

// NewJoin creates a join node
func NewJoin(lhs, rhs Key, num int) Join { return Join{Lhs: lhs, Rhs: rhs, Num: num} }

// NewProject creates a projection node
func NewProject(src Key, mapping ...int) Project { return Project{Src: src, Map: mapping} }

// NewLoad creates a relation load node
func NewLoad(resource datalog.ResourceID) Load { return Load{Resource: resource} }

// NewStore creates a relation store node
func NewStore(src Key, dst datalog.ResourceID, mapping ...int) Store {
	return Store{Src: src, Dst: dst, Map: mapping}
}

func hashBytes(buf []byte) Key {
	return Key(xxhash.Sum64(buf))
}

func appendKey(buf []byte, k Key) []byte {
	return binary.BigEndian.AppendUint64(buf, uint64(k))
}

func appendMap(buf []byte, m []int) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(m)))
	for _, i := range m {
		buf = binary.AppendVarint(buf, int64(i))
	}
	return buf
}

func appendResource(buf []byte, r datalog.ResourceID) []byte {
	return append(buf, r.Bytes()...)
}

func (j Join) Key() Key {
	buf := make([]byte, 0, 24)
	buf = append(buf, tagJoin)
	buf = appendKey(buf, j.Lhs)
	buf = appendKey(buf, j.Rhs)
	buf = binary.AppendVarint(buf, int64(j.Num))
	return hashBytes(buf)
}

func (p Project) Key() Key {
	buf := make([]byte, 0, 16+len(p.Map))
	buf = append(buf, tagProject)
	buf = appendKey(buf, p.Src)
	buf = appendMap(buf, p.Map)
	return hashBytes(buf)
}

func (l Load) Key() Key {
	buf := make([]byte, 0, 24)
	buf = append(buf, tagLoad)
	buf = appendResource(buf, l.Resource)
	return hashBytes(buf)
}

func (s Store) Key() Key {
	buf := make([]byte, 0, 40+len(s.Map))
	buf = append(buf, tagStore)
	buf = appendKey(buf, s.Src)
	buf = appendResource(buf, s.Dst)
	buf = appendMap(buf, s.Map)
	return hashBytes(buf)
}

func (j Join) Inputs() []Key    { return []Key{j.Lhs, j.Rhs} }
func (p Project) Inputs() []Key { return []Key{p.Src} }
func (Load) Inputs() []Key      { return nil }
func (s Store) Inputs() []Key   { return []Key{s.Src} }

func formatMap(m []int) string {
	parts := make([]string, len(m))
	for i, idx := range m {
		parts[i] = strconv.Itoa(idx)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func (j Join) String() string {
	return fmt.Sprintf("(join %s %s %d)", j.Lhs, j.Rhs, j.Num)
}

func (p Project) String() string {
	return fmt.Sprintf("(project %s %s)", p.Src, formatMap(p.Map))
}

func (l Load) String() string {
	return fmt.Sprintf("(load %s)", l.Resource)
}

func (s Store) String() string {
	return fmt.Sprintf("(store %s %s %s)", s.Src, s.Dst, formatMap(s.Map))
}
