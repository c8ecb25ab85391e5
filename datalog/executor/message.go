package executor

import (
	"encoding/binary"

	"github.com/wbrown/janus-live/datalog"
	"github.com/wbrown/janus-live/datalog/graph"
	"github.com/wbrown/janus-live/datalog/harness"
)

type messageKind uint8

const (
	// emit offers a tuple as output of a node
	msgEmit messageKind = iota
	// left and right insert a (prefix, trail) pair into one side of a join
	msgLeft
	msgRight
	// store offers a tuple to a relation
	msgStore
)

// message is the unit lanes exchange during propagation. Which fields are
// meaningful depends on the kind.
type message struct {
	kind     messageKind
	node     graph.Key
	resource datalog.ResourceID
	tuple    datalog.Tuple // emit and store payload, join prefix
	trail    datalog.Tuple
}

// routeKey is the ownership key of a node tuple or join prefix
func routeKey(node graph.Key, t datalog.Tuple) []byte {
	buf := make([]byte, 0, 8+1+len(t)*9)
	buf = binary.BigEndian.AppendUint64(buf, uint64(node))
	return datalog.AppendTuple(buf, t)
}

// owner returns the lane responsible for handling m
func (m message) owner(peers int) int {
	switch m.kind {
	case msgStore:
		return factOwner(datalog.Fact{Resource: m.resource, Tuple: m.tuple}, peers)
	default:
		return harness.Owner(routeKey(m.node, m.tuple), peers)
	}
}

// factOwner returns the lane that holds a relation tuple
func factOwner(f datalog.Fact, peers int) int {
	return harness.OwnerString(f.Key(), peers)
}

// outbox buckets messages by destination lane for one exchange round
type outbox struct {
	peers  int
	queues [][]message
	count  int
}

func newOutbox(peers int) *outbox {
	return &outbox{peers: peers, queues: make([][]message, peers)}
}

func (o *outbox) send(m message) {
	lane := m.owner(o.peers)
	o.queues[lane] = append(o.queues[lane], m)
	o.count++
}

// take returns the queued messages and empties the outbox
func (o *outbox) take() ([][]message, int) {
	q, n := o.queues, o.count
	o.queues = make([][]message, o.peers)
	o.count = 0
	return q, n
}

func (o *outbox) reset() {
	o.queues = make([][]message, o.peers)
	o.count = 0
}
