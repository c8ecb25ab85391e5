package harness

import (
	"github.com/cespare/xxhash/v2"
)

// Owner maps a routing key to the lane responsible for it
func Owner(key []byte, peers int) int {
	if peers <= 1 {
		return 0
	}
	return int(xxhash.Sum64(key) % uint64(peers))
}

// OwnerString is Owner for string keys
func OwnerString(key string, peers int) int {
	if peers <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(key) % uint64(peers))
}

// Batch is the set of edits a lane receives for one logical time
type Batch[U any] struct {
	Time    Time
	Updates []U
}

// Ingress carries edits from the coordinator to each lane. Every lane
// receives exactly one batch per time, possibly empty.
type Ingress[U any] struct {
	queues []chan Batch[U]
}

// NewIngress creates ingress queues for peers lanes
func NewIngress[U any](peers int) *Ingress[U] {
	in := &Ingress[U]{queues: make([]chan Batch[U], peers)}
	for i := range in.queues {
		// A lane consumes its batch before the step can finish, so one
		// slot is enough.
		in.queues[i] = make(chan Batch[U], 1)
	}
	return in
}

// Recv blocks until lane's next batch arrives or done is closed
func (in *Ingress[U]) Recv(lane Lane) (Batch[U], error) {
	select {
	case b := <-in.queues[lane.Index]:
		return b, nil
	case <-lane.done:
		return Batch[U]{}, ErrClosed
	}
}

// Router buffers coordinator edits per lane until Flush
type Router[U any] struct {
	ingress *Ingress[U]
	lane    Lane
	pending [][]U
	time    Time
}

// NewRouter creates the coordinator side of an ingress
func NewRouter[U any](ingress *Ingress[U], lane Lane) *Router[U] {
	return &Router[U]{
		ingress: ingress,
		lane:    lane,
		pending: make([][]U, len(ingress.queues)),
	}
}

// Peers returns the number of lanes routed to
func (r *Router[U]) Peers() int { return len(r.pending) }

// Route queues u for one lane
func (r *Router[U]) Route(lane int, u U) {
	r.pending[lane] = append(r.pending[lane], u)
}

// Broadcast queues u for every lane
func (r *Router[U]) Broadcast(u U) {
	for i := range r.pending {
		r.pending[i] = append(r.pending[i], u)
	}
}

// AdvanceTo sets the time stamped on the next Flush
func (r *Router[U]) AdvanceTo(t Time) { r.time = t }

// Flush sends one batch to every lane
func (r *Router[U]) Flush() {
	for i, updates := range r.pending {
		select {
		case r.ingress.queues[i] <- Batch[U]{Time: r.time, Updates: updates}:
		case <-r.lane.done:
			return
		}
		r.pending[i] = nil
	}
}

type envelope[M any] struct {
	msgs   []M
	active bool
}

// Mesh is an all-to-all exchange between lanes in bulk-synchronous rounds.
// In each round every lane sends exactly one envelope to every other lane
// and then receives one from each. A lane can run at most one round ahead
// of a peer, so two slots per link never block a send.
type Mesh[M any] struct {
	links [][]chan envelope[M] // links[from][to]
}

// NewMesh creates a mesh for peers lanes
func NewMesh[M any](peers int) *Mesh[M] {
	m := &Mesh[M]{links: make([][]chan envelope[M], peers)}
	for from := range m.links {
		m.links[from] = make([]chan envelope[M], peers)
		for to := range m.links[from] {
			if from != to {
				m.links[from][to] = make(chan envelope[M], 2)
			}
		}
	}
	return m
}

// Endpoint is one lane's view of a mesh
type Endpoint[M any] struct {
	mesh *Mesh[M]
	lane Lane
}

// Endpoint returns lane's side of the mesh
func (m *Mesh[M]) Endpoint(lane Lane) *Endpoint[M] {
	return &Endpoint[M]{mesh: m, lane: lane}
}

// Peers returns the number of lanes in the mesh
func (e *Endpoint[M]) Peers() int { return len(e.mesh.links) }

// Exchange sends out[p] to every lane p and returns the messages addressed
// to this lane in lane order, and whether any lane reported itself active
// this round. Every lane must call Exchange the same number of times.
func (e *Endpoint[M]) Exchange(out [][]M, active bool) ([]M, bool, error) {
	self := e.lane.Index
	for to, ch := range e.mesh.links[self] {
		if to == self {
			continue
		}
		var msgs []M
		if to < len(out) {
			msgs = out[to]
		}
		select {
		case ch <- envelope[M]{msgs: msgs, active: active}:
		case <-e.lane.done:
			return nil, false, ErrClosed
		}
	}

	var in []M
	anyActive := active
	for from := range e.mesh.links {
		if from == self {
			if self < len(out) {
				in = append(in, out[self]...)
			}
			continue
		}
		select {
		case env := <-e.mesh.links[from][self]:
			in = append(in, env.msgs...)
			anyActive = anyActive || env.active
		case <-e.lane.done:
			return nil, false, ErrClosed
		}
	}
	return in, anyActive, nil
}
