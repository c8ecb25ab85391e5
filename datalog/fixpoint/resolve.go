package fixpoint

// Resolved is the canonical value chosen for a key
type Resolved[K comparable, V any] struct {
	Key   K
	Value V
}

// Conflict describes a candidate that disagreed with the canonical value
type Conflict[K comparable, V any] struct {
	Key       K
	Canonical V
	Candidate V
}

// Resolver implements first-wins conflict resolution: the first candidate
// proposed for a key is canonical for the rest of the computation.
type Resolver[K comparable, V any] struct {
	equal     func(a, b V) bool
	canonical map[K]V
	order     []K
}

// NewResolver creates a resolver comparing candidates with equal
func NewResolver[K comparable, V any](equal func(a, b V) bool) *Resolver[K, V] {
	return &Resolver[K, V]{equal: equal, canonical: make(map[K]V)}
}

// Propose offers candidate for key. The returned flag is false when there is
// nothing to report (the candidate agrees with the canonical value).
// Otherwise the result is Ok for a newly canonical value and Err for a
// disagreeing candidate.
func (r *Resolver[K, V]) Propose(key K, candidate V) (Result[Resolved[K, V], Conflict[K, V]], bool) {
	current, ok := r.canonical[key]
	if !ok {
		r.canonical[key] = candidate
		r.order = append(r.order, key)
		return Ok[Resolved[K, V], Conflict[K, V]](Resolved[K, V]{Key: key, Value: candidate}), true
	}
	if r.equal(current, candidate) {
		return Result[Resolved[K, V], Conflict[K, V]]{}, false
	}
	return Err[Resolved[K, V]](Conflict[K, V]{Key: key, Canonical: current, Candidate: candidate}), true
}

// Get returns the canonical value for key
func (r *Resolver[K, V]) Get(key K) (V, bool) {
	v, ok := r.canonical[key]
	return v, ok
}

// Keys returns resolved keys in resolution order
func (r *Resolver[K, V]) Keys() []K { return r.order }

// Len returns the number of resolved keys
func (r *Resolver[K, V]) Len() int { return len(r.order) }

// Candidate is a proposed value for a key
type Candidate[K comparable, V any] struct {
	Key   K
	Value V
}

// ResolveFirst resolves a batch of candidates in order. It returns the
// canonical value per key and one conflict per disagreeing candidate.
func ResolveFirst[K comparable, V any](candidates []Candidate[K, V], equal func(a, b V) bool) (map[K]V, []Conflict[K, V]) {
	r := NewResolver[K, V](equal)
	var conflicts []Conflict[K, V]
	for _, c := range candidates {
		res, ok := r.Propose(c.Key, c.Value)
		if !ok {
			continue
		}
		if d, isErr := res.Diagnostic(); isErr {
			conflicts = append(conflicts, d)
		}
	}
	return r.canonical, conflicts
}
