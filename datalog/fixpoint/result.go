package fixpoint

// Result is the outcome of one sub-computation: a value or a diagnostic
type Result[T any, D any] struct {
	value T
	diag  D
	isErr bool
}

// Ok wraps a successful value
func Ok[T any, D any](v T) Result[T, D] { return Result[T, D]{value: v} }

// Err wraps a diagnostic
func Err[T any, D any](d D) Result[T, D] { return Result[T, D]{diag: d, isErr: true} }

// IsErr reports whether r holds a diagnostic
func (r Result[T, D]) IsErr() bool { return r.isErr }

// Value returns the value and whether r is Ok
func (r Result[T, D]) Value() (T, bool) { return r.value, !r.isErr }

// Diagnostic returns the diagnostic and whether r is Err
func (r Result[T, D]) Diagnostic() (D, bool) { return r.diag, r.isErr }

// Aggregate accumulates diagnostics monotonically, dropping duplicates.
// Order of first insertion is preserved.
type Aggregate[D Keyed] struct {
	seen  map[string]struct{}
	items []D
}

// NewAggregate creates an empty aggregate
func NewAggregate[D Keyed]() *Aggregate[D] {
	return &Aggregate[D]{seen: make(map[string]struct{})}
}

// Add records d. Returns false if an identical diagnostic was recorded.
func (a *Aggregate[D]) Add(d D) bool {
	key := d.Key()
	if _, ok := a.seen[key]; ok {
		return false
	}
	a.seen[key] = struct{}{}
	a.items = append(a.items, d)
	return true
}

// Items returns the recorded diagnostics in insertion order
func (a *Aggregate[D]) Items() []D { return a.items }

// Len returns the number of distinct diagnostics
func (a *Aggregate[D]) Len() int { return len(a.items) }

// Split routes Ok values to the returned slice and Err values into agg
func Split[T any, D Keyed](results []Result[T, D], agg *Aggregate[D]) []T {
	var out []T
	for _, r := range results {
		if r.isErr {
			agg.Add(r.diag)
			continue
		}
		out = append(out, r.value)
	}
	return out
}
