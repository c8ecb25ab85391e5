package executor

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/wbrown/janus-live/datalog"
	"github.com/wbrown/janus-live/datalog/fixpoint"
	"github.com/wbrown/janus-live/datalog/graph"
	"github.com/wbrown/janus-live/datalog/harness"
	"github.com/wbrown/janus-live/datalog/storage"
)

type stage int

const (
	// waiting for this time's ingress batch
	stageIngress stage = iota
	// agreeing with every peer whether to rebuild
	stageVote
	// exchanging messages until no lane is active
	stagePropagate
)

// lane is one lane's share of relational evaluation. It owns the node
// tuples, join entries and relation tuples that hash to it, and holds a
// full replica of the graph.
type lane struct {
	info    harness.Lane
	log     *zap.Logger
	ctx     Context
	ingress *harness.Ingress[Edit]
	mesh    *harness.Endpoint[message]
	limit   int

	graph   *graph.Graph
	invalid map[graph.Key]error
	facts   storage.FactStore

	outputs map[graph.Key]map[string]datalog.Tuple
	joins   map[graph.Key]*arrangement
	derived map[datalog.ResourceID]map[string]datalog.Tuple

	dirty    map[string]datalog.Fact
	reported map[string]datalog.Fact

	out     *outbox
	stage   stage
	rebuild bool
	rounds  int
	current harness.Time
	done    harness.Time
}

func newLane(info harness.Lane, opts Options, ingress *harness.Ingress[Edit], mesh *harness.Endpoint[message], facts storage.FactStore) *lane {
	return &lane{
		info:     info,
		log:      info.Logger,
		ctx:      NewContext(opts.Annotations, info.Index),
		ingress:  ingress,
		mesh:     mesh,
		limit:    opts.MaxRounds,
		graph:    graph.New(),
		invalid:  make(map[graph.Key]error),
		facts:    facts,
		outputs:  make(map[graph.Key]map[string]datalog.Tuple),
		joins:    make(map[graph.Key]*arrangement),
		derived:  make(map[datalog.ResourceID]map[string]datalog.Tuple),
		dirty:    make(map[string]datalog.Fact),
		reported: make(map[string]datalog.Fact),
		out:      newOutbox(info.Peers),
	}
}

func (l *lane) Pending(t harness.Time) bool { return l.done < t }

func (l *lane) AdvanceTo(harness.Time) {}

func (l *lane) Step() error {
	switch l.stage {
	case stageIngress:
		batch, err := l.ingress.Recv(l.info)
		if err != nil {
			return err
		}
		l.current = batch.Time
		l.ctx.EvalBegin(batch.Time)
		if err := l.apply(batch.Updates); err != nil {
			return err
		}
		l.stage = stageVote

	case stageVote:
		_, rebuild, err := l.mesh.Exchange(nil, l.rebuild)
		if err != nil {
			return err
		}
		if rebuild {
			if err := l.rebuildAll(); err != nil {
				return err
			}
		}
		l.rebuild = false
		l.rounds = 0
		l.stage = stagePropagate

	case stagePropagate:
		queues, n := l.out.take()
		in, active, err := l.mesh.Exchange(queues, n > 0)
		if err != nil {
			return err
		}
		if !active {
			l.ctx.EvalComplete(l.rounds, len(l.dirty))
			l.done = l.current
			l.stage = stageIngress
			return nil
		}
		l.rounds++
		if l.rounds > l.limit {
			return fmt.Errorf("time %d: %d rounds: %w", l.current, l.limit, fixpoint.ErrDiverged)
		}
		for _, m := range in {
			if err := l.handle(m); err != nil {
				return err
			}
		}
		l.ctx.EvalRound(l.rounds, len(in))
	}
	return nil
}

type factState struct {
	fact    datalog.Fact
	visible bool
}

// apply folds one batch of edits into the graph replica and the fact store
// and seeds propagation. Nodes and facts are compared against their state
// before the batch, so an edit undone within the same batch is a no-op.
func (l *lane) apply(edits []Edit) error {
	nodesBefore := make(map[graph.Key]bool)
	factsBefore := make(map[string]factState)
	var factOrder []string

	for _, e := range edits {
		if e.Node != nil {
			k := e.Node.Key()
			if _, seen := nodesBefore[k]; !seen {
				_, present := l.graph.Get(k)
				nodesBefore[k] = present
			}
			l.graph.Apply(e.Node, e.Diff)
			continue
		}
		k := e.Fact.Key()
		if _, seen := factsBefore[k]; !seen {
			count, err := l.facts.Count(e.Fact)
			if err != nil {
				return l.backend("read", e.Fact, err)
			}
			factsBefore[k] = factState{fact: e.Fact, visible: storage.Visible(count)}
			factOrder = append(factOrder, k)
		}
		if _, _, err := l.facts.Update(e.Fact, e.Diff); err != nil {
			return l.backend("update", e.Fact, err)
		}
	}

	wasInvalid := l.invalid
	if len(nodesBefore) > 0 {
		l.revalidate()
	}

	for k, was := range nodesBefore {
		if _, now := l.graph.Get(k); was && !now {
			l.rebuild = true
		}
	}

	var appeared []datalog.Fact
	for _, k := range factOrder {
		st := factsBefore[k]
		count, err := l.facts.Count(st.fact)
		if err != nil {
			return l.backend("read", st.fact, err)
		}
		now := storage.Visible(count)
		if now == st.visible {
			continue
		}
		l.dirty[k] = st.fact
		if now {
			appeared = append(appeared, st.fact)
		} else {
			l.rebuild = true
		}
	}

	if l.rebuild {
		// Seeds are recomputed from scratch once every lane agrees
		return nil
	}

	for _, f := range appeared {
		if !l.isDerived(f) {
			l.load(f)
		}
	}
	for _, k := range l.graph.Keys() {
		if !l.live(k) {
			continue
		}
		present, touched := nodesBefore[k]
		_, wasBad := wasInvalid[k]
		if (touched && !present) || wasBad {
			n, _ := l.graph.Get(k)
			if err := l.replay(k, n); err != nil {
				return err
			}
		}
	}
	return nil
}

// revalidate recomputes the set of nodes that cannot be evaluated
func (l *lane) revalidate() {
	invalid := make(map[graph.Key]error)
	for k, n := range l.graph.Nodes() {
		if err := l.graph.Validate(n); err != nil {
			invalid[k] = err
			if _, known := l.invalid[k]; !known && l.info.IsCoordinator() {
				l.log.Warn("node not evaluated", zap.Stringer("node", n), zap.Error(err))
			}
		}
	}
	l.invalid = invalid
}

// rebuildAll discards every derived tuple and re-seeds propagation from
// the external facts this lane owns
func (l *lane) rebuildAll() error {
	for k, f := range l.reported {
		l.dirty[k] = f
	}
	for r, set := range l.derived {
		for _, t := range set {
			f := datalog.Fact{Resource: r, Tuple: t}
			l.dirty[f.Key()] = f
		}
	}
	l.outputs = make(map[graph.Key]map[string]datalog.Tuple)
	l.joins = make(map[graph.Key]*arrangement)
	l.derived = make(map[datalog.ResourceID]map[string]datalog.Tuple)
	l.out.reset()
	l.ctx.EvalRebuild("retraction")
	l.log.Debug("rebuilding", zap.Uint64("time", uint64(l.current)))

	return l.facts.Each(func(f datalog.Fact, count int64) bool {
		if storage.Visible(count) {
			l.load(f)
		}
		return true
	})
}

func (l *lane) live(k graph.Key) bool {
	if _, ok := l.graph.Get(k); !ok {
		return false
	}
	_, bad := l.invalid[k]
	return !bad
}

func (l *lane) isDerived(f datalog.Fact) bool {
	_, ok := l.derived[f.Resource][f.Tuple.Key()]
	return ok
}

// backend reports a storage failure and wraps it
func (l *lane) backend(op string, subject fmt.Stringer, err error) error {
	l.log.Error("storage failure", zap.String("op", op), zap.Stringer("subject", subject), zap.Error(err))
	l.ctx.BackendError(op, err)
	return fmt.Errorf("%s %s: %w", op, subject, err)
}

func (l *lane) visible(f datalog.Fact) (bool, error) {
	if l.isDerived(f) {
		return true, nil
	}
	count, err := l.facts.Count(f)
	if err != nil {
		return false, err
	}
	return storage.Visible(count), nil
}

// load offers a newly visible relation tuple to every Load of its relation
func (l *lane) load(f datalog.Fact) {
	for _, k := range l.graph.Loaders(f.Resource) {
		if l.live(k) {
			l.out.send(message{kind: msgEmit, node: k, tuple: f.Tuple})
		}
	}
}

// replay feeds a node that just became live with the current state of its
// sources
func (l *lane) replay(k graph.Key, n graph.Node) error {
	switch n := n.(type) {
	case graph.Load:
		err := l.facts.Scan(n.Resource, func(t datalog.Tuple, count int64) bool {
			if storage.Visible(count) {
				l.out.send(message{kind: msgEmit, node: k, tuple: t})
			}
			return true
		})
		if err != nil {
			return l.backend("scan", n.Resource, err)
		}
		for _, t := range l.derived[n.Resource] {
			l.out.send(message{kind: msgEmit, node: k, tuple: t})
		}
	default:
		var done []graph.Key
		for _, src := range n.Inputs() {
			if slices.Contains(done, src) {
				continue
			}
			done = append(done, src)
			for _, t := range l.outputs[src] {
				l.dispatch(k, src, t)
			}
		}
	}
	return nil
}

func (l *lane) handle(m message) error {
	switch m.kind {
	case msgEmit:
		l.emit(m.node, m.tuple)
	case msgLeft:
		l.insertSide(m.node, leftSide, m.tuple, m.trail)
	case msgRight:
		l.insertSide(m.node, rightSide, m.tuple, m.trail)
	case msgStore:
		return l.store(datalog.Fact{Resource: m.resource, Tuple: m.tuple})
	}
	return nil
}

// emit records t as an output of node k and forwards it to the consumers
func (l *lane) emit(k graph.Key, t datalog.Tuple) {
	if !l.live(k) {
		return
	}
	set := l.outputs[k]
	if set == nil {
		set = make(map[string]datalog.Tuple)
		l.outputs[k] = set
	}
	tk := t.Key()
	if _, ok := set[tk]; ok {
		return
	}
	set[tk] = t
	for _, c := range l.graph.Consumers(k) {
		l.dispatch(c, k, t)
	}
}

// dispatch applies consumer c to a tuple produced by src
func (l *lane) dispatch(c, src graph.Key, t datalog.Tuple) {
	if !l.live(c) {
		return
	}
	n, _ := l.graph.Get(c)
	switch n := n.(type) {
	case graph.Project:
		p, ok := t.Project(n.Map)
		if !ok {
			l.drop(n, t, "projection index out of range")
			return
		}
		l.out.send(message{kind: msgEmit, node: c, tuple: p})
	case graph.Join:
		if len(t) < n.Num {
			l.drop(n, t, fmt.Sprintf("shorter than join key of %d", n.Num))
			return
		}
		prefix, trail := t[:n.Num:n.Num], t[n.Num:]
		if n.Lhs == src {
			l.out.send(message{kind: msgLeft, node: c, tuple: prefix, trail: trail})
		}
		if n.Rhs == src {
			l.out.send(message{kind: msgRight, node: c, tuple: prefix, trail: trail})
		}
	case graph.Store:
		p, ok := t.Project(n.Map)
		if !ok {
			l.drop(n, t, "projection index out of range")
			return
		}
		l.out.send(message{kind: msgStore, resource: n.Dst, tuple: p})
	}
}

func (l *lane) drop(n graph.Node, t datalog.Tuple, reason string) {
	l.log.Warn("dropped tuple",
		zap.Stringer("node", n),
		zap.Stringer("tuple", t),
		zap.String("reason", reason))
	l.ctx.Dropped(n, t, reason)
}

func (l *lane) insertSide(k graph.Key, s joinSide, prefix, trail datalog.Tuple) {
	if !l.live(k) {
		return
	}
	arr := l.joins[k]
	if arr == nil {
		arr = newArrangement()
		l.joins[k] = arr
	}
	joined, added := arr.insert(s, prefix, trail)
	if !added {
		return
	}
	for _, t := range joined {
		l.out.send(message{kind: msgEmit, node: k, tuple: t})
	}
	if len(joined) > 0 {
		l.ctx.JoinProbe(k, len(joined))
	}
}

// store adds a derived tuple to a relation. Tuples that were not visible
// before become inputs of every Load of the relation.
func (l *lane) store(f datalog.Fact) error {
	set := l.derived[f.Resource]
	if set == nil {
		set = make(map[string]datalog.Tuple)
		l.derived[f.Resource] = set
	}
	tk := f.Tuple.Key()
	if _, ok := set[tk]; ok {
		return nil
	}
	set[tk] = f.Tuple

	count, err := l.facts.Count(f)
	if err != nil {
		return l.backend("read", f, err)
	}
	if storage.Visible(count) {
		return nil
	}
	l.dirty[f.Key()] = f
	l.load(f)
	return nil
}

// Results reports the visible relation tuples this lane owns that changed
// since the previous call
func (l *lane) Results() []Change {
	changes := make([]Change, 0, len(l.dirty))
	for k, f := range l.dirty {
		vis, err := l.visible(f)
		if err != nil {
			// Stays dirty so the next step retries it
			_ = l.backend("read", f, err)
			continue
		}
		delete(l.dirty, k)
		_, was := l.reported[k]
		switch {
		case vis && !was:
			l.reported[k] = f
			changes = append(changes, Change{Resource: f.Resource, Tuple: f.Tuple, Diff: 1})
		case !vis && was:
			delete(l.reported, k)
			changes = append(changes, Change{Resource: f.Resource, Tuple: f.Tuple, Diff: -1})
		}
	}
	slices.SortFunc(changes, compareChanges)
	return changes
}

// Close releases the lane's fact store
func (l *lane) Close() error {
	return l.facts.Close()
}
