// Package workspace keeps a set of source documents live. Every update to
// a document is diffed against its previous items; removed and added items
// are forwarded to type inference, and their compiled plans to the
// evaluator, as one step each.
package workspace

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wbrown/janus-live/datalog"
	"github.com/wbrown/janus-live/datalog/annotations"
	"github.com/wbrown/janus-live/datalog/executor"
	"github.com/wbrown/janus-live/datalog/harness"
	"github.com/wbrown/janus-live/datalog/infer"
	"github.com/wbrown/janus-live/datalog/parser"
	"github.com/wbrown/janus-live/datalog/planner"
	"github.com/wbrown/janus-live/datalog/query"
)

// Options configures a workspace
type Options struct {
	// Workers is the lane count of each session
	Workers int
	// Store is the evaluator's fact storage backend
	Store string
	// MaxRounds bounds evaluation rounds per step
	MaxRounds int
	// CacheSize bounds the compiled plan cache
	CacheSize int

	Logger       *zap.Logger
	EvalMetrics  *harness.Metrics
	InferMetrics *harness.Metrics
	Annotations  *annotations.Collector
}

// Report is what one update changed
type Report struct {
	Context  string
	Removed  int
	Added    int
	Outcomes []infer.Outcome
	Delta    executor.Delta
}

// Workspace owns one inference session and one evaluation session
type Workspace struct {
	log   *zap.Logger
	infer *infer.Session
	eval  *executor.Session
	plans *planner.PlanCache

	mu   sync.Mutex
	docs map[string]map[string]query.Item
}

// New starts both sessions
func New(ctx context.Context, opts Options) (*Workspace, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	plans, err := planner.NewPlanCache(opts.CacheSize)
	if err != nil {
		return nil, err
	}

	is, err := infer.NewSession(ctx, infer.Options{
		Workers:     opts.Workers,
		Logger:      opts.Logger.Named("infer"),
		Metrics:     opts.InferMetrics,
		Annotations: opts.Annotations,
	})
	if err != nil {
		return nil, fmt.Errorf("start inference: %w", err)
	}
	es, err := executor.NewSession(ctx, executor.Options{
		Workers:     opts.Workers,
		Store:       opts.Store,
		MaxRounds:   opts.MaxRounds,
		Logger:      opts.Logger.Named("eval"),
		Metrics:     opts.EvalMetrics,
		Annotations: opts.Annotations,
	})
	if err != nil {
		_ = is.Close()
		return nil, fmt.Errorf("start evaluation: %w", err)
	}

	return &Workspace{
		log:   opts.Logger,
		infer: is,
		eval:  es,
		plans: plans,
		docs:  make(map[string]map[string]query.Item),
	}, nil
}

// Update replaces the source text of a document. An empty src removes
// every item of the document.
func (w *Workspace) Update(ctx context.Context, doc, src string) (*Report, error) {
	return w.SetItems(ctx, doc, parser.Parse(src))
}

// Remove drops a document
func (w *Workspace) Remove(ctx context.Context, doc string) (*Report, error) {
	return w.SetItems(ctx, doc, nil)
}

// SetItems replaces the items of a document with items
func (w *Workspace) SetItems(ctx context.Context, doc string, items []query.Item) (*Report, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	old := w.docs[doc]
	next := make(map[string]query.Item, len(items))
	for _, it := range items {
		next[it.Key()] = it
	}

	report := &Report{Context: doc}
	var inferEdits []infer.Edit
	var evalEdits []executor.Edit
	diff := func(item query.Item, sign int64) {
		inferEdits = append(inferEdits, infer.Edit{Context: doc, Item: item, Diff: sign})
		if plan, ok := w.plans.Compile(doc, item); ok {
			evalEdits = append(evalEdits, plan.Edits(sign)...)
		}
	}
	for _, k := range sortedKeys(old) {
		if _, keep := next[k]; !keep {
			diff(old[k], -1)
			report.Removed++
		}
	}
	for _, k := range sortedKeys(next) {
		if _, had := old[k]; !had {
			diff(next[k], 1)
			report.Added++
		}
	}

	if len(next) == 0 {
		delete(w.docs, doc)
	} else {
		w.docs[doc] = next
	}
	if report.Removed == 0 && report.Added == 0 {
		return report, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := w.infer.Apply(gctx, inferEdits...)
		report.Outcomes = out
		return err
	})
	g.Go(func() error {
		delta, err := w.eval.Apply(gctx, evalEdits...)
		report.Delta = delta
		return err
	})
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("update %s: %w", doc, err)
	}

	w.log.Debug("document updated",
		zap.String("context", doc),
		zap.Int("removed", report.Removed),
		zap.Int("added", report.Added),
		zap.Int("outcomes", len(report.Outcomes)),
		zap.Int("changes", len(report.Delta)))
	return report, nil
}

func sortedKeys(m map[string]query.Item) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		sa, sb := m[a].ItemSpan().Start, m[b].ItemSpan().Start
		if sa != sb {
			if sa.Before(sb) {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	})
	return keys
}

// Items returns the current items of a document in source order
func (w *Workspace) Items(context string) []query.Item {
	w.mu.Lock()
	defer w.mu.Unlock()
	doc := w.docs[context]
	out := make([]query.Item, 0, len(doc))
	for _, k := range sortedKeys(doc) {
		out = append(out, doc[k])
	}
	return out
}

// Contexts returns every open document
func (w *Workspace) Contexts() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.docs))
	for c := range w.docs {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Diagnostics returns the current diagnostics of a document
func (w *Workspace) Diagnostics(context string) []*query.Diagnostic {
	return w.infer.Diagnostics(context)
}

// Hints returns the current inlay hints of a document
func (w *Workspace) Hints(context string) []query.InlayHint {
	return w.infer.Hints(context)
}

// Relation returns the visible tuples of a relation declared in context
func (w *Workspace) Relation(context, name string) []datalog.Tuple {
	return w.eval.Relation(datalog.NewResourceID(context, name))
}

// Relations returns the non-empty relations of a document. Literal
// relations created by the planner are omitted.
func (w *Workspace) Relations(context string) []datalog.ResourceID {
	var out []datalog.ResourceID
	for _, r := range w.eval.Relations() {
		if r.Context() == context && !planner.IsLiteral(r) {
			out = append(out, r)
		}
	}
	return out
}

// Close stops both sessions
func (w *Workspace) Close() error {
	ierr := w.infer.Close()
	eerr := w.eval.Close()
	if ierr != nil {
		return ierr
	}
	return eerr
}
