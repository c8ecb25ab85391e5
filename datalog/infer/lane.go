package infer

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wbrown/janus-live/datalog/annotations"
	"github.com/wbrown/janus-live/datalog/harness"
	"github.com/wbrown/janus-live/datalog/query"
	"github.com/wbrown/janus-live/datalog/zset"
)

// Edit adds or removes one item of a document
type Edit struct {
	Context string
	Item    query.Item
	Diff    int64
}

// Outcome is a signed change to what inference reports for a document:
// exactly one of Diagnostic and Hint is set
type Outcome struct {
	Context    string
	Diagnostic *query.Diagnostic
	Hint       *query.InlayHint
	Diff       int64
}

func (o Outcome) Key() string {
	if o.Diagnostic != nil {
		return o.Context + "\x00" + o.Diagnostic.Key()
	}
	return o.Context + "\x00" + o.Hint.Key()
}

func (o Outcome) span() query.Span {
	if o.Diagnostic != nil {
		return o.Diagnostic.Span
	}
	return o.Hint.Span
}

func (o Outcome) String() string {
	if o.Diagnostic != nil {
		return fmt.Sprintf("%+d %s:%s", o.Diff, o.Context, o.Diagnostic)
	}
	return fmt.Sprintf("%+d %s:%s", o.Diff, o.Context, o.Hint)
}

func compareOutcomes(a, b Outcome) int {
	if c := strings.Compare(a.Context, b.Context); c != 0 {
		return c
	}
	// Diagnostics before hints
	if c := cmp.Compare(boolRank(a.Diagnostic == nil), boolRank(b.Diagnostic == nil)); c != 0 {
		return c
	}
	sa, sb := a.span(), b.span()
	if sa.Start != sb.Start {
		if sa.Start.Before(sb.Start) {
			return -1
		}
		return 1
	}
	if c := strings.Compare(a.Key(), b.Key()); c != 0 {
		return c
	}
	return cmp.Compare(a.Diff, b.Diff)
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// outcomes lists what a result reports for context
func (r *Result) outcomes(context string) []Outcome {
	out := make([]Outcome, 0, len(r.Diagnostics)+len(r.Hints))
	for _, d := range r.Diagnostics {
		out = append(out, Outcome{Context: context, Diagnostic: d, Diff: 1})
	}
	for i := range r.Hints {
		out = append(out, Outcome{Context: context, Hint: &r.Hints[i], Diff: 1})
	}
	return out
}

// sortItems orders items by source position, which makes first-wins
// resolution follow the document
func sortItems(items []query.Item) {
	slices.SortStableFunc(items, func(a, b query.Item) int {
		sa, sb := a.ItemSpan().Start, b.ItemSpan().Start
		if sa != sb {
			if sa.Before(sb) {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Key(), b.Key())
	})
}

// lane infers the documents whose context hashes to it. Documents are
// independent, so lanes never exchange messages.
type lane struct {
	info      harness.Lane
	log       *zap.Logger
	ingress   *harness.Ingress[Edit]
	collector *annotations.Collector

	docs     map[string]*zset.ZSet[query.Item]
	reported map[string]map[string]Outcome
	pending  []Outcome
	done     harness.Time
}

func (l *lane) Pending(t harness.Time) bool { return l.done < t }

func (l *lane) AdvanceTo(harness.Time) {}

func (l *lane) Step() error {
	batch, err := l.ingress.Recv(l.info)
	if err != nil {
		return err
	}

	var touched []string
	for _, e := range batch.Updates {
		doc := l.docs[e.Context]
		if doc == nil {
			doc = zset.New[query.Item]()
			l.docs[e.Context] = doc
		}
		doc.Update(e.Item, e.Diff)
		if !slices.Contains(touched, e.Context) {
			touched = append(touched, e.Context)
		}
	}

	for _, context := range touched {
		if err := l.infer(context); err != nil {
			return err
		}
	}
	l.done = batch.Time
	return nil
}

// infer re-runs inference for one document and queues the difference
// against what was reported before
func (l *lane) infer(context string) error {
	start := time.Now()
	current := make(map[string]Outcome)

	var result *Result
	if doc := l.docs[context]; doc != nil && !doc.IsEmpty() {
		items := doc.Positive()
		sortItems(items)
		var err error
		result, err = Infer(items)
		if err != nil {
			return fmt.Errorf("context %s: %w", context, err)
		}
		for _, o := range result.outcomes(context) {
			current[o.Key()] = o
		}
	} else {
		delete(l.docs, context)
	}

	previous := l.reported[context]
	for k, o := range current {
		if _, ok := previous[k]; !ok {
			l.pending = append(l.pending, o)
		}
	}
	for k, o := range previous {
		if _, ok := current[k]; !ok {
			o.Diff = -1
			l.pending = append(l.pending, o)
		}
	}
	if len(current) == 0 {
		delete(l.reported, context)
	} else {
		l.reported[context] = current
	}

	data := map[string]any{"context": context}
	if result != nil {
		data["rounds"] = result.Rounds
		data["types"] = len(result.Types)
		data["diagnostics"] = len(result.Diagnostics)
		l.log.Debug("inferred",
			zap.String("context", context),
			zap.Int("rounds", result.Rounds),
			zap.Int("diagnostics", len(result.Diagnostics)))
	}
	l.collector.AddTiming(annotations.InferContext, l.info.Index, start, data)
	return nil
}

func (l *lane) Results() []Outcome {
	out := l.pending
	l.pending = nil
	slices.SortFunc(out, compareOutcomes)
	return out
}

// input routes every edit to the lane owning its document
type input struct {
	router *harness.Router[Edit]
}

func (in *input) OnUpdate(e Edit) {
	if e.Diff == 0 || e.Item == nil {
		return
	}
	in.router.Route(harness.OwnerString(e.Context, in.router.Peers()), e)
}

func (in *input) AdvanceTo(t harness.Time) { in.router.AdvanceTo(t) }

func (in *input) Flush() { in.router.Flush() }

// NewBuilder returns a harness builder creating inference lanes.
// A builder must be used for exactly one harness.Run.
func NewBuilder(collector *annotations.Collector) harness.Builder[Edit, Outcome] {
	var (
		once    sync.Once
		ingress *harness.Ingress[Edit]
	)
	return func(hl harness.Lane) (harness.Input[Edit], harness.Output[Outcome], error) {
		once.Do(func() { ingress = harness.NewIngress[Edit](hl.Peers) })
		out := &lane{
			info:      hl,
			log:       hl.Logger,
			ingress:   ingress,
			collector: collector,
			docs:      make(map[string]*zset.ZSet[query.Item]),
			reported:  make(map[string]map[string]Outcome),
		}
		if !hl.IsCoordinator() {
			return nil, out, nil
		}
		return &input{router: harness.NewRouter(ingress, hl)}, out, nil
	}
}
