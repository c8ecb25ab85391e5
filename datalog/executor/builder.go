package executor

import (
	"fmt"
	"sync"

	"github.com/wbrown/janus-live/datalog/harness"
	"github.com/wbrown/janus-live/datalog/storage"
)

// input routes coordinator edits: graph edits go to every lane, fact edits
// to the lane owning the fact
type input struct {
	router *harness.Router[Edit]
}

func (in *input) OnUpdate(e Edit) {
	if e.Diff == 0 {
		return
	}
	if e.Node != nil {
		in.router.Broadcast(e)
		return
	}
	in.router.Route(factOwner(e.Fact, in.router.Peers()), e)
}

func (in *input) AdvanceTo(t harness.Time) { in.router.AdvanceTo(t) }

func (in *input) Flush() { in.router.Flush() }

// NewBuilder returns a harness builder creating evaluator lanes.
// A builder must be used for exactly one harness.Run.
func NewBuilder(opts Options) harness.Builder[Edit, Change] {
	opts = opts.withDefaults()
	var (
		once    sync.Once
		ingress *harness.Ingress[Edit]
		mesh    *harness.Mesh[message]
	)
	return func(hl harness.Lane) (harness.Input[Edit], harness.Output[Change], error) {
		once.Do(func() {
			ingress = harness.NewIngress[Edit](hl.Peers)
			mesh = harness.NewMesh[message](hl.Peers)
		})
		facts, err := storage.Open(opts.Store)
		if err != nil {
			return nil, nil, fmt.Errorf("open fact store: %w", err)
		}
		out := newLane(hl, opts, ingress, mesh.Endpoint(hl), facts)
		if !hl.IsCoordinator() {
			return nil, out, nil
		}
		return &input{router: harness.NewRouter(ingress, hl)}, out, nil
	}
}
