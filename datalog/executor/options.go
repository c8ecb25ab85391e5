package executor

import (
	"go.uber.org/zap"

	"github.com/wbrown/janus-live/datalog/annotations"
	"github.com/wbrown/janus-live/datalog/fixpoint"
	"github.com/wbrown/janus-live/datalog/harness"
	"github.com/wbrown/janus-live/datalog/storage"
)

// Options configures evaluation sessions
type Options struct {
	// Workers is the number of lanes. Defaults to runtime.NumCPU().
	Workers int

	// Store selects the fact storage backend of every lane
	// (storage.BackendMemory or storage.BackendBadger)
	Store string

	// MaxRounds bounds the propagation rounds of one logical time.
	// Zero means fixpoint.DefaultMaxRounds.
	MaxRounds int

	Logger      *zap.Logger
	Metrics     *harness.Metrics
	Annotations *annotations.Collector
}

func (o Options) withDefaults() Options {
	if o.Store == "" {
		o.Store = storage.BackendMemory
	}
	if o.MaxRounds <= 0 {
		o.MaxRounds = fixpoint.DefaultMaxRounds
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func (o Options) harness() harness.Options {
	return harness.Options{
		Workers:     o.Workers,
		Logger:      o.Logger,
		Metrics:     o.Metrics,
		Annotations: o.Annotations,
	}
}
