package harness

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// sum computation: every update is routed to lane |u| % peers, then
// forwarded through the mesh to lane 0, which reports what it received.

type sumInput struct {
	router *Router[int]
}

func (in *sumInput) OnUpdate(u int) {
	k := u
	if k < 0 {
		k = -k
	}
	in.router.Route(k%in.router.Peers(), u)
}
func (in *sumInput) AdvanceTo(t Time) { in.router.AdvanceTo(t) }
func (in *sumInput) Flush()           { in.router.Flush() }

type sumOutput struct {
	lane      Lane
	ingress   *Ingress[int]
	endpoint  *Endpoint[int]
	time      Time
	completed Time
	received  bool
	active    bool
	local     []int
	collected []int
}

func (o *sumOutput) Pending(t Time) bool { return o.completed < t }
func (o *sumOutput) AdvanceTo(t Time)    { o.time = t }

func (o *sumOutput) Step() error {
	if !o.received {
		b, err := o.ingress.Recv(o.lane)
		if err != nil {
			return err
		}
		o.local = b.Updates
		o.active = len(b.Updates) > 0
		o.received = true
		return nil
	}
	out := make([][]int, o.endpoint.Peers())
	out[0] = o.local
	in, any, err := o.endpoint.Exchange(out, o.active)
	if err != nil {
		return err
	}
	o.local, o.active = nil, false
	o.collected = append(o.collected, in...)
	if !any {
		o.completed = o.time
		o.received = false
	}
	return nil
}

func (o *sumOutput) Results() []int {
	r := o.collected
	o.collected = nil
	return r
}

func sumBuilder() Builder[int, int] {
	var (
		once    sync.Once
		ingress *Ingress[int]
		mesh    *Mesh[int]
	)
	return func(lane Lane) (Input[int], Output[int], error) {
		once.Do(func() {
			ingress = NewIngress[int](lane.Peers)
			mesh = NewMesh[int](lane.Peers)
		})
		out := &sumOutput{lane: lane, ingress: ingress, endpoint: mesh.Endpoint(lane)}
		if !lane.IsCoordinator() {
			return nil, out, nil
		}
		return &sumInput{router: NewRouter(ingress, lane)}, out, nil
	}
}

func collect[R any](t *testing.T, steps <-chan Step[R]) []Step[R] {
	t.Helper()
	var out []Step[R]
	timeout := time.After(10 * time.Second)
	for {
		select {
		case s, ok := <-steps:
			if !ok {
				return out
			}
			out = append(out, s)
		case <-timeout:
			t.Fatal("harness did not finish")
			return out
		}
	}
}

func TestRunAcrossLanes(t *testing.T) {
	for _, workers := range []int{1, 2, 4} {
		updates := make(chan []int)
		steps, err := Run(context.Background(), updates, Options{Workers: workers, Logger: zaptest.NewLogger(t)}, sumBuilder())
		require.NoError(t, err)

		updates <- []int{1, 2, 3, 4, 5}
		s := <-steps
		assert.Equal(t, Time(1), s.Time)
		got := slices.Clone(s.Results)
		slices.Sort(got)
		assert.Equal(t, []int{1, 2, 3, 4, 5}, got, "workers=%d", workers)

		updates <- nil
		s = <-steps
		assert.Equal(t, Time(2), s.Time)
		assert.Empty(t, s.Results, "empty batch still advances time")

		close(updates)
		assert.Empty(t, collect(t, steps))
	}
}

func TestCoalescesQueuedBatches(t *testing.T) {
	updates := make(chan []int, 3)
	updates <- []int{1}
	updates <- []int{2}
	updates <- []int{3}
	close(updates)

	steps, err := Run(context.Background(), updates, Options{Workers: 2}, sumBuilder())
	require.NoError(t, err)

	all := collect(t, steps)
	require.Len(t, all, 1)
	assert.Equal(t, 3, all[0].Batches)
	assert.ElementsMatch(t, []int{1, 2, 3}, all[0].Results)
}

func TestPhaseSequence(t *testing.T) {
	var mu sync.Mutex
	var phases []Phase
	updates := make(chan []int, 1)
	updates <- []int{7}
	close(updates)

	steps, err := Run(context.Background(), updates, Options{
		Workers: 2,
		OnPhase: func(_ Time, p Phase) {
			mu.Lock()
			phases = append(phases, p)
			mu.Unlock()
		},
	}, sumBuilder())
	require.NoError(t, err)
	collect(t, steps)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Phase{Idle, EditsApplied, Advancing, Draining, ResultsCollected}, phases)
}

// independent lanes: each needs a fixed number of steps per time and
// reports its index once done
type slowOutput struct {
	index     int
	delay     time.Duration
	steps     int
	remaining int
	time      Time
	finished  *sync.Map // Time -> lane count done
	done      int32
}

func (o *slowOutput) AdvanceTo(t Time) {
	o.time = t
	o.remaining = o.steps
}
func (o *slowOutput) Pending(Time) bool { return o.remaining > 0 }
func (o *slowOutput) Step() error {
	time.Sleep(o.delay)
	o.remaining--
	if o.remaining == 0 {
		atomic.StoreInt32(&o.done, 1)
		v, _ := o.finished.LoadOrStore(o.time, new(int32))
		atomic.AddInt32(v.(*int32), 1)
	}
	return nil
}
func (o *slowOutput) Results() []int { return []int{o.index} }

type nopInput struct{}

func (nopInput) OnUpdate(int)   {}
func (nopInput) AdvanceTo(Time) {}
func (nopInput) Flush()         {}

func TestResultsWaitForSlowestLane(t *testing.T) {
	finished := &sync.Map{}
	const workers = 4
	build := func(lane Lane) (Input[int], Output[int], error) {
		out := &slowOutput{index: lane.Index, steps: 3, finished: finished}
		if lane.Index == workers-1 {
			out.delay = 20 * time.Millisecond
		}
		return nopInput{}, out, nil
	}

	updates := make(chan []int)
	steps, err := Run(context.Background(), updates, Options{Workers: workers}, build)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		updates <- []int{i}
		s := <-steps
		v, ok := finished.Load(s.Time)
		require.True(t, ok)
		assert.Equal(t, int32(workers), atomic.LoadInt32(v.(*int32)),
			"every lane finished time %d before its results were observable", s.Time)
		assert.ElementsMatch(t, []int{0, 1, 2, 3}, s.Results)
	}
	close(updates)
	collect(t, steps)
}

func TestCancelBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan []int)
	steps, err := Run(ctx, updates, Options{Workers: 3}, sumBuilder())
	require.NoError(t, err)

	updates <- []int{1}
	<-steps
	cancel()
	assert.Empty(t, collect(t, steps))
}

func TestBuilderError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Run(context.Background(), make(chan []int), Options{Workers: 2},
		func(lane Lane) (Input[int], Output[int], error) {
			if lane.Index == 1 {
				return nil, nil, boom
			}
			return nopInput{}, &slowOutput{finished: &sync.Map{}}, nil
		})
	assert.ErrorIs(t, err, boom)
}

type failingOutput struct{ slowOutput }

func (f *failingOutput) Step() error { return errors.New("lane exploded") }

func TestWorkerFailureEndsStream(t *testing.T) {
	build := func(lane Lane) (Input[int], Output[int], error) {
		base := slowOutput{index: lane.Index, steps: 1, finished: &sync.Map{}}
		if lane.Index == 1 {
			return nopInput{}, &failingOutput{base}, nil
		}
		return nopInput{}, &base, nil
	}
	updates := make(chan []int, 1)
	updates <- []int{1}
	steps, err := Run(context.Background(), updates, Options{Workers: 2}, build)
	require.NoError(t, err)
	assert.Empty(t, collect(t, steps), "the stream ends without a partial step")
}

func TestMetrics(t *testing.T) {
	m := NewMetrics("janus_test")
	reg := prometheus.NewRegistry()
	require.NoError(t, m.RegisterAll(reg))

	updates := make(chan []int, 2)
	updates <- []int{1, 2}
	updates <- []int{3}
	close(updates)
	steps, err := Run(context.Background(), updates, Options{Workers: 2, Metrics: m}, sumBuilder())
	require.NoError(t, err)
	collect(t, steps)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.steps))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.batches))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.laneResults.WithLabelValues("0")))
	assert.Equal(t, float64(ResultsCollected), testutil.ToFloat64(m.phase), "last phase before shutdown")

	m.UnregisterAll(reg)
	var nilMetrics *Metrics
	assert.NoError(t, nilMetrics.RegisterAll(reg))
}

func TestOwnerIsStable(t *testing.T) {
	assert.Equal(t, 0, Owner([]byte("x"), 1))
	a := OwnerString("Edge", 8)
	assert.Equal(t, a, Owner([]byte("Edge"), 8))
	assert.GreaterOrEqual(t, a, 0)
	assert.Less(t, a, 8)
}
