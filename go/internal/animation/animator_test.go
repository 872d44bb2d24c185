package animation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/boardwalk/go/internal/realtime"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stepInterval = 200 * time.Millisecond

type stepRecorder struct {
	mu    sync.Mutex
	steps map[string][]int
}

func (r *stepRecorder) record(id string, pos int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[id] = append(r.steps[id], pos)
}

func (r *stepRecorder) For(id string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.steps[id]...)
}

func newTestAnimator(t *testing.T) (*Animator, *clockwork.FakeClock, *stepRecorder) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	a := NewAnimator(DefaultConfig(), WithClock(clock), WithLogger(zerolog.Nop()))
	rec := &stepRecorder{steps: make(map[string][]int)}
	a.OnStep(rec.record)
	t.Cleanup(a.Close)
	return a, clock, rec
}

// advanceSteps lets n pending steps fire, one timer at a time.
func advanceSteps(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		require.NoError(t, clock.BlockUntilContext(ctx, 1), "step %d never armed", i+1)
		cancel()
		clock.Advance(stepInterval)
	}
}

func waitForDisplay(t *testing.T, a *Animator, id string, want int) {
	t.Helper()
	assert.Eventually(t, func() bool {
		pos, _ := a.DisplayPos(id)
		return pos == want
	}, 2*time.Second, time.Millisecond)
}

func waitIdle(t *testing.T, a *Animator, id string) {
	t.Helper()
	assert.Eventually(t, func() bool {
		e, ok := a.Entry(id)
		return ok && e.StepsRemaining == 0
	}, 2*time.Second, time.Millisecond)
}

func snapshot(players ...realtime.Player) realtime.Snapshot {
	return realtime.Snapshot{Players: players}
}

func TestSteps_AllPairs(t *testing.T) {
	const n = 40
	for p := 0; p < n; p++ {
		for q := 0; q < n; q++ {
			got := Steps(p, q, n, true)
			if p == q {
				assert.Equal(t, n, got, "%d->%d", p, q)
				continue
			}
			assert.Equal(t, (q-p+n)%n, got, "%d->%d", p, q)
			assert.Equal(t, q, (p+got)%n, "%d->%d lands on target", p, q)
		}
	}
	assert.Zero(t, Steps(7, 7, n, false))
}

func TestAnimator_FirstObservationPlacesDirectly(t *testing.T) {
	a, _, rec := newTestAnimator(t)
	a.Observe(snapshot(realtime.Player{ID: "p1", Pos: 17}))

	pos, ok := a.DisplayPos("p1")
	require.True(t, ok)
	assert.Equal(t, 17, pos)
	e, _ := a.Entry("p1")
	assert.Zero(t, e.StepsRemaining)
	assert.Empty(t, rec.For("p1"))
}

func TestAnimator_StepsForward(t *testing.T) {
	a, clock, rec := newTestAnimator(t)
	a.Observe(snapshot(realtime.Player{ID: "p1", Pos: 5}))
	a.Observe(snapshot(realtime.Player{ID: "p1", Pos: 9}))

	e, _ := a.Entry("p1")
	assert.Equal(t, Entry{DisplayPos: 5, TargetPos: 9, StepsRemaining: 4}, e)

	advanceSteps(t, clock, 4)
	waitIdle(t, a, "p1")

	assert.Equal(t, []int{6, 7, 8, 9}, rec.For("p1"))
	pos, _ := a.DisplayPos("p1")
	assert.Equal(t, 9, pos)
}

func TestAnimator_WrapAround(t *testing.T) {
	a, clock, rec := newTestAnimator(t)
	a.Observe(snapshot(realtime.Player{ID: "p1", Pos: 3}))
	a.Observe(snapshot(realtime.Player{ID: "p1", Pos: 1}))

	advanceSteps(t, clock, 38)
	waitIdle(t, a, "p1")

	got := rec.For("p1")
	require.Len(t, got, 38)
	assert.Equal(t, 4, got[0])
	assert.Equal(t, 39, got[35])
	assert.Equal(t, 0, got[36])
	assert.Equal(t, 1, got[37])
}

func TestAnimator_SampledPairs(t *testing.T) {
	pairs := [][2]int{{0, 1}, {0, 39}, {39, 0}, {12, 12}, {20, 5}, {38, 2}}
	for _, pq := range pairs {
		a, clock, rec := newTestAnimator(t)
		a.Observe(snapshot(realtime.Player{ID: "p", Pos: pq[0]}))
		a.MoveTo("p", pq[1])

		steps := Steps(pq[0], pq[1], 40, true)
		advanceSteps(t, clock, steps)
		waitIdle(t, a, "p")

		pos, _ := a.DisplayPos("p")
		assert.Equal(t, pq[1], pos, "%d->%d", pq[0], pq[1])
		assert.Len(t, rec.For("p"), steps, "%d->%d", pq[0], pq[1])
	}
}

func TestAnimator_MoveToSameTileIsFullLap(t *testing.T) {
	a, clock, rec := newTestAnimator(t)
	a.Observe(snapshot(realtime.Player{ID: "p1", Pos: 10}))
	a.MoveTo("p1", 10)

	e, _ := a.Entry("p1")
	assert.Equal(t, 40, e.StepsRemaining)

	advanceSteps(t, clock, 40)
	waitIdle(t, a, "p1")
	got := rec.For("p1")
	require.Len(t, got, 40)
	assert.Equal(t, 10, got[39])
}

func TestAnimator_SameSnapshotDoesNotAnimate(t *testing.T) {
	a, _, rec := newTestAnimator(t)
	snap := snapshot(realtime.Player{ID: "p1", Pos: 10})
	a.Observe(snap)
	a.Observe(snap)

	e, _ := a.Entry("p1")
	assert.Zero(t, e.StepsRemaining)
	assert.Empty(t, rec.For("p1"))
}

func TestAnimator_Supersession(t *testing.T) {
	a, clock, rec := newTestAnimator(t)
	a.Observe(snapshot(realtime.Player{ID: "p1", Pos: 0}))
	a.Observe(snapshot(realtime.Player{ID: "p1", Pos: 10}))

	advanceSteps(t, clock, 3)
	waitForDisplay(t, a, "p1", 3)

	a.Observe(snapshot(realtime.Player{ID: "p1", Pos: 5}))
	e, _ := a.Entry("p1")
	assert.Equal(t, Entry{DisplayPos: 3, TargetPos: 5, StepsRemaining: 2}, e)

	advanceSteps(t, clock, 2)
	waitIdle(t, a, "p1")

	assert.Equal(t, []int{1, 2, 3, 4, 5}, rec.For("p1"))

	// Nothing from the first move fires later.
	clock.Advance(10 * stepInterval)
	assert.Never(t, func() bool { return len(rec.For("p1")) > 5 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestAnimator_IndependentPlayers(t *testing.T) {
	a, clock, rec := newTestAnimator(t)
	a.Observe(snapshot(realtime.Player{ID: "p1", Pos: 0}, realtime.Player{ID: "p2", Pos: 20}))
	a.Observe(snapshot(realtime.Player{ID: "p1", Pos: 2}, realtime.Player{ID: "p2", Pos: 22}))

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		require.NoError(t, clock.BlockUntilContext(ctx, 2))
		cancel()
		clock.Advance(stepInterval)
		assert.Eventually(t, func() bool {
			return len(rec.For("p1")) == i+1 && len(rec.For("p2")) == i+1
		}, 2*time.Second, time.Millisecond)
	}

	assert.Equal(t, map[string]int{"p1": 2, "p2": 22}, a.Positions())
}

func TestAnimator_LapFromLastMove(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TotalTiles = 10
	clock := clockwork.NewFakeClock()
	a := NewAnimator(cfg, WithClock(clock), WithLogger(zerolog.Nop()))
	t.Cleanup(a.Close)

	a.Observe(realtime.Snapshot{Players: []realtime.Player{{ID: "p1", Pos: 4}}})
	a.Observe(realtime.Snapshot{
		Players:  []realtime.Player{{ID: "p1", Pos: 4}},
		LastMove: &realtime.LastMove{PlayerID: "p1", Dice: 10},
	})

	e, _ := a.Entry("p1")
	assert.Equal(t, 10, e.StepsRemaining)
}

func TestAnimator_ForgetsMissingPlayers(t *testing.T) {
	a, clock, _ := newTestAnimator(t)
	a.Observe(snapshot(realtime.Player{ID: "p1", Pos: 0}, realtime.Player{ID: "p2", Pos: 0}))
	a.Observe(snapshot(realtime.Player{ID: "p1", Pos: 0}, realtime.Player{ID: "p2", Pos: 6}))
	advanceSteps(t, clock, 1)

	a.Observe(snapshot(realtime.Player{ID: "p1", Pos: 0}))

	_, ok := a.DisplayPos("p2")
	assert.False(t, ok)
	assert.Equal(t, map[string]int{"p1": 0}, a.Positions())
}

func TestAnimator_CloseStopsEverything(t *testing.T) {
	a, clock, rec := newTestAnimator(t)
	a.Observe(snapshot(realtime.Player{ID: "p1", Pos: 0}))
	a.Observe(snapshot(realtime.Player{ID: "p1", Pos: 8}))
	advanceSteps(t, clock, 2)
	waitForDisplay(t, a, "p1", 2)

	a.Close()
	clock.Advance(time.Minute)
	a.Observe(snapshot(realtime.Player{ID: "p1", Pos: 30}))
	a.MoveTo("p1", 31)

	pos, _ := a.DisplayPos("p1")
	assert.Equal(t, 2, pos)
	assert.Equal(t, []int{1, 2}, rec.For("p1"))
}

func TestAnimator_Reset(t *testing.T) {
	a, clock, _ := newTestAnimator(t)
	a.Observe(snapshot(realtime.Player{ID: "p1", Pos: 0}))
	a.Observe(snapshot(realtime.Player{ID: "p1", Pos: 8}))
	advanceSteps(t, clock, 1)

	a.Reset()
	assert.Empty(t, a.Positions())

	a.Observe(snapshot(realtime.Player{ID: "p1", Pos: 30}))
	pos, _ := a.DisplayPos("p1")
	assert.Equal(t, 30, pos)
}

func TestAnimator_InterruptOnDisplayedTileSettles(t *testing.T) {
	a, clock, rec := newTestAnimator(t)
	a.Observe(snapshot(realtime.Player{ID: "p1", Pos: 0}))
	a.Observe(snapshot(realtime.Player{ID: "p1", Pos: 10}))

	advanceSteps(t, clock, 3)
	waitForDisplay(t, a, "p1", 3)

	a.Observe(snapshot(realtime.Player{ID: "p1", Pos: 3}))
	e, _ := a.Entry("p1")
	assert.Equal(t, Entry{DisplayPos: 3, TargetPos: 3, StepsRemaining: 0}, e)

	clock.Advance(50 * stepInterval)
	assert.Never(t, func() bool { return len(rec.For("p1")) > 3 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, []int{1, 2, 3}, rec.For("p1"))
}
