package animation

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/boardwalk/go/internal/realtime"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds the board geometry and pacing.
type Config struct {
	TotalTiles   int
	StepInterval time.Duration
}

// DefaultConfig is the standard 40 tile board at 200ms per step.
func DefaultConfig() Config {
	return Config{
		TotalTiles:   40,
		StepInterval: 200 * time.Millisecond,
	}
}

// Entry is the animation state of one player.
type Entry struct {
	DisplayPos     int `json:"display_pos"`
	TargetPos      int `json:"target_pos"`
	StepsRemaining int `json:"steps_remaining"`
}

// StepListener is called after every display mutation, with the animator
// lock held. It must not call back into the animator.
type StepListener func(playerID string, displayPos int)

type entry struct {
	Entry

	// token identifies the task allowed to mutate this entry.
	token  uint64
	cancel context.CancelFunc
	timer  clockwork.Timer
}

// Animator turns authoritative position jumps into step-by-step display
// movement, one task per player. Starting a new move for a player always
// cancels the previous one first.
type Animator struct {
	config Config
	clock  clockwork.Clock
	logger zerolog.Logger

	mu        sync.Mutex
	entries   map[string]*entry
	lastMove  *realtime.LastMove
	nextToken uint64
	closed    bool
	listeners []StepListener

	wg sync.WaitGroup
}

// Option customizes an Animator.
type Option func(*Animator)

// WithClock replaces the clock that paces the steps.
func WithClock(clock clockwork.Clock) Option {
	return func(a *Animator) { a.clock = clock }
}

// WithLogger sets the animator logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Animator) { a.logger = logger }
}

func NewAnimator(config Config, opts ...Option) *Animator {
	a := &Animator{
		config:  config,
		clock:   clockwork.NewRealClock(),
		logger:  log.Logger,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.config.TotalTiles <= 0 {
		a.config.TotalTiles = DefaultConfig().TotalTiles
	}
	return a
}

// Steps returns how many forward steps take a token from one tile to
// another. A genuine move that lands on its own tile is a full lap.
func Steps(from, to, totalTiles int, genuine bool) int {
	steps := mod(to-from, totalTiles)
	if steps == 0 && genuine {
		return totalTiles
	}
	return steps
}

func mod(a, n int) int {
	return ((a % n) + n) % n
}

// OnStep registers a listener for display mutations.
func (a *Animator) OnStep(fn StepListener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// Observe reconciles animation targets with a snapshot. Players seen for the
// first time are placed without animation; players missing from the snapshot
// are forgotten. A target equal to the tile currently drawn settles in place
// unless the last move was a full lap.
func (a *Animator) Observe(snap realtime.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	newMove := snap.LastMove != nil && (a.lastMove == nil || *a.lastMove != *snap.LastMove)
	if snap.LastMove != nil {
		lm := *snap.LastMove
		a.lastMove = &lm
	} else {
		a.lastMove = nil
	}

	seen := make(map[string]struct{}, len(snap.Players))
	for _, p := range snap.Players {
		seen[p.ID] = struct{}{}
		pos := mod(p.Pos, a.config.TotalTiles)

		e, ok := a.entries[p.ID]
		if !ok {
			a.entries[p.ID] = &entry{Entry: Entry{DisplayPos: pos, TargetPos: pos}}
			continue
		}

		lapped := newMove && snap.LastMove.PlayerID == p.ID && a.isLap(snap.LastMove.Dice)
		switch {
		case lapped:
			a.startLocked(p.ID, e, pos, true)
		case pos == e.TargetPos:
		case pos == e.DisplayPos:
			// Interrupted on the tile the token is already drawn on.
			a.settleLocked(e)
		default:
			a.startLocked(p.ID, e, pos, true)
		}
	}

	for id, e := range a.entries {
		if _, ok := seen[id]; !ok {
			a.stopLocked(e)
			delete(a.entries, id)
		}
	}
}

// isLap reports whether a roll carries a token all the way around the board.
func (a *Animator) isLap(dice int) bool {
	return dice > 0 && dice%a.config.TotalTiles == 0
}

// MoveTo animates a player to target as a genuine move, so a target equal to
// the current display position animates a full lap. Unknown players are
// placed directly.
func (a *Animator) MoveTo(playerID string, target int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	target = mod(target, a.config.TotalTiles)
	e, ok := a.entries[playerID]
	if !ok {
		a.entries[playerID] = &entry{Entry: Entry{DisplayPos: target, TargetPos: target}}
		return
	}
	a.startLocked(playerID, e, target, true)
}

// Forget stops and drops one player's animation.
func (a *Animator) Forget(playerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.entries[playerID]; ok {
		a.stopLocked(e)
		delete(a.entries, playerID)
	}
}

// DisplayPos returns the tile the player is currently drawn on.
func (a *Animator) DisplayPos(playerID string) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[playerID]
	if !ok {
		return 0, false
	}
	return e.DisplayPos, true
}

// Entry returns a copy of a player's animation state.
func (a *Animator) Entry(playerID string) (Entry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[playerID]
	if !ok {
		return Entry{}, false
	}
	return e.Entry, true
}

// Positions returns the display position of every known player.
func (a *Animator) Positions() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int, len(a.entries))
	for id, e := range a.entries {
		out[id] = e.DisplayPos
	}
	return out
}

// Reset cancels all animations and forgets every player.
func (a *Animator) Reset() {
	a.mu.Lock()
	for _, e := range a.entries {
		a.stopLocked(e)
	}
	a.entries = make(map[string]*entry)
	a.lastMove = nil
	a.mu.Unlock()

	a.wg.Wait()
}

// Close cancels all animations and ignores every later update. It returns
// once no task is running.
func (a *Animator) Close() {
	a.mu.Lock()
	a.closed = true
	for _, e := range a.entries {
		a.stopLocked(e)
	}
	a.mu.Unlock()

	a.wg.Wait()
}

// startLocked supersedes any running task for the entry and starts a new one
// from the current display position.
func (a *Animator) startLocked(playerID string, e *entry, target int, genuine bool) {
	a.stopLocked(e)

	start := e.DisplayPos
	steps := Steps(start, target, a.config.TotalTiles, genuine)
	e.TargetPos = target
	e.StepsRemaining = steps
	if steps == 0 {
		return
	}

	a.nextToken++
	token := a.nextToken
	ctx, cancel := context.WithCancel(context.Background())
	e.token = token
	e.cancel = cancel

	a.logger.Debug().
		Str("player_id", playerID).
		Int("from", start).
		Int("to", target).
		Int("steps", steps).
		Msg("animating move")

	a.wg.Add(1)
	go a.run(ctx, playerID, token, start, steps)
}

// settleLocked stops the entry's task and leaves the token where it is drawn.
func (a *Animator) settleLocked(e *entry) {
	a.stopLocked(e)
	e.TargetPos = e.DisplayPos
}

// stopLocked invalidates the entry's task: the token no longer matches, the
// context is cancelled and the pending step timer is stopped.
func (a *Animator) stopLocked(e *entry) {
	e.token = 0
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if e.timer != nil {
		stopAndDrainTimer(e.timer)
		e.timer = nil
	}
	e.StepsRemaining = 0
}

func (a *Animator) run(ctx context.Context, playerID string, token uint64, start, steps int) {
	defer a.wg.Done()

	for i := 1; i <= steps; i++ {
		timer := a.arm(playerID, token)
		if timer == nil {
			return
		}

		select {
		case <-ctx.Done():
			stopAndDrainTimer(timer)
			return
		case <-timer.Chan():
		}

		if !a.step(playerID, token, mod(start+i, a.config.TotalTiles), steps-i) {
			return
		}
	}
}

// arm creates the next step timer if the task is still current. The timer is
// stored on the entry so a superseding move can stop it.
func (a *Animator) arm(playerID string, token uint64) clockwork.Timer {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[playerID]
	if !ok || e.token != token || a.closed {
		return nil
	}
	e.timer = a.clock.NewTimer(a.config.StepInterval)
	return e.timer
}

func (a *Animator) step(playerID string, token uint64, pos, remaining int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[playerID]
	if !ok || e.token != token || a.closed {
		return false
	}
	e.DisplayPos = pos
	e.StepsRemaining = remaining
	e.timer = nil
	if remaining == 0 {
		e.token = 0
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
	}

	for _, fn := range a.listeners {
		fn(playerID, pos)
	}
	return true
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
