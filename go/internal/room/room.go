package room

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/boardwalk/go/internal/animation"
	"github.com/mcdev12/boardwalk/go/internal/realtime"
	"github.com/mcdev12/boardwalk/go/internal/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned when a closed room is started again.
var ErrClosed = errors.New("room closed")

// Identity supplies the connection token and the name to join under.
// session.Gate implements it.
type Identity interface {
	realtime.TokenSource
	DisplayName(ctx context.Context) string
}

// Observer receives every status transition and reconciled snapshot.
type Observer interface {
	ObserveStatus(roomID string, status realtime.Status)
	ObserveSnapshot(roomID string, snap realtime.Snapshot)
}

// Room owns everything one mounted game view needs: the connection, the
// reconciled snapshot, the animations and the command sink. Nothing is
// shared between rooms.
type Room struct {
	id       string
	config   Config
	identity Identity
	logger   zerolog.Logger

	manager    *realtime.ConnectionManager
	reconciler *realtime.Reconciler
	animator   *animation.Animator
	commands   *realtime.CommandSink

	mu        sync.Mutex
	roomID    string
	ctx       context.Context
	closed    bool
	observers []Observer
}

type options struct {
	clock     clockwork.Clock
	dialer    realtime.Dialer
	observers []Observer
}

// Option customizes a Room.
type Option func(*options)

// WithClock drives reconnect and animation timers from clock.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d realtime.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithObserver registers an observer before the room starts.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

// New builds an idle room. identity may be nil for an anonymous client.
func New(config Config, identity Identity, opts ...Option) *Room {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Room{
		id:        uuid.New().String()[:8],
		config:    config,
		identity:  identity,
		roomID:    config.RoomID,
		observers: o.observers,
	}
	r.logger = log.With().Str("view_id", r.id).Logger()

	r.reconciler = realtime.NewReconciler(r.logger)
	r.animator = animation.NewAnimator(config.Animation,
		animation.WithClock(o.clock),
		animation.WithLogger(r.logger))

	managerOpts := []realtime.ManagerOption{
		realtime.WithClock(o.clock),
		realtime.WithLogger(r.logger),
	}
	if o.dialer != nil {
		managerOpts = append(managerOpts, realtime.WithDialer(o.dialer))
	}

	var tokens realtime.TokenSource
	if identity != nil {
		tokens = identity
	}
	r.manager = realtime.NewConnectionManager(config.Connection, tokens, r.reconciler.Apply, managerOpts...)

	var sinkOpts []realtime.SinkOption
	if config.CommandInterval > 0 && config.CommandBurst > 0 {
		sinkOpts = append(sinkOpts, realtime.WithRateLimit(config.CommandInterval, config.CommandBurst))
	}
	r.commands = realtime.NewCommandSink(r.manager, sinkOpts...)

	r.reconciler.OnSnapshot(r.handleSnapshot)
	r.manager.OnStatus(r.handleStatus)
	return r
}

// AddObserver registers an observer.
func (r *Room) AddObserver(obs Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, obs)
}

// Start connects to the configured room. Cancelling ctx closes the
// connection and stops reconnecting.
func (r *Room) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.ctx = ctx
	roomID := r.roomID
	r.mu.Unlock()

	if err := r.manager.Connect(ctx, roomID); err != nil {
		return fmt.Errorf("failed to connect to room %s: %w", roomID, err)
	}
	r.logger.Info().Str("room", roomID).Msg("room started")
	return nil
}

// SwitchRoom drops the current connection, snapshot and animations and
// connects to another room.
func (r *Room) SwitchRoom(ctx context.Context, roomID string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	previous := r.roomID
	r.roomID = roomID
	r.ctx = ctx
	r.mu.Unlock()

	r.manager.Close()
	r.animator.Reset()
	r.reconciler.Reset()

	r.logger.Info().Str("from", previous).Str("room", roomID).Msg("switching room")
	if err := r.manager.Connect(ctx, roomID); err != nil {
		return fmt.Errorf("failed to connect to room %s: %w", roomID, err)
	}
	return nil
}

// Close tears down the connection and every animation. The room cannot be
// restarted.
func (r *Room) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.manager.Close()
	r.animator.Close()
	r.logger.Info().Str("room", r.RoomID()).Msg("room closed")
}

func (r *Room) RoomID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roomID
}

// Commands returns the sink for player intents.
func (r *Room) Commands() *realtime.CommandSink {
	return r.commands
}

func (r *Room) Status() realtime.Status {
	return r.manager.Status()
}

func (r *Room) Snapshot() realtime.Snapshot {
	return r.reconciler.Snapshot()
}

// Positions returns animated display positions by player id.
func (r *Room) Positions() map[string]int {
	return r.animator.Positions()
}

// Animator exposes the animator for step listeners.
func (r *Room) Animator() *animation.Animator {
	return r.animator
}

func (r *Room) handleSnapshot(snap realtime.Snapshot) {
	r.animator.Observe(snap)

	roomID := r.RoomID()
	for _, obs := range r.currentObservers() {
		obs.ObserveSnapshot(roomID, snap)
	}
}

func (r *Room) handleStatus(st realtime.Status) {
	if st.State == realtime.StateOpen && r.config.AutoJoin {
		go r.join()
	}

	for _, obs := range r.currentObservers() {
		obs.ObserveStatus(st.Room, st)
	}
}

// join runs off the status path because resolving the profile name may hit
// the network.
func (r *Room) join() {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	name := r.config.PlayerName
	if name == "" && r.identity != nil {
		name = r.identity.DisplayName(ctx)
	}
	if name == "" {
		name = session.GuestName
	}

	if err := r.commands.Join(name); err != nil {
		r.logger.Warn().Err(err).Str("name", name).Msg("failed to auto-join")
		return
	}
	r.logger.Info().Str("name", name).Str("room", r.RoomID()).Msg("joined room")
}

func (r *Room) currentObservers() []Observer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Observer(nil), r.observers...)
}
