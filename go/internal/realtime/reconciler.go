package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	errMissingType   = errors.New("message has no type")
	errMissingPlayer = errors.New("player without id")
	errMissingID     = errors.New("assigned without id")
)

// SnapshotListener is called after each applied state message.
type SnapshotListener func(Snapshot)

// AckListener is called for every command acknowledgement.
type AckListener func(Ack)

// Reconciler applies inbound server messages to the local snapshot. It is
// the only writer of the snapshot.
type Reconciler struct {
	logger zerolog.Logger

	mu   sync.RWMutex
	snap Snapshot

	listenersMu sync.Mutex
	onSnapshot  []SnapshotListener
	onAck       []AckListener
}

// NewReconciler creates a reconciler with an empty snapshot.
func NewReconciler(logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		logger: logger,
		snap:   emptySnapshot(),
	}
}

// NewDefaultReconciler uses the global logger.
func NewDefaultReconciler() *Reconciler {
	return NewReconciler(log.Logger)
}

func emptySnapshot() Snapshot {
	return Snapshot{
		Players:    []Player{},
		Properties: []Property{},
		Acks:       map[MessageType]Ack{},
	}
}

// OnSnapshot registers a snapshot listener.
func (r *Reconciler) OnSnapshot(fn SnapshotListener) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.onSnapshot = append(r.onSnapshot, fn)
}

// OnAck registers an acknowledgement listener.
func (r *Reconciler) OnAck(fn AckListener) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.onAck = append(r.onAck, fn)
}

// Snapshot returns a copy of the current snapshot.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap.Clone()
}

// Reset forgets everything, as when the view switches rooms.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	r.snap = emptySnapshot()
	r.mu.Unlock()
}

// Apply decodes one inbound frame and applies it. Malformed frames are
// logged and dropped; Apply never fails the caller.
func (r *Reconciler) Apply(data []byte) {
	if err := r.apply(data); err != nil {
		r.logger.Warn().Err(err).Int("bytes", len(data)).Msg("dropping malformed message")
	}
}

func (r *Reconciler) apply(data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Type == "" {
		return errMissingType
	}

	switch {
	case env.Type == MessageState:
		return r.applyState(env.Payload)
	case env.Type == MessageAssigned:
		return r.applyAssigned(env.Payload)
	case env.Type.IsAck():
		return r.applyAck(env.Type, env.Payload)
	default:
		r.logger.Debug().Str("type", string(env.Type)).Msg("ignoring unknown message type")
		return nil
	}
}

// applyState replaces the snapshot wholesale. Absent collections become
// empty and absent scalars their zero value, never the previous value.
func (r *Reconciler) applyState(raw json.RawMessage) error {
	var payload StatePayload
	if err := decodePayload(raw, &payload); err != nil {
		return fmt.Errorf("failed to decode state: %w", err)
	}
	for _, p := range payload.Players {
		if p.ID == "" {
			return errMissingPlayer
		}
	}

	players := payload.Players
	if players == nil {
		players = []Player{}
	}
	properties := payload.Properties
	if properties == nil {
		properties = []Property{}
	}
	lastMove := payload.LastMove
	if lastMove != nil && lastMove.PlayerID == "" {
		// The server sends {} before the first roll.
		lastMove = nil
	}

	r.mu.Lock()
	r.snap = Snapshot{
		Players:     players,
		Properties:  properties,
		LastMove:    lastMove,
		Started:     payload.Started,
		AdminID:     payload.AdminID,
		StartAmount: payload.StartAmount,
		CurrentTurn: payload.CurrentTurn,
		Version:     r.snap.Version + 1,
		MyPlayerID:  r.snap.MyPlayerID,
		RoomID:      r.snap.RoomID,
		Acks:        r.snap.Acks,
	}
	snap := r.snap.Clone()
	r.mu.Unlock()

	r.logger.Debug().
		Uint64("version", snap.Version).
		Int("players", len(snap.Players)).
		Int("properties", len(snap.Properties)).
		Msg("state applied")

	r.listenersMu.Lock()
	listeners := append([]SnapshotListener(nil), r.onSnapshot...)
	r.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
	return nil
}

func (r *Reconciler) applyAssigned(raw json.RawMessage) error {
	var payload AssignedPayload
	if err := decodePayload(raw, &payload); err != nil {
		return fmt.Errorf("failed to decode assigned: %w", err)
	}
	if payload.ID == "" {
		return errMissingID
	}

	r.mu.Lock()
	r.snap.MyPlayerID = payload.ID
	r.snap.RoomID = payload.RoomID
	r.mu.Unlock()

	r.logger.Info().Str("player_id", payload.ID).Str("room_id", payload.RoomID).Msg("player assigned")
	return nil
}

func (r *Reconciler) applyAck(t MessageType, raw json.RawMessage) error {
	var ack Ack
	if err := decodePayload(raw, &ack); err != nil {
		return fmt.Errorf("failed to decode %s: %w", t, err)
	}
	ack.Type = t

	r.mu.Lock()
	r.snap.Acks[t] = ack
	r.mu.Unlock()

	if !ack.Succeeded() {
		r.logger.Info().Str("type", string(t)).Str("message", ack.Message).Msg("command rejected")
	}

	r.listenersMu.Lock()
	listeners := append([]AckListener(nil), r.onAck...)
	r.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(ack)
	}
	return nil
}

// decodePayload accepts a missing payload as an empty object but rejects
// anything that is not a JSON object.
func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
