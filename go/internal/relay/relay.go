package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/boardwalk/go/internal/realtime"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Config holds configuration for the NATS relay.
type Config struct {
	URL           string
	SubjectPrefix string // e.g. boardwalk
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns default relay configuration.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "boardwalk",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Publisher sends one message on a subject.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Event is the envelope published for every observation.
type Event struct {
	ClientID  string          `json:"client_id"`
	Room      string          `json:"room"`
	Kind      string          `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

const (
	KindStatus   = "status"
	KindSnapshot = "snapshot"
)

// Relay republishes connection status and reconciled snapshots so other
// processes (spectators, bots, dashboards) can follow a client.
type Relay struct {
	clientID  string
	publisher Publisher
	prefix    string
	clock     clockwork.Clock
}

// New creates a relay on an existing publisher.
func New(publisher Publisher, prefix string, clock clockwork.Clock) *Relay {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Relay{
		clientID:  uuid.New().String()[:8],
		publisher: publisher,
		prefix:    prefix,
		clock:     clock,
	}
}

// ClientID identifies this client in published events.
func (r *Relay) ClientID() string {
	return r.clientID
}

// Subject returns the subject for a kind of event in a room.
func (r *Relay) Subject(kind, room string) string {
	return fmt.Sprintf("%s.%s.%s", r.prefix, kind, room)
}

func (r *Relay) ObserveStatus(room string, status realtime.Status) {
	r.publish(KindStatus, room, status)
}

func (r *Relay) ObserveSnapshot(room string, snap realtime.Snapshot) {
	r.publish(KindSnapshot, room, snap)
}

func (r *Relay) publish(kind, room string, v interface{}) {
	if room == "" {
		room = "none"
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("failed to encode relay event")
		return
	}
	payload, err := json.Marshal(Event{
		ClientID:  r.clientID,
		Room:      room,
		Kind:      kind,
		Timestamp: r.clock.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("failed to encode relay event")
		return
	}

	subject := r.Subject(kind, room)
	if err := r.publisher.Publish(subject, payload); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("failed to publish relay event")
		return
	}
	log.Debug().Str("subject", subject).Int("bytes", len(payload)).Msg("relay event published")
}

// NATSPublisher publishes on a core NATS connection.
type NATSPublisher struct {
	nc *nats.Conn
}

// Connect dials NATS with reconnect handlers that log connectivity changes.
func Connect(config Config) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("boardwalk-client"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{nc: nc}, nil
}

func (p *NATSPublisher) Publish(subject string, data []byte) error {
	return p.nc.Publish(subject, data)
}

// Conn exposes the underlying connection.
func (p *NATSPublisher) Conn() *nats.Conn {
	return p.nc
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("failed to drain NATS connection")
		p.nc.Close()
	}
}
