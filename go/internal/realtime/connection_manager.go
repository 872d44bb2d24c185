package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/boardwalk/go/internal/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TokenSource produces the credential to attach to a connection attempt.
// session.Gate implements it.
type TokenSource interface {
	Refreshed(ctx context.Context) (*session.Credential, error)
}

// MessageHandler receives every inbound text frame of the current transport,
// one at a time and in receipt order. It must not call Close.
type MessageHandler func(data []byte)

// ConnectionConfig holds configuration for the game server connection.
type ConnectionConfig struct {
	ServerURL        string // e.g. ws://localhost:8080/game
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	MaxMessageSize   int64
	ReadBufferSize   int
	WriteBufferSize  int
	Header           http.Header
	Backoff          Backoff
	// Tokens at or above this length are not put in the URL.
	MaxTokenLength int
}

// DefaultConnectionConfig returns default connection configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		ServerURL:        "ws://localhost:8080/game",
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		MaxMessageSize:   1 << 20,
		ReadBufferSize:   4096,
		WriteBufferSize:  1024,
		Backoff:          DefaultBackoff(),
		MaxTokenLength:   2000,
	}
}

const (
	roomParam  = "room"
	tokenParam = "token"
	redacted   = "REDACTED"
)

// ConnectionManager owns the single logical connection of one view.
//
// Every connection attempt gets a new generation. Events coming from an
// attempt whose generation is no longer current (a superseded or closed
// transport) are dropped, so a slow-closing old socket can never mutate
// current state.
type ConnectionManager struct {
	id      string
	config  ConnectionConfig
	dialer  Dialer
	tokens  TokenSource
	handler MessageHandler
	clock   clockwork.Clock
	logger  zerolog.Logger

	mu             sync.Mutex
	state          ConnectionState
	room           string
	attempt        int
	generation     uint64
	current        Conn
	userClosed     bool
	authenticated  bool
	lastEvent      string
	dialedURL      string
	retryIn        time.Duration
	baseCtx        context.Context
	cancelDial     context.CancelFunc
	reconnectTimer clockwork.Timer
	// session counts Connect calls; stopWatch detaches the ctx watcher of
	// the current one.
	session   uint64
	stopWatch func() bool

	// writeMu serializes frames on the current transport.
	writeMu sync.Mutex
	// dispatchMu is held while a message is handed to the handler.
	dispatchMu sync.Mutex

	notifyMu  sync.Mutex
	listeners []StatusListener
}

// ManagerOption customizes a ConnectionManager.
type ManagerOption func(*ConnectionManager)

// WithDialer replaces the gorilla/websocket dialer.
func WithDialer(d Dialer) ManagerOption {
	return func(m *ConnectionManager) { m.dialer = d }
}

// WithClock replaces the clock that drives reconnect timers.
func WithClock(clock clockwork.Clock) ManagerOption {
	return func(m *ConnectionManager) { m.clock = clock }
}

// WithLogger sets the logger used for connection events.
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *ConnectionManager) { m.logger = logger }
}

// NewConnectionManager creates an idle manager. tokens may be nil for an
// anonymous-only client.
func NewConnectionManager(config ConnectionConfig, tokens TokenSource, handler MessageHandler, opts ...ManagerOption) *ConnectionManager {
	m := &ConnectionManager{
		id:      uuid.New().String()[:8],
		config:  config,
		tokens:  tokens,
		handler: handler,
		clock:   clockwork.NewRealClock(),
		logger:  log.Logger,
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = NewWebsocketDialer(config)
	}
	m.logger = m.logger.With().Str("connection_id", m.id).Logger()
	return m
}

// OnStatus registers a listener for status transitions.
func (m *ConnectionManager) OnStatus(fn StatusListener) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Status returns the current connectivity status.
func (m *ConnectionManager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// State returns the current lifecycle state.
func (m *ConnectionManager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect starts connecting to room. It returns immediately; progress is
// reported through status listeners. ctx bounds the whole connection
// lifetime: once it is done the manager closes as if Close had been called.
func (m *ConnectionManager) Connect(ctx context.Context, room string) error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.room = room
	m.userClosed = false
	m.attempt = 0
	m.baseCtx = ctx
	m.session++
	sess := m.session
	m.stopWatch = context.AfterFunc(ctx, func() { m.closeIfSession(sess) })
	gen, dialCtx := m.beginAttemptLocked()
	st := m.statusLocked()
	m.mu.Unlock()

	m.logger.Info().Str("room", room).Msg("connecting")
	m.notify(st)

	go m.dial(dialCtx, gen)
	return nil
}

// Close tears the connection down without scheduling a reconnect. When it
// returns no handler call is in progress and none will follow.
func (m *ConnectionManager) Close() {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return
	}
	m.userClosed = true
	m.state = StateClosing
	m.retryIn = 0
	m.generation++
	m.stopReconnectLocked()
	if m.stopWatch != nil {
		m.stopWatch()
		m.stopWatch = nil
	}
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	conn := m.current
	m.current = nil
	st := m.statusLocked()
	m.mu.Unlock()

	m.notify(st)

	if conn != nil {
		m.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(m.config.WriteTimeout)); err != nil {
			m.logger.Debug().Err(err).Msg("failed to send close frame")
		}
		m.writeMu.Unlock()
		if err := conn.Close(); err != nil {
			m.logger.Debug().Err(err).Msg("failed to close transport")
		}
	}

	// Wait out a dispatch that passed its generation check before we bumped it.
	m.dispatchMu.Lock()
	m.dispatchMu.Unlock()

	m.mu.Lock()
	m.state = StateIdle
	m.authenticated = false
	m.lastEvent = "closed"
	st = m.statusLocked()
	m.mu.Unlock()

	m.logger.Info().Str("room", st.Room).Msg("connection closed by client")
	m.notify(st)
}

// closeIfSession runs when the ctx given to Connect is done.
func (m *ConnectionManager) closeIfSession(sess uint64) {
	m.mu.Lock()
	live := sess == m.session && m.state != StateIdle && m.state != StateClosing
	m.mu.Unlock()
	if !live {
		return
	}
	m.logger.Info().Msg("connection context done, closing")
	m.Close()
}

// Send writes one text frame on the open transport.
func (m *ConnectionManager) Send(data []byte) error {
	m.mu.Lock()
	conn := m.current
	open := m.state == StateOpen
	m.mu.Unlock()

	if !open || conn == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(m.config.WriteTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// beginAttemptLocked moves to Connecting under a fresh generation.
func (m *ConnectionManager) beginAttemptLocked() (uint64, context.Context) {
	m.generation++
	m.state = StateConnecting
	m.retryIn = 0
	m.reconnectTimer = nil
	if m.cancelDial != nil {
		m.cancelDial()
	}

	parent := m.baseCtx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	m.cancelDial = cancel
	return m.generation, ctx
}

func (m *ConnectionManager) dial(ctx context.Context, gen uint64) {
	m.mu.Lock()
	room := m.room
	m.mu.Unlock()

	token := m.resolveToken(ctx)

	target, err := BuildURL(m.config.ServerURL, room, token)
	if err != nil {
		m.handleError(gen, err)
		m.handleClosed(gen, err)
		return
	}

	conn, err := m.dialer.Dial(ctx, target)
	if err != nil {
		m.handleError(gen, err)
		m.handleClosed(gen, err)
		return
	}

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		m.logger.Debug().Uint64("generation", gen).Msg("discarding superseded transport")
		conn.Close()
		return
	}
	m.current = conn
	m.state = StateOpen
	m.attempt = 0
	m.authenticated = token != ""
	m.lastEvent = "open"
	m.dialedURL = RedactURL(target)
	st := m.statusLocked()
	m.mu.Unlock()

	m.logger.Info().
		Str("room", room).
		Bool("authenticated", token != "").
		Msg("connection open")
	m.notify(st)

	m.readLoop(conn, gen)
}

func (m *ConnectionManager) resolveToken(ctx context.Context) string {
	if m.tokens == nil {
		return ""
	}
	cred, err := m.tokens.Refreshed(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("no valid session, connecting anonymously")
	}
	if cred == nil {
		return ""
	}
	if m.config.MaxTokenLength > 0 && len(cred.AccessToken) >= m.config.MaxTokenLength {
		m.logger.Warn().Int("length", len(cred.AccessToken)).Msg("token too long for URL, connecting anonymously")
		return ""
	}
	return cred.AccessToken
}

func (m *ConnectionManager) readLoop(conn Conn, gen uint64) {
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.logger.Warn().Err(err).Msg("unexpected WebSocket close")
			}
			m.handleClosed(gen, err)
			return
		}
		m.dispatch(gen, data)
	}
}

func (m *ConnectionManager) dispatch(gen uint64, data []byte) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	if !m.isCurrent(gen) || m.handler == nil {
		return
	}

	// A panicking handler must not take the read loop down with it.
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Interface("panic", r).Msg("message handler panicked")
		}
	}()
	m.handler(data)
}

func (m *ConnectionManager) isCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.generation
}

// handleError surfaces a transport error as status only.
func (m *ConnectionManager) handleError(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.lastEvent = "error"
	st := m.statusLocked()
	m.mu.Unlock()

	m.logger.Error().Err(err).Msg("transport error")
	m.notify(st)
}

// handleClosed is the only path that schedules reconnection.
func (m *ConnectionManager) handleClosed(gen uint64, err error) {
	code := CloseCode(err)

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.current = nil
	m.authenticated = false
	m.lastEvent = fmt.Sprintf("close code=%d", code)
	if m.userClosed {
		m.mu.Unlock()
		return
	}
	if m.baseCtx != nil && m.baseCtx.Err() != nil {
		m.state = StateIdle
		m.cancelDial = nil
		st := m.statusLocked()
		m.mu.Unlock()
		m.logger.Info().Msg("connection context done, not reconnecting")
		m.notify(st)
		return
	}

	delay := m.config.Backoff.Delay(m.attempt)
	m.attempt++
	m.state = StateReconnecting
	m.retryIn = delay
	m.reconnectTimer = m.clock.AfterFunc(delay, func() { m.reconnect(gen) })
	attempt := m.attempt
	st := m.statusLocked()
	m.mu.Unlock()

	m.logger.Warn().
		Int("code", code).
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("connection lost, scheduling reconnect")
	m.notify(st)
}

func (m *ConnectionManager) reconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.state != StateReconnecting || m.userClosed {
		m.mu.Unlock()
		return
	}
	next, ctx := m.beginAttemptLocked()
	st := m.statusLocked()
	m.mu.Unlock()

	m.logger.Info().Int("attempt", st.Attempt).Msg("reconnecting")
	m.notify(st)
	m.dial(ctx, next)
}

func (m *ConnectionManager) stopReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *ConnectionManager) statusLocked() Status {
	return Status{
		State:         m.state,
		Room:          m.room,
		Attempt:       m.attempt,
		LastEvent:     m.lastEvent,
		URL:           m.dialedURL,
		Authenticated: m.authenticated,
		RetryIn:       m.retryIn,
	}
}

func (m *ConnectionManager) notify(st Status) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	for _, fn := range m.listeners {
		fn(st)
	}
}

// BuildURL appends the room and, when present, the token to the server URL.
func BuildURL(serverURL, room, token string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse server URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}

	q := u.Query()
	if room != "" {
		q.Set(roomParam, room)
	}
	if token != "" {
		q.Set(tokenParam, token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RedactURL hides the token parameter of a connection target.
func RedactURL(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	q := u.Query()
	if q.Has(tokenParam) {
		q.Set(tokenParam, redacted)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// CloseCode extracts the WebSocket close code from a read or dial error.
// Anything that is not a close frame counts as an abnormal closure (1006).
func CloseCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}
