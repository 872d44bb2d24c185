package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// CommandType identifies an outbound command.
type CommandType string

const (
	CommandJoin           CommandType = "join"
	CommandRoll           CommandType = "roll"
	CommandBuy            CommandType = "buy"
	CommandBuyProperty    CommandType = "buyProperty"
	CommandReady          CommandType = "ready"
	CommandKick           CommandType = "kick"
	CommandAddBot         CommandType = "addBot"
	CommandStart          CommandType = "start"
	CommandSetStartAmount CommandType = "setStartAmount"
)

// Command is the outbound wire frame.
type Command struct {
	Type    CommandType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type namePayload struct {
	Name string `json:"name"`
}

type buyPropertyPayload struct {
	PropertyID int `json:"propertyId"`
}

type readyPayload struct {
	Ready bool `json:"ready"`
}

type kickPayload struct {
	PlayerID string `json:"playerId"`
}

type startAmountPayload struct {
	Amount int `json:"amount"`
}

// Sender writes one frame on the current transport. ConnectionManager
// implements it.
type Sender interface {
	Send(data []byte) error
}

// stateReporter is implemented by senders that know whether they are open.
type stateReporter interface {
	State() ConnectionState
}

// CommandSink encodes player intents. Commands sent while disconnected are
// dropped with ErrNotConnected; nothing is queued.
type CommandSink struct {
	sender  Sender
	limiter *rate.Limiter
}

// SinkOption customizes a CommandSink.
type SinkOption func(*CommandSink)

// WithRateLimit allows burst commands at once and one more every interval.
func WithRateLimit(every time.Duration, burst int) SinkOption {
	return func(s *CommandSink) {
		s.limiter = rate.NewLimiter(rate.Every(every), burst)
	}
}

// NewCommandSink creates a sink writing to sender. No rate limit applies
// unless WithRateLimit is given.
func NewCommandSink(sender Sender, opts ...SinkOption) *CommandSink {
	s := &CommandSink{sender: sender}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Join asks to take a seat under name.
func (s *CommandSink) Join(name string) error {
	return s.send(Command{Type: CommandJoin, Payload: namePayload{Name: name}})
}

func (s *CommandSink) Roll() error {
	return s.send(Command{Type: CommandRoll})
}

// Buy purchases the property the player stands on.
func (s *CommandSink) Buy() error {
	return s.send(Command{Type: CommandBuy})
}

func (s *CommandSink) BuyProperty(propertyID int) error {
	return s.send(Command{Type: CommandBuyProperty, Payload: buyPropertyPayload{PropertyID: propertyID}})
}

func (s *CommandSink) Ready(ready bool) error {
	return s.send(Command{Type: CommandReady, Payload: readyPayload{Ready: ready}})
}

// Kick removes a player. Only the room admin is honored by the server.
func (s *CommandSink) Kick(playerID string) error {
	return s.send(Command{Type: CommandKick, Payload: kickPayload{PlayerID: playerID}})
}

func (s *CommandSink) AddBot(name string) error {
	return s.send(Command{Type: CommandAddBot, Payload: namePayload{Name: name}})
}

func (s *CommandSink) Start() error {
	return s.send(Command{Type: CommandStart})
}

func (s *CommandSink) SetStartAmount(amount int) error {
	return s.send(Command{Type: CommandSetStartAmount, Payload: startAmountPayload{Amount: amount}})
}

func (s *CommandSink) send(cmd Command) error {
	if s.sender == nil {
		return ErrNotConnected
	}
	// Dropped commands must not spend rate budget.
	if st, ok := s.sender.(stateReporter); ok && st.State() != StateOpen {
		return ErrNotConnected
	}
	if s.limiter != nil && !s.limiter.Allow() {
		log.Debug().Str("command", string(cmd.Type)).Msg("command dropped by rate limit")
		return ErrRateLimited
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to encode %s command: %w", cmd.Type, err)
	}
	if err := s.sender.Send(data); err != nil {
		log.Debug().Err(err).Str("command", string(cmd.Type)).Msg("command not sent")
		return err
	}
	return nil
}
