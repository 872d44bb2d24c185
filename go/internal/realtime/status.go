package realtime

import (
	"fmt"
	"time"
)

// ConnectionState is the lifecycle state of a ConnectionManager.
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateOpen
	StateClosing
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON status documents.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *ConnectionState) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateReconnecting; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown connection state %q", text)
}

// Status is the connectivity indicator exposed to the UI.
type Status struct {
	State   ConnectionState `json:"state"`
	Room    string          `json:"room"`
	Attempt int             `json:"attempt"`
	// LastEvent mirrors the transport event names: "open", "error",
	// "close code=1006", "closed".
	LastEvent string `json:"last_event,omitempty"`
	// URL is the last dialed target with the token redacted.
	URL           string `json:"url,omitempty"`
	Authenticated bool   `json:"authenticated"`
	// RetryIn is the pending reconnect delay while Reconnecting.
	RetryIn time.Duration `json:"retry_in,omitempty"`
}

// StatusListener observes status transitions. It must not call Close.
type StatusListener func(Status)
