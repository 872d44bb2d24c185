package realtime

import "encoding/json"

// MessageType identifies an inbound server message.
type MessageType string

const (
	MessageState                MessageType = "state"
	MessageAssigned             MessageType = "assigned"
	MessageJoinResult           MessageType = "joinResult"
	MessageBuyResult            MessageType = "buyResult"
	MessageRollResult           MessageType = "rollResult"
	MessageKickResult           MessageType = "kickResult"
	MessageStartResult          MessageType = "startResult"
	MessageSetStartAmountResult MessageType = "setStartAmountResult"
)

// IsAck reports whether the message acknowledges a command.
func (t MessageType) IsAck() bool {
	switch t {
	case MessageJoinResult, MessageBuyResult, MessageRollResult,
		MessageKickResult, MessageStartResult, MessageSetStartAmountResult:
		return true
	default:
		return false
	}
}

// Envelope is the inbound wire frame.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Player is one seat at the table as the server reports it.
type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Pos   int    `json:"pos"`
	Money int    `json:"money"`
	Ready bool   `json:"ready"`
}

// Property is a purchasable tile; OwnerID is empty while unowned.
type Property struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Cost    int    `json:"cost"`
	OwnerID string `json:"ownerId"`
}

// LastMove records the most recent dice roll.
type LastMove struct {
	PlayerID string `json:"playerId"`
	Dice     int    `json:"dice"`
	Bot      bool   `json:"bot,omitempty"`
}

// StatePayload is the body of a state message.
type StatePayload struct {
	Players     []Player   `json:"players"`
	Properties  []Property `json:"properties"`
	LastMove    *LastMove  `json:"lastMove"`
	Started     bool       `json:"started"`
	AdminID     string     `json:"adminId"`
	StartAmount *int       `json:"startAmount"`
	CurrentTurn int        `json:"currentTurn"`
}

// AssignedPayload binds this session to a player id.
type AssignedPayload struct {
	ID     string `json:"id"`
	RoomID string `json:"roomId"`
}

// Ack is the union of all command acknowledgement payloads.
type Ack struct {
	Type       MessageType `json:"-"`
	Success    *bool       `json:"success,omitempty"`
	Message    string      `json:"message,omitempty"`
	PropertyID *int        `json:"propertyId,omitempty"`
	Dice       *int        `json:"dice,omitempty"`
}

// Succeeded reports an explicit success flag. Acks without one (rollResult)
// count as successful.
func (a Ack) Succeeded() bool {
	return a.Success == nil || *a.Success
}
