package realtime

// Snapshot is the reconciled view state. Everything below Version comes
// from the newest state message; MyPlayerID and RoomID come from assigned.
type Snapshot struct {
	Players     []Player   `json:"players"`
	Properties  []Property `json:"properties"`
	LastMove    *LastMove  `json:"last_move,omitempty"`
	Started     bool       `json:"started"`
	AdminID     string     `json:"admin_id,omitempty"`
	StartAmount *int       `json:"start_amount,omitempty"`
	CurrentTurn int        `json:"current_turn"`

	// Version counts applied state messages.
	Version    uint64              `json:"version"`
	MyPlayerID string              `json:"my_player_id,omitempty"`
	RoomID     string              `json:"room_id,omitempty"`
	Acks       map[MessageType]Ack `json:"acks,omitempty"`
}

// Player returns the player with the given id.
func (s Snapshot) Player(id string) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// Me returns the player bound by the assigned message.
func (s Snapshot) Me() (Player, bool) {
	if s.MyPlayerID == "" {
		return Player{}, false
	}
	return s.Player(s.MyPlayerID)
}

// IsAdmin reports whether this session's player administers the room.
func (s Snapshot) IsAdmin() bool {
	return s.MyPlayerID != "" && s.MyPlayerID == s.AdminID
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Players = append(make([]Player, 0, len(s.Players)), s.Players...)
	out.Properties = append(make([]Property, 0, len(s.Properties)), s.Properties...)
	if s.LastMove != nil {
		lm := *s.LastMove
		out.LastMove = &lm
	}
	if s.StartAmount != nil {
		amount := *s.StartAmount
		out.StartAmount = &amount
	}
	out.Acks = make(map[MessageType]Ack, len(s.Acks))
	for k, v := range s.Acks {
		out.Acks[k] = v
	}
	return out
}
