package debugserver

import (
	"encoding/json"
	"net/http"

	"github.com/mcdev12/boardwalk/go/internal/realtime"
	"github.com/rs/zerolog/log"
)

// StateProvider is the view being inspected. room.Room implements it.
type StateProvider interface {
	RoomID() string
	Status() realtime.Status
	Snapshot() realtime.Snapshot
	Positions() map[string]int
}

// SessionInfo reports whether a session token is held. May be nil.
type SessionInfo func() (hasToken bool, subject string)

// StatusResponse is the body of GET /debug/status.
type StatusResponse struct {
	Room       string          `json:"room"`
	HasToken   bool            `json:"has_token"`
	Subject    string          `json:"subject,omitempty"`
	Connection realtime.Status `json:"connection"`
}

// SnapshotResponse is the body of GET /debug/snapshot.
type SnapshotResponse struct {
	Snapshot  realtime.Snapshot `json:"snapshot"`
	Positions map[string]int    `json:"display_positions"`
}

// Handler serves read-only diagnostics for one view.
type Handler struct {
	provider StateProvider
	session  SessionInfo
}

func NewHandler(provider StateProvider, session SessionInfo) *Handler {
	return &Handler{provider: provider, session: session}
}

// RegisterRoutes registers the diagnostic routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HandleHealth)
	mux.HandleFunc("/debug/status", h.HandleStatus)
	mux.HandleFunc("/debug/snapshot", h.HandleSnapshot)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}

// HandleStatus handles GET /debug/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := StatusResponse{
		Room:       h.provider.RoomID(),
		Connection: h.provider.Status(),
	}
	if h.session != nil {
		resp.HasToken, resp.Subject = h.session()
	}
	writeJSON(w, resp)
}

// HandleSnapshot handles GET /debug/snapshot
func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, SnapshotResponse{
		Snapshot:  h.provider.Snapshot(),
		Positions: h.provider.Positions(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode debug response")
	}
}
