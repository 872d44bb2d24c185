package room

import (
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/boardwalk/go/internal/animation"
	"github.com/mcdev12/boardwalk/go/internal/realtime"
)

// Config holds configuration for one game view.
type Config struct {
	RoomID     string
	Connection realtime.ConnectionConfig
	Animation  animation.Config

	// AutoJoin sends a join command on every successful open.
	AutoJoin bool
	// PlayerName overrides the profile name used to join.
	PlayerName string

	// CommandInterval and CommandBurst limit outbound commands. A zero
	// interval disables limiting.
	CommandInterval time.Duration
	CommandBurst    int
}

// DefaultConfig returns default configuration for a game view.
func DefaultConfig() Config {
	return Config{
		RoomID:          "1",
		Connection:      realtime.DefaultConnectionConfig(),
		Animation:       animation.DefaultConfig(),
		AutoJoin:        true,
		CommandInterval: 100 * time.Millisecond,
		CommandBurst:    5,
	}
}

// NewConfigFromEnv reads BOARDWALK_* environment variables (with defaults).
func NewConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.RoomID = getEnv("BOARDWALK_ROOM", cfg.RoomID)
	cfg.PlayerName = getEnv("BOARDWALK_NAME", cfg.PlayerName)
	cfg.Connection.ServerURL = getEnv("BOARDWALK_SERVER_URL", cfg.Connection.ServerURL)
	cfg.AutoJoin = getEnvAsBool("BOARDWALK_AUTO_JOIN", cfg.AutoJoin)
	cfg.CommandBurst = getEnvAsInt("BOARDWALK_COMMAND_BURST", cfg.CommandBurst)
	cfg.Animation.TotalTiles = getEnvAsInt("BOARDWALK_TILES", cfg.Animation.TotalTiles)
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
