package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/boardwalk/go/clients/auth_client"
	"github.com/mcdev12/boardwalk/go/internal/relay"
	"github.com/mcdev12/boardwalk/go/internal/room"
	"github.com/mcdev12/boardwalk/go/internal/session"
	"gopkg.in/yaml.v3"
)

// Config is the client configuration. Values come from an optional YAML
// file and are then overridden by environment variables.
type Config struct {
	ServerURL string `yaml:"server_url"`
	APIURL    string `yaml:"api_url"`
	Room      string `yaml:"room"`
	Name      string `yaml:"name"`
	AutoJoin  *bool  `yaml:"auto_join"`

	Session struct {
		// Backend is "file" or "redis".
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
	} `yaml:"session"`

	NATS struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
		Prefix  string `yaml:"prefix"`
	} `yaml:"nats"`

	Debug struct {
		Port string `yaml:"port"`
	} `yaml:"debug"`

	RefreshTimeout time.Duration `yaml:"refresh_timeout"`
}

func defaultConfig() *Config {
	roomCfg := room.DefaultConfig()
	relayCfg := relay.DefaultConfig()

	cfg := &Config{
		ServerURL:      roomCfg.Connection.ServerURL,
		APIURL:         auth_client.DefaultBaseURL,
		Room:           roomCfg.RoomID,
		RefreshTimeout: session.DefaultGateConfig().RefreshTimeout,
	}
	cfg.Session.Backend = "file"
	cfg.Session.Path = session.DefaultSessionPath()
	cfg.NATS.URL = relayCfg.URL
	cfg.NATS.Prefix = relayCfg.SubjectPrefix
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

func loadConfig(path string) (*Config, error) {
	config := defaultConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// applyEnv overrides file values with BOARDWALK_* and service variables.
func (c *Config) applyEnv() {
	c.ServerURL = getEnv("BOARDWALK_SERVER_URL", c.ServerURL)
	c.APIURL = getEnv("BOARDWALK_API_URL", c.APIURL)
	c.Room = getEnv("BOARDWALK_ROOM", c.Room)
	c.Name = getEnv("BOARDWALK_NAME", c.Name)
	c.Session.Path = getEnv("BOARDWALK_SESSION_FILE", c.Session.Path)
	c.Session.Backend = getEnv("BOARDWALK_SESSION_BACKEND", c.Session.Backend)
	if os.Getenv("REDIS_ADDR") != "" && os.Getenv("BOARDWALK_SESSION_BACKEND") == "" {
		c.Session.Backend = "redis"
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		c.NATS.Enabled = true
		c.NATS.URL = url
	}
	c.Debug.Port = getEnv("BOARDWALK_DEBUG_PORT", c.Debug.Port)
	if secs := getEnvAsInt("BOARDWALK_REFRESH_TIMEOUT_SECONDS", 0); secs > 0 {
		c.RefreshTimeout = time.Duration(secs) * time.Second
	}
}

// roomConfig maps the client configuration onto the view configuration.
func (c *Config) roomConfig() room.Config {
	cfg := room.DefaultConfig()
	cfg.RoomID = c.Room
	cfg.PlayerName = c.Name
	cfg.Connection.ServerURL = c.ServerURL
	if c.AutoJoin != nil {
		cfg.AutoJoin = *c.AutoJoin
	}
	return cfg
}
