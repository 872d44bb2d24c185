package main

import (
	"context"
	"fmt"

	"github.com/mcdev12/boardwalk/go/clients/auth_client"
	"github.com/mcdev12/boardwalk/go/internal/relay"
	"github.com/mcdev12/boardwalk/go/internal/room"
	"github.com/mcdev12/boardwalk/go/internal/session"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Auth  *auth_client.AuthClient
	Store session.Store
	Gate  *session.Gate
	Room  *room.Room
	Relay *relay.NATSPublisher

	closers []func()
}

func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	// Wire up dependency chain
	// Store → Gate → Room → (Relay, console observers)
	s := &Services{}

	store, err := setupStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.Store = store
	if closer, ok := store.(interface{ Close() error }); ok {
		s.closers = append(s.closers, func() {
			if err := closer.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close session store")
			}
		})
	}

	s.Auth = auth_client.NewAuthClient(cfg.APIURL)

	gateCfg := session.DefaultGateConfig()
	gateCfg.RefreshTimeout = cfg.RefreshTimeout
	s.Gate = session.NewGate(s.Auth, store, session.WithGateConfig(gateCfg))
	if err := s.Gate.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("starting without a stored session")
	}

	s.Room = room.New(cfg.roomConfig(), s.Gate, room.WithObserver(consoleObserver{}))
	s.closers = append(s.closers, s.Room.Close)
	s.Room.Animator().OnStep(func(playerID string, displayPos int) {
		log.Debug().Str("player_id", playerID).Int("display_pos", displayPos).Msg("token moved")
	})

	if cfg.NATS.Enabled {
		relayCfg := relay.DefaultConfig()
		relayCfg.URL = cfg.NATS.URL
		relayCfg.SubjectPrefix = cfg.NATS.Prefix
		pub, err := relay.Connect(relayCfg)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to set up relay: %w", err)
		}
		s.Relay = pub
		s.Room.AddObserver(relay.New(pub, relayCfg.SubjectPrefix, nil))
		s.closers = append(s.closers, pub.Close)
		log.Info().Str("nats_url", relayCfg.URL).Msg("relaying room events")
	}

	return s, nil
}

func setupStore(ctx context.Context, cfg *Config) (session.Store, error) {
	switch cfg.Session.Backend {
	case "redis":
		store := session.NewRedisStore(session.RedisConfigFromEnv())
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Info().Msg("using redis session store")
		return store, nil
	case "file", "":
		log.Info().Str("path", cfg.Session.Path).Msg("using file session store")
		return session.NewFileStore(cfg.Session.Path), nil
	case "memory":
		return session.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}

// Close releases everything in reverse order of setup.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
