package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	configPath := flag.String("config", getEnv("BOARDWALK_CONFIG", ""), "path to a YAML config file")
	roomID := flag.String("room", "", "room to join (overrides BOARDWALK_ROOM)")
	login := flag.String("login", "", "username or email to log in with; password is read from BOARDWALK_PASSWORD")
	logout := flag.Bool("logout", false, "drop the stored session and exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg.applyEnv()
	if *roomID != "" {
		cfg.Room = *roomID
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	defer services.Close()

	if *logout {
		services.Gate.Logout(ctx)
		log.Info().Msg("logged out")
		return
	}

	if *login != "" {
		cred, err := services.Gate.Login(ctx, *login, os.Getenv("BOARDWALK_PASSWORD"))
		if err != nil {
			log.Fatal().Err(err).Msg("login failed")
		}
		log.Info().Str("subject", cred.Subject).Msg("logged in")
	}

	log.Info().
		Str("server_url", cfg.ServerURL).
		Str("api_url", cfg.APIURL).
		Str("room", cfg.Room).
		Msg("starting board client")

	if err := services.Room.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start room")
	}

	var server *http.Server
	if cfg.Debug.Port != "" {
		server = setupServer(cfg, services)
		go func() {
			log.Info().Str("addr", server.Addr).Msg("debug server listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("debug server failed")
			}
		}()
	}

	go readCommands(ctx, bufio.NewScanner(os.Stdin), services.Room)

	<-ctx.Done()
	log.Info().Msg("shutting down")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shut down debug server")
		}
	}
}
