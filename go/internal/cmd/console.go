package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mcdev12/boardwalk/go/internal/realtime"
	"github.com/mcdev12/boardwalk/go/internal/room"
	"github.com/rs/zerolog/log"
)

var errUnknownCommand = errors.New("unknown command")

// consoleObserver logs what a UI would render.
type consoleObserver struct{}

func (consoleObserver) ObserveStatus(roomID string, st realtime.Status) {
	event := log.Info()
	if st.State == realtime.StateReconnecting {
		event = log.Warn().Dur("retry_in", st.RetryIn)
	}
	event.
		Str("room", roomID).
		Str("state", st.State.String()).
		Int("attempt", st.Attempt).
		Str("last_event", st.LastEvent).
		Msg("connection status")
}

func (consoleObserver) ObserveSnapshot(roomID string, snap realtime.Snapshot) {
	log.Info().
		Str("room", roomID).
		Uint64("version", snap.Version).
		Int("players", len(snap.Players)).
		Bool("started", snap.Started).
		Int("current_turn", snap.CurrentTurn).
		Msg("state updated")
	for _, p := range snap.Players {
		log.Debug().Str("player", p.Name).Int("pos", p.Pos).Int("money", p.Money).Bool("ready", p.Ready).Msg("player")
	}
}

// commandTarget is the part of a room the console drives.
type commandTarget interface {
	Commands() *realtime.CommandSink
	SwitchRoom(ctx context.Context, roomID string) error
}

var _ commandTarget = (*room.Room)(nil)

// readCommands maps stdin lines to commands until ctx ends or input closes.
func readCommands(ctx context.Context, scanner *bufio.Scanner, target commandTarget) {
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := runCommand(ctx, target, line); err != nil {
			log.Warn().Err(err).Str("input", line).Msg("command failed")
		}
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("failed to read commands")
	}
}

func runCommand(ctx context.Context, target commandTarget, line string) error {
	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]
	sink := target.Commands()

	switch name {
	case "join":
		return sink.Join(strings.Join(args, " "))
	case "roll":
		return sink.Roll()
	case "buy":
		if len(args) == 0 {
			return sink.Buy()
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid property id %q: %w", args[0], err)
		}
		return sink.BuyProperty(id)
	case "ready":
		return sink.Ready(true)
	case "unready":
		return sink.Ready(false)
	case "kick":
		if len(args) != 1 {
			return errors.New("usage: kick <player-id>")
		}
		return sink.Kick(args[0])
	case "bot":
		return sink.AddBot(strings.Join(args, " "))
	case "start":
		return sink.Start()
	case "amount":
		if len(args) != 1 {
			return errors.New("usage: amount <start-amount>")
		}
		amount, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[0], err)
		}
		return sink.SetStartAmount(amount)
	case "room":
		if len(args) != 1 {
			return errors.New("usage: room <room-id>")
		}
		return target.SwitchRoom(ctx, args[0])
	default:
		return fmt.Errorf("%w: %s", errUnknownCommand, name)
	}
}
