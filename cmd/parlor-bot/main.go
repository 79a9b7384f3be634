// SPDX-License-Identifier: MIT

// parlor-bot is the per-room worker process spawned by parlord. One
// instance joins exactly one room and exits when the conversation ends or
// when parlord sends SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/parlorvoice/parlor/internal/bot"
	"github.com/parlorvoice/parlor/internal/config"
	plog "github.com/parlorvoice/parlor/internal/log"
	"github.com/parlorvoice/parlor/internal/version"
)

func main() {
	roomURL := flag.String("room-url", "", "URL of the room to join (required)")
	token := flag.String("token", "", "room access token")
	voice := flag.String("voice", "", "voice selector (default: "+config.DefaultVoice+")")
	flow := flag.String("flow", "", "conversation flow variant (default: "+config.DefaultFlow+")")
	duration := flag.Duration("session-duration", 0, "end the session after this long (0 = run until stopped)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("parlor-bot %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	plog.Configure(plog.Config{
		Level:   config.ParseString("PARLOR_LOG_LEVEL", "info"),
		Service: "parlor-bot",
		Version: version.Version,
	})
	logger := plog.WithComponent("bot")

	selector, voiceID, err := config.ResolveVoice(*voice)
	if err != nil {
		logger.Error().Err(err).Msg("invalid voice")
		os.Exit(2)
	}
	flowName, err := config.ResolveFlow(*flow)
	if err != nil {
		logger.Error().Err(err).Msg("invalid flow")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := bot.Main(ctx, bot.StubRunner{}, bot.Config{
		RoomURL:         *roomURL,
		Token:           *token,
		Voice:           selector,
		VoiceID:         voiceID,
		Flow:            flowName,
		SessionDuration: *duration,
	})

	os.Exit(code)
}
