package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agentvoice/native/internal/config"
	"agentvoice/native/internal/devserver"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const helpText = `sessiond - Development session server for agent voice clients

Usage:
  sessiond [options]

Serves POST /v1/session. Each accepted agent token gets a fresh room and a
LiveKit access token for it.

Environment Variables:
  AGENTVOICE_AGENT_TOKENS        Comma separated agent tokens to accept (required)
  AGENTVOICE_ADDR                Listen address (default :8080)
  AGENTVOICE_ROOM_URL            Room server URL handed to clients
  AGENTVOICE_LIVEKIT_API_KEY     LiveKit API key used to sign room tokens
  AGENTVOICE_LIVEKIT_API_SECRET  LiveKit API secret
  AGENTVOICE_ROOM_PREFIX         Prefix for generated room names (default voice-)
  AGENTVOICE_TOKEN_TTL           Room token lifetime (default 1h)
  AGENTVOICE_MODE                gin mode: release or debug
  AGENTVOICE_CONFIG              Optional YAML file with the same keys

Options:
  -h, --help  Show this help message
`

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		fmt.Print(helpText)
		os.Exit(0)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})

	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal().Str("module", "main").Err(err).Msg("load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	minter := devserver.LiveKitMinter{
		APIKey:    cfg.LiveKitAPIKey,
		APISecret: cfg.LiveKitAPISecret,
		TTL:       cfg.TokenTTL,
	}
	r := devserver.SetupRouter(cfg, devserver.New(cfg, minter))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("module", "main").Str("addr", cfg.Addr).Msg("session server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Str("module", "main").Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Str("module", "main").Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Str("module", "main").Err(err).Msg("server forced to shutdown")
	}
	log.Info().Str("module", "main").Msg("done")
}
