package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"agentvoice/native/internal/config"
	"agentvoice/native/internal/domain"
	"agentvoice/native/internal/events"
	sigroom "agentvoice/native/internal/signal"
	"agentvoice/native/internal/tui"
	"agentvoice/native/internal/voice"
	"agentvoice/native/internal/webrtc"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const helpText = `agentvoice - Talk to a remote AI agent over a real-time voice room

Usage:
  agentvoice [options]

Exchanges an agent token for a session, joins the session's room and shows
the conversation. Agent audio is written as Ogg/Opus to the playback output.

Environment Variables:
  AGENTVOICE_TOKEN          Agent token issued by the application (required)
  AGENTVOICE_USER_ID        End-user id sent with the session request
  AGENTVOICE_API_BASE       Session API base URL (default http://localhost:8080)
  AGENTVOICE_TRANSPORT      livekit or websocket (default livekit)
  AGENTVOICE_AGENT_PREFIX   Identity prefix of agent participants (default agent-)
  AGENTVOICE_AUTO_CONNECT   Connect on start in the interactive view
  AGENTVOICE_MANUAL_AUDIO   Do not play agent audio automatically
  AGENTVOICE_PLAYBACK       Ogg/Opus output file, or - for stdout (headless only)
  AGENTVOICE_MICROPHONE     Ogg/Opus input file, or - for stdin
  AGENTVOICE_LOG_LEVEL      debug, info, warn or error (default info)
  AGENTVOICE_LOG_FILE       Log file for the interactive view (default agentvoice.log)
  AGENTVOICE_CONFIG         Optional YAML file with the same keys

Examples:
  # Interactive
  AGENTVOICE_TOKEN=agt_... agentvoice

  # Headless, play the agent with ffplay
  AGENTVOICE_PLAYBACK=- agentvoice -headless | ffplay -i -

Options:
  -headless   Connect immediately and log events instead of showing the view
  -h, --help  Show this help message
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, helpText) }
	headless := flag.Bool("headless", false, "log events instead of showing the view")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentvoice: %v\n", err)
		os.Exit(1)
	}

	logOut, closeLog, err := logOutput(cfg, *headless)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agentvoice: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: logOut, TimeFormat: "15:04:05.000", NoColor: !*headless})
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	playback, closePlayback, err := playbackOutput(cfg, *headless)
	if err != nil {
		log.Fatal().Str("module", "main").Err(err).Msg("open playback")
	}
	defer closePlayback()

	logger := log.With().Str("module", "voice").Logger()
	mgr := voice.New(
		voice.Config{Credential: cfg.Token, APIBase: cfg.APIBase, ManualAudio: cfg.ManualAudio},
		voice.WithLogger(logger),
		voice.WithAgentMatcher(voice.AgentPrefix(cfg.AgentPrefix)),
		voice.WithRoomFactory(roomFactory(cfg, playback)),
	)

	if *headless {
		runHeadless(mgr, cfg)
		return
	}

	m := tui.New(mgr, tui.Config{AutoConnect: cfg.AutoConnect, UserID: cfg.UserID})
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runHeadless(mgr *voice.Manager, cfg *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("module", "main").Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	logEvents(mgr.Events())
	events.Subscribe(mgr.Events(), func(domain.DisconnectedEvent) {
		cancel()
	})

	if err := mgr.Connect(ctx, voice.ConnectOptions{UserID: cfg.UserID}); err != nil {
		log.Fatal().Str("module", "main").Err(err).Msg("connect")
	}

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := mgr.Disconnect(shutdownCtx); err != nil {
		log.Error().Str("module", "main").Err(err).Msg("disconnect")
	}
	log.Info().Str("module", "main").Msg("done")
}

func logEvents(d *events.Dispatcher) {
	l := log.With().Str("module", "main").Logger()
	events.Subscribe(d, func(e domain.StateChangeEvent) { l.Info().Str("state", e.State.String()).Msg("state") })
	events.Subscribe(d, func(e domain.SessionCreatedEvent) { l.Info().Str("session_id", e.SessionID).Msg("session created") })
	events.Subscribe(d, func(e domain.AgentConnectedEvent) { l.Info().Str("identity", e.Identity).Msg("agent joined") })
	events.Subscribe(d, func(domain.AgentDisconnectedEvent) { l.Info().Msg("agent left") })
	events.Subscribe(d, func(e domain.TranscriptEvent) { l.Info().Str("text", e.Text).Msg("you") })
	events.Subscribe(d, func(e domain.ResponseEvent) { l.Info().Str("text", e.Text).Msg("agent") })
	events.Subscribe(d, func(e domain.ErrorEvent) { l.Error().Err(e.Err).Msg("session error") })
}

func roomFactory(cfg *config.Config, playback io.Writer) domain.RoomFactory {
	if cfg.Transport == config.TransportWebsocket {
		logger := log.With().Str("module", "signal").Logger()
		return sigroom.NewRoomFactory(sigroom.Options{PingInterval: cfg.PingInterval, Logger: &logger})
	}
	return webrtc.NewRoomFactory(webrtc.Options{
		Playback:       playback,
		OpenMicrophone: microphoneOpener(cfg.Microphone),
		Logger:         log.With().Str("module", "webrtc").Logger(),
	})
}

func microphoneOpener(path string) func() (io.ReadCloser, error) {
	switch path {
	case "":
		return nil
	case "-":
		return func() (io.ReadCloser, error) { return io.NopCloser(os.Stdin), nil }
	default:
		return func() (io.ReadCloser, error) { return os.Open(path) }
	}
}

func playbackOutput(cfg *config.Config, headless bool) (io.Writer, func(), error) {
	switch cfg.Playback {
	case "":
		return nil, func() {}, nil
	case "-":
		if !headless {
			return nil, nil, fmt.Errorf("playback to stdout needs -headless")
		}
		return os.Stdout, func() {}, nil
	default:
		f, err := os.Create(cfg.Playback)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { f.Close() }, nil
	}
}

// logOutput keeps logs off the terminal while the view owns it.
func logOutput(cfg *config.Config, headless bool) (io.Writer, func(), error) {
	if headless || cfg.LogFile == "" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, func() { f.Close() }, nil
}
