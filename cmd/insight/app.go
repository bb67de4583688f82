package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/insight-ai/insight-go/internal/assistant"
	"github.com/insight-ai/insight-go/internal/backend"
	"github.com/insight-ai/insight-go/internal/capture"
	"github.com/insight-ai/insight-go/internal/config"
	"github.com/insight-ai/insight-go/internal/flight"
	"github.com/insight-ai/insight-go/internal/imaging"
	"github.com/insight-ai/insight-go/internal/messages"
	"github.com/insight-ai/insight-go/internal/notify"
	"github.com/insight-ai/insight-go/internal/playback"
	"github.com/insight-ai/insight-go/internal/prefs"
	"github.com/insight-ai/insight-go/internal/session"
)

// app wires the client components for one command invocation.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	out    io.Writer

	session      *session.FileStore
	prefs        *prefs.FileStore
	notifier     *notify.Deduper
	backend      *backend.Client
	store        *messages.Store
	player       *playback.Manager
	bridge       *capture.Bridge
	orchestrator *assistant.Orchestrator

	idle chan struct{}
}

func newApp(cfg *config.Config, logger zerolog.Logger, out, errOut io.Writer) *app {
	mu := &sync.Mutex{}
	out = lockedWriter{mu: mu, w: out}
	errOut = lockedWriter{mu: mu, w: errOut}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		out:     out,
		session: session.NewFileStore(cfg.Session.TokenFile),
		prefs:   prefs.NewFileStore(cfg.Preferences.Path),
		idle:    make(chan struct{}, 1),
	}

	a.notifier = notify.NewDeduper(func(category, message string) {
		fmt.Fprintf(errOut, "error: %s\n", message)
	}, cfg.Audio.NotifyWindow, logger)

	a.backend = backend.NewClient(&cfg.Backend, a.session, a.notifier, logger)
	a.store = messages.NewStore(a.session, a.backend, logger)
	a.player = playback.NewManager(playback.NewExecEngine(cfg.Audio.Player, logger), a.prefs, logger)
	a.player.Watch(func(s playback.State) {
		if s.Playing {
			return
		}
		select {
		case a.idle <- struct{}{}:
		default:
		}
	})
	a.bridge = capture.NewBridge(&cfg.Capture, logger)

	a.orchestrator = assistant.New(assistant.Deps{
		Capture:  a.bridge,
		Reducer:  imaging.NewReducer(cfg.Image.MaxWidth),
		Backend:  a.backend,
		Store:    a.store,
		Player:   a.player,
		Prefs:    a.prefs,
		Notifier: a.notifier,
		Metrics:  flight.NewMetrics(),
	}, logger)

	return a
}

// Close stops playback and the capture channel.
func (a *app) Close() {
	a.player.Stop()
	_ = a.bridge.Close()
}

// waitPlayback blocks until audio playback ends or ctx is cancelled, in which
// case playback is stopped.
func (a *app) waitPlayback(ctx context.Context) {
	for {
		select {
		case <-a.idle:
			continue
		default:
		}
		break
	}

	if !a.player.State().Playing {
		return
	}

	select {
	case <-a.idle:
	case <-ctx.Done():
		a.player.Stop()
	}
}

func (a *app) requireSession() error {
	if !a.session.Authenticated() {
		return fmt.Errorf("not signed in, run 'insight login' first")
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	return config.FromViper(viper.GetViper())
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.WarnLevel
	}

	if cfg.Format == "json" {
		return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}
