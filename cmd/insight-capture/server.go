package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/insight-ai/insight-go/internal/api"
	"github.com/insight-ai/insight-go/internal/capture"
	"github.com/insight-ai/insight-go/internal/config"
	"github.com/insight-ai/insight-go/internal/flight"
	"github.com/insight-ai/insight-go/internal/queue"
)

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	logger.Info().
		Str("listen", cfg.Capture.Listen).
		Str("command", cfg.Capture.Command).
		Bool("auth", cfg.Capture.Token != "").
		Strs("allowed_origins", cfg.Capture.AllowedOrigins).
		Str("log_level", cfg.Logging.Level).
		Msg("Starting capture agent")

	jobMetrics := flight.NewMetrics()
	jobs := queue.NewManager(queue.Config{
		Workers:  1,
		MaxQueue: cfg.Capture.Queue,
		Metrics:  jobMetrics,
	})

	shooter := capture.NewCommandScreenshotter(cfg.Capture.Command)
	agent := capture.NewAgent(shooter, jobs, cfg.Capture.Timeout, logger)

	router := api.NewRouter(cfg, agent, jobMetrics, logger)

	// Shutdown leaves hijacked websockets alone; cancelling the base
	// context ends every open capture session.
	sessions, endSessions := context.WithCancel(context.Background())
	defer endSessions()

	// No write timeout: capture connections are long-lived websockets.
	srv := &http.Server{
		Addr:              cfg.Capture.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return sessions },
	}
	srv.RegisterOnShutdown(endSessions)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Capture.Listen).Msg("Agent listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down agent...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	if err := jobs.Shutdown(ctx); err != nil {
		return fmt.Errorf("queue shutdown error: %w", err)
	}

	logger.Info().Msg("Agent stopped")
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if cfg.Capture.Listen == "" {
		cfg.Capture.Listen = config.Default().Capture.Listen
	}
	return cfg, nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
