package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/strefethen/freebox-hub-go/internal/config"
	"github.com/strefethen/freebox-hub-go/internal/server"
)

func newLogger(cfg config.Config) zerolog.Logger {
	var out io.Writer = os.Stderr
	if !strings.EqualFold(cfg.LogFormat, "json") {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "freebox-hub").Logger()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootstrap := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
		bootstrap.Fatal().Err(err).Msg("config error")
	}
	logger := newLogger(cfg)
	addr := cfg.Host + ":" + cfg.Port

	handler, shutdownHandler, err := server.NewHandler(cfg, server.Options{Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("server init error")
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sig := <-shutdownCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Stop accepting requests before tearing down the services behind them.
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("http shutdown error")
		}
		if err := shutdownHandler(ctx); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
	}()

	logger.Info().Str("addr", addr).Str("freebox_url", cfg.FreeboxURL).Msg("freebox-hub listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server error")
	}
	<-done
}
