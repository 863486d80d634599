package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hearthchat/hearth/internal/server"
)

func main() {
	cfg := server.Load()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	registry := server.NewRegistry(cfg.SeedRooms)
	hub := server.NewHub(cfg, registry, logger)
	go hub.Run()
	logger.Info().Strs("seed_rooms", cfg.SeedRooms).Msg("hub started")

	api := server.NewAPI(hub, cfg, logger)
	router := server.NewRouter(api, logger)
	srv := server.CreateServer(cfg.Port, router)

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting hearth server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	if err := server.ShutdownServer(srv, cfg.ShutdownTimeout, logger); err != nil {
		logger.Error().Err(err).Msg("forced HTTP shutdown")
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Error().Err(err).Msg("hub shutdown incomplete")
	}

	logger.Info().Msg("server stopped")
}
