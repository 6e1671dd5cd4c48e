package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"shelfscan/internal/devserver"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := envOr("DEVSERVER_ADDR", ":8080")
	workers := envIntOr("DEVSERVER_WORKERS", 2)
	stepDelay := time.Duration(envIntOr("DEVSERVER_STEP_MS", 3000)) * time.Millisecond

	logger := newLogger(envOr("APP_ENV", "development"))

	table := devserver.NewJobTable()
	sim := devserver.NewSimulator(table, workers, stepDelay, logger)
	go sim.Run(ctx)

	handler := devserver.NewHandler(table, sim)
	srv := &http.Server{
		Addr:    addr,
		Handler: devserver.Routes(handler, logger),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Int("workers", workers).Msg("devserver started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("devserver failed")
	}
	logger.Info().Msg("devserver stopped")
}

func newLogger(appEnv string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger
}

func envOr(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
