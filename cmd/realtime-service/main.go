package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"musicroom/internal/config"
	"musicroom/internal/logger"
	"musicroom/internal/middleware"
	"musicroom/internal/realtime"
)

const (
	serviceName = "realtime-service"
	defaultPort = 3004
)

func main() {
	cfg, err := config.Load(defaultPort)
	if err != nil {
		logger.Init(serviceName, "info", false)
		logger.Log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger.Init(serviceName, cfg.Logging.Level, cfg.Logging.Pretty)

	if err := run(cfg); err != nil {
		logger.Log.Fatal().Err(err).Msg("realtime-service stopped")
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return err
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	hub := realtime.NewHub()
	srv := realtime.NewServer(hub, cfg.Server.AllowedOrigins)

	go hub.Run(ctx)
	go srv.RunRedisSubscriber(ctx, rdb)

	// No request timeout: websocket handlers outlive the upgrade request.
	r := srv.Router(
		chimw.RealIP,
		middleware.RequestLogging(),
		middleware.Recovery(),
	)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info().Str("addr", server.Addr).Msg("realtime-service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Log.Info().Msg("shutting down realtime-service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error().Err(err).Msg("forced shutdown")
	}
	return nil
}
