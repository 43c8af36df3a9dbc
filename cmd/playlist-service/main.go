package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"musicroom/internal/config"
	"musicroom/internal/deezer"
	"musicroom/internal/logger"
	"musicroom/internal/middleware"
	"musicroom/internal/playlist"
)

const (
	serviceName = "playlist-service"
	defaultPort = 3002
)

func main() {
	cfg, err := config.Load(defaultPort)
	if err != nil {
		logger.Init(serviceName, "info", false)
		logger.Log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger.Init(serviceName, cfg.Logging.Level, cfg.Logging.Pretty)

	if err := cfg.RequireDatabase(); err != nil {
		logger.Log.Fatal().Err(err).Msg("invalid configuration")
	}

	if err := run(cfg); err != nil {
		logger.Log.Fatal().Err(err).Msg("playlist-service stopped")
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := playlist.Migrate(cfg.Database.URL); err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return err
	}

	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return err
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	lookup := deezer.NewClient(cfg.Deezer.APIURL,
		deezer.WithHTTPClient(&http.Client{Timeout: cfg.Deezer.Timeout}),
		deezer.WithRateLimit(cfg.Deezer.RateLimit, cfg.Deezer.Burst),
		deezer.WithCache(rdb, cfg.Deezer.CacheTTL),
	)

	store := playlist.NewPostgresStore(pool)
	svc := playlist.NewService(
		store,
		lookup,
		playlist.NewLicensePolicy(store),
		playlist.NewRedisBroadcaster(rdb),
		playlist.WithBroadcastTimeout(cfg.Broadcast.Timeout),
	)

	srv := playlist.NewServer(svc, []byte(cfg.Auth.JWTSecret))
	r := srv.Router(
		chimw.RealIP,
		middleware.RequestLogging(),
		middleware.Recovery(),
		chimw.Timeout(cfg.Server.RequestTimeout),
	)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info().Str("addr", server.Addr).Msg("playlist-service listening")
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

	logger.Log.Info().Msg("shutting down playlist-service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error().Err(err).Msg("forced shutdown")
	}
	svc.Drain()

	logger.Log.Info().Msg("playlist-service exited")
	return nil
}
