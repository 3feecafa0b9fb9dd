package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookcatalog/internal/book"
	"bookcatalog/internal/config"
	"bookcatalog/internal/httpx"

	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, config.Usage())
		return err
	}

	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		stats      httpx.StatsStore
		statsRead  statsReader
		readyCheck func(ctx context.Context) error
	)
	if addr := cfg.RateLimit.StatsRedisAddr; addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()

		redisStats := httpx.NewRedisStatsStore(rdb)
		stats, statsRead = redisStats, redisStats
		readyCheck = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		logger.Info("rate limit stats in redis", slog.String("addr", addr))
	} else {
		memStats := httpx.NewMemoryStatsStore()
		stats, statsRead = memStats, memoryStats{memStats}
	}

	limiter := httpx.NewRateLimitMiddleware(httpx.RateLimitOptions{
		PerMinute:          cfg.RateLimit.PerMinute,
		TrustXForwardedFor: cfg.RateLimit.TrustXFF,
		Stats:              stats,
	})
	limiter.StartJanitor(ctx)

	bookRepository := book.NewMemoryRepo(book.SeedBooks()...)
	bookHandler := book.NewHTTPHandler(book.NewService(bookRepository))

	handler := newRouter(routerDeps{
		logger:      logger,
		books:       bookHandler,
		limiter:     limiter,
		stats:       statsRead,
		ready:       readyCheck,
		corsOrigins: cfg.Security.CORSAllowedOrigins,
		enableHSTS:  cfg.Security.EnableHSTS,
		maxBody:     cfg.HTTPServer.MaxBodyBytes,
	})

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			slog.String("addr", cfg.Addr),
			slog.Int("rate_limit_per_minute", cfg.RateLimit.PerMinute),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
