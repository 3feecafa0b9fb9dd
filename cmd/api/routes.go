package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"bookcatalog/internal/book"
	"bookcatalog/internal/httpx"
)

// statsReader is implemented by both limiter stats backends.
type statsReader interface {
	Total(ctx context.Context) (httpx.Counters, error)
}

type memoryStats struct{ *httpx.MemoryStatsStore }

func (m memoryStats) Total(context.Context) (httpx.Counters, error) {
	return m.MemoryStatsStore.Total(), nil
}

type routerDeps struct {
	logger      *slog.Logger
	books       *book.HTTPHandler
	limiter     *httpx.RateLimitMiddleware
	stats       statsReader
	ready       func(ctx context.Context) error
	corsOrigins []string
	enableHSTS  bool
	maxBody     int64
}

func newRouter(d routerDeps) http.Handler {
	router := http.NewServeMux()

	router.Handle("/api/books", httpx.MethodMux(map[string]http.Handler{
		http.MethodGet:  d.limiter.Middleware(http.HandlerFunc(d.books.List)),
		http.MethodPost: d.limiter.Middleware(http.HandlerFunc(d.books.Create)),
	}))
	router.Handle("/api/books/{id}", httpx.MethodMux(map[string]http.Handler{
		http.MethodPut:    http.HandlerFunc(d.books.Update),
		http.MethodDelete: http.HandlerFunc(d.books.Delete),
	}))

	router.Handle("/healthz", httpx.MethodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		}),
	}))
	router.Handle("/readyz", httpx.MethodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if d.ready != nil {
				ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
				defer cancel()
				if err := d.ready(ctx); err != nil {
					httpx.JSONError(w, http.StatusServiceUnavailable, "not ready", nil)
					return
				}
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
		}),
	}))
	router.Handle("/debug/ratelimit", httpx.MethodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			total, err := d.stats.Total(r.Context())
			if err != nil {
				d.logger.ErrorContext(r.Context(), "read rate limit stats", slog.String("error", err.Error()))
				httpx.JSONError(w, http.StatusServiceUnavailable, "stats unavailable", nil)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, total)
		}),
	}))

	router.HandleFunc("/", httpx.NotFound)

	return httpx.Chain(router,
		httpx.RequestIDMiddleware,
		httpx.AccessLogMiddleware(d.logger),
		httpx.RecoveryMiddleware(d.logger),
		httpx.SecurityHeadersMiddleware(d.enableHSTS),
		httpx.CORSMiddleware(d.corsOrigins),
		httpx.RequestSizeLimitMiddleware(d.maxBody),
	)
}
