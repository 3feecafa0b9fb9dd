package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"bookcatalog/internal/book"
	"bookcatalog/internal/httpx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler http.Handler
	stats   *httpx.MemoryStatsStore
}

func newTestServer(t *testing.T, perMinute int, ready func(context.Context) error) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stats := httpx.NewMemoryStatsStore()
	limiter := httpx.NewRateLimitMiddleware(httpx.RateLimitOptions{PerMinute: perMinute, Stats: stats})

	repo := book.NewMemoryRepo(book.SeedBooks()...)
	return &testServer{
		handler: newRouter(routerDeps{
			logger:  logger,
			books:   book.NewHTTPHandler(book.NewService(repo)),
			limiter: limiter,
			stats:   memoryStats{stats},
			ready:   ready,
			maxBody: 1 << 20,
		}),
		stats: stats,
	}
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func TestBooksAPI_List(t *testing.T) {
	srv := newTestServer(t, 100, nil)

	tests := []struct {
		name   string
		target string
		want   string
	}{
		{
			name:   "defaults",
			target: "/api/books",
			want: `[{"id":1,"title":"The Great Gatsby","author":"F. Scott Fitzgerald"},
				{"id":2,"title":"1984","author":"George Orwell"}]`,
		},
		{name: "second page of one", target: "/api/books?page=2&limit=1", want: `[{"id":2,"title":"1984","author":"George Orwell"}]`},
		{name: "past the end", target: "/api/books?page=3&limit=1", want: `[]`},
		{name: "zero limit", target: "/api/books?limit=0", want: `[]`},
		{name: "malformed values fall back", target: "/api/books?page=x&limit=y", want: `[
				{"id":1,"title":"The Great Gatsby","author":"F. Scott Fitzgerald"},
				{"id":2,"title":"1984","author":"George Orwell"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(t, http.MethodGet, tt.target, "")

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Equal(t, "2", w.Header().Get("X-Total-Count"))
			assert.JSONEq(t, tt.want, w.Body.String())
		})
	}
}

func TestBooksAPI_Head(t *testing.T) {
	srv := newTestServer(t, 100, nil)

	w := srv.do(t, http.MethodHead, "/api/books", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-Total-Count"))

	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodHead, "/healthz", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, srv.do(t, http.MethodHead, "/api/books/1", "").Code)
}

func TestBooksAPI_Create(t *testing.T) {
	srv := newTestServer(t, 100, nil)

	w := srv.do(t, http.MethodPost, "/api/books", `{"title":"Dune","author":"Frank Herbert","year":1965}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"id":3,"title":"Dune","author":"Frank Herbert","year":1965}`, w.Body.String())

	w = srv.do(t, http.MethodGet, "/api/books?page=3&limit=1", "")
	assert.JSONEq(t, `[{"id":3,"title":"Dune","author":"Frank Herbert","year":1965}]`, w.Body.String())
}

func TestBooksAPI_CreateInvalid(t *testing.T) {
	srv := newTestServer(t, 100, nil)

	tests := []struct {
		name       string
		body       string
		wantFields []string
	}{
		{name: "missing author", body: `{"title":"Dune"}`, wantFields: []string{"author"}},
		{name: "missing both", body: `{}`, wantFields: []string{"title", "author"}},
		{name: "empty title", body: `{"title":"","author":"Frank Herbert"}`, wantFields: []string{"title"}},
		{name: "non-string author", body: `{"title":"Dune","author":42}`, wantFields: []string{"author"}},
		{name: "not an object", body: `[1,2]`, wantFields: []string{"body"}},
		{name: "malformed", body: `{"title":`, wantFields: []string{"body"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(t, http.MethodPost, "/api/books", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)

			var resp httpx.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "Invalid book data", resp.Error)

			var fields []string
			for _, d := range resp.Details {
				fields = append(fields, d.Field)
			}
			assert.ElementsMatch(t, tt.wantFields, fields)
		})
	}

	w := srv.do(t, http.MethodGet, "/api/books", "")
	assert.Equal(t, "2", w.Header().Get("X-Total-Count"))
}

func TestBooksAPI_Update(t *testing.T) {
	srv := newTestServer(t, 100, nil)

	w := srv.do(t, http.MethodPut, "/api/books/2", `{"title":"Nineteen Eighty-Four","id":99}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":2,"title":"Nineteen Eighty-Four","author":"George Orwell"}`, w.Body.String())

	w = srv.do(t, http.MethodPut, "/api/books/2", `{"genre":"dystopia"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":2,"title":"Nineteen Eighty-Four","author":"George Orwell","genre":"dystopia"}`, w.Body.String())

	t.Run("unknown id", func(t *testing.T) {
		w := srv.do(t, http.MethodPut, "/api/books/999", `{"title":"X"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Empty(t, w.Body.String())
	})

	t.Run("unknown id beats a bad body", func(t *testing.T) {
		w := srv.do(t, http.MethodPut, "/api/books/999", `not json`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("empty title rejected", func(t *testing.T) {
		w := srv.do(t, http.MethodPut, "/api/books/1", `{"title":""}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = srv.do(t, http.MethodGet, "/api/books?limit=1", "")
		assert.JSONEq(t, `[{"id":1,"title":"The Great Gatsby","author":"F. Scott Fitzgerald"}]`, w.Body.String())
	})
}

func TestBooksAPI_Delete(t *testing.T) {
	srv := newTestServer(t, 100, nil)

	w := srv.do(t, http.MethodDelete, "/api/books/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":1,"title":"The Great Gatsby","author":"F. Scott Fitzgerald"}`, w.Body.String())

	w = srv.do(t, http.MethodDelete, "/api/books/1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Body.String())

	w = srv.do(t, http.MethodPut, "/api/books/1", `{"title":"Back"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = srv.do(t, http.MethodGet, "/api/books", "")
	assert.JSONEq(t, `[{"id":2,"title":"1984","author":"George Orwell"}]`, w.Body.String())

	// Ids are never reused.
	w = srv.do(t, http.MethodPost, "/api/books", `{"title":"Dune","author":"Frank Herbert"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"id":3,"title":"Dune","author":"Frank Herbert"}`, w.Body.String())
}

func TestBooksAPI_UnknownRoutesAndMethods(t *testing.T) {
	srv := newTestServer(t, 100, nil)

	notFound := []struct{ method, target string }{
		{http.MethodGet, "/"},
		{http.MethodGet, "/api/unknown"},
		{http.MethodGet, "/api/books/"},
		{http.MethodPut, "/api/books/abc"},
		{http.MethodDelete, "/api/books/-1"},
		{http.MethodGet, "/api/books/1/extra"},
	}
	for _, tt := range notFound {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			w := srv.do(t, tt.method, tt.target, "")
			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.JSONEq(t, `{"error":"Not Found"}`, w.Body.String())
		})
	}

	methodNotAllowed := []struct{ method, target, allow string }{
		{http.MethodPatch, "/api/books", "GET, HEAD, POST"},
		{http.MethodDelete, "/api/books", "GET, HEAD, POST"},
		{http.MethodGet, "/api/books/1", "DELETE, PUT"},
		{http.MethodPost, "/api/books/1", "DELETE, PUT"},
	}
	for _, tt := range methodNotAllowed {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			w := srv.do(t, tt.method, tt.target, "")
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
			assert.Equal(t, tt.allow, w.Header().Get("Allow"))
			assert.JSONEq(t, `{"error":"Method Not Allowed"}`, w.Body.String())
		})
	}
}

func TestBooksAPI_RateLimit(t *testing.T) {
	srv := newTestServer(t, 10, nil)

	for i := 0; i < 10; i++ {
		var w *httptest.ResponseRecorder
		if i%2 == 0 {
			w = srv.do(t, http.MethodGet, "/api/books", "")
		} else {
			w = srv.do(t, http.MethodPost, "/api/books", fmt.Sprintf(`{"title":"T%d","author":"A"}`, i))
		}
		require.Less(t, w.Code, 300, "request %d", i+1)
	}

	w := srv.do(t, http.MethodPost, "/api/books", `{"title":"Too many","author":"A"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"Too Many Requests"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusTooManyRequests, srv.do(t, http.MethodGet, "/api/books", "").Code)

	// Update and delete are not limited.
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodPut, "/api/books/1", `{"title":"Still here"}`).Code)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodDelete, "/api/books/2", "").Code)

	w = srv.do(t, http.MethodGet, "/debug/ratelimit", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"allowed":10,"denied":2}`, w.Body.String())
	assert.Equal(t, httpx.Counters{Allowed: 5, Denied: 1}, srv.stats.ByRoute()["POST /api/books"])
}

func TestBooksAPI_ConcurrentCreatesGetUniqueIDs(t *testing.T) {
	srv := newTestServer(t, 1000, nil)

	const n = 50
	ids := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := srv.do(t, http.MethodPost, "/api/books", fmt.Sprintf(`{"title":"Book %d","author":"Author"}`, i))
			if w.Code != http.StatusCreated {
				t.Errorf("request %d: status %d", i, w.Code)
				return
			}
			var b struct {
				ID int `json:"id"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &b); err != nil {
				t.Errorf("request %d: %v", i, err)
				return
			}
			ids <- b.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[int]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		assert.Greater(t, id, 2)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestHealthAndReadiness(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv := newTestServer(t, 10, func(context.Context) error { return nil })

		w := srv.do(t, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", w.Body.String())

		w = srv.do(t, http.MethodGet, "/readyz", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ready", w.Body.String())
	})

	t.Run("stats backend down", func(t *testing.T) {
		srv := newTestServer(t, 10, func(context.Context) error { return errors.New("connection refused") })

		w := srv.do(t, http.MethodGet, "/readyz", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.JSONEq(t, `{"error":"not ready"}`, w.Body.String())

		assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/healthz", "").Code)
	})
}

func TestRouter_AmbientHeaders(t *testing.T) {
	srv := newTestServer(t, 10, nil)

	w := srv.do(t, http.MethodGet, "/healthz", "")
	assert.Len(t, w.Header().Get("X-Request-Id"), 36)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestRouter_BodyTooLarge(t *testing.T) {
	srv := newTestServer(t, 10, nil)
	big := `{"title":"` + strings.Repeat("x", 2<<20) + `","author":"A"}`

	w := srv.do(t, http.MethodPost, "/api/books", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	// Without a Content-Length the body is cut off while decoding.
	req := httptest.NewRequest(http.MethodPost, "/api/books", io.NopCloser(strings.NewReader(big)))
	req.ContentLength = -1
	w = httptest.NewRecorder()
	srv.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.JSONEq(t, `{"error":"Request Entity Too Large"}`, w.Body.String())
}
