package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookcatalog/internal/book"
	"bookcatalog/internal/httpx"
	"bookcatalog/internal/platform/bookclient"
)

type fakeCreator struct {
	failAt int
	seen   []map[string]any
}

func (f *fakeCreator) CreateBook(_ context.Context, fields map[string]any) (book.Book, error) {
	f.seen = append(f.seen, fields)
	if len(f.seen) == f.failAt {
		return book.Book{}, errors.New("boom")
	}
	return book.Book{ID: len(f.seen) + 2, Title: fields["title"].(string)}, nil
}

func TestSeed(t *testing.T) {
	f := &fakeCreator{}

	created, err := seed(context.Background(), f, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, created)
	require.Len(t, f.seen, 3)
	for _, fields := range f.seen {
		assert.NotEmpty(t, fields["title"])
		assert.NotEmpty(t, fields["author"])
	}
}

func TestSeed_StopsAtFirstFailure(t *testing.T) {
	f := &fakeCreator{failAt: 2}

	created, err := seed(context.Background(), f, 5)
	require.Error(t, err)
	assert.Equal(t, 1, created)
	assert.Contains(t, err.Error(), "book 2")
}

func TestSeed_AgainstRateLimitedServer(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			httpx.JSONError(w, http.StatusTooManyRequests, "Too Many Requests", nil)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, map[string]any{"id": calls.Load(), "title": "T", "author": "A"})
	}))
	defer srv.Close()

	c := bookclient.New(srv.URL, bookclient.WithHTTPClient(srv.Client()))

	created, err := seed(context.Background(), c, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRandomBook(t *testing.T) {
	b := randomBook(7)
	assert.Contains(t, b["title"], "Book Title 7 - ")
	assert.NotEmpty(t, b["author"])
	assert.NotEmpty(t, b["genre"])
}
