// Package bookclient talks to the catalog's REST API. It paces its own
// requests with a token bucket and waits out 429 responses for as long as
// the server's Retry-After asks.
package bookclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"bookcatalog/internal/book"
	"bookcatalog/internal/httpx"
)

var (
	ErrNotFound    = errors.New("book not found")
	ErrRateLimited = errors.New("rate limited")
)

// APIError is a non-2xx reply carrying the service's JSON error body.
type APIError struct {
	StatusCode int
	Message    string
	Details    []httpx.ErrorDetail
}

func (e *APIError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("catalog api: %d %s", e.StatusCode, e.Message)
	}
	msgs := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		msgs = append(msgs, d.Message)
	}
	return fmt.Sprintf("catalog api: %d %s: %s", e.StatusCode, e.Message, strings.Join(msgs, "; "))
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRate paces requests to perMinute, allowing a burst of the same size.
// Zero or less leaves the client unpaced.
func WithRate(perMinute int) Option {
	return func(c *Client) {
		if perMinute > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Inf, 0),
		maxRetries: 5,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListBooks fetches one page and the catalog size reported by the server.
func (c *Client) ListBooks(ctx context.Context, page, limit int) ([]book.Book, int, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var books []book.Book
	resp, err := c.do(ctx, http.MethodGet, "/api/books?"+q.Encode(), nil, &books)
	if err != nil {
		return nil, 0, err
	}
	total, _ := strconv.Atoi(resp.Header.Get("X-Total-Count"))
	return books, total, nil
}

func (c *Client) CreateBook(ctx context.Context, fields map[string]any) (book.Book, error) {
	var b book.Book
	_, err := c.do(ctx, http.MethodPost, "/api/books", fields, &b)
	return b, err
}

func (c *Client) UpdateBook(ctx context.Context, id int, fields map[string]any) (book.Book, error) {
	var b book.Book
	_, err := c.do(ctx, http.MethodPut, "/api/books/"+strconv.Itoa(id), fields, &b)
	return b, err
}

func (c *Client) DeleteBook(ctx context.Context, id int) (book.Book, error) {
	var b book.Book
	_, err := c.do(ctx, http.MethodDelete, "/api/books/"+strconv.Itoa(id), nil, &b)
	return b, err
}

func (c *Client) do(ctx context.Context, method, path string, payload, target any) (*http.Response, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := RetryAfter(resp.Header.Get("Retry-After"))
			drain(resp)
			if attempt >= c.maxRetries {
				return nil, fmt.Errorf("%s %s: %w after %d retries", method, path, ErrRateLimited, attempt)
			}
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		defer drain(resp)
		switch {
		case resp.StatusCode == http.StatusNotFound && method != http.MethodGet:
			return nil, ErrNotFound
		case resp.StatusCode >= 300:
			return nil, decodeAPIError(resp)
		}
		if target != nil {
			if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
				return nil, fmt.Errorf("decode %s %s: %w", method, path, err)
			}
		}
		return resp, nil
	}
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var body httpx.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Details = body.Details
	}
	return apiErr
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// RetryAfter reads a delay-seconds Retry-After value, defaulting to one
// second for anything else.
func RetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 1 {
		return time.Second
	}
	return time.Duration(secs) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
