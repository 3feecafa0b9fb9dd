package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"

	"bookcatalog/internal/book"
	"bookcatalog/internal/platform/bookclient"
)

func main() {
	var (
		baseURL    = flag.String("addr", "http://localhost:5000", "Base URL of the catalog service")
		count      = flag.Int("count", 25, "Number of books to create")
		perMinute  = flag.Int("rate", 10, "Requests per minute to send; 0 sends as fast as the server allows")
		maxRetries = flag.Int("retries", 5, "Retries per book after a 429")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := bookclient.New(*baseURL,
		bookclient.WithRate(*perMinute),
		bookclient.WithMaxRetries(*maxRetries),
	)

	slog.Info("generating books", slog.Int("count", *count), slog.Int("rate_per_minute", *perMinute))
	created, err := seed(ctx, client, *count)
	if err != nil {
		slog.Error("seed failed", slog.Int("created", created), slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("seed finished", slog.Int("created", created))
}

type bookCreator interface {
	CreateBook(ctx context.Context, fields map[string]any) (book.Book, error)
}

// seed creates count random books and reports how many made it.
func seed(ctx context.Context, c bookCreator, count int) (int, error) {
	for i := 0; i < count; i++ {
		b, err := c.CreateBook(ctx, randomBook(i+1))
		if err != nil {
			return i, fmt.Errorf("book %d: %w", i+1, err)
		}
		slog.Info("created book", slog.Int("id", b.ID), slog.String("title", b.Title))
	}
	return count, nil
}

func randomBook(n int) map[string]any {
	genres := []string{"Fiction", "Science Fiction", "History", "Science", "Technology", "Romance", "Mystery", "Biography", "Philosophy", "Art"}
	authors := []string{"Ursula K. Le Guin", "Italo Calvino", "Toni Morrison", "Jorge Luis Borges", "Octavia E. Butler", "Stanislaw Lem"}

	return map[string]any{
		"title":  fmt.Sprintf("Book Title %d - %s", n, getRandomWord()),
		"author": authors[rand.Intn(len(authors))],
		"genre":  genres[rand.Intn(len(genres))],
		"year":   1950 + rand.Intn(75),
	}
}

func getRandomWord() string {
	words := []string{
		"Adventure", "Mystery", "Journey", "Discovery", "Secrets", "Dreams", "Hope",
		"Love", "War", "Peace", "Science", "Nature", "Technology", "History", "Future",
		"Past", "Present", "Reality", "Imagination", "Wisdom", "Life", "Death",
		"Light", "Darkness", "World", "Universe", "Time", "Space", "Mind", "Soul",
	}
	return words[rand.Intn(len(words))]
}
