package book

import (
	"context"
)

//go:generate mockgen -source=ports.go -destination=mock_repository.go -package=book

// Repository defines the contract for book catalog storage.
// Each method is atomic with respect to the other methods.
type Repository interface {
	// List returns one page of books in insertion order and the catalog size.
	List(ctx context.Context, q Query) ([]Book, int, error)
	Get(ctx context.Context, id int) (Book, error)
	// Create assigns the next id to b and appends it.
	Create(ctx context.Context, b Book) (Book, error)
	Update(ctx context.Context, id int, patch Patch) (Book, error)
	// Delete removes the book and returns its prior contents.
	Delete(ctx context.Context, id int) (Book, error)
}
