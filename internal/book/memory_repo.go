package book

import (
	"context"
	"maps"
	"math"
	"slices"
	"sync"
)

// MemoryRepo is a process-lifetime catalog guarded by a single mutex.
// Ids come from a counter that only moves forward, so a deleted id is
// never handed out again.
type MemoryRepo struct {
	mu     sync.RWMutex
	books  []Book
	nextID int
}

// NewMemoryRepo returns a catalog holding seed. The first assigned id is
// one past the largest seed id, or 1 for an empty seed.
func NewMemoryRepo(seed ...Book) *MemoryRepo {
	r := &MemoryRepo{
		books:  make([]Book, 0, len(seed)),
		nextID: 1,
	}
	for _, b := range seed {
		r.books = append(r.books, b)
		if b.ID >= r.nextID {
			r.nextID = b.ID + 1
		}
	}
	return r
}

func (r *MemoryRepo) List(_ context.Context, q Query) ([]Book, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := len(r.books)
	start, end, ok := pageWindow(q.Page, q.Limit, total)
	if !ok {
		return []Book{}, total, nil
	}
	out := make([]Book, end-start)
	copy(out, r.books[start:end])
	return out, total, nil
}

func (r *MemoryRepo) Get(_ context.Context, id int) (Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.indexOf(id)
	if i < 0 {
		return Book{}, ErrNotFound
	}
	return r.books[i], nil
}

func (r *MemoryRepo) Create(_ context.Context, b Book) (Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b.ID = r.nextID
	b.Extra = maps.Clone(b.Extra)
	r.nextID++
	r.books = append(r.books, b)
	return b, nil
}

func (r *MemoryRepo) Update(_ context.Context, id int, patch Patch) (Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return Book{}, ErrNotFound
	}
	r.books[i] = patch.Apply(r.books[i])
	return r.books[i], nil
}

func (r *MemoryRepo) Delete(_ context.Context, id int) (Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return Book{}, ErrNotFound
	}
	deleted := r.books[i]
	r.books = slices.DeleteFunc(r.books, func(b Book) bool { return b.ID == id })
	return deleted, nil
}

// indexOf must be called with r.mu held.
func (r *MemoryRepo) indexOf(id int) int {
	return slices.IndexFunc(r.books, func(b Book) bool { return b.ID == id })
}

// pageWindow returns the [start, end) slice bounds of a page over n items.
// ok is false when the page lies entirely outside the catalog. A page or
// limit below 1 is always empty; negative offsets never index from the end.
func pageWindow(page, limit, n int) (start, end int, ok bool) {
	if page < 1 || limit < 1 {
		return 0, 0, false
	}
	if page-1 > (math.MaxInt-limit)/limit {
		return 0, 0, false
	}
	start = (page - 1) * limit
	if start >= n {
		return 0, 0, false
	}
	return start, min(start+limit, n), true
}
