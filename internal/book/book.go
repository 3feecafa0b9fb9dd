package book

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
)

var (
	// ErrNotFound is returned when no book has the requested id.
	ErrNotFound = errors.New("book not found")
	// ErrInvalid is returned when a create or update payload fails validation.
	ErrInvalid = errors.New("invalid book data")
)

// Book represents a catalog record. Fields other than id, title and author
// are kept verbatim in Extra and written back next to the known fields.
type Book struct {
	ID     int
	Title  string
	Author string
	Extra  map[string]json.RawMessage
}

// Query defines pagination for listing books. Page is 1-based.
type Query struct {
	Page  int
	Limit int
}

// Fields is a decoded JSON object from a create or update request.
type Fields map[string]json.RawMessage

// Patch holds the fields an update overwrites. Nil pointers leave the
// current value untouched.
type Patch struct {
	Title  *string
	Author *string
	Extra  map[string]json.RawMessage
}

// Apply returns a copy of b with the patch merged in.
func (p Patch) Apply(b Book) Book {
	out := b
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Author != nil {
		out.Author = *p.Author
	}
	if len(p.Extra) > 0 {
		out.Extra = maps.Clone(b.Extra)
		if out.Extra == nil {
			out.Extra = make(map[string]json.RawMessage, len(p.Extra))
		}
		maps.Copy(out.Extra, p.Extra)
	}
	return out
}

func (b Book) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(b.Extra)+3)
	for k, v := range b.Extra {
		out[k] = v
	}
	out["id"] = b.ID
	out["title"] = b.Title
	out["author"] = b.Author
	return json.Marshal(out)
}

func (b *Book) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var out Book
	known := []struct {
		name string
		dst  any
	}{
		{"id", &out.ID},
		{"title", &out.Title},
		{"author", &out.Author},
	}
	for _, k := range known {
		raw, ok := fields[k.name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, k.dst); err != nil {
			return fmt.Errorf("decode %s: %w", k.name, err)
		}
		delete(fields, k.name)
	}
	if len(fields) > 0 {
		out.Extra = fields
	}
	*b = out
	return nil
}

// FieldError describes a single rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field a payload was rejected for.
// It matches ErrInvalid with errors.Is.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return fmt.Sprintf("%s: %s", ErrInvalid, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// SeedBooks returns the records a fresh catalog starts with.
func SeedBooks() []Book {
	return []Book{
		{ID: 1, Title: "The Great Gatsby", Author: "F. Scott Fitzgerald"},
		{ID: 2, Title: "1984", Author: "George Orwell"},
	}
}
