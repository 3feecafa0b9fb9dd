package book

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// createInput and updateInput carry the typed fields of a payload.
// Only presence and non-emptiness are checked.
type createInput struct {
	Title  *string `validate:"required,min=1"`
	Author *string `validate:"required,min=1"`
}

type updateInput struct {
	Title  *string `validate:"omitnil,min=1"`
	Author *string `validate:"omitnil,min=1"`
}

// Service provides book catalog business logic.
type Service struct {
	repo     Repository
	validate *validator.Validate
}

// NewService creates a new book service.
func NewService(repo Repository) *Service {
	return &Service{
		repo:     repo,
		validate: validator.New(),
	}
}

// List returns one page of books and the catalog size.
func (s *Service) List(ctx context.Context, q Query) ([]Book, int, error) {
	return s.repo.List(ctx, q)
}

// Get returns a book by id.
func (s *Service) Get(ctx context.Context, id int) (Book, error) {
	return s.repo.Get(ctx, id)
}

// Create validates fields and stores a new book. A client-supplied id is
// discarded; the repository assigns one.
func (s *Service) Create(ctx context.Context, fields Fields) (Book, error) {
	title, author, extra, err := splitFields(fields)
	if err != nil {
		return Book{}, err
	}
	if err := s.check(createInput{Title: title, Author: author}); err != nil {
		return Book{}, err
	}

	b, err := s.repo.Create(ctx, Book{Title: *title, Author: *author, Extra: extra})
	if err != nil {
		return Book{}, fmt.Errorf("create book: %w", err)
	}
	return b, nil
}

// Update merges fields into the book with the given id. The id itself is
// not writable.
func (s *Service) Update(ctx context.Context, id int, fields Fields) (Book, error) {
	title, author, extra, err := splitFields(fields)
	if err != nil {
		return Book{}, err
	}
	if err := s.check(updateInput{Title: title, Author: author}); err != nil {
		return Book{}, err
	}

	b, err := s.repo.Update(ctx, id, Patch{Title: title, Author: author, Extra: extra})
	if err != nil {
		return Book{}, fmt.Errorf("update book %d: %w", id, err)
	}
	return b, nil
}

// Delete removes a book and returns what it held.
func (s *Service) Delete(ctx context.Context, id int) (Book, error) {
	b, err := s.repo.Delete(ctx, id)
	if err != nil {
		return Book{}, fmt.Errorf("delete book %d: %w", id, err)
	}
	return b, nil
}

func (s *Service) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	out := &ValidationError{}
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		var message string
		switch fe.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", field)
		case "min":
			message = fmt.Sprintf("%s must not be empty", field)
		default:
			message = fmt.Sprintf("%s is invalid", field)
		}
		out.Fields = append(out.Fields, FieldError{Field: field, Message: message})
	}
	return out
}

// splitFields pulls title and author out of a payload as strings and
// returns every other field except id untouched.
func splitFields(fields Fields) (title, author *string, extra map[string]json.RawMessage, err error) {
	verr := &ValidationError{}
	for _, k := range []struct {
		name string
		dst  **string
	}{
		{"title", &title},
		{"author", &author},
	} {
		raw, ok := fields[k.name]
		if !ok {
			continue
		}
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			verr.Fields = append(verr.Fields, FieldError{
				Field:   k.name,
				Message: fmt.Sprintf("%s must be a string", k.name),
			})
			continue
		}
		*k.dst = &v
	}
	if len(verr.Fields) > 0 {
		return nil, nil, nil, verr
	}

	for k, v := range fields {
		switch k {
		case "id", "title", "author":
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}
	return title, author, extra, nil
}
