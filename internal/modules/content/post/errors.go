package post

import (
	"errors"

	"github.com/itorigin/site/internal/pkg/response"
)

var (
	ErrPostNotFound = errors.New("post not found")
	// ErrSlugConflict is reported by a Store when a write hits the unique
	// index on posts.slug. The service retries it with a fresh suffix.
	ErrSlugConflict = errors.New("slug already in use")
)

// ValidationError carries per-field messages for a rejected input.
type ValidationError = response.ValidationError

type fieldErrors map[string]string

func (f fieldErrors) add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}
