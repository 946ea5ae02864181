package category

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/itorigin/site/internal/pkg/response"
	slugpkg "github.com/itorigin/site/internal/pkg/slug"
)

// Kind selects the taxonomy a request operates on.
type Kind string

const (
	KindCategory Kind = "category"
	KindTag      Kind = "tag"
)

const maxNameLength = 191

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("name or slug already exists")
)

// ValidationError carries per-field messages for a rejected input.
type ValidationError = response.ValidationError

// Term is a category or a tag with the number of published posts using it.
type Term struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	PostCount int64     `json:"postCount"`
	Created   time.Time `json:"created"`
}

type CreateDTO struct {
	Name string `json:"name" binding:"required,max=191"`
	Slug string `json:"slug" binding:"omitempty,max=160"`
}

type UpdateDTO struct {
	Name *string `json:"name" binding:"omitempty,max=191"`
	Slug *string `json:"slug" binding:"omitempty,max=160"`
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) List(ctx context.Context, kind Kind) ([]Term, error) {
	return s.store.List(ctx, kind)
}

// Get looks a term up by id, then by slug.
func (s *Service) Get(ctx context.Context, kind Kind, query string) (*Term, error) {
	t, err := s.store.Get(ctx, kind, strings.TrimSpace(query))
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotFound
	}
	return t, nil
}

func (s *Service) Create(ctx context.Context, kind Kind, dto *CreateDTO) (*Term, error) {
	name, slug, err := normalize(dto.Name, dto.Slug)
	if err != nil {
		return nil, err
	}
	if err := s.ensureFree(ctx, kind, name, slug, ""); err != nil {
		return nil, err
	}
	t := &Term{Name: name, Slug: slug}
	if err := s.store.Create(ctx, kind, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Update renames a term. A new name without a slug keeps the current slug
// so that existing listing URLs keep working.
func (s *Service) Update(ctx context.Context, kind Kind, id string, dto *UpdateDTO) (*Term, error) {
	t, err := s.store.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if t == nil || t.ID != id {
		return nil, ErrNotFound
	}

	name, slug := t.Name, t.Slug
	if dto.Name != nil {
		name = *dto.Name
	}
	if dto.Slug != nil {
		slug = *dto.Slug
	}
	name, slug, err = normalize(name, slug)
	if err != nil {
		return nil, err
	}
	if err := s.ensureFree(ctx, kind, name, slug, id); err != nil {
		return nil, err
	}

	t.Name, t.Slug = name, slug
	if err := s.store.Update(ctx, kind, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes a term and detaches it from posts. Posts of a deleted
// category become uncategorized.
func (s *Service) Delete(ctx context.Context, kind Kind, id string) error {
	ok, err := s.store.Delete(ctx, kind, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Service) ensureFree(ctx context.Context, kind Kind, name, slug, excludeID string) error {
	taken, err := s.store.Taken(ctx, kind, name, slug, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return ErrExists
	}
	return nil
}

func normalize(name, rawSlug string) (string, string, error) {
	fields := map[string]string{}
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		fields["name"] = "is required"
	case utf8.RuneCountInString(name) > maxNameLength:
		fields["name"] = "is too long"
	}

	var slug string
	if strings.TrimSpace(rawSlug) == "" {
		slug = slugpkg.Make(name)
		if slug == "" && name != "" {
			fields["slug"] = "is required when the name has no latin letters or digits"
		}
	} else {
		var err error
		if slug, err = slugpkg.Normalize(rawSlug); err != nil {
			fields["slug"] = err.Error()
		}
	}

	if len(fields) > 0 {
		return "", "", &ValidationError{Fields: fields}
	}
	return name, slug, nil
}
