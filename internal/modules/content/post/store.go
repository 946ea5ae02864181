package post

import (
	"context"

	"github.com/itorigin/site/internal/models"
	"github.com/itorigin/site/internal/pkg/pagination"
	"github.com/itorigin/site/internal/pkg/response"
)

// ListFilter narrows a post listing. Empty fields do not filter.
type ListFilter struct {
	Status   models.PostStatus
	Category string // category slug
	Tag      string // tag slug
}

// Store is the content and redirect persistence used by Service. Getters
// return (nil, nil) when the row does not exist.
type Store interface {
	SlugChecker

	// Transaction runs fn against a Store bound to one database transaction.
	// fn's error rolls everything back.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	// CreatePost and UpdatePost return ErrSlugConflict when the unique index
	// on slug rejects the row. UpdatePost does not touch associations.
	CreatePost(ctx context.Context, p *models.PostModel) error
	UpdatePost(ctx context.Context, p *models.PostModel) error
	// GetPost loads a post with its category and tags. forUpdate takes a row
	// lock for the rest of the transaction.
	GetPost(ctx context.Context, id string, forUpdate bool) (*models.PostModel, error)
	GetPublishedBySlug(ctx context.Context, slug string) (*models.PostModel, error)
	// DeletePost removes the post and its tag links. Redirect rows are kept.
	DeletePost(ctx context.Context, id string) error
	IncrementViewCount(ctx context.Context, id string) error
	ListPosts(ctx context.Context, f ListFilter, q pagination.Query) ([]models.PostModel, response.Pagination, error)

	GetRedirect(ctx context.Context, oldSlug string) (*models.PostRedirectModel, error)
	// UpsertRedirect points oldSlug at postID, inserting or updating in place.
	UpsertRedirect(ctx context.Context, oldSlug, postID string) error

	CategoryExists(ctx context.Context, id string) (bool, error)
	FindTags(ctx context.Context, ids []string) ([]models.TagModel, error)
	ReplaceTags(ctx context.Context, p *models.PostModel, tags []models.TagModel) error
}
