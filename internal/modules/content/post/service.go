package post

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/itorigin/site/internal/models"
	"github.com/itorigin/site/internal/pkg/metrics"
	"github.com/itorigin/site/internal/pkg/pagination"
	"github.com/itorigin/site/internal/pkg/response"
	slugpkg "github.com/itorigin/site/internal/pkg/slug"
	"go.uber.org/zap"
)

// maxWriteAttempts bounds retries after the unique index rejects a slug that
// passed the pre-check.
const maxWriteAttempts = 5

// CreateInput describes a new post.
type CreateInput struct {
	Title      string
	Slug       string // optional; an explicit slug locks the post
	Excerpt    string
	Content    string
	Status     models.PostStatus // defaults to draft
	CategoryID *string
	TagIDs     []string
	AuthorID   string
}

// UpdateInput is a partial edit; nil fields are left alone. An empty
// CategoryID clears the category.
type UpdateInput struct {
	Title      *string
	Slug       *string
	SlugLocked *bool
	Excerpt    *string
	Content    *string
	Status     *models.PostStatus
	CategoryID *string
	TagIDs     *[]string
}

// UpdateResult reports which addresses an edit affected.
type UpdateResult struct {
	Post         *models.PostModel
	SlugChanged  bool
	PreviousSlug *string
	// Unpublished is set when the edit took a published post back to draft.
	Unpublished bool
}

// Resolution is the outcome of looking up a public slug: either the post to
// serve or the current slug to permanently redirect to.
type Resolution struct {
	Post       *models.PostModel
	RedirectTo string
}

// Service owns slug assignment, redirects and publication state for posts.
type Service struct {
	store   Store
	slugs   *SlugGenerator
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(store Store, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		slugs:   NewSlugGenerator(),
		logger:  logger.Named("post"),
		metrics: m,
		now:     time.Now,
	}
}

// Create stores a new post under a unique slug derived from the explicit
// slug or the title.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.PostModel, error) {
	title := strings.TrimSpace(in.Title)
	fe := fieldErrors{}
	validateTitle(fe, title)
	validateExcerpt(fe, in.Excerpt)

	status := in.Status
	if status == "" {
		status = models.PostStatusDraft
	}
	validateStatus(fe, status)

	base, locked := titleSlug(title), false
	if strings.TrimSpace(in.Slug) != "" {
		base, locked = normalizeExplicitSlug(fe, in.Slug), true
	}
	if err := fe.err(); err != nil {
		return nil, err
	}

	var created *models.PostModel
	reserved := map[string]struct{}{}
	err := s.withSlugRetry(ctx, "create", func() (string, error) {
		var candidate string
		err := s.store.Transaction(ctx, func(tx Store) error {
			categoryID, tags, err := s.resolveRelations(ctx, tx, in.CategoryID, in.TagIDs)
			if err != nil {
				return err
			}

			candidate, err = s.slugs.Generate(ctx, tx, base, "", reserved)
			if err != nil {
				return err
			}

			p := &models.PostModel{
				Slug:        candidate,
				Title:       title,
				Excerpt:     in.Excerpt,
				Content:     in.Content,
				Status:      models.PostStatusDraft,
				SlugLocked:  locked,
				ReadingTime: ReadingTime(in.Content),
				AuthorID:    in.AuthorID,
				CategoryID:  categoryID,
			}
			applyStatus(p, status, s.now())

			if err := tx.CreatePost(ctx, p); err != nil {
				return err
			}
			if tags != nil {
				if err := tx.ReplaceTags(ctx, p, tags); err != nil {
					return fmt.Errorf("set tags: %w", err)
				}
			}
			created, err = tx.GetPost(ctx, p.ID, false)
			return err
		})
		return candidate, err
	}, reserved)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update applies a partial edit. A slug change and its redirect row are
// written in one transaction.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*UpdateResult, error) {
	fe := fieldErrors{}
	var title string
	if in.Title != nil {
		title = strings.TrimSpace(*in.Title)
		validateTitle(fe, title)
	}
	var explicit string
	if in.Slug != nil {
		explicit = normalizeExplicitSlug(fe, *in.Slug)
	}
	if in.Excerpt != nil {
		validateExcerpt(fe, *in.Excerpt)
	}
	if in.Status != nil {
		validateStatus(fe, *in.Status)
	}
	if err := fe.err(); err != nil {
		return nil, err
	}

	var result *UpdateResult
	reserved := map[string]struct{}{}
	err := s.withSlugRetry(ctx, "update", func() (string, error) {
		var candidate string
		err := s.store.Transaction(ctx, func(tx Store) error {
			p, err := tx.GetPost(ctx, id, true)
			if err != nil {
				return err
			}
			if p == nil {
				return ErrPostNotFound
			}

			var tagIDs []string
			if in.TagIDs != nil {
				tagIDs = *in.TagIDs
				if tagIDs == nil {
					tagIDs = []string{}
				}
			}
			categoryID, tags, err := s.resolveRelations(ctx, tx, in.CategoryID, tagIDs)
			if err != nil {
				return err
			}

			previous := p.Slug
			wasPublished := p.Status == models.PostStatusPublished
			plan := planSlug(p, in, explicit)
			candidate = previous
			if plan.base != "" {
				candidate, err = s.slugs.Generate(ctx, tx, plan.base, p.ID, reserved)
				if err != nil {
					return err
				}
			}
			p.Slug = candidate
			p.SlugLocked = plan.locked

			if in.Title != nil {
				p.Title = title
			}
			if in.Excerpt != nil {
				p.Excerpt = *in.Excerpt
			}
			if in.Content != nil && *in.Content != p.Content {
				p.Content = *in.Content
				p.ReadingTime = ReadingTime(p.Content)
			}
			if in.Status != nil {
				applyStatus(p, *in.Status, s.now())
			}
			if in.CategoryID != nil {
				p.CategoryID = categoryID
				p.Category = nil
			}

			if err := tx.UpdatePost(ctx, p); err != nil {
				return err
			}
			changed := candidate != previous
			if changed {
				if err := tx.UpsertRedirect(ctx, previous, p.ID); err != nil {
					return fmt.Errorf("record redirect: %w", err)
				}
			}
			if in.TagIDs != nil {
				if err := tx.ReplaceTags(ctx, p, tags); err != nil {
					return fmt.Errorf("set tags: %w", err)
				}
			}

			fresh, err := tx.GetPost(ctx, p.ID, false)
			if err != nil {
				return err
			}
			result = &UpdateResult{
				Post:        fresh,
				SlugChanged: changed,
				Unpublished: wasPublished && fresh.Status != models.PostStatusPublished,
			}
			if changed {
				result.PreviousSlug = &previous
			}
			return nil
		})
		return candidate, err
	}, reserved)
	if err != nil {
		return nil, err
	}

	if result.SlugChanged {
		s.logger.Info("slug changed",
			zap.String("post", id),
			zap.String("from", *result.PreviousSlug),
			zap.String("to", result.Post.Slug))
	}
	return result, nil
}

// withSlugRetry re-runs write when the unique index rejects the slug it
// chose, reserving that slug so the next attempt moves past it.
func (s *Service) withSlugRetry(ctx context.Context, op string, write func() (string, error), reserved map[string]struct{}) error {
	var err error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		var candidate string
		candidate, err = write()
		if err == nil || !errors.Is(err, ErrSlugConflict) {
			return err
		}
		s.metrics.RecordSlugConflict(ctx)
		s.logger.Warn("slug conflict on write, retrying",
			zap.String("op", op),
			zap.String("slug", candidate),
			zap.Int("attempt", attempt))
		reserved[candidate] = struct{}{}
	}
	return err
}

func (s *Service) resolveRelations(ctx context.Context, tx Store, categoryID *string, tagIDs []string) (*string, []models.TagModel, error) {
	fe := fieldErrors{}

	var category *string
	if categoryID != nil && strings.TrimSpace(*categoryID) != "" {
		id := strings.TrimSpace(*categoryID)
		ok, err := tx.CategoryExists(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			fe.add("categoryId", "does not exist")
		}
		category = &id
	}

	var tags []models.TagModel
	if tagIDs != nil {
		ids := dedupe(tagIDs)
		found, err := tx.FindTags(ctx, ids)
		if err != nil {
			return nil, nil, err
		}
		if len(found) != len(ids) {
			fe.add("tagIds", "contains unknown tags")
		}
		tags = found
		if tags == nil {
			tags = []models.TagModel{}
		}
	}

	if err := fe.err(); err != nil {
		return nil, nil, err
	}
	return category, tags, nil
}

// Resolve maps a public slug to a published post, or to the current slug of
// the published post that used to live there. Anything else is not found,
// so old addresses of drafts and deleted posts never leak.
func (s *Service) Resolve(ctx context.Context, slug string) (*Resolution, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if !slugpkg.Valid(slug) {
		return nil, ErrPostNotFound
	}

	p, err := s.store.GetPublishedBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if p != nil {
		if err := s.store.IncrementViewCount(ctx, p.ID); err != nil {
			s.logger.Warn("increment view count", zap.String("post", p.ID), zap.Error(err))
		} else {
			p.ViewCount++
		}
		return &Resolution{Post: p}, nil
	}

	redirect, err := s.store.GetRedirect(ctx, slug)
	if err != nil {
		return nil, err
	}
	if redirect == nil {
		return nil, ErrPostNotFound
	}
	target, err := s.store.GetPost(ctx, redirect.PostID, false)
	if err != nil {
		return nil, err
	}
	if target == nil || !target.IsPublished() || target.Slug == slug {
		return nil, ErrPostNotFound
	}
	s.metrics.RecordSlugRedirect(ctx)
	return &Resolution{RedirectTo: target.Slug}, nil
}

// Delete removes a post. Its redirect rows stay and resolve to not found.
func (s *Service) Delete(ctx context.Context, id string) (*models.PostModel, error) {
	var deleted *models.PostModel
	err := s.store.Transaction(ctx, func(tx Store) error {
		p, err := tx.GetPost(ctx, id, true)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrPostNotFound
		}
		deleted = p
		return tx.DeletePost(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// GetByID returns a post regardless of status.
func (s *Service) GetByID(ctx context.Context, id string) (*models.PostModel, error) {
	p, err := s.store.GetPost(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPostNotFound
	}
	return p, nil
}

// List returns a page of posts matching f.
func (s *Service) List(ctx context.Context, f ListFilter, q pagination.Query) ([]models.PostModel, response.Pagination, error) {
	return s.store.ListPosts(ctx, f, pagination.Normalize(q))
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
