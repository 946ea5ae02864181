package post

import (
	"context"
	"errors"
	"fmt"

	"github.com/itorigin/site/internal/database"
	"github.com/itorigin/site/internal/models"
	"github.com/itorigin/site/internal/pkg/pagination"
	"github.com/itorigin/site/internal/pkg/response"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormStore struct {
	db *gorm.DB
}

// NewGormStore returns a Store backed by MySQL through gorm.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return database.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func (s *gormStore) SlugTaken(ctx context.Context, slug, excludeID string) (bool, error) {
	var n int64
	q := s.db.WithContext(ctx).Model(&models.PostModel{}).Where("slug = ?", slug)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	err := q.Count(&n).Error
	return n > 0, err
}

func (s *gormStore) RedirectTaken(ctx context.Context, slug, excludeID string) (bool, error) {
	var n int64
	q := s.db.WithContext(ctx).Model(&models.PostRedirectModel{}).Where("old_slug = ?", slug)
	if excludeID != "" {
		q = q.Where("post_id <> ?", excludeID)
	}
	err := q.Count(&n).Error
	return n > 0, err
}

func (s *gormStore) CreatePost(ctx context.Context, p *models.PostModel) error {
	err := s.db.WithContext(ctx).Omit(clause.Associations).Create(p).Error
	return translateWriteError(err)
}

func (s *gormStore) UpdatePost(ctx context.Context, p *models.PostModel) error {
	err := s.db.WithContext(ctx).Model(p).Omit(clause.Associations).Select("*").Updates(p).Error
	return translateWriteError(err)
}

func (s *gormStore) GetPost(ctx context.Context, id string, forUpdate bool) (*models.PostModel, error) {
	q := s.db.WithContext(ctx).Preload("Category").Preload("Tags")
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var p models.PostModel
	if err := q.First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (s *gormStore) GetPublishedBySlug(ctx context.Context, slug string) (*models.PostModel, error) {
	var p models.PostModel
	err := s.db.WithContext(ctx).Preload("Category").Preload("Tags").
		Where("slug = ? AND status = ?", slug, models.PostStatusPublished).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (s *gormStore) DeletePost(ctx context.Context, id string) error {
	db := s.db.WithContext(ctx)
	p := &models.PostModel{Base: models.Base{ID: id}}
	if err := db.Model(p).Association("Tags").Clear(); err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}
	return db.Delete(&models.PostModel{}, "id = ?", id).Error
}

func (s *gormStore) IncrementViewCount(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&models.PostModel{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
}

func (s *gormStore) ListPosts(ctx context.Context, f ListFilter, q pagination.Query) ([]models.PostModel, response.Pagination, error) {
	db := s.db.WithContext(ctx)
	tx := db.Model(&models.PostModel{})
	if f.Status != "" {
		tx = tx.Where("posts.status = ?", f.Status)
	}
	if f.Category != "" {
		tx = tx.Joins("JOIN categories ON categories.id = posts.category_id").
			Where("categories.slug = ?", f.Category)
	}
	if f.Tag != "" {
		tagged := db.Table("post_tags").
			Select("post_tags.post_id").
			Joins("JOIN tags ON tags.id = post_tags.tag_id").
			Where("tags.slug = ?", f.Tag)
		tx = tx.Where("posts.id IN (?)", tagged)
	}
	tx = tx.Preload("Category").Preload("Tags").
		Order("posts.published_at IS NULL, posts.published_at DESC, posts.created_at DESC")

	var posts []models.PostModel
	pag, err := pagination.Paginate(tx, q, &posts)
	return posts, pag, err
}

func (s *gormStore) GetRedirect(ctx context.Context, oldSlug string) (*models.PostRedirectModel, error) {
	var r models.PostRedirectModel
	if err := s.db.WithContext(ctx).Where("old_slug = ?", oldSlug).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func (s *gormStore) UpsertRedirect(ctx context.Context, oldSlug, postID string) error {
	row := models.PostRedirectModel{OldSlug: oldSlug, PostID: postID}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "old_slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"post_id", "updated_at"}),
	}).Create(&row).Error
}

func (s *gormStore) CategoryExists(ctx context.Context, id string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.CategoryModel{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

func (s *gormStore) FindTags(ctx context.Context, ids []string) ([]models.TagModel, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var tags []models.TagModel
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&tags).Error
	return tags, err
}

func (s *gormStore) ReplaceTags(ctx context.Context, p *models.PostModel, tags []models.TagModel) error {
	assoc := s.db.WithContext(ctx).Model(p).Association("Tags")
	if len(tags) == 0 {
		return assoc.Clear()
	}
	return assoc.Replace(tags)
}

func translateWriteError(err error) error {
	if err == nil {
		return nil
	}
	if database.IsDuplicateKey(err) {
		return fmt.Errorf("%w: %v", ErrSlugConflict, err)
	}
	return err
}
