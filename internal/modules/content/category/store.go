package category

import (
	"context"
	"fmt"
	"time"

	"github.com/itorigin/site/internal/database"
	"github.com/itorigin/site/internal/models"
	"gorm.io/gorm"
)

// Store persists categories and tags. Get returns (nil, nil) on a miss.
type Store interface {
	List(ctx context.Context, kind Kind) ([]Term, error)
	Get(ctx context.Context, kind Kind, idOrSlug string) (*Term, error)
	Taken(ctx context.Context, kind Kind, name, slug, excludeID string) (bool, error)
	// Create and Update report ErrExists on a unique index violation.
	Create(ctx context.Context, kind Kind, t *Term) error
	Update(ctx context.Context, kind Kind, t *Term) error
	Delete(ctx context.Context, kind Kind, id string) (bool, error)
}

type gormStore struct{ db *gorm.DB }

func NewGormStore(db *gorm.DB) Store { return &gormStore{db: db} }

func table(kind Kind) string {
	if kind == KindTag {
		return models.TagModel{}.TableName()
	}
	return models.CategoryModel{}.TableName()
}

// countExpr counts published posts per term.
func countExpr(kind Kind) string {
	if kind == KindTag {
		return `(SELECT COUNT(*) FROM post_tags pt JOIN posts p ON p.id = pt.post_id
			WHERE pt.tag_id = t.id AND p.status = 'published') AS post_count`
	}
	return `(SELECT COUNT(*) FROM posts p
		WHERE p.category_id = t.id AND p.status = 'published') AS post_count`
}

type termRow struct {
	ID        string
	Name      string
	Slug      string
	PostCount int64
	CreatedAt time.Time
}

func (r termRow) term() Term {
	return Term{ID: r.ID, Name: r.Name, Slug: r.Slug, PostCount: r.PostCount, Created: r.CreatedAt}
}

func (s *gormStore) query(ctx context.Context, kind Kind) *gorm.DB {
	return s.db.WithContext(ctx).Table(table(kind) + " AS t").
		Select("t.id, t.name, t.slug, t.created_at, " + countExpr(kind))
}

func (s *gormStore) List(ctx context.Context, kind Kind) ([]Term, error) {
	var rows []termRow
	if err := s.query(ctx, kind).Order("t.name ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Term, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.term())
	}
	return out, nil
}

func (s *gormStore) Get(ctx context.Context, kind Kind, idOrSlug string) (*Term, error) {
	for _, col := range []string{"t.id", "t.slug"} {
		var rows []termRow
		if err := s.query(ctx, kind).Where(col+" = ?", idOrSlug).Limit(1).Scan(&rows).Error; err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			t := rows[0].term()
			return &t, nil
		}
	}
	return nil, nil
}

func (s *gormStore) Taken(ctx context.Context, kind Kind, name, slug, excludeID string) (bool, error) {
	var n int64
	q := s.db.WithContext(ctx).Table(table(kind)).Where("(name = ? OR slug = ?)", name, slug)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	err := q.Count(&n).Error
	return n > 0, err
}

func (s *gormStore) Create(ctx context.Context, kind Kind, t *Term) error {
	var err error
	switch kind {
	case KindTag:
		m := models.TagModel{Name: t.Name, Slug: t.Slug}
		err = s.db.WithContext(ctx).Create(&m).Error
		t.ID, t.Created = m.ID, m.CreatedAt
	default:
		m := models.CategoryModel{Name: t.Name, Slug: t.Slug}
		err = s.db.WithContext(ctx).Create(&m).Error
		t.ID, t.Created = m.ID, m.CreatedAt
	}
	return translate(err)
}

func (s *gormStore) Update(ctx context.Context, kind Kind, t *Term) error {
	err := s.db.WithContext(ctx).Table(table(kind)).Where("id = ?", t.ID).
		Updates(map[string]interface{}{"name": t.Name, "slug": t.Slug, "updated_at": time.Now()}).Error
	return translate(err)
}

func (s *gormStore) Delete(ctx context.Context, kind Kind, id string) (bool, error) {
	var deleted bool
	err := database.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		if kind == KindTag {
			if err := tx.Exec("DELETE FROM post_tags WHERE tag_id = ?", id).Error; err != nil {
				return fmt.Errorf("detach tag: %w", err)
			}
		} else {
			if err := tx.Model(&models.PostModel{}).Where("category_id = ?", id).
				UpdateColumn("category_id", nil).Error; err != nil {
				return fmt.Errorf("detach category: %w", err)
			}
		}
		var res *gorm.DB
		if kind == KindTag {
			res = tx.Delete(&models.TagModel{}, "id = ?", id)
		} else {
			res = tx.Delete(&models.CategoryModel{}, "id = ?", id)
		}
		deleted = res.RowsAffected > 0
		return res.Error
	})
	return deleted, err
}

func translate(err error) error {
	if database.IsDuplicateKey(err) {
		return ErrExists
	}
	return err
}
