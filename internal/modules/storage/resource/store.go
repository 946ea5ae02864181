package resource

import (
	"context"
	"errors"

	"github.com/itorigin/site/internal/database"
	"github.com/itorigin/site/internal/models"
	"github.com/itorigin/site/internal/pkg/pagination"
	"github.com/itorigin/site/internal/pkg/response"
	"gorm.io/gorm"
)

// Store persists resources and leads. Lookups return (nil, nil) on a miss.
type Store interface {
	Create(ctx context.Context, r *models.ResourceModel) error
	Update(ctx context.Context, r *models.ResourceModel) error
	GetByID(ctx context.Context, id string) (*models.ResourceModel, error)
	GetBySlug(ctx context.Context, slug string) (*models.ResourceModel, error)
	List(ctx context.Context, publishedOnly bool, q pagination.Query) ([]models.ResourceModel, response.Pagination, error)
	Delete(ctx context.Context, id string) (bool, error)

	// RecordLead stores the lead and bumps the resource download counter.
	RecordLead(ctx context.Context, lead *models.LeadModel) error
	ListLeads(ctx context.Context, resourceID string, q pagination.Query) ([]models.LeadModel, response.Pagination, error)
}

type gormStore struct{ db *gorm.DB }

func NewGormStore(db *gorm.DB) Store { return &gormStore{db: db} }

func (s *gormStore) Create(ctx context.Context, r *models.ResourceModel) error {
	err := s.db.WithContext(ctx).Create(r).Error
	if database.IsDuplicateKey(err) {
		return ErrExists
	}
	return err
}

func (s *gormStore) Update(ctx context.Context, r *models.ResourceModel) error {
	err := s.db.WithContext(ctx).Model(r).
		Select("title", "slug", "description", "object_key", "published", "updated_at").
		Updates(r).Error
	if database.IsDuplicateKey(err) {
		return ErrExists
	}
	return err
}

func (s *gormStore) first(ctx context.Context, col, val string) (*models.ResourceModel, error) {
	var r models.ResourceModel
	if err := s.db.WithContext(ctx).Where(col+" = ?", val).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func (s *gormStore) GetByID(ctx context.Context, id string) (*models.ResourceModel, error) {
	return s.first(ctx, "id", id)
}

func (s *gormStore) GetBySlug(ctx context.Context, slug string) (*models.ResourceModel, error) {
	return s.first(ctx, "slug", slug)
}

func (s *gormStore) List(ctx context.Context, publishedOnly bool, q pagination.Query) ([]models.ResourceModel, response.Pagination, error) {
	db := s.db.WithContext(ctx).Model(&models.ResourceModel{}).Order("created_at DESC")
	if publishedOnly {
		db = db.Where("published = ?", true)
	}
	var items []models.ResourceModel
	pag, err := pagination.Paginate(db, q, &items)
	return items, pag, err
}

func (s *gormStore) Delete(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := database.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Where("resource_id = ?", id).Delete(&models.LeadModel{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.ResourceModel{}, "id = ?", id)
		ok = res.RowsAffected > 0
		return res.Error
	})
	return ok, err
}

func (s *gormStore) RecordLead(ctx context.Context, lead *models.LeadModel) error {
	return database.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Create(lead).Error; err != nil {
			return err
		}
		return tx.Model(&models.ResourceModel{}).
			Where("id = ?", lead.ResourceID).
			UpdateColumn("download_count", gorm.Expr("download_count + 1")).Error
	})
}

func (s *gormStore) ListLeads(ctx context.Context, resourceID string, q pagination.Query) ([]models.LeadModel, response.Pagination, error) {
	db := s.db.WithContext(ctx).Model(&models.LeadModel{}).Order("created_at DESC")
	if resourceID != "" {
		db = db.Where("resource_id = ?", resourceID)
	}
	var items []models.LeadModel
	pag, err := pagination.Paginate(db, q, &items)
	return items, pag, err
}
