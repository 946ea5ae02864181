package subscribe

import (
	"context"
	"errors"

	"github.com/itorigin/site/internal/database"
	"github.com/itorigin/site/internal/models"
	"github.com/itorigin/site/internal/pkg/pagination"
	"github.com/itorigin/site/internal/pkg/response"
	"gorm.io/gorm"
)

// Store persists subscribers. Lookups return (nil, nil) on a miss.
type Store interface {
	GetByEmail(ctx context.Context, email string) (*models.SubscriberModel, error)
	GetByToken(ctx context.Context, token string) (*models.SubscriberModel, error)
	Create(ctx context.Context, s *models.SubscriberModel) error
	Update(ctx context.Context, s *models.SubscriberModel) error
	List(ctx context.Context, active *bool, q pagination.Query) ([]models.SubscriberModel, response.Pagination, error)
	Active(ctx context.Context) ([]models.SubscriberModel, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type gormStore struct{ db *gorm.DB }

func NewGormStore(db *gorm.DB) Store { return &gormStore{db: db} }

func (s *gormStore) first(ctx context.Context, col, val string) (*models.SubscriberModel, error) {
	var sub models.SubscriberModel
	if err := s.db.WithContext(ctx).Where(col+" = ?", val).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (s *gormStore) GetByEmail(ctx context.Context, email string) (*models.SubscriberModel, error) {
	return s.first(ctx, "email", email)
}

func (s *gormStore) GetByToken(ctx context.Context, token string) (*models.SubscriberModel, error) {
	if token == "" {
		return nil, nil
	}
	return s.first(ctx, "unsubscribe_token", token)
}

// Create treats losing a race on the email index as success: the address is
// subscribed either way.
func (s *gormStore) Create(ctx context.Context, sub *models.SubscriberModel) error {
	err := s.db.WithContext(ctx).Create(sub).Error
	if database.IsDuplicateKey(err) {
		existing, ferr := s.GetByEmail(ctx, sub.Email)
		if ferr != nil || existing == nil {
			return err
		}
		*sub = *existing
		return nil
	}
	return err
}

func (s *gormStore) Update(ctx context.Context, sub *models.SubscriberModel) error {
	return s.db.WithContext(ctx).Model(sub).
		Select("name", "active", "updated_at").Updates(sub).Error
}

func (s *gormStore) List(ctx context.Context, active *bool, q pagination.Query) ([]models.SubscriberModel, response.Pagination, error) {
	db := s.db.WithContext(ctx).Model(&models.SubscriberModel{}).Order("created_at DESC")
	if active != nil {
		db = db.Where("active = ?", *active)
	}
	var subs []models.SubscriberModel
	pag, err := pagination.Paginate(db, q, &subs)
	return subs, pag, err
}

func (s *gormStore) Active(ctx context.Context) ([]models.SubscriberModel, error) {
	var subs []models.SubscriberModel
	err := s.db.WithContext(ctx).Where("active = ?", true).Order("created_at ASC").Find(&subs).Error
	return subs, err
}

func (s *gormStore) Delete(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&models.SubscriberModel{}, "id = ?", id)
	return res.RowsAffected > 0, res.Error
}
