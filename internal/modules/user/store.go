package user

import (
	"context"
	"errors"
	"time"

	"github.com/itorigin/site/internal/database"
	"github.com/itorigin/site/internal/models"
	"gorm.io/gorm"
)

// Store persists users. Lookups return (nil, nil) when nothing matches.
type Store interface {
	Count(ctx context.Context) (int64, error)
	GetByID(ctx context.Context, id string) (*models.UserModel, error)
	GetByUsername(ctx context.Context, username string) (*models.UserModel, error)
	// Create reports ErrUsernameTaken on a duplicate username.
	Create(ctx context.Context, u *models.UserModel) error
	RecordLogin(ctx context.Context, id string, at time.Time, ip string) error
	UpdatePassword(ctx context.Context, id, hash string) error
	List(ctx context.Context) ([]models.UserModel, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type gormStore struct{ db *gorm.DB }

func NewGormStore(db *gorm.DB) Store { return &gormStore{db: db} }

func (s *gormStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.UserModel{}).Count(&n).Error
	return n, err
}

func (s *gormStore) first(ctx context.Context, query string, arg string) (*models.UserModel, error) {
	var u models.UserModel
	if err := s.db.WithContext(ctx).Where(query, arg).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (s *gormStore) GetByID(ctx context.Context, id string) (*models.UserModel, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *gormStore) GetByUsername(ctx context.Context, username string) (*models.UserModel, error) {
	return s.first(ctx, "username = ?", username)
}

func (s *gormStore) Create(ctx context.Context, u *models.UserModel) error {
	err := s.db.WithContext(ctx).Create(u).Error
	if database.IsDuplicateKey(err) {
		return ErrUsernameTaken
	}
	return err
}

func (s *gormStore) RecordLogin(ctx context.Context, id string, at time.Time, ip string) error {
	return s.db.WithContext(ctx).Model(&models.UserModel{}).Where("id = ?", id).
		Updates(map[string]interface{}{"last_login_time": at, "last_login_ip": ip}).Error
}

func (s *gormStore) UpdatePassword(ctx context.Context, id, hash string) error {
	return s.db.WithContext(ctx).Model(&models.UserModel{}).Where("id = ?", id).
		Update("password", hash).Error
}

func (s *gormStore) List(ctx context.Context) ([]models.UserModel, error) {
	var users []models.UserModel
	err := s.db.WithContext(ctx).Order("created_at ASC").Find(&users).Error
	return users, err
}

func (s *gormStore) Delete(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&models.UserModel{}, "id = ?", id)
	return res.RowsAffected > 0, res.Error
}
