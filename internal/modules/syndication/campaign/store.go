package campaign

import (
	"context"
	"errors"
	"time"

	"github.com/itorigin/site/internal/models"
	"github.com/itorigin/site/internal/pkg/pagination"
	"github.com/itorigin/site/internal/pkg/response"
	"gorm.io/gorm"
)

// Store persists campaigns. Get returns (nil, nil) on a miss. The claim
// methods are conditional updates that report whether this caller won.
type Store interface {
	Create(ctx context.Context, c *models.CampaignModel) error
	Get(ctx context.Context, id string) (*models.CampaignModel, error)
	Update(ctx context.Context, c *models.CampaignModel) error
	List(ctx context.Context, status string, q pagination.Query) ([]models.CampaignModel, response.Pagination, error)
	Delete(ctx context.Context, id string) (bool, error)

	// ClaimDraft moves a draft to sending.
	ClaimDraft(ctx context.Context, id string) (bool, error)
	// ClaimDue moves a due recurring draft to sending and its next run from due to next.
	ClaimDue(ctx context.Context, id string, due, next time.Time) (bool, error)
	// Due lists recurring drafts whose next run is at or before now.
	Due(ctx context.Context, now time.Time) ([]models.CampaignModel, error)
	// Finish records a delivery and sets the final status.
	Finish(ctx context.Context, id, status string, sent, failed int, at time.Time) error
	// Release returns a claimed campaign to draft with the given next run.
	Release(ctx context.Context, id string, nextRunAt *time.Time) error
}

type gormStore struct{ db *gorm.DB }

func NewGormStore(db *gorm.DB) Store { return &gormStore{db: db} }

func (s *gormStore) Create(ctx context.Context, c *models.CampaignModel) error {
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *gormStore) Get(ctx context.Context, id string) (*models.CampaignModel, error) {
	var c models.CampaignModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (s *gormStore) Update(ctx context.Context, c *models.CampaignModel) error {
	return s.db.WithContext(ctx).Model(c).
		Select("subject", "body", "recurring", "day_of_month", "next_run_at", "updated_at").
		Updates(c).Error
}

func (s *gormStore) List(ctx context.Context, status string, q pagination.Query) ([]models.CampaignModel, response.Pagination, error) {
	db := s.db.WithContext(ctx).Model(&models.CampaignModel{}).
		Omit("body").Order("created_at DESC")
	if status != "" {
		db = db.Where("status = ?", status)
	}
	var items []models.CampaignModel
	pag, err := pagination.Paginate(db, q, &items)
	return items, pag, err
}

func (s *gormStore) Delete(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&models.CampaignModel{}, "id = ?", id)
	return res.RowsAffected > 0, res.Error
}

func (s *gormStore) ClaimDraft(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.CampaignModel{}).
		Where("id = ? AND status = ?", id, models.CampaignDraft).
		Update("status", models.CampaignSending)
	return res.RowsAffected == 1, res.Error
}

func (s *gormStore) ClaimDue(ctx context.Context, id string, due, next time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.CampaignModel{}).
		Where("id = ? AND status = ? AND recurring = ? AND next_run_at = ?", id, models.CampaignDraft, true, due).
		Updates(map[string]interface{}{
			"status":      models.CampaignSending,
			"next_run_at": next,
		})
	return res.RowsAffected == 1, res.Error
}

func (s *gormStore) Due(ctx context.Context, now time.Time) ([]models.CampaignModel, error) {
	var items []models.CampaignModel
	err := s.db.WithContext(ctx).
		Where("recurring = ? AND status = ? AND next_run_at IS NOT NULL AND next_run_at <= ?", true, models.CampaignDraft, now).
		Order("next_run_at ASC").
		Find(&items).Error
	return items, err
}

func (s *gormStore) Finish(ctx context.Context, id, status string, sent, failed int, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.CampaignModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       status,
			"last_sent_at": at,
			"sent_count":   gorm.Expr("sent_count + ?", sent),
			"failed_count": gorm.Expr("failed_count + ?", failed),
		}).Error
}

func (s *gormStore) Release(ctx context.Context, id string, nextRunAt *time.Time) error {
	return s.db.WithContext(ctx).Model(&models.CampaignModel{}).
		Where("id = ? AND status = ?", id, models.CampaignSending).
		Updates(map[string]interface{}{
			"status":      models.CampaignDraft,
			"next_run_at": nextRunAt,
		}).Error
}
