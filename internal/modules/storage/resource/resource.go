package resource

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/itorigin/site/internal/models"
	"github.com/itorigin/site/internal/pkg/metrics"
	"github.com/itorigin/site/internal/pkg/pagination"
	"github.com/itorigin/site/internal/pkg/response"
	slugpkg "github.com/itorigin/site/internal/pkg/slug"
	"go.uber.org/zap"
)

const (
	defaultLeadSource = "download"
	maxTitleLength    = 191
)

var (
	ErrNotFound = errors.New("resource not found")
	ErrExists   = errors.New("resource slug already exists")
)

// ValidationError carries per-field messages for a rejected input.
type ValidationError = response.ValidationError

type CreateDTO struct {
	Title       string `json:"title"       binding:"required"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	ObjectKey   string `json:"objectKey"   binding:"required,max=512"`
	Published   bool   `json:"published"`
}

type UpdateDTO struct {
	Title       *string `json:"title"`
	Slug        *string `json:"slug"`
	Description *string `json:"description"`
	ObjectKey   *string `json:"objectKey"   binding:"omitempty,max=512"`
	Published   *bool   `json:"published"`
}

// DownloadDTO is the lead form submitted in exchange for a download link.
type DownloadDTO struct {
	Email   string `json:"email"   binding:"required,email,max=191"`
	Name    string `json:"name"    binding:"max=191"`
	Company string `json:"company" binding:"max=191"`
	Source  string `json:"source"  binding:"max=32"`
}

// Download is a presigned link handed out after a lead is captured.
type Download struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Service struct {
	store     Store
	presigner Presigner
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewService returns a Service. presigner may be nil when storage is not
// configured; downloads then fail with ErrStorageDisabled.
func NewService(store Store, presigner Presigner, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, presigner: presigner, metrics: m, logger: logger.Named("resource")}
}

func (s *Service) Create(ctx context.Context, dto *CreateDTO) (*models.ResourceModel, error) {
	r := &models.ResourceModel{
		Title:       strings.TrimSpace(dto.Title),
		Description: strings.TrimSpace(dto.Description),
		ObjectKey:   strings.TrimLeft(strings.TrimSpace(dto.ObjectKey), "/"),
		Published:   dto.Published,
	}
	if err := s.normalize(r, dto.Slug); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) Update(ctx context.Context, id string, dto *UpdateDTO) (*models.ResourceModel, error) {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrNotFound
	}
	if dto.Title != nil {
		r.Title = strings.TrimSpace(*dto.Title)
	}
	if dto.Description != nil {
		r.Description = strings.TrimSpace(*dto.Description)
	}
	if dto.ObjectKey != nil {
		r.ObjectKey = strings.TrimLeft(strings.TrimSpace(*dto.ObjectKey), "/")
	}
	if dto.Published != nil {
		r.Published = *dto.Published
	}
	rawSlug := r.Slug
	if dto.Slug != nil {
		rawSlug = *dto.Slug
	}
	if err := s.normalize(r, rawSlug); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) normalize(r *models.ResourceModel, rawSlug string) error {
	fields := map[string]string{}
	switch {
	case r.Title == "":
		fields["title"] = "is required"
	case utf8.RuneCountInString(r.Title) > maxTitleLength:
		fields["title"] = "must be at most 191 characters"
	}
	if r.ObjectKey == "" {
		fields["objectKey"] = "is required"
	}
	if strings.TrimSpace(rawSlug) == "" {
		r.Slug = slugpkg.Make(r.Title)
		if r.Slug == "" && r.Title != "" {
			fields["slug"] = "is required when the title has no latin letters or digits"
		}
	} else {
		slug, err := slugpkg.Normalize(rawSlug)
		if err != nil {
			fields["slug"] = err.Error()
		}
		r.Slug = slug
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// GetPublished returns a resource visible to the public.
func (s *Service) GetPublished(ctx context.Context, slug string) (*models.ResourceModel, error) {
	r, err := s.store.GetBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		return nil, err
	}
	if r == nil || !r.Published {
		return nil, ErrNotFound
	}
	return r, nil
}

func (s *Service) List(ctx context.Context, publishedOnly bool, q pagination.Query) ([]models.ResourceModel, response.Pagination, error) {
	return s.store.List(ctx, publishedOnly, pagination.Normalize(q))
}

func (s *Service) Delete(ctx context.Context, id string) error {
	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Download captures a lead for a published resource and returns a
// short-lived link to the file.
func (s *Service) Download(ctx context.Context, slug string, dto *DownloadDTO) (*Download, error) {
	if s.presigner == nil {
		return nil, ErrStorageDisabled
	}
	r, err := s.GetPublished(ctx, slug)
	if err != nil {
		return nil, err
	}

	url, expires, err := s.presigner.PresignGet(ctx, r.ObjectKey)
	if err != nil {
		return nil, err
	}

	source := strings.TrimSpace(dto.Source)
	if source == "" {
		source = defaultLeadSource
	}
	lead := &models.LeadModel{
		Email:      strings.ToLower(strings.TrimSpace(dto.Email)),
		Name:       strings.TrimSpace(dto.Name),
		Company:    strings.TrimSpace(dto.Company),
		ResourceID: r.ID,
		Source:     source,
	}
	if err := s.store.RecordLead(ctx, lead); err != nil {
		return nil, err
	}
	s.metrics.RecordLead(ctx, r.Slug)
	s.logger.Info("lead captured", zap.String("resource", r.Slug), zap.String("lead", lead.ID))
	return &Download{URL: url, ExpiresAt: expires}, nil
}

// Leads lists captured leads, optionally for one resource.
func (s *Service) Leads(ctx context.Context, resourceID string, q pagination.Query) ([]models.LeadModel, response.Pagination, error) {
	return s.store.ListLeads(ctx, resourceID, pagination.Normalize(q))
}
