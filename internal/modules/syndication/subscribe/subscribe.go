package subscribe

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/itorigin/site/internal/middleware"
	"github.com/itorigin/site/internal/models"
	pkgmail "github.com/itorigin/site/internal/pkg/mail"
	"github.com/itorigin/site/internal/pkg/pagination"
	"github.com/itorigin/site/internal/pkg/response"
	"go.uber.org/zap"
)

// UnsubscribePath is where unsubscribe links point, relative to the site URL.
const UnsubscribePath = "/api/v1/subscribe/unsubscribe"

var ErrNotFound = errors.New("subscription not found")

type SubscribeDTO struct {
	Email string `json:"email" binding:"required,email,max=191"`
	Name  string `json:"name"  binding:"max=191"`
}

// Mailer delivers a single email.
type Mailer interface {
	Send(ctx context.Context, msg pkgmail.Message) error
}

type Service struct {
	store    Store
	mailer   Mailer
	siteName string
	siteURL  string
	logger   *zap.Logger
}

// NewService returns a Service. mailer may be nil when mail is not configured.
func NewService(store Store, mailer Mailer, siteName, siteURL string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		mailer:   mailer,
		siteName: siteName,
		siteURL:  strings.TrimRight(siteURL, "/"),
		logger:   logger.Named("subscribe"),
	}
}

// Subscribe adds an address or reactivates an existing one. created is false
// when the address was already known.
func (s *Service) Subscribe(ctx context.Context, dto *SubscribeDTO) (sub *models.SubscriberModel, created bool, err error) {
	email := strings.ToLower(strings.TrimSpace(dto.Email))
	name := strings.TrimSpace(dto.Name)

	sub, err = s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	if sub != nil {
		if sub.Active && (name == "" || name == sub.Name) {
			return sub, false, nil
		}
		sub.Active = true
		if name != "" {
			sub.Name = name
		}
		if err := s.store.Update(ctx, sub); err != nil {
			return nil, false, err
		}
		return sub, false, nil
	}

	sub = &models.SubscriberModel{
		Email:            email,
		Name:             name,
		UnsubscribeToken: newToken(),
		Active:           true,
	}
	if err := s.store.Create(ctx, sub); err != nil {
		return nil, false, err
	}
	s.sendWelcome(ctx, sub)
	return sub, true, nil
}

// sendWelcome is best effort: a subscription stands even if the mail fails.
func (s *Service) sendWelcome(ctx context.Context, sub *models.SubscriberModel) {
	if s.mailer == nil {
		return
	}
	html, err := pkgmail.RenderWelcome(pkgmail.WelcomeData{
		SiteName:       s.siteName,
		Name:           sub.Name,
		Email:          sub.Email,
		UnsubscribeURL: s.UnsubscribeURL(sub.UnsubscribeToken),
	})
	if err == nil {
		err = s.mailer.Send(ctx, pkgmail.Message{
			To:      []string{sub.Email},
			Subject: "Welcome to " + s.siteName,
			HTML:    html,
		})
	}
	if err != nil && !errors.Is(err, pkgmail.ErrDisabled) {
		s.logger.Warn("send welcome email", zap.String("subscriber", sub.ID), zap.Error(err))
	}
}

// UnsubscribeURL is the one-click opt-out link for a subscriber token.
func (s *Service) UnsubscribeURL(token string) string {
	return s.siteURL + UnsubscribePath + "?token=" + url.QueryEscape(token)
}

// Unsubscribe deactivates the subscriber owning token. Repeating it is a no-op.
func (s *Service) Unsubscribe(ctx context.Context, token string) error {
	sub, err := s.store.GetByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return err
	}
	if sub == nil {
		return ErrNotFound
	}
	if !sub.Active {
		return nil
	}
	sub.Active = false
	return s.store.Update(ctx, sub)
}

// ActiveSubscribers returns every address that should receive campaigns.
func (s *Service) ActiveSubscribers(ctx context.Context) ([]models.SubscriberModel, error) {
	return s.store.Active(ctx)
}

func (s *Service) List(ctx context.Context, active *bool, q pagination.Query) ([]models.SubscriberModel, response.Pagination, error) {
	return s.store.List(ctx, active, pagination.Normalize(q))
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

func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

type Handler struct {
	svc    *Service
	logger *zap.Logger
}

func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger.Named("subscribe.http")}
}

// RegisterRoutes mounts the public endpoints behind limitMW and the admin
// endpoints behind authMW.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, limitMW gin.HandlerFunc) {
	g := rg.Group("/subscribe")
	g.POST("", limitMW, h.subscribe)
	g.GET("/unsubscribe", h.unsubscribe)
	g.POST("/unsubscribe", h.unsubscribe)

	admin := rg.Group("/subscribers", authMW, middleware.RequireRole(models.RoleAdmin))
	admin.GET("", h.list)
	admin.DELETE("/:id", h.delete)
}

type subscriberResponse struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

func toResponse(s *models.SubscriberModel) subscriberResponse {
	return subscriberResponse{ID: s.ID, Email: s.Email, Name: s.Name, Active: s.Active}
}

// subscribe POST /subscribe
func (h *Handler) subscribe(c *gin.Context) {
	var dto SubscribeDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BindError(c, err)
		return
	}
	sub, created, err := h.svc.Subscribe(c.Request.Context(), &dto)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if created {
		response.Created(c, gin.H{"email": sub.Email, "subscribed": true})
		return
	}
	response.OK(c, gin.H{"email": sub.Email, "subscribed": true})
}

// unsubscribe GET|POST /subscribe/unsubscribe?token=
func (h *Handler) unsubscribe(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Validation(c, map[string]string{"token": "is required"})
		return
	}
	if err := h.svc.Unsubscribe(c.Request.Context(), token); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFoundMsg(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"message": "unsubscribed"})
}

// list GET /subscribers?active=
func (h *Handler) list(c *gin.Context) {
	var active *bool
	switch c.Query("active") {
	case "true", "1":
		v := true
		active = &v
	case "false", "0":
		v := false
		active = &v
	}
	subs, pag, err := h.svc.List(c.Request.Context(), active, pagination.FromContext(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	out := make([]subscriberResponse, 0, len(subs))
	for i := range subs {
		out = append(out, toResponse(&subs[i]))
	}
	response.Paged(c, out, pag)
}

// delete DELETE /subscribers/:id
func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}
