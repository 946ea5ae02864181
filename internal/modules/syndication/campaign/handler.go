package campaign

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/itorigin/site/internal/middleware"
	"github.com/itorigin/site/internal/models"
	"github.com/itorigin/site/internal/pkg/pagination"
	"github.com/itorigin/site/internal/pkg/response"
	"go.uber.org/zap"
)

type Handler struct {
	svc    *Service
	logger *zap.Logger
}

func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger.Named("campaign.http")}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/campaigns", authMW, middleware.RequireRole(models.RoleAdmin))
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.delete)
	g.POST("/:id/send", h.send)
}

type campaignResponse struct {
	ID          string     `json:"id"`
	Subject     string     `json:"subject"`
	Body        string     `json:"body,omitempty"`
	Status      string     `json:"status"`
	Recurring   bool       `json:"recurring"`
	DayOfMonth  int        `json:"dayOfMonth"`
	NextRunAt   *time.Time `json:"nextRunAt"`
	LastSentAt  *time.Time `json:"lastSentAt"`
	SentCount   int        `json:"sentCount"`
	FailedCount int        `json:"failedCount"`
	Created     time.Time  `json:"created"`
	Modified    time.Time  `json:"modified"`
}

func toResponse(c *models.CampaignModel, withBody bool) campaignResponse {
	out := campaignResponse{
		ID:          c.ID,
		Subject:     c.Subject,
		Status:      c.Status,
		Recurring:   c.Recurring,
		DayOfMonth:  c.DayOfMonth,
		NextRunAt:   c.NextRunAt,
		LastSentAt:  c.LastSentAt,
		SentCount:   c.SentCount,
		FailedCount: c.FailedCount,
		Created:     c.CreatedAt,
		Modified:    c.UpdatedAt,
	}
	if withBody {
		out.Body = c.Body
	}
	return out
}

// list GET /campaigns?status=
func (h *Handler) list(c *gin.Context) {
	items, pag, err := h.svc.List(c.Request.Context(), c.Query("status"), pagination.FromContext(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]campaignResponse, 0, len(items))
	for i := range items {
		out = append(out, toResponse(&items[i], false))
	}
	response.Paged(c, out, pag)
}

// create POST /campaigns
func (h *Handler) create(c *gin.Context) {
	var dto CreateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BindError(c, err)
		return
	}
	item, err := h.svc.Create(c.Request.Context(), &dto)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, toResponse(item, true))
}

// get GET /campaigns/:id
func (h *Handler) get(c *gin.Context) {
	item, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, toResponse(item, true))
}

// update PATCH /campaigns/:id
func (h *Handler) update(c *gin.Context) {
	var dto UpdateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BindError(c, err)
		return
	}
	item, err := h.svc.Update(c.Request.Context(), c.Param("id"), &dto)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, toResponse(item, true))
}

// delete DELETE /campaigns/:id
func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

// send POST /campaigns/:id/send
func (h *Handler) send(c *gin.Context) {
	res, err := h.svc.Send(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, res)
}

func (h *Handler) fail(c *gin.Context, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		response.Validation(c, verr.Fields)
	case errors.Is(err, ErrNotFound):
		response.NotFound(c)
	case errors.Is(err, ErrAlreadySent), errors.Is(err, ErrInProgress):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrMailDisabled):
		response.ServiceUnavailable(c, err.Error())
	default:
		h.logger.Error("campaign request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		response.InternalError(c, err)
	}
}
