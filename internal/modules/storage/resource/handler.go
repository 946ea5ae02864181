package resource

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
	return &Handler{svc: svc, logger: logger.Named("resource.http")}
}

// RegisterRoutes mounts the public catalogue, the rate-limited download
// endpoint and the admin endpoints.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, limitMW gin.HandlerFunc) {
	pub := rg.Group("/resources")
	pub.GET("", h.listPublished)
	pub.GET("/:slug", h.getPublished)
	pub.POST("/:slug/download", limitMW, h.download)

	admin := rg.Group("/admin/resources", authMW, middleware.RequireRole(models.RoleAdmin))
	admin.GET("", h.listAll)
	admin.POST("", h.create)
	admin.PATCH("/:id", h.update)
	admin.DELETE("/:id", h.delete)
	admin.GET("/leads", h.leads)
}

type resourceResponse struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Slug          string    `json:"slug"`
	Description   string    `json:"description"`
	Published     bool      `json:"published"`
	ObjectKey     string    `json:"objectKey,omitempty"`
	DownloadCount *int64    `json:"downloadCount,omitempty"`
	Created       time.Time `json:"created"`
}

// toResponse hides storage details and counters from the public.
func toResponse(r *models.ResourceModel, admin bool) resourceResponse {
	out := resourceResponse{
		ID:          r.ID,
		Title:       r.Title,
		Slug:        r.Slug,
		Description: r.Description,
		Published:   r.Published,
		Created:     r.CreatedAt,
	}
	if admin {
		out.ObjectKey = r.ObjectKey
		n := r.DownloadCount
		out.DownloadCount = &n
	}
	return out
}

type leadResponse struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Company    string    `json:"company"`
	ResourceID string    `json:"resourceId"`
	Source     string    `json:"source"`
	Created    time.Time `json:"created"`
}

func (h *Handler) list(c *gin.Context, admin bool) {
	items, pag, err := h.svc.List(c.Request.Context(), !admin, pagination.FromContext(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]resourceResponse, 0, len(items))
	for i := range items {
		out = append(out, toResponse(&items[i], admin))
	}
	response.Paged(c, out, pag)
}

// listPublished GET /resources
func (h *Handler) listPublished(c *gin.Context) { h.list(c, false) }

// listAll GET /admin/resources
func (h *Handler) listAll(c *gin.Context) { h.list(c, true) }

// getPublished GET /resources/:slug
func (h *Handler) getPublished(c *gin.Context) {
	r, err := h.svc.GetPublished(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, toResponse(r, false))
}

// download POST /resources/:slug/download
func (h *Handler) download(c *gin.Context) {
	var dto DownloadDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BindError(c, err)
		return
	}
	d, err := h.svc.Download(c.Request.Context(), c.Param("slug"), &dto)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	response.OK(c, d)
}

// create POST /admin/resources
func (h *Handler) create(c *gin.Context) {
	var dto CreateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BindError(c, err)
		return
	}
	r, err := h.svc.Create(c.Request.Context(), &dto)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, toResponse(r, true))
}

// update PATCH /admin/resources/:id
func (h *Handler) update(c *gin.Context) {
	var dto UpdateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BindError(c, err)
		return
	}
	r, err := h.svc.Update(c.Request.Context(), c.Param("id"), &dto)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, toResponse(r, true))
}

// delete DELETE /admin/resources/:id
func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

// leads GET /admin/resources/leads?resourceId=
func (h *Handler) leads(c *gin.Context) {
	items, pag, err := h.svc.Leads(c.Request.Context(), c.Query("resourceId"), pagination.FromContext(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]leadResponse, 0, len(items))
	for _, l := range items {
		out = append(out, leadResponse{
			ID:         l.ID,
			Email:      l.Email,
			Name:       l.Name,
			Company:    l.Company,
			ResourceID: l.ResourceID,
			Source:     l.Source,
			Created:    l.CreatedAt,
		})
	}
	response.Paged(c, out, pag)
}

func (h *Handler) fail(c *gin.Context, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		response.Validation(c, verr.Fields)
	case errors.Is(err, ErrNotFound):
		response.NotFound(c)
	case errors.Is(err, ErrExists):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrStorageDisabled):
		response.ServiceUnavailable(c, err.Error())
	default:
		h.logger.Error("resource request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		response.InternalError(c, err)
	}
}
