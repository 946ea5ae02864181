package category

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/itorigin/site/internal/middleware"
	"github.com/itorigin/site/internal/models"
	"github.com/itorigin/site/internal/pkg/response"
	"go.uber.org/zap"
)

// CacheInvalidator drops cached API responses under a path prefix.
type CacheInvalidator interface {
	PurgePrefix(ctx context.Context, prefix string) error
}

type Handler struct {
	svc    *Service
	cache  CacheInvalidator
	logger *zap.Logger
	// purgePrefixes are the API listings that embed taxonomy data.
	purgePrefixes []string
}

func NewHandler(svc *Service, cache CacheInvalidator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, cache: cache, logger: logger.Named("category.http")}
}

// RegisterRoutes mounts /categories and /tags. Reads are public; writes are
// admin only.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	for _, r := range []struct {
		path string
		kind Kind
	}{
		{"/categories", KindCategory},
		{"/tags", KindTag},
	} {
		kind := r.kind
		g := rg.Group(r.path)
		h.purgePrefixes = append(h.purgePrefixes, g.BasePath())

		g.GET("", func(c *gin.Context) { h.list(c, kind) })
		g.GET("/:query", func(c *gin.Context) { h.get(c, kind) })

		admin := g.Group("", authMW, middleware.RequireRole(models.RoleAdmin))
		admin.POST("", func(c *gin.Context) { h.create(c, kind) })
		admin.PUT("/:query", func(c *gin.Context) { h.update(c, kind) })
		admin.PATCH("/:query", func(c *gin.Context) { h.update(c, kind) })
		admin.DELETE("/:query", func(c *gin.Context) { h.delete(c, kind) })
	}
	h.purgePrefixes = append(h.purgePrefixes, rg.BasePath()+"/posts")
}

func (h *Handler) list(c *gin.Context, kind Kind) {
	terms, err := h.svc.List(c.Request.Context(), kind)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, terms)
}

func (h *Handler) get(c *gin.Context, kind Kind) {
	t, err := h.svc.Get(c.Request.Context(), kind, c.Param("query"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, t)
}

func (h *Handler) create(c *gin.Context, kind Kind) {
	var dto CreateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BindError(c, err)
		return
	}
	t, err := h.svc.Create(c.Request.Context(), kind, &dto)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.purge(c.Request.Context())
	response.Created(c, t)
}

func (h *Handler) update(c *gin.Context, kind Kind) {
	var dto UpdateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BindError(c, err)
		return
	}
	t, err := h.svc.Update(c.Request.Context(), kind, c.Param("query"), &dto)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.purge(c.Request.Context())
	response.OK(c, t)
}

func (h *Handler) delete(c *gin.Context, kind Kind) {
	if err := h.svc.Delete(c.Request.Context(), kind, c.Param("query")); err != nil {
		h.fail(c, err)
		return
	}
	h.purge(c.Request.Context())
	response.NoContent(c)
}

func (h *Handler) purge(ctx context.Context) {
	if h.cache == nil {
		return
	}
	for _, p := range h.purgePrefixes {
		if err := h.cache.PurgePrefix(ctx, p); err != nil {
			h.logger.Warn("purge taxonomy cache", zap.String("prefix", p), zap.Error(err))
		}
	}
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
	default:
		h.logger.Error("taxonomy request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		response.InternalError(c, err)
	}
}
