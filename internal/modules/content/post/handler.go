package post

import (
	"context"
	"errors"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/itorigin/site/internal/middleware"
	"github.com/itorigin/site/internal/models"
	"github.com/itorigin/site/internal/pkg/pagination"
	"github.com/itorigin/site/internal/pkg/response"
	"go.uber.org/zap"
)

// BlogPathPrefix is where the page renderer serves posts.
const BlogPathPrefix = "/blogs/"

// Root-level documents listing published posts.
var syndicationPrefixes = []string{"/feed", "/sitemap"}

// CacheInvalidator drops cached responses for addresses a write affected.
type CacheInvalidator interface {
	PurgePaths(ctx context.Context, paths ...string) error
	PurgePrefix(ctx context.Context, prefix string) error
}

// Handler handles post HTTP requests.
type Handler struct {
	svc      *Service
	cache    CacheInvalidator
	logger   *zap.Logger
	basePath string
}

func NewHandler(svc *Service, cache CacheInvalidator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, cache: cache, logger: logger.Named("post.http")}
}

// RegisterRoutes mounts post routes. authMW must reject anonymous callers;
// optionalAuthMW only identifies them.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, optionalAuthMW gin.HandlerFunc) {
	posts := rg.Group("/posts")
	h.basePath = posts.BasePath()

	posts.GET("", optionalAuthMW, h.list)
	posts.GET("/slug/:slug", h.getBySlug)

	editors := posts.Group("", authMW, middleware.RequireRole(models.RoleAdmin, models.RoleAuthor))
	editors.GET("/:id", h.getByID)
	editors.POST("", h.create)
	editors.PATCH("/:id", h.update)
	editors.PUT("/:id", h.update)
	editors.DELETE("/:id", h.delete)
}

// list GET /posts
func (h *Handler) list(c *gin.Context) {
	var lq ListQuery
	if err := c.ShouldBindQuery(&lq); err != nil {
		response.BindError(c, err)
		return
	}

	f := ListFilter{
		Status:   models.PostStatusPublished,
		Category: lq.Category,
		Tag:      lq.Tag,
	}
	if canEdit(c) {
		f.Status = models.PostStatus(lq.Status)
	}

	posts, pag, err := h.svc.List(c.Request.Context(), f, pagination.FromContext(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	items := make([]postResponse, len(posts))
	for i := range posts {
		items[i] = toResponse(&posts[i], false)
	}
	response.Paged(c, items, pag)
}

// getBySlug GET /posts/slug/:slug
func (h *Handler) getBySlug(c *gin.Context) {
	res, err := h.svc.Resolve(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if res.RedirectTo != "" {
		c.Header("Location", path.Join(path.Dir(c.Request.URL.Path), res.RedirectTo))
		c.JSON(http.StatusPermanentRedirect, gin.H{"slug": res.RedirectTo})
		return
	}
	response.OK(c, toResponse(res.Post, true))
}

// getByID GET /posts/:id
func (h *Handler) getByID(c *gin.Context) {
	p, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, toResponse(p, true))
}

// create POST /posts
func (h *Handler) create(c *gin.Context) {
	var dto CreatePostDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BindError(c, err)
		return
	}

	p, err := h.svc.Create(c.Request.Context(), dto.input(middleware.CurrentUserID(c)))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.purge(c.Request.Context(), false, p.Slug)
	response.Created(c, toResponse(p, true))
}

// update PATCH|PUT /posts/:id
func (h *Handler) update(c *gin.Context) {
	var dto UpdatePostDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BindError(c, err)
		return
	}

	res, err := h.svc.Update(c.Request.Context(), c.Param("id"), dto.input())
	if err != nil {
		h.fail(c, err)
		return
	}

	slugs := []string{res.Post.Slug}
	if res.PreviousSlug != nil {
		slugs = append(slugs, *res.PreviousSlug)
	}
	// Older slugs may hold cached 308s pointing at this post.
	h.purge(c.Request.Context(), res.Unpublished || res.SlugChanged, slugs...)

	response.OK(c, updateResponse{
		postResponse: toResponse(res.Post, true),
		SlugChanged:  res.SlugChanged,
		PreviousSlug: res.PreviousSlug,
	})
}

// delete DELETE /posts/:id
func (h *Handler) delete(c *gin.Context) {
	p, err := h.svc.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.purge(c.Request.Context(), true, p.Slug)
	response.NoContent(c)
}

func (h *Handler) fail(c *gin.Context, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		response.Validation(c, verr.Fields)
	case errors.Is(err, ErrPostNotFound):
		response.NotFoundMsg(c, "post not found")
	case errors.Is(err, ErrSlugConflict):
		response.Conflict(c, "could not allocate a unique slug, please retry")
	default:
		h.logger.Error("post request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		response.InternalError(c, err)
	}
}

// purge drops cached API listings, feeds and the public pages of the given
// slugs. allPages drops every cached blog page instead, which is needed once
// redirects from unknown old slugs may point at content that is no longer
// public. A stale cache entry expires on its own, so failures are only logged.
func (h *Handler) purge(ctx context.Context, allPages bool, slugs ...string) {
	if h.cache == nil {
		return
	}
	prefixes := append([]string{h.basePath}, syndicationPrefixes...)
	if allPages {
		prefixes = append(prefixes, BlogPathPrefix)
	}
	for _, prefix := range prefixes {
		if err := h.cache.PurgePrefix(ctx, prefix); err != nil {
			h.logger.Warn("purge cache", zap.String("prefix", prefix), zap.Error(err))
		}
	}
	if allPages {
		return
	}
	paths := make([]string, 0, len(slugs))
	for _, s := range slugs {
		paths = append(paths, BlogPathPrefix+s)
	}
	if err := h.cache.PurgePaths(ctx, paths...); err != nil {
		h.logger.Warn("purge blog page cache", zap.Error(err))
	}
}

func canEdit(c *gin.Context) bool {
	role := middleware.CurrentRole(c)
	return role == models.RoleAdmin || role == models.RoleAuthor
}
