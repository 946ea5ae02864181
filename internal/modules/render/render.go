package render

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/itorigin/site/internal/middleware"
	"github.com/itorigin/site/internal/models"
	"github.com/itorigin/site/internal/modules/content/post"
	"github.com/itorigin/site/internal/pkg/markdown"
	"github.com/itorigin/site/internal/pkg/response"
	"go.uber.org/zap"
)

// Resolver maps a public slug to a post or to its current slug.
type Resolver interface {
	Resolve(ctx context.Context, slug string) (*post.Resolution, error)
}

type Handler struct {
	posts    Resolver
	siteName string
	logger   *zap.Logger
}

func NewHandler(posts Resolver, siteName string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{posts: posts, siteName: siteName, logger: logger.Named("render")}
}

// RegisterPages mounts the public blog pages at the site root.
func (h *Handler) RegisterPages(r gin.IRouter) {
	r.GET(post.BlogPathPrefix+":slug", h.blogPage)
}

// RegisterRoutes mounts the editor preview endpoint.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/render", authMW, middleware.RequireRole(models.RoleAdmin, models.RoleAuthor))
	g.POST("/markdown", h.previewMarkdown)
}

// blogPage GET /blogs/:slug
func (h *Handler) blogPage(c *gin.Context) {
	res, err := h.posts.Resolve(c.Request.Context(), c.Param("slug"))
	switch {
	case errors.Is(err, post.ErrPostNotFound):
		h.html(c, http.StatusNotFound, notFoundTmpl, pageData{Site: h.siteName, Title: "Page not found"})
		return
	case err != nil:
		h.logger.Error("resolve blog page", zap.String("slug", c.Param("slug")), zap.Error(err))
		h.html(c, http.StatusInternalServerError, errorTmpl, pageData{Site: h.siteName, Title: "Something went wrong"})
		return
	}

	if res.RedirectTo != "" {
		c.Redirect(http.StatusPermanentRedirect, post.BlogPathPrefix+res.RedirectTo)
		return
	}
	h.html(c, http.StatusOK, postTmpl, newPageData(h.siteName, res.Post))
}

type markdownPreviewDTO struct {
	MD    string `json:"md"    binding:"required"`
	Title string `json:"title"`
}

// previewMarkdown POST /render/markdown
func (h *Handler) previewMarkdown(c *gin.Context) {
	var dto markdownPreviewDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BindError(c, err)
		return
	}
	h.html(c, http.StatusOK, postTmpl, pageData{
		Site:    h.siteName,
		Title:   dto.Title,
		Body:    markdown.Render(dto.MD),
		NoIndex: true,
	})
}

func (h *Handler) html(c *gin.Context, status int, tmpl *template.Template, data pageData) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		h.logger.Error("execute template", zap.String("template", tmpl.Name()), zap.Error(err))
		c.String(http.StatusInternalServerError, "internal server error")
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

type pageData struct {
	Site        string
	Title       string
	Excerpt     string
	Body        template.HTML
	PublishedAt *time.Time
	ReadingTime int
	Category    string
	Tags        []string
	NoIndex     bool
}

func newPageData(site string, p *models.PostModel) pageData {
	d := pageData{
		Site:        site,
		Title:       p.Title,
		Excerpt:     p.Excerpt,
		Body:        markdown.Render(p.Content),
		PublishedAt: p.PublishedAt,
		ReadingTime: p.ReadingTime,
	}
	if p.Category != nil {
		d.Category = p.Category.Name
	}
	for _, t := range p.Tags {
		d.Tags = append(d.Tags, t.Name)
	}
	return d
}
