package sitemap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/itorigin/site/internal/models"
	"github.com/itorigin/site/internal/modules/content/post"
	"github.com/itorigin/site/internal/pkg/pagination"
	"github.com/itorigin/site/internal/pkg/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pagedLister struct {
	posts []models.PostModel
	calls int
}

func (p *pagedLister) List(_ context.Context, f post.ListFilter, q pagination.Query) ([]models.PostModel, response.Pagination, error) {
	p.calls++
	start := q.Offset()
	end := start + q.Size
	if start > len(p.posts) {
		start = len(p.posts)
	}
	if end > len(p.posts) {
		end = len(p.posts)
	}
	return p.posts[start:end], response.NewPagination(int64(len(p.posts)), q.Page, q.Size), nil
}

func TestSitemapWalksAllPages(t *testing.T) {
	lister := &pagedLister{}
	for i := 0; i < 150; i++ {
		lister.posts = append(lister.posts, models.PostModel{
			Base: models.Base{UpdatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
			Slug: "post-" + strconv.Itoa(i),
		})
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, lister, "https://itorigin.com", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sitemap.xml", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, 2, lister.calls)
	assert.Equal(t, 151, strings.Count(body, "<url>"))
	assert.Contains(t, body, `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	assert.Contains(t, body, "<loc>https://itorigin.com/blogs/post-149</loc>")
	assert.Contains(t, body, "<lastmod>2026-01-02</lastmod>")
}
