package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
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

type stubLister struct {
	posts []models.PostModel
	got   post.ListFilter
}

func (s *stubLister) List(_ context.Context, f post.ListFilter, q pagination.Query) ([]models.PostModel, response.Pagination, error) {
	s.got = f
	return s.posts, response.NewPagination(int64(len(s.posts)), q.Page, q.Size), nil
}

func TestFeed(t *testing.T) {
	published := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	lister := &stubLister{posts: []models.PostModel{{
		Base:        models.Base{ID: "p1"},
		Slug:        "ztb-guide",
		Title:       "Zero Trust & You",
		Content:     "**bold**",
		PublishedAt: &published,
		Category:    &models.CategoryModel{Name: "Research"},
	}}}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, lister, Site{Name: "IT Origin", URL: "https://itorigin.com/"}, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/feed.xml", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.PostStatusPublished, lister.got.Status)
	body := w.Body.String()
	assert.Contains(t, body, `<rss version="2.0">`)
	assert.Contains(t, body, "<title>Zero Trust &amp; You</title>")
	assert.Contains(t, body, "<link>https://itorigin.com/blogs/ztb-guide</link>")
	assert.Contains(t, body, `<guid isPermaLink="false">p1</guid>`)
	assert.Contains(t, body, "<pubDate>Tue, 03 Feb 2026 04:05:06 +0000</pubDate>")
	assert.Contains(t, body, "<category>Research</category>")
	assert.Contains(t, body, "<![CDATA[<p><strong>bold</strong></p>")
}
