package render

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/itorigin/site/internal/models"
	"github.com/itorigin/site/internal/modules/content/post"
	"github.com/stretchr/testify/assert"
)

type stubResolver map[string]*post.Resolution

func (s stubResolver) Resolve(_ context.Context, slug string) (*post.Resolution, error) {
	if slug == "boom" {
		return nil, errors.New("db down")
	}
	res, ok := s[slug]
	if !ok {
		return nil, post.ErrPostNotFound
	}
	return res, nil
}

func serve(t *testing.T, posts Resolver, target string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(posts, "IT Origin", nil).RegisterPages(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestBlogPage(t *testing.T) {
	published := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	posts := stubResolver{
		"ztb-guide": {Post: &models.PostModel{
			Title:       "Zero Trust <Basics>",
			Content:     "## Why\n\nNever trust, **always** verify.\n\n<script>alert(1)</script>",
			PublishedAt: &published,
			ReadingTime: 4,
			Category:    &models.CategoryModel{Name: "Research"},
			Tags:        []models.TagModel{{Name: "IAM"}},
		}},
		"zero-trust-basics": {RedirectTo: "ztb-guide"},
	}

	w := serve(t, posts, "/blogs/ztb-guide")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "<title>Zero Trust &lt;Basics&gt; | IT Origin</title>")
	assert.Contains(t, body, `<h2 id="why">Why</h2>`)
	assert.Contains(t, body, "<strong>always</strong>")
	assert.Contains(t, body, "March 1, 2026")
	assert.Contains(t, body, "4 min read")
	assert.Contains(t, body, "Research")
	assert.Contains(t, body, "<span>IAM</span>")
	assert.NotContains(t, body, "<script>")

	w = serve(t, posts, "/blogs/zero-trust-basics")
	assert.Equal(t, http.StatusPermanentRedirect, w.Code)
	assert.Equal(t, "/blogs/ztb-guide", w.Header().Get("Location"))

	w = serve(t, posts, "/blogs/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "Page not found"))

	w = serve(t, posts, "/blogs/boom")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db down")
}
