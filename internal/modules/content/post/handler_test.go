package post

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/itorigin/site/internal/middleware"
	"github.com/itorigin/site/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuth map[string]middleware.Identity

func (s stubAuth) Authenticate(_ context.Context, token string) (middleware.Identity, error) {
	id, ok := s[token]
	if !ok {
		return middleware.Identity{}, errors.New("unknown token")
	}
	return id, nil
}

type recordingCache struct {
	paths    []string
	prefixes []string
}

func (r *recordingCache) PurgePaths(_ context.Context, paths ...string) error {
	r.paths = append(r.paths, paths...)
	return nil
}

func (r *recordingCache) PurgePrefix(_ context.Context, prefix string) error {
	r.prefixes = append(r.prefixes, prefix)
	return nil
}

type handlerEnv struct {
	router *gin.Engine
	svc    *Service
	store  *memStore
	cache  *recordingCache
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, store, _ := newTestService(t)
	cache := &recordingCache{}
	auth := stubAuth{
		"admin":  {UserID: "u-admin", Role: models.RoleAdmin},
		"author": {UserID: "u-author", Role: models.RoleAuthor},
		"viewer": {UserID: "u-viewer", Role: models.RoleViewer},
	}

	r := gin.New()
	h := NewHandler(svc, cache, nil)
	h.RegisterRoutes(r.Group("/api/v1"), middleware.Auth(auth), middleware.OptionalAuth(auth))
	return &handlerEnv{router: r, svc: svc, store: store, cache: cache}
}

func (e *handlerEnv) do(method, target, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHandlerMutationsRequireAuthor(t *testing.T) {
	env := newHandlerEnv(t)
	p := mustCreate(t, env.svc, CreateInput{Title: "Guarded"})

	cases := []struct {
		method, target string
	}{
		{http.MethodPost, "/api/v1/posts"},
		{http.MethodPatch, "/api/v1/posts/" + p.ID},
		{http.MethodPut, "/api/v1/posts/" + p.ID},
		{http.MethodDelete, "/api/v1/posts/" + p.ID},
		{http.MethodGet, "/api/v1/posts/" + p.ID},
	}
	for _, tc := range cases {
		// An invalid body must not leak a 400 before the auth checks.
		w := env.do(tc.method, tc.target, "", map[string]any{"title": ""})
		assert.Equal(t, http.StatusUnauthorized, w.Code, tc.method+" "+tc.target)

		w = env.do(tc.method, tc.target, "bogus", map[string]any{"title": ""})
		assert.Equal(t, http.StatusUnauthorized, w.Code, tc.method+" "+tc.target)

		w = env.do(tc.method, tc.target, "viewer", map[string]any{"title": ""})
		assert.Equal(t, http.StatusForbidden, w.Code, tc.method+" "+tc.target)
	}
	assert.Len(t, env.store.state.posts, 1)
}

func TestHandlerCreate(t *testing.T) {
	env := newHandlerEnv(t)

	w := env.do(http.MethodPost, "/api/v1/posts", "author", map[string]any{"title": "Zero Trust Basics", "content": "hello"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "zero-trust-basics", body["slug"])
	assert.Equal(t, "draft", body["status"])
	assert.Equal(t, "u-author", body["authorId"])
	assert.Nil(t, body["publishedAt"])
	assert.Contains(t, env.cache.paths, "/blogs/zero-trust-basics")
	assert.Contains(t, env.cache.prefixes, "/api/v1/posts")

	w = env.do(http.MethodPost, "/api/v1/posts", "admin", map[string]any{"title": "Zero Trust Basics"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "zero-trust-basics-1", decode(t, w)["slug"])
}

func TestHandlerCreateValidation(t *testing.T) {
	env := newHandlerEnv(t)

	w := env.do(http.MethodPost, "/api/v1/posts", "author", map[string]any{"status": "archived"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	fields := decode(t, w)["fields"].(map[string]any)
	assert.Equal(t, "is required", fields["title"])
	assert.Contains(t, fields, "status")

	w = env.do(http.MethodPost, "/api/v1/posts", "author", map[string]any{"title": "Fine", "slug": "not ok!"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	fields = decode(t, w)["fields"].(map[string]any)
	assert.Contains(t, fields, "slug")
	assert.Empty(t, env.store.state.posts)
}

func TestHandlerUpdateReportsSlugChange(t *testing.T) {
	env := newHandlerEnv(t)
	p := mustCreate(t, env.svc, CreateInput{Title: "Zero Trust Basics"})

	w := env.do(http.MethodPatch, "/api/v1/posts/"+p.ID, "author", map[string]any{"slug": "ztb-guide"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "ztb-guide", body["slug"])
	assert.Equal(t, true, body["slugChanged"])
	assert.Equal(t, "zero-trust-basics", body["previousSlug"])
	assert.Equal(t, true, body["slugLocked"])
	assert.Contains(t, env.cache.prefixes, BlogPathPrefix)

	w = env.do(http.MethodPatch, "/api/v1/posts/"+p.ID, "author", map[string]any{"title": "Other"})
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, false, body["slugChanged"])
	assert.Nil(t, body["previousSlug"])
}

func TestHandlerUpdateErrors(t *testing.T) {
	env := newHandlerEnv(t)
	p := mustCreate(t, env.svc, CreateInput{Title: "Target"})

	w := env.do(http.MethodPatch, "/api/v1/posts/missing", "admin", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, float64(404), decode(t, w)["code"])

	w = env.do(http.MethodPatch, "/api/v1/posts/"+p.ID, "admin", map[string]any{"title": "   "})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["fields"], "title")

	w = env.do(http.MethodPatch, "/api/v1/posts/"+p.ID, "admin", map[string]any{"categoryId": "nope"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["fields"], "categoryId")
}

func TestHandlerGetBySlug(t *testing.T) {
	env := newHandlerEnv(t)
	p := mustCreate(t, env.svc, CreateInput{Title: "Zero Trust Basics", Content: "body", Status: models.PostStatusPublished})
	mustUpdate(t, env.svc, p.ID, UpdateInput{Slug: strPtr("ztb-guide")})

	w := env.do(http.MethodGet, "/api/v1/posts/slug/ztb-guide", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "body", body["content"])
	assert.Equal(t, float64(1), body["viewCount"])

	w = env.do(http.MethodGet, "/api/v1/posts/slug/zero-trust-basics", "", nil)
	require.Equal(t, http.StatusPermanentRedirect, w.Code)
	assert.Equal(t, "/api/v1/posts/slug/ztb-guide", w.Header().Get("Location"))
	assert.Equal(t, "ztb-guide", decode(t, w)["slug"])

	mustUpdate(t, env.svc, p.ID, UpdateInput{Status: statusPtr(models.PostStatusDraft)})
	w = env.do(http.MethodGet, "/api/v1/posts/slug/zero-trust-basics", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(http.MethodGet, "/api/v1/posts/slug/ztb-guide", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerDelete(t *testing.T) {
	env := newHandlerEnv(t)
	p := mustCreate(t, env.svc, CreateInput{Title: "Short Lived", Status: models.PostStatusPublished})
	mustUpdate(t, env.svc, p.ID, UpdateInput{Title: strPtr("Shorter Lived")})

	w := env.do(http.MethodDelete, "/api/v1/posts/"+p.ID, "admin", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, env.cache.prefixes, BlogPathPrefix)

	w = env.do(http.MethodGet, "/api/v1/posts/slug/short-lived", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodDelete, "/api/v1/posts/"+p.ID, "admin", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerUnpublishAndDeletePurgeOldSlugPages(t *testing.T) {
	env := newHandlerEnv(t)
	p := mustCreate(t, env.svc, CreateInput{Title: "Zero Trust Basics", Status: models.PostStatusPublished})
	mustUpdate(t, env.svc, p.ID, UpdateInput{Slug: strPtr("ztb-guide")})

	// A content edit on a live post only touches its own page.
	w := env.do(http.MethodPatch, "/api/v1/posts/"+p.ID, "admin", map[string]any{"content": "v2"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"/blogs/ztb-guide"}, env.cache.paths)
	assert.NotContains(t, env.cache.prefixes, BlogPathPrefix)
	assert.Contains(t, env.cache.prefixes, "/feed")
	assert.Contains(t, env.cache.prefixes, "/sitemap")

	// Unpublishing must also drop the cached 308 at /blogs/zero-trust-basics.
	env.cache.prefixes = nil
	w = env.do(http.MethodPatch, "/api/v1/posts/"+p.ID, "admin", map[string]any{"status": "draft"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, env.cache.prefixes, BlogPathPrefix)
	assert.Contains(t, env.cache.prefixes, "/feed")

	env.cache.prefixes = nil
	w = env.do(http.MethodPatch, "/api/v1/posts/"+p.ID, "admin", map[string]any{"status": "published"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, env.cache.prefixes, BlogPathPrefix)

	env.cache.prefixes = nil
	w = env.do(http.MethodDelete, "/api/v1/posts/"+p.ID, "admin", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, env.cache.prefixes, BlogPathPrefix)
	assert.Contains(t, env.cache.prefixes, "/sitemap")
}

func TestHandlerListHidesDraftsFromPublic(t *testing.T) {
	env := newHandlerEnv(t)
	mustCreate(t, env.svc, CreateInput{Title: "Draft"})
	mustCreate(t, env.svc, CreateInput{Title: "Live", Status: models.PostStatusPublished})

	w := env.do(http.MethodGet, "/api/v1/posts?status=draft", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "live", data[0].(map[string]any)["slug"])
	assert.NotContains(t, data[0].(map[string]any), "content")

	w = env.do(http.MethodGet, "/api/v1/posts?status=draft", "author", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decode(t, w)["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "draft", data[0].(map[string]any)["slug"])

	w = env.do(http.MethodGet, "/api/v1/posts", "author", nil)
	assert.Len(t, decode(t, w)["data"].([]any), 2)
}
