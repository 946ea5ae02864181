package category

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/itorigin/site/internal/middleware"
	"github.com/itorigin/site/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	terms map[Kind]map[string]Term
}

func newMemStore() *memStore {
	return &memStore{terms: map[Kind]map[string]Term{KindCategory: {}, KindTag: {}}}
}

func (m *memStore) List(_ context.Context, kind Kind) ([]Term, error) {
	out := make([]Term, 0)
	for _, t := range m.terms[kind] {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) Get(_ context.Context, kind Kind, q string) (*Term, error) {
	if t, ok := m.terms[kind][q]; ok {
		return &t, nil
	}
	for _, t := range m.terms[kind] {
		if t.Slug == q {
			return &t, nil
		}
	}
	return nil, nil
}

func (m *memStore) Taken(_ context.Context, kind Kind, name, slug, excludeID string) (bool, error) {
	for id, t := range m.terms[kind] {
		if id != excludeID && (t.Name == name || t.Slug == slug) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Create(_ context.Context, kind Kind, t *Term) error {
	t.ID = uuid.NewString()
	m.terms[kind][t.ID] = *t
	return nil
}

func (m *memStore) Update(_ context.Context, kind Kind, t *Term) error {
	m.terms[kind][t.ID] = *t
	return nil
}

func (m *memStore) Delete(_ context.Context, kind Kind, id string) (bool, error) {
	_, ok := m.terms[kind][id]
	delete(m.terms[kind], id)
	return ok, nil
}

func TestCreateDerivesSlug(t *testing.T) {
	svc := NewService(newMemStore())
	ctx := context.Background()

	c, err := svc.Create(ctx, KindCategory, &CreateDTO{Name: "  Cloud Security "})
	require.NoError(t, err)
	assert.Equal(t, "Cloud Security", c.Name)
	assert.Equal(t, "cloud-security", c.Slug)

	_, err = svc.Create(ctx, KindCategory, &CreateDTO{Name: "Cloud Security"})
	assert.ErrorIs(t, err, ErrExists)
	_, err = svc.Create(ctx, KindCategory, &CreateDTO{Name: "Other", Slug: "Cloud_Security"})
	assert.ErrorIs(t, err, ErrExists)

	// Categories and tags are separate namespaces.
	_, err = svc.Create(ctx, KindTag, &CreateDTO{Name: "Cloud Security"})
	assert.NoError(t, err)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemStore())

	_, err := svc.Create(context.Background(), KindTag, &CreateDTO{Name: "日本", Slug: ""})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "slug")

	_, err = svc.Create(context.Background(), KindTag, &CreateDTO{Name: " ", Slug: "bad slug!"})
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "name")
	assert.Contains(t, verr.Fields, "slug")
}

func TestUpdateKeepsSlugOnRename(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	ctx := context.Background()
	c, err := svc.Create(ctx, KindCategory, &CreateDTO{Name: "Research"})
	require.NoError(t, err)

	name := "Threat Research"
	u, err := svc.Update(ctx, KindCategory, c.ID, &UpdateDTO{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "research", u.Slug)
	assert.Equal(t, "Threat Research", u.Name)

	slug := "threat-research"
	u, err = svc.Update(ctx, KindCategory, c.ID, &UpdateDTO{Slug: &slug})
	require.NoError(t, err)
	assert.Equal(t, "threat-research", u.Slug)

	_, err = svc.Update(ctx, KindCategory, "threat-research", &UpdateDTO{Slug: &slug})
	assert.ErrorIs(t, err, ErrNotFound)
}

type prefixRecorder struct{ prefixes []string }

func (p *prefixRecorder) PurgePrefix(_ context.Context, prefix string) error {
	p.prefixes = append(p.prefixes, prefix)
	return nil
}

type tokenAuth map[string]middleware.Identity

func (a tokenAuth) Authenticate(_ context.Context, token string) (middleware.Identity, error) {
	if id, ok := a[token]; ok {
		return id, nil
	}
	return middleware.Identity{}, errors.New("invalid")
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cache := &prefixRecorder{}
	r := gin.New()
	auth := middleware.Auth(tokenAuth{
		"admin":  {UserID: "1", Role: models.RoleAdmin},
		"author": {UserID: "2", Role: models.RoleAuthor},
	})
	NewHandler(NewService(newMemStore()), cache, nil).RegisterRoutes(r.Group("/api/v1"), auth)

	send := func(method, target, token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, send(http.MethodPost, "/api/v1/tags", "", `{"name":"IAM"}`).Code)
	assert.Equal(t, http.StatusForbidden, send(http.MethodPost, "/api/v1/tags", "author", `{"name":"IAM"}`).Code)

	w := send(http.MethodPost, "/api/v1/tags", "admin", `{"name":"IAM"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created Term
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "iam", created.Slug)
	assert.ElementsMatch(t, []string{"/api/v1/categories", "/api/v1/tags", "/api/v1/posts"}, cache.prefixes)

	assert.Equal(t, http.StatusConflict, send(http.MethodPost, "/api/v1/tags", "admin", `{"name":"IAM"}`).Code)
	assert.Equal(t, http.StatusBadRequest, send(http.MethodPost, "/api/v1/tags", "admin", `{}`).Code)

	w = send(http.MethodGet, "/api/v1/tags/iam", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), created.ID)

	w = send(http.MethodGet, "/api/v1/tags", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data"`)

	assert.Equal(t, http.StatusNotFound, send(http.MethodGet, "/api/v1/categories/iam", "", "").Code)
	assert.Equal(t, http.StatusNoContent, send(http.MethodDelete, "/api/v1/tags/"+created.ID, "admin", "").Code)
	assert.Equal(t, http.StatusNotFound, send(http.MethodDelete, "/api/v1/tags/"+created.ID, "admin", "").Code)
}
