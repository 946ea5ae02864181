package subscribe

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/itorigin/site/internal/models"
	pkgmail "github.com/itorigin/site/internal/pkg/mail"
	"github.com/itorigin/site/internal/pkg/pagination"
	"github.com/itorigin/site/internal/pkg/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	subs map[string]models.SubscriberModel
}

func newMemStore() *memStore { return &memStore{subs: map[string]models.SubscriberModel{}} }

func (m *memStore) find(match func(models.SubscriberModel) bool) *models.SubscriberModel {
	for _, s := range m.subs {
		if match(s) {
			return &s
		}
	}
	return nil
}

func (m *memStore) GetByEmail(_ context.Context, email string) (*models.SubscriberModel, error) {
	return m.find(func(s models.SubscriberModel) bool { return s.Email == email }), nil
}

func (m *memStore) GetByToken(_ context.Context, token string) (*models.SubscriberModel, error) {
	return m.find(func(s models.SubscriberModel) bool { return token != "" && s.UnsubscribeToken == token }), nil
}

func (m *memStore) Create(_ context.Context, s *models.SubscriberModel) error {
	s.ID = uuid.NewString()
	m.subs[s.ID] = *s
	return nil
}

func (m *memStore) Update(_ context.Context, s *models.SubscriberModel) error {
	m.subs[s.ID] = *s
	return nil
}

func (m *memStore) List(_ context.Context, active *bool, q pagination.Query) ([]models.SubscriberModel, response.Pagination, error) {
	var out []models.SubscriberModel
	for _, s := range m.subs {
		if active == nil || s.Active == *active {
			out = append(out, s)
		}
	}
	return out, response.NewPagination(int64(len(out)), q.Page, q.Size), nil
}

func (m *memStore) Active(ctx context.Context) ([]models.SubscriberModel, error) {
	v := true
	out, _, err := m.List(ctx, &v, pagination.Query{Page: 1, Size: 1000})
	return out, err
}

func (m *memStore) Delete(_ context.Context, id string) (bool, error) {
	_, ok := m.subs[id]
	delete(m.subs, id)
	return ok, nil
}

type fakeMailer struct {
	sent []pkgmail.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg pkgmail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func TestSubscribeSendsWelcomeOnce(t *testing.T) {
	mailer := &fakeMailer{}
	svc := NewService(newMemStore(), mailer, "IT Origin", "https://itorigin.com/", nil)
	ctx := context.Background()

	sub, created, err := svc.Subscribe(ctx, &SubscribeDTO{Email: " Ana@Example.com ", Name: "Ana"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "ana@example.com", sub.Email)
	assert.Len(t, sub.UnsubscribeToken, 32)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"ana@example.com"}, mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].HTML, "https://itorigin.com/api/v1/subscribe/unsubscribe?token="+sub.UnsubscribeToken)

	again, created, err := svc.Subscribe(ctx, &SubscribeDTO{Email: "ana@example.com"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, sub.ID, again.ID)
	assert.Equal(t, "Ana", again.Name)
	assert.Len(t, mailer.sent, 1)
}

func TestSubscribeSurvivesMailFailure(t *testing.T) {
	svc := NewService(newMemStore(), &fakeMailer{err: errors.New("smtp down")}, "IT Origin", "https://itorigin.com", nil)
	_, created, err := svc.Subscribe(context.Background(), &SubscribeDTO{Email: "bo@example.com"})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestUnsubscribeAndResubscribe(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil, "IT Origin", "https://itorigin.com", nil)
	ctx := context.Background()
	sub, _, err := svc.Subscribe(ctx, &SubscribeDTO{Email: "cy@example.com"})
	require.NoError(t, err)

	require.NoError(t, svc.Unsubscribe(ctx, sub.UnsubscribeToken))
	require.NoError(t, svc.Unsubscribe(ctx, sub.UnsubscribeToken))
	active, err := svc.ActiveSubscribers(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	assert.ErrorIs(t, svc.Unsubscribe(ctx, "nope"), ErrNotFound)
	assert.ErrorIs(t, svc.Unsubscribe(ctx, ""), ErrNotFound)

	back, created, err := svc.Subscribe(ctx, &SubscribeDTO{Email: "cy@example.com"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, back.Active)
	assert.Equal(t, sub.UnsubscribeToken, back.UnsubscribeToken)
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newMemStore()
	svc := NewService(store, nil, "IT Origin", "https://itorigin.com", nil)
	r := gin.New()
	pass := func(c *gin.Context) { c.Next() }
	deny := func(c *gin.Context) { response.Unauthorized(c) }
	NewHandler(svc, nil).RegisterRoutes(r.Group("/api/v1"), deny, pass)

	send := func(method, target, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := send(http.MethodPost, "/api/v1/subscribe", `{"email":"not-an-email"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"email":"must be a valid email"`)

	assert.Equal(t, http.StatusCreated, send(http.MethodPost, "/api/v1/subscribe", `{"email":"dee@example.com"}`).Code)
	assert.Equal(t, http.StatusOK, send(http.MethodPost, "/api/v1/subscribe", `{"email":"dee@example.com"}`).Code)

	sub, _ := store.GetByEmail(context.Background(), "dee@example.com")
	require.NotNil(t, sub)
	assert.Equal(t, http.StatusBadRequest, send(http.MethodGet, "/api/v1/subscribe/unsubscribe", "").Code)
	assert.Equal(t, http.StatusNotFound, send(http.MethodGet, "/api/v1/subscribe/unsubscribe?token=zzz", "").Code)
	assert.Equal(t, http.StatusOK, send(http.MethodGet, "/api/v1/subscribe/unsubscribe?token="+sub.UnsubscribeToken, "").Code)

	assert.Equal(t, http.StatusUnauthorized, send(http.MethodGet, "/api/v1/subscribers", "").Code)
}
