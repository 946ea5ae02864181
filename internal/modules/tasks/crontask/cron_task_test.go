package crontask

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	pkgcron "github.com/itorigin/site/internal/pkg/cron"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sched := pkgcron.New(nil)
	ran := make(chan struct{}, 1)
	sched.Register(pkgcron.Job{
		Name:        "send-campaigns",
		Description: "send due campaigns",
		Interval:    time.Hour,
		Fn: func(context.Context) error {
			ran <- struct{}{}
			return nil
		},
	})

	r := gin.New()
	admin := func(c *gin.Context) {
		c.Set("user_id", "u1")
		c.Set("user_role", "admin")
		c.Next()
	}
	NewHandler(sched, nil).RegisterRoutes(r.Group("/api/v1"), admin)

	do := func(method, target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
		return w
	}

	w := do(http.MethodGet, "/api/v1/cron-task")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"send-campaigns"`)

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/api/v1/cron-task/send-campaigns").Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/api/v1/cron-task/nope").Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodPost, "/api/v1/cron-task/nope/run").Code)

	assert.Equal(t, http.StatusAccepted, do(http.MethodPost, "/api/v1/cron-task/send-campaigns/run").Code)
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
}
