package crontask

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/itorigin/site/internal/middleware"
	"github.com/itorigin/site/internal/models"
	pkgcron "github.com/itorigin/site/internal/pkg/cron"
	"github.com/itorigin/site/internal/pkg/response"
	"go.uber.org/zap"
)

// Handler exposes the scheduler to admins: job status and manual runs.
type Handler struct {
	sched  *pkgcron.Scheduler
	logger *zap.Logger
}

func NewHandler(sched *pkgcron.Scheduler, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sched: sched, logger: logger.Named("crontask.http")}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/cron-task", authMW, middleware.RequireRole(models.RoleAdmin))
	g.GET("", h.list)
	g.GET("/:name", h.get)
	g.POST("/:name/run", h.run)
}

// list GET /cron-task
func (h *Handler) list(c *gin.Context) {
	response.OK(c, h.sched.List())
}

// get GET /cron-task/:name
func (h *Handler) get(c *gin.Context) {
	item, err := h.sched.Get(c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, item)
}

// run POST /cron-task/:name/run returns 202 once the job has started.
func (h *Handler) run(c *gin.Context) {
	name := c.Param("name")
	if err := h.sched.Run(c.Request.Context(), name); err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info("job triggered manually", zap.String("job", name), zap.String("by", middleware.CurrentUserID(c)))
	c.JSON(http.StatusAccepted, gin.H{"name": name, "status": pkgcron.StatusRunning})
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pkgcron.ErrJobNotFound):
		response.NotFoundMsg(c, "cron job not found")
	case errors.Is(err, pkgcron.ErrJobRunning):
		response.Conflict(c, "cron job is already running")
	default:
		response.InternalError(c, err)
	}
}
