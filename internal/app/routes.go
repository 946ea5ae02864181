package app

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/itorigin/site/internal/middleware"
	"github.com/itorigin/site/internal/modules/content/category"
	"github.com/itorigin/site/internal/modules/content/post"
	"github.com/itorigin/site/internal/modules/processing/chat"
	"github.com/itorigin/site/internal/modules/render"
	"github.com/itorigin/site/internal/modules/storage/resource"
	"github.com/itorigin/site/internal/modules/syndication/campaign"
	"github.com/itorigin/site/internal/modules/syndication/feed"
	"github.com/itorigin/site/internal/modules/syndication/sitemap"
	"github.com/itorigin/site/internal/modules/syndication/subscribe"
	"github.com/itorigin/site/internal/modules/tasks/crontask"
	"github.com/itorigin/site/internal/modules/user"
	jwtpkg "github.com/itorigin/site/internal/pkg/jwt"
	pkgmail "github.com/itorigin/site/internal/pkg/mail"
	"github.com/itorigin/site/internal/pkg/response"
	"go.uber.org/zap"
)

const (
	apiPrefix          = "/api/v1"
	subscribeRateLimit = 5
	downloadRateLimit  = 10
)

// registerRoutes wires every module and returns the campaign service for
// the scheduler.
func (a *App) registerRoutes(loc *time.Location) *campaign.Service {
	cfg := a.cfg
	logger := a.logger

	cache := middleware.NewHTTPCacheInvalidator(a.rc)
	a.router.Use(middleware.HTTPCache(a.rc, middleware.HTTPCacheOptions{
		Disable:   cfg.IsDev(),
		SkipPaths: []string{"/metrics", apiPrefix + "/subscribe*", apiPrefix + "/user*", apiPrefix + "/admin*"},
		Metrics:   a.metrics,
	}))

	limit := func(scope string, max int) gin.HandlerFunc {
		return middleware.RateLimit(a.rc, middleware.RateLimitOptions{Scope: scope, Max: int64(max), Window: time.Minute})
	}

	users := user.NewService(user.NewGormStore(a.db), jwtpkg.NewManager(cfg.JWTSecret, 0), logger)
	authMW := middleware.Auth(users)
	optionalAuthMW := middleware.OptionalAuth(users)

	// Nil interfaces, not typed nils, keep the "not configured" checks working.
	var mailer interface {
		subscribe.Mailer
		campaign.Sender
	}
	if cfg.Mail.Enabled() {
		mailer = pkgmail.New(pkgmail.BuildConfig(cfg.Mail))
	} else {
		logger.Info("mail is not configured, welcome emails and campaigns are disabled")
	}

	var presigner resource.Presigner
	if p, err := resource.NewS3Presigner(cfg.Storage); err == nil {
		presigner = p
	} else if !errors.Is(err, resource.ErrStorageDisabled) {
		logger.Error("resource storage", zap.Error(err))
	}

	var completer chat.Completer
	if c, err := chat.NewCompleter(cfg.AI); err == nil {
		completer = c
	} else if !errors.Is(err, chat.ErrDisabled) {
		logger.Error("chat provider", zap.Error(err))
	}

	posts := post.NewService(post.NewGormStore(a.db), logger, a.metrics)
	terms := category.NewService(category.NewGormStore(a.db))
	subscribers := subscribe.NewService(subscribe.NewGormStore(a.db), mailer, cfg.Site.Name, cfg.Site.URL, logger)
	campaigns := campaign.NewService(campaign.NewGormStore(a.db), subscribers, mailer, campaign.Options{
		SiteName:  cfg.Site.Name,
		BatchSize: cfg.Campaign.BatchSize,
		Location:  loc,
		Metrics:   a.metrics,
	}, logger)
	resources := resource.NewService(resource.NewGormStore(a.db), presigner, a.metrics, logger)
	assistant := chat.NewService(completer, cfg.Site.Name, a.metrics, logger)

	pages := render.NewHandler(posts, cfg.Site.Name, logger)
	pages.RegisterPages(a.router)
	feed.RegisterRoutes(a.router, posts, feed.Site{
		Name:        cfg.Site.Name,
		URL:         cfg.Site.URL,
		Description: "Security research, guides and news from " + cfg.Site.Name,
	}, logger)
	sitemap.RegisterRoutes(a.router, posts, cfg.Site.URL, logger)

	api := a.router.Group(apiPrefix)
	api.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	user.NewHandler(users, logger).RegisterRoutes(api, authMW)
	post.NewHandler(posts, cache, logger).RegisterRoutes(api, authMW, optionalAuthMW)
	category.NewHandler(terms, cache, logger).RegisterRoutes(api, authMW)
	pages.RegisterRoutes(api, authMW)
	subscribe.NewHandler(subscribers, logger).RegisterRoutes(api, authMW, limit("subscribe", subscribeRateLimit))
	campaign.NewHandler(campaigns, logger).RegisterRoutes(api, authMW)
	resource.NewHandler(resources, logger).RegisterRoutes(api, authMW, limit("download", downloadRateLimit))
	chat.NewHandler(assistant, logger).RegisterRoutes(api, limit("chat", cfg.Chat.RateLimitPerMinute))
	crontask.NewHandler(a.sched, logger).RegisterRoutes(api, authMW)

	return campaigns
}
