package sitemap

import (
	"context"
	"encoding/xml"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/itorigin/site/internal/models"
	"github.com/itorigin/site/internal/modules/content/post"
	"github.com/itorigin/site/internal/pkg/pagination"
	"github.com/itorigin/site/internal/pkg/response"
	"go.uber.org/zap"
)

// maxURLs is the per-file limit of the sitemap protocol.
const maxURLs = 50000

type Lister interface {
	List(ctx context.Context, f post.ListFilter, q pagination.Query) ([]models.PostModel, response.Pagination, error)
}

func RegisterRoutes(r gin.IRouter, posts Lister, siteURL string, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := func(c *gin.Context) {
		out, err := build(c.Request.Context(), posts, siteURL)
		if err != nil {
			logger.Error("build sitemap", zap.Error(err))
			c.String(http.StatusInternalServerError, "error generating sitemap")
			return
		}
		c.Data(http.StatusOK, "application/xml; charset=utf-8", out)
	}
	r.GET("/sitemap.xml", handler)
	r.GET("/sitemap", handler)
}

type urlset struct {
	XMLName xml.Name `xml:"http://www.sitemaps.org/schemas/sitemap/0.9 urlset"`
	URLs    []url    `xml:"url"`
}

type url struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

func build(ctx context.Context, posts Lister, siteURL string) ([]byte, error) {
	base := strings.TrimRight(siteURL, "/")
	set := urlset{URLs: []url{{Loc: base + "/", ChangeFreq: "daily", Priority: "1.0"}}}

	q := pagination.Query{Page: 1, Size: pagination.MaxSize}
	for len(set.URLs) < maxURLs {
		page, pag, err := posts.List(ctx, post.ListFilter{Status: models.PostStatusPublished}, q)
		if err != nil {
			return nil, err
		}
		for _, p := range page {
			set.URLs = append(set.URLs, url{
				Loc:        base + post.BlogPathPrefix + p.Slug,
				LastMod:    p.UpdatedAt.Format("2006-01-02"),
				ChangeFreq: "weekly",
				Priority:   "0.8",
			})
		}
		if !pag.HasNextPage {
			break
		}
		q.Page++
	}

	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
