package feed

import (
	"context"
	"encoding/xml"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/itorigin/site/internal/models"
	"github.com/itorigin/site/internal/modules/content/post"
	"github.com/itorigin/site/internal/pkg/markdown"
	"github.com/itorigin/site/internal/pkg/pagination"
	"github.com/itorigin/site/internal/pkg/response"
	"go.uber.org/zap"
)

const feedSize = 20

// Lister pages through posts.
type Lister interface {
	List(ctx context.Context, f post.ListFilter, q pagination.Query) ([]models.PostModel, response.Pagination, error)
}

// Site describes the channel.
type Site struct {
	Name        string
	URL         string
	Description string
}

// RegisterRoutes mounts the RSS feed of the latest published posts.
func RegisterRoutes(r gin.IRouter, posts Lister, site Site, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := func(c *gin.Context) {
		list, _, err := posts.List(c.Request.Context(),
			post.ListFilter{Status: models.PostStatusPublished},
			pagination.Query{Page: 1, Size: feedSize})
		if err != nil {
			logger.Error("build feed", zap.Error(err))
			c.String(http.StatusInternalServerError, "error generating feed")
			return
		}
		out, err := buildRSS(site, list, time.Now())
		if err != nil {
			logger.Error("encode feed", zap.Error(err))
			c.String(http.StatusInternalServerError, "error generating feed")
			return
		}
		c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", out)
	}
	r.GET("/feed", handler)
	r.GET("/feed.xml", handler)
}

type rss struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	Channel channel  `xml:"channel"`
}

type channel struct {
	Title         string `xml:"title"`
	Link          string `xml:"link"`
	Description   string `xml:"description"`
	LastBuildDate string `xml:"lastBuildDate"`
	Items         []item `xml:"item"`
}

type item struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	GUID        guid     `xml:"guid"`
	PubDate     string   `xml:"pubDate"`
	Categories  []string `xml:"category,omitempty"`
	Description cdata    `xml:"description"`
}

type guid struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type cdata struct {
	Value string `xml:",cdata"`
}

func buildRSS(site Site, posts []models.PostModel, now time.Time) ([]byte, error) {
	base := strings.TrimRight(site.URL, "/")
	doc := rss{
		Version: "2.0",
		Channel: channel{
			Title:         site.Name,
			Link:          base,
			Description:   site.Description,
			LastBuildDate: now.Format(time.RFC1123Z),
		},
	}
	for i := range posts {
		p := &posts[i]
		published := p.CreatedAt
		if p.PublishedAt != nil {
			published = *p.PublishedAt
		}
		it := item{
			Title:       p.Title,
			Link:        base + post.BlogPathPrefix + p.Slug,
			GUID:        guid{Value: p.ID},
			PubDate:     published.Format(time.RFC1123Z),
			Description: cdata{Value: string(markdown.Render(p.Content))},
		}
		if p.Category != nil {
			it.Categories = append(it.Categories, p.Category.Name)
		}
		doc.Channel.Items = append(doc.Channel.Items, it)
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
