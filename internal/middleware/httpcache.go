package middleware

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/itorigin/site/internal/pkg/metrics"
)

const (
	APICachePrefix          = "ito-http-cache:"
	defaultHTTPCacheTTL     = 30 * time.Second
	defaultHTTPCacheMaxBody = 1 << 20 // 1 MiB
)

// CacheStore is the key/value backend of the response cache.
type CacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type HTTPCacheOptions struct {
	TTL          time.Duration
	Disable      bool
	SkipPaths    []string
	MaxBodyBytes int
	Metrics      *metrics.Metrics
}

type cachedHTTPResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Location    string `json:"location,omitempty"`
	BodyBase64  string `json:"body_base64"`
}

type cacheBodyWriter struct {
	gin.ResponseWriter
	body         []byte
	maxBodyBytes int
	overflow     bool
}

func (w *cacheBodyWriter) Write(data []byte) (int, error) {
	w.capture(data)
	return w.ResponseWriter.Write(data)
}

func (w *cacheBodyWriter) WriteString(s string) (int, error) {
	w.capture([]byte(s))
	return w.ResponseWriter.WriteString(s)
}

func (w *cacheBodyWriter) capture(data []byte) {
	if w.overflow || len(data) == 0 {
		return
	}
	if len(w.body)+len(data) > w.maxBodyBytes {
		w.overflow = true
		w.body = nil
		return
	}
	w.body = append(w.body, data...)
}

// HTTPCache caches anonymous GET responses keyed by request URI. Permanent
// redirects are cached as well so that the invalidator can drop them when a
// slug moves again.
func HTTPCache(store CacheStore, opts HTTPCacheOptions) gin.HandlerFunc {
	if opts.TTL <= 0 {
		opts.TTL = defaultHTTPCacheTTL
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultHTTPCacheMaxBody
	}
	return func(c *gin.Context) {
		if opts.Disable || store == nil || c.Request.Method != http.MethodGet ||
			IsAuthenticated(c) || hasAuthHeader(c) ||
			shouldSkipCachePath(c.Request.URL.Path, opts.SkipPaths) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := APICachePrefix + c.Request.URL.RequestURI()
		if payload, body, ok := readCachedResponse(ctx, store, cacheKey); ok {
			opts.Metrics.RecordCache(ctx, true)
			c.Header("X-Cache", "hit")
			if payload.Location != "" {
				c.Header("Location", payload.Location)
			}
			c.Data(payload.Status, payload.ContentType, body)
			c.Abort()
			return
		}
		opts.Metrics.RecordCache(ctx, false)

		buffer := &cacheBodyWriter{ResponseWriter: c.Writer, maxBodyBytes: opts.MaxBodyBytes}
		c.Writer = buffer
		c.Next()

		status := c.Writer.Status()
		if !isCacheableResponse(status, c.Writer.Header()) || buffer.overflow {
			return
		}

		raw, err := json.Marshal(cachedHTTPResponse{
			Status:      status,
			ContentType: c.Writer.Header().Get("Content-Type"),
			Location:    c.Writer.Header().Get("Location"),
			BodyBase64:  base64.StdEncoding.EncodeToString(buffer.body),
		})
		if err != nil {
			return
		}
		_ = store.Set(ctx, cacheKey, string(raw), opts.TTL)
	}
}

// HTTPCacheInvalidator drops cached responses for specific paths.
type HTTPCacheInvalidator struct {
	store CacheStore
}

func NewHTTPCacheInvalidator(store CacheStore) *HTTPCacheInvalidator {
	return &HTTPCacheInvalidator{store: store}
}

// PurgePaths removes the cached entry of each path, with or without a query string.
func (i *HTTPCacheInvalidator) PurgePaths(ctx context.Context, paths ...string) error {
	if i == nil || i.store == nil {
		return nil
	}
	var errs []error
	for _, p := range paths {
		if p == "" {
			continue
		}
		key := APICachePrefix + p
		if err := i.store.Del(ctx, key); err != nil {
			errs = append(errs, err)
		}
		if err := i.store.DeleteByPattern(ctx, escapeGlob(key)+`\?*`); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PurgePrefix removes every cached entry whose URI starts with prefix.
func (i *HTTPCacheInvalidator) PurgePrefix(ctx context.Context, prefix string) error {
	if i == nil || i.store == nil {
		return nil
	}
	return i.store.DeleteByPattern(ctx, escapeGlob(APICachePrefix+prefix)+"*")
}

func readCachedResponse(ctx context.Context, store CacheStore, cacheKey string) (cachedHTTPResponse, []byte, bool) {
	raw, err := store.Get(ctx, cacheKey)
	if err != nil || raw == "" {
		return cachedHTTPResponse{}, nil, false
	}
	var payload cachedHTTPResponse
	if err := json.Unmarshal([]byte(raw), &payload); err != nil || payload.Status <= 0 {
		return cachedHTTPResponse{}, nil, false
	}
	body, err := base64.StdEncoding.DecodeString(payload.BodyBase64)
	if err != nil {
		return cachedHTTPResponse{}, nil, false
	}
	if payload.ContentType == "" {
		payload.ContentType = "application/json; charset=utf-8"
	}
	return payload, body, true
}

func hasAuthHeader(c *gin.Context) bool {
	return strings.TrimSpace(c.GetHeader("Authorization")) != ""
}

func shouldSkipCachePath(path string, patterns []string) bool {
	for _, pattern := range patterns {
		p := strings.TrimSpace(pattern)
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "*") {
			if strings.HasPrefix(path, strings.TrimSuffix(p, "*")) {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}

func isCacheableResponse(status int, headers http.Header) bool {
	if status != http.StatusOK && status != http.StatusPermanentRedirect {
		return false
	}
	cacheControl := strings.ToLower(headers.Get("Cache-Control"))
	return !strings.Contains(cacheControl, "no-store") && !strings.Contains(cacheControl, "private")
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
