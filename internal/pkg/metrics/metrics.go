package metrics

import (
	"context"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the application instruments. A nil *Metrics is valid and
// records nothing, so services can be built without a provider in tests.
type Metrics struct {
	HTTPRequests    metric.Int64Counter
	HTTPDuration    metric.Float64Histogram
	CacheHits       metric.Int64Counter
	CacheMisses     metric.Int64Counter
	SlugRedirects   metric.Int64Counter
	SlugConflicts   metric.Int64Counter
	CampaignEmails  metric.Int64Counter
	ResourceLeads   metric.Int64Counter
	ChatCompletions metric.Int64Counter
}

// Setup builds a meter provider backed by its own Prometheus registry and
// returns the scrape handler for /metrics.
func Setup(serviceName string) (*Metrics, http.Handler, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(serviceName)

	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.HTTPRequests, "ito_http_requests_total", "Total number of HTTP requests"},
		{&m.CacheHits, "ito_http_cache_hits_total", "Responses served from the HTTP cache"},
		{&m.CacheMisses, "ito_http_cache_misses_total", "Cacheable requests that missed the HTTP cache"},
		{&m.SlugRedirects, "ito_slug_redirects_total", "Post lookups answered with a permanent redirect"},
		{&m.SlugConflicts, "ito_slug_conflicts_total", "Slug writes retried after a unique-constraint violation"},
		{&m.CampaignEmails, "ito_campaign_emails_total", "Campaign emails by delivery result"},
		{&m.ResourceLeads, "ito_resource_leads_total", "Whitepaper download leads captured"},
		{&m.ChatCompletions, "ito_chat_completions_total", "AI chat completions by result"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, nil, err
		}
	}

	m.HTTPDuration, err = meter.Float64Histogram(
		"ito_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}

func (m *Metrics) RecordCache(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Add(ctx, 1)
		return
	}
	m.CacheMisses.Add(ctx, 1)
}

func (m *Metrics) RecordSlugRedirect(ctx context.Context) {
	if m == nil {
		return
	}
	m.SlugRedirects.Add(ctx, 1)
}

func (m *Metrics) RecordSlugConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.SlugConflicts.Add(ctx, 1)
}

func (m *Metrics) RecordCampaignEmails(ctx context.Context, sent, failed int) {
	if m == nil {
		return
	}
	m.CampaignEmails.Add(ctx, int64(sent), metric.WithAttributes(attribute.String("result", "sent")))
	m.CampaignEmails.Add(ctx, int64(failed), metric.WithAttributes(attribute.String("result", "failed")))
}

func (m *Metrics) RecordLead(ctx context.Context, resource string) {
	if m == nil {
		return
	}
	m.ResourceLeads.Add(ctx, 1, metric.WithAttributes(attribute.String("resource", resource)))
}

func (m *Metrics) RecordChat(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.ChatCompletions.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
