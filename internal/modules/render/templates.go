package render

import "html/template"

const layout = `{{define "layout"}}<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{if .Title}}{{.Title}} | {{end}}{{.Site}}</title>
  {{- if .Excerpt}}
  <meta name="description" content="{{.Excerpt}}" />
  {{- end}}
  {{- if .NoIndex}}
  <meta name="robots" content="noindex" />
  {{- end}}
  <style>
    body { margin: 0; padding: 24px; font: 16px/1.7 -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; color: #222; background: #fff; }
    main { max-width: 860px; margin: 0 auto; }
    h1 { margin: 0 0 12px; font-size: 32px; }
    .meta { color: #666; font-size: 14px; margin-bottom: 24px; }
    .tags span { display: inline-block; margin-right: 8px; padding: 0 8px; border-radius: 4px; background: #f0f0f0; }
    pre { white-space: pre-wrap; word-break: break-word; border: 1px solid #eee; border-radius: 8px; padding: 16px; background: #fafafa; }
  </style>
</head>
<body>
  <main>{{template "content" .}}</main>
</body>
</html>
{{end}}`

var (
	postTmpl = template.Must(template.Must(template.New("post").Parse(layout)).Parse(`{{define "content"}}
    <article>
      <h1>{{.Title}}</h1>
      <div class="meta">
        {{- if .PublishedAt}}<time datetime="{{.PublishedAt.Format "2006-01-02T15:04:05Z07:00"}}">{{.PublishedAt.Format "January 2, 2006"}}</time> · {{end -}}
        {{.ReadingTime}} min read
        {{- if .Category}} · {{.Category}}{{end}}
      </div>
      {{- if .Tags}}
      <div class="tags">{{range .Tags}}<span>{{.}}</span>{{end}}</div>
      {{- end}}
      {{.Body}}
    </article>
{{end}}{{template "layout" .}}`))

	notFoundTmpl = template.Must(template.Must(template.New("not-found").Parse(layout)).Parse(`{{define "content"}}
    <h1>Page not found</h1>
    <p>The article you are looking for does not exist or is no longer available.</p>
    <p><a href="/">Back to {{.Site}}</a></p>
{{end}}{{template "layout" .}}`))

	errorTmpl = template.Must(template.Must(template.New("error").Parse(layout)).Parse(`{{define "content"}}
    <h1>Something went wrong</h1>
    <p>Please try again in a moment.</p>
{{end}}{{template "layout" .}}`))
)
