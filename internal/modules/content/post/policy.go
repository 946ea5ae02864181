package post

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/itorigin/site/internal/models"
	slugpkg "github.com/itorigin/site/internal/pkg/slug"
)

const (
	wordsPerMinute  = 200
	fallbackSlug    = "post"
	maxTitleLength  = 191
	maxExcerptRunes = 1000
)

// ReadingTime estimates minutes at wordsPerMinute, rounded up, never below 1.
func ReadingTime(content string) int {
	words := len(strings.Fields(content))
	minutes := int(math.Ceil(float64(words) / wordsPerMinute))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// titleSlug derives the base slug for a title, falling back to a fixed word
// for titles with nothing sluggable in them.
func titleSlug(title string) string {
	if s := slugpkg.Make(title); s != "" {
		return s
	}
	return fallbackSlug
}

// slugPlan is the outcome of the slug precedence rules for one edit.
type slugPlan struct {
	// base is the candidate to make unique; empty keeps the current slug.
	base   string
	locked bool
}

// planSlug applies the edit precedence: an explicit slug that differs from
// the current one wins and locks; otherwise a title change regenerates
// unless the (possibly just toggled) lock is set.
func planSlug(p *models.PostModel, in UpdateInput, explicit string) slugPlan {
	plan := slugPlan{locked: p.SlugLocked}
	if in.SlugLocked != nil {
		plan.locked = *in.SlugLocked
	}

	if in.Slug != nil && explicit != p.Slug {
		plan.base = explicit
		plan.locked = true
		return plan
	}

	if in.Title != nil && strings.TrimSpace(*in.Title) != p.Title && !plan.locked {
		plan.base = titleSlug(*in.Title)
	}
	return plan
}

// applyStatus performs a status change. publishedAt is stamped only on a
// draft to published transition when it has never been set.
func applyStatus(p *models.PostModel, next models.PostStatus, now time.Time) {
	if p.Status == models.PostStatusDraft && next == models.PostStatusPublished && p.PublishedAt == nil {
		t := now
		p.PublishedAt = &t
	}
	p.Status = next
}

func validateTitle(fe fieldErrors, title string) {
	switch {
	case title == "":
		fe.add("title", "is required")
	case utf8.RuneCountInString(title) > maxTitleLength:
		fe.add("title", "is too long")
	}
}

func validateExcerpt(fe fieldErrors, excerpt string) {
	if utf8.RuneCountInString(excerpt) > maxExcerptRunes {
		fe.add("excerpt", "is too long")
	}
}

func validateStatus(fe fieldErrors, status models.PostStatus) {
	if !status.Valid() {
		fe.add("status", "must be one of: draft published")
	}
}

func normalizeExplicitSlug(fe fieldErrors, raw string) string {
	s, err := slugpkg.Normalize(raw)
	if err != nil {
		fe.add("slug", err.Error())
		return ""
	}
	return s
}
