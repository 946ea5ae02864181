package post

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	// maxSuffixAttempts counts the bare base plus base-1 .. base-99.
	maxSuffixAttempts = 100
	randomSuffixLen   = 6
	maxRandomAttempts = 5
)

// SlugChecker answers whether a slug is claimed by a live post or by a
// redirect row. excludeID names the post being edited; its own slug and its
// own historical slugs never count as a collision.
type SlugChecker interface {
	SlugTaken(ctx context.Context, slug, excludeID string) (bool, error)
	RedirectTaken(ctx context.Context, slug, excludeID string) (bool, error)
}

// SlugGenerator picks the first free candidate among base, base-1, base-2,
// ... and falls back to a random suffix once the numeric range is exhausted.
type SlugGenerator struct {
	randomSuffix func() string
}

func NewSlugGenerator() *SlugGenerator {
	return &SlugGenerator{randomSuffix: uuidSuffix}
}

// Generate returns a slug free at the time of the check. reserved holds
// candidates already lost to a concurrent writer in this request.
//
// Redirect old slugs count as taken unless they point at excludeID: a post may
// move back to one of its own earlier slugs. Its redirect row stays behind but
// is shadowed, since resolution looks at live slugs before redirects.
func (g *SlugGenerator) Generate(ctx context.Context, checker SlugChecker, base, excludeID string, reserved map[string]struct{}) (string, error) {
	for i := 0; i < maxSuffixAttempts; i++ {
		candidate := base
		if i > 0 {
			candidate = base + "-" + strconv.Itoa(i)
		}
		free, err := g.isFree(ctx, checker, candidate, excludeID, reserved)
		if err != nil {
			return "", err
		}
		if free {
			return candidate, nil
		}
	}

	for i := 0; i < maxRandomAttempts; i++ {
		candidate := base + "-" + g.randomSuffix()
		free, err := g.isFree(ctx, checker, candidate, excludeID, reserved)
		if err != nil {
			return "", err
		}
		if free {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no free slug for %q", ErrSlugConflict, base)
}

func (g *SlugGenerator) isFree(ctx context.Context, checker SlugChecker, candidate, excludeID string, reserved map[string]struct{}) (bool, error) {
	if _, ok := reserved[candidate]; ok {
		return false, nil
	}
	taken, err := checker.SlugTaken(ctx, candidate, excludeID)
	if err != nil || taken {
		return false, err
	}
	taken, err = checker.RedirectTaken(ctx, candidate, excludeID)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

func uuidSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:randomSuffixLen]
}
