package post

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/itorigin/site/internal/models"
	"github.com/itorigin/site/internal/pkg/pagination"
	"github.com/itorigin/site/internal/pkg/response"
)

// memState is the committed content of memStore.
type memState struct {
	posts      map[string]models.PostModel
	postTags   map[string][]string
	redirects  map[string]models.PostRedirectModel
	categories map[string]models.CategoryModel
	tags       map[string]models.TagModel
}

func (s memState) clone() memState {
	c := memState{
		posts:      make(map[string]models.PostModel, len(s.posts)),
		postTags:   make(map[string][]string, len(s.postTags)),
		redirects:  make(map[string]models.PostRedirectModel, len(s.redirects)),
		categories: s.categories,
		tags:       s.tags,
	}
	for k, v := range s.posts {
		c.posts[k] = v
	}
	for k, v := range s.postTags {
		c.postTags[k] = append([]string(nil), v...)
	}
	for k, v := range s.redirects {
		c.redirects[k] = v
	}
	return c
}

// memStore is a single-goroutine Store enforcing the same unique indexes as
// the SQL schema. Transactions snapshot and restore state on error.
type memStore struct {
	state memState
	now   func() time.Time

	// raceOn simulates a concurrent writer: the first write of one of these
	// slugs inserts a competing post that commits first, then fails with
	// ErrSlugConflict.
	raceOn map[string]bool
	// pending holds competitor rows that survive a rollback.
	pending []models.PostModel

	redirectUpserts int
	viewIncrements  int
}

func newMemStore() *memStore {
	return &memStore{
		state: memState{
			posts:      map[string]models.PostModel{},
			postTags:   map[string][]string{},
			redirects:  map[string]models.PostRedirectModel{},
			categories: map[string]models.CategoryModel{},
			tags:       map[string]models.TagModel{},
		},
		now:    time.Now,
		raceOn: map[string]bool{},
	}
}

func (m *memStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	snapshot := m.state.clone()
	if err := fn(m); err != nil {
		m.state = snapshot
		for _, p := range m.pending {
			m.state.posts[p.ID] = p
		}
		m.pending = nil
		return err
	}
	m.pending = nil
	return nil
}

func (m *memStore) SlugTaken(_ context.Context, slug, excludeID string) (bool, error) {
	for id, p := range m.state.posts {
		if p.Slug == slug && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) RedirectTaken(_ context.Context, slug, excludeID string) (bool, error) {
	r, ok := m.state.redirects[slug]
	return ok && r.PostID != excludeID, nil
}

func (m *memStore) checkUnique(p *models.PostModel) error {
	if m.raceOn[p.Slug] {
		delete(m.raceOn, p.Slug)
		competitor := models.PostModel{
			Base:   models.Base{ID: uuid.NewString(), CreatedAt: m.now()},
			Slug:   p.Slug,
			Title:  "concurrent writer",
			Status: models.PostStatusDraft,
		}
		m.state.posts[competitor.ID] = competitor
		m.pending = append(m.pending, competitor)
		return fmt.Errorf("%w: duplicate entry %q", ErrSlugConflict, p.Slug)
	}
	for id, other := range m.state.posts {
		if other.Slug == p.Slug && id != p.ID {
			return fmt.Errorf("%w: duplicate entry %q", ErrSlugConflict, p.Slug)
		}
	}
	return nil
}

func (m *memStore) CreatePost(_ context.Context, p *models.PostModel) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := m.checkUnique(p); err != nil {
		return err
	}
	now := m.now()
	p.CreatedAt, p.UpdatedAt = now, now
	row := *p
	row.Category, row.Tags = nil, nil
	m.state.posts[p.ID] = row
	return nil
}

func (m *memStore) UpdatePost(_ context.Context, p *models.PostModel) error {
	if _, ok := m.state.posts[p.ID]; !ok {
		return fmt.Errorf("update of missing post %s", p.ID)
	}
	if err := m.checkUnique(p); err != nil {
		return err
	}
	p.UpdatedAt = m.now()
	row := *p
	row.Category, row.Tags = nil, nil
	m.state.posts[p.ID] = row
	return nil
}

func (m *memStore) hydrate(p models.PostModel) *models.PostModel {
	if p.CategoryID != nil {
		if c, ok := m.state.categories[*p.CategoryID]; ok {
			p.Category = &c
		}
	}
	p.Tags = []models.TagModel{}
	for _, id := range m.state.postTags[p.ID] {
		p.Tags = append(p.Tags, m.state.tags[id])
	}
	return &p
}

func (m *memStore) GetPost(_ context.Context, id string, _ bool) (*models.PostModel, error) {
	p, ok := m.state.posts[id]
	if !ok {
		return nil, nil
	}
	return m.hydrate(p), nil
}

func (m *memStore) GetPublishedBySlug(_ context.Context, slug string) (*models.PostModel, error) {
	for _, p := range m.state.posts {
		if p.Slug == slug && p.Status == models.PostStatusPublished {
			return m.hydrate(p), nil
		}
	}
	return nil, nil
}

func (m *memStore) DeletePost(_ context.Context, id string) error {
	delete(m.state.posts, id)
	delete(m.state.postTags, id)
	return nil
}

func (m *memStore) IncrementViewCount(_ context.Context, id string) error {
	p, ok := m.state.posts[id]
	if !ok {
		return nil
	}
	p.ViewCount++
	m.state.posts[id] = p
	m.viewIncrements++
	return nil
}

func (m *memStore) ListPosts(_ context.Context, f ListFilter, q pagination.Query) ([]models.PostModel, response.Pagination, error) {
	var matched []models.PostModel
	for _, p := range m.state.posts {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		full := m.hydrate(p)
		if f.Category != "" && (full.Category == nil || full.Category.Slug != f.Category) {
			continue
		}
		if f.Tag != "" && !hasTag(full.Tags, f.Tag) {
			continue
		}
		matched = append(matched, *full)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	start := q.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + q.Size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], response.NewPagination(total, q.Page, q.Size), nil
}

func hasTag(tags []models.TagModel, slug string) bool {
	for _, t := range tags {
		if t.Slug == slug {
			return true
		}
	}
	return false
}

func (m *memStore) GetRedirect(_ context.Context, oldSlug string) (*models.PostRedirectModel, error) {
	r, ok := m.state.redirects[oldSlug]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memStore) UpsertRedirect(_ context.Context, oldSlug, postID string) error {
	m.redirectUpserts++
	now := m.now()
	r, ok := m.state.redirects[oldSlug]
	if !ok {
		r = models.PostRedirectModel{ID: uint(len(m.state.redirects) + 1), OldSlug: oldSlug, CreatedAt: now}
	}
	r.PostID = postID
	r.UpdatedAt = now
	m.state.redirects[oldSlug] = r
	return nil
}

func (m *memStore) CategoryExists(_ context.Context, id string) (bool, error) {
	_, ok := m.state.categories[id]
	return ok, nil
}

func (m *memStore) FindTags(_ context.Context, ids []string) ([]models.TagModel, error) {
	var out []models.TagModel
	for _, id := range ids {
		if t, ok := m.state.tags[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) ReplaceTags(_ context.Context, p *models.PostModel, tags []models.TagModel) error {
	ids := make([]string, 0, len(tags))
	for _, t := range tags {
		ids = append(ids, t.ID)
	}
	m.state.postTags[p.ID] = ids
	return nil
}

func (m *memStore) addCategory(name, slug string) string {
	id := uuid.NewString()
	m.state.categories[id] = models.CategoryModel{Base: models.Base{ID: id}, Name: name, Slug: slug}
	return id
}

func (m *memStore) addTag(name, slug string) string {
	id := uuid.NewString()
	m.state.tags[id] = models.TagModel{Base: models.Base{ID: id}, Name: name, Slug: slug}
	return id
}

// seedPost inserts a row directly, bypassing slug generation, to model data
// written before the generator existed.
func (m *memStore) seedPost(slug string, status models.PostStatus) string {
	id := uuid.NewString()
	m.state.posts[id] = models.PostModel{
		Base:   models.Base{ID: id, CreatedAt: m.now()},
		Slug:   slug,
		Title:  slug,
		Status: status,
	}
	return id
}
