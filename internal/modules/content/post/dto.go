package post

import (
	"time"

	"github.com/itorigin/site/internal/models"
)

// CreatePostDTO is the request body for creating a post.
type CreatePostDTO struct {
	Title      string            `json:"title"      binding:"required,max=191"`
	Slug       string            `json:"slug"       binding:"omitempty,max=160"`
	Excerpt    string            `json:"excerpt"`
	Content    string            `json:"content"`
	Status     models.PostStatus `json:"status"     binding:"omitempty,oneof=draft published"`
	CategoryID *string           `json:"categoryId"`
	TagIDs     []string          `json:"tagIds"`
}

func (d *CreatePostDTO) input(authorID string) CreateInput {
	return CreateInput{
		Title:      d.Title,
		Slug:       d.Slug,
		Excerpt:    d.Excerpt,
		Content:    d.Content,
		Status:     d.Status,
		CategoryID: d.CategoryID,
		TagIDs:     d.TagIDs,
		AuthorID:   authorID,
	}
}

// UpdatePostDTO is the partial edit payload; absent fields are unchanged.
type UpdatePostDTO struct {
	Title      *string            `json:"title"`
	Slug       *string            `json:"slug"`
	SlugLocked *bool              `json:"slugLocked"`
	Excerpt    *string            `json:"excerpt"`
	Content    *string            `json:"content"`
	Status     *models.PostStatus `json:"status"`
	CategoryID *string            `json:"categoryId"`
	TagIDs     *[]string          `json:"tagIds"`
}

func (d *UpdatePostDTO) input() UpdateInput {
	return UpdateInput{
		Title:      d.Title,
		Slug:       d.Slug,
		SlugLocked: d.SlugLocked,
		Excerpt:    d.Excerpt,
		Content:    d.Content,
		Status:     d.Status,
		CategoryID: d.CategoryID,
		TagIDs:     d.TagIDs,
	}
}

// ListQuery holds query params for listing posts.
type ListQuery struct {
	Status   string `form:"status"   binding:"omitempty,oneof=draft published"`
	Category string `form:"category"`
	Tag      string `form:"tag"`
}

type taxonomyResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// postResponse is the API response shape for a post.
type postResponse struct {
	ID          string             `json:"id"`
	Slug        string             `json:"slug"`
	Title       string             `json:"title"`
	Excerpt     string             `json:"excerpt"`
	Content     string             `json:"content,omitempty"`
	Status      models.PostStatus  `json:"status"`
	SlugLocked  bool               `json:"slugLocked"`
	PublishedAt *time.Time         `json:"publishedAt"`
	ReadingTime int                `json:"readingTime"`
	ViewCount   int64              `json:"viewCount"`
	AuthorID    string             `json:"authorId"`
	CategoryID  *string            `json:"categoryId"`
	Category    *taxonomyResponse  `json:"category"`
	Tags        []taxonomyResponse `json:"tags"`
	Created     time.Time          `json:"created"`
	Modified    time.Time          `json:"modified"`
}

type updateResponse struct {
	postResponse
	SlugChanged  bool    `json:"slugChanged"`
	PreviousSlug *string `json:"previousSlug"`
}

func toResponse(p *models.PostModel, withContent bool) postResponse {
	resp := postResponse{
		ID:          p.ID,
		Slug:        p.Slug,
		Title:       p.Title,
		Excerpt:     p.Excerpt,
		Status:      p.Status,
		SlugLocked:  p.SlugLocked,
		PublishedAt: p.PublishedAt,
		ReadingTime: p.ReadingTime,
		ViewCount:   p.ViewCount,
		AuthorID:    p.AuthorID,
		CategoryID:  p.CategoryID,
		Tags:        make([]taxonomyResponse, 0, len(p.Tags)),
		Created:     p.CreatedAt,
		Modified:    p.UpdatedAt,
	}
	if withContent {
		resp.Content = p.Content
	}
	if p.Category != nil {
		resp.Category = &taxonomyResponse{ID: p.Category.ID, Name: p.Category.Name, Slug: p.Category.Slug}
	}
	for _, t := range p.Tags {
		resp.Tags = append(resp.Tags, taxonomyResponse{ID: t.ID, Name: t.Name, Slug: t.Slug})
	}
	return resp
}
