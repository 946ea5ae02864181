package models

import "time"

// PostStatus is the publication state of a post.
type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusPublished PostStatus = "published"
)

// Valid reports whether s is a known status.
func (s PostStatus) Valid() bool {
	return s == PostStatusDraft || s == PostStatusPublished
}

// PostModel is a blog post.
type PostModel struct {
	Base
	Slug        string         `json:"slug"         gorm:"size:191;uniqueIndex;not null"`
	Title       string         `json:"title"        gorm:"not null"`
	Excerpt     string         `json:"excerpt"      gorm:"type:text"`
	Content     string         `json:"content"      gorm:"type:longtext"`
	Status      PostStatus     `json:"status"       gorm:"size:16;index;not null;default:'draft'"`
	SlugLocked  bool           `json:"slug_locked"  gorm:"not null;default:false"`
	PublishedAt *time.Time     `json:"published_at" gorm:"index"`
	ReadingTime int            `json:"reading_time" gorm:"not null;default:1"`
	ViewCount   int64          `json:"view_count"   gorm:"column:view_count;not null;default:0"`
	AuthorID    string         `json:"author_id"    gorm:"type:char(36);index"`
	CategoryID  *string        `json:"category_id"  gorm:"type:char(36);index"`
	Category    *CategoryModel `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	Tags        []TagModel     `json:"tags"         gorm:"many2many:post_tags;joinForeignKey:PostID;joinReferences:TagID"`
}

func (PostModel) TableName() string { return "posts" }

// IsPublished reports whether the post is publicly visible.
func (p *PostModel) IsPublished() bool { return p.Status == PostStatusPublished }

// PostRedirectModel maps a slug a post used to own to that post.
// PostID is deliberately not a foreign key: rows outlive deleted posts and
// resolve to not-found through the liveness check on read.
type PostRedirectModel struct {
	ID        uint      `json:"-"        gorm:"primaryKey;autoIncrement"`
	OldSlug   string    `json:"old_slug" gorm:"size:191;uniqueIndex;not null"`
	PostID    string    `json:"post_id"  gorm:"type:char(36);index;not null"`
	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `json:"modified"`
}

func (PostRedirectModel) TableName() string { return "post_redirects" }
