package models

import "time"

const (
	RoleAdmin  = "admin"
	RoleAuthor = "author"
	RoleViewer = "viewer"
)

// UserModel is a dashboard account.
type UserModel struct {
	Base
	Username      string     `json:"username"        gorm:"size:191;uniqueIndex;not null"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Password      string     `json:"-"               gorm:"not null"`
	Role          string     `json:"role"            gorm:"size:16;not null;default:'viewer'"`
	LastLoginTime *time.Time `json:"last_login_time"`
	LastLoginIP   string     `json:"last_login_ip"`
}

func (UserModel) TableName() string { return "users" }

// CanAuthor reports whether the user may create and edit content.
func (u *UserModel) CanAuthor() bool {
	return u.Role == RoleAdmin || u.Role == RoleAuthor
}
