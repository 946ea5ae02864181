package models

// ResourceModel is a gated download such as a whitepaper.
type ResourceModel struct {
	Base
	Title         string `json:"title"          gorm:"not null"`
	Slug          string `json:"slug"           gorm:"size:191;uniqueIndex;not null"`
	Description   string `json:"description"    gorm:"type:text"`
	ObjectKey     string `json:"-"              gorm:"not null"`
	Published     bool   `json:"published"      gorm:"not null;default:false;index"`
	DownloadCount int64  `json:"download_count" gorm:"not null;default:0"`
}

func (ResourceModel) TableName() string { return "resources" }

// LeadModel is contact information captured in exchange for a resource.
type LeadModel struct {
	Base
	Email      string `json:"email"       gorm:"size:191;index;not null"`
	Name       string `json:"name"`
	Company    string `json:"company"`
	ResourceID string `json:"resource_id" gorm:"type:char(36);index"`
	Source     string `json:"source"      gorm:"size:32"`
}

func (LeadModel) TableName() string { return "leads" }
