package models

import "time"

const (
	CampaignDraft   = "draft"
	CampaignSending = "sending"
	CampaignSent    = "sent"
)

// CampaignModel is an email sent to all active subscribers, once or monthly.
type CampaignModel struct {
	Base
	Subject     string     `json:"subject"      gorm:"not null"`
	Body        string     `json:"body"         gorm:"type:longtext"`
	Status      string     `json:"status"       gorm:"size:16;not null;default:'draft';index"`
	Recurring   bool       `json:"recurring"    gorm:"not null;default:false;index"`
	DayOfMonth  int        `json:"day_of_month" gorm:"not null;default:1"`
	NextRunAt   *time.Time `json:"next_run_at"  gorm:"index"`
	LastSentAt  *time.Time `json:"last_sent_at"`
	SentCount   int        `json:"sent_count"   gorm:"not null;default:0"`
	FailedCount int        `json:"failed_count" gorm:"not null;default:0"`
}

func (CampaignModel) TableName() string { return "campaigns" }
