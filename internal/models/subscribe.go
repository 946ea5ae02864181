package models

// SubscriberModel is a newsletter recipient.
type SubscriberModel struct {
	Base
	Email            string `json:"email"  gorm:"size:191;uniqueIndex;not null"`
	Name             string `json:"name"`
	UnsubscribeToken string `json:"-"      gorm:"size:64;uniqueIndex"`
	Active           bool   `json:"active" gorm:"not null;default:true;index"`
}

func (SubscriberModel) TableName() string { return "subscribers" }
