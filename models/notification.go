package models

import "time"

const (
	NotificationFollow   = "follow"
	NotificationUnfollow = "unfollow"
	NotificationLike     = "like"
)

// Notification is addressed to ToID and was caused by FromID.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"_id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	FromID    uint      `gorm:"index;not null" json:"-"`
	From      User      `gorm:"foreignKey:FromID;constraint:OnDelete:CASCADE;" json:"from"`
	ToID      uint      `gorm:"index;not null" json:"to"`
	Type      string    `gorm:"size:16;not null" json:"type"`
	Message   string    `gorm:"size:255" json:"message,omitempty"`
	Read      bool      `gorm:"default:false;not null" json:"read"`
}
