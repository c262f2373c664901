package models

import "time"

// Follow is a directed edge: FollowerID follows FollowingID.
type Follow struct {
	FollowerID  uint `gorm:"primaryKey;autoIncrement:false"`
	FollowingID uint `gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt   time.Time
	Follower    User `gorm:"foreignKey:FollowerID;constraint:OnDelete:CASCADE;"`
	Following   User `gorm:"foreignKey:FollowingID;constraint:OnDelete:CASCADE;"`
}
