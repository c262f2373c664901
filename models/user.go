package models

import (
	"time"
)

// User model. Follow edges live in follows, likes in post_likes.
type User struct {
	ID               uint      `gorm:"primaryKey" json:"_id"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
	UserName         string    `gorm:"size:20;not null;uniqueIndex" json:"userName"`
	FullName         string    `gorm:"size:255;not null" json:"fullName"`
	Email            string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	HashedPassword   []byte    `gorm:"not null" json:"-"`
	ProfileImg       string    `gorm:"size:512" json:"profileImg"`
	CoverImg         string    `gorm:"size:512" json:"coverImg"`
	Bio              string    `gorm:"size:512" json:"bio"`
	Link             string    `gorm:"size:512" json:"link"`
	RefreshTokenHash *string   `gorm:"size:64" json:"-"`
}

// PublicUserColumns are the users columns safe to load into a response.
var PublicUserColumns = []string{
	"id", "created_at", "updated_at", "user_name", "full_name", "email",
	"profile_img", "cover_img", "bio", "link",
}
