package models

import "time"

// Post belongs to its author; Likes is the post_likes join table.
type Post struct {
	ID          uint      `gorm:"primaryKey" json:"_id"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	UserID      uint      `gorm:"index;not null" json:"-"`
	User        User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"user"`
	Description string    `gorm:"type:text" json:"description"`
	Img         string    `gorm:"size:512" json:"img"`
	Comments    []Comment `gorm:"constraint:OnDelete:CASCADE;" json:"comments"`
	Likes       []User    `gorm:"many2many:post_likes;" json:"likes"`
}

type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"_id"`
	CreatedAt time.Time `json:"createdAt"`
	PostID    uint      `gorm:"index;not null" json:"-"`
	UserID    uint      `gorm:"index;not null" json:"-"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"user"`
	Text      string    `gorm:"type:text;not null" json:"text"`
}
