package main

import (
	"errors"

	"sosmed/models"
	"sosmed/pkg/apperr"

	"gorm.io/gorm"
)

// userView is the sanitized user as sent to clients, with its follow and
// like sets flattened to id lists.
type userView struct {
	models.User
	Followers  []uint `json:"followers"`
	Following  []uint `json:"following"`
	LikedPosts []uint `json:"likedPosts"`
}

func viewUser(db *gorm.DB, u models.User) (userView, error) {
	v := userView{User: u, Followers: []uint{}, Following: []uint{}, LikedPosts: []uint{}}
	if err := db.Model(&models.Follow{}).Where("following_id = ?", u.ID).
		Order("created_at").Pluck("follower_id", &v.Followers).Error; err != nil {
		return userView{}, apperr.Internal(err)
	}
	if err := db.Model(&models.Follow{}).Where("follower_id = ?", u.ID).
		Order("created_at").Pluck("following_id", &v.Following).Error; err != nil {
		return userView{}, apperr.Internal(err)
	}
	if err := db.Table("post_likes").Where("user_id = ?", u.ID).
		Order("post_id").Pluck("post_id", &v.LikedPosts).Error; err != nil {
		return userView{}, apperr.Internal(err)
	}
	return v, nil
}

func viewUsers(db *gorm.DB, users []models.User) ([]userView, error) {
	out := make([]userView, 0, len(users))
	for _, u := range users {
		v, err := viewUser(db, u)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// loadUserView reloads a user by id without credential columns.
func loadUserView(db *gorm.DB, id uint, notFound string) (userView, error) {
	var u models.User
	err := db.Select(models.PublicUserColumns).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return userView{}, apperr.NotFound(notFound)
	}
	if err != nil {
		return userView{}, apperr.Internal(err)
	}
	return viewUser(db, u)
}

// publicUser restricts a preload to the sanitized user columns.
func publicUser(db *gorm.DB) *gorm.DB {
	return db.Select(models.PublicUserColumns)
}

// postsQuery loads posts newest first with author, comment authors and likers.
func postsQuery(db *gorm.DB) *gorm.DB {
	return db.Model(&models.Post{}).
		Preload("User", publicUser).
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("comments.created_at, comments.id") }).
		Preload("Comments.User", publicUser).
		Preload("Likes", publicUser).
		Order("posts.created_at DESC, posts.id DESC")
}

func findPosts(q *gorm.DB) ([]models.Post, error) {
	posts := []models.Post{}
	if err := q.Find(&posts).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	for i := range posts {
		normalizePost(&posts[i])
	}
	return posts, nil
}

// normalizePost turns nil relations into empty lists for the JSON output.
func normalizePost(p *models.Post) {
	if p.Comments == nil {
		p.Comments = []models.Comment{}
	}
	if p.Likes == nil {
		p.Likes = []models.User{}
	}
}

// senderView is the part of a user shown on a notification.
type senderView struct {
	ID         uint   `json:"_id"`
	UserName   string `json:"userName"`
	ProfileImg string `json:"profileImg"`
}

// notificationView replaces the loaded sender with its senderView.
type notificationView struct {
	models.Notification
	From senderView `json:"from"`
}

// senderColumns restricts a From preload to what senderView shows.
func senderColumns(db *gorm.DB) *gorm.DB {
	return db.Select("id", "user_name", "profile_img")
}

func viewNotification(n models.Notification) notificationView {
	return notificationView{
		Notification: n,
		From:         senderView{ID: n.From.ID, UserName: n.From.UserName, ProfileImg: n.From.ProfileImg},
	}
}

func viewNotifications(notes []models.Notification) []notificationView {
	out := make([]notificationView, 0, len(notes))
	for _, n := range notes {
		out = append(out, viewNotification(n))
	}
	return out
}
