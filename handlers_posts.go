package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"sosmed/models"
	"sosmed/pkg/apperr"
	"sosmed/pkg/imagehost"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func loadPost(db *gorm.DB, id uint) (models.Post, error) {
	var post models.Post
	err := postsQuery(db).Where("posts.id = ?", id).First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Post{}, apperr.NotFound("Post not found")
	}
	if err != nil {
		return models.Post{}, apperr.Internal(err)
	}
	normalizePost(&post)
	return post, nil
}

// postAuthor returns the author of post id, or NotFound.
func postAuthor(db *gorm.DB, id uint) (uint, error) {
	var post models.Post
	err := db.Select("id", "user_id").First(&post, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, apperr.NotFound("Post not found")
	}
	if err != nil {
		return 0, apperr.Internal(err)
	}
	return post.UserID, nil
}

func postIDParam(c *gin.Context, name string) (uint, error) {
	id, ok := parseID(c.Param(name))
	if !ok {
		return 0, apperr.NotFound("Post not found")
	}
	return id, nil
}

func (a *App) getAllPostsHandler(c *gin.Context) {
	posts, err := findPosts(postsQuery(a.db.WithContext(c.Request.Context())))
	if err != nil {
		a.fail(c, err)
		return
	}
	if len(posts) == 0 {
		respond(c, http.StatusNotFound, posts, "No posts found")
		return
	}
	respond(c, http.StatusOK, posts, "Posts fetched successfully")
}

func (a *App) createPostHandler(c *gin.Context) {
	var req struct {
		Description string `json:"description"`
		Img         string `json:"img"`
	}
	if err := bindJSON(c, &req); err != nil {
		a.fail(c, err)
		return
	}
	if strings.TrimSpace(req.Description) == "" && req.Img == "" {
		a.fail(c, apperr.Validation("Post must have a title or an image"))
		return
	}
	var img *imagehost.Image
	if req.Img != "" {
		decoded, err := decodeImage(req.Img, a.cfg.ImageMaxDim)
		if err != nil {
			a.fail(c, err)
			return
		}
		img = &decoded
	}
	post, err := a.publishPost(c.Request.Context(), currentUser(c).ID, req.Description, img)
	if err != nil {
		a.fail(c, err)
		return
	}
	respond(c, http.StatusOK, post, "Post created successfully")
}

// publishPost stores a post, uploading img first when given. The upload is
// destroyed again if the row cannot be written.
func (a *App) publishPost(ctx context.Context, userID uint, description string, img *imagehost.Image) (models.Post, error) {
	var url string
	if img != nil {
		var err error
		if url, err = a.storeImage(ctx, imageKindPost, *img); err != nil {
			return models.Post{}, err
		}
	}
	db := a.db.WithContext(ctx)
	post := models.Post{UserID: userID, Description: description, Img: url}
	if err := db.Omit(clause.Associations).Create(&post).Error; err != nil {
		if url != "" {
			a.destroyImages(ctx, []string{url})
		}
		return models.Post{}, apperr.Internal(err)
	}
	return loadPost(db, post.ID)
}

// publishFile posts an image file from disk on behalf of userID.
func (a *App) publishFile(ctx context.Context, userID uint, path string) (models.Post, error) {
	contentType, ok := imagehost.ContentTypeForFile(path)
	if !ok {
		return models.Post{}, apperr.Validation("Invalid image")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.Post{}, apperr.Internal(err)
	}
	img, err := imagehost.DecodeBytes(raw, contentType, a.cfg.ImageMaxDim)
	if errors.Is(err, imagehost.ErrInvalidImage) {
		return models.Post{}, apperr.Validation("Invalid image")
	}
	if err != nil {
		return models.Post{}, apperr.Internal(err)
	}
	return a.publishPost(ctx, userID, "", &img)
}

func (a *App) deletePostHandler(c *gin.Context) {
	id, err := postIDParam(c, "postId")
	if err != nil {
		a.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	db := a.db.WithContext(ctx)
	post, err := loadPost(db, id)
	if err != nil {
		a.fail(c, err)
		return
	}
	if post.UserID != currentUser(c).ID {
		a.fail(c, apperr.Forbidden("Unauthorized to delete this post"))
		return
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM post_likes WHERE post_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Post{}, id).Error
	})
	if err != nil {
		a.fail(c, apperr.Internal(err))
		return
	}
	if post.Img != "" {
		a.destroyImages(ctx, []string{post.Img})
	}
	respond(c, http.StatusOK, post, "Post deleted successfully")
}

func (a *App) commentOnPostHandler(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := bindJSON(c, &req); err != nil {
		a.fail(c, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		a.fail(c, apperr.Validation("Comment is required"))
		return
	}
	id, err := postIDParam(c, "postId")
	if err != nil {
		a.fail(c, err)
		return
	}
	db := a.db.WithContext(c.Request.Context())
	if _, err := postAuthor(db, id); err != nil {
		a.fail(c, err)
		return
	}
	comment := models.Comment{PostID: id, UserID: currentUser(c).ID, Text: req.Text}
	if err := db.Omit(clause.Associations).Create(&comment).Error; err != nil {
		a.fail(c, apperr.Internal(err))
		return
	}
	post, err := loadPost(db, id)
	if err != nil {
		a.fail(c, err)
		return
	}
	respond(c, http.StatusOK, post, "Comment added successfully")
}

// likeUnlikePostHandler toggles the caller's like. A like notifies the author
// and answers with that notification; an unlike answers with the ids of the
// remaining likers.
func (a *App) likeUnlikePostHandler(c *gin.Context) {
	id, err := postIDParam(c, "postId")
	if err != nil {
		a.fail(c, err)
		return
	}
	me := currentUser(c)
	db := a.db.WithContext(c.Request.Context())
	authorID, err := postAuthor(db, id)
	if err != nil {
		a.fail(c, err)
		return
	}

	var (
		liked  bool
		note   models.Notification
		likers = []uint{}
	)
	err = db.Transaction(func(tx *gorm.DB) error {
		res := tx.Exec("DELETE FROM post_likes WHERE post_id = ? AND user_id = ?", id, me.ID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return tx.Table("post_likes").Where("post_id = ?", id).Order("user_id").Pluck("user_id", &likers).Error
		}
		liked = true
		inserted, err := insertLike(tx, id, me.ID)
		if err != nil || !inserted {
			return err
		}
		note = models.Notification{FromID: me.ID, ToID: authorID, Type: models.NotificationLike}
		return tx.Omit(clause.Associations).Create(&note).Error
	})
	if err != nil {
		a.fail(c, apperr.Internal(err))
		return
	}
	if !liked {
		respond(c, http.StatusOK, likers, "Unliked")
		return
	}
	if note.ID == 0 {
		// a concurrent request stored the same like first
		respond(c, http.StatusOK, nil, "Liked successfully")
		return
	}
	if err := db.Preload("From", senderColumns).First(&note, note.ID).Error; err != nil {
		a.fail(c, apperr.Internal(err))
		return
	}
	respond(c, http.StatusOK, viewNotification(note), "Liked successfully")
}

// insertLike records userID's like of postID. It reports false when the
// like was already there.
func insertLike(tx *gorm.DB, postID, userID uint) (bool, error) {
	res := tx.Exec("INSERT INTO post_likes (post_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING", postID, userID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (a *App) likedPostsHandler(c *gin.Context) {
	userID, ok := parseID(c.Param("id"))
	if !ok {
		a.fail(c, apperr.NotFound("User not found"))
		return
	}
	db := a.db.WithContext(c.Request.Context())
	if _, err := loadUserView(db, userID, "User not found"); err != nil {
		a.fail(c, err)
		return
	}
	liked := db.Table("post_likes").Select("post_id").Where("user_id = ?", userID)
	posts, err := findPosts(postsQuery(db).Where("posts.id IN (?)", liked))
	if err != nil {
		a.fail(c, err)
		return
	}
	respond(c, http.StatusOK, posts, "Liked posts")
}

func (a *App) followingPostsHandler(c *gin.Context) {
	db := a.db.WithContext(c.Request.Context())
	following := db.Model(&models.Follow{}).Select("following_id").Where("follower_id = ?", currentUser(c).ID)
	posts, err := findPosts(postsQuery(db).Where("posts.user_id IN (?)", following))
	if err != nil {
		a.fail(c, err)
		return
	}
	respond(c, http.StatusOK, posts, "Following posts")
}

// userPostsHandler lists the posts of ?userName=, or of the caller when the
// parameter is absent.
func (a *App) userPostsHandler(c *gin.Context) {
	db := a.db.WithContext(c.Request.Context())
	userID := currentUser(c).ID
	if name := c.Query("userName"); name != "" {
		var user models.User
		err := db.Select("id").Where("user_name = ?", name).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			a.fail(c, apperr.NotFound("User not found"))
			return
		}
		if err != nil {
			a.fail(c, apperr.Internal(err))
			return
		}
		userID = user.ID
	}
	posts, err := findPosts(postsQuery(db).Where("posts.user_id = ?", userID))
	if err != nil {
		a.fail(c, err)
		return
	}
	respond(c, http.StatusOK, posts, "User posts fetched successfully")
}
