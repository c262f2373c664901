package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"sosmed/models"
	"sosmed/pkg/apperr"
	"sosmed/pkg/imagehost"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	suggestedLimit    = 8
	minNewPasswordLen = 6
	imageKindProfile  = "profile"
	imageKindCover    = "cover"
	imageKindPost     = "post"
)

func parseID(s string) (uint, bool) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

func (a *App) userProfileHandler(c *gin.Context) {
	db := a.db.WithContext(c.Request.Context())
	var user models.User
	err := db.Select(models.PublicUserColumns).Where("user_name = ?", c.Param("userName")).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		a.fail(c, apperr.NotFound("Couldn't get the profile"))
		return
	}
	if err != nil {
		a.fail(c, apperr.Internal(err))
		return
	}
	view, err := viewUser(db, user)
	if err != nil {
		a.fail(c, err)
		return
	}
	respond(c, http.StatusOK, view, "Profile fetched successfully")
}

// suggestedUsersHandler lists users the caller does not follow yet, most
// followed first.
func (a *App) suggestedUsersHandler(c *gin.Context) {
	me := currentUser(c)
	db := a.db.WithContext(c.Request.Context())
	followed := db.Model(&models.Follow{}).Select("following_id").Where("follower_id = ?", me.ID)
	var users []models.User
	err := db.Select(models.PublicUserColumns).
		Where("id <> ?", me.ID).
		Where("id NOT IN (?)", followed).
		Order("(SELECT COUNT(*) FROM follows WHERE follows.following_id = users.id) DESC, id").
		Limit(suggestedLimit).
		Find(&users).Error
	if err != nil {
		a.fail(c, apperr.Internal(err))
		return
	}
	if len(users) == 0 {
		respond(c, http.StatusOK, []userView{}, "No suggested users available")
		return
	}
	views, err := viewUsers(db, users)
	if err != nil {
		a.fail(c, err)
		return
	}
	respond(c, http.StatusOK, views, "Suggested users fetched successfully")
}

// followUnfollowHandler toggles the caller's follow of :id and notifies the
// target. The edge and the notification are written together.
func (a *App) followUnfollowHandler(c *gin.Context) {
	me := currentUser(c)
	targetID, ok := parseID(c.Param("id"))
	if !ok {
		a.fail(c, apperr.NotFound("User not found"))
		return
	}
	if targetID == me.ID {
		a.fail(c, apperr.Validation("You can't follow/unfollow yourself"))
		return
	}

	db := a.db.WithContext(c.Request.Context())
	message := "Followed successfully"
	err := db.Transaction(func(tx *gorm.DB) error {
		var target models.User
		err := tx.Select("id").First(&target, targetID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("User not found")
		}
		if err != nil {
			return err
		}

		note := models.Notification{FromID: me.ID, ToID: targetID}
		res := tx.Where("follower_id = ? AND following_id = ?", me.ID, targetID).Delete(&models.Follow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			message = "Unfollowed successfully"
			note.Type = models.NotificationUnfollow
			note.Message = me.UserName + " unfollowed you"
		} else {
			edge := models.Follow{FollowerID: me.ID, FollowingID: targetID}
			if err := tx.Omit(clause.Associations).Create(&edge).Error; err != nil {
				return err
			}
			note.Type = models.NotificationFollow
			note.Message = me.UserName + " started following you"
		}
		return tx.Omit(clause.Associations).Create(&note).Error
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			err = apperr.Internal(err)
		}
		a.fail(c, err)
		return
	}

	view, err := loadUserView(db, targetID, "User not found")
	if err != nil {
		a.fail(c, err)
		return
	}
	respond(c, http.StatusOK, view, message)
}

type updateProfileInput struct {
	FullName        string `json:"fullName"`
	Email           string `json:"email"`
	UserName        string `json:"username"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	Bio             string `json:"bio"`
	Link            string `json:"link"`
	ProfileImg      string `json:"profileImg"`
	CoverImg        string `json:"coverImg"`
}

// updateProfileHandler applies the non-empty fields of the request. New
// images are uploaded before the row is saved; the images they replace are
// destroyed only once the save went through.
func (a *App) updateProfileHandler(c *gin.Context) {
	var req updateProfileInput
	if err := bindJSON(c, &req); err != nil {
		a.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	db := a.db.WithContext(ctx)

	var user models.User
	err := db.First(&user, currentUser(c).ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		a.fail(c, apperr.NotFound("User not found"))
		return
	}
	if err != nil {
		a.fail(c, apperr.Internal(err))
		return
	}

	updates, err := a.profileUpdates(db, user, req)
	if err != nil {
		a.fail(c, err)
		return
	}

	var uploaded, replaced []string
	for _, img := range []struct {
		payload, kind, column, current string
	}{
		{req.ProfileImg, imageKindProfile, "profile_img", user.ProfileImg},
		{req.CoverImg, imageKindCover, "cover_img", user.CoverImg},
	} {
		if img.payload == "" {
			continue
		}
		url, err := a.uploadImage(ctx, img.kind, img.payload)
		if err != nil {
			a.destroyImages(ctx, uploaded)
			a.fail(c, err)
			return
		}
		uploaded = append(uploaded, url)
		updates[img.column] = url
		if img.current != "" {
			replaced = append(replaced, img.current)
		}
	}

	if len(updates) > 0 {
		err := db.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error
		if err != nil {
			a.destroyImages(ctx, uploaded)
			if isUniqueConstraintError(err) {
				a.fail(c, errIdentityTaken())
				return
			}
			a.fail(c, apperr.Internal(err))
			return
		}
	}
	a.destroyImages(ctx, replaced)

	view, err := loadUserView(db, user.ID, "User not found")
	if err != nil {
		a.fail(c, err)
		return
	}
	respond(c, http.StatusOK, view, "Profile updated successfully")
}

// profileUpdates validates the text fields of req and returns the columns to
// change.
func (a *App) profileUpdates(db *gorm.DB, user models.User, req updateProfileInput) (map[string]any, error) {
	updates := map[string]any{}

	if req.CurrentPassword != "" || req.NewPassword != "" {
		if req.CurrentPassword == "" || req.NewPassword == "" {
			return nil, apperr.Validation("Please provide both current and new passwords")
		}
		if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(req.CurrentPassword)); err != nil {
			return nil, apperr.Validation("Current password is incorrect")
		}
		if len(req.NewPassword) < minNewPasswordLen {
			return nil, apperr.Validation(fmt.Sprintf("Password must be at least %d characters long", minNewPasswordLen))
		}
		hash, err := hashPassword(req.NewPassword, a.cfg.BcryptCost)
		if err != nil {
			return nil, err
		}
		updates["hashed_password"] = hash
	}

	if req.Email != "" && req.Email != user.Email {
		if !emailRE.MatchString(req.Email) {
			return nil, apperr.Validation("Invalid email")
		}
		if taken, err := columnTaken(db, "email", req.Email, user.ID); err != nil {
			return nil, err
		} else if taken {
			return nil, apperr.Conflict("Email already in use")
		}
		updates["email"] = req.Email
	}
	if req.UserName != "" && req.UserName != user.UserName {
		if !handleRE.MatchString(req.UserName) {
			return nil, apperr.Validation("Invalid username format")
		}
		if taken, err := columnTaken(db, "user_name", req.UserName, user.ID); err != nil {
			return nil, err
		} else if taken {
			return nil, apperr.Conflict("Username already in use")
		}
		updates["user_name"] = req.UserName
	}
	for column, value := range map[string]string{
		"full_name": req.FullName,
		"bio":       req.Bio,
		"link":      req.Link,
	} {
		if value != "" {
			updates[column] = value
		}
	}
	return updates, nil
}

func columnTaken(db *gorm.DB, column, value string, except uint) (bool, error) {
	var n int64
	err := db.Model(&models.User{}).Where(column+" = ? AND id <> ?", value, except).Count(&n).Error
	if err != nil {
		return false, apperr.Internal(err)
	}
	return n > 0, nil
}

// uploadImage normalises a data-URI payload and stores it on the image host.
func (a *App) uploadImage(ctx context.Context, kind, payload string) (string, error) {
	img, err := decodeImage(payload, a.cfg.ImageMaxDim)
	if err != nil {
		return "", err
	}
	return a.storeImage(ctx, kind, img)
}

func decodeImage(payload string, maxDim int) (imagehost.Image, error) {
	img, err := imagehost.Decode(payload, maxDim)
	if errors.Is(err, imagehost.ErrInvalidImage) {
		return imagehost.Image{}, apperr.Validation("Invalid image")
	}
	if err != nil {
		return imagehost.Image{}, apperr.Internal(err)
	}
	return img, nil
}

func (a *App) storeImage(ctx context.Context, kind string, img imagehost.Image) (string, error) {
	url, err := a.images.Upload(ctx, kind, img)
	if err != nil {
		return "", apperr.Internal(fmt.Errorf("image upload: %w", err))
	}
	return url, nil
}

// destroyImages removes images from the host. Failures only leave orphaned
// files behind, so they are logged and otherwise ignored.
func (a *App) destroyImages(ctx context.Context, urls []string) {
	for _, url := range urls {
		if err := a.images.Destroy(ctx, url); err != nil {
			a.logger.WarnContext(ctx, "image destroy failed", slog.String("url", url), slog.Any("error", err))
		}
	}
}
