package main

import (
	"errors"
	"net/http"

	"sosmed/models"
	"sosmed/pkg/apperr"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// getNotificationsHandler lists the caller's notifications newest first and
// then marks them all read.
func (a *App) getNotificationsHandler(c *gin.Context) {
	me := currentUser(c)
	db := a.db.WithContext(c.Request.Context())
	notes := []models.Notification{}
	err := db.Where("to_id = ?", me.ID).
		Preload("From", senderColumns).
		Order("created_at DESC, id DESC").
		Find(&notes).Error
	if err != nil {
		a.fail(c, apperr.Internal(err))
		return
	}
	if err := markRead(db, me.ID); err != nil {
		a.fail(c, err)
		return
	}
	respond(c, http.StatusOK, viewNotifications(notes), "")
}

func (a *App) deleteNotificationsHandler(c *gin.Context) {
	err := a.db.WithContext(c.Request.Context()).
		Where("to_id = ?", currentUser(c).ID).
		Delete(&models.Notification{}).Error
	if err != nil {
		a.fail(c, apperr.Internal(err))
		return
	}
	respond(c, http.StatusOK, nil, "Notifications deleted successfully")
}

func (a *App) markNotificationsReadHandler(c *gin.Context) {
	if err := markRead(a.db.WithContext(c.Request.Context()), currentUser(c).ID); err != nil {
		a.fail(c, err)
		return
	}
	respond(c, http.StatusOK, nil, "Notifications marked as read")
}

func markRead(db *gorm.DB, userID uint) error {
	err := db.Model(&models.Notification{}).
		Where("to_id = ? AND read = ?", userID, false).
		Update("read", true).Error
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (a *App) deleteNotificationHandler(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		a.fail(c, apperr.NotFound("Notification not found"))
		return
	}
	db := a.db.WithContext(c.Request.Context())
	var note models.Notification
	err := db.Select("id", "to_id").First(&note, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		a.fail(c, apperr.NotFound("Notification not found"))
		return
	}
	if err != nil {
		a.fail(c, apperr.Internal(err))
		return
	}
	if note.ToID != currentUser(c).ID {
		a.fail(c, apperr.Forbidden("You can not delete this notification"))
		return
	}
	if err := db.Delete(&models.Notification{}, id).Error; err != nil {
		a.fail(c, apperr.Internal(err))
		return
	}
	respond(c, http.StatusOK, nil, "Notification deleted successfully")
}
