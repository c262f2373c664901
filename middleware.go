package main

import (
	"errors"
	"net/http"

	"sosmed/models"
	"sosmed/pkg/apperr"
	"sosmed/pkg/session"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const ctxUserKey = "currentUser"

// authGate admits requests that carry a valid access token for an existing
// user and stores that user, without credential fields, in the context.
func (a *App) authGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := a.admit(c.Request)
		a.metrics.authEvent("gate", err)
		if err != nil {
			a.fail(c, err)
			return
		}
		c.Set(ctxUserKey, user)
		c.Next()
	}
}

func (a *App) admit(r *http.Request) (models.User, error) {
	token, ok := session.ExtractAccess(r)
	if !ok {
		return models.User{}, apperr.Unauthenticated("Unauthorized - No token provided")
	}
	id, err := a.issuer.ParseAccess(token)
	switch {
	case errors.Is(err, session.ErrInvalidPayload):
		return models.User{}, apperr.Unauthenticated("Unauthorized - Invalid token payload")
	case err != nil:
		return models.User{}, apperr.Unauthenticated("Unauthorized - Invalid token")
	}
	var user models.User
	err = a.db.WithContext(r.Context()).Select(models.PublicUserColumns).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, apperr.NotFound("User not found")
	}
	if err != nil {
		return models.User{}, apperr.Internal(err)
	}
	return user, nil
}

func lookupCurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}

// currentUser is only valid behind authGate.
func currentUser(c *gin.Context) models.User {
	user, _ := lookupCurrentUser(c)
	return user
}

// limitBody caps the request body at n bytes.
func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
