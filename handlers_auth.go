package main

import (
	"net/http"

	"sosmed/pkg/apperr"
	"sosmed/pkg/session"

	"github.com/gin-gonic/gin"
)

func (a *App) signupHandler(c *gin.Context) {
	var req signupInput
	if err := bindJSON(c, &req); err != nil {
		a.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	user, err := a.registerUser(ctx, req)
	a.metrics.authEvent("signup", err)
	if err != nil {
		a.fail(c, err)
		return
	}
	pair, err := a.issueSessionPair(ctx, user.ID)
	if err != nil {
		a.fail(c, err)
		return
	}
	created, err := loadUserView(a.db.WithContext(ctx), user.ID, "User not found")
	if err != nil {
		a.fail(c, apperr.Internal(err))
		return
	}
	a.carrier.Attach(c.Writer, pair.AccessToken, pair.RefreshToken)
	respond(c, http.StatusCreated, created, "User Registered Successfully")
}

type loginResponse struct {
	User         userView `json:"user"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
}

func (a *App) loginHandler(c *gin.Context) {
	var req struct {
		UserName string `json:"userName"`
		Password string `json:"password"`
	}
	if err := bindJSON(c, &req); err != nil {
		a.fail(c, err)
		return
	}
	if req.UserName == "" || req.Password == "" {
		a.fail(c, apperr.Validation("Username and Password are required"))
		return
	}
	ctx := c.Request.Context()
	user, err := a.authenticate(ctx, req.UserName, req.Password)
	a.metrics.authEvent("login", err)
	if err != nil {
		a.fail(c, err)
		return
	}
	pair, err := a.issueSessionPair(ctx, user.ID)
	if err != nil {
		a.fail(c, err)
		return
	}
	view, err := loadUserView(a.db.WithContext(ctx), user.ID, "User not found")
	if err != nil {
		a.fail(c, apperr.Internal(err))
		return
	}
	a.carrier.Attach(c.Writer, pair.AccessToken, pair.RefreshToken)
	respond(c, http.StatusOK, loginResponse{
		User:         view,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "Login successful")
}

// refreshHandler takes the refresh token from its cookie or the JSON body.
func (a *App) refreshHandler(c *gin.Context) {
	token, ok := session.ExtractRefresh(c.Request)
	if !ok {
		var req struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := bindJSON(c, &req); err != nil {
			a.fail(c, err)
			return
		}
		token = req.RefreshToken
	}
	if token == "" {
		a.metrics.authEvent("refresh", errInvalidRefresh)
		a.fail(c, apperr.Unauthenticated("Unauthorized - No refresh token provided"))
		return
	}
	pair, err := a.rotateSession(c.Request.Context(), token)
	a.metrics.authEvent("refresh", err)
	if err != nil {
		a.fail(c, err)
		return
	}
	a.carrier.Attach(c.Writer, pair.AccessToken, pair.RefreshToken)
	respond(c, http.StatusOK, pair, "Access token refreshed")
}

func (a *App) logoutHandler(c *gin.Context) {
	err := a.revokeSession(c.Request.Context(), currentUser(c).ID)
	a.metrics.authEvent("logout", err)
	if err != nil {
		a.fail(c, err)
		return
	}
	a.carrier.Clear(c.Writer)
	respond(c, http.StatusOK, nil, "User logged out successfully.")
}

func (a *App) getMeHandler(c *gin.Context) {
	view, err := loadUserView(a.db.WithContext(c.Request.Context()), currentUser(c).ID, "User not found")
	if err != nil {
		a.fail(c, err)
		return
	}
	respond(c, http.StatusOK, view, "Success")
}
