package main

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"sosmed/pkg/apperr"

	"github.com/gin-gonic/gin"
)

// apiResponse is the envelope every endpoint answers with.
type apiResponse struct {
	Status  int    `json:"status"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

func respond(c *gin.Context, status int, data any, message string) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(status, apiResponse{Status: status, Data: data, Message: message})
}

// fail aborts the chain with the envelope for err. Internal errors are logged
// with their cause; the caller only gets the generic message.
func (a *App) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if kind == apperr.KindInternal {
		a.logger.ErrorContext(c.Request.Context(), "request failed",
			slog.String("route", routeOf(c)),
			slog.Any("error", err),
		)
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, apiResponse{Status: status, Data: gin.H{}, Message: apperr.PublicMessage(err)})
}

// bindJSON decodes the request body into dst. An absent body leaves dst at
// its zero value so the handler reports the missing fields itself.
func bindJSON(c *gin.Context, dst any) error {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperr.Validation("Request body too large")
		case errors.Is(err, io.EOF):
			return nil
		default:
			return apperr.Validation("Invalid request body")
		}
	}
	return nil
}
