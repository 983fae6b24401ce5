// Package respond writes JSON success and error bodies for gin handlers.
package respond

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	svcErr "github.com/campusmatch/engine/internal/errors"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// OK writes v with status 200.
func OK(c *gin.Context, v interface{}) {
	c.JSON(http.StatusOK, v)
}

func Created(c *gin.Context, v interface{}) {
	c.JSON(http.StatusCreated, v)
}

// Error maps err and writes {"error": {code, message, details}}. Internal
// failures are logged and their cause is never sent to the client.
func Error(c *gin.Context, log *slog.Logger, err error) {
	mapped := svcErr.Map(err)
	status := svcErr.HTTPStatus(mapped)

	var e *svcErr.Error
	if !errors.As(mapped, &e) {
		e = &svcErr.Error{Kind: svcErr.KindInternal, Message: "internal server error"}
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
	} else {
		log.Debug("request rejected", "method", c.Request.Method, "path", c.FullPath(), "kind", e.Kind, "msg", e.Message)
	}

	body := gin.H{"code": e.Kind, "message": e.Message}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

// ParamID parses a uint64 path parameter.
func ParamID(c *gin.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, svcErr.InvalidArgument(name + " must be a positive integer")
	}
	return id, nil
}

// Page reads the cursor and limit query parameters.
func Page(c *gin.Context) (token *string, limit int, err error) {
	limit = defaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, 0, svcErr.InvalidArgument("limit must be a positive integer")
		}
		limit = n
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if raw := c.Query("cursor"); raw != "" {
		token = &raw
	}
	return token, limit, nil
}

// AfterID reads the "after" query parameter used by message history.
func AfterID(c *gin.Context) (uint64, error) {
	raw := c.Query("after")
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, svcErr.InvalidArgument("after must be a message id")
	}
	return id, nil
}
