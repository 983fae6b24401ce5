package auth

import (
	"github.com/gin-gonic/gin"

	svcErr "github.com/campusmatch/engine/internal/errors"
)

const userIDKey = "auth.userID"

// Middleware rejects requests without a valid bearer token and stores the
// caller's id on the gin context.
func Middleware(j *JWT) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := j.Parse(TokenFromRequest(c.Request))
		if err != nil {
			Reject(c)
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// Reject aborts with the 401 body shared by the API and the socket endpoint.
func Reject(c *gin.Context) {
	c.AbortWithStatusJSON(svcErr.HTTPStatus(svcErr.ErrUnauthorized), gin.H{
		"error": gin.H{"code": svcErr.ErrUnauthorized.Kind, "message": "missing or invalid token"},
	})
}

// UserID returns the authenticated caller. It is zero outside Middleware.
func UserID(c *gin.Context) uint64 {
	if v, ok := c.Get(userIDKey); ok {
		if id, ok := v.(uint64); ok {
			return id
		}
	}
	return 0
}
