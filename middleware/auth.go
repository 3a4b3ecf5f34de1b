package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/vmforge/vmforge/common"
)

const userIDKey = "userID"

// RequireUser extracts the authenticated user id from the X-User-ID header
// set by the session-terminating front end. Session mechanics themselves
// live outside this service.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-User-ID")
		id, err := strconv.ParseUint(raw, 10, 0)
		if err != nil || id < 1 {
			c.Error(common.Errf(http.StatusUnauthorized, "missing or invalid user identity"))
			c.Abort()
			return
		}
		c.Set(userIDKey, uint(id))
		c.Next()
	}
}

// UserID returns the id stored by RequireUser. Zero means the middleware
// did not run, which is a routing bug.
func UserID(c *gin.Context) uint {
	if v, ok := c.Get(userIDKey); ok {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return 0
}
