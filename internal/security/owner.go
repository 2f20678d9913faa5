package security

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKeyUserID is the gin context key for the owner of the addressed memories.
const ContextKeyUserID = "userID"

// OwnerMiddleware resolves the :user_id path parameter. It must be a UUID and
// is stored in canonical lower-case form so the same user is never split
// across two collections by spelling.
func OwnerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Param("user_id")
		id, err := uuid.Parse(raw)
		if err != nil {
			log.Debug("Rejected user id", "method", c.Request.Method, "path", c.Request.URL.Path, "err", err)
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id must be a UUID"})
			return
		}
		c.Set(ContextKeyUserID, id.String())
		c.Next()
	}
}

// GetUserID returns the user ID resolved by OwnerMiddleware.
func GetUserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}
