package util

import (
	"github.com/gin-gonic/gin"
)

// Context keys set by the auth middleware
const (
	ContextUserID   = "user_id"
	ContextUserRole = "user_role"
)

// GetUserIDFromContext extracts the user ID from the Gin context.
// If the user is not authenticated, it responds with 401 Unauthorized and returns false.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	userID := OptionalUserID(c)
	if userID == "" {
		RespondUnauthorized(c)
		return "", false
	}
	return userID, true
}

// OptionalUserID returns the authenticated user ID, or "" for anonymous requests
func OptionalUserID(c *gin.Context) string {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return ""
	}
	id, _ := v.(string)
	return id
}

// UserRole returns the role from the bearer token, or "" for anonymous requests
func UserRole(c *gin.Context) string {
	v, ok := c.Get(ContextUserRole)
	if !ok {
		return ""
	}
	role, _ := v.(string)
	return role
}
