package util

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// ParseInt parses a string to an integer, returning defaultValue if parsing fails
func ParseInt(s string, defaultValue int) int {
	if val, err := strconv.Atoi(s); err == nil {
		return val
	}
	return defaultValue
}

// ParseList splits a comma-separated query value
func ParseList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Pagination reads limit and offset query params. Negative offsets become 0;
// limit is left for the service to clamp.
func Pagination(c *gin.Context, defaultLimit int) (limit, offset int) {
	limit = ParseInt(c.Query("limit"), defaultLimit)
	offset = ParseInt(c.Query("offset"), 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
