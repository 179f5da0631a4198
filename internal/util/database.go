package util

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HandleDBError sends a response for a database error.
// Returns true if the error was handled (and a response was sent), false otherwise.
func HandleDBError(c *gin.Context, err error, resourceName string) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		RespondNotFound(c, resourceName)
		return true
	}

	RespondInternalError(c, "failed to load "+resourceName)
	return true
}
