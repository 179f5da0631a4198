package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/kisanmitra/backend/internal/errors"
	"github.com/kisanmitra/backend/internal/storage"
	"github.com/kisanmitra/backend/internal/util"
)

// UploadImage stores an image for use as a post's image_url
// POST /api/v1/uploads/images (multipart field "image")
func (h *Handlers) UploadImage(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if h.Images == nil {
		util.RespondWithAPIError(c, apperrors.ServiceUnavailable("image uploads"))
		return
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		util.RespondValidationError(c, "image", "an image file is required")
		return
	}
	defer file.Close()

	limit := h.MaxImageBytes
	if limit <= 0 {
		limit = defaultMaxImageBytes
	}
	tooLarge := fmt.Sprintf("image must be at most %d bytes", limit)
	if header.Size > limit {
		util.RespondValidationError(c, "image", tooLarge)
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		util.RespondBadRequest(c, "could not read image")
		return
	}
	if int64(len(data)) > limit {
		util.RespondValidationError(c, "image", tooLarge)
		return
	}

	res, err := h.Images.UploadPostImage(c.Request.Context(), data, userID)
	if errors.Is(err, storage.ErrUnsupportedImage) {
		util.RespondValidationError(c, "image", "image must be jpeg, png, gif or webp")
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	util.RespondOK(c, http.StatusCreated, res)
}
