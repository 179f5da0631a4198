package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kisanmitra/backend/internal/feed"
	"github.com/kisanmitra/backend/internal/util"
)

// GetFeed returns the caller's personalized feed
// GET /api/v1/feed?limit=&offset=
func (h *Handlers) GetFeed(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	limit, offset := util.Pagination(c, feed.DefaultPageSize)

	page, err := h.Feed.Feed(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	util.RespondOK(c, http.StatusOK, page)
}

// GetPreferences returns the caller's affinities, hidden posts and muted users
// GET /api/v1/preferences
func (h *Handlers) GetPreferences(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	pref, err := h.Feed.Preferences(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	util.RespondOK(c, http.StatusOK, pref)
}

// HidePost removes a post from the caller's feed
// POST /api/v1/posts/:id/hide
func (h *Handlers) HidePost(c *gin.Context) {
	h.updateFeed(c, "hidden", true, func(userID string) error {
		return h.Feed.HidePost(c.Request.Context(), userID, c.Param("id"))
	})
}

// UnhidePost restores a hidden post
// DELETE /api/v1/posts/:id/hide
func (h *Handlers) UnhidePost(c *gin.Context) {
	h.updateFeed(c, "hidden", false, func(userID string) error {
		return h.Feed.UnhidePost(c.Request.Context(), userID, c.Param("id"))
	})
}

// MuteUser hides every post by a user from the caller's feed.
// Groups the user created stay visible.
// POST /api/v1/users/:id/mute
func (h *Handlers) MuteUser(c *gin.Context) {
	h.updateFeed(c, "muted", true, func(userID string) error {
		return h.Feed.MuteUser(c.Request.Context(), userID, c.Param("id"))
	})
}

// UnmuteUser reverses MuteUser
// DELETE /api/v1/users/:id/mute
func (h *Handlers) UnmuteUser(c *gin.Context) {
	h.updateFeed(c, "muted", false, func(userID string) error {
		return h.Feed.UnmuteUser(c.Request.Context(), userID, c.Param("id"))
	})
}

func (h *Handlers) updateFeed(c *gin.Context, field string, state bool, fn func(userID string) error) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if err := fn(userID); err != nil {
		respondError(c, err)
		return
	}
	util.RespondOK(c, http.StatusOK, gin.H{"id": c.Param("id"), field: state})
}
