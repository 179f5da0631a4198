package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kisanmitra/backend/internal/feed"
	"github.com/kisanmitra/backend/internal/posts"
	"github.com/kisanmitra/backend/internal/util"
)

type interactionBody struct {
	Kind string `json:"kind" binding:"required,oneof=view extended_view like unlike share helpful"`
}

// CreatePost publishes a post to the public feed
// POST /api/v1/posts
func (h *Handlers) CreatePost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var body posts.Input
	if !util.BindJSON(c, &body) {
		return
	}

	post, err := h.Posts.Create(c.Request.Context(), userID, body)
	if err != nil {
		respondError(c, err)
		return
	}
	h.Feed.Invalidate(userID)
	util.RespondOK(c, http.StatusCreated, post)
}

// GetPost returns an approved post
// GET /api/v1/posts/:id
func (h *Handlers) GetPost(c *gin.Context) {
	post, err := h.Posts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	util.RespondOK(c, http.StatusOK, post)
}

// DeletePost deletes a post. Group posts follow the group's moderation rules.
// DELETE /api/v1/posts/:id
func (h *Handlers) DeletePost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	postID := c.Param("id")

	err := h.Posts.Delete(c.Request.Context(), userID, postID)
	if errors.Is(err, posts.ErrGroupPost) {
		err = h.Groups.DeletePost(c.Request.Context(), userID, postID)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	util.RespondOK(c, http.StatusOK, gin.H{"id": postID, "deleted": true})
}

// Interact records a view, like, share or helpful mark on a post.
// Comments go through AddComment.
// POST /api/v1/posts/:id/interactions
func (h *Handlers) Interact(c *gin.Context) {
	var body interactionBody
	if !util.BindJSON(c, &body) {
		return
	}
	kind, err := feed.ParseKind(body.Kind)
	if err != nil {
		respondError(c, err)
		return
	}

	// Anonymous views still count toward the post
	userID := util.OptionalUserID(c)
	if userID == "" && kind != feed.KindView && kind != feed.KindExtendedView {
		util.RespondUnauthorized(c, "sign in to react to posts")
		return
	}

	post, err := h.Interactions.Apply(c.Request.Context(), userID, c.Param("id"), kind)
	if err != nil {
		respondError(c, err)
		return
	}
	util.RespondOK(c, http.StatusOK, gin.H{
		"id":               post.ID,
		"like_count":       post.LikeCount,
		"comment_count":    post.CommentCount,
		"share_count":      post.ShareCount,
		"helpful_count":    post.HelpfulCount,
		"view_count":       post.ViewCount,
		"engagement_score": post.EngagementScore,
	})
}

// AddComment comments on an approved post
// POST /api/v1/posts/:id/comments
func (h *Handlers) AddComment(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var body posts.CommentInput
	if !util.BindJSON(c, &body) {
		return
	}

	comment, err := h.Posts.AddComment(c.Request.Context(), userID, c.Param("id"), body)
	if err != nil {
		respondError(c, err)
		return
	}
	util.RespondOK(c, http.StatusCreated, comment)
}

// ListComments returns a post's comments, oldest first
// GET /api/v1/posts/:id/comments
func (h *Handlers) ListComments(c *gin.Context) {
	limit, offset := util.Pagination(c, 50)
	comments, err := h.Posts.ListComments(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	util.RespondOK(c, http.StatusOK, gin.H{"comments": comments, "limit": limit, "offset": offset})
}
