package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kisanmitra/backend/internal/groups"
	"github.com/kisanmitra/backend/internal/models"
	"github.com/kisanmitra/backend/internal/posts"
	"github.com/kisanmitra/backend/internal/util"
)

type createGroupBody struct {
	Name                string   `json:"name" binding:"required,min=3,max=80"`
	Description         string   `json:"description" binding:"max=1000"`
	Crops               []string `json:"crops" binding:"max=10,dive,max=40"`
	Region              string   `json:"region" binding:"max=100"`
	RequirePostApproval bool     `json:"require_post_approval"`
}

// CreateGroup creates a community with the caller as its admin
// POST /api/v1/groups
func (h *Handlers) CreateGroup(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var body createGroupBody
	if !util.BindJSON(c, &body) {
		return
	}

	group, err := h.Groups.CreateGroup(c.Request.Context(), userID, groups.CreateGroupInput{
		Name:                body.Name,
		Description:         body.Description,
		Crops:               util.NormalizeList(body.Crops),
		Region:              body.Region,
		RequirePostApproval: body.RequirePostApproval,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	util.RespondOK(c, http.StatusCreated, group)
}

// GetGroup returns a group
// GET /api/v1/groups/:id
func (h *Handlers) GetGroup(c *gin.Context) {
	group, err := h.Groups.GetGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	util.RespondOK(c, http.StatusOK, group)
}

// DiscoverGroups ranks groups the caller has not joined
// GET /api/v1/groups/discover?limit=
func (h *Handlers) DiscoverGroups(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	limit, _ := util.Pagination(c, 10)

	ranked, err := h.Groups.Discover(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	util.RespondOK(c, http.StatusOK, gin.H{"groups": ranked})
}

// JoinGroup adds the caller as a member
// POST /api/v1/groups/:id/join
func (h *Handlers) JoinGroup(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if err := h.Groups.Join(c.Request.Context(), c.Param("id"), userID); err != nil {
		respondError(c, err)
		return
	}
	util.RespondOK(c, http.StatusOK, gin.H{"group_id": c.Param("id"), "member": true})
}

// LeaveGroup removes the caller's membership
// DELETE /api/v1/groups/:id/join
func (h *Handlers) LeaveGroup(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if err := h.Groups.Leave(c.Request.Context(), c.Param("id"), userID); err != nil {
		respondError(c, err)
		return
	}
	util.RespondOK(c, http.StatusOK, gin.H{"group_id": c.Param("id"), "member": false})
}

type memberRoleBody struct {
	Role string `json:"role" binding:"required,oneof=member moderator admin"`
}

// SetMemberRole promotes or demotes a member. Only group admins may call it.
// PUT /api/v1/groups/:id/members/:userId/role
func (h *Handlers) SetMemberRole(c *gin.Context) {
	adminID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var body memberRoleBody
	if !util.BindJSON(c, &body) {
		return
	}
	groupID, userID := c.Param("id"), c.Param("userId")
	if err := h.Groups.SetRole(c.Request.Context(), groupID, adminID, userID, body.Role); err != nil {
		respondError(c, err)
		return
	}
	util.RespondOK(c, http.StatusOK, gin.H{"group_id": groupID, "user_id": userID, "role": body.Role})
}

// CreateGroupPost posts into a group. Plain members of moderated groups
// land in pending_approval.
// POST /api/v1/groups/:id/posts
func (h *Handlers) CreateGroupPost(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var body posts.Input
	if !util.BindJSON(c, &body) {
		return
	}
	in := posts.Normalize(body)

	post, err := h.Groups.CreatePost(c.Request.Context(), c.Param("id"), userID, groups.PostInput{
		Body:     in.Body,
		Tags:     in.Tags,
		Crops:    in.Crops,
		Location: in.Location,
		ImageURL: in.ImageURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	util.RespondOK(c, http.StatusCreated, post)
}

// ListGroupPosts lists approved posts, or pending ones for moderators
// GET /api/v1/groups/:id/posts?status=
func (h *Handlers) ListGroupPosts(c *gin.Context) {
	limit, offset := util.Pagination(c, 20)
	list, err := h.Groups.ListPosts(c.Request.Context(), c.Param("id"), util.OptionalUserID(c), c.Query("status"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	util.RespondOK(c, http.StatusOK, gin.H{"posts": list, "limit": limit, "offset": offset})
}

// ApproveGroupPost publishes a pending post
// POST /api/v1/groups/:id/posts/:postId/approve
func (h *Handlers) ApproveGroupPost(c *gin.Context) {
	h.moderate(c, h.Groups.Approve)
}

// RejectGroupPost rejects and removes a pending or approved post
// POST /api/v1/groups/:id/posts/:postId/reject
func (h *Handlers) RejectGroupPost(c *gin.Context) {
	h.moderate(c, h.Groups.Reject)
}

func (h *Handlers) moderate(c *gin.Context, action func(ctx context.Context, moderatorID, postID string) (*models.Post, error)) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	postID := c.Param("postId")

	groupID, err := h.Groups.PostGroup(c.Request.Context(), postID)
	if err != nil && !errors.Is(err, groups.ErrNotFound) {
		respondError(c, err)
		return
	}
	if groupID == "" || groupID != c.Param("id") {
		util.RespondNotFound(c, "post")
		return
	}

	post, err := action(c.Request.Context(), userID, postID)
	if err != nil {
		respondError(c, err)
		return
	}
	util.RespondOK(c, http.StatusOK, post)
}
