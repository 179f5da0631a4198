package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/kisanmitra/backend/internal/auth"
	"github.com/kisanmitra/backend/internal/middleware"
	"github.com/kisanmitra/backend/internal/util"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes mounts the probes, /metrics and the /api/v1 tree on r.
// Request-wide middleware (logging, tracing, CORS) is installed by the caller.
func (h *Handlers) RegisterRoutes(r *gin.Engine, tokens auth.TokenParser) {
	util.UseJSONFieldNames()

	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.Use(auth.OptionalAuth(tokens))
	requireAuth := auth.RequireAuth()

	authGroup := api.Group("/auth/otp")
	{
		authGroup.POST("/request", h.RequestOTP)
		authGroup.POST("/verify", h.VerifyOTP)
	}

	// Anonymous callers may chat; they are limited per client address
	api.POST("/chat", h.Chat)
	api.GET("/chat/quota", h.ChatQuota)

	api.GET("/feed", requireAuth, h.GetFeed)
	api.GET("/preferences", requireAuth, h.GetPreferences)

	posts := api.Group("/posts")
	{
		posts.POST("", requireAuth, h.CreatePost)
		posts.GET("/:id", h.GetPost)
		posts.DELETE("/:id", requireAuth, h.DeletePost)
		posts.POST("/:id/interactions", h.Interact)
		posts.GET("/:id/comments", h.ListComments)
		posts.POST("/:id/comments", requireAuth, h.AddComment)
		posts.POST("/:id/hide", requireAuth, h.HidePost)
		posts.DELETE("/:id/hide", requireAuth, h.UnhidePost)
	}

	users := api.Group("/users", requireAuth)
	{
		users.POST("/:id/mute", h.MuteUser)
		users.DELETE("/:id/mute", h.UnmuteUser)
	}

	groups := api.Group("/groups")
	{
		groups.POST("", requireAuth, h.CreateGroup)
		groups.GET("/discover", requireAuth, h.DiscoverGroups)
		groups.GET("/:id", h.GetGroup)
		groups.POST("/:id/join", requireAuth, h.JoinGroup)
		groups.DELETE("/:id/join", requireAuth, h.LeaveGroup)
		groups.PUT("/:id/members/:userId/role", requireAuth, h.SetMemberRole)
		groups.POST("/:id/posts", requireAuth, h.CreateGroupPost)
		groups.GET("/:id/posts", h.ListGroupPosts)
		groups.POST("/:id/posts/:postId/approve", requireAuth, h.ApproveGroupPost)
		groups.POST("/:id/posts/:postId/reject", requireAuth, h.RejectGroupPost)
	}

	api.POST("/uploads/images", requireAuth, h.UploadImage)

	searchGroup := api.Group("/search")
	if h.SearchLimiter != nil {
		searchGroup.Use(middleware.RateLimit(h.SearchLimiter, auth.Identity))
	}
	searchGroup.GET("/posts", h.SearchPosts)

	admin := api.Group("/admin", auth.RequireAdmin())
	{
		admin.GET("/analytics/summary", h.AnalyticsSummary)
	}
}
