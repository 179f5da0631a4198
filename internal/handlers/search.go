package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kisanmitra/backend/internal/search"
	"github.com/kisanmitra/backend/internal/util"
)

type searchQuery struct {
	Query  string `form:"q" binding:"required,min=2,max=200"`
	Crops  string `form:"crops" binding:"max=200"`
	Region string `form:"region" binding:"max=100"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
}

// SearchPosts runs a full-text search over approved posts
// GET /api/v1/search/posts?q=&crops=&region=&limit=&offset=
func (h *Handlers) SearchPosts(c *gin.Context) {
	var q searchQuery
	if !util.BindQuery(c, &q) {
		return
	}

	result, err := h.Search.SearchPosts(c.Request.Context(), search.Params{
		Query:  q.Query,
		Crops:  util.NormalizeList(util.ParseList(q.Crops)),
		Region: q.Region,
		Limit:  q.Limit,
		Offset: q.Offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	util.RespondOK(c, http.StatusOK, result)
}
