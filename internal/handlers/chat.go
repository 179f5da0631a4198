package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kisanmitra/backend/internal/assistant"
	"github.com/kisanmitra/backend/internal/auth"
	apperrors "github.com/kisanmitra/backend/internal/errors"
	"github.com/kisanmitra/backend/internal/ratelimit"
	"github.com/kisanmitra/backend/internal/util"
)

type chatBody struct {
	Message  string           `json:"message" binding:"required,max=2000"`
	History  []assistant.Turn `json:"history" binding:"max=20,dive"`
	Language string           `json:"language" binding:"omitempty,oneof=en hi pa"`
}

type chatResponse struct {
	Reply     string `json:"reply"`
	Cached    bool   `json:"cached"`
	Language  string `json:"language"`
	Remaining int    `json:"remaining"`
}

// Chat answers a farming question. Anonymous callers are limited per client
// address, signed-in callers per account.
// POST /api/v1/chat
func (h *Handlers) Chat(c *gin.Context) {
	var body chatBody
	if !util.BindJSON(c, &body) {
		return
	}

	req := assistant.Request{
		Identity: auth.Identity(c),
		UserID:   util.OptionalUserID(c),
		Message:  body.Message,
		History:  body.History,
		Language: body.Language,
	}
	answer, err := h.Assistant.Ask(c.Request.Context(), req)
	if answer.RateLimit.Limit > 0 {
		ratelimit.SetHeaders(c, answer.RateLimit)
	}
	if err != nil {
		var rl *assistant.RateLimitError
		switch {
		case errors.As(err, &rl):
			util.RespondWithAPIError(c, apperrors.RateLimited("").WithDetails(rl.Error()))
		case answer.RateLimit.Limit == 0:
			// Rejected before the quota check
			respondError(c, err)
		default:
			util.RespondWithAPIError(c, assistant.Classify(err))
		}
		return
	}

	lang := body.Language
	if lang == "" {
		lang = assistant.DefaultLanguage
	}
	util.RespondOK(c, http.StatusOK, chatResponse{
		Reply:     answer.Text,
		Cached:    answer.Cached,
		Language:  lang,
		Remaining: answer.RateLimit.Remaining,
	})
}

type quotaResponse struct {
	Window    string    `json:"window"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// ChatQuota reports how many questions the caller has left.
// GET /api/v1/chat/quota
func (h *Handlers) ChatQuota(c *gin.Context) {
	res, _ := h.Assistant.Quota(c.Request.Context(), auth.Identity(c))
	ratelimit.SetHeaders(c, res)
	util.RespondOK(c, http.StatusOK, quotaResponse{
		Window:    res.Window,
		Limit:     res.Limit,
		Remaining: res.Remaining,
		ResetAt:   res.ResetAt.UTC(),
	})
}
