package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/kisanmitra/backend/internal/errors"
	"github.com/kisanmitra/backend/internal/logger"
	"github.com/kisanmitra/backend/internal/otp"
	"github.com/kisanmitra/backend/internal/ratelimit"
	"github.com/kisanmitra/backend/internal/util"
	"go.uber.org/zap"
)

type otpRequestBody struct {
	Destination string `json:"destination" binding:"required,max=254"`
}

type otpVerifyBody struct {
	Destination string `json:"destination" binding:"required,max=254"`
	Code        string `json:"code" binding:"required,len=6,numeric"`
}

// RequestOTP sends a one-time login code to an email address or phone number
// POST /api/v1/auth/otp/request
func (h *Handlers) RequestOTP(c *gin.Context) {
	var body otpRequestBody
	if !util.BindJSON(c, &body) {
		return
	}

	res, err := h.OTP.Request(c.Request.Context(), body.Destination)
	if res.Limit > 0 {
		ratelimit.SetHeaders(c, res)
	}
	if err != nil {
		var rl *otp.RateLimitError
		if errors.As(err, &rl) {
			util.RespondWithAPIError(c, apperrors.RateLimited("too many codes requested for this destination").
				WithDetails("retry after "+rl.Result.ResetAt.UTC().Format(time.RFC3339)))
			return
		}
		if errors.Is(err, otp.ErrInvalidDestination) {
			respondError(c, err)
			return
		}
		logger.Log.Error("Failed to issue OTP", zap.Error(err))
		util.RespondWithAPIError(c, apperrors.ServiceUnavailable("code delivery"))
		return
	}

	util.RespondOK(c, http.StatusAccepted, gin.H{
		"sent":       true,
		"expires_in": int(h.OTP.TTL().Seconds()),
	})
}

// VerifyOTP checks a code and returns a session token, creating the account on first login
// POST /api/v1/auth/otp/verify
func (h *Handlers) VerifyOTP(c *gin.Context) {
	var body otpVerifyBody
	if !util.BindJSON(c, &body) {
		return
	}

	user, created, err := h.OTP.Verify(c.Request.Context(), body.Destination, body.Code)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := h.Tokens.Issue(user)
	if err != nil {
		logger.Log.Error("Failed to issue token", logger.WithUserID(user.ID), zap.Error(err))
		util.RespondInternalError(c, "failed to create session")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	util.RespondOK(c, status, gin.H{
		"token":      token.Token,
		"expires_at": token.ExpiresAt,
		"user":       user,
		"new_user":   created,
	})
}
