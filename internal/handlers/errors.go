package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/kisanmitra/backend/internal/assistant"
	apperrors "github.com/kisanmitra/backend/internal/errors"
	"github.com/kisanmitra/backend/internal/feed"
	"github.com/kisanmitra/backend/internal/groups"
	"github.com/kisanmitra/backend/internal/logger"
	"github.com/kisanmitra/backend/internal/otp"
	"github.com/kisanmitra/backend/internal/posts"
	"github.com/kisanmitra/backend/internal/util"
	"go.uber.org/zap"
)

// respondError maps a service error to its API error and writes it
func respondError(c *gin.Context, err error) {
	util.RespondWithAPIError(c, toAPIError(c, err))
}

func toAPIError(c *gin.Context, err error) *apperrors.APIError {
	var apiErr *apperrors.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var transition *groups.TransitionError
	switch {
	case errors.As(err, &transition):
		return apperrors.InvalidTransition(transition.From, transition.To)

	case errors.Is(err, posts.ErrNotFound), errors.Is(err, feed.ErrPostNotFound):
		return apperrors.NotFound("post")
	case errors.Is(err, groups.ErrNotFound):
		return apperrors.NotFound("group")
	case errors.Is(err, feed.ErrUserNotFound):
		return apperrors.NotFound("user")

	case errors.Is(err, feed.ErrAnonymousReaction):
		return apperrors.Unauthorized("sign in to react to posts")
	case errors.Is(err, posts.ErrForbidden), errors.Is(err, groups.ErrForbidden):
		return apperrors.Forbidden("not allowed")
	case errors.Is(err, groups.ErrNotMember):
		return apperrors.Forbidden("join the group first")

	case errors.Is(err, groups.ErrAlreadyMember):
		return apperrors.Conflict("membership")
	case errors.Is(err, groups.ErrGroupExists):
		return apperrors.Conflict("group name")

	case errors.Is(err, feed.ErrSelfMute):
		return apperrors.BadRequest("cannot mute yourself")
	case errors.Is(err, feed.ErrInvalidKind):
		return apperrors.ValidationError("kind", err.Error())
	case errors.Is(err, groups.ErrInvalidRole):
		return apperrors.ValidationError("role", err.Error())
	case errors.Is(err, groups.ErrOwnRole):
		return apperrors.BadRequest(err.Error())
	case errors.Is(err, groups.ErrInvalidStatus):
		return apperrors.ValidationError("status", "status must be approved or pending_approval")

	case errors.Is(err, assistant.ErrEmptyMessage),
		errors.Is(err, assistant.ErrMessageTooLong):
		return apperrors.ValidationError("message", err.Error())
	case errors.Is(err, assistant.ErrHistoryTooLong),
		errors.Is(err, assistant.ErrInvalidRole):
		return apperrors.ValidationError("history", err.Error())
	case errors.Is(err, assistant.ErrUnsupportedLang):
		return apperrors.ValidationError("language", err.Error())

	case errors.Is(err, otp.ErrInvalidDestination):
		return apperrors.ValidationError("destination", err.Error())
	case errors.Is(err, otp.ErrExpired):
		return apperrors.OTPExpired()
	case errors.Is(err, otp.ErrInvalidCode):
		return apperrors.OTPInvalid()
	case errors.Is(err, otp.ErrTooManyAttempts):
		return apperrors.OTPExpired().WithDetails(err.Error())
	}

	logger.Log.Error("Unhandled service error",
		zap.String("path", c.FullPath()),
		zap.String("request_id", c.GetString("request_id")),
		zap.Error(err),
	)
	return apperrors.InternalError("internal server error")
}
