package api

import (
	"log/slog"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/user-service/internal/apperr"
)

// respondError はエラー種別に応じたステータスと本文を返します。
// 内部エラーの原因はログにのみ出力します。
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	appErr := apperr.From(err)
	status := appErr.Kind.Status()

	var body gin.H
	switch appErr.Kind {
	case apperr.KindValidation:
		if len(appErr.Details) > 0 {
			body = gin.H{"errors": appErr.Details}
		} else {
			body = gin.H{"message": appErr.Message}
		}
	case apperr.KindNotFound, apperr.KindCSRFInvalid:
		body = gin.H{"error": appErr.Message}
	case apperr.KindRateLimited:
		if appErr.RetryAfter > 0 {
			seconds := int64(math.Ceil(appErr.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.FormatInt(seconds, 10))
		}
		body = gin.H{"error": appErr.Message}
	case apperr.KindInternal:
		logger.ErrorContext(c.Request.Context(), "internal error",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"error", appErr.Err,
		)
		body = gin.H{"message": apperr.MsgInternal}
	default:
		body = gin.H{"message": appErr.Message}
	}

	if appErr.Kind == apperr.KindCSRFInvalid || appErr.Kind == apperr.KindAuthInvalid {
		logger.DebugContext(c.Request.Context(), "request denied", "kind", appErr.Kind.String(), "cause", appErr.Err)
	}
	c.AbortWithStatusJSON(status, body)
}
