package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pairnet/pkg/errors"
)

// ErrorHandlerMiddleware turns errors collected by the handlers into the
// room API's error envelope. Every error on the context is logged with the
// caller's identity; the last one decides the response.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		fields := requestFields(c)
		for _, ginErr := range c.Errors {
			if appErr := errors.GetAppError(ginErr.Err); appErr != nil {
				logger.Errorw("request failed",
					append(fields,
						"code", appErr.Code,
						"message", appErr.Message,
						"context", appErr.Context,
					)...)
				continue
			}
			logger.Errorw("request failed with unclassified error",
				append(fields, "error", ginErr.Err.Error())...)
		}

		last := c.Errors.Last().Err
		if appErr := errors.GetAppError(last); appErr != nil {
			c.JSON(appErr.HTTPStatus, errorEnvelope(appErr.Code, appErr.Message, appErr.Context))
			return
		}
		c.JSON(http.StatusInternalServerError,
			errorEnvelope(errors.ErrCodeInternal, "internal server error", nil))
	}
}

// RecoveryMiddleware keeps a panicking handler from taking the room server
// down with it.
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("panic recovered",
					append(requestFields(c), "panic", r)...)
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					errorEnvelope(errors.ErrCodeInternal, "internal server error", nil))
			}
		}()

		c.Next()
	}
}

// requestFields gathers the request path plus the participant identity the
// auth middleware stored, when the request got that far.
func requestFields(c *gin.Context) []interface{} {
	fields := []interface{}{
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
	}
	if userID, ok := c.Get("user_id"); ok {
		fields = append(fields, "user_id", userID)
	}
	if eventID, ok := c.Get("event_id"); ok {
		fields = append(fields, "event_id", eventID)
	}
	return fields
}

func errorEnvelope(code errors.ErrorCode, message string, details map[string]interface{}) gin.H {
	envelope := gin.H{
		"error":   string(code),
		"message": message,
	}
	if len(details) > 0 {
		envelope["details"] = details
	}
	return envelope
}
