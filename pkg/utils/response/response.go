package response

import (
	"net/http"

	"codeprep/pkg/errors"
	"codeprep/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response is the JSON envelope for every API reply.
type Response struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Data    interface{}      `json:"data,omitempty"`
	Details interface{}      `json:"details,omitempty"`
	TraceID string           `json:"trace_id,omitempty"`
}

// Success writes a 200 envelope around data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    errors.Success,
		Message: errors.Success.Message(),
		Data:    data,
		TraceID: traceID(c),
	})
}

// Error writes err with the status its code maps to. Server faults log at
// error level with their origin, client faults at warn.
func Error(c *gin.Context, err error) {
	e := errors.GetError(err)
	status := e.Code.HTTPStatus()

	fields := []zap.Field{
		zap.Int("code", int(e.Code)),
		zap.String("message", e.Error()),
		zap.Int("status", status),
	}
	if len(e.Details) > 0 {
		fields = append(fields, zap.Any("details", e.Details))
	}
	if status >= http.StatusInternalServerError {
		if e.Err != nil {
			fields = append(fields, zap.NamedError("cause", e.Err))
		}
		fields = append(fields, zap.String("origin", e.Origin))
		logger.Error(c.Request.Context(), "request failed", fields...)
	} else {
		logger.Warn(c.Request.Context(), "request rejected", fields...)
	}

	body := Response{Code: e.Code, Message: e.Error(), TraceID: traceID(c)}
	if len(e.Details) > 0 {
		body.Details = e.Details
	}
	c.JSON(status, body)
}

// BadRequest writes an InvalidParams error with message.
func BadRequest(c *gin.Context, message string) {
	Error(c, errors.New(errors.InvalidParams).WithMessage(message))
}

func traceID(c *gin.Context) string {
	if v, ok := c.Get("trace_id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
