package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/jsmooother/ej-development-sub001/pkg/errors"
)

// RequestIDKey is the gin context key under which the access log middleware stores
// the request id. Error envelopes echo it in meta.request_id.
const RequestIDKey = "request_id"

// Response is the envelope every JSON endpoint answers with.
type Response struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorInfo     `json:"error,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// ErrorInfo is the client visible part of an AppError.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Success writes data with the given status.
func Success(c *gin.Context, statusCode int, data any) {
	SuccessWithMeta(c, statusCode, data, nil)
}

// SuccessWithMeta writes data together with metadata such as the source a feed
// was served from.
func SuccessWithMeta(c *gin.Context, statusCode int, data any, meta map[string]any) {
	c.JSON(statusCode, Response{Success: true, Data: data, Meta: meta})
}

// Error writes the envelope for err. Errors that are not AppErrors become a generic
// 500 so internal messages never reach the client.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	resp := Response{
		Error: &ErrorInfo{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details},
	}
	if id := c.GetString(RequestIDKey); id != "" {
		resp.Meta = map[string]any{"request_id": id}
	}
	c.JSON(status, resp)
}

// Abort writes the error envelope and stops the handler chain.
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}
