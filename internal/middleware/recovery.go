package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/jsmooother/ej-development-sub001/pkg/errors"
	"github.com/jsmooother/ej-development-sub001/pkg/logger"
	"github.com/jsmooother/ej-development-sub001/pkg/response"
)

// Recovery turns a handler panic into the 500 envelope. http.ErrAbortHandler is
// re-raised so net/http can drop the connection, and a client that hung up gets
// no body at all.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			log := logger.WithModule("http").With(
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", RequestID(c)),
			)
			if err, ok := rec.(error); ok && clientGone(err) {
				log.Warn("client disconnected", zap.Error(err))
				c.Abort()
				return
			}

			log.Error("panic", zap.Any("error", rec), zap.Stack("stack"))
			if c.Writer.Written() {
				c.Abort()
				return
			}
			response.Abort(c, apperrors.ErrInternalServer)
		}()
		c.Next()
	}
}

func clientGone(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET)
}

// NotFoundHandler answers unknown routes with the JSON 404 envelope.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, apperrors.ErrNotFound.WithDetails(fmt.Sprintf("no route for %s %s", c.Request.Method, c.Request.URL.Path)))
}
