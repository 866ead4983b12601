package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jsmooother/ej-development-sub001/internal/services"
	"github.com/jsmooother/ej-development-sub001/pkg/response"
	appValidator "github.com/jsmooother/ej-development-sub001/pkg/validator"
)

// MediaIntegrationHandler serves the administrator side of the media provider
// integration: consent, callback, sync trigger, status and cache control.
type MediaIntegrationHandler struct {
	conn       *services.ConnectionService
	sync       *services.SyncService
	statusPath string
}

// NewMediaIntegrationHandler constructs the handler. statusPath is the admin page the
// callback redirects to.
func NewMediaIntegrationHandler(conn *services.ConnectionService, sync *services.SyncService, statusPath string) (*MediaIntegrationHandler, error) {
	if conn == nil || sync == nil {
		return nil, errors.New("media integration handler: services are required")
	}
	statusPath = strings.TrimSpace(statusPath)
	if !appValidator.RootPath(statusPath) {
		return nil, errors.New("media integration handler: status path must start with /")
	}
	return &MediaIntegrationHandler{conn: conn, sync: sync, statusPath: statusPath}, nil
}

type connectQuery struct {
	ReturnTo string `form:"return_to" json:"return_to" validate:"omitempty,rootpath"`
}

// Connect GET /api/integrations/media/connect
func (h *MediaIntegrationHandler) Connect(c *gin.Context) {
	var query connectQuery
	if !bindQuery(c, &query) {
		return
	}

	authURL, err := h.conn.Begin(query.ReturnTo)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

type callbackQuery struct {
	Code             string `form:"code"`
	State            string `form:"state"`
	Error            string `form:"error"`
	ErrorReason      string `form:"error_reason"`
	ErrorDescription string `form:"error_description"`
}

// Callback GET /api/integrations/media/callback
//
// Always answers with a redirect to the admin status page; the outcome travels in
// the status and message query parameters.
func (h *MediaIntegrationHandler) Callback(c *gin.Context) {
	var query callbackQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.Redirect(http.StatusSeeOther, h.statusURL("", "error", "Malformed authorization callback"))
		return
	}

	result := h.conn.Complete(requestContext(c), services.CallbackParams{
		Code:             query.Code,
		State:            query.State,
		Error:            query.Error,
		ErrorReason:      query.ErrorReason,
		ErrorDescription: query.ErrorDescription,
	})

	log := requestLogger(c)
	if result.Connected() {
		log.Info("media provider connected", zap.String("username", result.Username))
		c.Redirect(http.StatusSeeOther, h.statusURL(result.ReturnPath, "connected", ""))
		return
	}
	log.Warn("media provider authorization failed",
		zap.String("code", result.Kind.Code),
		zap.String("diagnostic", result.Diagnostic),
	)
	c.Redirect(http.StatusSeeOther, h.statusURL(result.ReturnPath, "error", result.Message))
}

func (h *MediaIntegrationHandler) statusURL(returnPath, status, message string) string {
	target := h.statusPath
	if appValidator.RootPath(returnPath) {
		target = returnPath
	}

	u, err := url.Parse(target)
	if err != nil {
		u = &url.URL{Path: h.statusPath}
	}
	q := u.Query()
	q.Set("status", status)
	if message != "" {
		q.Set("message", message)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type syncRequest struct {
	Force bool `json:"force" form:"force"`
}

// Sync POST /api/integrations/media/sync
func (h *MediaIntegrationHandler) Sync(c *gin.Context) {
	var req syncRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if c.Query("force") == "true" || c.Query("force") == "1" {
		req.Force = true
	}

	result, err := h.sync.Sync(requestContext(c), services.SyncOptions{Force: req.Force})
	if err != nil {
		writeSyncError(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, result, map[string]any{
		"source": result.Source,
		"shared": result.Shared,
	})
}

// Status GET /api/integrations/media/sync
func (h *MediaIntegrationHandler) Status(c *gin.Context) {
	status, err := h.sync.Status(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}

// ClearCache DELETE /api/integrations/media/cache
func (h *MediaIntegrationHandler) ClearCache(c *gin.Context) {
	cleared := h.sync.ClearCache(requestContext(c))
	response.Success(c, http.StatusOK, gin.H{"cleared": cleared})
}

// Disconnect POST /api/integrations/media/disconnect
func (h *MediaIntegrationHandler) Disconnect(c *gin.Context) {
	if err := h.sync.Disconnect(requestContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"disconnected": true})
}

// syncRetryAfter is the Retry-After hint, in seconds, for transient provider failures.
const syncRetryAfter = "60"

func writeSyncError(c *gin.Context, err error) {
	var syncErr *services.SyncError
	if errors.As(err, &syncErr) {
		requestLogger(c).Warn("media sync failed", zap.Error(err), zap.Bool("retryable", syncErr.Retryable()))
		_ = c.Error(err)
		if syncErr.Retryable() {
			c.Header("Retry-After", syncRetryAfter)
		}
		response.Error(c, syncErr.AppError())
		return
	}
	response.Error(c, err)
}
