package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsmooother/ej-development-sub001/internal/services"
	"github.com/jsmooother/ej-development-sub001/pkg/response"
)

// MediaFeedHandler serves the synchronised media to the public site.
type MediaFeedHandler struct {
	sync *services.SyncService
}

// NewMediaFeedHandler constructs a MediaFeedHandler.
func NewMediaFeedHandler(sync *services.SyncService) (*MediaFeedHandler, error) {
	if sync == nil {
		return nil, errors.New("media feed handler: sync service is required")
	}
	return &MediaFeedHandler{sync: sync}, nil
}

// List GET /api/feed/media
func (h *MediaFeedHandler) List(c *gin.Context) {
	feed, err := h.sync.Feed(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	meta := map[string]any{"source": feed.Source, "count": len(feed.Items)}
	if feed.FetchedAt != nil {
		meta["fetched_at"] = feed.FetchedAt
	}
	response.SuccessWithMeta(c, http.StatusOK, feed.Items, meta)
}
