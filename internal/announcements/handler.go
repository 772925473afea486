package announcements

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/conference-central/backend/pkg/response"
)

// Announcement is the body of GET /announcement.
type Announcement struct {
	Message string `json:"message"`
}

// Handler serves the cached announcement.
type Handler struct {
	cache  Cache
	logger *zap.Logger
}

// NewHandler creates an announcement handler.
func NewHandler(cache Cache, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{cache: cache, logger: logger}
}

// Get handles GET /announcement.
func (h *Handler) Get(c *gin.Context) {
	msg, ok, err := h.cache.Get(c.Request.Context())
	if err != nil {
		h.logger.Error("read announcement", zap.Error(err))
		response.Internal(c, "failed to read announcement")
		return
	}
	if !ok {
		response.NoContent(c)
		return
	}
	response.OK(c, Announcement{Message: msg})
}
