package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/tradedesk/backoffice/internal/application/services"
)

// HistoryHandler exposes the audit trail read endpoint
type HistoryHandler struct {
	history *services.HistoryService
}

// NewHistoryHandler creates a new HistoryHandler
func NewHistoryHandler(history *services.HistoryService) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// RegisterRoutes registers history routes on the given router group
func (h *HistoryHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/history", h.Get)
}

// Get returns the engagement's full audit trail
func (h *HistoryHandler) Get(c *gin.Context) {
	HandleGetEnvelope(c, "history", func() (interface{}, error) {
		return h.history.Get(c.Request.Context(), c.Param("id"))
	})
}
