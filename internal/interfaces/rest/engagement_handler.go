package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/tradedesk/backoffice/internal/application/services"
)

// EngagementHandler exposes engagement lifecycle endpoints
type EngagementHandler struct {
	engagements *services.EngagementService
	executor    *services.TransitionExecutor
	documents   *services.DocumentService
}

// NewEngagementHandler creates a new EngagementHandler
func NewEngagementHandler(
	engagements *services.EngagementService,
	executor *services.TransitionExecutor,
	documents *services.DocumentService,
) *EngagementHandler {
	return &EngagementHandler{
		engagements: engagements,
		executor:    executor,
		documents:   documents,
	}
}

// RegisterRoutes registers engagement routes on the given router group
func (h *EngagementHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("/:id/status", h.Status)
	rg.POST("/:id/advance", h.Advance)
	rg.POST("/:id/cancel", h.Cancel)
	rg.GET("/:id/documents", h.ListDocuments)
	rg.GET("/:id/documents/:docId", h.GetDocument)
	rg.POST("/:id/documents", h.AttachDocument)
}

// Create initiates a new engagement from an active template
func (h *EngagementHandler) Create(c *gin.Context) {
	var req struct {
		TemplateID string                 `json:"template_id" binding:"required"`
		Values     map[string]interface{} `json:"values"`
	}
	if !BindJSON(c, &req) {
		return
	}
	HandleCreateEnvelope(c, "engagement", "Engagement created", func() (interface{}, error) {
		return h.engagements.CreateEngagement(c.Request.Context(), req.TemplateID, req.Values, GetUserFromContext(c))
	})
}

// Status returns the engagement's current position and available actions
func (h *EngagementHandler) Status(c *gin.Context) {
	HandleGetEnvelope(c, "status", func() (interface{}, error) {
		return h.engagements.GetStatus(c.Request.Context(), c.Param("id"))
	})
}

// Advance executes the engagement's current step
func (h *EngagementHandler) Advance(c *gin.Context) {
	var req services.AdvanceRequest
	if !BindJSON(c, &req) {
		return
	}
	HandleUpdateEnvelope(c, "result", "Step completed", func() (interface{}, error) {
		return h.executor.Advance(c.Request.Context(), c.Param("id"), GetUserFromContext(c), req)
	})
}

// Cancel abandons an in-progress engagement
func (h *EngagementHandler) Cancel(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !BindJSON(c, &req) {
		return
	}
	HandleUpdateEnvelope(c, "engagement", "Engagement cancelled", func() (interface{}, error) {
		return h.executor.Cancel(c.Request.Context(), c.Param("id"), GetUserFromContext(c), req.Reason)
	})
}

// ListDocuments returns the documents attached to an engagement
func (h *EngagementHandler) ListDocuments(c *gin.Context) {
	HandleGetEnvelope(c, "documents", func() (interface{}, error) {
		return h.documents.List(c.Request.Context(), c.Param("id"))
	})
}

// GetDocument returns one attached document's metadata
func (h *EngagementHandler) GetDocument(c *gin.Context) {
	HandleGetEnvelope(c, "document", func() (interface{}, error) {
		return h.documents.Get(c.Request.Context(), c.Param("id"), c.Param("docId"))
	})
}

// AttachDocument registers a classified document against an engagement
func (h *EngagementHandler) AttachDocument(c *gin.Context) {
	var req services.AttachRequest
	if !BindJSON(c, &req) {
		return
	}
	HandleCreateEnvelope(c, "document", "Document attached", func() (interface{}, error) {
		return h.documents.Attach(c.Request.Context(), c.Param("id"), req, GetUserFromContext(c))
	})
}
