package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/tradedesk/backoffice/internal/application/services"
	"github.com/tradedesk/backoffice/internal/domain/models"
)

// TemplateHandler exposes template administration endpoints
type TemplateHandler struct {
	templates *services.TemplateService
}

// NewTemplateHandler creates a new TemplateHandler
func NewTemplateHandler(templates *services.TemplateService) *TemplateHandler {
	return &TemplateHandler{templates: templates}
}

// RegisterRoutes registers template routes on the given router group
func (h *TemplateHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Deactivate)
	rg.POST("/:id/steps", h.AddStep)
	rg.PUT("/:id/steps/:stepId", h.UpdateStep)
	rg.PUT("/:id/steps", h.Reorder)
}

// List returns all templates ordered for display
func (h *TemplateHandler) List(c *gin.Context) {
	HandleGetEnvelope(c, "templates", func() (interface{}, error) {
		return h.templates.ListTemplates(c.Request.Context())
	})
}

// Get returns one template with its steps
func (h *TemplateHandler) Get(c *gin.Context) {
	HandleGetEnvelope(c, "template", func() (interface{}, error) {
		return h.templates.GetTemplate(c.Request.Context(), c.Param("id"))
	})
}

// Create defines a new template
func (h *TemplateHandler) Create(c *gin.Context) {
	var template models.Template
	if !BindJSON(c, &template) {
		return
	}
	HandleCreateEnvelope(c, "template", "Template created", func() (interface{}, error) {
		if err := h.templates.CreateTemplate(c.Request.Context(), &template); err != nil {
			return nil, err
		}
		return &template, nil
	})
}

// Update edits the template header attributes
func (h *TemplateHandler) Update(c *gin.Context) {
	var update services.TemplateUpdate
	if !BindJSON(c, &update) {
		return
	}
	HandleUpdateEnvelope(c, "template", "Template updated", func() (interface{}, error) {
		return h.templates.UpdateTemplate(c.Request.Context(), c.Param("id"), update)
	})
}

// AddStep appends a step to the end of a template's lifecycle
func (h *TemplateHandler) AddStep(c *gin.Context) {
	var step models.Step
	if !BindJSON(c, &step) {
		return
	}
	HandleUpdateEnvelope(c, "template", "Step added", func() (interface{}, error) {
		return h.templates.AddStep(c.Request.Context(), c.Param("id"), step)
	})
}

// UpdateStep replaces a step definition in place
func (h *TemplateHandler) UpdateStep(c *gin.Context) {
	var step models.Step
	if !BindJSON(c, &step) {
		return
	}
	HandleUpdateEnvelope(c, "template", "Step updated", func() (interface{}, error) {
		return h.templates.UpdateStep(c.Request.Context(), c.Param("id"), c.Param("stepId"), step)
	})
}

// Reorder rearranges a template's steps to the given id sequence
func (h *TemplateHandler) Reorder(c *gin.Context) {
	var req struct {
		StepIDs []string `json:"step_ids" binding:"required"`
	}
	if !BindJSON(c, &req) {
		return
	}
	HandleUpdateEnvelope(c, "template", "Steps reordered", func() (interface{}, error) {
		return h.templates.ReorderSteps(c.Request.Context(), c.Param("id"), req.StepIDs)
	})
}

// Deactivate soft-deletes a template; existing engagements keep running
func (h *TemplateHandler) Deactivate(c *gin.Context) {
	HandleUpdateEnvelope(c, "", "Template deactivated", func() (interface{}, error) {
		return nil, h.templates.DeactivateTemplate(c.Request.Context(), c.Param("id"))
	})
}
