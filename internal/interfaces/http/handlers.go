package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/schoolops/caseflow/internal/application/engine"
	"github.com/schoolops/caseflow/internal/application/port"
	"github.com/schoolops/caseflow/internal/domain/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine *engine.Engine
	cases  port.CaseDirectory
	logger *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(eng *engine.Engine, cases port.CaseDirectory, logger *zap.Logger) *Handlers {
	return &Handlers{
		engine: eng,
		cases:  cases,
		logger: logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// TransitionRequest is the body of a transition call.
type TransitionRequest struct {
	Action  string `json:"action" binding:"required"`
	ActorID string `json:"actor_id" binding:"required"`
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ExecuteTransition runs a workflow action on a case as the given actor.
// Rejections come back as 200 with accepted=false: they are expected
// outcomes, not errors.
func (h *Handlers) ExecuteTransition(c *gin.Context) {
	caseID := c.Param("id")

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	actor, err := h.cases.GetActor(c.Request.Context(), req.ActorID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	result, err := h.engine.Execute(c.Request.Context(), caseID, req.Action, actor)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// InitializeWorkflow eagerly creates the workflow instance for a case.
// Idempotent.
func (h *Handlers) InitializeWorkflow(c *gin.Context) {
	if err := h.engine.Initialize(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// DeleteWorkflow removes a case's instance and audit trail together.
func (h *Handlers) DeleteWorkflow(c *gin.Context) {
	if err := h.engine.DeleteCase(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// GetStatus returns the workflow read model for a case.
func (h *Handlers) GetStatus(c *gin.Context) {
	status, err := h.engine.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: status})
}

// GetAuditTrail returns the transition attempts recorded for a case.
func (h *Handlers) GetAuditTrail(c *gin.Context) {
	entries, err := h.engine.GetAuditTrail(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// respondError maps engine errors to HTTP status codes.
func (h *Handlers) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, port.ErrCaseNotFound),
		errors.Is(err, workflow.ErrNoWorkflowConfigured):
		// Neither is a server fault: the case does not exist, or its
		// category has no gated lifecycle.
		c.JSON(http.StatusNotFound, Response{Success: false, Error: err.Error()})
	case errors.Is(err, workflow.ErrConcurrentModification):
		c.JSON(http.StatusConflict, Response{Success: false, Error: err.Error()})
	default:
		h.logger.Error("Request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: err.Error()})
	}
}
