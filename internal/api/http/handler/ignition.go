package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hatchstack/ignition/internal/api/http/dto"
	"github.com/hatchstack/ignition/internal/ignition"
	"github.com/hatchstack/ignition/internal/vault"
	"github.com/hatchstack/ignition/internal/workflow"
)

type IgnitionHandler struct {
	orchestrator *ignition.Orchestrator
}

func NewIgnitionHandler(orchestrator *ignition.Orchestrator) *IgnitionHandler {
	return &IgnitionHandler{
		orchestrator: orchestrator,
	}
}

// Ignite provisions a workspace end to end
// POST /api/v1/ignitions
func (h *IgnitionHandler) Ignite(c *gin.Context) {
	var req dto.IgniteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := ignition.Config{
		WorkspaceID:    req.WorkspaceID,
		Size:           req.Size,
		Region:         req.Region,
		Variables:      req.Variables,
		SkipActivation: req.SkipActivation,
	}
	for _, cred := range req.Credentials {
		cfg.Credentials = append(cfg.Credentials, vault.CredentialDef{
			Type:  cred.Type,
			Name:  cred.Name,
			Value: cred.Value,
		})
	}
	for _, wf := range req.Workflows {
		cfg.Workflows = append(cfg.Workflows, workflow.Definition{
			Name:          wf.Name,
			Spec:          wf.Spec,
			CredentialMap: wf.CredentialMap,
		})
	}

	result := h.orchestrator.Ignite(c.Request.Context(), cfg)
	resp := toIgniteResponse(result)

	switch {
	case result.Success:
		c.JSON(http.StatusCreated, resp)
	case strings.Contains(result.Error, "validation failed"):
		c.JSON(http.StatusBadRequest, resp)
	default:
		slog.Error("Ignition request failed",
			"workspace_id", req.WorkspaceID,
			"step", result.ErrorStep,
			"error", result.Error)
		c.JSON(http.StatusInternalServerError, resp)
	}
}

// Cancel requests cooperative cancellation of an in-flight ignition
// POST /api/v1/ignitions/:workspace_id/cancel
func (h *IgnitionHandler) Cancel(c *gin.Context) {
	workspaceID := c.Param("workspace_id")

	if err := h.orchestrator.Cancel(workspaceID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	slog.Info("Cancellation requested via API", "workspace_id", workspaceID)
	c.JSON(http.StatusAccepted, gin.H{"message": "cancellation requested"})
}

// GetState returns the current ignition state for a workspace
// GET /api/v1/ignitions/:workspace_id
func (h *IgnitionHandler) GetState(c *gin.Context) {
	workspaceID := c.Param("workspace_id")

	state := h.orchestrator.GetState(workspaceID)
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ignition for workspace " + workspaceID + " not found"})
		return
	}

	resp := dto.IgnitionStateResponse{
		WorkspaceID:       state.WorkspaceID,
		Step:              string(state.Step),
		Status:            string(state.Status),
		PartitionName:     state.PartitionName,
		DropletID:         state.DropletID,
		Error:             state.Error,
		ErrorStep:         string(state.ErrorStep),
		RollbackPerformed: state.RollbackPerformed,
		StartedAt:         state.StartedAt,
	}
	if !state.FinishedAt.IsZero() {
		finished := state.FinishedAt
		resp.FinishedAt = &finished
	}

	c.JSON(http.StatusOK, resp)
}

func toIgniteResponse(result ignition.Result) dto.IgniteResponse {
	return dto.IgniteResponse{
		Success:             result.Success,
		WorkspaceID:         result.WorkspaceID,
		PartitionName:       result.PartitionName,
		DropletID:           result.DropletID,
		CredentialsInjected: result.CredentialsInjected,
		WorkflowsDeployed:   result.WorkflowsDeployed,
		Error:               result.Error,
		ErrorStep:           string(result.ErrorStep),
		RollbackPerformed:   result.RollbackPerformed,
	}
}
