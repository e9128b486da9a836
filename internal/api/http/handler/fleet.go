package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hatchstack/ignition/internal/api/http/dto"
	"github.com/hatchstack/ignition/internal/command"
	"github.com/hatchstack/ignition/internal/sidecar"
	"github.com/hatchstack/ignition/internal/vault"
)

type FleetHandler struct {
	fleet *sidecar.Fleet
	vault vault.Vault
}

func NewFleetHandler(fleet *sidecar.Fleet, credVault vault.Vault) *FleetHandler {
	return &FleetHandler{
		fleet: fleet,
		vault: credVault,
	}
}

// Health polls every droplet in the workspace's fleet
// GET /api/v1/fleet/:workspace_id/health
func (h *FleetHandler) Health(c *gin.Context) {
	workspaceID := c.Param("workspace_id")

	summary, err := h.fleet.HealthCheck(c.Request.Context(), workspaceID)
	if err != nil {
		c.JSON(fleetErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Restart restarts the automation runtime across the fleet
// POST /api/v1/fleet/:workspace_id/restart
func (h *FleetHandler) Restart(c *gin.Context) {
	workspaceID := c.Param("workspace_id")

	summary, err := h.fleet.RestartRuntime(c.Request.Context(), workspaceID)
	if err != nil {
		c.JSON(fleetErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	slog.Info("Fleet runtime restart issued",
		"workspace_id", workspaceID,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed)
	c.JSON(http.StatusOK, summary)
}

// DeployWorkflow pushes a workflow to every droplet in the fleet
// POST /api/v1/fleet/:workspace_id/workflows
func (h *FleetHandler) DeployWorkflow(c *gin.Context) {
	workspaceID := c.Param("workspace_id")

	var req dto.DeployWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.fleet.DeployWorkflow(c.Request.Context(), workspaceID, command.DeployWorkflowPayload{
		Name:          req.Name,
		Spec:          req.Spec,
		CredentialMap: req.CredentialMap,
	})
	if err != nil {
		c.JSON(fleetErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	slog.Info("Fleet workflow deployed",
		"workspace_id", workspaceID,
		"workflow", req.Name,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed)
	c.JSON(http.StatusOK, summary)
}

// InjectCredential stores a credential in the vault and pushes the
// sealed value to every droplet in the fleet
// POST /api/v1/fleet/:workspace_id/credentials
func (h *FleetHandler) InjectCredential(c *gin.Context) {
	workspaceID := c.Param("workspace_id")

	var req dto.InjectCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := c.GetString("user_id")
	if actor == "" {
		actor = "api"
	}

	credID, err := h.vault.Store(c.Request.Context(), workspaceID, vault.CredentialDef{
		Type:  req.Type,
		Name:  req.Name,
		Value: req.Value,
	}, actor)
	if err != nil {
		slog.Error("Failed to store credential", "error", err, "workspace_id", workspaceID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store credential"})
		return
	}

	cred, err := h.vault.Get(c.Request.Context(), credID)
	if err != nil {
		slog.Error("Failed to load stored credential", "error", err, "credential_id", credID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stored credential"})
		return
	}

	summary, err := h.fleet.InjectCredential(c.Request.Context(), workspaceID, command.InjectCredentialPayload{
		Type:        cred.Type,
		Name:        cred.Name,
		SealedValue: cred.SealedValue,
	})
	if err != nil {
		c.JSON(fleetErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	slog.Info("Fleet credential injected",
		"workspace_id", workspaceID,
		"credential_id", credID,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed)
	c.JSON(http.StatusOK, gin.H{"credential_id": credID, "fleet": summary})
}

// RegisterDroplet adds a droplet to a workspace's fleet
// POST /api/v1/fleet/:workspace_id/droplets
func (h *FleetHandler) RegisterDroplet(c *gin.Context) {
	workspaceID := c.Param("workspace_id")

	var req dto.RegisterDropletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.fleet.Register(workspaceID, sidecar.Target{
		WorkspaceID: workspaceID,
		DropletID:   req.DropletID,
		Address:     req.Address,
	})

	slog.Info("Droplet registered",
		"workspace_id", workspaceID,
		"droplet_id", req.DropletID,
		"address", req.Address)
	c.JSON(http.StatusCreated, gin.H{"message": "droplet registered"})
}

// DeregisterDroplet removes a droplet from a workspace's fleet
// DELETE /api/v1/fleet/:workspace_id/droplets/:droplet_id
func (h *FleetHandler) DeregisterDroplet(c *gin.Context) {
	workspaceID := c.Param("workspace_id")
	dropletID := c.Param("droplet_id")

	h.fleet.Deregister(workspaceID, dropletID)
	c.JSON(http.StatusOK, gin.H{"message": "droplet deregistered"})
}

// fleetErrorStatus maps fleet errors to status codes. An empty fleet is
// a 404; everything else is a 500.
func fleetErrorStatus(err error) int {
	if strings.Contains(err.Error(), "no registered droplets") {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
