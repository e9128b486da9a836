package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hatchstack/ignition/internal/api/http/dto"
	"github.com/hatchstack/ignition/internal/command"
)

type CommandHandler struct {
	queue *command.Queue
}

func NewCommandHandler(queue *command.Queue) *CommandHandler {
	return &CommandHandler{
		queue: queue,
	}
}

// Get returns one issued command's status and result. The signed token
// itself is never echoed back.
// GET /api/v1/commands/:id
func (h *CommandHandler) Get(c *gin.Context) {
	id := c.Param("id")

	cmd, err := h.queue.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toCommandResponse(cmd))
}

// ListPending returns the pending commands for one droplet
// GET /api/v1/droplets/:droplet_id/commands
func (h *CommandHandler) ListPending(c *gin.Context) {
	dropletID := c.Param("droplet_id")

	pending := h.queue.GetPending(dropletID)
	responses := make([]dto.CommandResponse, len(pending))
	for i, cmd := range pending {
		responses[i] = toCommandResponse(cmd)
	}

	c.JSON(http.StatusOK, dto.ListCommandsResponse{Commands: responses})
}

func toCommandResponse(cmd command.QueuedCommand) dto.CommandResponse {
	return dto.CommandResponse{
		ID:          cmd.ID,
		WorkspaceID: cmd.WorkspaceID,
		DropletID:   cmd.DropletID,
		Action:      string(cmd.Action),
		Status:      string(cmd.Status),
		Result:      cmd.Result,
		Error:       cmd.Error,
		DurationMS:  cmd.Duration.Milliseconds(),
		CreatedAt:   cmd.CreatedAt,
		UpdatedAt:   cmd.UpdatedAt,
	}
}
