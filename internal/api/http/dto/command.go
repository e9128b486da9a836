package dto

import (
	"encoding/json"
	"time"
)

type CommandResponse struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspace_id"`
	DropletID   string          `json:"droplet_id"`
	Action      string          `json:"action"`
	Status      string          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	DurationMS  int64           `json:"duration_ms"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ListCommandsResponse struct {
	Commands []CommandResponse `json:"commands"`
}
