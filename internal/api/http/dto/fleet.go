package dto

import "encoding/json"

type DeployWorkflowRequest struct {
	Name          string            `json:"name" binding:"required"`
	Spec          json.RawMessage   `json:"spec" binding:"required"`
	CredentialMap map[string]string `json:"credential_map,omitempty"`
}

type InjectCredentialRequest struct {
	Type  string `json:"type" binding:"required"`
	Name  string `json:"name" binding:"required"`
	Value string `json:"value" binding:"required"`
}

type RegisterDropletRequest struct {
	DropletID string `json:"droplet_id" binding:"required"`
	Address   string `json:"address" binding:"required"`
}
