package dto

import (
	"encoding/json"
	"time"
)

type CredentialRequest struct {
	Type  string `json:"type" binding:"required"`
	Name  string `json:"name" binding:"required"`
	Value string `json:"value" binding:"required"`
}

type WorkflowRequest struct {
	Name          string            `json:"name" binding:"required"`
	Spec          json.RawMessage   `json:"spec" binding:"required"`
	CredentialMap map[string]string `json:"credential_map,omitempty"`
}

type IgniteRequest struct {
	WorkspaceID    string              `json:"workspace_id" binding:"required"`
	Size           string              `json:"size" binding:"required"`
	Region         string              `json:"region" binding:"required"`
	Credentials    []CredentialRequest `json:"credentials"`
	Workflows      []WorkflowRequest   `json:"workflows"`
	Variables      map[string]string   `json:"variables,omitempty"`
	SkipActivation bool                `json:"skip_activation"`
}

type IgniteResponse struct {
	Success             bool   `json:"success"`
	WorkspaceID         string `json:"workspace_id"`
	PartitionName       string `json:"partition_name,omitempty"`
	DropletID           string `json:"droplet_id,omitempty"`
	CredentialsInjected int    `json:"credentials_injected"`
	WorkflowsDeployed   int    `json:"workflows_deployed"`
	Error               string `json:"error,omitempty"`
	ErrorStep           string `json:"error_step,omitempty"`
	RollbackPerformed   bool   `json:"rollback_performed"`
}

type IgnitionStateResponse struct {
	WorkspaceID       string     `json:"workspace_id"`
	Step              string     `json:"step"`
	Status            string     `json:"status"`
	PartitionName     string     `json:"partition_name,omitempty"`
	DropletID         string     `json:"droplet_id,omitempty"`
	Error             string     `json:"error,omitempty"`
	ErrorStep         string     `json:"error_step,omitempty"`
	RollbackPerformed bool       `json:"rollback_performed"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
