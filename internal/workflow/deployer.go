package workflow

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrWorkflowNotFound = errors.New("workflow not found")

// Definition is an automation workflow template ready to deploy: the
// raw engine definition plus the credential-id remapping for the
// target workspace.
type Definition struct {
	Name          string            `json:"name"`
	Spec          json.RawMessage   `json:"spec"`
	CredentialMap map[string]string `json:"credential_map,omitempty"`
}

// Instance identifies the droplet a workflow operation is addressed
// to. The workspace and droplet ids bind the signed command; Address is
// where it is delivered.
type Instance struct {
	WorkspaceID string
	DropletID   string
	Address     string
}

// Deployer installs workflows on a provisioned droplet.
type Deployer interface {
	Deploy(ctx context.Context, inst Instance, def Definition) (string, error)
	Activate(ctx context.Context, inst Instance, workflowID string) error
	// Remove takes a deployed workflow out of service; rollback uses it
	// before the droplet itself is reclaimed.
	Remove(ctx context.Context, inst Instance, workflowID string) error
}
