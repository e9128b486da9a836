package ignition

import (
	"time"

	"github.com/hatchstack/ignition/internal/vault"
	"github.com/hatchstack/ignition/internal/workflow"
)

// Step is one externally visible phase of an ignition. Steps always
// advance in the order listed; there is no skipping backwards.
type Step string

const (
	StepValidating           Step = "validating"
	StepPartitionCreating    Step = "partition_creating"
	StepDropletProvisioning  Step = "droplet_provisioning"
	StepCredentialsInjecting Step = "credentials_injecting"
	StepWorkflowsDeploying   Step = "workflows_deploying"
	StepActivating           Step = "activating"
	StepCompleted            Step = "completed"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// State is the single mutable record of one workspace's ignition. At
// most one non-terminal State exists per workspace.
type State struct {
	WorkspaceID       string
	Step              Step
	Status            Status
	StepStartedAt     map[Step]time.Time
	PartitionName     string
	DropletID         string
	Error             string
	ErrorStep         Step
	RollbackPerformed bool
	StartedAt         time.Time
	FinishedAt        time.Time
}

func newState(workspaceID string) *State {
	return &State{
		WorkspaceID:   workspaceID,
		Status:        StatusInProgress,
		StepStartedAt: make(map[Step]time.Time),
		StartedAt:     time.Now(),
	}
}

func (s *State) clone() State {
	cp := *s
	cp.StepStartedAt = make(map[Step]time.Time, len(s.StepStartedAt))
	for k, v := range s.StepStartedAt {
		cp.StepStartedAt[k] = v
	}
	return cp
}

// Config is everything one ignite call needs.
type Config struct {
	WorkspaceID string
	Size        string
	Region      string
	Credentials []vault.CredentialDef
	Workflows   []workflow.Definition
	// SkipActivation leaves deployed workflows inactive.
	SkipActivation bool
	// Variables are substituted into workflow specs as {{name}}
	// placeholders. May be empty.
	Variables map[string]string
}

// Result is the structured outcome of an ignite call. Failures are
// always reported here, never as a panic or bare error.
type Result struct {
	Success             bool   `json:"success"`
	WorkspaceID         string `json:"workspace_id"`
	PartitionName       string `json:"partition_name,omitempty"`
	DropletID           string `json:"droplet_id,omitempty"`
	CredentialsInjected int    `json:"credentials_injected"`
	WorkflowsDeployed   int    `json:"workflows_deployed"`
	Error               string `json:"error,omitempty"`
	ErrorStep           Step   `json:"error_step,omitempty"`
	RollbackPerformed   bool   `json:"rollback_performed"`
}

// ProgressFunc observes step transitions. Errors and panics from the
// callback are swallowed; progress reporting can never fail an
// ignition.
type ProgressFunc func(workspaceID string, step Step) error
