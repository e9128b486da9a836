package command

import "encoding/json"

// Action identifies a remote operation the control plane can ask a
// sidecar agent to perform.
type Action string

const (
	ActionHealthCheck      Action = "health_check"
	ActionDeployWorkflow   Action = "deploy_workflow"
	ActionActivateWorkflow Action = "activate_workflow"
	ActionInjectCredential Action = "inject_credential"
	ActionRestartRuntime   Action = "restart_runtime"
)

// Envelope is the plaintext request body that travels alongside the
// signed token. The token binds identity; the envelope carries the work.
type Envelope struct {
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type DeployWorkflowPayload struct {
	Name string `json:"name"`
	// Spec is the raw workflow definition as understood by the
	// automation engine on the droplet.
	Spec json.RawMessage `json:"spec"`
	// CredentialMap rewrites template credential placeholders to the
	// credential ids provisioned for this workspace.
	CredentialMap map[string]string `json:"credential_map,omitempty"`
}

type ActivateWorkflowPayload struct {
	WorkflowID string `json:"workflow_id"`
	Active     bool   `json:"active"`
}

// DeployWorkflowResult is the agent's answer to deploy_workflow: the id
// the local automation engine assigned.
type DeployWorkflowResult struct {
	WorkflowID string `json:"workflow_id"`
}

type InjectCredentialPayload struct {
	Type string `json:"type"`
	Name string `json:"name"`
	// SealedValue is the encrypted credential payload; the agent hands
	// it to the local engine without ever seeing the plaintext.
	SealedValue string `json:"sealed_value"`
}

// Metrics is the per-instance execution counter set reported by a
// sidecar health check and aggregated fleet-wide.
type Metrics struct {
	ExecutionsTotal   int64   `json:"executions_total"`
	ExecutionsSuccess int64   `json:"executions_success"`
	ExecutionsFailed  int64   `json:"executions_failed"`
	AvgDurationMS     float64 `json:"avg_duration_ms"`
}

// HealthReport is the result payload of a health_check command.
type HealthReport struct {
	Status  string  `json:"status"`
	Runtime string  `json:"runtime"`
	Metrics Metrics `json:"metrics"`
}

// Response is what the agent returns for any executed command.
type Response struct {
	Success    bool            `json:"success"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMS int64           `json:"duration_ms"`
}
