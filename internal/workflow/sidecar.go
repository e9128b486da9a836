package workflow

import (
	"context"

	"github.com/hatchstack/ignition/internal/command"
	"github.com/hatchstack/ignition/internal/sidecar"
)

// SidecarDeployer deploys workflows through the signed command channel
// to the agent running on the droplet.
type SidecarDeployer struct {
	client *sidecar.Client
}

func NewSidecarDeployer(client *sidecar.Client) *SidecarDeployer {
	return &SidecarDeployer{client: client}
}

func target(inst Instance) sidecar.Target {
	return sidecar.Target{
		WorkspaceID: inst.WorkspaceID,
		DropletID:   inst.DropletID,
		Address:     inst.Address,
	}
}

func (d *SidecarDeployer) Deploy(ctx context.Context, inst Instance, def Definition) (string, error) {
	return d.client.DeployWorkflow(ctx, target(inst), command.DeployWorkflowPayload{
		Name:          def.Name,
		Spec:          def.Spec,
		CredentialMap: def.CredentialMap,
	})
}

func (d *SidecarDeployer) Activate(ctx context.Context, inst Instance, workflowID string) error {
	return d.client.ActivateWorkflow(ctx, target(inst), workflowID)
}

// Remove deactivates the workflow on the droplet. The droplet is
// terminated right after in any rollback, so deactivation is all the
// remote side needs.
func (d *SidecarDeployer) Remove(ctx context.Context, inst Instance, workflowID string) error {
	return d.client.DeactivateWorkflow(ctx, target(inst), workflowID)
}
