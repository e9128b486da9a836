package compute

import (
	"context"
	"errors"
)

var ErrInstanceNotFound = errors.New("compute instance not found")

// Instance is a provisioned remote compute instance. Address may be
// empty while the provider is still assigning networking.
type Instance struct {
	ID      string
	Address string
}

// ProvisionRequest carries the tenant's sizing and placement choices.
type ProvisionRequest struct {
	WorkspaceID string
	Size        string
	Region      string
}

// Factory provisions and terminates remote compute instances.
type Factory interface {
	Provision(ctx context.Context, req ProvisionRequest) (Instance, error)
	Terminate(ctx context.Context, instanceID string) error
}
