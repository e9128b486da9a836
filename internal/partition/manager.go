package partition

import (
	"context"
	"errors"
	"strings"
)

var ErrPartitionNotFound = errors.New("partition not found")

// CreateResult reports the partition backing a workspace. AlreadyExisted
// distinguishes a fresh creation from an idempotent replay; rollback
// must never drop a partition it did not create.
type CreateResult struct {
	PartitionName  string
	AlreadyExisted bool
}

// Manager creates and drops isolated per-tenant storage partitions.
// Create is idempotent: concurrent calls for the same workspace must
// converge on a single partition without erroring.
type Manager interface {
	Create(ctx context.Context, workspaceID string) (CreateResult, error)
	Drop(ctx context.Context, partitionName string) error
}

// NameFor derives the deterministic partition name for a workspace, so
// duplicate creations from independent processes agree without
// coordination.
func NameFor(workspaceID string) string {
	return "tenant_" + strings.ReplaceAll(workspaceID, "-", "_")
}
