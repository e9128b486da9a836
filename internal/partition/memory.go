package partition

import (
	"context"
	"sync"
)

// Memory is the deterministic in-process Manager used by tests and
// single-node deployments.
type Memory struct {
	mu         sync.Mutex
	partitions map[string]string // workspace id -> partition name

	// CreateCalls counts Create invocations, including idempotent
	// replays. Exposed for orchestrator tests.
	CreateCalls int
}

func NewMemory() *Memory {
	return &Memory{
		partitions: make(map[string]string),
	}
}

func (m *Memory) Create(ctx context.Context, workspaceID string) (CreateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++

	if name, ok := m.partitions[workspaceID]; ok {
		return CreateResult{PartitionName: name, AlreadyExisted: true}, nil
	}

	name := NameFor(workspaceID)
	m.partitions[workspaceID] = name
	return CreateResult{PartitionName: name}, nil
}

func (m *Memory) Drop(ctx context.Context, partitionName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ws, name := range m.partitions {
		if name == partitionName {
			delete(m.partitions, ws)
			return nil
		}
	}
	return ErrPartitionNotFound
}

// Count returns the number of live partitions.
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.partitions)
}
