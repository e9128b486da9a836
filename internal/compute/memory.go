package compute

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is the deterministic in-process Factory used by orchestrator
// tests and local development. The knobs simulate provider behavior:
// a slow provider, a failing one, or one that has not assigned an
// address yet.
type Memory struct {
	mu        sync.Mutex
	instances map[string]Instance

	// Delay is applied before Provision returns.
	Delay time.Duration
	// Err, when set, fails every Provision call.
	Err error
	// OmitAddress provisions instances with no network address.
	OmitAddress bool
	// TerminateErr, when set, fails every Terminate call.
	TerminateErr error

	TerminateCalls int
}

func NewMemory() *Memory {
	return &Memory{
		instances: make(map[string]Instance),
	}
}

func (m *Memory) Provision(ctx context.Context, req ProvisionRequest) (Instance, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return Instance{}, ctx.Err()
		}
	}
	if m.Err != nil {
		return Instance{}, m.Err
	}

	inst := Instance{ID: "droplet-" + uuid.NewString()[:8]}
	if !m.OmitAddress {
		inst.Address = fmt.Sprintf("10.0.%d.%d", len(inst.ID)%250, 10)
	}

	m.mu.Lock()
	m.instances[inst.ID] = inst
	m.mu.Unlock()

	return inst, nil
}

func (m *Memory) Terminate(ctx context.Context, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TerminateCalls++
	if m.TerminateErr != nil {
		return m.TerminateErr
	}
	if _, ok := m.instances[instanceID]; !ok {
		return ErrInstanceNotFound
	}
	delete(m.instances, instanceID)
	return nil
}

// Count returns the number of live instances.
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.instances)
}
