package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type deployed struct {
	def    Definition
	active bool
}

// Memory is the deterministic in-process Deployer used by orchestrator
// tests. The error knobs simulate engine failures at chosen points.
type Memory struct {
	mu        sync.Mutex
	workflows map[string]*deployed

	// FailDeployAt fails the Nth Deploy call (1-based) with FailErr.
	FailDeployAt int
	// FailActivate fails every Activate call with FailErr.
	FailActivate bool
	FailErr      error

	deployCalls int
	RemoveCalls int
}

func NewMemory() *Memory {
	return &Memory{
		workflows: make(map[string]*deployed),
	}
}

func (m *Memory) Deploy(ctx context.Context, inst Instance, def Definition) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deployCalls++
	if m.FailDeployAt > 0 && m.deployCalls == m.FailDeployAt {
		if m.FailErr != nil {
			return "", m.FailErr
		}
		return "", fmt.Errorf("engine rejected workflow %q", def.Name)
	}

	id := "wf-" + uuid.NewString()[:8]
	m.workflows[id] = &deployed{def: def}
	return id, nil
}

func (m *Memory) Activate(ctx context.Context, inst Instance, workflowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailActivate {
		if m.FailErr != nil {
			return m.FailErr
		}
		return fmt.Errorf("engine failed to activate workflow %s", workflowID)
	}

	wf, ok := m.workflows[workflowID]
	if !ok {
		return ErrWorkflowNotFound
	}
	wf.active = true
	return nil
}

func (m *Memory) Remove(ctx context.Context, inst Instance, workflowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RemoveCalls++
	if _, ok := m.workflows[workflowID]; !ok {
		return ErrWorkflowNotFound
	}
	delete(m.workflows, workflowID)
	return nil
}

// Definitions returns the currently deployed definitions.
func (m *Memory) Definitions() []Definition {
	m.mu.Lock()
	defer m.mu.Unlock()

	defs := make([]Definition, 0, len(m.workflows))
	for _, wf := range m.workflows {
		defs = append(defs, wf.def)
	}
	return defs
}

// Count returns the number of deployed workflows.
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workflows)
}

// ActiveCount returns the number of activated workflows.
func (m *Memory) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, wf := range m.workflows {
		if wf.active {
			n++
		}
	}
	return n
}
