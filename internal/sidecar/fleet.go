package sidecar

import (
	"context"
	"fmt"
	"sync"

	"github.com/hatchstack/ignition/internal/command"
)

// Fleet tracks which droplets serve each workspace and fans commands
// out across them.
type Fleet struct {
	client *Client

	mu      sync.RWMutex
	targets map[string][]Target // workspace id -> droplets
}

func NewFleet(client *Client) *Fleet {
	return &Fleet{
		client:  client,
		targets: make(map[string][]Target),
	}
}

// Register adds a droplet to a workspace's fleet. Registering the same
// droplet id again replaces its entry (the address may have changed).
func (f *Fleet) Register(workspaceID string, t Target) {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing := f.targets[workspaceID]
	for i, cur := range existing {
		if cur.DropletID == t.DropletID {
			existing[i] = t
			return
		}
	}
	f.targets[workspaceID] = append(existing, t)
}

// Deregister removes a droplet from a workspace's fleet.
func (f *Fleet) Deregister(workspaceID, dropletID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing := f.targets[workspaceID]
	for i, cur := range existing {
		if cur.DropletID == dropletID {
			f.targets[workspaceID] = append(existing[:i], existing[i+1:]...)
			return
		}
	}
}

// Targets returns a copy of the workspace's fleet.
func (f *Fleet) Targets(workspaceID string) []Target {
	f.mu.RLock()
	defer f.mu.RUnlock()

	existing := f.targets[workspaceID]
	out := make([]Target, len(existing))
	copy(out, existing)
	return out
}

// HealthSummary is the fleet-wide aggregation of per-instance health
// reports.
type HealthSummary struct {
	Instances  int                             `json:"instances"`
	Healthy    int                             `json:"healthy"`
	Unhealthy  int                             `json:"unhealthy"`
	Aggregated command.Metrics                 `json:"aggregated"`
	Reports    map[string]command.HealthReport `json:"reports"`
	Errors     map[string]string               `json:"errors,omitempty"`
}

// OpSummary reports a fleet-wide command fan-out.
type OpSummary struct {
	Instances int               `json:"instances"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// HealthCheck polls every droplet in the workspace's fleet and
// aggregates the metric sets. Per-instance failures are reported, not
// fatal.
func (f *Fleet) HealthCheck(ctx context.Context, workspaceID string) (HealthSummary, error) {
	targets := f.Targets(workspaceID)
	if len(targets) == 0 {
		return HealthSummary{}, fmt.Errorf("workspace %s has no registered droplets", workspaceID)
	}

	summary := HealthSummary{
		Instances: len(targets),
		Reports:   make(map[string]command.HealthReport),
		Errors:    make(map[string]string),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	var metricSets []command.Metrics

	for _, t := range targets {
		wg.Add(1)
		go func(t Target) {
			defer wg.Done()
			report, err := f.client.HealthCheck(ctx, t)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Unhealthy++
				summary.Errors[t.DropletID] = err.Error()
				return
			}
			summary.Healthy++
			summary.Reports[t.DropletID] = report
			metricSets = append(metricSets, report.Metrics)
		}(t)
	}
	wg.Wait()

	summary.Aggregated = AggregateMetrics(metricSets)
	return summary, nil
}

// RestartRuntime restarts the automation runtime on every droplet in
// the fleet.
func (f *Fleet) RestartRuntime(ctx context.Context, workspaceID string) (OpSummary, error) {
	return f.fanOut(ctx, workspaceID, func(ctx context.Context, t Target) error {
		return f.client.RestartRuntime(ctx, t)
	})
}

// DeployWorkflow deploys the same workflow to every droplet in the
// fleet.
func (f *Fleet) DeployWorkflow(ctx context.Context, workspaceID string, p command.DeployWorkflowPayload) (OpSummary, error) {
	return f.fanOut(ctx, workspaceID, func(ctx context.Context, t Target) error {
		_, err := f.client.DeployWorkflow(ctx, t, p)
		return err
	})
}

// InjectCredential pushes the same sealed credential to every droplet
// in the fleet.
func (f *Fleet) InjectCredential(ctx context.Context, workspaceID string, p command.InjectCredentialPayload) (OpSummary, error) {
	return f.fanOut(ctx, workspaceID, func(ctx context.Context, t Target) error {
		return f.client.InjectCredential(ctx, t, p)
	})
}

func (f *Fleet) fanOut(ctx context.Context, workspaceID string, op func(context.Context, Target) error) (OpSummary, error) {
	targets := f.Targets(workspaceID)
	if len(targets) == 0 {
		return OpSummary{}, fmt.Errorf("workspace %s has no registered droplets", workspaceID)
	}

	summary := OpSummary{
		Instances: len(targets),
		Errors:    make(map[string]string),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(t Target) {
			defer wg.Done()
			err := op(ctx, t)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				summary.Errors[t.DropletID] = err.Error()
				return
			}
			summary.Succeeded++
		}(t)
	}
	wg.Wait()

	return summary, nil
}

// AggregateMetrics combines per-instance counter sets. Counts are
// summed; average duration is weighted by each instance's execution
// volume, not simple-averaged, so a busy instance moves the fleet
// figure proportionally.
func AggregateMetrics(sets []command.Metrics) command.Metrics {
	var agg command.Metrics
	var weighted float64

	for _, m := range sets {
		agg.ExecutionsTotal += m.ExecutionsTotal
		agg.ExecutionsSuccess += m.ExecutionsSuccess
		agg.ExecutionsFailed += m.ExecutionsFailed
		weighted += float64(m.ExecutionsTotal) * m.AvgDurationMS
	}

	if agg.ExecutionsTotal > 0 {
		agg.AvgDurationMS = weighted / float64(agg.ExecutionsTotal)
	}
	return agg
}
