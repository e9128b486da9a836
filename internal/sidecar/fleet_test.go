package sidecar

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hatchstack/ignition/internal/command"
)

func TestAggregateMetricsWeighted(t *testing.T) {
	agg := AggregateMetrics([]command.Metrics{
		{ExecutionsTotal: 100, ExecutionsSuccess: 90, ExecutionsFailed: 10, AvgDurationMS: 1000},
		{ExecutionsTotal: 200, ExecutionsSuccess: 180, ExecutionsFailed: 20, AvgDurationMS: 1500},
	})

	assert.Equal(t, int64(300), agg.ExecutionsTotal)
	assert.Equal(t, int64(270), agg.ExecutionsSuccess)
	assert.Equal(t, int64(30), agg.ExecutionsFailed)
	// (100*1000 + 200*1500) / 300, weighted rather than the simple mean.
	assert.InDelta(t, 1333.333, agg.AvgDurationMS, 0.001)
}

func TestAggregateMetricsUnequalVolumes(t *testing.T) {
	agg := AggregateMetrics([]command.Metrics{
		{ExecutionsTotal: 1, AvgDurationMS: 10000},
		{ExecutionsTotal: 999, AvgDurationMS: 100},
	})

	// The near-idle instance must barely move the fleet average.
	assert.InDelta(t, 109.9, agg.AvgDurationMS, 0.001)
}

func TestAggregateMetricsEmpty(t *testing.T) {
	agg := AggregateMetrics(nil)
	assert.Zero(t, agg.ExecutionsTotal)
	assert.Zero(t, agg.AvgDurationMS)

	// All-zero volumes must not divide by zero.
	agg = AggregateMetrics([]command.Metrics{{AvgDurationMS: 500}})
	assert.Zero(t, agg.AvgDurationMS)
}

func TestFleetRegister(t *testing.T) {
	f := NewFleet(nil)

	f.Register("ws-1", Target{WorkspaceID: "ws-1", DropletID: "d1", Address: "10.0.0.1"})
	f.Register("ws-1", Target{WorkspaceID: "ws-1", DropletID: "d2", Address: "10.0.0.2"})
	assert.Len(t, f.Targets("ws-1"), 2)

	// Re-registering a droplet replaces its address.
	f.Register("ws-1", Target{WorkspaceID: "ws-1", DropletID: "d1", Address: "10.0.0.9"})
	targets := f.Targets("ws-1")
	assert.Len(t, targets, 2)
	for _, tgt := range targets {
		if tgt.DropletID == "d1" {
			assert.Equal(t, "10.0.0.9", tgt.Address)
		}
	}

	f.Deregister("ws-1", "d1")
	assert.Len(t, f.Targets("ws-1"), 1)

	assert.Empty(t, f.Targets("ws-unknown"))
}
