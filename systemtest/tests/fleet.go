package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hatchstack/ignition/internal/api/http/dto"
	"github.com/hatchstack/ignition/internal/sidecar"
)

// TestFleetOperations runs after TestIgniteLifecycle: ignition
// registered the droplet into the workspace's fleet.
func TestFleetOperations(t *testing.T, env *Env) {
	t.Run("fleet health aggregates agent metrics", func(t *testing.T) {
		rr := doJSON(env.Router, "GET", "/api/v1/fleet/"+WorkspaceID+"/health", nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var summary sidecar.HealthSummary
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
		assert.Equal(t, 1, summary.Instances)
		assert.Equal(t, 1, summary.Healthy)
		assert.Equal(t, int64(50), summary.Aggregated.ExecutionsTotal)
		assert.InDelta(t, 120, summary.Aggregated.AvgDurationMS, 0.001)

		report, ok := summary.Reports[DropletID]
		require.True(t, ok)
		assert.Equal(t, "ok", report.Status)
		assert.Equal(t, "running", report.Runtime)
	})

	t.Run("fleet restart reaches the runtime", func(t *testing.T) {
		before := env.Runtime.Restarts()

		rr := doJSON(env.Router, "POST", "/api/v1/fleet/"+WorkspaceID+"/restart", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var summary sidecar.OpSummary
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
		assert.Equal(t, 1, summary.Succeeded)
		assert.Zero(t, summary.Failed)

		assert.Equal(t, before+1, env.Runtime.Restarts())
	})

	t.Run("fleet workflow deploy", func(t *testing.T) {
		before := env.Engine.DeployCount()

		body := dto.DeployWorkflowRequest{
			Name: "followup-drip",
			Spec: json.RawMessage(`{"nodes":[]}`),
		}
		rr := doJSON(env.Router, "POST", "/api/v1/fleet/"+WorkspaceID+"/workflows", body)
		require.Equal(t, http.StatusOK, rr.Code)

		assert.Equal(t, before+1, env.Engine.DeployCount())
	})

	t.Run("fleet credential inject seals before sending", func(t *testing.T) {
		before := env.Engine.CredentialCount()

		body := dto.InjectCredentialRequest{
			Type:  "imapApi",
			Name:  "inbox-watch",
			Value: "imap-secret",
		}
		rr := doJSON(env.Router, "POST", "/api/v1/fleet/"+WorkspaceID+"/credentials", body)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		require.Equal(t, before+1, env.Engine.CredentialCount())
		last := env.Engine.Credentials[len(env.Engine.Credentials)-1]
		assert.Equal(t, "inbox-watch", last.Name)
		assert.NotEqual(t, "imap-secret", last.SealedValue)
	})

	t.Run("unknown workspace has no fleet", func(t *testing.T) {
		rr := doJSON(env.Router, "GET", "/api/v1/fleet/ws-ghost/health", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Contains(t, rr.Body.String(), "no registered droplets")
	})
}
