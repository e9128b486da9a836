package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hatchstack/ignition/internal/api/http/dto"
)

func TestIgniteLifecycle(t *testing.T, env *Env) {
	t.Run("full provisioning over the wire", func(t *testing.T) {
		body := dto.IgniteRequest{
			WorkspaceID: WorkspaceID,
			Size:        "s-2vcpu-4gb",
			Region:      "nyc3",
			Credentials: []dto.CredentialRequest{
				{Type: "smtpApi", Name: "outbound-smtp", Value: "smtp-secret"},
			},
			Workflows: []dto.WorkflowRequest{
				{Name: "lead-sync", Spec: json.RawMessage(`{"region":"{{region}}"}`)},
			},
			Variables: map[string]string{"region": "nyc3"},
		}

		rr := doJSON(env.Router, "POST", "/api/v1/ignitions", body)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		var resp dto.IgniteResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "tenant_ws_e2e", resp.PartitionName)
		assert.Equal(t, DropletID, resp.DropletID)
		assert.Equal(t, 1, resp.CredentialsInjected)
		assert.Equal(t, 1, resp.WorkflowsDeployed)

		// The agent's engine received the real traffic: a substituted
		// workflow spec and a sealed credential, never the plaintext.
		require.Equal(t, 1, env.Engine.DeployCount())
		assert.Equal(t, "lead-sync", env.Engine.Deployed[0].Name)
		assert.JSONEq(t, `{"region":"nyc3"}`, string(env.Engine.Deployed[0].Spec))

		require.Equal(t, 1, env.Engine.CredentialCount())
		assert.Equal(t, "outbound-smtp", env.Engine.Credentials[0].Name)
		assert.NotEqual(t, "smtp-secret", env.Engine.Credentials[0].SealedValue)
		assert.NotEmpty(t, env.Engine.Credentials[0].SealedValue)

		assert.True(t, env.Engine.Activated["wf-1"])
	})

	t.Run("state reflects completion", func(t *testing.T) {
		rr := doJSON(env.Router, "GET", "/api/v1/ignitions/"+WorkspaceID, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var state dto.IgnitionStateResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &state))
		assert.Equal(t, "completed", state.Status)
		assert.Equal(t, DropletID, state.DropletID)
	})

	t.Run("duplicate ignite is idempotent", func(t *testing.T) {
		before := env.Engine.DeployCount()

		body := dto.IgniteRequest{
			WorkspaceID: WorkspaceID,
			Size:        "s-2vcpu-4gb",
			Region:      "nyc3",
		}
		rr := doJSON(env.Router, "POST", "/api/v1/ignitions", body)
		require.Equal(t, http.StatusCreated, rr.Code)

		var resp dto.IgniteResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "tenant_ws_e2e", resp.PartitionName)

		assert.Equal(t, before, env.Engine.DeployCount())
	})

	t.Run("cancel after completion is rejected", func(t *testing.T) {
		rr := doJSON(env.Router, "POST", "/api/v1/ignitions/"+WorkspaceID+"/cancel", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Contains(t, rr.Body.String(), "not found")
	})
}
