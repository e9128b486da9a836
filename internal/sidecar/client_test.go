package sidecar

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hatchstack/ignition/internal/command"
)

func testBuilder(t *testing.T) *command.Builder {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	b, err := command.NewBuilder(key)
	require.NoError(t, err)
	return b
}

// agentStub stands in for a sidecar agent; it records the last request
// and answers with a canned response.
type agentStub struct {
	lastToken    string
	lastEnvelope command.Envelope
	respond      func(env command.Envelope) command.Response
}

func startAgentStub(t *testing.T, stub *agentStub) (addr string, port int) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.lastToken = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&stub.lastEnvelope))

		resp := command.Response{Success: true}
		if stub.respond != nil {
			resp = stub.respond(stub.lastEnvelope)
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	p, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, p
}

func TestHealthCheck(t *testing.T) {
	stub := &agentStub{
		respond: func(env command.Envelope) command.Response {
			result, _ := json.Marshal(command.HealthReport{
				Status:  "healthy",
				Runtime: "running",
				Metrics: command.Metrics{ExecutionsTotal: 42},
			})
			return command.Response{Success: true, Result: result}
		},
	}
	addr, port := startAgentStub(t, stub)

	queue := command.NewQueue(time.Hour)
	c := NewClient(testBuilder(t), queue, WithCommandPort(port), WithHTTPClient(http.DefaultClient))

	target := Target{WorkspaceID: "ws-1", DropletID: "droplet-1", Address: addr}
	report, err := c.HealthCheck(context.Background(), target)
	require.NoError(t, err)

	assert.Equal(t, "healthy", report.Status)
	assert.Equal(t, int64(42), report.Metrics.ExecutionsTotal)
	assert.Equal(t, command.ActionHealthCheck, stub.lastEnvelope.Action)
	assert.NotEmpty(t, stub.lastToken)
}

func TestDeployWorkflow(t *testing.T) {
	stub := &agentStub{
		respond: func(env command.Envelope) command.Response {
			result, _ := json.Marshal(command.DeployWorkflowResult{WorkflowID: "wf-7"})
			return command.Response{Success: true, Result: result}
		},
	}
	addr, port := startAgentStub(t, stub)

	queue := command.NewQueue(time.Hour)
	c := NewClient(testBuilder(t), queue, WithCommandPort(port), WithHTTPClient(http.DefaultClient))

	target := Target{WorkspaceID: "ws-1", DropletID: "droplet-1", Address: addr}
	id, err := c.DeployWorkflow(context.Background(), target, command.DeployWorkflowPayload{
		Name: "Email 1",
		Spec: json.RawMessage(`{"nodes":[]}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "wf-7", id)

	var payload command.DeployWorkflowPayload
	require.NoError(t, json.Unmarshal(stub.lastEnvelope.Payload, &payload))
	assert.Equal(t, "Email 1", payload.Name)
}

func TestSendSettlesQueue(t *testing.T) {
	stub := &agentStub{}
	addr, port := startAgentStub(t, stub)

	queue := command.NewQueue(time.Hour)
	c := NewClient(testBuilder(t), queue, WithCommandPort(port), WithHTTPClient(http.DefaultClient))

	target := Target{WorkspaceID: "ws-1", DropletID: "droplet-1", Address: addr}
	require.NoError(t, c.RestartRuntime(context.Background(), target))

	// The command must be settled, not left pending.
	assert.Empty(t, queue.GetPending("droplet-1"))
}

func TestSendAgentRejection(t *testing.T) {
	stub := &agentStub{
		respond: func(env command.Envelope) command.Response {
			return command.Response{Success: false, Error: "runtime container not found"}
		},
	}
	addr, port := startAgentStub(t, stub)

	queue := command.NewQueue(time.Hour)
	c := NewClient(testBuilder(t), queue, WithCommandPort(port), WithHTTPClient(http.DefaultClient))

	target := Target{WorkspaceID: "ws-1", DropletID: "droplet-1", Address: addr}
	err := c.RestartRuntime(context.Background(), target)
	require.Error(t, err)
	assert.ErrorContains(t, err, "runtime container not found")
}

func TestSendNoAddress(t *testing.T) {
	queue := command.NewQueue(time.Hour)
	c := NewClient(testBuilder(t), queue, WithHTTPClient(http.DefaultClient))

	target := Target{WorkspaceID: "ws-1", DropletID: "droplet-1"}
	err := c.RestartRuntime(context.Background(), target)
	assert.ErrorIs(t, err, ErrNoAddress)
}

func TestFreshTokenPerCall(t *testing.T) {
	stub := &agentStub{}
	addr, port := startAgentStub(t, stub)

	queue := command.NewQueue(time.Hour)
	c := NewClient(testBuilder(t), queue, WithCommandPort(port), WithHTTPClient(http.DefaultClient))

	target := Target{WorkspaceID: "ws-1", DropletID: "droplet-1", Address: addr}
	require.NoError(t, c.RestartRuntime(context.Background(), target))
	first := stub.lastToken
	require.NoError(t, c.RestartRuntime(context.Background(), target))

	assert.NotEqual(t, first, stub.lastToken)
}
