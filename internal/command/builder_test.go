package command

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestBuild(t *testing.T) {
	b, err := NewBuilder(testKey(t))
	require.NoError(t, err)

	cmd, err := b.Build("ws-1", "droplet-1", ActionHealthCheck, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, cmd.Token)
	assert.NotEmpty(t, cmd.JTI)
	assert.Equal(t, ActionHealthCheck, cmd.Envelope.Action)
	assert.Nil(t, cmd.Envelope.Payload)
	assert.WithinDuration(t, time.Now().Add(defaultTTL), cmd.ExpiresAt, 5*time.Second)
}

func TestBuildPayload(t *testing.T) {
	b, err := NewBuilder(testKey(t))
	require.NoError(t, err)

	cmd, err := b.Build("ws-1", "droplet-1", ActionActivateWorkflow, ActivateWorkflowPayload{WorkflowID: "wf-9"})
	require.NoError(t, err)

	var p ActivateWorkflowPayload
	require.NoError(t, json.Unmarshal(cmd.Envelope.Payload, &p))
	assert.Equal(t, "wf-9", p.WorkflowID)
}

func TestBuildFreshJTI(t *testing.T) {
	b, err := NewBuilder(testKey(t))
	require.NoError(t, err)

	first, err := b.Build("ws-1", "droplet-1", ActionHealthCheck, nil)
	require.NoError(t, err)
	second, err := b.Build("ws-1", "droplet-1", ActionHealthCheck, nil)
	require.NoError(t, err)

	// Building the same logical command twice must yield two
	// distinguishable, independently replayable-once tokens.
	assert.NotEqual(t, first.JTI, second.JTI)
	assert.NotEqual(t, first.Token, second.Token)
}

func TestBuildMissingTarget(t *testing.T) {
	b, err := NewBuilder(testKey(t))
	require.NoError(t, err)

	_, err = b.Build("", "droplet-1", ActionHealthCheck, nil)
	assert.ErrorContains(t, err, "workspace ID")

	_, err = b.Build("ws-1", "", ActionHealthCheck, nil)
	assert.ErrorContains(t, err, "droplet ID")
}

func TestNewBuilderTTLPolicy(t *testing.T) {
	_, err := NewBuilder(testKey(t), WithTTL(10*time.Minute))
	assert.ErrorContains(t, err, "exceeds policy maximum")

	_, err = NewBuilder(testKey(t), WithTTL(-1*time.Second))
	assert.ErrorContains(t, err, "must be positive")

	_, err = NewBuilder(testKey(t), WithTTL(MaxTTL))
	assert.NoError(t, err)
}

func TestNewBuilderNilKey(t *testing.T) {
	_, err := NewBuilder(nil)
	assert.ErrorContains(t, err, "private key")
}
