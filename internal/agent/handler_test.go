package agent

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hatchstack/ignition/internal/command"
)

const (
	testWorkspaceID = "ws-agent-1"
	testDropletID   = "droplet-42"
)

type stubRuntime struct {
	status       string
	restartCalls int
	restartErr   error
}

func (r *stubRuntime) Restart(ctx context.Context) error {
	r.restartCalls++
	return r.restartErr
}

func (r *stubRuntime) Status(ctx context.Context) (string, error) {
	if r.status == "" {
		return "running", nil
	}
	return r.status, nil
}

type stubEngine struct {
	deployed    []command.DeployWorkflowPayload
	activated   map[string]bool
	credentials []command.InjectCredentialPayload
	metrics     command.Metrics

	deployErr error
	statsErr  error
}

func newStubEngine() *stubEngine {
	return &stubEngine{activated: make(map[string]bool)}
}

func (e *stubEngine) Deploy(ctx context.Context, p command.DeployWorkflowPayload) (string, error) {
	if e.deployErr != nil {
		return "", e.deployErr
	}
	e.deployed = append(e.deployed, p)
	return fmt.Sprintf("wf-%d", len(e.deployed)), nil
}

func (e *stubEngine) SetActive(ctx context.Context, workflowID string, active bool) error {
	e.activated[workflowID] = active
	return nil
}

func (e *stubEngine) InjectCredential(ctx context.Context, p command.InjectCredentialPayload) error {
	e.credentials = append(e.credentials, p)
	return nil
}

func (e *stubEngine) Stats(ctx context.Context) (command.Metrics, error) {
	if e.statsErr != nil {
		return command.Metrics{}, e.statsErr
	}
	return e.metrics, nil
}

type agentFixture struct {
	builder *command.Builder
	runtime *stubRuntime
	engine  *stubEngine
	router  *gin.Engine
}

func newAgentFixture(t *testing.T) *agentFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	builder, err := command.NewBuilder(key)
	require.NoError(t, err)

	verifier := command.NewVerifier(&key.PublicKey, testWorkspaceID, testDropletID)
	runtime := &stubRuntime{}
	engine := newStubEngine()

	srv := NewServer(0, verifier, NewCommandHandler(runtime, engine))
	router := gin.New()
	srv.setupRoutes(router)

	return &agentFixture{
		builder: builder,
		runtime: runtime,
		engine:  engine,
		router:  router,
	}
}

func (f *agentFixture) post(t *testing.T, token string, env command.Envelope) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(env)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/commands", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestCommandHandlerDeploysWorkflow(t *testing.T) {
	f := newAgentFixture(t)

	cmd, err := f.builder.Build(testWorkspaceID, testDropletID, command.ActionDeployWorkflow, command.DeployWorkflowPayload{
		Name: "lead-sync",
		Spec: json.RawMessage(`{"nodes":[]}`),
	})
	require.NoError(t, err)

	rec := f.post(t, cmd.Token, cmd.Envelope)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp command.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	var result command.DeployWorkflowResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "wf-1", result.WorkflowID)

	require.Len(t, f.engine.deployed, 1)
	assert.Equal(t, "lead-sync", f.engine.deployed[0].Name)
}

func TestCommandHandlerRejectsReplayedToken(t *testing.T) {
	f := newAgentFixture(t)

	cmd, err := f.builder.Build(testWorkspaceID, testDropletID, command.ActionHealthCheck, nil)
	require.NoError(t, err)

	rec := f.post(t, cmd.Token, cmd.Envelope)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.post(t, cmd.Token, cmd.Envelope)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "replay attack")
}

func TestCommandHandlerRejectsWrongDroplet(t *testing.T) {
	f := newAgentFixture(t)

	cmd, err := f.builder.Build(testWorkspaceID, "droplet-other", command.ActionHealthCheck, nil)
	require.NoError(t, err)

	rec := f.post(t, cmd.Token, cmd.Envelope)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Droplet mismatch")
}

func TestCommandHandlerRejectsMissingToken(t *testing.T) {
	f := newAgentFixture(t)

	rec := f.post(t, "", command.Envelope{Action: command.ActionHealthCheck})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "authorization header")
}

func TestCommandHandlerRejectsActionMismatch(t *testing.T) {
	f := newAgentFixture(t)

	cmd, err := f.builder.Build(testWorkspaceID, testDropletID, command.ActionHealthCheck, nil)
	require.NoError(t, err)

	rec := f.post(t, cmd.Token, command.Envelope{Action: command.ActionRestartRuntime})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "signed for action")
	assert.Zero(t, f.runtime.restartCalls)
}

func TestCommandHandlerRestartsRuntime(t *testing.T) {
	f := newAgentFixture(t)

	cmd, err := f.builder.Build(testWorkspaceID, testDropletID, command.ActionRestartRuntime, nil)
	require.NoError(t, err)

	rec := f.post(t, cmd.Token, cmd.Envelope)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.runtime.restartCalls)
}

func TestCommandHandlerHealthReport(t *testing.T) {
	f := newAgentFixture(t)
	f.engine.metrics = command.Metrics{
		ExecutionsTotal:   120,
		ExecutionsSuccess: 115,
		ExecutionsFailed:  5,
		AvgDurationMS:     480.5,
	}

	cmd, err := f.builder.Build(testWorkspaceID, testDropletID, command.ActionHealthCheck, nil)
	require.NoError(t, err)

	rec := f.post(t, cmd.Token, cmd.Envelope)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp command.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)

	var report command.HealthReport
	require.NoError(t, json.Unmarshal(resp.Result, &report))
	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, "running", report.Runtime)
	assert.Equal(t, int64(120), report.Metrics.ExecutionsTotal)
	assert.InDelta(t, 480.5, report.Metrics.AvgDurationMS, 0.001)
}

func TestCommandHandlerDegradedWhenRuntimeStopped(t *testing.T) {
	f := newAgentFixture(t)
	f.runtime.status = "exited"

	cmd, err := f.builder.Build(testWorkspaceID, testDropletID, command.ActionHealthCheck, nil)
	require.NoError(t, err)

	rec := f.post(t, cmd.Token, cmd.Envelope)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp command.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	var report command.HealthReport
	require.NoError(t, json.Unmarshal(resp.Result, &report))
	assert.Equal(t, "degraded", report.Status)
	assert.Equal(t, "exited", report.Runtime)
}

func TestCommandHandlerReportsEngineFailure(t *testing.T) {
	f := newAgentFixture(t)
	f.engine.deployErr = fmt.Errorf("engine quota exceeded")

	cmd, err := f.builder.Build(testWorkspaceID, testDropletID, command.ActionDeployWorkflow, command.DeployWorkflowPayload{
		Name: "doomed",
		Spec: json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	rec := f.post(t, cmd.Token, cmd.Envelope)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp command.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "engine quota exceeded")
}

func TestCommandHandlerInjectsCredential(t *testing.T) {
	f := newAgentFixture(t)

	cmd, err := f.builder.Build(testWorkspaceID, testDropletID, command.ActionInjectCredential, command.InjectCredentialPayload{
		Type:        "smtpApi",
		Name:        "outbound-smtp",
		SealedValue: "sealed-opaque-blob",
	})
	require.NoError(t, err)

	rec := f.post(t, cmd.Token, cmd.Envelope)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, f.engine.credentials, 1)
	assert.Equal(t, "sealed-opaque-blob", f.engine.credentials[0].SealedValue)
}

func TestEngineClientAppliesCredentialMap(t *testing.T) {
	var got struct {
		Name     string          `json:"name"`
		Workflow json.RawMessage `json:"workflow"`
	}

	engineSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/workflows", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"engine-wf-9"}`)
	}))
	defer engineSrv.Close()

	client := NewEngineClient(engineSrv.URL, "test-key")
	id, err := client.Deploy(context.Background(), command.DeployWorkflowPayload{
		Name:          "mapped",
		Spec:          json.RawMessage(`{"credentials":{"id":"TEMPLATE_CRED"}}`),
		CredentialMap: map[string]string{"TEMPLATE_CRED": "cred-live-7"},
	})
	require.NoError(t, err)

	assert.Equal(t, "engine-wf-9", id)
	assert.Equal(t, "mapped", got.Name)
	assert.JSONEq(t, `{"credentials":{"id":"cred-live-7"}}`, string(got.Workflow))
}
