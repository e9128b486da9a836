package tests

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/hatchstack/ignition/internal/agent"
	internalhttp "github.com/hatchstack/ignition/internal/api/http"
	"github.com/hatchstack/ignition/internal/command"
	"github.com/hatchstack/ignition/internal/compute"
	"github.com/hatchstack/ignition/internal/ignition"
	"github.com/hatchstack/ignition/internal/partition"
	"github.com/hatchstack/ignition/internal/sidecar"
	"github.com/hatchstack/ignition/internal/vault"
	"github.com/hatchstack/ignition/internal/workflow"
)

const (
	WorkspaceID = "ws-e2e"
	DropletID   = "droplet-e2e"
)

// StubEngine stands in for the automation engine on the droplet.
type StubEngine struct {
	mu          sync.Mutex
	Deployed    []command.DeployWorkflowPayload
	Activated   map[string]bool
	Credentials []command.InjectCredentialPayload
	Metrics     command.Metrics
}

func (e *StubEngine) Deploy(ctx context.Context, p command.DeployWorkflowPayload) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Deployed = append(e.Deployed, p)
	return fmt.Sprintf("wf-%d", len(e.Deployed)), nil
}

func (e *StubEngine) SetActive(ctx context.Context, workflowID string, active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Activated[workflowID] = active
	return nil
}

func (e *StubEngine) InjectCredential(ctx context.Context, p command.InjectCredentialPayload) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Credentials = append(e.Credentials, p)
	return nil
}

func (e *StubEngine) Stats(ctx context.Context) (command.Metrics, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Metrics, nil
}

func (e *StubEngine) DeployCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Deployed)
}

func (e *StubEngine) CredentialCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Credentials)
}

// StubRuntime stands in for the docker-managed runtime container.
type StubRuntime struct {
	mu           sync.Mutex
	RestartCalls int
}

func (r *StubRuntime) Restart(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.RestartCalls++
	return nil
}

func (r *StubRuntime) Status(ctx context.Context) (string, error) {
	return "running", nil
}

func (r *StubRuntime) Restarts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.RestartCalls
}

// fixedFactory provisions one well-known droplet whose address points
// at the in-process agent server.
type fixedFactory struct {
	address string
}

func (f *fixedFactory) Provision(ctx context.Context, req compute.ProvisionRequest) (compute.Instance, error) {
	return compute.Instance{ID: DropletID, Address: f.address}, nil
}

func (f *fixedFactory) Terminate(ctx context.Context, instanceID string) error {
	return nil
}

// Env wires a full control plane against a real agent server over
// loopback HTTP: signed tokens, verification, replay cache, the works.
type Env struct {
	Router  *gin.Engine
	Engine  *StubEngine
	Runtime *StubRuntime

	agentServer *httptest.Server
}

func NewEnv(t *testing.T) *Env {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	engine := &StubEngine{
		Activated: make(map[string]bool),
		Metrics: command.Metrics{
			ExecutionsTotal:   50,
			ExecutionsSuccess: 48,
			ExecutionsFailed:  2,
			AvgDurationMS:     120,
		},
	}
	runtime := &StubRuntime{}

	verifier := command.NewVerifier(&key.PublicKey, WorkspaceID, DropletID)
	agentHandler := agent.NewCommandHandler(runtime, engine)

	agentRouter := gin.New()
	agentRouter.POST("/v1/commands", agent.VerifyCommand(verifier), agentHandler.Execute)
	agentServer := httptest.NewServer(agentRouter)

	port, err := strconv.Atoi(agentServer.URL[strings.LastIndex(agentServer.URL, ":")+1:])
	require.NoError(t, err)

	builder, err := command.NewBuilder(key)
	require.NoError(t, err)

	queue := command.NewQueue(time.Hour)
	client := sidecar.NewClient(builder, queue, sidecar.WithCommandPort(port))
	fleet := sidecar.NewFleet(client)

	credVault, err := vault.NewMemory(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)

	orchestrator := ignition.NewOrchestrator(
		partition.NewMemory(),
		&fixedFactory{address: "127.0.0.1"},
		credVault,
		workflow.NewSidecarDeployer(client),
		ignition.WithCredentialInjector(client),
		ignition.WithFleetRegistrar(fleet),
		ignition.WithStepTimeouts(5*time.Second, 5*time.Second))

	router := gin.New()
	internalhttp.SetupRoute(router, &internalhttp.Services{
		Orchestrator: orchestrator,
		Fleet:        fleet,
		Queue:        queue,
		Vault:        credVault,
	})

	return &Env{
		Router:      router,
		Engine:      engine,
		Runtime:     runtime,
		agentServer: agentServer,
	}
}

func (e *Env) Close() {
	e.agentServer.Close()
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var b []byte
	if body != nil {
		b, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}
