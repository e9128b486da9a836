package sidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/hatchstack/ignition/internal/command"
)

// DefaultCommandPort is the fixed port every sidecar agent listens on.
const DefaultCommandPort = 8777

var ErrNoAddress = errors.New("droplet has no network address")

// Target addresses one sidecar agent: the workspace and droplet the
// command token is bound to, and where to deliver it.
type Target struct {
	WorkspaceID string
	DropletID   string
	Address     string
}

// Client issues signed commands to sidecar agents. Every call mints a
// fresh single-use token, records the command in the queue, delivers it
// over HTTP, and settles the queue entry with the measured duration.
type Client struct {
	builder *command.Builder
	queue   *command.Queue
	http    *http.Client
	port    int
}

type ClientOption func(*Client)

func WithCommandPort(port int) ClientOption {
	return func(c *Client) { c.port = port }
}

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

func NewClient(builder *command.Builder, queue *command.Queue, opts ...ClientOption) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	c := &Client{
		builder: builder,
		queue:   queue,
		http:    retryClient.StandardClient(),
		port:    DefaultCommandPort,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) HealthCheck(ctx context.Context, t Target) (command.HealthReport, error) {
	result, err := c.send(ctx, t, command.ActionHealthCheck, nil)
	if err != nil {
		return command.HealthReport{}, err
	}

	var report command.HealthReport
	if err := json.Unmarshal(result, &report); err != nil {
		return command.HealthReport{}, fmt.Errorf("unmarshal health report: %w", err)
	}
	return report, nil
}

// DeployWorkflow pushes a workflow definition to the agent and returns
// the id the automation engine assigned.
func (c *Client) DeployWorkflow(ctx context.Context, t Target, p command.DeployWorkflowPayload) (string, error) {
	result, err := c.send(ctx, t, command.ActionDeployWorkflow, p)
	if err != nil {
		return "", err
	}

	var deployed command.DeployWorkflowResult
	if err := json.Unmarshal(result, &deployed); err != nil {
		return "", fmt.Errorf("unmarshal deploy result: %w", err)
	}
	return deployed.WorkflowID, nil
}

func (c *Client) ActivateWorkflow(ctx context.Context, t Target, workflowID string) error {
	_, err := c.send(ctx, t, command.ActionActivateWorkflow, command.ActivateWorkflowPayload{
		WorkflowID: workflowID,
		Active:     true,
	})
	return err
}

// DeactivateWorkflow turns a deployed workflow off; used by rollback
// before the droplet itself is terminated.
func (c *Client) DeactivateWorkflow(ctx context.Context, t Target, workflowID string) error {
	_, err := c.send(ctx, t, command.ActionActivateWorkflow, command.ActivateWorkflowPayload{
		WorkflowID: workflowID,
		Active:     false,
	})
	return err
}

func (c *Client) InjectCredential(ctx context.Context, t Target, p command.InjectCredentialPayload) error {
	_, err := c.send(ctx, t, command.ActionInjectCredential, p)
	return err
}

func (c *Client) RestartRuntime(ctx context.Context, t Target) error {
	_, err := c.send(ctx, t, command.ActionRestartRuntime, nil)
	return err
}

func (c *Client) send(ctx context.Context, t Target, action command.Action, payload any) (json.RawMessage, error) {
	if t.Address == "" {
		return nil, fmt.Errorf("%w: droplet %s", ErrNoAddress, t.DropletID)
	}

	cmd, err := c.builder.Build(t.WorkspaceID, t.DropletID, action, payload)
	if err != nil {
		return nil, fmt.Errorf("build %s command: %w", action, err)
	}

	id := c.queue.Enqueue(t.WorkspaceID, t.DropletID, action, cmd.Token)
	start := time.Now()

	result, err := c.deliver(ctx, t, cmd)
	duration := time.Since(start)

	if err != nil {
		if updateErr := c.queue.UpdateStatus(id, command.StatusFailed, nil, err.Error(), duration); updateErr != nil {
			slog.Warn("Failed to settle command", "command_id", id, "error", updateErr)
		}
		return nil, err
	}

	if updateErr := c.queue.UpdateStatus(id, command.StatusCompleted, result, "", duration); updateErr != nil {
		slog.Warn("Failed to settle command", "command_id", id, "error", updateErr)
	}
	return result, nil
}

func (c *Client) deliver(ctx context.Context, t Target, cmd *command.SignedCommand) (json.RawMessage, error) {
	body, err := json.Marshal(cmd.Envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	url := fmt.Sprintf("http://%s:%d/v1/commands", t.Address, c.port)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cmd.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deliver %s to %s: %w", cmd.Envelope.Action, t.DropletID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read agent response: %w", err)
	}

	var agentResp command.Response
	if err := json.Unmarshal(data, &agentResp); err != nil {
		return nil, fmt.Errorf("agent %s returned %d: %s", t.DropletID, resp.StatusCode, data)
	}
	if !agentResp.Success {
		return nil, fmt.Errorf("agent %s rejected %s: %s", t.DropletID, cmd.Envelope.Action, agentResp.Error)
	}
	return agentResp.Result, nil
}
