package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hatchstack/ignition/internal/command"
)

// WorkflowEngine is the local automation engine the agent manages on
// behalf of the control plane.
type WorkflowEngine interface {
	Deploy(ctx context.Context, p command.DeployWorkflowPayload) (string, error)
	SetActive(ctx context.Context, workflowID string, active bool) error
	InjectCredential(ctx context.Context, p command.InjectCredentialPayload) error
	Stats(ctx context.Context) (command.Metrics, error)
}

// EngineClient talks to the automation engine's REST API on localhost.
type EngineClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewEngineClient(baseURL, apiKey string) *EngineClient {
	return &EngineClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type engineWorkflow struct {
	ID string `json:"id"`
}

func (c *EngineClient) Deploy(ctx context.Context, p command.DeployWorkflowPayload) (string, error) {
	spec := applyCredentialMap(p.Spec, p.CredentialMap)

	body, err := json.Marshal(map[string]any{
		"name":     p.Name,
		"workflow": json.RawMessage(spec),
	})
	if err != nil {
		return "", fmt.Errorf("marshal workflow: %w", err)
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/api/v1/workflows", body)
	if err != nil {
		return "", fmt.Errorf("deploy workflow %q: %w", p.Name, err)
	}

	var wf engineWorkflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return "", fmt.Errorf("unmarshal workflow response: %w", err)
	}
	return wf.ID, nil
}

func (c *EngineClient) SetActive(ctx context.Context, workflowID string, active bool) error {
	verb := "activate"
	if !active {
		verb = "deactivate"
	}

	_, err := c.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("/api/v1/workflows/%s/%s", workflowID, verb), nil)
	if err != nil {
		return fmt.Errorf("%s workflow %s: %w", verb, workflowID, err)
	}
	return nil
}

func (c *EngineClient) InjectCredential(ctx context.Context, p command.InjectCredentialPayload) error {
	body, err := json.Marshal(map[string]string{
		"type": p.Type,
		"name": p.Name,
		"data": p.SealedValue,
	})
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}

	_, err = c.doRequest(ctx, http.MethodPost, "/api/v1/credentials", body)
	if err != nil {
		return fmt.Errorf("inject credential %q: %w", p.Name, err)
	}
	return nil
}

type engineStats struct {
	Total         int64   `json:"total"`
	Success       int64   `json:"success"`
	Failed        int64   `json:"failed"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

func (c *EngineClient) Stats(ctx context.Context) (command.Metrics, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/api/v1/executions/stats", nil)
	if err != nil {
		return command.Metrics{}, fmt.Errorf("fetch execution stats: %w", err)
	}

	var stats engineStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return command.Metrics{}, fmt.Errorf("unmarshal stats: %w", err)
	}

	return command.Metrics{
		ExecutionsTotal:   stats.Total,
		ExecutionsSuccess: stats.Success,
		ExecutionsFailed:  stats.Failed,
		AvgDurationMS:     stats.AvgDurationMS,
	}, nil
}

func (c *EngineClient) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Engine-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("engine returned %d: %s", resp.StatusCode, data)
	}
	return data, nil
}

// applyCredentialMap rewrites template credential placeholders to the
// ids provisioned for this workspace.
func applyCredentialMap(spec json.RawMessage, credMap map[string]string) json.RawMessage {
	if len(credMap) == 0 || len(spec) == 0 {
		return spec
	}

	s := string(spec)
	for placeholder, id := range credMap {
		s = strings.ReplaceAll(s, placeholder, id)
	}
	return []byte(s)
}
