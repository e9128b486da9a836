package compute

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// APIFactory provisions instances through a cloud provider's HTTP API.
type APIFactory struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewAPIFactory(baseURL, token string) *APIFactory {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil

	return &APIFactory{
		baseURL: baseURL,
		token:   token,
		http:    retryClient.StandardClient(),
	}
}

type createInstanceRequest struct {
	Name   string `json:"name"`
	Size   string `json:"size"`
	Region string `json:"region"`
}

type instanceResponse struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	Status  string `json:"status"`
}

func (f *APIFactory) Provision(ctx context.Context, req ProvisionRequest) (Instance, error) {
	body, err := json.Marshal(createInstanceRequest{
		Name:   "ignition-" + req.WorkspaceID,
		Size:   req.Size,
		Region: req.Region,
	})
	if err != nil {
		return Instance{}, fmt.Errorf("marshal provision request: %w", err)
	}

	data, err := f.doRequest(ctx, http.MethodPost, "/v2/instances", body)
	if err != nil {
		return Instance{}, fmt.Errorf("provision instance: %w", err)
	}

	var resp instanceResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return Instance{}, fmt.Errorf("unmarshal provision response: %w", err)
	}

	slog.Info("Instance provisioned",
		"workspace_id", req.WorkspaceID,
		"instance_id", resp.ID,
		"region", req.Region)

	return Instance{ID: resp.ID, Address: resp.Address}, nil
}

func (f *APIFactory) Terminate(ctx context.Context, instanceID string) error {
	_, err := f.doRequest(ctx, http.MethodDelete, "/v2/instances/"+instanceID, nil)
	if err != nil {
		return fmt.Errorf("terminate instance %s: %w", instanceID, err)
	}

	slog.Info("Instance terminated", "instance_id", instanceID)
	return nil
}

func (f *APIFactory) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, f.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token)

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrInstanceNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, data)
	}
	return data, nil
}
