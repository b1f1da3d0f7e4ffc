// Package services provides external service integrations and technical concerns like notifications and tokens
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/simurgh-io/simurgh/app/dto"
	"github.com/simurgh-io/simurgh/config"
)

// VapiClient wraps the voice-call provider's REST API
type VapiClient interface {
	CreateCall(ctx context.Context, req *dto.CreateCallRequest) (*dto.VapiCall, error)
	GetCall(ctx context.Context, callID string) (*dto.VapiCall, error)
	ListPhoneNumbers(ctx context.Context) ([]dto.VapiPhoneNumber, error)
	GetAssistant(ctx context.Context, assistantID string) (*dto.VapiAssistant, error)
	ListAssistants(ctx context.Context) ([]dto.VapiAssistant, error)
}

// VapiClientImpl implements VapiClient over HTTP
type VapiClientImpl struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewVapiClient creates a new provider client from configuration
func NewVapiClient(cfg *config.VapiConfig) VapiClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.vapi.ai"
	}
	return &VapiClientImpl{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *VapiClientImpl) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("vapi %s %s http status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response body: %w", err)
		}
	}
	return nil
}

// CreateCall places an outbound call through the provider
func (c *VapiClientImpl) CreateCall(ctx context.Context, req *dto.CreateCallRequest) (*dto.VapiCall, error) {
	var out dto.VapiCall
	if err := c.doRequest(ctx, http.MethodPost, "/call", req, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("provider returned call without id")
	}
	return &out, nil
}

// GetCall fetches the provider's authoritative state for one call
func (c *VapiClientImpl) GetCall(ctx context.Context, callID string) (*dto.VapiCall, error) {
	if callID == "" {
		return nil, fmt.Errorf("call id is required")
	}
	var out dto.VapiCall
	if err := c.doRequest(ctx, http.MethodGet, "/call/"+callID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPhoneNumbers returns the provider-owned lines available for dialing from
func (c *VapiClientImpl) ListPhoneNumbers(ctx context.Context) ([]dto.VapiPhoneNumber, error) {
	var out []dto.VapiPhoneNumber
	if err := c.doRequest(ctx, http.MethodGet, "/phone-number", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAssistant fetches one assistant (call configuration) by id
func (c *VapiClientImpl) GetAssistant(ctx context.Context, assistantID string) (*dto.VapiAssistant, error) {
	if assistantID == "" {
		return nil, fmt.Errorf("assistant id is required")
	}
	var out dto.VapiAssistant
	if err := c.doRequest(ctx, http.MethodGet, "/assistant/"+assistantID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAssistants returns all assistants configured at the provider
func (c *VapiClientImpl) ListAssistants(ctx context.Context) ([]dto.VapiAssistant, error) {
	var out []dto.VapiAssistant
	if err := c.doRequest(ctx, http.MethodGet, "/assistant", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
