package imagery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"autopublish/internal/admission"
	"autopublish/internal/config"
	"autopublish/internal/queue"
	"autopublish/internal/services"
)

// HTTPDoer describes the HTTP client used by the attacher.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls POST {endpoint}/attach.
type Client struct {
	endpoint string
	apiKey   string
	client   HTTPDoer
}

// NewClient builds an attacher. A nil client uses http.DefaultClient.
func NewClient(endpoint, apiKey string, client HTTPDoer) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		apiKey:   strings.TrimSpace(apiKey),
		client:   client,
	}
}

// NewConfigured returns an attacher for cfg, or nil when no endpoint is set.
func NewConfigured(cfg *config.Config) *Client {
	if strings.TrimSpace(cfg.Imagery.Endpoint) == "" {
		return nil
	}
	timeout := time.Duration(cfg.Imagery.TimeoutSeconds) * time.Second
	return NewClient(cfg.Imagery.Endpoint, cfg.Imagery.APIKey, &http.Client{Timeout: timeout})
}

type attachRequest struct {
	ReferenceID string `json:"reference_id"`
	URL         string `json:"url,omitempty"`
	Title       string `json:"title"`
	Make        string `json:"make,omitempty"`
	Model       string `json:"model,omitempty"`
	Trim        string `json:"trim,omitempty"`
	ImagePolicy string `json:"image_policy,omitempty"`
}

type attachResponse struct {
	Attached bool   `json:"attached"`
	Method   string `json:"method"`
	ImageURL string `json:"image_url"`
}

// AttachImage requests an image for ref. attached is false when the service
// answered but found nothing usable.
func (c *Client) AttachImage(ctx context.Context, ref queue.PublishedRef, hint admission.ImageHint) (bool, string, error) {
	if c == nil || c.endpoint == "" {
		return false, "", services.Wrap(services.ErrConfiguration, "imagery", "attach", "imagery endpoint not configured", nil)
	}
	body, err := json.Marshal(attachRequest{
		ReferenceID: ref.ID,
		URL:         ref.URL,
		Title:       hint.Title,
		Make:        hint.Make,
		Model:       hint.Model,
		Trim:        hint.Trim,
		ImagePolicy: hint.ImagePolicy,
	})
	if err != nil {
		return false, "", fmt.Errorf("encode attach request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/attach", bytes.NewReader(body))
	if err != nil {
		return false, "", fmt.Errorf("build attach request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		marker := services.ErrTransient
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			marker = services.ErrTimeout
		}
		return false, "", services.Wrap(marker, "imagery", "attach", "request failed", err)
	}
	defer resp.Body.Close()

	if marker := services.MarkerForStatus(resp.StatusCode); marker != nil {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return false, "", services.Wrap(marker, "imagery", "attach",
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}

	var out attachResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return false, "", services.Wrap(services.ErrEmptyResult, "imagery", "attach", "decode response", err)
	}
	if out.Attached && strings.TrimSpace(out.ImageURL) == "" && out.Method == "" {
		return false, "", services.Wrap(services.ErrEmptyResult, "imagery", "attach", "attached without image or method", nil)
	}
	return out.Attached, out.Method, nil
}

// Ping checks that the service answers GET {endpoint}/health.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.endpoint == "" {
		return services.Wrap(services.ErrConfiguration, "imagery", "health", "imagery endpoint not configured", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "imagery", "health", "request failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if marker := services.MarkerForStatus(resp.StatusCode); marker != nil {
		return services.Wrap(marker, "imagery", "health", fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	return nil
}
