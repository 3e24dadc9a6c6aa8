package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"autopublish/internal/admission"
	"autopublish/internal/config"
	"autopublish/internal/daemon"
)

// daemonClient talks to a running daemon's HTTP API.
type daemonClient struct {
	base   string
	apiKey string
	http   *http.Client
}

// newDaemonClient returns nil when the API is disabled in cfg.
func newDaemonClient(cfg *config.Config) *daemonClient {
	if cfg == nil || !cfg.API.Enabled || strings.TrimSpace(cfg.API.Bind) == "" {
		return nil
	}
	return &daemonClient{
		base:   "http://" + strings.TrimSpace(cfg.API.Bind),
		apiKey: cfg.API.APIKey,
		http:   &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *daemonClient) status(ctx context.Context) (daemon.Status, error) {
	var out daemon.Status
	err := c.do(ctx, http.MethodGet, "/api/status", &out)
	return out, err
}

func (c *daemonClient) runCycle(ctx context.Context) (admission.Summary, error) {
	var out admission.Summary
	err := c.do(ctx, http.MethodPost, "/api/cycle", &out)
	return out, err
}

func (c *daemonClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact daemon at %s: %w", c.base, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
