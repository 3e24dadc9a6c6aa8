package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"autopublish/internal/queue"
	"autopublish/internal/services"
)

const userAgent = "autopublish/0.1.0"

// HTTPDoer describes the HTTP client used by the HTTP publisher.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTP publishes through a CMS REST endpoint:
//
//	POST   {endpoint}/articles        body: Article  -> {"id": "...", "url": "..."}
//	DELETE {endpoint}/articles/{id}
type HTTP struct {
	endpoint string
	apiKey   string
	client   HTTPDoer
}

// NewHTTP builds an HTTP publisher. A nil client uses http.DefaultClient.
func NewHTTP(endpoint, apiKey string, client HTTPDoer) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		apiKey:   strings.TrimSpace(apiKey),
		client:   client,
	}
}

type publishResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Publish posts the article and returns the CMS reference.
func (h *HTTP) Publish(ctx context.Context, c *queue.Candidate, draft bool) (queue.PublishedRef, error) {
	article := NewArticle(c, draft)
	body, err := json.Marshal(article)
	if err != nil {
		return queue.PublishedRef{}, services.Wrap(services.ErrValidation, "publisher", "encode", "article payload", err)
	}

	req, err := h.newRequest(ctx, http.MethodPost, h.endpoint+"/articles", bytes.NewReader(body))
	if err != nil {
		return queue.PublishedRef{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out publishResponse
	if err := h.do(req, "publish", &out); err != nil {
		return queue.PublishedRef{}, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return queue.PublishedRef{}, services.Wrap(services.ErrEmptyResult, "publisher", "publish", "response carried no article id", nil)
	}
	return queue.PublishedRef{
		ID:    out.ID,
		URL:   out.URL,
		Title: article.Title,
		Draft: draft,
	}, nil
}

// Unpublish deletes the article. An article the CMS no longer knows about
// counts as withdrawn.
func (h *HTTP) Unpublish(ctx context.Context, ref queue.PublishedRef) error {
	if strings.TrimSpace(ref.ID) == "" {
		return errors.New("unpublish: empty reference")
	}
	req, err := h.newRequest(ctx, http.MethodDelete, h.endpoint+"/articles/"+url.PathEscape(ref.ID), nil)
	if err != nil {
		return err
	}
	err = h.do(req, "unpublish", nil)
	if errors.Is(err, services.ErrNotFound) {
		return nil
	}
	return err
}

// Ping checks that the endpoint answers. Used by preflight.
func (h *HTTP) Ping(ctx context.Context) error {
	req, err := h.newRequest(ctx, http.MethodGet, h.endpoint+"/health", nil)
	if err != nil {
		return err
	}
	return h.do(req, "health", nil)
}

func (h *HTTP) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	if h.endpoint == "" {
		return nil, services.Wrap(services.ErrConfiguration, "publisher", strings.ToLower(method), "publisher endpoint not configured", nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build publisher request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}
	return req, nil
}

func (h *HTTP) do(req *http.Request, op string, out any) error {
	resp, err := h.client.Do(req)
	if err != nil {
		return services.Wrap(transportMarker(err), "publisher", op, req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	if marker := services.MarkerForStatus(resp.StatusCode); marker != nil {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if text := strings.TrimSpace(string(snippet)); text != "" {
			msg += ": " + text
		}
		return services.Wrap(marker, "publisher", op, msg, nil)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return services.Wrap(services.ErrEmptyResult, "publisher", op, "decode response", err)
	}
	return nil
}

func transportMarker(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return services.ErrTimeout
	}
	return services.ErrTransient
}
