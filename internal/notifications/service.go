package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"autopublish/internal/config"
	"autopublish/internal/services"
)

const userAgent = "autopublish/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventPublished    Event = "published"
	EventDrafted      Event = "drafted"
	EventCycleSummary Event = "cycle_summary"
	EventAutoFailed   Event = "auto_failed"
	EventError        Event = "error"
	EventTest         Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when a topic is
// configured and a no-op otherwise.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	n := cfg.Notifications
	topic := strings.TrimSpace(n.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(n.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventPublished:    n.Publications,
			EventDrafted:      n.Publications,
			EventCycleSummary: n.CycleSummary,
			EventAutoFailed:   n.AutoFailed,
			EventError:        n.Errors,
			EventTest:         true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
	click    string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventPublished:
		return message{
			title: "Autopublish - Published",
			body:  fmt.Sprintf("📰 Published: %s", payload.str("title")),
			tags:  []string{"autopublish", "published"},
			click: payload.str("url"),
		}, true
	case EventDrafted:
		return message{
			title: "Autopublish - Drafted",
			body:  fmt.Sprintf("📝 Draft created: %s", payload.str("title")),
			tags:  []string{"autopublish", "draft"},
			click: payload.str("url"),
		}, true
	case EventCycleSummary:
		body := fmt.Sprintf("Cycle complete: %d published, %d drafted, %d skipped, %d failed",
			payload.num("published"), payload.num("drafted"), payload.num("skipped"), payload.num("failed"))
		if capped, _ := payload["dailyCapReached"].(bool); capped {
			body += "\nDaily limit reached"
		}
		return message{
			title: "Autopublish - Cycle Summary",
			body:  body,
			tags:  []string{"autopublish", "cycle"},
		}, true
	case EventAutoFailed:
		body := fmt.Sprintf("⛔ Gave up after %d attempts: %s", payload.num("attempts"), payload.str("title"))
		if last := payload.str("error"); last != "" {
			body += "\nLast error: " + last
		}
		return message{
			title:    "Autopublish - Needs Attention",
			body:     body,
			tags:     []string{"autopublish", "auto_failed", "review"},
			priority: "high",
		}, true
	case EventError:
		var b strings.Builder
		b.WriteString("❌ Error")
		if label := payload.str("context"); label != "" {
			b.WriteString(" during ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		if text := payload.str("error"); text != "" {
			b.WriteString(text)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "Autopublish - Error",
			body:     b.String(),
			tags:     []string{"autopublish", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Autopublish - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"autopublish", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "notifications", "build request", "Invalid ntfy topic", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}
	if msg.click != "" {
		req.Header.Set("Click", msg.click)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "notifications", "send", "ntfy unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		marker := services.MarkerForStatus(resp.StatusCode)
		return services.Wrap(marker, "notifications", "send",
			fmt.Sprintf("ntfy returned %d", resp.StatusCode),
			errors.New(strings.TrimSpace(string(body))))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (p Payload) str(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (p Payload) num(key string) int {
	if p == nil {
		return 0
	}
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
