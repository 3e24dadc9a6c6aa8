package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"autopublish/internal/admission"
	"autopublish/internal/config"
	"autopublish/internal/notifications"
	"autopublish/internal/queue"
)

type captured struct {
	title    string
	tags     string
	priority string
	click    string
	body     string
}

func captureServer(t *testing.T) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []captured
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			click:    r.Header.Get("Click"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), seen...)
	}
}

func configFor(topic string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	cfg.Notifications.CycleSummary = true
	return &cfg
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventPublished, notifications.Payload{"title": "x"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
		expectClick    string
	}{
		{
			name:          "published",
			event:         notifications.EventPublished,
			payload:       notifications.Payload{"title": "2026 Rivian R2 first look", "url": "https://example.com/r2"},
			expectTitle:   "Autopublish - Published",
			expectMessage: "📰 Published: 2026 Rivian R2 first look",
			expectTags:    "autopublish,published",
			expectClick:   "https://example.com/r2",
		},
		{
			name:          "drafted",
			event:         notifications.EventDrafted,
			payload:       notifications.Payload{"title": "Lucid Gravity pricing"},
			expectTitle:   "Autopublish - Drafted",
			expectMessage: "📝 Draft created: Lucid Gravity pricing",
			expectTags:    "autopublish,draft",
		},
		{
			name:           "auto failed",
			event:          notifications.EventAutoFailed,
			payload:        notifications.Payload{"title": "Civic Type R", "attempts": 3, "error": "cms returned 503"},
			expectTitle:    "Autopublish - Needs Attention",
			expectMessage:  "⛔ Gave up after 3 attempts: Civic Type R\nLast error: cms returned 503",
			expectTags:     "autopublish,auto_failed,review",
			expectPriority: "high",
		},
		{
			name:           "error",
			event:          notifications.EventError,
			payload:        notifications.Payload{"context": "admission cycle", "error": "database is locked"},
			expectTitle:    "Autopublish - Error",
			expectMessage:  "❌ Error during admission cycle: database is locked",
			expectTags:     "autopublish,error,alert",
			expectPriority: "high",
		},
		{
			name:          "cycle summary",
			event:         notifications.EventCycleSummary,
			payload:       notifications.Payload{"published": 2, "drafted": 0, "skipped": 1, "failed": 1, "dailyCapReached": true},
			expectTitle:   "Autopublish - Cycle Summary",
			expectMessage: "Cycle complete: 2 published, 0 drafted, 1 skipped, 1 failed\nDaily limit reached",
			expectTags:    "autopublish,cycle",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, seen := captureServer(t)
			svc := notifications.NewService(configFor(server.URL))
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("Publish returned error: %v", err)
			}
			got := seen()
			if len(got) != 1 {
				t.Fatalf("expected one request, got %d", len(got))
			}
			msg := got[0]
			if msg.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, msg.title)
			}
			if msg.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, msg.body)
			}
			if msg.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, msg.tags)
			}
			if msg.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, msg.priority)
			}
			if msg.click != tc.expectClick {
				t.Fatalf("expected click %q, got %q", tc.expectClick, msg.click)
			}
		})
	}
}

func TestNtfyServiceIgnoresDisabledEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.Header.Get("Title"))
	}))
	defer server.Close()

	cfg := configFor(server.URL)
	cfg.Notifications.Publications = false
	cfg.Notifications.CycleSummary = false
	cfg.Notifications.AutoFailed = false
	cfg.Notifications.Errors = false
	svc := notifications.NewService(cfg)

	for _, event := range []notifications.Event{
		notifications.EventPublished,
		notifications.EventDrafted,
		notifications.EventCycleSummary,
		notifications.EventAutoFailed,
		notifications.EventError,
		notifications.Event("unknown"),
	} {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"title": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	svc := notifications.NewService(configFor(server.URL))
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestReporterRoutesOrchestratorCallbacks(t *testing.T) {
	server, seen := captureServer(t)
	reporter := notifications.NewReporter(notifications.NewService(configFor(server.URL)), nil)
	ctx := context.Background()
	c := &queue.Candidate{ID: 7, Title: "BMW i5 review"}

	if err := reporter.AfterPublish(ctx, c, queue.PublishedRef{ID: "ref-1", Draft: true}); err != nil {
		t.Fatalf("AfterPublish: %v", err)
	}
	reporter.CandidateAutoFailed(ctx, c, 3, "timeout")
	reporter.CycleFinished(ctx, admission.Summary{Reason: "no eligible candidates"})
	reporter.CycleFinished(ctx, admission.Summary{Published: 1})
	reporter.CycleFinished(ctx, admission.Summary{Err: "disk I/O error"})

	got := seen()
	want := []string{
		"Autopublish - Drafted",
		"Autopublish - Needs Attention",
		"Autopublish - Cycle Summary",
		"Autopublish - Error",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d notifications, got %d: %+v", len(want), len(got), got)
	}
	for i, title := range want {
		if got[i].title != title {
			t.Fatalf("notification %d: expected %q, got %q", i, title, got[i].title)
		}
	}
}
