package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vidpipe/internal/config"
)

const userAgent = "vidpipe/0.1.0"

// Event names a notification kind.
type Event string

const (
	EventJobCompleted      Event = "job_completed"
	EventJobFailed         Event = "job_failed"
	EventCopyrightRejected Event = "copyright_rejected"
	EventBackendDown       Event = "backend_down"
	EventTestNotification  Event = "test"
)

// Payload carries event fields. Known keys: jobID, title, url, error,
// stage, issues, backend.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventJobCompleted:      cfg.Notifications.JobCompleted,
			EventJobFailed:         cfg.Notifications.JobFailed,
			EventCopyrightRejected: cfg.Notifications.JobFailed,
			EventBackendDown:       cfg.Notifications.BackendDown,
			EventTestNotification:  true,
		},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, data)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func text(data Payload, key string) string {
	v, ok := data[key]
	if !ok || v == nil {
		return ""
	}
	if err, ok := v.(error); ok {
		return strings.TrimSpace(err.Error())
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func label(data Payload) string {
	if title := text(data, "title"); title != "" {
		return title
	}
	if id := text(data, "jobID"); id != "" {
		return "job " + id
	}
	return "job"
}

func format(event Event, data Payload) (payload, bool) {
	switch event {
	case EventJobCompleted:
		message := fmt.Sprintf("✅ Published: %s", label(data))
		if url := text(data, "url"); url != "" {
			message += "\n" + url
		}
		return payload{
			title:    "vidpipe - Job Complete",
			message:  message,
			tags:     []string{"vidpipe", "job", "completed"},
			priority: "high",
		}, true
	case EventJobFailed:
		message := fmt.Sprintf("❌ %s failed", label(data))
		if stage := text(data, "stage"); stage != "" {
			message += " during " + stage
		}
		if reason := text(data, "error"); reason != "" {
			message += ": " + reason
		}
		return payload{
			title:    "vidpipe - Job Failed",
			message:  message,
			tags:     []string{"vidpipe", "job", "error"},
			priority: "high",
		}, true
	case EventCopyrightRejected:
		message := fmt.Sprintf("⚠️ Copyright check rejected %s", label(data))
		if issues := text(data, "issues"); issues != "" {
			message += ": " + issues
		}
		return payload{
			title:   "vidpipe - Copyright Rejected",
			message: message,
			tags:    []string{"vidpipe", "copyright", "review"},
		}, true
	case EventBackendDown:
		message := fmt.Sprintf("Backend %s marked unavailable", text(data, "backend"))
		if reason := text(data, "error"); reason != "" {
			message += ": " + reason
		}
		return payload{
			title:   "vidpipe - Backend Down",
			message: message,
			tags:    []string{"vidpipe", "backend", "alert"},
		}, true
	case EventTestNotification:
		return payload{
			title:    "vidpipe - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"vidpipe", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
