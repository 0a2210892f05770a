package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dubbing/internal/config"
	"dubbing/internal/language"
)

const userAgent = "Dubbing-Go/0.1.0"

// Event identifies a notification-worthy moment in a job's life.
type Event string

const (
	EventJobCompleted Event = "job_completed"
	EventJobFailed    Event = "job_failed"
	EventBreakerOpen  Event = "breaker_open"
	EventTest         Event = "test"
)

// Payload carries event details. Keys are event specific.
type Payload map[string]any

// Service publishes notifications. Implementations must be safe for concurrent use.
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
			EventJobCompleted: cfg.Notifications.OnCompletion,
			EventJobFailed:    cfg.Notifications.OnFailure,
			EventBreakerOpen:  cfg.Notifications.OnBreaker,
			EventTest:         true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
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
	case EventJobCompleted:
		body := fmt.Sprintf("✅ Dubbed: %s", payload.text("input"))
		if lang := payload.text("language"); lang != "" {
			body = fmt.Sprintf("✅ Dubbed into %s: %s", language.DisplayName(lang), payload.text("input"))
		}
		if output := payload.text("output"); output != "" {
			body = fmt.Sprintf("%s\nOutput: %s", body, output)
		}
		if elapsed := payload.text("duration"); elapsed != "" {
			body = fmt.Sprintf("%s\nTook: %s", body, elapsed)
		}
		return message{
			title: "Dubbing - Complete",
			body:  body,
			tags:  []string{"dubbing", "job", "completed"},
		}, true
	case EventJobFailed:
		var builder strings.Builder
		builder.WriteString("❌ Failed: ")
		builder.WriteString(payload.text("input"))
		builder.WriteString("\n")
		if errText := payload.text("error"); errText != "" {
			builder.WriteString(errText)
		} else {
			builder.WriteString("unknown error")
		}
		tags := []string{"dubbing", "job", "failed"}
		if payload.flag("needs_intervention") {
			tags = append(tags, "review")
		}
		return message{
			title:    "Dubbing - Failed",
			body:     builder.String(),
			tags:     tags,
			priority: "high",
		}, true
	case EventBreakerOpen:
		return message{
			title:    "Dubbing - Dependency Unavailable",
			body:     fmt.Sprintf("⚡ Circuit open for %s, calls fail fast until it recovers", payload.text("dependency")),
			tags:     []string{"dubbing", "breaker", "open"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Dubbing - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"dubbing", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (p Payload) flag(key string) bool {
	if p == nil {
		return false
	}
	v, _ := p[key].(bool)
	return v
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
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
