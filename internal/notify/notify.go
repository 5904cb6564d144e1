// Package notify delivers push notifications over an ntfy-compatible HTTP
// endpoint. When no topic is configured, a noop service is returned so callers
// never branch on notification availability.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"timelens/internal/config"
	"timelens/internal/logging"
)

const defaultNtfyServer = "https://ntfy.sh"

// Notification is one push message.
type Notification struct {
	Title    string
	Body     string
	Tags     []string
	Priority string
}

// Service sends notifications.
type Service interface {
	Send(ctx context.Context, n Notification) error
}

// NewService returns an ntfy sender for the configured topic, or a noop
// service when no topic is set.
func NewService(cfg config.Notifications, logger *slog.Logger) Service {
	if cfg.NtfyTopic == "" {
		return noopService{}
	}
	return NewNtfyService(cfg.NtfyTopic, time.Duration(cfg.RequestTimeout)*time.Second, logger)
}

// NtfyService publishes notifications to an ntfy topic. The topic may be a
// bare topic name (published via ntfy.sh) or a full topic URL for a
// self-hosted server.
type NtfyService struct {
	topicURL string
	client   *http.Client
	logger   *slog.Logger
}

// NewNtfyService constructs a sender for the given topic.
func NewNtfyService(topic string, timeout time.Duration, logger *slog.Logger) *NtfyService {
	topicURL := topic
	if !strings.Contains(topic, "://") {
		topicURL = defaultNtfyServer + "/" + topic
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &NtfyService{
		topicURL: topicURL,
		client:   &http.Client{Timeout: timeout},
		logger:   logging.WithComponent(logger, "notify"),
	}
}

// Send publishes one notification. The body is the request payload; title,
// tags, and priority travel as ntfy headers.
func (s *NtfyService) Send(ctx context.Context, n Notification) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.topicURL, strings.NewReader(n.Body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if n.Title != "" {
		req.Header.Set("Title", n.Title)
	}
	if len(n.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(n.Tags, ","))
	}
	if n.Priority != "" {
		req.Header.Set("Priority", n.Priority)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notification rejected: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	s.logger.Debug("notification sent", logging.String("title", n.Title))
	return nil
}

// noopService drops notifications. Used when no topic is configured.
type noopService struct{}

func (noopService) Send(context.Context, Notification) error {
	return nil
}
