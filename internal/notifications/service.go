package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"carousel/internal/config"
	"carousel/internal/media"
)

const userAgent = "Carousel/0.1.0"

// Service defines the notification surface exposed to the orchestrator.
type Service interface {
	NotifyDeviceDetected(ctx context.Context, name string, counter media.TypeCounter) error
	NotifyDeviceDownloaded(ctx context.Context, name string, downloaded media.TypeCounter, failures, warnings int) error
	NotifyDownloadComplete(ctx context.Context, downloaded media.TypeCounter, failures, warnings int, duration time.Duration) error
	NotifyBackupProblem(ctx context.Context, path, detail string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
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
}

func (n *ntfyService) NotifyDeviceDetected(ctx context.Context, name string, counter media.TypeCounter) error {
	data := payload{
		title: "Carousel - Device Detected",
		message: fmt.Sprintf("Detected %s: %s (%s)", strings.TrimSpace(name),
			counter.Summary(), humanize.Bytes(uint64(counter.TotalBytes()))),
		tags: []string{"carousel", "device", "detected"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDeviceDownloaded(ctx context.Context, name string, downloaded media.TypeCounter, failures, warnings int) error {
	message := fmt.Sprintf("Downloaded from %s: %s", strings.TrimSpace(name), downloaded.Summary())
	if failures > 0 || warnings > 0 {
		message = fmt.Sprintf("%s (%d failed, %d warnings)", message, failures, warnings)
	}
	data := payload{
		title:   "Carousel - Device Complete",
		message: message,
		tags:    []string{"carousel", "download", "device"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDownloadComplete(ctx context.Context, downloaded media.TypeCounter, failures, warnings int, duration time.Duration) error {
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	var title, message string
	if failures == 0 {
		title = "Carousel - Download Complete"
		message = fmt.Sprintf("Download complete: %s in %s", downloaded.Summary(), durationText)
	} else {
		title = "Carousel - Download Complete (with errors)"
		message = fmt.Sprintf("Download complete: %s, %d failed in %s", downloaded.Summary(), failures, durationText)
	}
	if warnings > 0 {
		message = fmt.Sprintf("%s (%d warnings)", message, warnings)
	}

	data := payload{
		title:    title,
		message:  message,
		tags:     []string{"carousel", "download", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBackupProblem(ctx context.Context, path, detail string) error {
	data := payload{
		title:    "Carousel - Backup Problem",
		message:  fmt.Sprintf("Backup destination %s: %s", path, strings.TrimSpace(detail)),
		tags:     []string{"carousel", "backup", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Carousel - Error",
		message:  builder.String(),
		tags:     []string{"carousel", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Carousel - Test",
		message:  "Notification system test",
		tags:     []string{"carousel", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
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

func (noopService) NotifyDeviceDetected(context.Context, string, media.TypeCounter) error { return nil }
func (noopService) NotifyDeviceDownloaded(context.Context, string, media.TypeCounter, int, int) error {
	return nil
}
func (noopService) NotifyDownloadComplete(context.Context, media.TypeCounter, int, int, time.Duration) error {
	return nil
}
func (noopService) NotifyBackupProblem(context.Context, string, string) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error          { return nil }
func (noopService) TestNotification(context.Context) error                    { return nil }
