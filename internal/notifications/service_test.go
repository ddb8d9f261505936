package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"carousel/internal/config"
	"carousel/internal/media"
	"carousel/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyDownloadComplete(context.Background(), media.TypeCounter{}, 0, 0, time.Minute); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceSendsHeadersAndBody(t *testing.T) {
	var gotTitle, gotTags, gotPriority, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		gotTags = r.Header.Get("Tags")
		gotPriority = r.Header.Get("Priority")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)

	var downloaded media.TypeCounter
	downloaded.Add(media.Photo, 100)
	downloaded.Add(media.Photo, 100)
	downloaded.Add(media.Video, 500)
	if err := svc.NotifyDownloadComplete(context.Background(), downloaded, 0, 0, 90*time.Second); err != nil {
		t.Fatal(err)
	}

	if gotTitle != "Carousel - Download Complete" {
		t.Fatalf("Title = %q", gotTitle)
	}
	if gotTags != "carousel,download,completed" {
		t.Fatalf("Tags = %q", gotTags)
	}
	if gotPriority != "high" {
		t.Fatalf("Priority = %q", gotPriority)
	}
	if want := "Download complete: 2 photos and 1 video in 1m30s"; gotBody != want {
		t.Fatalf("body = %q, want %q", gotBody, want)
	}
}

func TestNtfyServiceErrorStatusSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
