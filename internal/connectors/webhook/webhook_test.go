package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fentz26/dosekeeper/internal/connectors"
	"go.uber.org/zap"
)

func TestNotifyPostsJSON(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected JSON content type, got %s", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := New(DefaultConfig(srv.URL), zap.NewNop())
	err := w.Notify(context.Background(), connectors.Notification{Tag: "dose-m1", Title: "Time for Amoxicillin", Body: "500mg"})
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if got.Kind != "notification" || got.Tag != "dose-m1" || got.Title != "Time for Amoxicillin" {
		t.Errorf("Unexpected payload: %+v", got)
	}
}

func TestVibratePostsPattern(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	w := New(DefaultConfig(srv.URL), nil)
	if err := w.Vibrate(context.Background(), connectors.PatternPulse); err != nil {
		t.Fatalf("Vibrate failed: %v", err)
	}
	if got.Kind != "vibrate" || len(got.Pattern) != 3 {
		t.Errorf("Unexpected payload: %+v", got)
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := DefaultConfig(srv.URL)
	cfg.FailureThreshold = 2
	cfg.OpenTimeout = time.Hour
	w := New(cfg, zap.NewNop())
	ctx := context.Background()
	n := connectors.Notification{Tag: "dose-m1", Title: "x"}

	for i := 0; i < 2; i++ {
		err := w.Notify(ctx, n)
		if err == nil || errors.Is(err, connectors.ErrNotificationUnavailable) {
			t.Fatalf("Attempt %d: expected delivery error, got %v", i, err)
		}
	}

	if err := w.Notify(ctx, n); !errors.Is(err, connectors.ErrNotificationUnavailable) {
		t.Errorf("Expected ErrNotificationUnavailable once open, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("Expected open breaker to skip the request, got %d hits", hits)
	}
	if w.State() != "open" {
		t.Errorf("Expected open state, got %s", w.State())
	}
}
