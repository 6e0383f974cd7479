package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"groupings-hub/internal/announcement"
)

func newTestClient(baseURL string) *Client {
	cli := New(Config{
		BaseURL:  baseURL,
		APIKey:   "token",
		Location: time.UTC,
	}, nil)
	cli.retryDelay = 10 * time.Millisecond
	return cli
}

func writeAnnouncements(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprint(w, body)
}

func TestClientAnnouncements_DecodesWindowsAndDropsState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/groupings/v2.1/announcements" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeAnnouncements(w, `{
  "resultCode": "SUCCESS",
  "announcements": [
    {"message": "UH Groupings will be updated BEFORE.", "start": "20240114T093000", "end": "20240115T093005", "state": "Expired"}
  ]
}`)
	}))
	defer srv.Close()

	cli := newTestClient(srv.URL + "/api/groupings/v2.1")
	items, err := cli.Announcements(context.Background())
	if err != nil {
		t.Fatalf("announcements: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 announcement, got %d", len(items))
	}
	item := items[0]
	if item.Message != "UH Groupings will be updated BEFORE." {
		t.Fatalf("unexpected message %q", item.Message)
	}
	if !item.Start.Equal(time.Date(2024, 1, 14, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %s", item.Start)
	}
	if !item.End.Equal(time.Date(2024, 1, 15, 9, 30, 5, 0, time.UTC)) {
		t.Fatalf("unexpected end %s", item.End)
	}
	if item.State != "" {
		t.Fatalf("expected upstream state to be discarded, got %q", item.State)
	}
}

func TestClientAnnouncements_RetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeAnnouncements(w, `{"resultCode":"SUCCESS","announcements":[]}`)
	}))
	defer srv.Close()

	cli := newTestClient(srv.URL)
	items, err := cli.Announcements(context.Background())
	if err != nil {
		t.Fatalf("announcements: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no announcements, got %+v", items)
	}
	if calls.Load() < 2 {
		t.Fatalf("expected retry, calls=%d", calls.Load())
	}
}

func TestClientAnnouncements_DoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cli := newTestClient(srv.URL)
	_, err := cli.Announcements(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected no retry for 404, calls=%d", calls.Load())
	}
}

func TestClientAnnouncements_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cli := newTestClient(srv.URL)
	cli.maxAttempts = 2
	_, err := cli.Announcements(context.Background())
	if !errors.Is(err, ErrServerError) {
		t.Fatalf("expected ErrServerError, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, calls=%d", calls.Load())
	}
}

func TestClientAnnouncements_RejectsFailureResultCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAnnouncements(w, `{"resultCode":"FAILURE","announcements":[]}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Announcements(context.Background())
	if !errors.Is(err, ErrResultCode) {
		t.Fatalf("expected ErrResultCode, got %v", err)
	}
}

func TestClientAnnouncements_RejectsMalformedTimestamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAnnouncements(w, `{"resultCode":"SUCCESS","announcements":[{"message":"x","start":"2024-01-14","end":"20240115T093005"}]}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Announcements(context.Background())
	if !errors.Is(err, ErrBadPayload) {
		t.Fatalf("expected ErrBadPayload, got %v", err)
	}
	if !errors.Is(err, announcement.ErrInvalidTimestamp) {
		t.Fatalf("expected wrapped ErrInvalidTimestamp, got %v", err)
	}
}

func TestClientAnnouncements_StopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cli := newTestClient(srv.URL)
	cli.retryDelay = time.Second
	cli.maxAttempts = 5

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	startedAt := time.Now()
	_, err := cli.Announcements(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(startedAt) > 900*time.Millisecond {
		t.Fatalf("retry loop ignored context cancellation")
	}
}
