package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"groupings-hub/internal/announcement"
	"groupings-hub/internal/metrics"
	"groupings-hub/internal/tracing"
)

var (
	ErrUnauthorized = errors.New("upstream: unauthorized")
	ErrNotFound     = errors.New("upstream: not found")
	ErrServerError  = errors.New("upstream: server error")
	ErrResultCode   = errors.New("upstream: unsuccessful result code")
	ErrBadPayload   = errors.New("upstream: malformed payload")
)

const (
	announcementsPath   = "/announcements"
	maxResponseBodySize = 4 << 20 // 4 MiB
)

type Config struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	Location    *time.Location
}

// Client talks to the groupings API that owns announcement windows.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	location   *time.Location
	logger     *zap.Logger

	maxAttempts int
	retryDelay  time.Duration
}

func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 500 * time.Millisecond
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	return &Client{
		baseURL:     normalizeBaseURL(cfg.BaseURL),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		httpClient:  &http.Client{Timeout: timeout},
		location:    loc,
		logger:      logger,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
	}
}

// Announcements fetches the announcement windows. States sent by the API are
// discarded; callers classify against their own clock.
func (c *Client) Announcements(ctx context.Context) ([]announcement.Announcement, error) {
	ctx, span := tracing.Tracer().Start(ctx, "upstream.Announcements")
	defer span.End()

	startedAt := time.Now()
	var payload announcement.Payload
	err := c.doWithRetry(ctx, http.MethodGet, announcementsPath, &payload)
	metrics.ObserveUpstreamRequestDuration(time.Since(startedAt))
	if err != nil {
		metrics.IncUpstreamError(errorKind(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if !strings.EqualFold(strings.TrimSpace(payload.ResultCode), announcement.ResultSuccess) {
		metrics.IncUpstreamError("result_code")
		err := fmt.Errorf("%w: %q", ErrResultCode, payload.ResultCode)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	items := make([]announcement.Announcement, 0, len(payload.Announcements))
	for i, wire := range payload.Announcements {
		item, err := announcement.FromWire(wire, c.location)
		if err != nil {
			metrics.IncUpstreamError("payload")
			err = fmt.Errorf("%w: announcement %d: %w", ErrBadPayload, i, err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		items = append(items, item)
	}

	span.SetAttributes(attribute.Int("announcements.count", len(items)))
	return items, nil
}

func (c *Client) doWithRetry(ctx context.Context, method, path string, out any) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err := c.doOnce(ctx, method, path, out)
		if err == nil {
			return nil
		}
		lastErr = err

		retry := shouldRetry(err)
		if !retry || attempt == c.maxAttempts {
			break
		}

		c.logger.Debug("retry groupings api request",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		timer := time.NewTimer(c.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, out any) error {
	baseURL, apiKey := c.baseURL, c.apiKey
	if baseURL == "" {
		return errors.New("upstream: empty base url")
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(baseURL, "/")+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status=%d", ErrServerError, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("upstream: http %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrBadPayload) {
		return false
	}
	if errors.Is(err, ErrServerError) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return true
	}
	if strings.Contains(err.Error(), "connection refused") {
		return true
	}
	return false
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrServerError):
		return "server"
	case errors.Is(err, ErrBadPayload):
		return "payload"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "transport"
	}
}

func normalizeBaseURL(baseURL string) string {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return trimmed
	}
	return "http://" + trimmed
}
