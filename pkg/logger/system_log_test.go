package logger

import (
	"io"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newDiscardLogger(level zapcore.Level) *zap.Logger {
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	return zap.New(zapcore.NewCore(encoder, zapcore.AddSync(io.Discard), level))
}

func TestStore_RecordsAndMasks(t *testing.T) {
	t.Parallel()

	store := NewStore(10)
	log := Attach(newDiscardLogger(zap.DebugLevel), store)

	log.Info("upstream fetched", zap.String("api_key", "abc123"), zap.Int("count", 2))
	log.With(zap.String("component", "sweep")).Warn("transition", zap.String("to", "Active"))

	entries, total := store.Query(Query{})
	if total != 2 || len(entries) != 2 {
		t.Fatalf("expected 2 entries, got total=%d len=%d", total, len(entries))
	}
	if entries[0].Message != "transition" || entries[0].Fields["component"] != "sweep" {
		t.Fatalf("expected newest entry first with context fields, got %+v", entries[0])
	}
	if entries[1].Fields["api_key"] != maskedValue {
		t.Fatalf("expected api_key to be masked, got %v", entries[1].Fields["api_key"])
	}
}

func TestStore_KeepsContextFieldsFromWith(t *testing.T) {
	t.Parallel()

	store := NewStore(10)
	base := Attach(newDiscardLogger(zap.DebugLevel), store)
	upstream := base.With(zap.String("component", "upstream"), zap.String("token", "s3cret"))
	retry := upstream.With(zap.Int("attempt", 2))

	retry.Info("retry groupings api request", zap.String("path", "/announcements"))
	base.Info("plain")

	entries, _ := store.Query(Query{})
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if len(entries[0].Fields) != 0 {
		t.Fatalf("expected sibling logger to carry no fields, got %v", entries[0].Fields)
	}
	fields := entries[1].Fields
	if fields["component"] != "upstream" || fields["path"] != "/announcements" {
		t.Fatalf("expected context and call fields, got %v", fields)
	}
	if fields["attempt"] != int64(2) {
		t.Fatalf("expected nested With field, got %v", fields["attempt"])
	}
	if fields["token"] != maskedValue {
		t.Fatalf("expected context token masked, got %v", fields["token"])
	}
}

func TestStore_SkipsDisabledLevels(t *testing.T) {
	t.Parallel()

	store := NewStore(10)
	log := Attach(newDiscardLogger(zap.InfoLevel), store)
	log.Debug("hidden")
	log.Info("shown")

	if store.Len() != 1 {
		t.Fatalf("expected 1 stored entry, got %d", store.Len())
	}
}

func TestStore_QueryFiltersAndPages(t *testing.T) {
	t.Parallel()

	store := NewStore(3)
	log := Attach(newDiscardLogger(zap.DebugLevel), store)
	log.Info("first")
	log.Error("second failure")
	log.Info("third")
	log.Error("fourth failure")

	if store.Len() != 3 {
		t.Fatalf("expected capacity-bounded store, got %d", store.Len())
	}

	errorsOnly, total := store.Query(Query{Level: "ERROR"})
	if total != 2 || errorsOnly[0].Message != "fourth failure" {
		t.Fatalf("unexpected level filter result: total=%d %+v", total, errorsOnly)
	}

	byKeyword, total := store.Query(Query{Keyword: "THIRD"})
	if total != 1 || byKeyword[0].Message != "third" {
		t.Fatalf("unexpected keyword filter result: total=%d %+v", total, byKeyword)
	}

	page2, total := store.Query(Query{Page: 2, PageSize: 2})
	if total != 3 || len(page2) != 1 || page2[0].Message != "second failure" {
		t.Fatalf("unexpected second page: total=%d %+v", total, page2)
	}

	future, total := store.Query(Query{From: time.Now().Add(time.Hour)})
	if total != 0 || len(future) != 0 {
		t.Fatalf("expected no entries after from, got %d", total)
	}
}

func TestSanitizeFields(t *testing.T) {
	t.Parallel()

	fields := SanitizeFields([]zap.Field{
		zap.String("Authorization", "Bearer xyz"),
		zap.String("path", "/announcements"),
		zap.Any("headers", map[string]any{"X-Internal-Token": "secret", "accept": "json"}),
	})

	enc := zapcore.NewMapObjectEncoder()
	for _, field := range fields {
		field.AddTo(enc)
	}
	if enc.Fields["Authorization"] != maskedValue {
		t.Fatalf("expected Authorization masked, got %v", enc.Fields["Authorization"])
	}
	if enc.Fields["path"] != "/announcements" {
		t.Fatalf("expected path untouched, got %v", enc.Fields["path"])
	}
	headers, ok := enc.Fields["headers"].(map[string]any)
	if !ok || headers["X-Internal-Token"] != maskedValue || headers["accept"] != "json" {
		t.Fatalf("unexpected nested masking: %#v", enc.Fields["headers"])
	}
}
