package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"groupings-hub/internal/announcement"
	"groupings-hub/internal/repository/sqlite"
)

type stubSource struct {
	items []announcement.Announcement
	err   error
	calls int
}

func (s *stubSource) Announcements(context.Context) ([]announcement.Announcement, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]announcement.Announcement, len(s.items))
	copy(out, s.items)
	return out, nil
}

func newStoreForTest(t *testing.T) *sqlite.Store {
	t.Helper()

	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCurrent_ReclassifiesOnEveryRead(t *testing.T) {
	t.Parallel()

	T := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	clock := announcement.NewManualClock(T)
	source := &stubSource{items: []announcement.Announcement{
		{Message: "ends soon", Start: T.AddDate(0, 0, -1), End: T.Add(5 * time.Second)},
		{Message: "starts soon", Start: T.Add(10 * time.Second), End: T.AddDate(0, 0, 1)},
	}}
	svc := NewAnnouncementService(source, nil, clock, nil, nil, nil)

	first, err := svc.Current(context.Background())
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	assertStates(t, first, announcement.StateActive, announcement.StateFuture)

	clock.Advance(11 * time.Second)

	second, err := svc.Current(context.Background())
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	assertStates(t, second, announcement.StateExpired, announcement.StateActive)

	for i := range first {
		if first[i].Message != second[i].Message || !first[i].Start.Equal(second[i].Start) || !first[i].End.Equal(second[i].End) {
			t.Fatalf("announcement %d changed beyond its state: %+v -> %+v", i, first[i], second[i])
		}
	}
	if source.calls != 2 {
		t.Fatalf("expected source to be read twice, got %d", source.calls)
	}
}

func TestCurrent_IgnoresIncomingState(t *testing.T) {
	t.Parallel()

	T := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	source := &stubSource{items: []announcement.Announcement{
		{Message: "stale", Start: T.Add(-time.Hour), End: T.Add(time.Hour), State: announcement.StateExpired},
	}}
	svc := NewAnnouncementService(source, nil, announcement.FixedClock(T), nil, nil, nil)

	items, err := svc.Current(context.Background())
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	assertStates(t, items, announcement.StateActive)
}

func TestCurrent_PropagatesSourceError(t *testing.T) {
	t.Parallel()

	sourceErr := errors.New("upstream down")
	svc := NewAnnouncementService(&stubSource{err: sourceErr}, nil, nil, nil, nil, nil)

	if _, err := svc.Current(context.Background()); !errors.Is(err, sourceErr) {
		t.Fatalf("expected source error, got %v", err)
	}
}

func TestCurrent_WithoutSource(t *testing.T) {
	t.Parallel()

	svc := NewAnnouncementService(nil, nil, nil, nil, nil, nil)
	if _, err := svc.Current(context.Background()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestActive_FiltersByState(t *testing.T) {
	t.Parallel()

	T := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	source := &stubSource{items: []announcement.Announcement{
		{Message: "past", Start: T.Add(-2 * time.Hour), End: T.Add(-time.Hour)},
		{Message: "now", Start: T.Add(-time.Hour), End: T.Add(time.Hour)},
		{Message: "later", Start: T.Add(time.Hour), End: T.Add(2 * time.Hour)},
	}}
	svc := NewAnnouncementService(source, nil, announcement.FixedClock(T), nil, nil, nil)

	items, err := svc.Active(context.Background())
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(items) != 1 || items[0].Message != "now" {
		t.Fatalf("unexpected active set: %+v", items)
	}
}

func TestStoreSource_EndToEndWithManualClock(t *testing.T) {
	t.Parallel()

	T := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	clock := announcement.NewManualClock(T)
	store := newStoreForTest(t)
	svc := NewAnnouncementService(nil, store, clock, nil, nil, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateAnnouncementRequest{
		Message:  "  ends soon  ",
		StartsAt: T.AddDate(0, 0, -1),
		EndsAt:   T.Add(5 * time.Second),
	}); err != nil {
		t.Fatalf("create first: %v", err)
	}
	if _, err := svc.Create(ctx, CreateAnnouncementRequest{
		Message:  "starts soon",
		StartsAt: T.Add(10 * time.Second),
		EndsAt:   T.AddDate(0, 0, 1),
	}); err != nil {
		t.Fatalf("create second: %v", err)
	}

	items, err := svc.Current(ctx)
	if err != nil {
		t.Fatalf("current at T: %v", err)
	}
	assertStates(t, items, announcement.StateActive, announcement.StateFuture)
	if items[0].Message != "ends soon" {
		t.Fatalf("expected trimmed message, got %q", items[0].Message)
	}

	clock.Advance(11 * time.Second)
	items, err = svc.Current(ctx)
	if err != nil {
		t.Fatalf("current at T+11s: %v", err)
	}
	assertStates(t, items, announcement.StateExpired, announcement.StateActive)
}

func TestCreate_Validation(t *testing.T) {
	t.Parallel()

	T := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	svc := NewAnnouncementService(nil, newStoreForTest(t), announcement.FixedClock(T), nil, nil, nil)

	cases := []struct {
		name string
		req  CreateAnnouncementRequest
	}{
		{name: "blank message", req: CreateAnnouncementRequest{Message: "   ", StartsAt: T, EndsAt: T.Add(time.Hour)}},
		{name: "missing start", req: CreateAnnouncementRequest{Message: "m", EndsAt: T}},
		{name: "missing end", req: CreateAnnouncementRequest{Message: "m", StartsAt: T}},
		{name: "inverted window", req: CreateAnnouncementRequest{Message: "m", StartsAt: T, EndsAt: T.Add(-time.Second)}},
	}
	for _, tc := range cases {
		if _, err := svc.Create(context.Background(), tc.req); !errors.Is(err, ErrInvalidAnnouncementReq) {
			t.Fatalf("%s: expected ErrInvalidAnnouncementReq, got %v", tc.name, err)
		}
	}

	if _, err := svc.Create(context.Background(), CreateAnnouncementRequest{Message: "instant", StartsAt: T, EndsAt: T}); err != nil {
		t.Fatalf("zero-length window should be accepted: %v", err)
	}
}

func TestUpdateDeleteAndList(t *testing.T) {
	t.Parallel()

	T := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	clock := announcement.NewManualClock(T)
	svc := NewAnnouncementService(nil, newStoreForTest(t), clock, nil, nil, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateAnnouncementRequest{Message: "original", StartsAt: T, EndsAt: T.Add(time.Hour)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	clock.Advance(time.Minute)
	message := "revised"
	newEnd := T.Add(2 * time.Hour)
	updated, err := svc.Update(ctx, created.ID.String(), UpdateAnnouncementRequest{Message: &message, EndsAt: &newEnd})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Message != "revised" || !updated.EndsAt.Equal(newEnd) || !updated.StartsAt.Equal(T) {
		t.Fatalf("unexpected updated announcement: %+v", updated)
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Fatalf("expected updated_at to advance: %+v", updated)
	}

	badEnd := T.Add(-time.Minute)
	if _, err := svc.Update(ctx, created.ID.String(), UpdateAnnouncementRequest{EndsAt: &badEnd}); !errors.Is(err, ErrInvalidAnnouncementReq) {
		t.Fatalf("expected inverted update to be rejected, got %v", err)
	}

	got, err := svc.GetByID(ctx, created.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Message != "revised" {
		t.Fatalf("unexpected stored message %q", got.Message)
	}

	items, total, err := svc.List(ctx, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("unexpected list result: total=%d len=%d", total, len(items))
	}

	if err := svc.Delete(ctx, created.ID.String()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, created.ID.String()); !errors.Is(err, ErrAnnouncementNotFound) {
		t.Fatalf("expected ErrAnnouncementNotFound, got %v", err)
	}
	if _, err := svc.GetByID(ctx, "not-a-uuid"); !errors.Is(err, ErrInvalidAnnouncementReq) {
		t.Fatalf("expected ErrInvalidAnnouncementReq, got %v", err)
	}
}

func TestNormalizeAnnouncementPagination(t *testing.T) {
	t.Parallel()

	if page, size := NormalizeAnnouncementPagination(-1, 0); page != 1 || size != announcementListDefaultSize {
		t.Fatalf("unexpected defaults %d/%d", page, size)
	}
	if _, size := NormalizeAnnouncementPagination(2, 10_000); size != announcementListMaxPageSize {
		t.Fatalf("expected page size to be capped, got %d", size)
	}
}

func assertStates(t *testing.T, items []announcement.Announcement, want ...announcement.State) {
	t.Helper()
	if len(items) != len(want) {
		t.Fatalf("expected %d announcements, got %d", len(want), len(items))
	}
	for i := range want {
		if items[i].State != want[i] {
			t.Fatalf("announcement %d (%q): got %s, want %s", i, items[i].Message, items[i].State, want[i])
		}
	}
}
