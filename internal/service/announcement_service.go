package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"groupings-hub/internal/announcement"
	"groupings-hub/internal/event"
	"groupings-hub/internal/model"
	"groupings-hub/internal/repository"
	"groupings-hub/internal/sse"
	"groupings-hub/internal/tracing"
)

const (
	announcementListDefaultPage = 1
	announcementListDefaultSize = 20
	announcementListMaxPageSize = 200

	maxAnnouncementMessageLength = 2000
)

var (
	ErrAnnouncementNotFound   = errors.New("announcement not found")
	ErrInvalidAnnouncementReq = errors.New("invalid announcement input")
	ErrStoreUnavailable       = errors.New("announcement store is not configured")
)

// Source yields the announcements to classify. States carried by a source
// are never trusted.
type Source interface {
	Announcements(ctx context.Context) ([]announcement.Announcement, error)
}

// StoreSource serves announcements out of the local repository.
type StoreSource struct {
	repo repository.AnnouncementRepository
}

func NewStoreSource(repo repository.AnnouncementRepository) *StoreSource {
	return &StoreSource{repo: repo}
}

func (s *StoreSource) Announcements(ctx context.Context) ([]announcement.Announcement, error) {
	if s == nil || s.repo == nil {
		return nil, ErrStoreUnavailable
	}

	items, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stored announcements: %w", err)
	}

	out := make([]announcement.Announcement, 0, len(items))
	for _, item := range items {
		out = append(out, item.Window())
	}
	return out, nil
}

type CreateAnnouncementRequest struct {
	Message  string
	StartsAt time.Time
	EndsAt   time.Time
}

type UpdateAnnouncementRequest struct {
	Message  *string
	StartsAt *time.Time
	EndsAt   *time.Time
}

type AnnouncementService struct {
	source Source
	repo   repository.AnnouncementRepository
	clock  announcement.Clock
	sseHub *sse.SSEHub
	bus    *event.Bus
	logger *zap.Logger
}

func NewAnnouncementService(
	source Source,
	repo repository.AnnouncementRepository,
	clock announcement.Clock,
	sseHub *sse.SSEHub,
	bus *event.Bus,
	logger *zap.Logger,
) *AnnouncementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = announcement.SystemClock{}
	}
	if source == nil && repo != nil {
		source = NewStoreSource(repo)
	}

	return &AnnouncementService{
		source: source,
		repo:   repo,
		clock:  clock,
		sseHub: sseHub,
		bus:    bus,
		logger: logger,
	}
}

// Current loads every announcement and classifies it against a single
// reading of the clock. Nothing is cached between calls.
func (s *AnnouncementService) Current(ctx context.Context) ([]announcement.Announcement, error) {
	ctx, span := tracing.Tracer().Start(ctx, "announcements.current")
	defer span.End()

	if s.source == nil {
		span.SetStatus(codes.Error, ErrStoreUnavailable.Error())
		return nil, ErrStoreUnavailable
	}

	items, err := s.source.Announcements(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := s.clock.Now()
	evaluated := announcement.Evaluate(items, now)
	span.SetAttributes(
		attribute.Int("announcements.count", len(evaluated)),
		attribute.String("announcements.now", now.UTC().Format(time.RFC3339)),
	)
	return evaluated, nil
}

func (s *AnnouncementService) Active(ctx context.Context) ([]announcement.Announcement, error) {
	items, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	return announcement.FilterState(items, announcement.StateActive), nil
}

// Now exposes the reference instant the service classifies against.
func (s *AnnouncementService) Now() time.Time {
	return s.clock.Now()
}

func (s *AnnouncementService) Create(ctx context.Context, req CreateAnnouncementRequest) (*model.Announcement, error) {
	if s.repo == nil {
		return nil, ErrStoreUnavailable
	}

	message, err := normalizeMessage(req.Message)
	if err != nil {
		return nil, err
	}
	if err := validateWindow(req.StartsAt, req.EndsAt); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	item := &model.Announcement{
		ID:        uuid.New(),
		Message:   message,
		StartsAt:  req.StartsAt.UTC(),
		EndsAt:    req.EndsAt.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create announcement: %w", err)
	}

	s.logger.Info("announcement created",
		zap.String("id", item.ID.String()),
		zap.Time("starts_at", item.StartsAt),
		zap.Time("ends_at", item.EndsAt),
	)
	s.broadcast("create", item)
	return item, nil
}

func (s *AnnouncementService) Update(
	ctx context.Context,
	announcementID string,
	req UpdateAnnouncementRequest,
) (*model.Announcement, error) {
	if s.repo == nil {
		return nil, ErrStoreUnavailable
	}

	id, err := parseAnnouncementID(announcementID)
	if err != nil {
		return nil, err
	}

	current, err := s.getByUUID(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *current
	if req.Message != nil {
		message, msgErr := normalizeMessage(*req.Message)
		if msgErr != nil {
			return nil, msgErr
		}
		next.Message = message
	}
	if req.StartsAt != nil {
		next.StartsAt = req.StartsAt.UTC()
	}
	if req.EndsAt != nil {
		next.EndsAt = req.EndsAt.UTC()
	}
	if err := validateWindow(next.StartsAt, next.EndsAt); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.clock.Now().UTC()

	if err := s.repo.Update(ctx, &next); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAnnouncementNotFound
		}
		return nil, fmt.Errorf("update announcement: %w", err)
	}

	s.logger.Info("announcement updated", zap.String("id", next.ID.String()))
	s.broadcast("update", &next)
	return &next, nil
}

func (s *AnnouncementService) Delete(ctx context.Context, announcementID string) error {
	if s.repo == nil {
		return ErrStoreUnavailable
	}

	id, err := parseAnnouncementID(announcementID)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAnnouncementNotFound
		}
		return fmt.Errorf("delete announcement: %w", err)
	}

	s.logger.Info("announcement deleted", zap.String("id", id.String()))
	if s.sseHub != nil {
		s.sseHub.Broadcast(sse.NewEvent(sse.EventAnnouncement, map[string]any{
			"action": "delete",
			"id":     id.String(),
			"ts":     s.clock.Now().UTC().Format(time.RFC3339Nano),
		}))
	}
	s.publishChanged("delete", id)
	return nil
}

func (s *AnnouncementService) GetByID(ctx context.Context, announcementID string) (*model.Announcement, error) {
	if s.repo == nil {
		return nil, ErrStoreUnavailable
	}
	id, err := parseAnnouncementID(announcementID)
	if err != nil {
		return nil, err
	}
	return s.getByUUID(ctx, id)
}

func (s *AnnouncementService) List(
	ctx context.Context,
	page, pageSize int,
) ([]*model.Announcement, int64, error) {
	if s.repo == nil {
		return nil, 0, ErrStoreUnavailable
	}

	page, pageSize = NormalizeAnnouncementPagination(page, pageSize)

	items, err := s.repo.List(ctx, repository.Pagination{
		Limit:  int32(pageSize),
		Offset: int32((page - 1) * pageSize),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list announcements: %w", err)
	}

	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("count announcements: %w", err)
	}

	return items, total, nil
}

func (s *AnnouncementService) getByUUID(ctx context.Context, id uuid.UUID) (*model.Announcement, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAnnouncementNotFound
		}
		return nil, err
	}
	return item, nil
}

func (s *AnnouncementService) broadcast(action string, item *model.Announcement) {
	if item == nil {
		return
	}
	s.publishChanged(action, item.ID)
	if s.sseHub == nil {
		return
	}

	now := s.clock.Now()
	s.sseHub.Broadcast(sse.NewEvent(sse.EventAnnouncement, map[string]any{
		"action":       action,
		"id":           item.ID.String(),
		"message":      item.Message,
		"start":        item.StartsAt.UTC().Format(time.RFC3339),
		"end":          item.EndsAt.UTC().Format(time.RFC3339),
		"state":        string(item.Window().StateAt(now)),
		"published_at": now.UTC().Format(time.RFC3339Nano),
	}))
}

func (s *AnnouncementService) publishChanged(action string, id uuid.UUID) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.EventAnnouncementChanged, event.ChangedPayload{
		Action: action,
		ID:     id.String(),
	})
}

func parseAnnouncementID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, ErrInvalidAnnouncementReq
	}
	return id, nil
}

func normalizeMessage(raw string) (string, error) {
	message := strings.TrimSpace(raw)
	if message == "" || utf8.RuneCountInString(message) > maxAnnouncementMessageLength {
		return "", ErrInvalidAnnouncementReq
	}
	return message, nil
}

// validateWindow rejects missing bounds and windows that end before they
// start. A zero-length window is allowed.
func validateWindow(startsAt, endsAt time.Time) error {
	if startsAt.IsZero() || endsAt.IsZero() {
		return ErrInvalidAnnouncementReq
	}
	if endsAt.Before(startsAt) {
		return ErrInvalidAnnouncementReq
	}
	return nil
}

// NormalizeAnnouncementPagination applies the list defaults and caps pageSize.
func NormalizeAnnouncementPagination(page, pageSize int) (int, int) {
	if page <= 0 {
		page = announcementListDefaultPage
	}
	if pageSize <= 0 {
		pageSize = announcementListDefaultSize
	}
	if pageSize > announcementListMaxPageSize {
		pageSize = announcementListMaxPageSize
	}
	return page, pageSize
}
