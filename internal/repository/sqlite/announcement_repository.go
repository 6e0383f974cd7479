package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"groupings-hub/internal/model"
	"groupings-hub/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS announcements (
	id         TEXT PRIMARY KEY,
	message    TEXT     NOT NULL,
	starts_at  DATETIME NOT NULL,
	ends_at    DATETIME NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_announcements_window ON announcements (starts_at, ends_at);
`

const announcementColumns = `id, message, starts_at, ends_at, created_at, updated_at`

// Store keeps announcements in a local SQLite database.
type Store struct {
	db *sqlx.DB
}

var _ repository.AnnouncementRepository = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if path == ":memory:" {
		// Every new connection to :memory: is a fresh database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*model.Announcement, error) {
	var item model.Announcement
	err := s.db.GetContext(ctx, &item,
		`SELECT `+announcementColumns+` FROM announcements WHERE id = ?`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding announcement: %w", err)
	}
	normalize(&item)
	return &item, nil
}

func (s *Store) Create(ctx context.Context, item *model.Announcement) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO announcements (id, message, starts_at, ends_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID.String(), item.Message,
		item.StartsAt.UTC(), item.EndsAt.UTC(),
		item.CreatedAt.UTC(), item.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating announcement: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, item *model.Announcement) error {
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE announcements SET
			message = ?, starts_at = ?, ends_at = ?, updated_at = ?
		WHERE id = ?`,
		item.Message, item.StartsAt.UTC(), item.EndsAt.UTC(), item.UpdatedAt.UTC(),
		item.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("updating announcement: %w", err)
	}
	return ensureAffected(result)
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM announcements WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("deleting announcement: %w", err)
	}
	return ensureAffected(result)
}

func (s *Store) List(ctx context.Context, page repository.Pagination) ([]*model.Announcement, error) {
	limit, offset := page.Limit, page.Offset
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	var items []*model.Announcement
	err := s.db.SelectContext(ctx, &items, `
		SELECT `+announcementColumns+` FROM announcements
		ORDER BY starts_at DESC, created_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing announcements: %w", err)
	}
	return normalizeAll(items), nil
}

func (s *Store) ListAll(ctx context.Context) ([]*model.Announcement, error) {
	var items []*model.Announcement
	err := s.db.SelectContext(ctx, &items, `
		SELECT `+announcementColumns+` FROM announcements
		ORDER BY starts_at ASC, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing all announcements: %w", err)
	}
	return normalizeAll(items), nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM announcements`); err != nil {
		return 0, fmt.Errorf("counting announcements: %w", err)
	}
	return total, nil
}

func ensureAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func normalize(item *model.Announcement) {
	item.StartsAt = item.StartsAt.UTC()
	item.EndsAt = item.EndsAt.UTC()
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
}

func normalizeAll(items []*model.Announcement) []*model.Announcement {
	if items == nil {
		return []*model.Announcement{}
	}
	for _, item := range items {
		normalize(item)
	}
	return items
}
