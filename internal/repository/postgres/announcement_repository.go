package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"groupings-hub/internal/model"
	"groupings-hub/internal/repository"
)

type announcementRepository struct {
	pool *pgxpool.Pool
}

func NewAnnouncementRepository(pool *pgxpool.Pool) repository.AnnouncementRepository {
	return &announcementRepository{pool: pool}
}

var _ repository.AnnouncementRepository = (*announcementRepository)(nil)

const announcementColumns = `
	id,
	message,
	starts_at,
	ends_at,
	created_at,
	updated_at
`

func (r *announcementRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Announcement, error) {
	query := `SELECT ` + announcementColumns + ` FROM announcements WHERE id = $1`
	item, err := scanAnnouncement(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find announcement by id: %w", err)
	}
	return item, nil
}

func (r *announcementRepository) Create(ctx context.Context, item *model.Announcement) error {
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

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO announcements (id, message, starts_at, ends_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		item.ID,
		item.Message,
		item.StartsAt,
		item.EndsAt,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	return nil
}

func (r *announcementRepository) Update(ctx context.Context, item *model.Announcement) error {
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}

	tag, err := r.pool.Exec(
		ctx,
		`UPDATE announcements
		    SET message = $2,
		        starts_at = $3,
		        ends_at = $4,
		        updated_at = $5
		  WHERE id = $1`,
		item.ID,
		item.Message,
		item.StartsAt,
		item.EndsAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	return ensureAffected(tag)
}

func (r *announcementRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM announcements WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete announcement: %w", err)
	}
	return ensureAffected(tag)
}

func (r *announcementRepository) List(ctx context.Context, page repository.Pagination) ([]*model.Announcement, error) {
	limit, offset := normalizePagination(page)
	rows, err := r.pool.Query(
		ctx,
		`SELECT `+announcementColumns+`
		   FROM announcements
		  ORDER BY starts_at DESC, created_at DESC
		  LIMIT $1 OFFSET $2`,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	defer rows.Close()

	return collectAnnouncements(rows, int(limit))
}

func (r *announcementRepository) ListAll(ctx context.Context) ([]*model.Announcement, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT `+announcementColumns+`
		   FROM announcements
		  ORDER BY starts_at ASC, created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list all announcements: %w", err)
	}
	defer rows.Close()

	return collectAnnouncements(rows, 16)
}

func (r *announcementRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM announcements`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count announcements: %w", err)
	}
	return total, nil
}

func collectAnnouncements(rows pgx.Rows, capacity int) ([]*model.Announcement, error) {
	items := make([]*model.Announcement, 0, capacity)
	for rows.Next() {
		item, err := scanAnnouncement(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanAnnouncement(src scanTarget) (*model.Announcement, error) {
	item := &model.Announcement{}
	if err := src.Scan(
		&item.ID,
		&item.Message,
		&item.StartsAt,
		&item.EndsAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return item, nil
}
