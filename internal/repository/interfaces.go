package repository

import (
	"context"

	"github.com/google/uuid"

	"groupings-hub/internal/model"
)

type Pagination struct {
	Limit  int32 `json:"limit"`
	Offset int32 `json:"offset"`
}

type AnnouncementRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Announcement, error)
	Create(ctx context.Context, item *model.Announcement) error
	Update(ctx context.Context, item *model.Announcement) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, page Pagination) ([]*model.Announcement, error)
	ListAll(ctx context.Context) ([]*model.Announcement, error)
	Count(ctx context.Context) (int64, error)
}
