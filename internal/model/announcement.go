package model

import (
	"time"

	"github.com/google/uuid"

	"groupings-hub/internal/announcement"
)

type Announcement struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Message   string    `db:"message" json:"message"`
	StartsAt  time.Time `db:"starts_at" json:"starts_at"`
	EndsAt    time.Time `db:"ends_at" json:"ends_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (a *Announcement) Window() announcement.Announcement {
	if a == nil {
		return announcement.Announcement{}
	}
	return announcement.Announcement{
		Message: a.Message,
		Start:   a.StartsAt,
		End:     a.EndsAt,
	}
}
