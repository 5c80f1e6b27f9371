package moderation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	EntityEstablishment = "establishment"
	ActionProfileUpdate = "profile_update"

	StatusPending = "pending"
)

var ErrNotFound = errors.New("moderation item not found")

// Item is an entry of the generic moderation queue.
type Item struct {
	ID         uuid.UUID  `json:"id"`
	EntityType string     `json:"entity_type"`
	EntityID   uuid.UUID  `json:"entity_id"`
	Action     string     `json:"action"`
	DraftID    *uuid.UUID `json:"draft_id,omitempty"`
	Status     string     `json:"status"`
	Reason     *string    `json:"reason,omitempty"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
	DecidedBy  *uuid.UUID `json:"decided_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ProfileUpdate reports whether the item is a listing profile edit backed by a draft.
func (i *Item) ProfileUpdate() bool {
	return i.EntityType == EntityEstablishment && i.Action == ActionProfileUpdate && i.DraftID != nil
}

type FindParams struct {
	Status string
	Limit  int
	Offset int
}

// Mirror copies a draft's final decision onto its queue item.
type Mirror struct {
	Status    string
	Reason    *string
	DecidedBy *uuid.UUID
	DecidedAt time.Time
}

type Repository interface {
	Create(ctx context.Context, item *Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	List(ctx context.Context, params FindParams) ([]*Item, int, error)
	Mirror(ctx context.Context, id uuid.UUID, m Mirror) error
}
