package draft

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Decision is a terminal transition applied to a pending change.
type Decision struct {
	Status    ChangeStatus
	Reason    *string
	DecidedBy *uuid.UUID
	DecidedAt time.Time
}

// Outcome is a terminal transition applied to a pending draft.
type Outcome struct {
	Status    Status
	Reason    *string
	DecidedAt time.Time
}

type Repository interface {
	// Create stores a draft together with its changes.
	Create(ctx context.Context, d *Draft) error
	GetByID(ctx context.Context, id uuid.UUID) (*Draft, error)
	// ListPending returns an establishment's pending drafts with changes and submitter, oldest first.
	ListPending(ctx context.Context, establishmentID uuid.UUID) ([]*Draft, error)
	GetChange(ctx context.Context, id uuid.UUID) (*Change, error)
	// ListChanges returns up to limit changes of a draft in creation order, skipping the first offset.
	ListChanges(ctx context.Context, draftID uuid.UUID, limit, offset int) ([]*Change, error)
	CountChanges(ctx context.Context, draftID uuid.UUID) (Tally, error)
	// DecideChange moves a change out of pending. It reports false when the change was not pending.
	DecideChange(ctx context.Context, id uuid.UUID, d Decision) (bool, error)
	// RejectPendingChanges rejects every pending change of a draft and returns how many moved.
	RejectPendingChanges(ctx context.Context, draftID uuid.UUID, d Decision) (int, error)
	// FinalizeDraft moves a draft out of pending. It reports false when another caller got there first.
	FinalizeDraft(ctx context.Context, id uuid.UUID, o Outcome) (bool, error)
}
