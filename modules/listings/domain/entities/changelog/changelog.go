package changelog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	ActionFieldAccepted = "profile_update.field.accepted"
	ActionFieldRejected = "profile_update.field.rejected"
	ActionApproved      = "profile_update.approved"
	ActionRejected      = "profile_update.rejected"
)

// Entry is an append-only record of a moderation decision against a listing's profile.
// Field is empty for draft-level entries.
type Entry struct {
	ID              int64           `json:"id"`
	EstablishmentID uuid.UUID       `json:"establishment_id"`
	DraftID         uuid.UUID       `json:"draft_id"`
	Action          string          `json:"action"`
	Field           string          `json:"field,omitempty"`
	Before          json.RawMessage `json:"before,omitempty"`
	After           json.RawMessage `json:"after,omitempty"`
	Reason          *string         `json:"reason,omitempty"`
	ActorID         *uuid.UUID      `json:"actor_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type Repository interface {
	Append(ctx context.Context, e *Entry) error
	ListByDraft(ctx context.Context, draftID uuid.UUID) ([]*Entry, error)
}
