package establishment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("establishment not found")

// Protection is the part of a listing's state that locks fields.
type Protection struct {
	Verified bool
}

type Establishment struct {
	ID              uuid.UUID  `json:"id"`
	OwnerID         *uuid.UUID `json:"owner_id,omitempty"`
	Name            string     `json:"name"`
	Verified        bool       `json:"verified"`
	HasPendingEdits bool       `json:"has_pending_edits"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (e *Establishment) Protection() Protection {
	return Protection{Verified: e.Verified}
}

// Repository reads and writes profile fields. Values are JSON encoded in the field's Kind.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Establishment, error)
	ReadFields(ctx context.Context, id uuid.UUID, fields []Field) (map[Field]json.RawMessage, error)
	// WriteFields updates every given field and bumps updated_at in a single statement.
	WriteFields(ctx context.Context, id uuid.UUID, values map[Field]json.RawMessage) error
	ReleasePendingEdits(ctx context.Context, id uuid.UUID) error
}
