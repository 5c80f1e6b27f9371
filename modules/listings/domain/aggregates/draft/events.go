package draft

import (
	"time"

	"github.com/google/uuid"
)

const (
	SourceGranular = "granular"
	SourceLegacy   = "legacy"
)

// FinalizedEvent is published once per draft, after its final status is committed.
type FinalizedEvent struct {
	DraftID         uuid.UUID
	EstablishmentID uuid.UUID
	SubmitterID     uuid.UUID
	ModeratorID     *uuid.UUID
	Status          Status
	Source          string
	DecidedAt       time.Time
}
