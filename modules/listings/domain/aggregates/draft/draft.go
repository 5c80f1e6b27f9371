package draft

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/menusam/listing-moderation/modules/listings/domain/entities/establishment"
)

var (
	ErrDraftNotFound  = errors.New("draft not found")
	ErrChangeNotFound = errors.New("draft change not found")
)

// Status of a whole draft. It leaves StatusPending exactly once.
type Status string

const (
	StatusPending           Status = "pending"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
	StatusPartiallyAccepted Status = "partially_accepted"
)

func (s Status) Final() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusPartiallyAccepted
}

// ChangeStatus of a single field change.
type ChangeStatus string

const (
	ChangePending  ChangeStatus = "pending"
	ChangeAccepted ChangeStatus = "accepted"
	ChangeRejected ChangeStatus = "rejected"
)

type Submitter struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
}

type Draft struct {
	ID              uuid.UUID `json:"id"`
	EstablishmentID uuid.UUID `json:"establishment_id"`
	CreatedBy       uuid.UUID `json:"created_by"`
	Status          Status    `json:"status"`
	// Proposed is the raw field map submitted with the draft, used by whole-draft moderation.
	Proposed     map[string]json.RawMessage `json:"proposed,omitempty"`
	ModerationID *uuid.UUID                 `json:"moderation_id,omitempty"`
	Reason       *string                    `json:"reason,omitempty"`
	DecidedAt    *time.Time                 `json:"decided_at,omitempty"`
	CreatedAt    time.Time                  `json:"created_at"`

	Submitter *Submitter `json:"submitter,omitempty"`
	Changes   []*Change  `json:"changes,omitempty"`
}

type Change struct {
	ID              uuid.UUID           `json:"id"`
	DraftID         uuid.UUID           `json:"draft_id"`
	EstablishmentID uuid.UUID           `json:"establishment_id"`
	Field           establishment.Field `json:"field"`
	Before          json.RawMessage     `json:"before"`
	After           json.RawMessage     `json:"after"`
	Status          ChangeStatus        `json:"status"`
	Reason          *string             `json:"reason,omitempty"`
	DecidedAt       *time.Time          `json:"decided_at,omitempty"`
	DecidedBy       *uuid.UUID          `json:"decided_by,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

// Tally counts a draft's children per status.
type Tally struct {
	Pending  int `json:"pending"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

func TallyOf(changes []*Change) Tally {
	var t Tally
	for _, c := range changes {
		t.Add(c.Status)
	}
	return t
}

func (t *Tally) Add(s ChangeStatus) {
	switch s {
	case ChangeAccepted:
		t.Accepted++
	case ChangeRejected:
		t.Rejected++
	default:
		t.Pending++
	}
}

func (t Tally) Total() int {
	return t.Pending + t.Accepted + t.Rejected
}

// Settled reports whether every child is decided and there is at least one child.
func (t Tally) Settled() bool {
	return t.Pending == 0 && t.Total() > 0
}

func (t Tally) Verdict() Status {
	return Verdict(t.Accepted, t.Rejected)
}

// Verdict aggregates terminal child decisions into the draft's final status.
func Verdict(accepted, rejected int) Status {
	switch {
	case accepted > 0 && rejected > 0:
		return StatusPartiallyAccepted
	case accepted > 0:
		return StatusApproved
	default:
		return StatusRejected
	}
}
