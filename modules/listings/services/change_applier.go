package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/wI2L/jsondiff"

	"github.com/menusam/listing-moderation/modules/listings/domain/entities/changelog"
	"github.com/menusam/listing-moderation/modules/listings/domain/entities/establishment"
	"github.com/menusam/listing-moderation/modules/listings/domain/policy"
)

// ChangeApplier is the only writer of listing profile fields in the moderation workflow.
type ChangeApplier struct {
	establishments establishment.Repository
	changelogs     changelog.Repository
	now            func() time.Time
}

func NewChangeApplier(establishments establishment.Repository, changelogs changelog.Repository, now func() time.Time) *ChangeApplier {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ChangeApplier{establishments: establishments, changelogs: changelogs, now: now}
}

type FieldChange struct {
	EstablishmentID uuid.UUID
	DraftID         uuid.UUID
	Field           establishment.Field
	Value           json.RawMessage
	ActorID         *uuid.UUID
}

// Apply writes one field and appends a change log entry. It returns the value it replaced.
// Nothing is written when the listing is missing, the field is locked or the value has the wrong shape.
func (a *ChangeApplier) Apply(ctx context.Context, ch FieldChange) (json.RawMessage, error) {
	est, err := a.establishments.GetByID(ctx, ch.EstablishmentID)
	if err != nil {
		return nil, err
	}
	if err := policy.Check(est.Protection(), ch.Field); err != nil {
		return nil, err
	}
	if err := ch.Field.ValidateValue(ch.Value); err != nil {
		return nil, err
	}

	current, err := a.establishments.ReadFields(ctx, ch.EstablishmentID, []establishment.Field{ch.Field})
	if err != nil {
		return nil, err
	}
	before := current[ch.Field]

	if err := a.establishments.WriteFields(ctx, ch.EstablishmentID, map[establishment.Field]json.RawMessage{ch.Field: ch.Value}); err != nil {
		return nil, err
	}
	if err := a.changelogs.Append(ctx, &changelog.Entry{
		EstablishmentID: ch.EstablishmentID,
		DraftID:         ch.DraftID,
		Action:          changelog.ActionFieldAccepted,
		Field:           string(ch.Field),
		Before:          before,
		After:           ch.Value,
		ActorID:         ch.ActorID,
		CreatedAt:       a.now(),
	}); err != nil {
		return nil, err
	}
	return before, nil
}

type Proposal struct {
	EstablishmentID uuid.UUID
	DraftID         uuid.UUID
	Values          map[establishment.Field]json.RawMessage
	ActorID         *uuid.UUID
}

type ProposalResult struct {
	Applied []establishment.Field
	// Stripped maps each field left out of the write to the reason it was dropped.
	Stripped map[establishment.Field]string
	Before   map[establishment.Field]json.RawMessage
	After    map[establishment.Field]json.RawMessage
	// Patch is the RFC 6902 patch from Before to After.
	Patch jsondiff.Patch
}

// ApplyProposal writes every allowed field of a proposal in one statement.
// Locked or malformed fields are stripped instead of failing the whole proposal.
// A single draft-level change log entry records the full before and after objects.
func (a *ChangeApplier) ApplyProposal(ctx context.Context, p Proposal) (*ProposalResult, error) {
	est, err := a.establishments.GetByID(ctx, p.EstablishmentID)
	if err != nil {
		return nil, err
	}

	result := &ProposalResult{
		Stripped: map[establishment.Field]string{},
		After:    map[establishment.Field]json.RawMessage{},
	}
	for _, f := range sortedFields(p.Values) {
		value := p.Values[f]
		if err := policy.Check(est.Protection(), f); err != nil {
			result.Stripped[f] = err.Error()
			continue
		}
		if err := f.ValidateValue(value); err != nil {
			result.Stripped[f] = err.Error()
			continue
		}
		result.Applied = append(result.Applied, f)
		result.After[f] = value
	}

	result.Before, err = a.establishments.ReadFields(ctx, p.EstablishmentID, result.Applied)
	if err != nil {
		return nil, err
	}
	if len(result.Applied) > 0 {
		if err := a.establishments.WriteFields(ctx, p.EstablishmentID, result.After); err != nil {
			return nil, err
		}
	}

	beforeJSON, err := json.Marshal(result.Before)
	if err != nil {
		return nil, err
	}
	afterJSON, err := json.Marshal(result.After)
	if err != nil {
		return nil, err
	}
	if result.Patch, err = jsondiff.CompareJSON(beforeJSON, afterJSON); err != nil {
		return nil, err
	}

	if err := a.changelogs.Append(ctx, &changelog.Entry{
		EstablishmentID: p.EstablishmentID,
		DraftID:         p.DraftID,
		Action:          changelog.ActionApproved,
		Before:          beforeJSON,
		After:           afterJSON,
		ActorID:         p.ActorID,
		CreatedAt:       a.now(),
	}); err != nil {
		return nil, err
	}
	return result, nil
}

func sortedFields(values map[establishment.Field]json.RawMessage) []establishment.Field {
	out := make([]establishment.Field, 0, len(values))
	for _, f := range establishment.Fields() {
		if _, ok := values[f]; ok {
			out = append(out, f)
		}
	}
	return out
}
