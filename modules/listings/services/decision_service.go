package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/menusam/listing-moderation/modules/listings/domain/aggregates/draft"
	"github.com/menusam/listing-moderation/modules/listings/domain/entities/changelog"
	"github.com/menusam/listing-moderation/modules/listings/domain/entities/establishment"
	logsvc "github.com/menusam/listing-moderation/modules/logging/services"
	"github.com/menusam/listing-moderation/pkg/composables"
)

const defaultRejectReason = "rejected by moderator"

// ChangeRef addresses a change through the establishment and draft it belongs to.
type ChangeRef struct {
	EstablishmentID uuid.UUID
	DraftID         uuid.UUID
	ChangeID        uuid.UUID
}

type DecisionResult struct {
	OK        bool         `json:"ok"`
	Finalized bool         `json:"finalized"`
	Status    draft.Status `json:"status"`
}

type ChangeFailure struct {
	ChangeID uuid.UUID           `json:"change_id"`
	Field    establishment.Field `json:"field"`
	Code     string              `json:"code"`
	Message  string              `json:"message"`
}

type AcceptAllResult struct {
	DecisionResult
	Accepted     int             `json:"accepted"`
	AutoRejected int             `json:"auto_rejected"`
	Failures     []ChangeFailure `json:"failures"`
}

// DecisionService implements the moderator operations on individual field changes.
type DecisionService struct {
	drafts         draft.Repository
	establishments establishment.Repository
	changelogs     changelog.Repository
	applier        *ChangeApplier
	finalizer      *Finalizer
	opts           Options
}

func NewDecisionService(
	drafts draft.Repository,
	establishments establishment.Repository,
	changelogs changelog.Repository,
	applier *ChangeApplier,
	finalizer *Finalizer,
	opts Options,
) *DecisionService {
	return &DecisionService{
		drafts:         drafts,
		establishments: establishments,
		changelogs:     changelogs,
		applier:        applier,
		finalizer:      finalizer,
		opts:           opts.withDefaults(),
	}
}

// ListPending returns the establishment's pending drafts with their changes and submitter.
func (s *DecisionService) ListPending(ctx context.Context, establishmentID uuid.UUID) ([]*draft.Draft, error) {
	if _, err := s.establishments.GetByID(ctx, establishmentID); err != nil {
		return nil, classify(err, "load establishment")
	}
	drafts, err := s.drafts.ListPending(ctx, establishmentID)
	if err != nil {
		return nil, classify(err, "list pending drafts")
	}
	return drafts, nil
}

func (s *DecisionService) Accept(ctx context.Context, ref ChangeRef) (DecisionResult, error) {
	change, err := s.loadChange(ctx, ref)
	if err != nil {
		return DecisionResult{}, err
	}
	before, err := s.acceptChange(ctx, change)
	if err != nil {
		return DecisionResult{}, classify(err, "accept change")
	}
	recordDecision("accepted", "single", 1)

	s.opts.Audit.Record(ctx, logsvc.Entry{
		Action:     auditChangeAccepted,
		EntityType: auditEntityDraft,
		EntityID:   change.DraftID.String(),
		Metadata: map[string]any{
			"establishment_id": change.EstablishmentID.String(),
			"change_id":        change.ID.String(),
			"field":            string(change.Field),
			"before":           before,
			"after":            change.After,
		},
	})
	return s.finish(ctx, change.DraftID), nil
}

func (s *DecisionService) Reject(ctx context.Context, ref ChangeRef, reason string) (DecisionResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return DecisionResult{}, validationError("REASON_REQUIRED", "reason is required")
	}
	change, err := s.loadChange(ctx, ref)
	if err != nil {
		return DecisionResult{}, err
	}
	err = s.opts.InTx(ctx, func(txCtx context.Context) error {
		return s.rejectChange(txCtx, change, reason)
	})
	if err != nil {
		return DecisionResult{}, classify(err, "reject change")
	}
	recordDecision("rejected", "single", 1)

	s.opts.Audit.Record(ctx, logsvc.Entry{
		Action:     auditChangeRejected,
		EntityType: auditEntityDraft,
		EntityID:   change.DraftID.String(),
		Metadata: map[string]any{
			"establishment_id": change.EstablishmentID.String(),
			"change_id":        change.ID.String(),
			"field":            string(change.Field),
			"reason":           reason,
		},
	})
	return s.finish(ctx, change.DraftID), nil
}

// AcceptAll accepts every pending change of a draft in creation order.
// Locked fields and malformed values are rejected with the error message. Any other failure leaves the change
// pending and is reported in Failures without stopping the batch.
func (s *DecisionService) AcceptAll(ctx context.Context, establishmentID, draftID uuid.UUID) (AcceptAllResult, error) {
	d, err := s.loadDraft(ctx, establishmentID, draftID)
	if err != nil {
		return AcceptAllResult{}, err
	}
	changes, err := allChanges(ctx, s.drafts, d.ID, s.opts.PageSize)
	if err != nil {
		return AcceptAllResult{}, classify(err, "list draft changes")
	}

	logger := composables.UseLogger(ctx).WithField("draft-id", d.ID)
	result := AcceptAllResult{Failures: []ChangeFailure{}}
	for _, change := range changes {
		if change.Status != draft.ChangePending {
			continue
		}
		_, err := s.acceptChange(ctx, change)
		if err == nil {
			result.Accepted++
			continue
		}
		if reason, ok := autoRejectReason(err); ok {
			err = s.opts.InTx(ctx, func(txCtx context.Context) error {
				return s.rejectChange(txCtx, change, reason)
			})
			if err == nil {
				result.AutoRejected++
				continue
			}
		}
		err = classify(err, "accept change")
		logger.WithError(err).WithField("change-id", change.ID).Warn("accept-all: change left pending")
		result.Failures = append(result.Failures, ChangeFailure{
			ChangeID: change.ID,
			Field:    change.Field,
			Code:     errorCode(err),
			Message:  err.Error(),
		})
	}
	recordDecision("accepted", "bulk", result.Accepted)
	recordDecision("auto_rejected", "bulk", result.AutoRejected)

	s.opts.Audit.Record(ctx, logsvc.Entry{
		Action:     auditAcceptAll,
		EntityType: auditEntityDraft,
		EntityID:   d.ID.String(),
		Metadata: map[string]any{
			"establishment_id": d.EstablishmentID.String(),
			"accepted":         result.Accepted,
			"auto_rejected":    result.AutoRejected,
			"failed":           len(result.Failures),
		},
	})
	result.DecisionResult = s.finish(ctx, d.ID)
	return result, nil
}

// RejectAll rejects every pending change with a shared reason and finalizes the draft in the same transaction.
func (s *DecisionService) RejectAll(ctx context.Context, establishmentID, draftID uuid.UUID, reason string) (DecisionResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultRejectReason
	}
	if _, err := s.loadDraft(ctx, establishmentID, draftID); err != nil {
		return DecisionResult{}, err
	}

	var (
		d        *draft.Draft
		rejected int
		outcome  FinalizeResult
		c        = conclusion{source: draft.SourceGranular, reason: &reason, actor: actorFrom(ctx), allowEmpty: true}
	)
	err := s.opts.InTx(ctx, func(txCtx context.Context) error {
		var err error
		d, rejected, outcome, err = rejectDraft(txCtx, s.drafts, s.changelogs, s.finalizer, draftID, c)
		return err
	})
	if err != nil {
		return DecisionResult{}, classify(err, "reject all changes")
	}
	recordDecision("rejected", "bulk", rejected)

	s.opts.Audit.Record(ctx, logsvc.Entry{
		Action:     auditRejectAll,
		EntityType: auditEntityDraft,
		EntityID:   d.ID.String(),
		Metadata: map[string]any{
			"establishment_id": d.EstablishmentID.String(),
			"rejected":         rejected,
			"reason":           reason,
		},
	})
	if outcome.Finalized {
		s.finalizer.announce(ctx, d, outcome.Status, c)
	}
	return DecisionResult{OK: true, Finalized: outcome.Finalized, Status: outcome.Status}, nil
}

// rejectDraft rejects the remaining changes of a pending draft, records one draft-level
// change log entry and concludes the draft. It must run inside a transaction, which the
// caller rolls back when another caller finalized the draft first.
func rejectDraft(
	ctx context.Context,
	drafts draft.Repository,
	changelogs changelog.Repository,
	f *Finalizer,
	draftID uuid.UUID,
	c conclusion,
) (*draft.Draft, int, FinalizeResult, error) {
	d, err := drafts.GetByID(ctx, draftID)
	if err != nil {
		return nil, 0, FinalizeResult{}, err
	}
	if d.Status != draft.StatusPending {
		return nil, 0, FinalizeResult{}, errDraftFinalized()
	}
	c.mustWin = true
	now := f.opts.Now()
	rejected, err := drafts.RejectPendingChanges(ctx, d.ID, draft.Decision{
		Status:    draft.ChangeRejected,
		Reason:    c.reason,
		DecidedBy: c.actor,
		DecidedAt: now,
	})
	if err != nil {
		return nil, 0, FinalizeResult{}, err
	}
	if err := changelogs.Append(ctx, &changelog.Entry{
		EstablishmentID: d.EstablishmentID,
		DraftID:         d.ID,
		Action:          changelog.ActionRejected,
		Reason:          c.reason,
		ActorID:         c.actor,
		CreatedAt:       now,
	}); err != nil {
		return nil, 0, FinalizeResult{}, err
	}
	outcome, err := f.conclude(ctx, d, c)
	if err != nil {
		return nil, 0, FinalizeResult{}, err
	}
	return d, rejected, outcome, nil
}

// acceptChange applies the change and marks it accepted in one transaction.
func (s *DecisionService) acceptChange(ctx context.Context, change *draft.Change) (before json.RawMessage, err error) {
	actor := actorFrom(ctx)
	err = s.opts.InTx(ctx, func(txCtx context.Context) error {
		prev, err := s.applier.Apply(txCtx, FieldChange{
			EstablishmentID: change.EstablishmentID,
			DraftID:         change.DraftID,
			Field:           change.Field,
			Value:           change.After,
			ActorID:         actor,
		})
		if err != nil {
			return err
		}
		won, err := s.drafts.DecideChange(txCtx, change.ID, draft.Decision{
			Status:    draft.ChangeAccepted,
			DecidedBy: actor,
			DecidedAt: s.opts.Now(),
		})
		if err != nil {
			return err
		}
		if !won {
			return conflictError("CHANGE_ALREADY_DECIDED", "change has already been decided")
		}
		before = prev
		return nil
	})
	return before, err
}

// rejectChange must run inside a transaction.
func (s *DecisionService) rejectChange(ctx context.Context, change *draft.Change, reason string) error {
	actor := actorFrom(ctx)
	won, err := s.drafts.DecideChange(ctx, change.ID, draft.Decision{
		Status:    draft.ChangeRejected,
		Reason:    &reason,
		DecidedBy: actor,
		DecidedAt: s.opts.Now(),
	})
	if err != nil {
		return err
	}
	if !won {
		return conflictError("CHANGE_ALREADY_DECIDED", "change has already been decided")
	}
	return s.changelogs.Append(ctx, &changelog.Entry{
		EstablishmentID: change.EstablishmentID,
		DraftID:         change.DraftID,
		Action:          changelog.ActionFieldRejected,
		Field:           string(change.Field),
		Before:          change.Before,
		After:           change.After,
		Reason:          &reason,
		ActorID:         actor,
		CreatedAt:       s.opts.Now(),
	})
}

// finish finalizes the draft after a committed decision. A finalize failure does not undo the
// decision; the draft stays pending and the next decision or a manual finalize retries.
func (s *DecisionService) finish(ctx context.Context, draftID uuid.UUID) DecisionResult {
	res, err := s.finalizer.Finalize(ctx, draftID)
	if err != nil {
		sideEffectFailures.WithLabelValues("finalize").Inc()
		composables.UseLogger(ctx).WithError(err).WithField("draft-id", draftID).Error("failed to finalize draft")
		return DecisionResult{OK: true, Finalized: false, Status: draft.StatusPending}
	}
	return DecisionResult{OK: true, Finalized: res.Finalized, Status: res.Status}
}

// allChanges pages through every change of a draft in creation order.
// Offsets stay stable because changes are never added to or removed from a draft under moderation.
func allChanges(ctx context.Context, drafts draft.Repository, draftID uuid.UUID, pageSize int) ([]*draft.Change, error) {
	var out []*draft.Change
	for offset := 0; ; offset += pageSize {
		page, err := drafts.ListChanges(ctx, draftID, pageSize, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < pageSize {
			return out, nil
		}
	}
}

func (s *DecisionService) loadDraft(ctx context.Context, establishmentID, draftID uuid.UUID) (*draft.Draft, error) {
	d, err := s.drafts.GetByID(ctx, draftID)
	if err != nil {
		return nil, classify(err, "load draft")
	}
	if d.EstablishmentID != establishmentID {
		return nil, classify(draft.ErrDraftNotFound, "load draft")
	}
	if d.Status != draft.StatusPending {
		return nil, errDraftFinalized()
	}
	return d, nil
}

func (s *DecisionService) loadChange(ctx context.Context, ref ChangeRef) (*draft.Change, error) {
	d, err := s.drafts.GetByID(ctx, ref.DraftID)
	if err != nil {
		return nil, classify(err, "load draft")
	}
	if d.EstablishmentID != ref.EstablishmentID {
		return nil, classify(draft.ErrDraftNotFound, "load draft")
	}
	change, err := s.drafts.GetChange(ctx, ref.ChangeID)
	if err != nil {
		return nil, classify(err, "load change")
	}
	if change.DraftID != d.ID {
		return nil, classify(draft.ErrChangeNotFound, "load change")
	}
	if change.Status != draft.ChangePending {
		return nil, conflictError("CHANGE_ALREADY_DECIDED", "change has already been decided")
	}
	return change, nil
}
