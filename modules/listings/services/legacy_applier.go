package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/menusam/listing-moderation/modules/listings/domain/aggregates/draft"
	"github.com/menusam/listing-moderation/modules/listings/domain/entities/changelog"
	"github.com/menusam/listing-moderation/modules/listings/domain/entities/establishment"
	"github.com/menusam/listing-moderation/modules/listings/domain/entities/moderation"
	logsvc "github.com/menusam/listing-moderation/modules/logging/services"
)

var queueStatuses = map[string]struct{}{
	moderation.StatusPending:              {},
	string(draft.StatusApproved):          {},
	string(draft.StatusRejected):          {},
	string(draft.StatusPartiallyAccepted): {},
}

// LegacyDraftApplier decides whole drafts through the generic moderation queue.
// It goes through the same policy, applier and finalizer as the per-field operations.
type LegacyDraftApplier struct {
	drafts     draft.Repository
	queue      moderation.Repository
	changelogs changelog.Repository
	applier    *ChangeApplier
	finalizer  *Finalizer
	opts       Options
}

func NewLegacyDraftApplier(
	drafts draft.Repository,
	queue moderation.Repository,
	changelogs changelog.Repository,
	applier *ChangeApplier,
	finalizer *Finalizer,
	opts Options,
) *LegacyDraftApplier {
	return &LegacyDraftApplier{
		drafts:     drafts,
		queue:      queue,
		changelogs: changelogs,
		applier:    applier,
		finalizer:  finalizer,
		opts:       opts.withDefaults(),
	}
}

func (s *LegacyDraftApplier) List(ctx context.Context, params moderation.FindParams) ([]*moderation.Item, int, error) {
	if params.Status != "" {
		if _, ok := queueStatuses[params.Status]; !ok {
			return nil, 0, validationError("INVALID_STATUS", "unknown moderation status "+params.Status)
		}
	}
	if params.Limit < 0 || params.Offset < 0 {
		return nil, 0, validationError("INVALID_PAGINATION", "limit and offset must not be negative")
	}
	items, total, err := s.queue.List(ctx, params)
	if err != nil {
		return nil, 0, classify(err, "list moderation items")
	}
	return items, total, nil
}

// Approve applies the draft's remaining proposal in a single write. Locked or invalid fields are
// stripped and their pending changes rejected, so the result matches a per-field accept-all.
func (s *LegacyDraftApplier) Approve(ctx context.Context, itemID uuid.UUID) (DecisionResult, error) {
	item, err := s.loadItem(ctx, itemID)
	if err != nil {
		return DecisionResult{}, err
	}

	var (
		d       *draft.Draft
		applied *ProposalResult
		outcome FinalizeResult
		decided int
		c       = conclusion{source: draft.SourceLegacy, actor: actorFrom(ctx), allowEmpty: true, mustWin: true}
	)
	err = s.opts.InTx(ctx, func(txCtx context.Context) error {
		var err error
		if d, err = s.pendingDraft(txCtx, item); err != nil {
			return err
		}
		changes, err := allChanges(txCtx, s.drafts, d.ID, s.opts.PageSize)
		if err != nil {
			return err
		}

		values := map[establishment.Field]json.RawMessage{}
		unknown := 0
		var pending []*draft.Change
		if len(changes) > 0 {
			for _, ch := range changes {
				if ch.Status != draft.ChangePending {
					continue
				}
				pending = append(pending, ch)
				values[ch.Field] = ch.After
			}
		} else {
			for key, value := range d.Proposed {
				f, err := establishment.ParseField(key)
				if err != nil {
					unknown++
					continue
				}
				values[f] = value
			}
		}

		applied, err = s.applier.ApplyProposal(txCtx, Proposal{
			EstablishmentID: d.EstablishmentID,
			DraftID:         d.ID,
			Values:          values,
			ActorID:         c.actor,
		})
		if err != nil {
			return err
		}

		now := s.opts.Now()
		for _, ch := range pending {
			decision := draft.Decision{Status: draft.ChangeAccepted, DecidedBy: c.actor, DecidedAt: now}
			if why, stripped := applied.Stripped[ch.Field]; stripped {
				decision.Status = draft.ChangeRejected
				decision.Reason = &why
			}
			won, err := s.drafts.DecideChange(txCtx, ch.ID, decision)
			if err != nil {
				return err
			}
			if !won {
				return conflictError("CHANGE_ALREADY_DECIDED", "a change of this draft was decided concurrently")
			}
			decided++
			if decision.Status != draft.ChangeRejected {
				continue
			}
			if err := s.changelogs.Append(txCtx, &changelog.Entry{
				EstablishmentID: ch.EstablishmentID,
				DraftID:         ch.DraftID,
				Action:          changelog.ActionFieldRejected,
				Field:           string(ch.Field),
				Before:          ch.Before,
				After:           ch.After,
				Reason:          decision.Reason,
				ActorID:         c.actor,
				CreatedAt:       now,
			}); err != nil {
				return err
			}
		}

		if len(changes) == 0 {
			c.tally = &draft.Tally{Accepted: len(applied.Applied), Rejected: len(applied.Stripped) + unknown}
		}
		outcome, err = s.finalizer.conclude(txCtx, d, c)
		return err
	})
	if err != nil {
		return DecisionResult{}, classify(err, "approve draft")
	}
	recordDecision("accepted", "legacy", len(applied.Applied))
	recordDecision("auto_rejected", "legacy", len(applied.Stripped))

	stripped := make(map[string]string, len(applied.Stripped))
	for f, why := range applied.Stripped {
		stripped[string(f)] = why
	}
	s.opts.Audit.Record(ctx, logsvc.Entry{
		Action:     auditLegacyApproved,
		EntityType: auditEntityDraft,
		EntityID:   d.ID.String(),
		Metadata: map[string]any{
			"establishment_id": d.EstablishmentID.String(),
			"moderation_id":    item.ID.String(),
			"applied":          applied.Applied,
			"stripped":         stripped,
			"changes_decided":  decided,
			"patch":            applied.Patch,
		},
	})
	if outcome.Finalized {
		s.announce(ctx, item, d, outcome.Status, c)
	}
	return DecisionResult{OK: true, Finalized: outcome.Finalized, Status: outcome.Status}, nil
}

// Reject rejects the draft and any pending changes with the given reason.
func (s *LegacyDraftApplier) Reject(ctx context.Context, itemID uuid.UUID, reason string) (DecisionResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return DecisionResult{}, validationError("REASON_REQUIRED", "reason is required")
	}
	item, err := s.loadItem(ctx, itemID)
	if err != nil {
		return DecisionResult{}, err
	}

	var (
		d        *draft.Draft
		rejected int
		outcome  FinalizeResult
		c        = conclusion{source: draft.SourceLegacy, reason: &reason, actor: actorFrom(ctx), allowEmpty: true}
	)
	err = s.opts.InTx(ctx, func(txCtx context.Context) error {
		if _, err := s.pendingDraft(txCtx, item); err != nil {
			return err
		}
		var err error
		d, rejected, outcome, err = rejectDraft(txCtx, s.drafts, s.changelogs, s.finalizer, *item.DraftID, c)
		return err
	})
	if err != nil {
		return DecisionResult{}, classify(err, "reject draft")
	}
	recordDecision("rejected", "legacy", rejected)

	s.opts.Audit.Record(ctx, logsvc.Entry{
		Action:     auditLegacyRejected,
		EntityType: auditEntityDraft,
		EntityID:   d.ID.String(),
		Metadata: map[string]any{
			"establishment_id": d.EstablishmentID.String(),
			"moderation_id":    item.ID.String(),
			"rejected":         rejected,
			"reason":           reason,
		},
	})
	if outcome.Finalized {
		s.announce(ctx, item, d, outcome.Status, c)
	}
	return DecisionResult{OK: true, Finalized: outcome.Finalized, Status: outcome.Status}, nil
}

// announce mirrors onto the queue item that triggered the decision even when the draft has no back-reference.
func (s *LegacyDraftApplier) announce(ctx context.Context, item *moderation.Item, d *draft.Draft, status draft.Status, c conclusion) {
	if d.ModerationID == nil {
		id := item.ID
		d.ModerationID = &id
	}
	s.finalizer.announce(ctx, d, status, c)
}

func (s *LegacyDraftApplier) loadItem(ctx context.Context, itemID uuid.UUID) (*moderation.Item, error) {
	item, err := s.queue.GetByID(ctx, itemID)
	if err != nil {
		return nil, classify(err, "load moderation item")
	}
	if !item.ProfileUpdate() {
		return nil, validationError("UNSUPPORTED_MODERATION_ITEM", "moderation item is not a listing profile update")
	}
	return item, nil
}

func (s *LegacyDraftApplier) pendingDraft(ctx context.Context, item *moderation.Item) (*draft.Draft, error) {
	d, err := s.drafts.GetByID(ctx, *item.DraftID)
	if err != nil {
		return nil, err
	}
	if d.EstablishmentID != item.EntityID {
		return nil, draft.ErrDraftNotFound
	}
	if d.Status != draft.StatusPending {
		return nil, errDraftFinalized()
	}
	return d, nil
}
