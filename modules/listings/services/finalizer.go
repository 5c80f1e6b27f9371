package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/menusam/listing-moderation/modules/listings/domain/aggregates/draft"
	"github.com/menusam/listing-moderation/modules/listings/domain/entities/establishment"
	"github.com/menusam/listing-moderation/modules/listings/domain/entities/moderation"
	logsvc "github.com/menusam/listing-moderation/modules/logging/services"
	"github.com/menusam/listing-moderation/modules/notifications/domain/notification"
	"github.com/menusam/listing-moderation/pkg/composables"
	"github.com/menusam/listing-moderation/pkg/eventbus"
)

type FinalizeResult struct {
	Finalized bool         `json:"finalized"`
	Status    draft.Status `json:"status,omitempty"`
}

// Finalizer turns a draft whose children are all decided into its final status, once.
type Finalizer struct {
	drafts         draft.Repository
	establishments establishment.Repository
	queue          moderation.Repository
	publisher      eventbus.EventBus
	opts           Options
}

func NewFinalizer(
	drafts draft.Repository,
	establishments establishment.Repository,
	queue moderation.Repository,
	publisher eventbus.EventBus,
	opts Options,
) *Finalizer {
	return &Finalizer{
		drafts:         drafts,
		establishments: establishments,
		queue:          queue,
		publisher:      publisher,
		opts:           opts.withDefaults(),
	}
}

// conclusion carries the inputs of a finalization beyond the draft itself.
type conclusion struct {
	source string
	reason *string
	actor  *uuid.UUID
	// allowEmpty finalizes a draft without children as rejected instead of leaving it pending.
	allowEmpty bool
	// mustWin is set by callers that have already written inside the same transaction.
	// Losing the draft to another caller is then a conflict, so their writes roll back.
	mustWin bool
	// tally replaces the counted children when the caller already knows the outcome.
	tally *draft.Tally
}

// Finalize is safe to call any number of times. Only the call that moves the draft out of
// pending reports Finalized and triggers notification, audit and the finalized event.
func (f *Finalizer) Finalize(ctx context.Context, draftID uuid.UUID) (FinalizeResult, error) {
	var (
		d      *draft.Draft
		result FinalizeResult
		c      = conclusion{source: draft.SourceGranular, actor: actorFrom(ctx)}
	)
	err := f.opts.InTx(ctx, func(txCtx context.Context) error {
		var err error
		d, err = f.drafts.GetByID(txCtx, draftID)
		if err != nil {
			return err
		}
		result, err = f.conclude(txCtx, d, c)
		return err
	})
	if err != nil {
		return FinalizeResult{}, classify(err, "finalize draft")
	}
	if result.Finalized {
		f.announce(ctx, d, result.Status, c)
	}
	return result, nil
}

// conclude runs inside the caller's transaction. It never performs side effects outside the store.
func (f *Finalizer) conclude(ctx context.Context, d *draft.Draft, c conclusion) (FinalizeResult, error) {
	if d.Status != draft.StatusPending {
		if c.mustWin {
			return FinalizeResult{}, errDraftFinalized()
		}
		return FinalizeResult{Finalized: false, Status: d.Status}, nil
	}

	var tally draft.Tally
	if c.tally != nil {
		tally = *c.tally
	} else {
		counted, err := f.drafts.CountChanges(ctx, d.ID)
		if err != nil {
			return FinalizeResult{}, err
		}
		tally = counted
	}
	if tally.Pending > 0 {
		return FinalizeResult{Finalized: false, Status: draft.StatusPending}, nil
	}
	if tally.Total() == 0 && !c.allowEmpty {
		return FinalizeResult{Finalized: false, Status: draft.StatusPending}, nil
	}

	status := tally.Verdict()
	now := f.opts.Now()
	won, err := f.drafts.FinalizeDraft(ctx, d.ID, draft.Outcome{Status: status, Reason: c.reason, DecidedAt: now})
	if err != nil {
		return FinalizeResult{}, err
	}
	if !won {
		finalizeRaces.Inc()
		if c.mustWin {
			return FinalizeResult{}, errDraftFinalized()
		}
		current, err := f.drafts.GetByID(ctx, d.ID)
		if err != nil {
			return FinalizeResult{}, err
		}
		return FinalizeResult{Finalized: false, Status: current.Status}, nil
	}
	if err := f.establishments.ReleasePendingEdits(ctx, d.EstablishmentID); err != nil {
		return FinalizeResult{}, err
	}

	d.Status = status
	d.Reason = c.reason
	d.DecidedAt = &now
	return FinalizeResult{Finalized: true, Status: status}, nil
}

// announce runs the best-effort side effects of a committed finalization.
func (f *Finalizer) announce(ctx context.Context, d *draft.Draft, status draft.Status, c conclusion) {
	ctx = composables.WithoutTx(ctx)
	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"draft-id":         d.ID,
		"establishment-id": d.EstablishmentID,
		"decision":         status,
	})
	decidedAt := f.opts.Now()
	if d.DecidedAt != nil {
		decidedAt = *d.DecidedAt
	}

	draftFinalizations.WithLabelValues(string(status), c.source).Inc()

	if d.ModerationID != nil {
		err := f.queue.Mirror(ctx, *d.ModerationID, moderation.Mirror{
			Status:    string(status),
			Reason:    c.reason,
			DecidedBy: c.actor,
			DecidedAt: decidedAt,
		})
		if err != nil {
			sideEffectFailures.WithLabelValues("mirror").Inc()
			logger.WithError(err).Warn("failed to mirror draft decision onto moderation item")
		}
	}

	f.opts.Notifier.Notify(ctx, decisionNotification(d, status, c.reason))

	f.opts.Audit.Record(ctx, logsvc.Entry{
		Action:     auditFinalized,
		EntityType: auditEntityDraft,
		EntityID:   d.ID.String(),
		Metadata: map[string]any{
			"establishment_id": d.EstablishmentID.String(),
			"decision":         string(status),
			"source":           c.source,
		},
	})

	if f.publisher != nil {
		f.publisher.Publish(&draft.FinalizedEvent{
			DraftID:         d.ID,
			EstablishmentID: d.EstablishmentID,
			SubmitterID:     d.CreatedBy,
			ModeratorID:     c.actor,
			Status:          status,
			Source:          c.source,
			DecidedAt:       decidedAt,
		})
	}
	logger.Info("draft finalized")
}

func decisionNotification(d *draft.Draft, status draft.Status, reason *string) notification.Notification {
	n := notification.Notification{
		UserID:   d.CreatedBy,
		Category: notification.CategoryProfileUpdate,
		Data: map[string]any{
			"draftId":  d.ID.String(),
			"decision": string(status),
		},
	}
	switch status {
	case draft.StatusApproved:
		n.Title = "Your profile changes were approved"
		n.Body = "All the changes you proposed are now live on your listing."
	case draft.StatusPartiallyAccepted:
		n.Title = "Your profile changes were partially validated"
		n.Body = "Some of the changes you proposed are now live. The others were declined by our moderation team."
	default:
		n.Title = "Your profile changes were rejected"
		n.Body = "The changes you proposed were declined by our moderation team."
		if reason != nil && *reason != "" {
			n.Body += " Reason: " + *reason
		}
	}
	return n
}
