package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	logsvc "github.com/menusam/listing-moderation/modules/logging/services"
	"github.com/menusam/listing-moderation/modules/notifications/domain/notification"
	"github.com/menusam/listing-moderation/pkg/composables"
)

// Notifier delivers user notifications. Implementations must not fail the caller.
type Notifier interface {
	Notify(ctx context.Context, n notification.Notification)
}

// AuditSink records audit entries. Implementations must not fail the caller.
type AuditSink interface {
	Record(ctx context.Context, e logsvc.Entry)
}

// TxRunner runs fn in a transaction, rolling back when fn fails.
type TxRunner func(ctx context.Context, fn func(context.Context) error) error

const (
	auditEntityDraft = "profile_draft"

	auditChangeAccepted = "profile_update.change.accepted"
	auditChangeRejected = "profile_update.change.rejected"
	auditAcceptAll      = "profile_update.accept_all"
	auditRejectAll      = "profile_update.reject_all"
	auditFinalized      = "profile_update.finalized"
	auditLegacyApproved = "profile_update.legacy.approved"
	auditLegacyRejected = "profile_update.legacy.rejected"
)

// Options holds the collaborators shared by the listing services.
type Options struct {
	InTx     TxRunner
	Now      func() time.Time
	Notifier Notifier
	Audit    AuditSink
	// PageSize bounds how many changes of a single draft are loaded at once.
	PageSize int
}

func (o Options) withDefaults() Options {
	if o.InTx == nil {
		o.InTx = composables.InTx
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.Notifier == nil {
		o.Notifier = nopNotifier{}
	}
	if o.Audit == nil {
		o.Audit = nopAudit{}
	}
	if o.PageSize <= 0 {
		o.PageSize = 500
	}
	return o
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, notification.Notification) {}

type nopAudit struct{}

func (nopAudit) Record(context.Context, logsvc.Entry) {}

// actorFrom returns the authenticated moderator, if any.
func actorFrom(ctx context.Context) *uuid.UUID {
	u, err := composables.UseUser(ctx)
	if err != nil {
		return nil
	}
	id := u.ID
	return &id
}
