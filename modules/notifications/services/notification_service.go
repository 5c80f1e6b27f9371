package services

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/menusam/listing-moderation/modules/listings/domain/aggregates/draft"
	"github.com/menusam/listing-moderation/modules/notifications/domain/notification"
	"github.com/menusam/listing-moderation/pkg/composables"
)

var (
	notificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notifications",
		Name:      "sent_total",
		Help:      "Notifications dispatched, by category and result.",
	}, []string{"category", "result"})

	draftDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notifications",
		Name:      "draft_decisions_total",
		Help:      "Finalized profile drafts observed on the event bus, by decision and source.",
	}, []string{"decision", "source"})
)

type NotificationService struct {
	repo   notification.Repository
	logger *logrus.Logger
}

func NewNotificationService(repo notification.Repository, logger *logrus.Logger) *NotificationService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &NotificationService{repo: repo, logger: logger}
}

// Notify stores a notification for the user. It runs outside any ambient transaction and never fails the caller.
func (s *NotificationService) Notify(ctx context.Context, n notification.Notification) {
	if err := s.repo.Create(composables.WithoutTx(ctx), &n); err != nil {
		notificationsSent.WithLabelValues(n.Category, "error").Inc()
		composables.UseLogger(ctx).WithError(err).WithFields(logrus.Fields{
			"user-id":  n.UserID,
			"category": n.Category,
		}).Error("failed to deliver notification")
		return
	}
	notificationsSent.WithLabelValues(n.Category, "ok").Inc()
}

// OnDraftFinalized is subscribed to the event bus.
func (s *NotificationService) OnDraftFinalized(e *draft.FinalizedEvent) {
	draftDecisions.WithLabelValues(string(e.Status), e.Source).Inc()
	s.logger.WithFields(logrus.Fields{
		"draft-id":         e.DraftID,
		"establishment-id": e.EstablishmentID,
		"decision":         e.Status,
		"source":           e.Source,
	}).Info("profile draft finalized")
}
