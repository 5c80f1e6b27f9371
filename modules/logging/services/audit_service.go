package services

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/menusam/listing-moderation/modules/logging/domain/entities/auditlog"
	"github.com/menusam/listing-moderation/pkg/composables"
	"github.com/menusam/listing-moderation/pkg/constants"
)

const defaultListLimit = 50

// Entry is what callers hand to the audit sink.
type Entry struct {
	Action     string
	EntityType string
	EntityID   string
	Metadata   map[string]any
}

type AuditService struct {
	repo auditlog.Repository
}

func NewAuditService(repo auditlog.Repository) *AuditService {
	return &AuditService{repo: repo}
}

// Record stores an audit entry outside of any ambient transaction.
// It never fails the caller: errors are logged and swallowed.
func (s *AuditService) Record(ctx context.Context, e Entry) {
	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"audit-action": e.Action,
		"entity-type":  e.EntityType,
		"entity-id":    e.EntityID,
	})

	metadata, err := json.Marshal(e.Metadata)
	if err != nil || e.Metadata == nil {
		if err != nil {
			logger.WithError(err).Warn("audit metadata is not serializable, storing empty metadata")
		}
		metadata = []byte("{}")
	}

	log := &auditlog.AuditLog{
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Metadata:   metadata,
		RequestID:  composables.UseRequestID(ctx),
	}
	if u, err := composables.UseUser(ctx); err == nil {
		id := u.ID
		log.ActorID = &id
	}

	if err := s.repo.Create(composables.WithoutTx(ctx), log); err != nil {
		logger.WithError(err).Error("failed to record audit entry")
	}
}

func (s *AuditService) List(ctx context.Context, params *auditlog.FindParams) ([]*auditlog.AuditLog, int64, error) {
	if params == nil {
		params = &auditlog.FindParams{}
	}
	if err := constants.Validate.Struct(params); err != nil {
		return nil, 0, errors.Wrap(err, "invalid audit log filter")
	}
	if params.Limit == 0 {
		params.Limit = defaultListLimit
	}

	logs, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repo.Count(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return logs, count, nil
}
