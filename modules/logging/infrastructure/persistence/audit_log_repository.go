package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/menusam/listing-moderation/modules/logging/domain/entities/auditlog"
	"github.com/menusam/listing-moderation/pkg/composables"
	"github.com/menusam/listing-moderation/pkg/repo"
)

type AuditLogRepository struct{}

func NewAuditLogRepository() auditlog.Repository {
	return &AuditLogRepository{}
}

func (r *AuditLogRepository) List(ctx context.Context, params *auditlog.FindParams) ([]*auditlog.AuditLog, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	where, args := buildAuditLogFilters(params)
	query := repo.Join(
		"SELECT id, actor_id, action, entity_type, entity_id, metadata, COALESCE(request_id, ''), created_at",
		"FROM audit_logs",
		repo.JoinWhere(where...),
		"ORDER BY created_at DESC, id DESC",
	)
	if params != nil {
		query = repo.Join(query, repo.FormatLimitOffset(params.Limit, params.Offset))
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list audit_logs")
	}
	defer rows.Close()

	var results []*auditlog.AuditLog
	for rows.Next() {
		var (
			row      auditlog.AuditLog
			metadata []byte
		)
		if err := rows.Scan(
			&row.ID,
			&row.ActorID,
			&row.Action,
			&row.EntityType,
			&row.EntityID,
			&metadata,
			&row.RequestID,
			&row.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan audit_log")
		}
		row.Metadata = metadata
		results = append(results, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *AuditLogRepository) Count(ctx context.Context, params *auditlog.FindParams) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	where, args := buildAuditLogFilters(params)

	var count int64
	if err := tx.QueryRow(ctx, repo.Join("SELECT COUNT(*) FROM audit_logs", repo.JoinWhere(where...)), args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "count audit_logs")
	}
	return count, nil
}

func (r *AuditLogRepository) Create(ctx context.Context, log *auditlog.AuditLog) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	metadata := log.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}
	var requestID *string
	if log.RequestID != "" {
		requestID = &log.RequestID
	}

	query := repo.Insert("audit_logs",
		[]string{"actor_id", "action", "entity_type", "entity_id", "metadata", "request_id", "created_at"},
		"id",
	)
	if err := tx.QueryRow(ctx, query,
		log.ActorID,
		log.Action,
		log.EntityType,
		log.EntityID,
		string(metadata),
		requestID,
		log.CreatedAt,
	).Scan(&log.ID); err != nil {
		return errors.Wrap(err, "insert audit_logs")
	}
	return nil
}

func buildAuditLogFilters(params *auditlog.FindParams) ([]string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	if params == nil {
		return where, args
	}
	if v := strings.TrimSpace(params.EntityType); v != "" {
		args = append(args, v)
		where = append(where, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if v := strings.TrimSpace(params.EntityID); v != "" {
		args = append(args, v)
		where = append(where, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if v := strings.TrimSpace(params.Action); v != "" {
		args = append(args, v+"%")
		where = append(where, fmt.Sprintf("action LIKE $%d", len(args)))
	}
	return where, args
}
