package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/menusam/listing-moderation/modules/listings/domain/entities/moderation"
	"github.com/menusam/listing-moderation/pkg/composables"
	"github.com/menusam/listing-moderation/pkg/repo"
)

const (
	moderationTable   = "moderation_queue"
	moderationColumns = "id, entity_type, entity_id, action, draft_id, status, reason, decided_at, decided_by, created_at"
)

type pgModerationRepository struct{}

func NewModerationRepository() moderation.Repository {
	return &pgModerationRepository{}
}

func (r *pgModerationRepository) Create(ctx context.Context, item *moderation.Item) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Status == "" {
		item.Status = moderation.StatusPending
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	query := repo.Insert(moderationTable, []string{
		"id", "entity_type", "entity_id", "action", "draft_id", "status", "created_at",
	})
	if _, err := tx.Exec(ctx, query,
		item.ID, item.EntityType, item.EntityID, item.Action, item.DraftID, item.Status, item.CreatedAt,
	); err != nil {
		return errors.Wrap(err, "insert moderation_queue")
	}
	return nil
}

func (r *pgModerationRepository) GetByID(ctx context.Context, id uuid.UUID) (*moderation.Item, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	query := repo.Join("SELECT", moderationColumns, "FROM", moderationTable, "WHERE id = $1")
	item, err := scanModerationItem(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, moderation.ErrNotFound
		}
		return nil, errors.Wrap(err, "select moderation item")
	}
	return item, nil
}

func (r *pgModerationRepository) List(ctx context.Context, params moderation.FindParams) ([]*moderation.Item, int, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, 0, err
	}

	var (
		where []string
		args  []any
	)
	if params.Status != "" {
		args = append(args, params.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := repo.Join(
		"SELECT", moderationColumns, "FROM", moderationTable,
		repo.JoinWhere(where...),
		"ORDER BY created_at DESC, id",
		repo.FormatLimitOffset(params.Limit, params.Offset),
	)
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list moderation items")
	}
	defer rows.Close()

	var items []*moderation.Item
	for rows.Next() {
		item, err := scanModerationItem(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scan moderation item")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	countQuery := repo.Join("SELECT COUNT(1) FROM", moderationTable, repo.JoinWhere(where...))
	if err := tx.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count moderation items")
	}
	return items, total, nil
}

func (r *pgModerationRepository) Mirror(ctx context.Context, id uuid.UUID, m moderation.Mirror) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	query := repo.Join(
		"UPDATE", moderationTable,
		"SET status = $1, reason = COALESCE($2, reason), decided_at = $3, decided_by = COALESCE($4, decided_by)",
		"WHERE id = $5",
	)
	tag, err := tx.Exec(ctx, query, m.Status, m.Reason, m.DecidedAt, m.DecidedBy, id)
	if err != nil {
		return errors.Wrap(err, "mirror moderation item")
	}
	if tag.RowsAffected() == 0 {
		return moderation.ErrNotFound
	}
	return nil
}

func scanModerationItem(row pgx.Row) (*moderation.Item, error) {
	var item moderation.Item
	if err := row.Scan(
		&item.ID, &item.EntityType, &item.EntityID, &item.Action, &item.DraftID,
		&item.Status, &item.Reason, &item.DecidedAt, &item.DecidedBy, &item.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &item, nil
}
