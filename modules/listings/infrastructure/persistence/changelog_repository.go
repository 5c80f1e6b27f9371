package persistence

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/menusam/listing-moderation/modules/listings/domain/entities/changelog"
	"github.com/menusam/listing-moderation/pkg/composables"
	"github.com/menusam/listing-moderation/pkg/repo"
)

const changeLogsTable = "profile_change_logs"

type pgChangeLogRepository struct{}

func NewChangeLogRepository() changelog.Repository {
	return &pgChangeLogRepository{}
}

func (r *pgChangeLogRepository) Append(ctx context.Context, e *changelog.Entry) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var field *string
	if e.Field != "" {
		field = &e.Field
	}
	query := repo.Insert(changeLogsTable, []string{
		"establishment_id", "draft_id", "action", "field", "before", "after", "reason", "actor_id", "created_at",
	}, "id")
	if err := tx.QueryRow(ctx, query,
		e.EstablishmentID, e.DraftID, e.Action, field, jsonArg(e.Before), jsonArg(e.After), e.Reason, e.ActorID, e.CreatedAt,
	).Scan(&e.ID); err != nil {
		return errors.Wrap(err, "insert profile_change_logs")
	}
	return nil
}

func (r *pgChangeLogRepository) ListByDraft(ctx context.Context, draftID uuid.UUID) ([]*changelog.Entry, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	query := repo.Join(
		"SELECT id, establishment_id, draft_id, action, COALESCE(field, ''), before, after, reason, actor_id, created_at",
		"FROM", changeLogsTable,
		"WHERE draft_id = $1",
		"ORDER BY id",
	)
	rows, err := tx.Query(ctx, query, draftID)
	if err != nil {
		return nil, errors.Wrap(err, "list profile_change_logs")
	}
	defer rows.Close()

	var entries []*changelog.Entry
	for rows.Next() {
		var (
			e      changelog.Entry
			before []byte
			after  []byte
		)
		if err := rows.Scan(&e.ID, &e.EstablishmentID, &e.DraftID, &e.Action, &e.Field, &before, &after, &e.Reason, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan profile_change_log")
		}
		if len(before) > 0 {
			e.Before = before
		}
		if len(after) > 0 {
			e.After = after
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
