package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/menusam/listing-moderation/modules/listings/domain/aggregates/draft"
	"github.com/menusam/listing-moderation/modules/listings/domain/entities/establishment"
	"github.com/menusam/listing-moderation/pkg/composables"
	"github.com/menusam/listing-moderation/pkg/repo"
)

const (
	draftsTable       = "profile_drafts"
	draftChangesTable = "profile_draft_changes"

	draftColumns  = "d.id, d.establishment_id, d.created_by, d.status, d.proposed, d.moderation_id, d.reason, d.decided_at, d.created_at"
	changeColumns = "id, draft_id, establishment_id, field, before, after, status, reason, decided_at, decided_by, created_at"
)

type pgDraftRepository struct{}

func NewDraftRepository() draft.Repository {
	return &pgDraftRepository{}
}

func (r *pgDraftRepository) Create(ctx context.Context, d *draft.Draft) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = draft.StatusPending
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	proposed := d.Proposed
	if proposed == nil {
		proposed = map[string]json.RawMessage{}
	}
	proposedJSON, err := json.Marshal(proposed)
	if err != nil {
		return errors.Wrap(err, "marshal proposed")
	}

	query := repo.Insert(draftsTable, []string{
		"id", "establishment_id", "created_by", "status", "proposed", "moderation_id", "reason", "decided_at", "created_at",
	})
	if _, err := tx.Exec(ctx, query,
		d.ID, d.EstablishmentID, d.CreatedBy, string(d.Status), string(proposedJSON),
		d.ModerationID, d.Reason, d.DecidedAt, d.CreatedAt,
	); err != nil {
		return errors.Wrap(err, "insert profile_drafts")
	}

	changeQuery := repo.Insert(draftChangesTable, []string{
		"id", "draft_id", "establishment_id", "field", "before", "after", "status", "reason", "created_at",
	})
	for i, c := range d.Changes {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.DraftID = d.ID
		c.EstablishmentID = d.EstablishmentID
		if c.Status == "" {
			c.Status = draft.ChangePending
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = d.CreatedAt.Add(time.Duration(i) * time.Microsecond)
		}
		if _, err := tx.Exec(ctx, changeQuery,
			c.ID, c.DraftID, c.EstablishmentID, string(c.Field), jsonArg(c.Before), jsonArg(c.After),
			string(c.Status), c.Reason, c.CreatedAt,
		); err != nil {
			return errors.Wrap(err, "insert profile_draft_changes")
		}
	}
	return nil
}

func (r *pgDraftRepository) GetByID(ctx context.Context, id uuid.UUID) (*draft.Draft, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	query := repo.Join("SELECT", draftColumns, "FROM", draftsTable, "d WHERE d.id = $1")
	d, err := scanDraft(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, draft.ErrDraftNotFound
		}
		return nil, errors.Wrap(err, "select profile_draft")
	}
	return d, nil
}

func (r *pgDraftRepository) ListPending(ctx context.Context, establishmentID uuid.UUID) ([]*draft.Draft, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	query := repo.Join(
		"SELECT", draftColumns, ", u.id, u.email, u.first_name, u.last_name",
		"FROM", draftsTable, "d",
		"LEFT JOIN users u ON u.id = d.created_by",
		repo.JoinWhere("d.establishment_id = $1", "d.status = 'pending'"),
		"ORDER BY d.created_at, d.id",
	)
	rows, err := tx.Query(ctx, query, establishmentID)
	if err != nil {
		return nil, errors.Wrap(err, "list pending drafts")
	}
	defer rows.Close()

	var (
		drafts []*draft.Draft
		ids    []uuid.UUID
		byID   = map[uuid.UUID]*draft.Draft{}
	)
	for rows.Next() {
		var (
			d        draft.Draft
			status   string
			proposed []byte
			subID    *uuid.UUID
			email    *string
			first    *string
			last     *string
		)
		if err := rows.Scan(
			&d.ID, &d.EstablishmentID, &d.CreatedBy, &status, &proposed, &d.ModerationID, &d.Reason, &d.DecidedAt, &d.CreatedAt,
			&subID, &email, &first, &last,
		); err != nil {
			return nil, errors.Wrap(err, "scan pending draft")
		}
		d.Status = draft.Status(status)
		if err := decodeProposed(proposed, &d); err != nil {
			return nil, err
		}
		if subID != nil {
			d.Submitter = &draft.Submitter{ID: *subID, Email: deref(email), FirstName: deref(first), LastName: deref(last)}
		}
		d.Changes = []*draft.Change{}
		drafts = append(drafts, &d)
		ids = append(ids, d.ID)
		byID[d.ID] = &d
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return drafts, nil
	}

	changeRows, err := tx.Query(ctx,
		repo.Join("SELECT", changeColumns, "FROM", draftChangesTable, "WHERE draft_id = ANY($1)", "ORDER BY created_at, id"),
		ids,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list pending draft changes")
	}
	defer changeRows.Close()
	for changeRows.Next() {
		c, err := scanChange(changeRows)
		if err != nil {
			return nil, err
		}
		if d, ok := byID[c.DraftID]; ok {
			d.Changes = append(d.Changes, c)
		}
	}
	return drafts, changeRows.Err()
}

func (r *pgDraftRepository) GetChange(ctx context.Context, id uuid.UUID) (*draft.Change, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	query := repo.Join("SELECT", changeColumns, "FROM", draftChangesTable, "WHERE id = $1")
	c, err := scanChange(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, draft.ErrChangeNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *pgDraftRepository) ListChanges(ctx context.Context, draftID uuid.UUID, limit, offset int) ([]*draft.Change, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	query := repo.Join(
		"SELECT", changeColumns, "FROM", draftChangesTable,
		"WHERE draft_id = $1",
		"ORDER BY created_at, id",
		repo.FormatLimitOffset(limit, offset),
	)
	rows, err := tx.Query(ctx, query, draftID)
	if err != nil {
		return nil, errors.Wrap(err, "list draft changes")
	}
	defer rows.Close()

	var changes []*draft.Change
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func (r *pgDraftRepository) CountChanges(ctx context.Context, draftID uuid.UUID) (draft.Tally, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return draft.Tally{}, err
	}
	query := repo.Join("SELECT status, COUNT(1) FROM", draftChangesTable, "WHERE draft_id = $1 GROUP BY status")
	rows, err := tx.Query(ctx, query, draftID)
	if err != nil {
		return draft.Tally{}, errors.Wrap(err, "count draft changes")
	}
	defer rows.Close()

	var tally draft.Tally
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return draft.Tally{}, errors.Wrap(err, "scan draft change count")
		}
		switch draft.ChangeStatus(status) {
		case draft.ChangeAccepted:
			tally.Accepted += n
		case draft.ChangeRejected:
			tally.Rejected += n
		default:
			tally.Pending += n
		}
	}
	return tally, rows.Err()
}

func (r *pgDraftRepository) DecideChange(ctx context.Context, id uuid.UUID, d draft.Decision) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	query := repo.Update(draftChangesTable,
		[]string{"status", "reason", "decided_at", "decided_by"},
		"id = $5", "status = 'pending'",
	)
	tag, err := tx.Exec(ctx, query, string(d.Status), d.Reason, d.DecidedAt, d.DecidedBy, id)
	if err != nil {
		return false, errors.Wrap(err, "decide draft change")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgDraftRepository) RejectPendingChanges(ctx context.Context, draftID uuid.UUID, d draft.Decision) (int, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	query := repo.Update(draftChangesTable,
		[]string{"status", "reason", "decided_at", "decided_by"},
		"draft_id = $5", "status = 'pending'",
	)
	tag, err := tx.Exec(ctx, query, string(draft.ChangeRejected), d.Reason, d.DecidedAt, d.DecidedBy, draftID)
	if err != nil {
		return 0, errors.Wrap(err, "reject pending draft changes")
	}
	return int(tag.RowsAffected()), nil
}

func (r *pgDraftRepository) FinalizeDraft(ctx context.Context, id uuid.UUID, o draft.Outcome) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	query := repo.Join(
		"UPDATE", draftsTable,
		"SET status = $1, decided_at = $2, reason = COALESCE($3, reason)",
		repo.JoinWhere("id = $4", "status = 'pending'"),
	)
	tag, err := tx.Exec(ctx, query, string(o.Status), o.DecidedAt, o.Reason, id)
	if err != nil {
		return false, errors.Wrap(err, "finalize profile_draft")
	}
	return tag.RowsAffected() == 1, nil
}

func scanDraft(row pgx.Row) (*draft.Draft, error) {
	var (
		d        draft.Draft
		status   string
		proposed []byte
	)
	if err := row.Scan(&d.ID, &d.EstablishmentID, &d.CreatedBy, &status, &proposed, &d.ModerationID, &d.Reason, &d.DecidedAt, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.Status = draft.Status(status)
	if err := decodeProposed(proposed, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func scanChange(row pgx.Row) (*draft.Change, error) {
	var (
		c      draft.Change
		field  string
		status string
		before []byte
		after  []byte
	)
	if err := row.Scan(
		&c.ID, &c.DraftID, &c.EstablishmentID, &field, &before, &after, &status, &c.Reason, &c.DecidedAt, &c.DecidedBy, &c.CreatedAt,
	); err != nil {
		return nil, errors.Wrap(err, "scan draft change")
	}
	c.Field = establishment.Field(field)
	c.Status = draft.ChangeStatus(status)
	c.Before = jsonOrNull(before)
	c.After = jsonOrNull(after)
	return &c, nil
}

func decodeProposed(raw []byte, d *draft.Draft) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &d.Proposed); err != nil {
		return errors.Wrap(err, "decode proposed")
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
