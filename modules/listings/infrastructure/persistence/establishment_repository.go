package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/menusam/listing-moderation/modules/listings/domain/entities/establishment"
	"github.com/menusam/listing-moderation/pkg/composables"
	"github.com/menusam/listing-moderation/pkg/repo"
)

const establishmentsTable = "establishments"

type pgEstablishmentRepository struct{}

func NewEstablishmentRepository() establishment.Repository {
	return &pgEstablishmentRepository{}
}

func (r *pgEstablishmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*establishment.Establishment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	query := repo.Join(
		"SELECT id, owner_id, name, verified, has_pending_edits, updated_at",
		"FROM", establishmentsTable,
		"WHERE id = $1",
	)
	var (
		e       establishment.Establishment
		ownerID *uuid.UUID
	)
	err = tx.QueryRow(ctx, query, id).Scan(&e.ID, &ownerID, &e.Name, &e.Verified, &e.HasPendingEdits, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, establishment.ErrNotFound
		}
		return nil, errors.Wrap(err, "select establishment")
	}
	e.OwnerID = ownerID
	return &e, nil
}

// ReadFields returns the current value of each field as JSON. NULL columns read back as JSON null.
func (r *pgEstablishmentRepository) ReadFields(ctx context.Context, id uuid.UUID, fields []establishment.Field) (map[establishment.Field]json.RawMessage, error) {
	out := make(map[establishment.Field]json.RawMessage, len(fields))
	if len(fields) == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return out, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	selects := make([]string, len(fields))
	for i, f := range fields {
		if !f.Valid() {
			return nil, &establishment.UnknownFieldError{Name: string(f)}
		}
		selects[i] = fmt.Sprintf("to_jsonb(%s)", f.Column())
	}
	query := repo.Join("SELECT", strings.Join(selects, ", "), "FROM", establishmentsTable, "WHERE id = $1")

	raw := make([][]byte, len(fields))
	dest := make([]any, len(fields))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := tx.QueryRow(ctx, query, id).Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, establishment.ErrNotFound
		}
		return nil, errors.Wrap(err, "read establishment fields")
	}
	for i, f := range fields {
		out[f] = jsonOrNull(raw[i])
	}
	return out, nil
}

// assignment renders the SET expression converting a jsonb parameter into the column's type.
// JSON null is stored as SQL NULL so it reads back as null.
func assignment(f establishment.Field, n int) string {
	p := fmt.Sprintf("$%d::jsonb", n)
	var value string
	switch f.Kind() {
	case establishment.KindTextList:
		value = fmt.Sprintf("ARRAY(SELECT jsonb_array_elements_text(%s))", p)
	case establishment.KindNumber:
		value = fmt.Sprintf("(%s #>> '{}')::double precision", p)
	case establishment.KindJSON:
		value = p
	default:
		value = fmt.Sprintf("%s #>> '{}'", p)
	}
	return fmt.Sprintf("%s = CASE WHEN jsonb_typeof(%s) IS DISTINCT FROM 'null' THEN %s END", f.Column(), p, value)
}

func (r *pgEstablishmentRepository) WriteFields(ctx context.Context, id uuid.UUID, values map[establishment.Field]json.RawMessage) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	fields := make([]establishment.Field, 0, len(values))
	for f := range values {
		if !f.Valid() {
			return &establishment.UnknownFieldError{Name: string(f)}
		}
		fields = append(fields, f)
	}
	sortFields(fields)

	sets := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+1)
	for i, f := range fields {
		sets = append(sets, assignment(f, i+1))
		args = append(args, string(jsonOrNull(values[f])))
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	query := repo.Join(
		"UPDATE", establishmentsTable,
		"SET", strings.Join(sets, ", "),
		fmt.Sprintf("WHERE id = $%d", len(args)),
	)
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "update establishment fields")
	}
	if tag.RowsAffected() == 0 {
		return establishment.ErrNotFound
	}
	return nil
}

func (r *pgEstablishmentRepository) ReleasePendingEdits(ctx context.Context, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	query := repo.Update(establishmentsTable, []string{"has_pending_edits"}, "id = $2")
	if _, err := tx.Exec(ctx, query, false, id); err != nil {
		return errors.Wrap(err, "release pending edits")
	}
	return nil
}
