package persistence

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/menusam/listing-moderation/migrations"
	"github.com/menusam/listing-moderation/modules/listings/domain/aggregates/draft"
	"github.com/menusam/listing-moderation/modules/listings/domain/entities/establishment"
	"github.com/menusam/listing-moderation/pkg/composables"
	"github.com/menusam/listing-moderation/pkg/configuration"
)

// txContext opens a transaction against the test database and rolls it back when the test ends.
// Tests run only with LISTINGS_PG_TESTS=1 and DB_* pointing at a disposable database.
func txContext(t *testing.T) context.Context {
	t.Helper()
	if os.Getenv("LISTINGS_PG_TESTS") != "1" {
		t.Skip("set LISTINGS_PG_TESTS=1 to run PostgreSQL repository tests")
	}
	conf, err := configuration.Load()
	require.NoError(t, err)
	t.Cleanup(conf.Unload)

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	manager, err := migrations.NewManager(pool)
	require.NoError(t, err)
	_, err = manager.Up(ctx)
	require.NoError(t, err)
	require.NoError(t, manager.Close())

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback(context.Background()) })
	return composables.WithTx(composables.WithPool(ctx, pool), tx)
}

func seedDraft(t *testing.T, ctx context.Context, verified bool) *draft.Draft {
	t.Helper()
	tx, err := composables.UseTx(ctx)
	require.NoError(t, err)

	userID, estID := uuid.New(), uuid.New()
	_, err = tx.Exec(ctx, "INSERT INTO users (id, email) VALUES ($1, $2)", userID, userID.String()+"@example.test")
	require.NoError(t, err)
	_, err = tx.Exec(ctx,
		"INSERT INTO establishments (id, owner_id, name, verified, has_pending_edits) VALUES ($1, $2, 'Chez Test', $3, true)",
		estID, userID, verified)
	require.NoError(t, err)

	d := &draft.Draft{
		EstablishmentID: estID,
		CreatedBy:       userID,
		Proposed: map[string]json.RawMessage{
			"name": json.RawMessage(`"Chez Nouveau"`),
			"tags": json.RawMessage(`["terrasse","vegan"]`),
		},
		Changes: []*draft.Change{
			{Field: establishment.FieldName, Before: json.RawMessage(`"Chez Test"`), After: json.RawMessage(`"Chez Nouveau"`)},
			{Field: establishment.FieldTags, Before: json.RawMessage(`[]`), After: json.RawMessage(`["terrasse","vegan"]`)},
		},
	}
	require.NoError(t, NewDraftRepository().Create(ctx, d))
	return d
}

func TestDraftRepository_DecideChangeIsConditional(t *testing.T) {
	ctx := txContext(t)
	repo := NewDraftRepository()
	d := seedDraft(t, ctx, false)

	now := time.Now().UTC()
	ok, err := repo.DecideChange(ctx, d.Changes[0].ID, draft.Decision{Status: draft.ChangeAccepted, DecidedAt: now})
	require.NoError(t, err)
	require.True(t, ok)

	reason := "late"
	ok, err = repo.DecideChange(ctx, d.Changes[0].ID, draft.Decision{Status: draft.ChangeRejected, Reason: &reason, DecidedAt: now})
	require.NoError(t, err)
	require.False(t, ok)

	c, err := repo.GetChange(ctx, d.Changes[0].ID)
	require.NoError(t, err)
	require.Equal(t, draft.ChangeAccepted, c.Status)
	require.Nil(t, c.Reason)

	tally, err := repo.CountChanges(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, draft.Tally{Pending: 1, Accepted: 1}, tally)
}

func TestDraftRepository_RejectPendingAndFinalizeOnce(t *testing.T) {
	ctx := txContext(t)
	repo := NewDraftRepository()
	d := seedDraft(t, ctx, false)
	now := time.Now().UTC()

	ok, err := repo.DecideChange(ctx, d.Changes[0].ID, draft.Decision{Status: draft.ChangeAccepted, DecidedAt: now})
	require.NoError(t, err)
	require.True(t, ok)

	reason := "duplicate"
	n, err := repo.RejectPendingChanges(ctx, d.ID, draft.Decision{Reason: &reason, DecidedAt: now})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	changes, err := repo.ListChanges(ctx, d.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	require.Equal(t, establishment.FieldName, changes[0].Field)
	require.Equal(t, draft.ChangeRejected, changes[1].Status)

	ok, err = repo.FinalizeDraft(ctx, d.ID, draft.Outcome{Status: draft.StatusPartiallyAccepted, DecidedAt: now})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.FinalizeDraft(ctx, d.ID, draft.Outcome{Status: draft.StatusRejected, DecidedAt: now})
	require.NoError(t, err)
	require.False(t, ok)

	got, err := repo.GetByID(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, draft.StatusPartiallyAccepted, got.Status)
	require.JSONEq(t, `"Chez Nouveau"`, string(got.Proposed["name"]))

	pending, err := repo.ListPending(ctx, d.EstablishmentID)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestDraftRepository_GetByIDNotFound(t *testing.T) {
	ctx := txContext(t)
	_, err := NewDraftRepository().GetByID(ctx, uuid.New())
	require.ErrorIs(t, err, draft.ErrDraftNotFound)
}

func TestEstablishmentRepository_WriteAndReadFields(t *testing.T) {
	ctx := txContext(t)
	d := seedDraft(t, ctx, true)
	repo := NewEstablishmentRepository()

	err := repo.WriteFields(ctx, d.EstablishmentID, map[establishment.Field]json.RawMessage{
		establishment.FieldTags: json.RawMessage(`["brunch"]`),
		establishment.FieldCity: json.RawMessage(`"Lyon"`),
	})
	require.NoError(t, err)

	values, err := repo.ReadFields(ctx, d.EstablishmentID, []establishment.Field{establishment.FieldTags, establishment.FieldCity})
	require.NoError(t, err)
	require.JSONEq(t, `["brunch"]`, string(values[establishment.FieldTags]))
	require.JSONEq(t, `"Lyon"`, string(values[establishment.FieldCity]))

	err = repo.WriteFields(ctx, d.EstablishmentID, map[establishment.Field]json.RawMessage{
		establishment.FieldTags:  json.RawMessage(`null`),
		establishment.FieldHours: json.RawMessage(`null`),
	})
	require.NoError(t, err)
	values, err = repo.ReadFields(ctx, d.EstablishmentID, []establishment.Field{establishment.FieldTags, establishment.FieldHours})
	require.NoError(t, err)
	require.JSONEq(t, `null`, string(values[establishment.FieldTags]))
	require.JSONEq(t, `null`, string(values[establishment.FieldHours]))

	require.NoError(t, repo.ReleasePendingEdits(ctx, d.EstablishmentID))
	e, err := repo.GetByID(ctx, d.EstablishmentID)
	require.NoError(t, err)
	require.True(t, e.Verified)
	require.False(t, e.HasPendingEdits)
}
