package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/menusam/listing-moderation/modules/listings/domain/aggregates/draft"
	"github.com/menusam/listing-moderation/modules/listings/domain/entities/changelog"
	"github.com/menusam/listing-moderation/modules/listings/domain/entities/establishment"
	"github.com/menusam/listing-moderation/modules/listings/domain/entities/moderation"
)

// submitProposal stores a draft that only carries the raw proposed map, without per-field rows.
func (f *fixture) submitProposal(t *testing.T, establishmentID uuid.UUID, values map[string]string) *draft.Draft {
	t.Helper()
	d := &draft.Draft{
		ID:              uuid.New(),
		EstablishmentID: establishmentID,
		CreatedBy:       uuid.New(),
		Status:          draft.StatusPending,
		Proposed:        map[string]json.RawMessage{},
		CreatedAt:       time.Now().UTC(),
	}
	for k, v := range values {
		d.Proposed[k] = json.RawMessage(v)
	}
	require.NoError(t, memDrafts{f.store}.Create(context.Background(), d))
	return d
}

func TestLegacyDraftApplier_Approve_WithoutRows(t *testing.T) {
	f := newFixture(t, false)
	ctx, _ := moderatorCtx()
	estID := f.listing(t, false)
	d := f.submitProposal(t, estID, map[string]string{
		"name": `"Chez Lou Bis"`,
		"city": `"Paris"`,
	})
	item := f.queueItem(t, d)

	res, err := f.legacy.Approve(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, DecisionResult{OK: true, Finalized: true, Status: draft.StatusApproved}, res)

	require.Equal(t, 1, f.store.writes)
	require.JSONEq(t, `"Chez Lou Bis"`, f.field(t, estID, establishment.FieldName))
	require.JSONEq(t, `"Paris"`, f.field(t, estID, establishment.FieldCity))

	logs := f.logs(t, d.ID)
	require.Len(t, logs, 1)
	require.Equal(t, changelog.ActionApproved, logs[0].Action)
	require.JSONEq(t, `{"name":"Chez Lou","city":"Lyon"}`, string(logs[0].Before))

	mirrored, err := memQueue{f.store}.GetByID(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, string(draft.StatusApproved), mirrored.Status)

	audit := f.audit.actions(auditLegacyApproved)
	require.Len(t, audit, 1)
	require.NotNil(t, audit[0].Metadata["patch"])
	events := f.finalizedEvents()
	require.Len(t, events, 1)
	require.Equal(t, draft.SourceLegacy, events[0].Source)
	require.Len(t, f.notifier.all(), 1)
}

func TestLegacyDraftApplier_Approve_StripsLockedAndUnknownFields(t *testing.T) {
	f := newFixture(t, false)
	ctx, _ := moderatorCtx()
	estID := f.listing(t, true)
	d := f.submitProposal(t, estID, map[string]string{
		"name":           `"Chez Lou Bis"`,
		"category":       `"bar"`,
		"favorite_color": `"blue"`,
	})
	item := f.queueItem(t, d)

	res, err := f.legacy.Approve(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, draft.StatusPartiallyAccepted, res.Status)
	require.JSONEq(t, `"Chez Lou Bis"`, f.field(t, estID, establishment.FieldName))
	require.JSONEq(t, `"restaurant"`, f.field(t, estID, establishment.FieldCategory))
}

func TestLegacyDraftApplier_Approve_SettlesGranularRows(t *testing.T) {
	f := newFixture(t, false)
	ctx, _ := moderatorCtx()
	estID := f.listing(t, true)
	d := f.submit(t, estID,
		proposed{establishment.FieldName, `"Chez Lou Bis"`},
		proposed{establishment.FieldCategory, `"bar"`},
		proposed{establishment.FieldCity, `"Paris"`},
	)
	_, err := f.decisions.Reject(ctx, ref(d, 2), "wrong city")
	require.NoError(t, err)
	item := f.queueItem(t, d)

	res, err := f.legacy.Approve(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, res.Finalized)
	require.Equal(t, draft.StatusPartiallyAccepted, res.Status)

	require.Equal(t, draft.ChangeAccepted, f.change(t, d.Changes[0].ID).Status)
	locked := f.change(t, d.Changes[1].ID)
	require.Equal(t, draft.ChangeRejected, locked.Status)
	require.Equal(t, "Category cannot be changed on a verified listing", *locked.Reason)
	require.Equal(t, "wrong city", *f.change(t, d.Changes[2].ID).Reason)

	require.JSONEq(t, `"Chez Lou Bis"`, f.field(t, estID, establishment.FieldName))
	require.JSONEq(t, `"Lyon"`, f.field(t, estID, establishment.FieldCity))

	tally, err := memDrafts{f.store}.CountChanges(ctx, d.ID)
	require.NoError(t, err)
	require.Zero(t, tally.Pending)

	mirrored, err := memQueue{f.store}.GetByID(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, string(draft.StatusPartiallyAccepted), mirrored.Status)
}

func TestLegacyDraftApplier_MatchesGranularAcceptAll(t *testing.T) {
	values := []proposed{
		{establishment.FieldCategory, `"bar"`},
		{establishment.FieldWebsite, `"https://chezlou.fr"`},
		{establishment.FieldTags, `["bistro","terrasse"]`},
	}
	ctx, _ := moderatorCtx()

	granular := newFixture(t, false)
	gEst := granular.listing(t, true)
	gDraft := granular.submit(t, gEst, values...)
	gRes, err := granular.decisions.AcceptAll(ctx, gEst, gDraft.ID)
	require.NoError(t, err)

	legacy := newFixture(t, false)
	lEst := legacy.listing(t, true)
	lDraft := legacy.submit(t, lEst, values...)
	lRes, err := legacy.legacy.Approve(ctx, legacy.queueItem(t, lDraft).ID)
	require.NoError(t, err)

	require.Equal(t, gRes.DecisionResult, lRes)
	for i := range values {
		require.Equal(t, granular.change(t, gDraft.Changes[i].ID).Status, legacy.change(t, lDraft.Changes[i].ID).Status)
		require.Equal(t, granular.field(t, gEst, values[i].field), legacy.field(t, lEst, values[i].field))
	}
}

func TestLegacyDraftApplier_Reject(t *testing.T) {
	f := newFixture(t, false)
	ctx, moderator := moderatorCtx()
	estID := f.listing(t, false)
	d := f.submit(t, estID, cities(2)...)
	item := f.queueItem(t, d)

	_, err := f.legacy.Reject(ctx, item.ID, "")
	requireServiceError(t, err, ErrValidation, "REASON_REQUIRED")

	res, err := f.legacy.Reject(ctx, item.ID, "photos are not of this venue")
	require.NoError(t, err)
	require.Equal(t, DecisionResult{OK: true, Finalized: true, Status: draft.StatusRejected}, res)

	for _, c := range d.Changes {
		require.Equal(t, draft.ChangeRejected, f.change(t, c.ID).Status)
	}
	require.Zero(t, f.store.writes)

	mirrored, err := memQueue{f.store}.GetByID(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, string(draft.StatusRejected), mirrored.Status)
	require.Equal(t, "photos are not of this venue", *mirrored.Reason)
	require.Equal(t, &moderator, mirrored.DecidedBy)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	require.Contains(t, sent[0].Body, "photos are not of this venue")
	require.Len(t, f.audit.actions(auditLegacyRejected), 1)

	_, err = f.legacy.Approve(ctx, item.ID)
	requireServiceError(t, err, ErrConflict, "DRAFT_ALREADY_FINALIZED")
}

func TestLegacyDraftApplier_Reject_EmptyDraft(t *testing.T) {
	f := newFixture(t, false)
	ctx, _ := moderatorCtx()
	d := f.submitProposal(t, f.listing(t, false), nil)
	item := f.queueItem(t, d)

	res, err := f.legacy.Reject(ctx, item.ID, "empty submission")
	require.NoError(t, err)
	require.Equal(t, DecisionResult{OK: true, Finalized: true, Status: draft.StatusRejected}, res)
}

func TestLegacyDraftApplier_RefusesOtherItems(t *testing.T) {
	f := newFixture(t, false)
	ctx, _ := moderatorCtx()
	review := &moderation.Item{
		ID:         uuid.New(),
		EntityType: "review",
		EntityID:   uuid.New(),
		Action:     "publish",
		Status:     moderation.StatusPending,
	}
	require.NoError(t, memQueue{f.store}.Create(ctx, review))

	_, err := f.legacy.Approve(ctx, review.ID)
	requireServiceError(t, err, ErrValidation, "UNSUPPORTED_MODERATION_ITEM")

	_, err = f.legacy.Approve(ctx, uuid.New())
	requireServiceError(t, err, ErrNotFound, "MODERATION_ITEM_NOT_FOUND")
}

func TestLegacyDraftApplier_List(t *testing.T) {
	f := newFixture(t, false)
	ctx, _ := moderatorCtx()
	estID := f.listing(t, false)
	first := f.queueItem(t, f.submit(t, estID, cities(1)...))
	f.queueItem(t, f.submit(t, estID, cities(1)...))
	_, err := f.legacy.Reject(ctx, first.ID, "spam")
	require.NoError(t, err)

	items, total, err := f.legacy.List(ctx, moderation.FindParams{Status: moderation.StatusPending, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, items, 1)

	_, total, err = f.legacy.List(ctx, moderation.FindParams{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 2, total)

	_, _, err = f.legacy.List(ctx, moderation.FindParams{Status: "archived"})
	requireServiceError(t, err, ErrValidation, "INVALID_STATUS")
}

func TestLegacyDraftApplier_Approve_LosesToConcurrentReject(t *testing.T) {
	var f *fixture
	f = newFixtureWith(t, fixtureOptions{wrapDrafts: func(r draft.Repository) draft.Repository {
		return &racingDrafts{Repository: r, race: func(id uuid.UUID) { f.finalizeElsewhere(draft.StatusRejected)(id) }}
	}})
	ctx, _ := moderatorCtx()
	estID := f.listing(t, false)
	d := f.submitProposal(t, estID, map[string]string{"name": `"Hijacked"`})
	item := f.queueItem(t, d)

	_, err := f.legacy.Approve(ctx, item.ID)
	requireServiceError(t, err, ErrConflict, "DRAFT_ALREADY_FINALIZED")

	require.Equal(t, draft.StatusRejected, f.draft(t, d.ID).Status)
	require.JSONEq(t, `"Chez Lou"`, f.field(t, estID, establishment.FieldName))
	require.Zero(t, f.store.writes)
	require.Empty(t, f.logs(t, d.ID))
	require.Empty(t, f.audit.actions(auditLegacyApproved))
	require.Empty(t, f.notifier.all())

	queued, err := memQueue{f.store}.GetByID(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, moderation.StatusPending, queued.Status)
}

func TestLegacyDraftApplier_Reject_LosesToConcurrentFinalize(t *testing.T) {
	var f *fixture
	f = newFixtureWith(t, fixtureOptions{wrapDrafts: func(r draft.Repository) draft.Repository {
		return &racingDrafts{Repository: r, race: func(id uuid.UUID) { f.finalizeElsewhere(draft.StatusApproved)(id) }}
	}})
	ctx, _ := moderatorCtx()
	estID := f.listing(t, false)
	d := f.submit(t, estID, proposed{establishment.FieldCity, `"Paris"`})
	item := f.queueItem(t, d)

	_, err := f.legacy.Reject(ctx, item.ID, "spam")
	requireServiceError(t, err, ErrConflict, "DRAFT_ALREADY_FINALIZED")

	require.Equal(t, draft.StatusApproved, f.draft(t, d.ID).Status)
	require.Equal(t, draft.ChangePending, f.change(t, d.Changes[0].ID).Status)
	require.Empty(t, f.logs(t, d.ID))
	require.Empty(t, f.audit.actions(auditLegacyRejected))
}

func TestLegacyDraftApplier_Approve_PagesThroughAllChanges(t *testing.T) {
	f := newFixtureWith(t, fixtureOptions{pageSize: 2})
	ctx, _ := moderatorCtx()
	estID := f.listing(t, false)
	d := f.submit(t, estID,
		proposed{establishment.FieldName, `"Chez Lou Bis"`},
		proposed{establishment.FieldCity, `"Paris"`},
		proposed{establishment.FieldWebsite, `"https://chezlou.fr"`},
	)

	res, err := f.legacy.Approve(ctx, f.queueItem(t, d).ID)
	require.NoError(t, err)
	require.Equal(t, DecisionResult{OK: true, Finalized: true, Status: draft.StatusApproved}, res)
	for _, c := range d.Changes {
		require.Equal(t, draft.ChangeAccepted, f.change(t, c.ID).Status)
	}
	require.JSONEq(t, `"https://chezlou.fr"`, f.field(t, estID, establishment.FieldWebsite))
}
