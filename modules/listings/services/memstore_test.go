package services

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/menusam/listing-moderation/modules/listings/domain/aggregates/draft"
	"github.com/menusam/listing-moderation/modules/listings/domain/entities/changelog"
	"github.com/menusam/listing-moderation/modules/listings/domain/entities/establishment"
	"github.com/menusam/listing-moderation/modules/listings/domain/entities/moderation"
	logsvc "github.com/menusam/listing-moderation/modules/logging/services"
	"github.com/menusam/listing-moderation/modules/notifications/domain/notification"
	"github.com/menusam/listing-moderation/pkg/eventbus"
)

type memListing struct {
	est    establishment.Establishment
	fields map[establishment.Field]json.RawMessage
}

// memStore backs every repository the services need. Each method is atomic under mu.
type memStore struct {
	mu       sync.Mutex
	listings map[uuid.UUID]*memListing
	drafts   map[uuid.UUID]*draft.Draft
	changes  []*draft.Change
	logs     []*changelog.Entry
	items    map[uuid.UUID]*moderation.Item

	// writeErr makes WriteFields fail for the given field.
	writeErr  map[establishment.Field]error
	writes    int
	listCalls int

	txMu sync.Mutex
	// committed holds writes made by other callers while the current transaction runs.
	// They are replayed after a rollback.
	committed []func()
}

func newMemStore() *memStore {
	return &memStore{
		listings: map[uuid.UUID]*memListing{},
		drafts:   map[uuid.UUID]*draft.Draft{},
		items:    map[uuid.UUID]*moderation.Item{},
		writeErr: map[establishment.Field]error{},
	}
}

type memSnapshot struct {
	listings map[uuid.UUID]*memListing
	drafts   map[uuid.UUID]*draft.Draft
	changes  []*draft.Change
	logs     []*changelog.Entry
	items    map[uuid.UUID]*moderation.Item
	writes   int
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		listings: map[uuid.UUID]*memListing{},
		drafts:   map[uuid.UUID]*draft.Draft{},
		items:    map[uuid.UUID]*moderation.Item{},
		logs:     append([]*changelog.Entry(nil), s.logs...),
		writes:   s.writes,
	}
	for id, l := range s.listings {
		fields := make(map[establishment.Field]json.RawMessage, len(l.fields))
		for f, v := range l.fields {
			fields[f] = v
		}
		snap.listings[id] = &memListing{est: l.est, fields: fields}
	}
	for id, d := range s.drafts {
		cp := *d
		snap.drafts[id] = &cp
	}
	for _, c := range s.changes {
		cp := *c
		snap.changes = append(snap.changes, &cp)
	}
	for id, it := range s.items {
		cp := *it
		snap.items[id] = &cp
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings = snap.listings
	s.drafts = snap.drafts
	s.changes = snap.changes
	s.logs = snap.logs
	s.items = snap.items
	s.writes = snap.writes
}

// serialTx runs transactions one at a time and rolls the store back when fn fails.
func (s *memStore) serialTx(ctx context.Context, fn func(context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.committed = nil
	snap := s.snapshot()
	if err := fn(ctx); err != nil {
		s.restore(snap)
		for _, w := range s.committed {
			w()
		}
		s.committed = nil
		return err
	}
	s.committed = nil
	return nil
}

// commitOutside applies a write as if another caller committed it while a transaction is open.
func (s *memStore) commitOutside(w func()) {
	w()
	s.committed = append(s.committed, w)
}

// looseTx interleaves freely so only the repositories' conditional updates guard state.
func looseTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// ---- establishment.Repository

type memEstablishments struct{ *memStore }

func (r memEstablishments) GetByID(_ context.Context, id uuid.UUID) (*establishment.Establishment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok {
		return nil, establishment.ErrNotFound
	}
	est := l.est
	return &est, nil
}

func (r memEstablishments) ReadFields(_ context.Context, id uuid.UUID, fields []establishment.Field) (map[establishment.Field]json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok {
		return nil, establishment.ErrNotFound
	}
	out := make(map[establishment.Field]json.RawMessage, len(fields))
	for _, f := range fields {
		v, ok := l.fields[f]
		if !ok {
			v = json.RawMessage("null")
		}
		out[f] = v
	}
	return out, nil
}

func (r memEstablishments) WriteFields(_ context.Context, id uuid.UUID, values map[establishment.Field]json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok {
		return establishment.ErrNotFound
	}
	for f := range values {
		if err := r.writeErr[f]; err != nil {
			return err
		}
	}
	for f, v := range values {
		l.fields[f] = v
	}
	l.est.UpdatedAt = time.Now().UTC()
	r.writes++
	return nil
}

func (r memEstablishments) ReleasePendingEdits(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok {
		return establishment.ErrNotFound
	}
	l.est.HasPendingEdits = false
	return nil
}

// ---- draft.Repository

type memDrafts struct{ *memStore }

func (r memDrafts) Create(_ context.Context, d *draft.Draft) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	cp.Changes = nil
	r.drafts[d.ID] = &cp
	for _, c := range d.Changes {
		cc := *c
		r.changes = append(r.changes, &cc)
	}
	return nil
}

func (r memDrafts) GetByID(_ context.Context, id uuid.UUID) (*draft.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drafts[id]
	if !ok {
		return nil, draft.ErrDraftNotFound
	}
	cp := *d
	return &cp, nil
}

func (r memDrafts) ListPending(_ context.Context, establishmentID uuid.UUID) ([]*draft.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*draft.Draft
	for _, d := range r.drafts {
		if d.EstablishmentID != establishmentID || d.Status != draft.StatusPending {
			continue
		}
		cp := *d
		for _, c := range r.changes {
			if c.DraftID == d.ID {
				cc := *c
				cp.Changes = append(cp.Changes, &cc)
			}
		}
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r memDrafts) GetChange(_ context.Context, id uuid.UUID) (*draft.Change, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.changes {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, draft.ErrChangeNotFound
}

func (r memDrafts) ListChanges(_ context.Context, draftID uuid.UUID, limit, offset int) ([]*draft.Change, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	var out []*draft.Change
	skipped := 0
	for _, c := range r.changes {
		if c.DraftID != draftID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(out) < limit {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r memDrafts) CountChanges(_ context.Context, draftID uuid.UUID) (draft.Tally, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var t draft.Tally
	for _, c := range r.changes {
		if c.DraftID == draftID {
			t.Add(c.Status)
		}
	}
	return t, nil
}

func (r memDrafts) DecideChange(_ context.Context, id uuid.UUID, d draft.Decision) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.changes {
		if c.ID != id {
			continue
		}
		if c.Status != draft.ChangePending {
			return false, nil
		}
		decide(c, d)
		return true, nil
	}
	return false, nil
}

func (r memDrafts) RejectPendingChanges(_ context.Context, draftID uuid.UUID, d draft.Decision) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.changes {
		if c.DraftID == draftID && c.Status == draft.ChangePending {
			decide(c, d)
			n++
		}
	}
	return n, nil
}

func (r memDrafts) FinalizeDraft(_ context.Context, id uuid.UUID, o draft.Outcome) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drafts[id]
	if !ok || d.Status != draft.StatusPending {
		return false, nil
	}
	at := o.DecidedAt
	d.Status = o.Status
	d.Reason = o.Reason
	d.DecidedAt = &at
	return true, nil
}

func decide(c *draft.Change, d draft.Decision) {
	at := d.DecidedAt
	c.Status = d.Status
	c.Reason = d.Reason
	c.DecidedBy = d.DecidedBy
	c.DecidedAt = &at
}

// ---- changelog.Repository

type memChangeLogs struct{ *memStore }

func (r memChangeLogs) Append(_ context.Context, e *changelog.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	cp.ID = int64(len(r.logs) + 1)
	r.logs = append(r.logs, &cp)
	return nil
}

func (r memChangeLogs) ListByDraft(_ context.Context, draftID uuid.UUID) ([]*changelog.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*changelog.Entry
	for _, e := range r.logs {
		if e.DraftID == draftID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ---- moderation.Repository

type memQueue struct{ *memStore }

func (r memQueue) Create(_ context.Context, item *moderation.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	r.items[item.ID] = &cp
	return nil
}

func (r memQueue) GetByID(_ context.Context, id uuid.UUID) (*moderation.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return nil, moderation.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (r memQueue) List(_ context.Context, params moderation.FindParams) ([]*moderation.Item, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*moderation.Item
	for _, it := range r.items {
		if params.Status == "" || it.Status == params.Status {
			cp := *it
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	total := len(all)
	if params.Offset > len(all) {
		params.Offset = len(all)
	}
	all = all[params.Offset:]
	if params.Limit > 0 && params.Limit < len(all) {
		all = all[:params.Limit]
	}
	return all, total, nil
}

func (r memQueue) Mirror(_ context.Context, id uuid.UUID, m moderation.Mirror) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return moderation.ErrNotFound
	}
	at := m.DecidedAt
	it.Status = m.Status
	it.Reason = m.Reason
	it.DecidedBy = m.DecidedBy
	it.DecidedAt = &at
	return nil
}

// ---- collaborators

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, msg notification.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
}

func (n *recordingNotifier) all() []notification.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.Notification(nil), n.sent...)
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []logsvc.Entry
}

func (a *recordingAudit) Record(_ context.Context, e logsvc.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *recordingAudit) actions(action string) []logsvc.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []logsvc.Entry
	for _, e := range a.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// ---- fixture

type fixture struct {
	store     *memStore
	notifier  *recordingNotifier
	audit     *recordingAudit
	eventsMu  sync.Mutex
	events    []*draft.FinalizedEvent
	finalizer *Finalizer
	decisions *DecisionService
	legacy    *LegacyDraftApplier
}

type fixtureOptions struct {
	loose    bool
	pageSize int
	// wrapDrafts decorates the draft repository the services see.
	wrapDrafts func(draft.Repository) draft.Repository
}

func newFixture(t *testing.T, loose bool) *fixture {
	t.Helper()
	return newFixtureWith(t, fixtureOptions{loose: loose})
}

func newFixtureWith(t *testing.T, o fixtureOptions) *fixture {
	t.Helper()
	f := &fixture{
		store:    newMemStore(),
		notifier: &recordingNotifier{},
		audit:    &recordingAudit{},
	}
	runner := TxRunner(f.store.serialTx)
	if o.loose {
		runner = looseTx
	}
	opts := Options{InTx: runner, Notifier: f.notifier, Audit: f.audit, PageSize: o.pageSize}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	publisher := eventbus.NewEventPublisher(logger)
	publisher.Subscribe(func(e *draft.FinalizedEvent) {
		f.eventsMu.Lock()
		defer f.eventsMu.Unlock()
		f.events = append(f.events, e)
	})

	ests := memEstablishments{f.store}
	var drafts draft.Repository = memDrafts{f.store}
	if o.wrapDrafts != nil {
		drafts = o.wrapDrafts(drafts)
	}
	logs := memChangeLogs{f.store}
	queue := memQueue{f.store}

	applier := NewChangeApplier(ests, logs, nil)
	f.finalizer = NewFinalizer(drafts, ests, queue, publisher, opts)
	f.decisions = NewDecisionService(drafts, ests, logs, applier, f.finalizer, opts)
	f.legacy = NewLegacyDraftApplier(drafts, queue, logs, applier, f.finalizer, opts)
	return f
}

func (f *fixture) listing(t *testing.T, verified bool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.listings[id] = &memListing{
		est: establishment.Establishment{ID: id, Name: "Chez Lou", Verified: verified, HasPendingEdits: true},
		fields: map[establishment.Field]json.RawMessage{
			establishment.FieldName:     json.RawMessage(`"Chez Lou"`),
			establishment.FieldCategory: json.RawMessage(`"restaurant"`),
			establishment.FieldCity:     json.RawMessage(`"Lyon"`),
		},
	}
	return id
}

type proposed struct {
	field establishment.Field
	value string
}

// submit stores a pending draft with one pending change per proposed value, in order.
func (f *fixture) submit(t *testing.T, establishmentID uuid.UUID, values ...proposed) *draft.Draft {
	t.Helper()
	created := time.Now().UTC()
	d := &draft.Draft{
		ID:              uuid.New(),
		EstablishmentID: establishmentID,
		CreatedBy:       uuid.New(),
		Status:          draft.StatusPending,
		Proposed:        map[string]json.RawMessage{},
		CreatedAt:       created,
	}
	for i, v := range values {
		d.Proposed[string(v.field)] = json.RawMessage(v.value)
		d.Changes = append(d.Changes, &draft.Change{
			ID:              uuid.New(),
			DraftID:         d.ID,
			EstablishmentID: establishmentID,
			Field:           v.field,
			Before:          json.RawMessage("null"),
			After:           json.RawMessage(v.value),
			Status:          draft.ChangePending,
			CreatedAt:       created.Add(time.Duration(i) * time.Millisecond),
		})
	}
	require.NoError(t, memDrafts{f.store}.Create(context.Background(), d))
	return d
}

func (f *fixture) queueItem(t *testing.T, d *draft.Draft) *moderation.Item {
	t.Helper()
	draftID := d.ID
	item := &moderation.Item{
		ID:         uuid.New(),
		EntityType: moderation.EntityEstablishment,
		EntityID:   d.EstablishmentID,
		Action:     moderation.ActionProfileUpdate,
		DraftID:    &draftID,
		Status:     moderation.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, memQueue{f.store}.Create(context.Background(), item))
	return item
}

func (f *fixture) draft(t *testing.T, id uuid.UUID) *draft.Draft {
	t.Helper()
	d, err := memDrafts{f.store}.GetByID(context.Background(), id)
	require.NoError(t, err)
	return d
}

func (f *fixture) change(t *testing.T, id uuid.UUID) *draft.Change {
	t.Helper()
	c, err := memDrafts{f.store}.GetChange(context.Background(), id)
	require.NoError(t, err)
	return c
}

func (f *fixture) field(t *testing.T, establishmentID uuid.UUID, field establishment.Field) string {
	t.Helper()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return string(f.store.listings[establishmentID].fields[field])
}

func (f *fixture) logs(t *testing.T, draftID uuid.UUID) []*changelog.Entry {
	t.Helper()
	entries, err := memChangeLogs{f.store}.ListByDraft(context.Background(), draftID)
	require.NoError(t, err)
	return entries
}

func (f *fixture) finalizedEvents() []*draft.FinalizedEvent {
	f.eventsMu.Lock()
	defer f.eventsMu.Unlock()
	return append([]*draft.FinalizedEvent(nil), f.events...)
}

// racingDrafts lets another caller finalize the draft right before the wrapped FinalizeDraft runs.
type racingDrafts struct {
	draft.Repository
	race func(id uuid.UUID)
	once sync.Once
}

func (r *racingDrafts) FinalizeDraft(ctx context.Context, id uuid.UUID, o draft.Outcome) (bool, error) {
	r.once.Do(func() { r.race(id) })
	return r.Repository.FinalizeDraft(ctx, id, o)
}

// finalizeElsewhere returns a race that commits the draft as status from another transaction.
func (f *fixture) finalizeElsewhere(status draft.Status) func(uuid.UUID) {
	return func(id uuid.UUID) {
		f.store.commitOutside(func() {
			_, _ = memDrafts{f.store}.FinalizeDraft(context.Background(), id, draft.Outcome{Status: status, DecidedAt: time.Now().UTC()})
		})
	}
}

func ref(d *draft.Draft, i int) ChangeRef {
	return ChangeRef{EstablishmentID: d.EstablishmentID, DraftID: d.ID, ChangeID: d.Changes[i].ID}
}
