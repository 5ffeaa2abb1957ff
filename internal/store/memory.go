package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/seatwise/seatctl/internal/model"
)

// ErrTxReadAfterWrite mirrors Firestore's rule that transactions read first.
var ErrTxReadAfterWrite = errors.New("transaction read after write")

// Memory is an in-process Store. It backs tests and offline runs against a
// JSON fixture.
type Memory struct {
	mu   sync.Mutex
	txMu sync.Mutex
	docs map[string]map[string]map[string]any

	// FailOn, when set, is consulted before each write in Apply.
	FailOn func(Mutation) error
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]map[string]map[string]any)}
}

// LoadFixture reads {"collection": {"docID": {...fields}}} into a new Memory.
func LoadFixture(r io.Reader) (*Memory, error) {
	var raw map[string]map[string]map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	m := NewMemory()
	for col, docs := range raw {
		for id, data := range docs {
			m.Put(col, id, data)
		}
	}
	return m, nil
}

// WriteFixture writes the store contents in the LoadFixture format.
func (m *Memory) WriteFixture(w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m.docs)
}

func (m *Memory) Put(collection, id string, data map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	col := m.docs[collection]
	if col == nil {
		col = make(map[string]map[string]any)
		m.docs[collection] = col
	}
	col[id] = clone(data)
}

func (m *Memory) Get(collection, id string) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.docs[collection][id]
	return clone(data), ok
}

// Len returns the number of documents in collection.
func (m *Memory) Len(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs[collection])
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Load(ctx context.Context, orgID string) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := &model.Snapshot{Counts: make(map[string]int)}
	data, ok := m.docs[model.Organizations][orgID]
	if !ok {
		return nil, fmt.Errorf("organization %s: %w", orgID, ErrNotFound)
	}
	snap.Organization = model.DecodeOrganization(orgID, data)

	for _, d := range m.scanLocked(model.TeamMembers, orgID) {
		snap.Members = append(snap.Members, model.DecodeTeamMember(d.ID, d.Data))
	}
	for _, d := range m.scanLocked(model.Licenses, orgID) {
		snap.Licenses = append(snap.Licenses, model.DecodeLicense(d.ID, d.Data))
	}
	for _, d := range m.scanLocked(model.Subscriptions, orgID) {
		snap.Subscriptions = append(snap.Subscriptions, model.DecodeSubscription(d.ID, d.Data))
	}

	emails := make(map[string]bool)
	for _, e := range snap.MemberEmails() {
		emails[e] = true
	}
	for _, d := range m.scanLocked(model.Users, "") {
		u := model.DecodeUser(d.ID, d.Data)
		if u.OrganizationID == orgID || emails[model.NormalizeEmail(u.Email)] {
			snap.Users = append(snap.Users, u)
		}
	}

	for _, col := range model.CountedCollections {
		snap.Counts[col] = len(m.scanLocked(col, orgID))
	}
	return snap, nil
}

func (m *Memory) Organizations(ctx context.Context) ([]model.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Organization
	for _, d := range m.scanLocked(model.Organizations, "") {
		out = append(out, model.DecodeOrganization(d.ID, d.Data))
	}
	return out, nil
}

func (m *Memory) Scan(ctx context.Context, collection, orgID string, fn func(Doc) error) error {
	m.mu.Lock()
	docs := m.scanLocked(collection, orgID)
	m.mu.Unlock()

	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) scanLocked(collection, orgID string) []Doc {
	col := m.docs[collection]
	ids := make([]string, 0, len(col))
	for id := range col {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Doc
	for _, id := range ids {
		data := col[id]
		if orgID != "" && !belongsTo(data, orgID) {
			continue
		}
		out = append(out, Doc{Collection: collection, ID: id, Data: clone(data)})
	}
	return out
}

func belongsTo(data map[string]any, orgID string) bool {
	for _, k := range model.OrganizationField {
		if v, ok := data[k].(string); ok && v == orgID {
			return true
		}
	}
	return false
}

func (m *Memory) Apply(ctx context.Context, muts []Mutation) (Result, error) {
	var res Result
	for _, chunk := range Chunk(muts, MaxBatchSize) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := m.commit(chunk); err != nil {
			return res, err
		}
		res.Committed += len(chunk)
		res.Batches++
	}
	return res, nil
}

// commit applies chunk atomically.
func (m *Memory) commit(chunk []Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mut := range chunk {
		if err := validate(mut); err != nil {
			return err
		}
		if m.FailOn != nil {
			if err := m.FailOn(mut); err != nil {
				return err
			}
		}
		if mut.Op == OpUpdate {
			if _, ok := m.docs[mut.Collection][mut.DocID]; !ok {
				return fmt.Errorf("update %s/%s: %w", mut.Collection, mut.DocID, ErrNotFound)
			}
		}
	}
	for _, mut := range chunk {
		m.applyLocked(mut)
	}
	return nil
}

func (m *Memory) applyLocked(mut Mutation) {
	col := m.docs[mut.Collection]
	if col == nil {
		col = make(map[string]map[string]any)
		m.docs[mut.Collection] = col
	}
	if mut.Op == OpDelete {
		delete(col, mut.DocID)
		return
	}
	doc := col[mut.DocID]
	if doc == nil {
		doc = make(map[string]any)
		col[mut.DocID] = doc
	}
	for k, v := range mut.Fields {
		if v == DeleteField {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}
}

func (m *Memory) RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	tx := &memoryTx{m: m}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return m.commit(tx.writes)
}

type memoryTx struct {
	m      *Memory
	writes []Mutation
}

func (t *memoryTx) Members(orgID string) ([]model.TeamMember, error) {
	if len(t.writes) > 0 {
		return nil, ErrTxReadAfterWrite
	}
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	var out []model.TeamMember
	for _, d := range t.m.scanLocked(model.TeamMembers, orgID) {
		out = append(out, model.DecodeTeamMember(d.ID, d.Data))
	}
	return out, nil
}

func (t *memoryTx) Licenses(orgID string) ([]model.License, error) {
	if len(t.writes) > 0 {
		return nil, ErrTxReadAfterWrite
	}
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	var out []model.License
	for _, d := range t.m.scanLocked(model.Licenses, orgID) {
		out = append(out, model.DecodeLicense(d.ID, d.Data))
	}
	return out, nil
}

func (t *memoryTx) Write(mut Mutation) error {
	if err := validate(mut); err != nil {
		return err
	}
	t.writes = append(t.writes, mut)
	return nil
}

func clone(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
