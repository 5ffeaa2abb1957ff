package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/seatwise/seatctl/internal/model"
)

// maxInValues is the Firestore limit on values in an "in" filter.
const maxInValues = 30

type FirestoreConfig struct {
	ProjectID       string
	DatabaseID      string
	CredentialsFile string
	BatchSize       int
}

// Firestore is the production Store.
type Firestore struct {
	client    *firestore.Client
	batchSize int
}

// NewFirestore connects to the database. An empty CredentialsFile uses
// Application Default Credentials; FIRESTORE_EMULATOR_HOST is honored by the
// client library.
func NewFirestore(ctx context.Context, cfg FirestoreConfig) (*Firestore, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("project ID is required (set --project or GOOGLE_CLOUD_PROJECT)")
	}
	db := cfg.DatabaseID
	if db == "" {
		db = firestore.DefaultDatabaseID
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClientWithDatabase(ctx, cfg.ProjectID, db, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	slog.Debug("firestore connected", "project", cfg.ProjectID, "database", db)

	size := cfg.BatchSize
	if size <= 0 || size > MaxBatchSize {
		size = MaxBatchSize
	}
	return &Firestore{client: client, batchSize: size}, nil
}

func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) Load(ctx context.Context, orgID string) (*model.Snapshot, error) {
	snap := &model.Snapshot{Counts: make(map[string]int)}

	var members, licenses, subs []*firestore.DocumentSnapshot
	counts := make([]int, len(model.CountedCollections))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		doc, err := f.client.Collection(model.Organizations).Doc(orgID).Get(gctx)
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("organization %s: %w", orgID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get organization %s: %w", orgID, err)
		}
		snap.Organization = model.DecodeOrganization(doc.Ref.ID, doc.Data())
		return nil
	})
	g.Go(func() (err error) {
		members, err = f.byOrg(gctx, model.TeamMembers, orgID)
		return err
	})
	g.Go(func() (err error) {
		licenses, err = f.byOrg(gctx, model.Licenses, orgID)
		return err
	})
	g.Go(func() (err error) {
		subs, err = f.byOrg(gctx, model.Subscriptions, orgID)
		return err
	})
	for i, col := range model.CountedCollections {
		g.Go(func() (err error) {
			counts[i], err = f.count(gctx, col, orgID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, d := range members {
		snap.Members = append(snap.Members, model.DecodeTeamMember(d.Ref.ID, d.Data()))
	}
	for _, d := range licenses {
		snap.Licenses = append(snap.Licenses, model.DecodeLicense(d.Ref.ID, d.Data()))
	}
	for _, d := range subs {
		snap.Subscriptions = append(snap.Subscriptions, model.DecodeSubscription(d.Ref.ID, d.Data()))
	}
	for i, col := range model.CountedCollections {
		snap.Counts[col] = counts[i]
	}

	users, err := f.users(ctx, orgID, snap.MemberEmails())
	if err != nil {
		return nil, err
	}
	snap.Users = users
	return snap, nil
}

// users returns users of the organization plus any user whose email matches
// a member, since older user documents carry no organization.
func (f *Firestore) users(ctx context.Context, orgID string, emails []string) ([]model.User, error) {
	seen := make(map[string]bool)
	var out []model.User
	add := func(docs []*firestore.DocumentSnapshot) {
		for _, d := range docs {
			if seen[d.Ref.ID] {
				continue
			}
			seen[d.Ref.ID] = true
			out = append(out, model.DecodeUser(d.Ref.ID, d.Data()))
		}
	}

	docs, err := f.byOrg(ctx, model.Users, orgID)
	if err != nil {
		return nil, err
	}
	add(docs)

	for _, batch := range inBatches(emails) {
		docs, err := f.client.Collection(model.Users).
			Where("email", "in", batch).
			Documents(ctx).GetAll()
		if err != nil {
			return nil, fmt.Errorf("failed to query users by email: %w", err)
		}
		add(docs)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// byOrg returns documents whose organization field matches, deduplicated
// across the legacy field names.
func (f *Firestore) byOrg(ctx context.Context, collection, orgID string) ([]*firestore.DocumentSnapshot, error) {
	seen := make(map[string]bool)
	var out []*firestore.DocumentSnapshot
	for _, field := range model.OrganizationField {
		docs, err := f.client.Collection(collection).Where(field, "==", orgID).Documents(ctx).GetAll()
		if err != nil {
			return nil, fmt.Errorf("failed to query %s by %s: %w", collection, field, err)
		}
		for _, d := range docs {
			if !seen[d.Ref.ID] {
				seen[d.Ref.ID] = true
				out = append(out, d)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.ID < out[j].Ref.ID })
	return out, nil
}

// orgFilter matches documents carrying orgID under any organization field.
func orgFilter(orgID string) firestore.EntityFilter {
	filters := make([]firestore.EntityFilter, 0, len(model.OrganizationField))
	for _, field := range model.OrganizationField {
		filters = append(filters, firestore.PropertyFilter{Path: field, Operator: "==", Value: orgID})
	}
	return firestore.OrFilter{Filters: filters}
}

// count counts with a single OR query so documents holding both
// organization fields are counted once.
func (f *Firestore) count(ctx context.Context, collection, orgID string) (int, error) {
	q := f.client.Collection(collection).WhereEntity(orgFilter(orgID))
	res, err := q.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, err)
	}
	v, ok := res["all"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("unexpected count result for %s", collection)
	}
	return int(v.GetIntegerValue()), nil
}

func (f *Firestore) Organizations(ctx context.Context) ([]model.Organization, error) {
	docs, err := f.client.Collection(model.Organizations).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	out := make([]model.Organization, 0, len(docs))
	for _, d := range docs {
		out = append(out, model.DecodeOrganization(d.Ref.ID, d.Data()))
	}
	return out, nil
}

func (f *Firestore) Scan(ctx context.Context, collection, orgID string, fn func(Doc) error) error {
	if orgID != "" {
		docs, err := f.byOrg(ctx, collection, orgID)
		if err != nil {
			return err
		}
		for _, d := range docs {
			if err := fn(Doc{Collection: collection, ID: d.Ref.ID, Data: d.Data()}); err != nil {
				return err
			}
		}
		return nil
	}

	iter := f.client.Collection(collection).Documents(ctx)
	defer iter.Stop()
	for {
		d, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", collection, err)
		}
		if err := fn(Doc{Collection: collection, ID: d.Ref.ID, Data: d.Data()}); err != nil {
			return err
		}
	}
}

func (f *Firestore) Apply(ctx context.Context, muts []Mutation) (Result, error) {
	var res Result
	chunks := Chunk(muts, f.batchSize)
	for i, chunk := range chunks {
		batch := f.client.Batch()
		for _, m := range chunk {
			if err := validate(m); err != nil {
				return res, err
			}
			ref := f.client.Collection(m.Collection).Doc(m.DocID)
			switch m.Op {
			case OpSet:
				batch.Set(ref, toFirestore(m.Fields), firestore.MergeAll)
			case OpUpdate:
				batch.Update(ref, toUpdates(m.Fields))
			case OpDelete:
				batch.Delete(ref)
			}
		}
		if _, err := batch.Commit(ctx); err != nil {
			return res, fmt.Errorf("batch %d/%d failed after %d committed writes: %w", i+1, len(chunks), res.Committed, err)
		}
		res.Committed += len(chunk)
		res.Batches++
		slog.Info("batch committed", "batch", i+1, "of", len(chunks), "writes", len(chunk))
	}
	return res, nil
}

func (f *Firestore) RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &firestoreTx{client: f.client, tx: tx})
	})
}

type firestoreTx struct {
	client *firestore.Client
	tx     *firestore.Transaction
}

func (t *firestoreTx) query(collection, orgID string) ([]*firestore.DocumentSnapshot, error) {
	q := t.client.Collection(collection).Where("organizationId", "==", orgID)
	docs, err := t.tx.Documents(q).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s in transaction: %w", collection, err)
	}
	return docs, nil
}

func (t *firestoreTx) Members(orgID string) ([]model.TeamMember, error) {
	docs, err := t.query(model.TeamMembers, orgID)
	if err != nil {
		return nil, err
	}
	out := make([]model.TeamMember, 0, len(docs))
	for _, d := range docs {
		out = append(out, model.DecodeTeamMember(d.Ref.ID, d.Data()))
	}
	return out, nil
}

func (t *firestoreTx) Licenses(orgID string) ([]model.License, error) {
	docs, err := t.query(model.Licenses, orgID)
	if err != nil {
		return nil, err
	}
	out := make([]model.License, 0, len(docs))
	for _, d := range docs {
		out = append(out, model.DecodeLicense(d.Ref.ID, d.Data()))
	}
	return out, nil
}

func (t *firestoreTx) Write(m Mutation) error {
	if err := validate(m); err != nil {
		return err
	}
	ref := t.client.Collection(m.Collection).Doc(m.DocID)
	switch m.Op {
	case OpSet:
		return t.tx.Set(ref, toFirestore(m.Fields), firestore.MergeAll)
	case OpUpdate:
		return t.tx.Update(ref, toUpdates(m.Fields))
	default:
		return t.tx.Delete(ref)
	}
}

func toFirestore(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if v == DeleteField {
			out[k] = firestore.Delete
			continue
		}
		out[k] = v
	}
	return out
}

func toUpdates(fields map[string]any) []firestore.Update {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	updates := make([]firestore.Update, 0, len(keys))
	for _, k := range keys {
		v := fields[k]
		if v == DeleteField {
			v = firestore.Delete
		}
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: v})
	}
	return updates
}

// inBatches splits values into "in" filter operands of at most maxInValues.
func inBatches(values []string) [][]any {
	var out [][]any
	for start := 0; start < len(values); start += maxInValues {
		end := min(start+maxInValues, len(values))
		batch := make([]any, 0, end-start)
		for _, v := range values[start:end] {
			batch = append(batch, v)
		}
		out = append(out, batch)
	}
	return out
}
