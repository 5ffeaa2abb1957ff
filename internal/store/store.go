// Package store reads and writes the licensing documents.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/seatwise/seatctl/internal/model"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("not found")

// MaxBatchSize is the most writes Firestore accepts in one batch commit.
const MaxBatchSize = 500

type Op string

const (
	OpSet    Op = "set"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

type deleteField struct{}

// DeleteField removes the field when used as a value in Mutation.Fields.
var DeleteField = deleteField{}

// Mutation is one document write. OpSet merges Fields into the document,
// creating it when missing. OpUpdate fails when the document is missing.
type Mutation struct {
	Op         Op
	Collection string
	DocID      string
	Fields     map[string]any
	Reason     string
}

func (m Mutation) String() string {
	path := m.Collection + "/" + m.DocID
	if m.Op == OpDelete {
		return fmt.Sprintf("delete %s", path)
	}
	keys := make([]string, 0, len(m.Fields))
	for k := range m.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := m.Fields[k]
		if v == DeleteField {
			parts = append(parts, k+"=<deleted>")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return fmt.Sprintf("%s %s {%s}", m.Op, path, strings.Join(parts, ", "))
}

// Doc is a raw document as returned by Scan.
type Doc struct {
	Collection string
	ID         string
	Data       map[string]any
}

// Result describes how far Apply got.
type Result struct {
	Committed int
	Batches   int
}

// Store is the database seatctl operates on.
type Store interface {
	Load(ctx context.Context, orgID string) (*model.Snapshot, error)
	Organizations(ctx context.Context) ([]model.Organization, error)
	// Scan visits every document of collection, or only the organization's
	// documents when orgID is set.
	Scan(ctx context.Context, collection, orgID string, fn func(Doc) error) error
	// Apply commits muts in batches of at most MaxBatchSize. Batches that
	// committed before a failure stay committed.
	Apply(ctx context.Context, muts []Mutation) (Result, error)
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}

// Tx is a read-then-write transaction. All reads must happen before the
// first Write.
type Tx interface {
	Members(orgID string) ([]model.TeamMember, error)
	Licenses(orgID string) ([]model.License, error)
	Write(m Mutation) error
}

// Chunk splits muts into slices of at most size elements.
func Chunk(muts []Mutation, size int) [][]Mutation {
	if size <= 0 || size > MaxBatchSize {
		size = MaxBatchSize
	}
	var out [][]Mutation
	for start := 0; start < len(muts); start += size {
		end := start + size
		if end > len(muts) {
			end = len(muts)
		}
		out = append(out, muts[start:end])
	}
	return out
}

func validate(m Mutation) error {
	if m.Collection == "" || m.DocID == "" {
		return fmt.Errorf("mutation %q: collection and document ID are required", m.String())
	}
	switch m.Op {
	case OpSet, OpUpdate:
		if len(m.Fields) == 0 {
			return fmt.Errorf("mutation %q: no fields", m.String())
		}
	case OpDelete:
	default:
		return fmt.Errorf("mutation %q: unknown op %q", m.String(), m.Op)
	}
	return nil
}
