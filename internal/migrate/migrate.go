// Package migrate plans field migrations over scanned documents.
package migrate

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/seatwise/seatctl/internal/model"
	"github.com/seatwise/seatctl/internal/store"
)

// Conflict is a document the migration cannot change safely.
type Conflict struct {
	DocID  string
	Reason string
}

type Plan struct {
	Scanned   int
	Mutations []store.Mutation
	Conflicts []Conflict
}

// Migration inspects one document and adds to the plan.
type Migration interface {
	Name() string
	Visit(p *Plan, doc store.Doc)
}

// Run visits docs with m and returns the plan.
func Run(m Migration, docs []store.Doc) *Plan {
	p := &Plan{}
	for _, d := range docs {
		p.Scanned++
		m.Visit(p, d)
	}
	return p
}

func (p *Plan) update(doc store.Doc, reason string, fields map[string]any) {
	p.Mutations = append(p.Mutations, store.Mutation{
		Op: store.OpUpdate, Collection: doc.Collection, DocID: doc.ID,
		Fields: fields, Reason: reason,
	})
}

// RenameField moves From to To.
type RenameField struct {
	From, To string
}

func (r RenameField) Name() string { return fmt.Sprintf("rename %s -> %s", r.From, r.To) }

func (r RenameField) Visit(p *Plan, doc store.Doc) {
	old, hasOld := doc.Data[r.From]
	if !hasOld {
		return
	}
	cur, hasNew := doc.Data[r.To]
	switch {
	case !hasNew:
		p.update(doc, r.Name(), map[string]any{r.To: old, r.From: store.DeleteField})
	case reflect.DeepEqual(old, cur):
		p.update(doc, r.Name(), map[string]any{r.From: store.DeleteField})
	default:
		p.Conflicts = append(p.Conflicts, Conflict{
			DocID:  doc.ID,
			Reason: fmt.Sprintf("%s=%v but %s=%v", r.From, old, r.To, cur),
		})
	}
}

// SetDefault fills Field with Value where it is missing or null.
type SetDefault struct {
	Field string
	Value any
}

func (s SetDefault) Name() string { return fmt.Sprintf("default %s=%v", s.Field, s.Value) }

func (s SetDefault) Visit(p *Plan, doc store.Doc) {
	if v, ok := doc.Data[s.Field]; ok && v != nil {
		return
	}
	p.update(doc, s.Name(), map[string]any{s.Field: s.Value})
}

// NormalizeEmails lower-cases and trims an email field.
type NormalizeEmails struct {
	Field string
}

func (n NormalizeEmails) Name() string { return fmt.Sprintf("normalize %s", n.Field) }

func (n NormalizeEmails) Visit(p *Plan, doc store.Doc) {
	raw, ok := doc.Data[n.Field].(string)
	if !ok {
		return
	}
	if norm := model.NormalizeEmail(raw); norm != raw {
		p.update(doc, n.Name(), map[string]any{n.Field: norm})
	}
}

// ParseValue turns a command-line value into a bool, integer, float or
// string. Only plain decimal numbers are converted; values such as 007,
// 0x1F or NaN stay strings. Quote with single quotes to force a string.
func ParseValue(s string) any {
	if len(s) >= 2 && strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") {
		return s[1 : len(s)-1]
	}
	switch strings.ToLower(s) {
	case "true", "false":
		return cast.ToBool(s)
	case "null":
		return nil
	}
	if !decimal(s) {
		return s
	}
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		return s
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return s
}

// decimal reports whether s is a base-10 number without a leading zero in
// its integer part.
func decimal(s string) bool {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+")
	intPart := s
	if i := strings.IndexAny(s, ".eE"); i >= 0 {
		intPart = s[:i]
	}
	if intPart == "" || (len(intPart) > 1 && intPart[0] == '0') {
		return false
	}
	for _, r := range intPart {
		if r < '0' || r > '9' {
			return false
		}
	}
	for _, r := range s[len(intPart):] {
		if !strings.ContainsRune("0123456789.eE+-", r) {
			return false
		}
	}
	return true
}
