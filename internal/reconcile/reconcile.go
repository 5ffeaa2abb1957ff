// Package reconcile restores the one-license-per-member invariant of an
// organization. It only plans: callers decide whether to apply the writes.
package reconcile

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seatwise/seatctl/internal/model"
	"github.com/seatwise/seatctl/internal/store"
)

type Kind string

const (
	DuplicateMember  Kind = "duplicate-member"
	UserIDMismatch   Kind = "user-id-mismatch"
	OrphanedLicense  Kind = "orphaned-license"
	MultipleLicenses Kind = "multiple-licenses"
	SeatShortfall    Kind = "seat-shortfall"
	SeatSurplus      Kind = "seat-surplus"
	MissingLicense   Kind = "missing-license"
	NoSeatAvailable  Kind = "no-seat-available"
	StaleReference   Kind = "stale-reference"
)

type Issue struct {
	Kind       Kind   `json:"kind"`
	Collection string `json:"collection"`
	DocID      string `json:"docId"`
	Message    string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s/%s: %s", i.Kind, i.Collection, i.DocID, i.Message)
}

type Plan struct {
	Issues    []Issue
	Mutations []store.Mutation
}

// Fixable reports whether applying the plan would change anything.
func (p *Plan) Fixable() bool {
	return len(p.Mutations) > 0
}

type Options struct {
	// Now stamps assignedAt and createdAt on written documents.
	Now time.Time
	// NewID names seeded placeholder licenses. Defaults to uuid.NewString.
	NewID func() string
	// Tier for seeded licenses. Defaults to the tier shared by all existing
	// licenses, if any.
	Tier string
}

// Fields cleared when a license is released. The legacy aliases are cleared
// as well so the document no longer decodes as assigned.
var releasedLicenseFields = []string{
	"assignedTo", "memberId", "teamMemberId",
	"assignedToUserId", "userId",
	"assignedEmail", "email",
	"assignedAt",
}

type planner struct {
	snap *model.Snapshot
	uids map[string]string
	opts Options

	members   map[string]model.TeamMember
	deleted   map[string]bool
	redirect  map[string]string
	userID    map[string]string
	owner     map[string]string // license ID -> member ID
	holds     map[string]string // member ID -> license ID
	seeded    []model.License
	issues    []Issue
	explained map[string][]string
}

// Build computes the plan for snap. uids maps normalized emails to the
// authoritative user ID; emails missing from it keep their current userId.
func Build(snap *model.Snapshot, uids map[string]string, opts Options) *Plan {
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	p := &planner{
		snap:      snap,
		uids:      uids,
		opts:      opts,
		members:   make(map[string]model.TeamMember, len(snap.Members)),
		deleted:   make(map[string]bool),
		redirect:  make(map[string]string),
		userID:    make(map[string]string),
		owner:     make(map[string]string),
		holds:     make(map[string]string),
		explained: make(map[string][]string),
	}
	for _, m := range snap.Members {
		p.members[m.ID] = m
	}

	p.dedupeMembers()
	p.fixUserIDs()
	p.resolveOwnership()
	p.checkSeats()
	p.assignUnlicensed()

	muts := p.mutations()
	return &Plan{Issues: p.issues, Mutations: muts}
}

func (p *planner) report(kind Kind, collection, id, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.issues = append(p.issues, Issue{Kind: kind, Collection: collection, DocID: id, Message: msg})
	if id != "" {
		key := collection + "/" + id
		p.explained[key] = append(p.explained[key], string(kind))
	}
}

func (p *planner) sortedMembers() []model.TeamMember {
	out := append([]model.TeamMember(nil), p.snap.Members...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (p *planner) sortedLicenses() []model.License {
	out := append([]model.License(nil), p.snap.Licenses...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (p *planner) live(id string) (model.TeamMember, bool) {
	m, ok := p.members[id]
	if !ok || p.deleted[id] || !m.Active() {
		return model.TeamMember{}, false
	}
	return m, true
}

func (p *planner) dedupeMembers() {
	referenced := make(map[string]bool)
	for _, l := range p.snap.Licenses {
		if l.Held() {
			referenced[l.AssignedTo] = true
		}
	}

	groups := make(map[string][]model.TeamMember)
	for _, m := range p.sortedMembers() {
		email := model.NormalizeEmail(m.Email)
		if email == "" || !m.Active() {
			continue
		}
		groups[email] = append(groups[email], m)
	}

	emails := make([]string, 0, len(groups))
	for e := range groups {
		emails = append(emails, e)
	}
	sort.Strings(emails)

	for _, email := range emails {
		group := groups[email]
		if len(group) < 2 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			a, b := group[i], group[j]
			if referenced[a.ID] != referenced[b.ID] {
				return referenced[a.ID]
			}
			if !a.CreatedAt.Equal(b.CreatedAt) {
				if a.CreatedAt.IsZero() || b.CreatedAt.IsZero() {
					return !a.CreatedAt.IsZero()
				}
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		})
		keeper := group[0]
		for _, dup := range group[1:] {
			p.deleted[dup.ID] = true
			p.redirect[dup.ID] = keeper.ID
			p.report(DuplicateMember, model.TeamMembers, dup.ID,
				"duplicate of %s (%s), will be deleted", keeper.ID, email)
		}
	}
}

func (p *planner) fixUserIDs() {
	for _, m := range p.sortedMembers() {
		if _, ok := p.live(m.ID); !ok {
			continue
		}
		uid := p.uids[model.NormalizeEmail(m.Email)]
		if uid == "" || uid == m.UserID {
			continue
		}
		p.userID[m.ID] = uid
		current := m.UserID
		if current == "" {
			current = "<empty>"
		}
		p.report(UserIDMismatch, model.TeamMembers, m.ID,
			"userId %s does not match user %s for %s", current, uid, m.Email)
	}
}

type candidate struct {
	license model.License
	moved   bool
}

func (p *planner) resolveOwnership() {
	candidates := make(map[string][]candidate)

	for _, l := range p.sortedLicenses() {
		if !l.Held() {
			continue
		}
		target, moved := l.AssignedTo, false
		if keeper, ok := p.redirect[target]; ok {
			target, moved = keeper, true
		}
		if _, ok := p.live(target); !ok {
			reason := "member no longer exists"
			if m, exists := p.members[target]; exists && !m.Active() {
				reason = fmt.Sprintf("member is %s", m.Status)
			}
			p.report(OrphanedLicense, model.Licenses, l.ID,
				"assigned to %s but %s, will be released", l.AssignedTo, reason)
			continue
		}
		candidates[target] = append(candidates[target], candidate{license: l, moved: moved})
	}

	memberIDs := make([]string, 0, len(candidates))
	for id := range candidates {
		memberIDs = append(memberIDs, id)
	}
	sort.Strings(memberIDs)

	for _, id := range memberIDs {
		m := p.members[id]
		cs := candidates[id]
		sort.SliceStable(cs, func(i, j int) bool {
			a, b := cs[i], cs[j]
			if (a.license.ID == m.LicenseID) != (b.license.ID == m.LicenseID) {
				return a.license.ID == m.LicenseID
			}
			if a.moved != b.moved {
				return !a.moved
			}
			if !a.license.AssignedAt.Equal(b.license.AssignedAt) {
				if a.license.AssignedAt.IsZero() || b.license.AssignedAt.IsZero() {
					return !a.license.AssignedAt.IsZero()
				}
				return a.license.AssignedAt.Before(b.license.AssignedAt)
			}
			return a.license.ID < b.license.ID
		})

		kept := cs[0].license
		p.owner[kept.ID] = id
		p.holds[id] = kept.ID
		if cs[0].moved {
			p.report(DuplicateMember, model.Licenses, kept.ID,
				"moves from duplicate member %s to %s", kept.AssignedTo, id)
		}
		for _, extra := range cs[1:] {
			p.report(MultipleLicenses, model.Licenses, extra.license.ID,
				"%s already holds %s, will be released", m.Email, kept.ID)
		}
	}
}

func (p *planner) checkSeats() {
	seats := p.snap.Seats()
	if seats <= 0 {
		return
	}
	usable := 0
	for _, l := range p.snap.Licenses {
		if !l.Revoked() {
			usable++
		}
	}
	orgID := p.snap.Organization.ID

	if usable > seats {
		p.report(SeatSurplus, model.Organizations, orgID,
			"%d licenses for %d purchased seats", usable, seats)
		return
	}
	if usable == seats {
		return
	}

	tier := p.seedTier()
	for i := usable; i < seats; i++ {
		p.seeded = append(p.seeded, model.License{
			ID:             p.opts.NewID(),
			OrganizationID: orgID,
			Status:         model.LicenseAvailable,
			Tier:           tier,
			CreatedAt:      p.opts.Now,
		})
	}
	p.report(SeatShortfall, model.Organizations, orgID,
		"%d licenses for %d purchased seats, seeding %d placeholders", usable, seats, seats-usable)
}

func (p *planner) seedTier() string {
	if p.opts.Tier != "" {
		return p.opts.Tier
	}
	tier := ""
	for _, l := range p.snap.Licenses {
		if l.Tier == "" {
			continue
		}
		if tier != "" && tier != l.Tier {
			return ""
		}
		tier = l.Tier
	}
	return tier
}

func (p *planner) assignUnlicensed() {
	var pool []string
	for _, l := range p.sortedLicenses() {
		if !l.Revoked() && p.owner[l.ID] == "" {
			pool = append(pool, l.ID)
		}
	}
	for _, l := range p.seeded {
		pool = append(pool, l.ID)
	}

	var waiting []model.TeamMember
	for _, m := range p.snap.Members {
		if _, ok := p.live(m.ID); ok && p.holds[m.ID] == "" {
			waiting = append(waiting, m)
		}
	}
	sort.SliceStable(waiting, func(i, j int) bool {
		a, b := waiting[i], waiting[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if a.CreatedAt.IsZero() || b.CreatedAt.IsZero() {
				return !a.CreatedAt.IsZero()
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	for _, m := range waiting {
		if len(pool) == 0 {
			p.report(NoSeatAvailable, model.TeamMembers, m.ID,
				"%s has no license and none are available", m.Email)
			continue
		}
		id := pool[0]
		pool = pool[1:]
		p.owner[id] = m.ID
		p.holds[m.ID] = id
		p.report(MissingLicense, model.TeamMembers, m.ID,
			"%s has no license, assigning %s", m.Email, id)
	}
}

func (p *planner) uidFor(m model.TeamMember) string {
	if uid, ok := p.userID[m.ID]; ok {
		return uid
	}
	return m.UserID
}

func (p *planner) reason(collection, id string) string {
	kinds := p.explained[collection+"/"+id]
	if len(kinds) == 0 {
		return string(StaleReference)
	}
	return strings.Join(kinds, ", ")
}

func (p *planner) mutations() []store.Mutation {
	var out []store.Mutation

	for _, l := range p.seeded {
		fields := map[string]any{
			"organizationId": l.OrganizationID,
			"status":         l.Status,
			"placeholder":    true,
			"createdAt":      l.CreatedAt,
		}
		if l.Tier != "" {
			fields["tier"] = l.Tier
		}
		if m, ok := p.members[p.owner[l.ID]]; ok {
			for k, v := range p.assignedFields(m) {
				fields[k] = v
			}
		}
		out = append(out, store.Mutation{
			Op: store.OpSet, Collection: model.Licenses, DocID: l.ID,
			Fields: fields, Reason: string(SeatShortfall),
		})
	}

	for _, l := range p.sortedLicenses() {
		if l.Revoked() {
			continue
		}
		fields := p.licenseDiff(l)
		if len(fields) == 0 {
			continue
		}
		out = append(out, p.update(model.Licenses, l.ID, fields))
	}

	for _, m := range p.sortedMembers() {
		if p.deleted[m.ID] {
			out = append(out, store.Mutation{
				Op: store.OpDelete, Collection: model.TeamMembers, DocID: m.ID,
				Reason: p.reason(model.TeamMembers, m.ID),
			})
			continue
		}
		fields := p.memberDiff(m)
		if len(fields) == 0 {
			continue
		}
		out = append(out, p.update(model.TeamMembers, m.ID, fields))
	}
	return out
}

func (p *planner) update(collection, id string, fields map[string]any) store.Mutation {
	key := collection + "/" + id
	if len(p.explained[key]) == 0 {
		p.report(StaleReference, collection, id, "denormalized fields out of date: %s", fieldNames(fields))
	}
	return store.Mutation{
		Op: store.OpUpdate, Collection: collection, DocID: id,
		Fields: fields, Reason: p.reason(collection, id),
	}
}

func (p *planner) assignedFields(m model.TeamMember) map[string]any {
	return map[string]any{
		"status":           model.LicenseAssigned,
		"assignedTo":       m.ID,
		"assignedToUserId": p.uidFor(m),
		"assignedEmail":    m.Email,
		"assignedAt":       p.opts.Now,
	}
}

func (p *planner) licenseDiff(l model.License) map[string]any {
	fields := make(map[string]any)
	ownerID := p.owner[l.ID]

	if ownerID == "" {
		if l.Status != model.LicenseAvailable {
			fields["status"] = model.LicenseAvailable
		}
		if l.AssignedTo != "" || l.AssignedToUserID != "" || l.AssignedEmail != "" || !l.AssignedAt.IsZero() {
			for _, k := range releasedLicenseFields {
				fields[k] = store.DeleteField
			}
		}
		return fields
	}

	m := p.members[ownerID]
	want := p.assignedFields(m)
	if l.Status != model.LicenseAssigned {
		fields["status"] = want["status"]
	}
	if l.AssignedTo != m.ID {
		fields["assignedTo"] = want["assignedTo"]
		fields["assignedAt"] = want["assignedAt"]
	}
	if uid := p.uidFor(m); uid != "" && l.AssignedToUserID != uid {
		fields["assignedToUserId"] = uid
	}
	if m.Email != "" && l.AssignedEmail != m.Email {
		fields["assignedEmail"] = m.Email
	}
	return fields
}

func (p *planner) memberDiff(m model.TeamMember) map[string]any {
	fields := make(map[string]any)
	if uid, ok := p.userID[m.ID]; ok {
		fields["userId"] = uid
	}

	licenseID := p.holds[m.ID]
	if m.LicenseID != licenseID {
		if licenseID == "" {
			fields["licenseId"] = store.DeleteField
		} else {
			fields["licenseId"] = licenseID
		}
	}
	if m.HasLicense != (licenseID != "") {
		fields["hasLicense"] = licenseID != ""
	}
	return fields
}

func fieldNames(fields map[string]any) string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
