// Package seats assigns licenses to team members inside transactions so an
// active member never holds more than one license.
package seats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/seatwise/seatctl/internal/model"
	"github.com/seatwise/seatctl/internal/store"
)

var (
	ErrMemberNotFound  = errors.New("team member not found")
	ErrMemberInactive  = errors.New("team member is not active")
	ErrAlreadyLicensed = errors.New("team member already holds a license")
	ErrNotLicensed     = errors.New("team member holds no license")
	ErrNoSeatAvailable = errors.New("no available license")
	ErrSameMember      = errors.New("source and target are the same member")
)

type Service struct {
	store store.Store
	now   func() time.Time
}

func NewService(s store.Store) *Service {
	return &Service{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// Assignment is the outcome of a seat operation.
type Assignment struct {
	LicenseID string
	MemberID  string
	Email     string
}

type view struct {
	members  []model.TeamMember
	licenses []model.License
}

func read(tx store.Tx, orgID string) (*view, error) {
	members, err := tx.Members(orgID)
	if err != nil {
		return nil, err
	}
	licenses, err := tx.Licenses(orgID)
	if err != nil {
		return nil, err
	}
	sort.Slice(licenses, func(i, j int) bool { return licenses[i].ID < licenses[j].ID })
	return &view{members: members, licenses: licenses}, nil
}

// member finds the active member for email. With duplicates, the one
// already holding a license wins, then the lowest ID.
func (v *view) member(email string) (model.TeamMember, error) {
	email = model.NormalizeEmail(email)
	var found []model.TeamMember
	inactive := false
	for _, m := range v.members {
		if model.NormalizeEmail(m.Email) != email {
			continue
		}
		if !m.Active() {
			inactive = true
			continue
		}
		found = append(found, m)
	}
	if len(found) == 0 {
		if inactive {
			return model.TeamMember{}, fmt.Errorf("%s: %w", email, ErrMemberInactive)
		}
		return model.TeamMember{}, fmt.Errorf("%s: %w", email, ErrMemberNotFound)
	}
	sort.Slice(found, func(i, j int) bool {
		hi, hj := len(v.held(found[i].ID)) > 0, len(v.held(found[j].ID)) > 0
		if hi != hj {
			return hi
		}
		return found[i].ID < found[j].ID
	})
	return found[0], nil
}

func (v *view) held(memberID string) []model.License {
	var out []model.License
	for _, l := range v.licenses {
		if l.Held() && l.AssignedTo == memberID {
			out = append(out, l)
		}
	}
	return out
}

func (v *view) available() (model.License, bool) {
	for _, l := range v.licenses {
		if !l.Revoked() && l.AssignedTo == "" {
			return l, true
		}
	}
	return model.License{}, false
}

func (s *Service) assignWrites(tx store.Tx, l model.License, m model.TeamMember) error {
	now := s.now()
	if err := tx.Write(store.Mutation{
		Op: store.OpUpdate, Collection: model.Licenses, DocID: l.ID,
		Fields: map[string]any{
			"status":           model.LicenseAssigned,
			"assignedTo":       m.ID,
			"assignedToUserId": m.UserID,
			"assignedEmail":    m.Email,
			"assignedAt":       now,
			"updatedAt":        now,
		},
	}); err != nil {
		return err
	}
	return tx.Write(store.Mutation{
		Op: store.OpUpdate, Collection: model.TeamMembers, DocID: m.ID,
		Fields: map[string]any{
			"licenseId":  l.ID,
			"hasLicense": true,
			"updatedAt":  now,
		},
	})
}

func (s *Service) releaseWrites(tx store.Tx, l model.License) error {
	return tx.Write(store.Mutation{
		Op: store.OpUpdate, Collection: model.Licenses, DocID: l.ID,
		Fields: map[string]any{
			"status":           model.LicenseAvailable,
			"assignedTo":       store.DeleteField,
			"memberId":         store.DeleteField,
			"teamMemberId":     store.DeleteField,
			"assignedToUserId": store.DeleteField,
			"userId":           store.DeleteField,
			"assignedEmail":    store.DeleteField,
			"email":            store.DeleteField,
			"assignedAt":       store.DeleteField,
			"updatedAt":        s.now(),
		},
	})
}

// Assign gives the member with email the lowest-ID available license. If
// the member already holds one, it is returned along with ErrAlreadyLicensed.
func (s *Service) Assign(ctx context.Context, orgID, email string) (Assignment, error) {
	var out Assignment
	err := s.store.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		v, err := read(tx, orgID)
		if err != nil {
			return err
		}
		m, err := v.member(email)
		if err != nil {
			return err
		}
		if held := v.held(m.ID); len(held) > 0 {
			out = Assignment{LicenseID: held[0].ID, MemberID: m.ID, Email: m.Email}
			return fmt.Errorf("%s holds %s: %w", m.Email, held[0].ID, ErrAlreadyLicensed)
		}
		l, ok := v.available()
		if !ok {
			return fmt.Errorf("organization %s: %w", orgID, ErrNoSeatAvailable)
		}
		out = Assignment{LicenseID: l.ID, MemberID: m.ID, Email: m.Email}
		return s.assignWrites(tx, l, m)
	})
	if err != nil {
		return out, err
	}
	slog.Info("license assigned", "org", orgID, "license", out.LicenseID, "member", out.MemberID)
	return out, nil
}

// Release frees every license the member holds.
func (s *Service) Release(ctx context.Context, orgID, email string) ([]Assignment, error) {
	var out []Assignment
	err := s.store.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		out = nil
		v, err := read(tx, orgID)
		if err != nil {
			return err
		}
		m, err := v.member(email)
		if errors.Is(err, ErrMemberInactive) {
			m, err = v.anyMember(email)
		}
		if err != nil {
			return err
		}
		held := v.held(m.ID)
		if len(held) == 0 {
			return fmt.Errorf("%s: %w", m.Email, ErrNotLicensed)
		}
		for _, l := range held {
			if err := s.releaseWrites(tx, l); err != nil {
				return err
			}
			out = append(out, Assignment{LicenseID: l.ID, MemberID: m.ID, Email: m.Email})
		}
		return tx.Write(store.Mutation{
			Op: store.OpUpdate, Collection: model.TeamMembers, DocID: m.ID,
			Fields: map[string]any{
				"licenseId":  store.DeleteField,
				"hasLicense": false,
				"updatedAt":  s.now(),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	slog.Info("license released", "org", orgID, "email", email, "count", len(out))
	return out, nil
}

// anyMember finds a member by email regardless of status, so licenses held
// by removed members can still be released.
func (v *view) anyMember(email string) (model.TeamMember, error) {
	email = model.NormalizeEmail(email)
	for _, m := range v.members {
		if model.NormalizeEmail(m.Email) == email {
			return m, nil
		}
	}
	return model.TeamMember{}, fmt.Errorf("%s: %w", email, ErrMemberNotFound)
}

// Reassign moves the license held by fromEmail to toEmail atomically.
func (s *Service) Reassign(ctx context.Context, orgID, fromEmail, toEmail string) (Assignment, error) {
	var out Assignment
	err := s.store.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		v, err := read(tx, orgID)
		if err != nil {
			return err
		}
		from, err := v.member(fromEmail)
		if errors.Is(err, ErrMemberInactive) {
			from, err = v.anyMember(fromEmail)
		}
		if err != nil {
			return err
		}
		to, err := v.member(toEmail)
		if err != nil {
			return err
		}
		if from.ID == to.ID {
			return ErrSameMember
		}
		if held := v.held(to.ID); len(held) > 0 {
			return fmt.Errorf("%s holds %s: %w", to.Email, held[0].ID, ErrAlreadyLicensed)
		}
		held := v.held(from.ID)
		if len(held) == 0 {
			return fmt.Errorf("%s: %w", from.Email, ErrNotLicensed)
		}

		moved := held[0]
		for _, extra := range held[1:] {
			if err := s.releaseWrites(tx, extra); err != nil {
				return err
			}
		}
		if err := s.assignWrites(tx, moved, to); err != nil {
			return err
		}
		out = Assignment{LicenseID: moved.ID, MemberID: to.ID, Email: to.Email}
		return tx.Write(store.Mutation{
			Op: store.OpUpdate, Collection: model.TeamMembers, DocID: from.ID,
			Fields: map[string]any{
				"licenseId":  store.DeleteField,
				"hasLicense": false,
				"updatedAt":  s.now(),
			},
		})
	})
	if err != nil {
		return Assignment{}, err
	}
	slog.Info("license reassigned", "org", orgID, "license", out.LicenseID, "from", fromEmail, "to", toEmail)
	return out, nil
}
