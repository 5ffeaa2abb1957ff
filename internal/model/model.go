// Package model holds the documents seatctl reads from the licensing
// database and the rules that relate them.
package model

import (
	"sort"
	"strings"
	"time"
)

// Collection names.
const (
	Organizations = "organizations"
	Users         = "users"
	TeamMembers   = "teamMembers"
	Licenses      = "licenses"
	Subscriptions = "subscriptions"
	Payments      = "payments"
	Invoices      = "invoices"
	Projects      = "projects"
)

// CountedCollections are only counted per organization in reports.
var CountedCollections = []string{Payments, Invoices, Projects}

// License statuses.
const (
	LicenseAvailable = "available"
	LicenseAssigned  = "assigned"
	LicenseRevoked   = "revoked"
)

type Organization struct {
	ID      string
	Name    string
	OwnerID string
	Seats   int
}

type User struct {
	ID             string
	Email          string
	DisplayName    string
	OrganizationID string
	Role           string
}

type TeamMember struct {
	ID             string
	OrganizationID string
	UserID         string
	Email          string
	Name           string
	Role           string
	Status         string
	LicenseID      string
	HasLicense     bool
	CreatedAt      time.Time
}

// Active reports whether the member should hold a seat.
func (m TeamMember) Active() bool {
	switch strings.ToLower(strings.TrimSpace(m.Status)) {
	case "removed", "deleted", "inactive", "disabled":
		return false
	}
	return true
}

type License struct {
	ID               string
	OrganizationID   string
	Status           string
	AssignedTo       string
	AssignedToUserID string
	AssignedEmail    string
	AssignedAt       time.Time
	Tier             string
	SubscriptionID   string
	CreatedAt        time.Time
}

// Revoked licenses never count toward seats.
func (l License) Revoked() bool {
	return strings.EqualFold(l.Status, LicenseRevoked)
}

// Held reports whether the license is currently bound to a team member.
func (l License) Held() bool {
	return !l.Revoked() && l.AssignedTo != ""
}

type Subscription struct {
	ID             string
	OrganizationID string
	Status         string
	Quantity       int
	Plan           string
}

// Live subscriptions contribute seats.
func (s Subscription) Live() bool {
	switch strings.ToLower(s.Status) {
	case "active", "trialing", "past_due", "":
		return true
	}
	return false
}

// Snapshot is everything loaded for one organization.
type Snapshot struct {
	Organization  Organization
	Members       []TeamMember
	Licenses      []License
	Subscriptions []Subscription
	Users         []User
	Counts        map[string]int
}

// Seats is the number of purchased seats, or 0 when it cannot be derived.
func (s *Snapshot) Seats() int {
	total := 0
	found := false
	for _, sub := range s.Subscriptions {
		if sub.Live() && sub.Quantity > 0 {
			total += sub.Quantity
			found = true
		}
	}
	if found {
		return total
	}
	return s.Organization.Seats
}

// UsersByEmail indexes users by normalized email. When several users share
// an email the lowest ID wins.
func (s *Snapshot) UsersByEmail() map[string]User {
	users := append([]User(nil), s.Users...)
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	out := make(map[string]User, len(users))
	for _, u := range users {
		key := NormalizeEmail(u.Email)
		if key == "" {
			continue
		}
		if _, ok := out[key]; !ok {
			out[key] = u
		}
	}
	return out
}

// MemberEmails returns the distinct normalized emails of all members.
func (s *Snapshot) MemberEmails() []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range s.Members {
		e := NormalizeEmail(m.Email)
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
