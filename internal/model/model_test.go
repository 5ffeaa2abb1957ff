package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLicenseFallbackKeys(t *testing.T) {
	l := DecodeLicense("lic_1", map[string]any{
		"orgId":    "org_1",
		"memberId": "tm_1",
		"userId":   "uid_1",
		"email":    "a@acme.io",
		"type":     "pro",
		"status":   "assigned",
	})

	assert.Equal(t, "org_1", l.OrganizationID)
	assert.Equal(t, "tm_1", l.AssignedTo)
	assert.Equal(t, "uid_1", l.AssignedToUserID)
	assert.Equal(t, "a@acme.io", l.AssignedEmail)
	assert.Equal(t, "pro", l.Tier)
	assert.True(t, l.Held())
}

func TestDecodeLicensePrefersCanonicalKey(t *testing.T) {
	l := DecodeLicense("lic_1", map[string]any{
		"assignedTo": "tm_new",
		"memberId":   "tm_old",
	})
	assert.Equal(t, "tm_new", l.AssignedTo)

	l = DecodeLicense("lic_1", map[string]any{
		"assignedTo": "",
		"memberId":   "tm_old",
	})
	assert.Equal(t, "tm_old", l.AssignedTo, "empty canonical value falls through")
}

func TestDecodeTeamMember(t *testing.T) {
	m := DecodeTeamMember("tm_1", map[string]any{
		"organizationId": "org_1",
		"uid":            "uid_1",
		"email":          "A@acme.io",
		"hasLicense":     "true",
		"joinedAt":       "2024-05-01T10:00:00Z",
	})

	assert.Equal(t, "uid_1", m.UserID)
	assert.True(t, m.HasLicense)
	assert.True(t, m.Active())
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), m.CreatedAt)
}

func TestDecodeNumbers(t *testing.T) {
	org := DecodeOrganization("org_1", map[string]any{"licenseCount": int64(12)})
	assert.Equal(t, 12, org.Seats)

	org = DecodeOrganization("org_1", map[string]any{"seats": "7"})
	assert.Equal(t, 7, org.Seats)

	sub := DecodeSubscription("sub_1", map[string]any{"quantity": 3.0, "status": "trialing"})
	assert.Equal(t, 3, sub.Quantity)
	assert.True(t, sub.Live())
}

func TestTeamMemberActive(t *testing.T) {
	for status, want := range map[string]bool{
		"":         true,
		"active":   true,
		"invited":  true,
		"Removed":  false,
		"deleted ": false,
		"disabled": false,
	} {
		assert.Equal(t, want, TeamMember{Status: status}.Active(), "status %q", status)
	}
}

func TestLicenseHeld(t *testing.T) {
	assert.False(t, License{Status: LicenseRevoked, AssignedTo: "tm_1"}.Held())
	assert.False(t, License{Status: LicenseAvailable}.Held())
	assert.True(t, License{Status: LicenseAssigned, AssignedTo: "tm_1"}.Held())
}

func TestSnapshotSeats(t *testing.T) {
	snap := &Snapshot{
		Organization: Organization{Seats: 10},
		Subscriptions: []Subscription{
			{Status: "active", Quantity: 3},
			{Status: "canceled", Quantity: 50},
			{Status: "past_due", Quantity: 2},
		},
	}
	assert.Equal(t, 5, snap.Seats())

	snap.Subscriptions = []Subscription{{Status: "canceled", Quantity: 50}}
	assert.Equal(t, 10, snap.Seats(), "falls back to the organization document")
}

func TestUsersByEmail(t *testing.T) {
	snap := &Snapshot{Users: []User{
		{ID: "uid_b", Email: "A@acme.io"},
		{ID: "uid_a", Email: " a@acme.io"},
		{ID: "uid_c", Email: ""},
	}}

	users := snap.UsersByEmail()
	require.Len(t, users, 1)
	assert.Equal(t, "uid_a", users["a@acme.io"].ID)
}

func TestMemberEmails(t *testing.T) {
	snap := &Snapshot{Members: []TeamMember{
		{Email: "b@acme.io"},
		{Email: "A@acme.io"},
		{Email: "a@acme.io "},
		{Email: ""},
	}}
	assert.Equal(t, []string{"a@acme.io", "b@acme.io"}, snap.MemberEmails())
}
