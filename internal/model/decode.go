package model

import (
	"time"

	"github.com/spf13/cast"
)

// The licensing app wrote these documents from several code paths over the
// years, so the same value shows up under different keys.

func str(data map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := data[k]; ok && v != nil {
			if s := cast.ToString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func num(data map[string]any, keys ...string) int {
	for _, k := range keys {
		if v, ok := data[k]; ok && v != nil {
			if n, err := cast.ToIntE(v); err == nil && n != 0 {
				return n
			}
		}
	}
	return 0
}

func ts(data map[string]any, keys ...string) time.Time {
	for _, k := range keys {
		if v, ok := data[k]; ok && v != nil {
			if t, err := cast.ToTimeE(v); err == nil && !t.IsZero() {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

func orgID(data map[string]any) string {
	return str(data, "organizationId", "orgId", "organization")
}

func DecodeOrganization(id string, data map[string]any) Organization {
	return Organization{
		ID:      id,
		Name:    str(data, "name", "displayName"),
		OwnerID: str(data, "ownerId", "owner", "createdBy"),
		Seats:   num(data, "seats", "licenseCount", "maxSeats"),
	}
}

func DecodeUser(id string, data map[string]any) User {
	return User{
		ID:             id,
		Email:          str(data, "email"),
		DisplayName:    str(data, "displayName", "name"),
		OrganizationID: orgID(data),
		Role:           str(data, "role"),
	}
}

func DecodeTeamMember(id string, data map[string]any) TeamMember {
	m := TeamMember{
		ID:             id,
		OrganizationID: orgID(data),
		UserID:         str(data, "userId", "uid"),
		Email:          str(data, "email"),
		Name:           str(data, "name", "displayName"),
		Role:           str(data, "role"),
		Status:         str(data, "status"),
		LicenseID:      str(data, "licenseId"),
		CreatedAt:      ts(data, "createdAt", "joinedAt", "invitedAt"),
	}
	if v, ok := data["hasLicense"]; ok {
		m.HasLicense = cast.ToBool(v)
	}
	return m
}

func DecodeLicense(id string, data map[string]any) License {
	return License{
		ID:               id,
		OrganizationID:   orgID(data),
		Status:           str(data, "status"),
		AssignedTo:       str(data, "assignedTo", "memberId", "teamMemberId"),
		AssignedToUserID: str(data, "assignedToUserId", "userId"),
		AssignedEmail:    str(data, "assignedEmail", "email"),
		AssignedAt:       ts(data, "assignedAt"),
		Tier:             str(data, "tier", "type", "plan"),
		SubscriptionID:   str(data, "subscriptionId"),
		CreatedAt:        ts(data, "createdAt"),
	}
}

func DecodeSubscription(id string, data map[string]any) Subscription {
	return Subscription{
		ID:             id,
		OrganizationID: orgID(data),
		Status:         str(data, "status"),
		Quantity:       num(data, "quantity", "seats", "licenseCount"),
		Plan:           str(data, "plan", "tier", "priceId"),
	}
}

// OrganizationField lists the keys that may carry a document's organization.
var OrganizationField = []string{"organizationId", "orgId"}
