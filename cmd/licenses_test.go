package cmd

import (
	"errors"
	"testing"

	"github.com/seatwise/seatctl/internal/seats"
)

func seedSeats(tc *TestConfig) {
	tc.Store.Put("organizations", "org_1", map[string]any{"name": "Acme"})
	tc.Store.Put("teamMembers", "tm_a", map[string]any{
		"organizationId": "org_1", "email": "a@acme.io", "userId": "uid_a", "status": "active",
		"licenseId": "lic_1", "hasLicense": true,
	})
	tc.Store.Put("teamMembers", "tm_b", map[string]any{
		"organizationId": "org_1", "email": "b@acme.io", "userId": "uid_b", "status": "active",
	})
	tc.Store.Put("licenses", "lic_1", map[string]any{
		"organizationId": "org_1", "status": "assigned", "assignedTo": "tm_a", "tier": "pro",
	})
	tc.Store.Put("licenses", "lic_2", map[string]any{
		"organizationId": "org_1", "status": "available", "tier": "pro",
	})
}

func TestLicensesList(t *testing.T) {
	tc := SetupTest(t)
	seedSeats(tc)

	output, err := ExecuteCommand("licenses", "list", "org_1")
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}

	AssertContains(t, output, "lic_1")
	AssertContains(t, output, "a@acme.io")
	AssertContains(t, output, "lic_2")
}

func TestLicensesAssign(t *testing.T) {
	tc := SetupTest(t)
	seedSeats(tc)

	output, err := ExecuteCommand("licenses", "assign", "org_1", "B@acme.io")
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	AssertContains(t, output, "License lic_2 assigned to b@acme.io")

	lic, _ := tc.Store.Get("licenses", "lic_2")
	if lic["assignedTo"] != "tm_b" || lic["assignedToUserId"] != "uid_b" {
		t.Errorf("Unexpected license after assign: %v", lic)
	}
}

func TestLicensesAssignAlreadyLicensed(t *testing.T) {
	tc := SetupTest(t)
	seedSeats(tc)

	output, err := ExecuteCommand("licenses", "assign", "org_1", "a@acme.io")
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	AssertContains(t, output, "already holds license lic_1")

	lic, _ := tc.Store.Get("licenses", "lic_2")
	if lic["status"] != "available" {
		t.Error("Second license must not be assigned")
	}
}

func TestLicensesAssignNoSeat(t *testing.T) {
	tc := SetupTest(t)
	seedSeats(tc)
	tc.Store.Put("teamMembers", "tm_c", map[string]any{
		"organizationId": "org_1", "email": "c@acme.io", "status": "active",
	})

	if _, err := ExecuteCommand("licenses", "assign", "org_1", "b@acme.io"); err != nil {
		t.Fatalf("First assign failed: %v", err)
	}
	_, err := ExecuteCommand("licenses", "assign", "org_1", "c@acme.io")
	if !errors.Is(err, seats.ErrNoSeatAvailable) {
		t.Errorf("Expected ErrNoSeatAvailable, got %v", err)
	}
}

func TestLicensesRelease(t *testing.T) {
	tc := SetupTest(t)
	seedSeats(tc)

	output, err := ExecuteCommand("licenses", "release", "org_1", "a@acme.io", "--force")
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	AssertContains(t, output, "License lic_1 released from a@acme.io")

	member, _ := tc.Store.Get("teamMembers", "tm_a")
	if _, ok := member["licenseId"]; ok {
		t.Errorf("Expected licenseId to be removed, got %v", member)
	}
	if member["hasLicense"] != false {
		t.Errorf("Expected hasLicense false, got %v", member["hasLicense"])
	}
}

func TestLicensesReassign(t *testing.T) {
	tc := SetupTest(t)
	seedSeats(tc)

	output, err := ExecuteCommand("licenses", "reassign", "org_1", "a@acme.io", "b@acme.io")
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	AssertContains(t, output, "License lic_1 moved from a@acme.io to b@acme.io")

	lic, _ := tc.Store.Get("licenses", "lic_1")
	if lic["assignedTo"] != "tm_b" {
		t.Errorf("Expected lic_1 to move to tm_b, got %v", lic["assignedTo"])
	}
	b, _ := tc.Store.Get("teamMembers", "tm_b")
	if b["licenseId"] != "lic_1" {
		t.Errorf("Expected tm_b to reference lic_1, got %v", b["licenseId"])
	}
}

func TestLicensesReassignUnknownMember(t *testing.T) {
	tc := SetupTest(t)
	seedSeats(tc)

	_, err := ExecuteCommand("licenses", "reassign", "org_1", "a@acme.io", "nobody@acme.io")
	if !errors.Is(err, seats.ErrMemberNotFound) {
		t.Errorf("Expected ErrMemberNotFound, got %v", err)
	}
}
