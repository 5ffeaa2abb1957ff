package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAuditReportsIssues(t *testing.T) {
	tc := SetupTest(t)
	seedOrg(tc.Store)

	output, err := ExecuteCommand("audit", "org_1")
	if err == nil {
		t.Fatal("Expected audit to fail when issues exist")
	}
	if !strings.Contains(err.Error(), "issues found") {
		t.Errorf("Unexpected error: %v", err)
	}

	AssertContains(t, output, "duplicate-member")
	AssertContains(t, output, "teamMembers/tm_bob")
	AssertContains(t, output, "user-id-mismatch")
	AssertContains(t, output, "orphaned-license")
	AssertContains(t, output, "licenses/lic_4")
	AssertContains(t, output, "multiple-licenses")
	AssertContains(t, output, "missing-license")
}

func TestAuditClean(t *testing.T) {
	tc := SetupTest(t)
	tc.Store.Put("organizations", "org_1", map[string]any{"name": "Acme"})
	tc.Store.Put("teamMembers", "tm_1", map[string]any{
		"organizationId": "org_1", "email": "a@acme.io", "status": "active",
		"licenseId": "lic_1", "hasLicense": true,
	})
	tc.Store.Put("licenses", "lic_1", map[string]any{
		"organizationId": "org_1", "status": "assigned", "assignedTo": "tm_1", "assignedEmail": "a@acme.io",
	})

	output, err := ExecuteCommand("audit", "org_1")
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	AssertContains(t, output, "No issues found")
}

func TestAuditUnknownOrganization(t *testing.T) {
	SetupTest(t)

	_, err := ExecuteCommand("audit", "org_missing")
	if err == nil {
		t.Fatal("Expected error for unknown organization")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected not found error, got: %v", err)
	}
}

func TestRepairDryRunWritesNothing(t *testing.T) {
	tc := SetupTest(t)
	seedOrg(tc.Store)

	output, err := ExecuteCommand("repair", "org_1")
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}

	AssertContains(t, output, "Planned writes (6)")
	AssertContains(t, output, "delete teamMembers/tm_bob")
	AssertContains(t, output, "Dry run")

	if _, ok := tc.Store.Get("teamMembers", "tm_bob"); !ok {
		t.Error("Dry run deleted tm_bob")
	}
}

func TestRepairApply(t *testing.T) {
	tc := SetupTest(t)
	seedOrg(tc.Store)

	output, err := ExecuteCommand("repair", "org_1", "--apply", "--force")
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	AssertContains(t, output, "6 writes committed in 1 batches")

	if _, ok := tc.Store.Get("teamMembers", "tm_bob"); ok {
		t.Error("Expected duplicate tm_bob to be deleted")
	}
	carol, _ := tc.Store.Get("teamMembers", "tm_carol")
	if carol["licenseId"] != "lic_2" {
		t.Errorf("Expected carol to get lic_2, got %v", carol["licenseId"])
	}
	dave, _ := tc.Store.Get("teamMembers", "tm_dave")
	if dave["userId"] != "uid_dave" {
		t.Errorf("Expected dave's userId to be fixed, got %v", dave["userId"])
	}
	orphan, _ := tc.Store.Get("licenses", "lic_4")
	if orphan["status"] != "available" {
		t.Errorf("Expected lic_4 to be released, got %v", orphan["status"])
	}
	if _, ok := orphan["memberId"]; ok {
		t.Error("Expected legacy memberId to be removed from lic_4")
	}

	// A second run finds nothing left to do
	output, err = ExecuteCommand("audit", "org_1")
	if err != nil {
		t.Fatalf("Audit after repair failed: %v\n%s", err, output)
	}
	AssertContains(t, output, "No issues found")
}

func TestRepairCancelled(t *testing.T) {
	tc := SetupTest(t)
	seedOrg(tc.Store)

	output, err := ExecuteCommandWithStdin("n\n", "repair", "org_1", "--apply")
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	AssertContains(t, output, "Cancelled")

	if _, ok := tc.Store.Get("teamMembers", "tm_bob"); !ok {
		t.Error("Cancelled repair deleted tm_bob")
	}
}

func TestRepairWithBackup(t *testing.T) {
	tc := SetupTest(t)
	seedOrg(tc.Store)

	dest := filepath.Join(tc.ConfigDir, "before.ndjson")
	output, err := ExecuteCommand("repair", "org_1", "--apply", "--force", "--backup", dest)
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	AssertContains(t, output, "Backed up 4 members and 4 licenses")

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("Backup not written: %v", err)
	}
	if !strings.Contains(string(data), `"id":"tm_bob"`) {
		t.Error("Backup should contain the member deleted by the repair")
	}
}

func TestRepairSeedsShortfall(t *testing.T) {
	tc := SetupTest(t)
	tc.Store.Put("organizations", "org_2", map[string]any{"name": "Tiny", "seats": 2})
	tc.Store.Put("teamMembers", "tm_1", map[string]any{
		"organizationId": "org_2", "email": "solo@tiny.io", "status": "active",
	})

	output, err := ExecuteCommand("repair", "org_2", "--apply", "--force", "--tier", "basic")
	if err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	AssertContains(t, output, "seat-shortfall")

	if n := tc.Store.Len("licenses"); n != 2 {
		t.Fatalf("Expected 2 seeded licenses, got %d", n)
	}
	member, _ := tc.Store.Get("teamMembers", "tm_1")
	if member["hasLicense"] != true {
		t.Errorf("Expected member to receive a seeded license, got %v", member)
	}
}
