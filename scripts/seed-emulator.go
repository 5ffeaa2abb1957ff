//go:build ignore

// Seeds the Firestore emulator with an organization that exercises every
// repair seatctl knows about.
//
//	FIRESTORE_EMULATOR_HOST=localhost:8080 go run scripts/seed-emulator.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"cloud.google.com/go/firestore"
)

func main() {
	ctx := context.Background()

	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		log.Fatal("FIRESTORE_EMULATOR_HOST is not set; refusing to seed a real database")
	}

	project := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if project == "" {
		project = "seatctl-test"
	}

	client, err := firestore.NewClient(ctx, project)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	orgID := "org_demo"
	now := time.Now()

	docs := map[string]map[string]map[string]interface{}{
		"organizations": {
			orgID: {"name": "Demo Org", "ownerId": "uid_alice", "createdAt": now},
		},
		"subscriptions": {
			"sub_demo": {"organizationId": orgID, "status": "active", "quantity": 4, "plan": "pro"},
		},
		"users": {
			"uid_alice": {"email": "alice@demo.test", "organizationId": orgID},
			"uid_carol": {"email": "carol@demo.test", "organizationId": orgID},
		},
		"teamMembers": {
			"tm_alice": {"organizationId": orgID, "email": "alice@demo.test", "userId": "uid_alice", "status": "active", "licenseId": "lic_1", "hasLicense": true, "createdAt": now},
			"tm_bob":   {"organizationId": orgID, "email": "Alice@demo.test", "status": "active", "createdAt": now.Add(time.Hour)},
			"tm_carol": {"organizationId": orgID, "email": "carol@demo.test", "userId": "legacy_carol", "status": "active", "createdAt": now},
		},
		"licenses": {
			"lic_1": {"organizationId": orgID, "status": "assigned", "assignedTo": "tm_alice", "assignedEmail": "alice@demo.test", "tier": "pro"},
			"lic_2": {"organizationId": orgID, "status": "assigned", "assignedTo": "tm_alice", "tier": "pro"},
			"lic_3": {"orgId": orgID, "status": "assigned", "memberId": "tm_gone", "tier": "pro"},
		},
		"invoices": {
			"inv_1": {"organizationId": orgID, "total": 4800},
		},
	}

	batch := client.Batch()
	n := 0
	for col, byID := range docs {
		for id, data := range byID {
			batch.Set(client.Collection(col).Doc(id), data)
			n++
		}
	}
	if _, err := batch.Commit(ctx); err != nil {
		log.Fatalf("Failed to seed: %v", err)
	}

	fmt.Printf("✓ Seeded %d documents for %s\n", n, orgID)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Audit the organization:")
	fmt.Println("   seatctl audit " + orgID + " --project " + project)
	fmt.Println("2. Run integration tests:")
	fmt.Println("   go test ./integration/... -v -tags=integration")
}
