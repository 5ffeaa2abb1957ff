package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/seatwise/seatctl/internal/model"
	"github.com/seatwise/seatctl/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create placeholder documents",
}

var seedLicensesCmd = &cobra.Command{
	Use:   "licenses [org-id]",
	Short: "Create available placeholder licenses",
	Long: `Create unassigned placeholder licenses for an organization.

With --to-seats the count is whatever brings the organization's non-revoked
licenses up to its purchased seats.

Examples:
  seatctl seed licenses org_abc123 --count 5 --tier pro
  seatctl seed licenses org_abc123 --to-seats --apply`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		orgID := args[0]
		count, _ := cmd.Flags().GetInt("count")
		toSeats, _ := cmd.Flags().GetBool("to-seats")
		tier, _ := cmd.Flags().GetString("tier")
		apply, _ := cmd.Flags().GetBool("apply")
		force, _ := cmd.Flags().GetBool("force")

		if count <= 0 && !toSeats {
			return fmt.Errorf("--count or --to-seats is required")
		}

		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		snap, err := s.Load(ctx, orgID)
		if err != nil {
			return fmt.Errorf("failed to load organization: %w", err)
		}

		if toSeats {
			seats := snap.Seats()
			if seats == 0 {
				return fmt.Errorf("organization %s has no known seat count", orgID)
			}
			usable := 0
			for _, l := range snap.Licenses {
				if !l.Revoked() {
					usable++
				}
			}
			count = seats - usable
			if count <= 0 {
				fmt.Printf("✓ %d licenses already cover %d seats\n", usable, seats)
				return nil
			}
		}

		muts := seedLicenses(orgID, tier, count, time.Now().UTC())
		printMutations(muts)
		return applyPlan(ctx, s, muts, apply, force)
	},
}

func seedLicenses(orgID, tier string, count int, now time.Time) []store.Mutation {
	muts := make([]store.Mutation, 0, count)
	for i := 0; i < count; i++ {
		fields := map[string]any{
			"organizationId": orgID,
			"status":         model.LicenseAvailable,
			"placeholder":    true,
			"createdAt":      now,
		}
		if tier != "" {
			fields["tier"] = tier
		}
		muts = append(muts, store.Mutation{
			Op:         store.OpSet,
			Collection: model.Licenses,
			DocID:      uuid.NewString(),
			Fields:     fields,
			Reason:     "seed",
		})
	}
	return muts
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.AddCommand(seedLicensesCmd)

	seedLicensesCmd.Flags().Int("count", 0, "Number of licenses to create")
	seedLicensesCmd.Flags().Bool("to-seats", false, "Create as many as the purchased seats require")
	seedLicensesCmd.Flags().String("tier", "", "License tier")
	seedLicensesCmd.Flags().Bool("apply", false, "Write the licenses")
	seedLicensesCmd.Flags().Bool("force", false, "Skip confirmation prompt")
}
