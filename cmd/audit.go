package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seatwise/seatctl/internal/backup"
	"github.com/seatwise/seatctl/internal/identity"
	"github.com/seatwise/seatctl/internal/model"
	"github.com/seatwise/seatctl/internal/reconcile"
	"github.com/seatwise/seatctl/internal/store"
)

var auditCmd = &cobra.Command{
	Use:   "audit [org-id]",
	Short: "List license invariant violations",
	Long: `Check an organization for duplicate members, mismatched user IDs,
orphaned or doubled license assignments and seat count problems.

Exits non-zero when any issue is found.

Examples:
  seatctl audit org_abc123
  seatctl audit org_abc123 --auth`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		useAuth, _ := cmd.Flags().GetBool("auth")

		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		_, plan, err := planRepair(ctx, s, args[0], useAuth, "")
		if err != nil {
			return err
		}

		if len(plan.Issues) == 0 {
			fmt.Println("✓ No issues found")
			return nil
		}
		printIssues(plan.Issues)
		return fmt.Errorf("%d issues found", len(plan.Issues))
	},
}

var repairCmd = &cobra.Command{
	Use:   "repair [org-id]",
	Short: "Fix license invariant violations",
	Long: `Plan and apply the writes that restore one license per active member.

Duplicate members are deleted, user IDs are corrected, orphaned and extra
licenses are released, missing placeholder licenses are seeded up to the
purchased seat count and unlicensed members receive available licenses.

Without --apply the plan is only printed.

Examples:
  seatctl repair org_abc123
  seatctl repair org_abc123 --apply --backup gs://seatwise-backups/org_abc123.ndjson`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		orgID := args[0]
		useAuth, _ := cmd.Flags().GetBool("auth")
		apply, _ := cmd.Flags().GetBool("apply")
		force, _ := cmd.Flags().GetBool("force")
		dest, _ := cmd.Flags().GetString("backup")
		tier, _ := cmd.Flags().GetString("tier")

		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		_, plan, err := planRepair(ctx, s, orgID, useAuth, tier)
		if err != nil {
			return err
		}

		if len(plan.Issues) == 0 {
			fmt.Println("✓ No issues found")
			return nil
		}
		printIssues(plan.Issues)
		fmt.Println()
		printMutations(plan.Mutations)

		if apply && dest != "" && plan.Fixable() {
			counts, err := exportTo(ctx, s, dest, orgID, []string{model.TeamMembers, model.Licenses})
			if err != nil {
				return fmt.Errorf("backup failed, nothing written: %w", err)
			}
			fmt.Printf("✓ Backed up %d members and %d licenses to %s\n",
				counts[model.TeamMembers], counts[model.Licenses], dest)
		}
		return applyPlan(ctx, s, plan.Mutations, apply, force)
	},
}

// planRepair loads the organization and computes the reconcile plan. With
// useAuth, Firebase Auth is the first source of user IDs.
func planRepair(ctx context.Context, s store.Store, orgID string, useAuth bool, tier string) (*model.Snapshot, *reconcile.Plan, error) {
	snap, err := s.Load(ctx, orgID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load organization: %w", err)
	}

	var resolver identity.Resolver = identity.NewDirectory(snap.Users)
	if useAuth {
		authResolver, err := openAuthResolver(ctx)
		if err != nil {
			return nil, nil, err
		}
		resolver = identity.Chain{authResolver, resolver}
	}

	uids, err := identity.ResolveAll(ctx, resolver, snap.MemberEmails())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve user IDs: %w", err)
	}
	return snap, reconcile.Build(snap, uids, reconcile.Options{Tier: tier}), nil
}

func printIssues(issues []reconcile.Issue) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tDOCUMENT\tDETAIL")
	for _, i := range issues {
		fmt.Fprintf(w, "%s\t%s/%s\t%s\n", i.Kind, i.Collection, i.DocID, i.Message)
	}
	w.Flush()
}

func exportTo(ctx context.Context, s store.Store, dest, orgID string, collections []string) (map[string]int, error) {
	sink, err := backup.Open(ctx, dest, GetCredentialsFile())
	if err != nil {
		return nil, err
	}
	return backup.Save(ctx, s, sink, orgID, collections)
}

func init() {
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(repairCmd)

	auditCmd.Flags().Bool("auth", false, "Resolve user IDs through Firebase Auth")

	repairCmd.Flags().Bool("auth", false, "Resolve user IDs through Firebase Auth")
	repairCmd.Flags().Bool("apply", false, "Write the planned changes")
	repairCmd.Flags().Bool("force", false, "Skip confirmation prompt")
	repairCmd.Flags().String("backup", "", "Export members and licenses here before writing (path or gs://bucket/object)")
	repairCmd.Flags().String("tier", "", "Tier for seeded placeholder licenses")
}
