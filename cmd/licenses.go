package cmd

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seatwise/seatctl/internal/model"
	"github.com/seatwise/seatctl/internal/seats"
)

var licensesCmd = &cobra.Command{
	Use:     "licenses",
	Aliases: []string{"license", "lic", "l"},
	Short:   "Manage license assignments",
	Long: `Assign, release and move licenses between team members.

These commands run in a database transaction and write immediately. An active
member never ends up with more than one license.`,
}

var licensesListCmd = &cobra.Command{
	Use:   "list [org-id]",
	Short: "List an organization's licenses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		snap, err := s.Load(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to load organization: %w", err)
		}
		if len(snap.Licenses) == 0 {
			fmt.Println("No licenses found")
			return nil
		}

		emails := make(map[string]string, len(snap.Members))
		for _, m := range snap.Members {
			emails[m.ID] = m.Email
		}
		licenses := append([]model.License(nil), snap.Licenses...)
		sort.Slice(licenses, func(i, j int) bool { return licenses[i].ID < licenses[j].ID })

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tTIER\tASSIGNED TO")
		for _, l := range licenses {
			holder := "-"
			if l.Held() {
				holder = emails[l.AssignedTo]
				if holder == "" {
					holder = l.AssignedTo + " (missing)"
				}
			}
			status := l.Status
			if status == "" {
				status = "?"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.ID, status, l.Tier, holder)
		}
		w.Flush()
		return nil
	},
}

var licensesAssignCmd = &cobra.Command{
	Use:   "assign [org-id] [email]",
	Short: "Give a team member an available license",
	Long: `Give a team member the first available license.

Examples:
  seatctl licenses assign org_abc123 jane@example.com`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		a, err := seats.NewService(s).Assign(ctx, args[0], args[1])
		if errors.Is(err, seats.ErrAlreadyLicensed) {
			fmt.Printf("%s already holds license %s\n", a.Email, a.LicenseID)
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Printf("✓ License %s assigned to %s\n", a.LicenseID, a.Email)
		return nil
	},
}

var licensesReleaseCmd = &cobra.Command{
	Use:   "release [org-id] [email]",
	Short: "Return a team member's license to the pool",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		force, _ := cmd.Flags().GetBool("force")

		if !confirm(fmt.Sprintf("Release the license held by %s?", args[1]), force) {
			fmt.Println("Cancelled")
			return nil
		}

		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		released, err := seats.NewService(s).Release(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		for _, a := range released {
			fmt.Printf("✓ License %s released from %s\n", a.LicenseID, a.Email)
		}
		return nil
	},
}

var licensesReassignCmd = &cobra.Command{
	Use:   "reassign [org-id] [from-email] [to-email]",
	Short: "Move a license from one team member to another",
	Long: `Move the license held by one member to another member in a single
transaction. The target must be active and hold no license.

Examples:
  seatctl licenses reassign org_abc123 old@example.com new@example.com`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		a, err := seats.NewService(s).Reassign(ctx, args[0], args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("✓ License %s moved from %s to %s\n", a.LicenseID, args[1], a.Email)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(licensesCmd)
	licensesCmd.AddCommand(licensesListCmd)
	licensesCmd.AddCommand(licensesAssignCmd)
	licensesCmd.AddCommand(licensesReleaseCmd)
	licensesCmd.AddCommand(licensesReassignCmd)

	licensesReleaseCmd.Flags().Bool("force", false, "Skip confirmation prompt")
}
