package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seatwise/seatctl/internal/model"
	"github.com/seatwise/seatctl/internal/reconcile"
)

// Report summarizes an organization's seats.
type Report struct {
	OrganizationID string            `json:"organizationId"`
	Name           string            `json:"name"`
	Seats          int               `json:"seats"`
	Licenses       LicenseCounts     `json:"licenses"`
	Members        MemberCounts      `json:"members"`
	Documents      map[string]int    `json:"documents"`
	Issues         []reconcile.Issue `json:"issues"`
}

type LicenseCounts struct {
	Total     int `json:"total"`
	Assigned  int `json:"assigned"`
	Available int `json:"available"`
	Revoked   int `json:"revoked"`
}

type MemberCounts struct {
	Total      int `json:"total"`
	Active     int `json:"active"`
	Licensed   int `json:"licensed"`
	Unlicensed int `json:"unlicensed"`
}

func buildReport(snap *model.Snapshot, plan *reconcile.Plan) Report {
	r := Report{
		OrganizationID: snap.Organization.ID,
		Name:           snap.Organization.Name,
		Seats:          snap.Seats(),
		Documents:      snap.Counts,
		Issues:         plan.Issues,
	}

	holders := make(map[string]bool)
	for _, l := range snap.Licenses {
		r.Licenses.Total++
		switch {
		case l.Revoked():
			r.Licenses.Revoked++
		case l.Held():
			r.Licenses.Assigned++
			holders[l.AssignedTo] = true
		default:
			r.Licenses.Available++
		}
	}
	for _, m := range snap.Members {
		r.Members.Total++
		if !m.Active() {
			continue
		}
		r.Members.Active++
		if holders[m.ID] {
			r.Members.Licensed++
		} else {
			r.Members.Unlicensed++
		}
	}
	if r.Issues == nil {
		r.Issues = []reconcile.Issue{}
	}
	return r
}

var reportCmd = &cobra.Command{
	Use:   "report [org-id]",
	Short: "Print a seat and license report for an organization",
	Long: `Print seats, license usage, member counts, related document counts and
detected issues for an organization.

Examples:
  seatctl report org_abc123
  seatctl report org_abc123 --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		asJSON, _ := cmd.Flags().GetBool("json")

		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		snap, plan, err := planRepair(ctx, s, args[0], false, "")
		if err != nil {
			return err
		}
		r := buildReport(snap, plan)

		if asJSON {
			output, _ := json.MarshalIndent(r, "", "  ")
			fmt.Println(string(output))
			return nil
		}

		name := r.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("Organization: %s (%s)\n", name, r.OrganizationID)
		if r.Seats > 0 {
			fmt.Printf("Seats:        %d\n", r.Seats)
		} else {
			fmt.Println("Seats:        unknown")
		}
		fmt.Println()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "LICENSES\tTOTAL\tASSIGNED\tAVAILABLE\tREVOKED")
		fmt.Fprintf(w, "\t%d\t%d\t%d\t%d\n", r.Licenses.Total, r.Licenses.Assigned, r.Licenses.Available, r.Licenses.Revoked)
		fmt.Fprintln(w, "MEMBERS\tTOTAL\tACTIVE\tLICENSED\tUNLICENSED")
		fmt.Fprintf(w, "\t%d\t%d\t%d\t%d\n", r.Members.Total, r.Members.Active, r.Members.Licensed, r.Members.Unlicensed)
		w.Flush()

		if len(r.Documents) > 0 {
			fmt.Println()
			cols := make([]string, 0, len(r.Documents))
			for c := range r.Documents {
				cols = append(cols, c)
			}
			sort.Strings(cols)
			for _, c := range cols {
				fmt.Printf("%-14s %d\n", c+":", r.Documents[c])
			}
		}

		fmt.Println()
		if len(r.Issues) == 0 {
			fmt.Println("✓ No issues found")
			return nil
		}
		fmt.Printf("%d issues (run 'seatctl repair %s' to see the fix):\n", len(r.Issues), r.OrganizationID)
		printIssues(r.Issues)
		return nil
	},
}

var orgsCmd = &cobra.Command{
	Use:     "orgs",
	Aliases: []string{"org", "o"},
	Short:   "Inspect organizations",
}

var orgsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all organizations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		orgs, err := s.Organizations(ctx)
		if err != nil {
			return err
		}
		if len(orgs) == 0 {
			fmt.Println("No organizations found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tOWNER\tSEATS")
		for _, o := range orgs {
			seats := "-"
			if o.Seats > 0 {
				seats = fmt.Sprint(o.Seats)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.ID, o.Name, o.OwnerID, seats)
		}
		w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(orgsCmd)
	orgsCmd.AddCommand(orgsListCmd)

	reportCmd.Flags().Bool("json", false, "Print the report as JSON")
}
