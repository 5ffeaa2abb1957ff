package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seatwise/seatctl/internal/migrate"
	"github.com/seatwise/seatctl/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate document fields",
	Long: `Rewrite fields across a collection.

Every migration scans the collection (or one organization's documents with
--org), prints the planned writes and only writes with --apply.`,
}

var migrateRenameCmd = &cobra.Command{
	Use:   "rename-field",
	Short: "Rename a field",
	Long: `Move a field's value to a new name and delete the old field.

Documents that already have both fields with different values are reported
and left alone.

Examples:
  seatctl migrate rename-field --collection licenses --from memberId --to assignedTo`,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		if from == "" || to == "" {
			return fmt.Errorf("--from and --to are required")
		}
		if from == to {
			return fmt.Errorf("--from and --to must differ")
		}
		return runMigration(cmd, migrate.RenameField{From: from, To: to})
	},
}

var migrateDefaultCmd = &cobra.Command{
	Use:   "set-default",
	Short: "Set a field where it is missing",
	Long: `Set a field on every document that lacks it.

Values are parsed as booleans, numbers or null; wrap in single quotes to keep
a string.

Examples:
  seatctl migrate set-default --collection teamMembers --field status --value active
  seatctl migrate set-default --collection licenses --field placeholder --value false`,
	RunE: func(cmd *cobra.Command, args []string) error {
		field, _ := cmd.Flags().GetString("field")
		value, _ := cmd.Flags().GetString("value")
		if field == "" {
			return fmt.Errorf("--field is required")
		}
		return runMigration(cmd, migrate.SetDefault{Field: field, Value: migrate.ParseValue(value)})
	},
}

var migrateEmailsCmd = &cobra.Command{
	Use:   "normalize-emails",
	Short: "Lower-case and trim an email field",
	Long: `Lower-case and trim an email field.

Examples:
  seatctl migrate normalize-emails --collection teamMembers
  seatctl migrate normalize-emails --collection licenses --field assignedEmail --org org_abc123`,
	RunE: func(cmd *cobra.Command, args []string) error {
		field, _ := cmd.Flags().GetString("field")
		return runMigration(cmd, migrate.NormalizeEmails{Field: field})
	},
}

func runMigration(cmd *cobra.Command, m migrate.Migration) error {
	ctx := cmd.Context()
	collection, _ := cmd.Flags().GetString("collection")
	orgID, _ := cmd.Flags().GetString("org")
	apply, _ := cmd.Flags().GetBool("apply")
	force, _ := cmd.Flags().GetBool("force")

	if collection == "" {
		return fmt.Errorf("--collection is required")
	}

	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	var docs []store.Doc
	err = s.Scan(ctx, collection, orgID, func(d store.Doc) error {
		docs = append(docs, d)
		return nil
	})
	if err != nil {
		return err
	}

	plan := migrate.Run(m, docs)
	fmt.Printf("%s: scanned %d %s documents\n", m.Name(), plan.Scanned, collection)
	for _, c := range plan.Conflicts {
		fmt.Printf("  conflict %s/%s: %s\n", collection, c.DocID, c.Reason)
	}
	printMutations(plan.Mutations)
	return applyPlan(ctx, s, plan.Mutations, apply, force)
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateRenameCmd)
	migrateCmd.AddCommand(migrateDefaultCmd)
	migrateCmd.AddCommand(migrateEmailsCmd)

	for _, c := range []*cobra.Command{migrateRenameCmd, migrateDefaultCmd, migrateEmailsCmd} {
		c.Flags().String("collection", "", "Collection to migrate (required)")
		c.Flags().String("org", "", "Only migrate this organization's documents")
		c.Flags().Bool("apply", false, "Write the planned changes")
		c.Flags().Bool("force", false, "Skip confirmation prompt")
	}
	migrateRenameCmd.Flags().String("from", "", "Current field name")
	migrateRenameCmd.Flags().String("to", "", "New field name")
	migrateDefaultCmd.Flags().String("field", "", "Field to set")
	migrateDefaultCmd.Flags().String("value", "", "Value to set")
	migrateEmailsCmd.Flags().String("field", "email", "Email field")
}
