package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Call the deployed HTTP API",
	Long: `Call the app's HTTP API with the stored API key.

Useful for checking that the API sees the same state as the database after a
repair.`,
}

// apiRequest sends an authenticated request and decodes a JSON response
// into out when out is non-nil.
func apiRequest(method, path string, query url.Values, body, out interface{}) error {
	apiKey := GetAPIKey()
	if apiKey == "" {
		return fmt.Errorf("not authenticated. Run 'seatctl auth login' first")
	}

	u := GetAPIURL() + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, u, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

var apiMembersCmd = &cobra.Command{
	Use:     "members",
	Aliases: []string{"team-members"},
	Short:   "Team members as the API reports them",
}

var apiMembersListCmd = &cobra.Command{
	Use:   "list [org-id]",
	Short: "List team members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			TeamMembers []struct {
				ID        string `json:"id"`
				Email     string `json:"email"`
				Name      string `json:"name"`
				Role      string `json:"role"`
				Status    string `json:"status"`
				LicenseID string `json:"licenseId"`
			} `json:"teamMembers"`
		}
		err := apiRequest("GET", "/team-members", url.Values{"organizationId": {args[0]}}, nil, &result)
		if err != nil {
			return err
		}

		if len(result.TeamMembers) == 0 {
			fmt.Println("No team members found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEMAIL\tROLE\tSTATUS\tLICENSE")
		for _, m := range result.TeamMembers {
			license := m.LicenseID
			if license == "" {
				license = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.Email, m.Role, m.Status, license)
		}
		w.Flush()
		return nil
	},
}

var apiLicensesCmd = &cobra.Command{
	Use:   "licenses",
	Short: "Licenses as the API reports them",
}

var apiLicensesListCmd = &cobra.Command{
	Use:   "list [org-id]",
	Short: "List licenses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Licenses []struct {
				ID            string `json:"id"`
				Status        string `json:"status"`
				Tier          string `json:"tier"`
				AssignedTo    string `json:"assignedTo"`
				AssignedEmail string `json:"assignedEmail"`
			} `json:"licenses"`
		}
		err := apiRequest("GET", "/licenses", url.Values{"organizationId": {args[0]}}, nil, &result)
		if err != nil {
			return err
		}

		if len(result.Licenses) == 0 {
			fmt.Println("No licenses found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tTIER\tASSIGNED TO")
		for _, l := range result.Licenses {
			holder := l.AssignedEmail
			if holder == "" {
				holder = l.AssignedTo
			}
			if holder == "" {
				holder = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.ID, l.Status, l.Tier, holder)
		}
		w.Flush()
		return nil
	},
}

var apiLicensesAssignCmd = &cobra.Command{
	Use:   "assign [org-id] [email]",
	Short: "Assign a license through the API",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			LicenseID string `json:"licenseId"`
			Email     string `json:"email"`
		}
		err := apiRequest("POST", "/licenses/assign", nil, map[string]interface{}{
			"organizationId": args[0],
			"email":          args[1],
		}, &result)
		if err != nil {
			return err
		}

		fmt.Println("✓ License assigned")
		if result.LicenseID != "" {
			fmt.Printf("License: %s\n", result.LicenseID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(apiCmd)
	apiCmd.AddCommand(apiMembersCmd)
	apiCmd.AddCommand(apiLicensesCmd)
	apiMembersCmd.AddCommand(apiMembersListCmd)
	apiLicensesCmd.AddCommand(apiLicensesListCmd)
	apiLicensesCmd.AddCommand(apiLicensesAssignCmd)
}
