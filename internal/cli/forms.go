package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var formsCmd = &cobra.Command{
	Use:   "forms",
	Short: "Manage registered forms",
}

var formsRegisterCmd = &cobra.Command{
	Use:   "register <uid>",
	Short: "Register an upstream form so it is synced",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			form, err := a.forms.Register(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), form)
		})
	},
}

var formsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered forms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			forms, err := a.forms.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "UID\tSLUG\tTITLE\tLAST SYNCED")
			for _, f := range forms {
				synced := "never"
				if f.LastSyncedAt != nil {
					synced = f.LastSyncedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.UID, f.Slug, f.Title, synced)
			}
			return tw.Flush()
		})
	},
}

var formsDiscoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List survey assets visible to the upstream token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			assets, err := a.kobo.ListAssets(cmd.Context())
			if err != nil {
				return err
			}
			registered, err := a.forms.List(cmd.Context())
			if err != nil {
				return err
			}
			known := make(map[string]bool, len(registered))
			for _, f := range registered {
				known[f.UID] = true
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "UID\tNAME\tDEPLOYED\tSUBMISSIONS\tREGISTERED")
			for _, as := range assets {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%t\n", as.UID, as.Name, as.DeploymentActive, as.SubmissionCount, known[as.UID])
			}
			return tw.Flush()
		})
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema <form>",
	Short: "Print the fields of a registered form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			fields, err := a.forms.Fields(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), fields)
		})
	},
}

func init() {
	formsCmd.AddCommand(formsRegisterCmd, formsListCmd, formsDiscoverCmd)
	rootCmd.AddCommand(formsCmd, schemaCmd)
}
