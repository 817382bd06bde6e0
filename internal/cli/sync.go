package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/parisxmas/kobodash/internal/models"
	"github.com/parisxmas/kobodash/internal/service"
)

var (
	syncFull bool
	syncAll  bool
)

var syncCmd = &cobra.Command{
	Use:   "sync [form]",
	Short: "Pull submissions for one registered form, or all of them with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncAll == (len(args) == 1) {
			return errors.New("give a form uid or slug, or --all")
		}
		kind := models.SyncIncremental
		if syncFull {
			kind = models.SyncFull
		}
		req := service.SyncRequest{Kind: string(kind), All: syncAll}
		if len(args) == 1 {
			req.FormUID = args[0]
		}

		return withApp(func(a *app) error {
			logs, err := a.sync.Trigger(cmd.Context(), req)
			if perr := printJSON(cmd.OutOrStdout(), logs); perr != nil {
				return perr
			}
			return err
		})
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "re-fetch every submission and rebuild the schema")
	syncCmd.Flags().BoolVar(&syncAll, "all", false, "sync every registered form")
	rootCmd.AddCommand(syncCmd)
}
