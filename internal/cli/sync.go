package cli

import (
	"context"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/tillq/api/controllers"
)

// NewSyncCommand drains the queue now.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "sync",
		Short:        "Replay every pending operation now",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Timeout)
			defer cancel()

			var res controllers.SyncResultDTO
			if _, err := newAPIClient(rootOpts).do(ctx, http.MethodPost, "/v1/sync", nil, &res); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return writeJSON(out, res)
			}
			writef(out, "synced: %d succeeded, %d failed, %d deferred (%s)\n", res.Succeeded, res.Failed, res.Deferred, res.State)
			for _, f := range res.Failures {
				writef(out, "  %s %s %s: %s\n", f.OperationID, f.Action, f.Resource, f.Error)
			}
			return nil
		},
	}
}
