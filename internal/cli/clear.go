package cli

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
)

// NewClearCommand drops every queued operation. It refuses to run without --yes.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:          "clear",
		Short:        "Discard every pending operation (irreversible)",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("clear discards unsynced changes; rerun with --yes to confirm")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Timeout)
			defer cancel()

			var res struct {
				Removed int64 `json:"removed"`
			}
			if _, err := newAPIClient(rootOpts).do(ctx, http.MethodDelete, "/v1/operations?confirm=true", nil, &res); err != nil {
				return err
			}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			writef(cmd.OutOrStdout(), "removed %d operation(s)\n", res.Removed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm discarding the queue")
	return cmd
}
