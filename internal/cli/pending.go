package cli

import (
	"context"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/tillq/api/controllers"
)

// NewPendingCommand lists queued operations.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "pending",
		Short:        "List operations waiting to be replayed",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Timeout)
			defer cancel()

			var ops []controllers.OperationDTO
			meta, err := newAPIClient(rootOpts).do(ctx, http.MethodGet, "/v1/operations", nil, &ops)
			if err != nil {
				return err
			}
			count := int64(len(ops))
			if meta != nil {
				count = meta.Count
			}

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return writeJSON(out, map[string]any{"count": count, "operations": ops})
			}
			writef(out, "%d pending operation(s)\n", count)
			if count == 0 {
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			writef(tw, "ID\tACTION\tRESOURCE\tRECORD\tATTEMPTS\tAGE\tLAST ERROR\n")
			for _, op := range ops {
				lastErr := ""
				if op.LastError != nil {
					lastErr = *op.LastError
				}
				writef(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					op.ID, op.Action, op.Resource, op.RecordID, op.AttemptCount,
					time.Since(op.CreatedAt).Round(time.Second), lastErr)
			}
			return tw.Flush()
		},
	}
}
