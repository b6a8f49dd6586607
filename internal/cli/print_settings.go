package cli

import (
	"context"
	"net/http"

	"github.com/spf13/cobra"
)

type printSettings struct {
	IsPrintServer bool   `json:"is_print_server"`
	UsePrintQueue bool   `json:"use_print_queue"`
	Route         string `json:"route,omitempty"`
}

// NewPrintSettingsCommand shows the routing flags, or updates them when either
// flag is passed.
func NewPrintSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	var server, useQueue bool
	cmd := &cobra.Command{
		Use:          "print-settings",
		Short:        "Show or change print routing flags",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Timeout)
			defer cancel()
			client := newAPIClient(rootOpts)

			var current printSettings
			if _, err := client.do(ctx, http.MethodGet, "/v1/print/settings", nil, &current); err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("server") || flags.Changed("queue") {
				next := printSettings{IsPrintServer: current.IsPrintServer, UsePrintQueue: current.UsePrintQueue}
				if flags.Changed("server") {
					next.IsPrintServer = server
				}
				if flags.Changed("queue") {
					next.UsePrintQueue = useQueue
				}
				body := map[string]bool{"is_print_server": next.IsPrintServer, "use_print_queue": next.UsePrintQueue}
				if _, err := client.do(ctx, http.MethodPut, "/v1/print/settings", body, &current); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return writeJSON(out, current)
			}
			writef(out, "print server: %t\nuse print queue: %t\nroute: %s\n", current.IsPrintServer, current.UsePrintQueue, current.Route)
			return nil
		},
	}
	cmd.Flags().BoolVar(&server, "server", false, "mark this device as the print server")
	cmd.Flags().BoolVar(&useQueue, "queue", false, "send tickets through the shared print queue")
	return cmd
}
