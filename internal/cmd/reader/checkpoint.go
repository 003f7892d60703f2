package reader

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newCheckpointCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "checkpoint", Short: "Inspect consumer checkpoints"}
	cmd.AddCommand(newCheckpointListCommand(a), newCheckpointDeleteCommand(a))
	return cmd
}

func newCheckpointListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List consumer checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.rt.Checkpoints()
			if err != nil {
				return err
			}
			entries, err := store.List()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CONSUMER\tPOSITION\tUPDATED\tREPOSITORY")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					e.Consumer,
					time.Unix(0, e.Position.ChunkEndNanos).UTC().Format(time.RFC3339Nano),
					e.Position.UpdatedAt.UTC().Format(time.RFC3339),
					e.Position.Repository)
			}
			return tw.Flush()
		},
	}
}

func newCheckpointDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <consumer>",
		Short: "Delete the checkpoint of a consumer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.rt.Checkpoints()
			if err != nil {
				return err
			}
			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("deleted"), args[0])
			return nil
		},
	}
}
