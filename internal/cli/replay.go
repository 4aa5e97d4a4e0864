package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newReplayCommand re-enqueues routed leads with no successful delivery,
// handing them back to the delivery workers as if freshly routed. It does
// not reset attempt counts: a replayed lead's next attempt is numbered after
// its existing ones, so a lead already at max attempts gets one more attempt
// and is not re-enqueued again if that attempt fails.
func newReplayCommand(opts *RootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "re-enqueue routed leads with no successful delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			d, closeAll, err := openDeps(ctx, !dryRun)
			if err != nil {
				return err
			}
			defer closeAll()

			leads, err := d.store.RoutedLeadsWithoutSuccessfulDelivery(ctx, opts.Limit)
			if err != nil {
				return fmt.Errorf("query undelivered leads: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(leads) == 0 {
				fmt.Fprintln(out, "nothing to replay")
				return nil
			}

			for _, l := range leads {
				if dryRun {
					fmt.Fprintf(out, "would replay lead=%d\n", l.ID)
					continue
				}
				if _, err := d.queue.Enqueue(ctx, l.ID); err != nil {
					return fmt.Errorf("enqueue lead %d: %w", l.ID, err)
				}
				fmt.Fprintf(out, "replayed lead=%d\n", l.ID)
			}
			fmt.Fprintf(out, "%d lead(s) processed\n", len(leads))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list leads that would be replayed without enqueueing them")

	return cmd
}
