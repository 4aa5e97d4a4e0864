package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVerifyCommand reports leads the router marked routed but that never
// picked up a successful delivery attempt, the set replay acts on.
func newVerifyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "list routed leads with no successful delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			d, closeAll, err := openDeps(ctx, false)
			if err != nil {
				return err
			}
			defer closeAll()

			leads, err := d.store.RoutedLeadsWithoutSuccessfulDelivery(ctx, opts.Limit)
			if err != nil {
				return fmt.Errorf("query undelivered leads: %w", err)
			}

			if len(leads) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no routed leads are missing a successful delivery")
				return nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d routed lead(s) without a successful delivery:\n", len(leads))
			for _, l := range leads {
				attempts, err := d.store.DeliveryAttemptCount(ctx, l.ID)
				if err != nil {
					return fmt.Errorf("count attempts for lead %d: %w", l.ID, err)
				}
				buyerID := "none"
				if l.BuyerID != nil {
					buyerID = fmt.Sprintf("%d", *l.BuyerID)
				}
				fmt.Fprintf(out, "  lead=%d offer=%d buyer=%s attempts=%d routed_at=%v\n",
					l.ID, l.OfferID, buyerID, attempts, l.RoutedAt)
			}
			return nil
		},
	}
}
