package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"treasury/internal/app"
	"treasury/internal/domain"
)

func payoutsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payouts",
		Short: "Inspect and remediate referral payouts",
	}
	cmd.AddCommand(payoutsListCmd())
	cmd.AddCommand(payoutsRetryCmd())
	return cmd
}

func payoutsListCmd() *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List referral payouts",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := domain.PayoutStatus(strings.ToUpper(strings.TrimSpace(status)))
			switch filter {
			case "", domain.PayoutStatusPending, domain.PayoutStatusSent, domain.PayoutStatusFailed, domain.PayoutStatusSkipped:
			default:
				return fmt.Errorf("unknown status %q", status)
			}
			return withServices(cmd, func(ctx context.Context, s *app.Services) error {
				payouts, err := s.Store.ListPayouts(ctx, filter, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if wantJSON(cmd) {
					return printJSON(out, payouts)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTOKEN\tPAYEE\tAMOUNT\tSTATUS\tATTEMPTS\tLEDGER TX\tLAST ERROR")
				for _, p := range payouts {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
						p.ID, p.CorrelationToken, p.Payee, p.Amount, p.Status, p.Attempts, p.LedgerTxID, p.LastError)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status (PENDING, SENT, FAILED, SKIPPED)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum results")
	return cmd
}

func payoutsRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry [payout-id]",
		Short: "Resubmit a FAILED payout now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, s *app.Services) error {
				payout, err := s.Dispatcher(s.Submitter()).Retry(ctx, args[0])
				if payout != nil {
					if wantJSON(cmd) {
						if perr := printJSON(cmd.OutOrStdout(), payout); perr != nil {
							return perr
						}
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "Payout %s: %s after %d attempts %s\n",
							payout.ID, payout.Status, payout.Attempts, payout.LedgerTxID)
					}
				}
				return err
			})
		},
	}
}
