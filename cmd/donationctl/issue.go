package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"treasury/internal/app"
	"treasury/internal/donation"
)

func issueCmd() *cobra.Command {
	var (
		requester string
		minimum   string
		referral  string
		params    donation.IssueParams
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a donation request and print its payment instructions",
		RunE: func(cmd *cobra.Command, args []string) error {
			params.RequesterID = requester
			params.ReferralAttribution = referral
			if minimum != "" {
				amount, err := decimal.NewFromString(minimum)
				if err != nil {
					return fmt.Errorf("--minimum: %w", err)
				}
				params.MinimumAmount = amount
			}
			return withServices(cmd, func(ctx context.Context, s *app.Services) error {
				req, err := s.Issuer.Issue(ctx, params)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if wantJSON(cmd) {
					return printJSON(out, map[string]any{
						"correlation_token": req.CorrelationToken,
						"destination":       s.Config.Ledger.TreasuryAddress,
						"asset":             s.Config.Ledger.MonitoredAsset,
						"minimum_amount":    req.MinimumAmount.String(),
						"referral":          req.ReferralAttribution,
						"expires_at":        req.ExpiresAt,
					})
				}
				fmt.Fprintf(out, "Send at least %s %s to %s\n", req.MinimumAmount, s.Config.Ledger.MonitoredAsset, s.Config.Ledger.TreasuryAddress)
				fmt.Fprintf(out, "Memo:       %s\n", req.CorrelationToken)
				fmt.Fprintf(out, "Expires at: %s\n", req.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
				if req.ReferralAttribution != "" {
					fmt.Fprintf(out, "Referral:   %s\n", req.ReferralAttribution)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&requester, "requester", "r", "", "Requester id (required)")
	cmd.Flags().StringVarP(&minimum, "minimum", "m", "", "Minimum amount (defaults to DEFAULT_MINIMUM_AMOUNT)")
	cmd.Flags().StringVar(&referral, "referral", "", "Referring party, e.g. refer-pan")
	cmd.Flags().DurationVar(&params.TTL, "ttl", 0, "Request lifetime (defaults to REQUEST_TTL)")
	_ = cmd.MarkFlagRequired("requester")

	return cmd
}
