package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"treasury/internal/app"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [token]",
		Short: "Show the state of a donation request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.ToLower(strings.TrimSpace(args[0]))
			return withServices(cmd, func(ctx context.Context, s *app.Services) error {
				req, err := s.Store.GetRequest(ctx, token)
				if err != nil {
					return fmt.Errorf("request %s: %w", token, err)
				}
				out := cmd.OutOrStdout()
				if wantJSON(cmd) {
					return printJSON(out, req)
				}
				fmt.Fprintf(out, "Token:     %s\n", req.CorrelationToken)
				fmt.Fprintf(out, "Requester: %s\n", req.RequesterID)
				fmt.Fprintf(out, "Status:    %s\n", req.Status)
				fmt.Fprintf(out, "Received:  %s / %s\n", req.ReceivedAmount, req.MinimumAmount)
				fmt.Fprintf(out, "Expires:   %s\n", req.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
				if req.CreditedTxID != "" {
					fmt.Fprintf(out, "Credited:  %s\n", req.CreditedTxID)
				}
				if req.ReferralAttribution != "" {
					fmt.Fprintf(out, "Referral:  %s\n", req.ReferralAttribution)
				}
				return nil
			})
		},
	}
}
