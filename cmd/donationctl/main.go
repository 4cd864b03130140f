package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"treasury/internal/app"
	"treasury/internal/infra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "donationctl",
		Short:         "Operate the donation verification and referral payout engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(issueCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(payoutsCmd())
	rootCmd.AddCommand(migrateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withServices loads configuration, opens the store and runs fn.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, s *app.Services) error) error {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if level == "" {
		level = "warn"
	}
	logger := infra.NewLogger(cfg.AppEnv, level).With().Str("service", "donationctl").Logger()

	services, err := app.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer services.Close()
	return fn(cmd.Context(), services)
}

func wantJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
