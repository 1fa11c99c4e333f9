// lookupctl is the administrative CLI for the lookup service.
//
// Usage:
//
//	lookupctl balance get --user-key 558812734
//	lookupctl balance add --user-key 558812734 --amount 50 --token promo-aug
//	lookupctl users list --limit 20
//	lookupctl audit tail --user-key 558812734
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/lookupd/lookupd/internal/ledger"
	"github.com/lookupd/lookupd/internal/metrics"
	"github.com/lookupd/lookupd/internal/repository"
)

var (
	databaseURL string
	verbose     bool

	repo   *repository.Repository
	logger *slog.Logger
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "lookupctl",
		Short:         "Administrative CLI for the lookup service",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			if cmd.Name() == "help" {
				return nil
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			var err error
			repo, err = repository.New(ctx, databaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if repo != nil {
				repo.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url",
		os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(balanceCmd())
	rootCmd.AddCommand(usersCmd())
	rootCmd.AddCommand(auditCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// balanceCmd creates the balance command group.
func balanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Credit balance operations",
	}

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Show a user's credits",
		RunE: func(cmd *cobra.Command, args []string) error {
			userKey, _ := cmd.Flags().GetString("user-key")

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			led := ledger.New(repo, 1, logger, metrics.NewNoop())
			balance, freeUses, err := led.Balance(ctx, userKey)
			if err != nil {
				return fmt.Errorf("get balance: %w", err)
			}

			printJSON(map[string]any{
				"user_key":  userKey,
				"balance":   balance,
				"free_uses": freeUses,
			})
			return nil
		},
	}
	getCmd.Flags().String("user-key", "", "User key (required)")
	getCmd.MarkFlagRequired("user-key")

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Credit a user's balance",
		Long: `Credits a user's paid balance. The token makes the operation
replay-safe: running the same token twice applies the credit once.
Without an explicit token a fresh one is generated, which always applies.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			userKey, _ := cmd.Flags().GetString("user-key")
			amount, _ := cmd.Flags().GetInt64("amount")
			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				token = "cli:" + ulid.Make().String()
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			led := ledger.New(repo, 1, logger, metrics.NewNoop())
			applied, err := led.Credit(ctx, userKey, amount, token)
			if err != nil {
				return fmt.Errorf("credit: %w", err)
			}

			printJSON(map[string]any{
				"user_key": userKey,
				"amount":   amount,
				"token":    token,
				"applied":  applied,
			})
			return nil
		},
	}
	addCmd.Flags().String("user-key", "", "User key (required)")
	addCmd.Flags().Int64("amount", 0, "Credits to add (required)")
	addCmd.Flags().String("token", "", "Idempotency token")
	addCmd.MarkFlagRequired("user-key")
	addCmd.MarkFlagRequired("amount")

	cmd.AddCommand(getCmd, addCmd)
	return cmd
}

// usersCmd creates the users command group.
func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "User account operations",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List newest accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			users, err := repo.ListUsers(ctx, limit)
			if err != nil {
				return fmt.Errorf("list users: %w", err)
			}
			printJSON(users)
			return nil
		},
	}
	listCmd.Flags().Int("limit", 20, "Max accounts to show")

	cmd.AddCommand(listCmd)
	return cmd
}

// auditCmd creates the audit command group.
func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit log operations",
	}

	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Show a user's newest audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			userKey, _ := cmd.Flags().GetString("user-key")
			limit, _ := cmd.Flags().GetInt("limit")

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			records, err := repo.RecentAuditRecords(ctx, userKey, limit)
			if err != nil {
				return fmt.Errorf("read audit log: %w", err)
			}
			printJSON(records)
			return nil
		},
	}
	tailCmd.Flags().String("user-key", "", "User key (required)")
	tailCmd.Flags().Int("limit", 20, "Max entries to show")
	tailCmd.MarkFlagRequired("user-key")

	cmd.AddCommand(tailCmd)
	return cmd
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal output: %v\n", err)
		return
	}
	fmt.Println(string(out))
}
