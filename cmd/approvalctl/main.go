// Command approvalctl is the operator CLI of the approval service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-approvals/cmd/approvalctl/cli"
	"github.com/odyssey-erp/odyssey-approvals/internal/app"
	"github.com/odyssey-erp/odyssey-approvals/internal/approval"
	"github.com/odyssey-erp/odyssey-approvals/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-approvals/internal/platform/db"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "approvalctl",
		Short:         "Operate the sales document approval engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(configCmd(), jobsCmd())
	return cmd
}

func configCmd() *cobra.Command {
	var (
		tenantID int64
		actorID  int64
		docType  string
		file     string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or replace approval level configuration",
	}
	cmd.PersistentFlags().Int64Var(&tenantID, "tenant", 0, "Tenant id")
	cmd.PersistentFlags().StringVar(&docType, "type", string(approval.DocumentTypeSalesOrder), "Document type (SALES_ORDER, SALES_INVOICE, SALES_CREDIT_NOTE)")
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print JSON")
	_ = cmd.MarkPersistentFlagRequired("tenant")

	get := &cobra.Command{
		Use:   "get",
		Short: "Print the level chain of a document type",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfigCLI(cmd.Context(), func(c *cli.ConfigCLI) error {
				return c.Get(cmd.Context(), tenantID, docType, asJSON, cmd.OutOrStdout())
			})
		},
	}
	replace := &cobra.Command{
		Use:   "replace",
		Short: "Atomically replace the level chain from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return withConfigCLI(cmd.Context(), func(c *cli.ConfigCLI) error {
				return c.Replace(cmd.Context(), tenantID, actorID, docType, in, asJSON, cmd.OutOrStdout())
			})
		},
	}
	replace.Flags().StringVarP(&file, "file", "f", "-", "Levels file (YAML), - for stdin")
	replace.Flags().Int64Var(&actorID, "actor", 0, "User id recorded as the editor")
	cmd.AddCommand(get, replace)
	return cmd
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background jobs",
	}
	trigger := &cobra.Command{
		Use:       "trigger <job>",
		Short:     "Enqueue a job now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{cli.JobNamePendingSnapshot, cli.JobNameIdempotencyPurge},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobsCLI(func(c *cli.JobsCLI) error {
				info, err := c.Trigger(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
				return nil
			})
		},
	}
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print default queue statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobsCLI(func(c *cli.JobsCLI) error {
				s, err := c.InspectQueue()
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			})
		},
	}
	cmd.AddCommand(trigger, stats)
	return cmd
}

func withConfigCLI(ctx context.Context, fn func(*cli.ConfigCLI) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg)
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	configCache := approval.NewConfigCache(nil, cfg.ApprovalConfigCacheTTL, logger)
	if client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}); err != nil {
		logger.Warn("redis unavailable, cached configuration expires by ttl", slog.Any("error", err))
	} else {
		defer client.Close()
		configCache = approval.NewConfigCache(client, cfg.ApprovalConfigCacheTTL, logger)
	}
	c, err := cli.NewConfigCLI(approval.NewConfigService(approval.NewRepository(pool), configCache, logger))
	if err != nil {
		return err
	}
	return fn(c)
}

func withJobsCLI(fn func(*cli.JobsCLI) error) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	c := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer c.Close()
	return fn(c)
}
