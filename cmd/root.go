// Package cmd defines and implements the CLI commands for the crawler
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawler",
		Short: "A catalog crawler that mirrors a webshop's products into Postgres.",
		Long: `crawler walks a webshop's category tree, pages through every leaf
category's product listings, extracts the products, deduplicates them
across the whole run, and upserts the unique ones into a relational
store.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults plus CRAWLER_* env vars)")
	cmd.AddCommand(newCrawlCmd())

	return cmd
}

// Execute is the main entry point. A fatal run maps to a non-zero
// process exit; an interrupted run drains in-flight work first.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
