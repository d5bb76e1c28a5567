// Package cmd defines the CLI commands of the batch-crawler executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root command and attaches its subcommands.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch-crawler",
		Short: "Crawl every page listed in a set of sitemaps, a few at a time.",
		Long: `batch-crawler collects page URLs from sitemap files, then renders them in
fixed-size concurrent batches through a headless browser or a plain HTTP client,
logging process memory before and after every batch.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "path to a YAML/JSON/TOML config file")
	cmd.AddCommand(newCrawlCmd())
	return cmd
}

// Execute runs the CLI until completion or until SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
