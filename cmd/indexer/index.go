package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/corpus"
)

var indexCmd = &cobra.Command{
	Use:   "index <corpus-dir>",
	Short: "Index every matching JSON file under a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().String("pattern", "", "override indexer.corpusPattern")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := openRun(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := r.close(ctx); cErr != nil {
			err = multierror.Append(err, cErr)
		}
	}()

	pattern, _ := cmd.Flags().GetString("pattern")
	if pattern == "" {
		pattern = r.cfg.Indexer.CorpusPattern
	}
	stats, err := corpus.IndexDir(ctx, args[0], pattern, r.ctrl)
	slog.Info("corpus indexed",
		"matched", stats.Matched,
		"indexed", stats.Indexed,
		"rejected", stats.Rejected,
	)
	return err
}
