package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/kafka"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Index corpus documents from the Kafka corpus topic until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runConsume,
}

func init() {
	rootCmd.AddCommand(consumeCmd)
}

func runConsume(cmd *cobra.Command, args []string) (err error) {
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

	topic := r.cfg.Kafka.Topics.Corpus
	c := kafka.NewConsumer(r.cfg.Kafka, topic, consumer.HandleMessage(r.ctrl))
	slog.Info("consuming corpus topic", "topic", topic, "group", r.cfg.Kafka.ConsumerGroup)
	return c.Start(ctx)
}
