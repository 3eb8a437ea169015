package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/pipeline"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/stores"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/notify"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/progress"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/resilience"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

// run is one indexing session: the opened stores, the controller writing to
// them and everything it reports to.
type run struct {
	id       string
	cfg      *config.Config
	stores   *stores.Set
	ctrl     *pipeline.Controller
	reporter pipeline.Reporter
	closers  []func(context.Context) error
}

func openRun(ctx context.Context) (*run, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	r := &run{id: ulid.Make().String(), cfg: cfg}
	logger.WithRun(r.id)

	m := metrics.New(prometheus.NewRegistry())
	set, err := stores.Open(ctx, cfg, m)
	if err != nil {
		return nil, err
	}
	r.stores = set
	r.closers = append(r.closers, func(context.Context) error { return set.Close() })

	checker := health.NewChecker()
	set.Register(checker)

	var hooks []pipeline.Hook
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			r.close(ctx)
			return nil, fmt.Errorf("connecting ledger: %w", err)
		}
		checker.Register("postgres", pg.Ping)
		hooks = append(hooks, ledger.New(pg, r.id))
		r.closers = append(r.closers, func(context.Context) error { return pg.Close() })
	}
	if cfg.Kafka.Notify {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		hooks = append(hooks, notify.NewKafkaNotifier(producer, r.id, resilience.RetryConfig{}))
		r.closers = append(r.closers, func(context.Context) error { return producer.Close() })
	}
	if cfg.Metrics.Enabled {
		shutdown, err := metrics.StartServer(cfg.Metrics.Port, m, checker)
		if err != nil {
			r.close(ctx)
			return nil, err
		}
		r.closers = append(r.closers, shutdown)
	}

	r.reporter = progress.NewReporter()
	r.ctrl = pipeline.New(set.Pipeline(), pipeline.Config{
		MaxCorpusFileSize: cfg.Indexer.MaxCorpusFileSize,
		TexStrict:         cfg.Indexer.TexStrict,
		SettleTimeout:     cfg.Indexer.MaintenanceSettleTimeout,
	}, pipeline.Deps{
		Metrics:  m,
		Reporter: r.reporter,
		Hooks:    hooks,
	})

	slog.Info("indexing run started",
		"data_dir", cfg.Indexer.DataDir,
		"blob_backend", cfg.Blob.Backend,
		"last_doc_id", r.ctrl.LastDocID(),
	)
	return r, nil
}

// close settles the controller and releases everything in reverse order.
// It runs on a fresh context so a cancelled run still flushes.
func (r *run) close(context.Context) error {
	ctx := context.Background()
	var err error
	if r.ctrl != nil {
		if cErr := r.ctrl.Close(ctx); cErr != nil {
			err = multierror.Append(err, cErr)
		}
	}
	if f, ok := r.reporter.(interface{ Finish() }); ok {
		f.Finish()
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		if cErr := r.closers[i](ctx); cErr != nil {
			err = multierror.Append(err, cErr)
		}
	}
	if r.ctrl != nil {
		slog.Info("indexing run finished", "last_doc_id", r.ctrl.LastDocID())
	}
	return err
}
