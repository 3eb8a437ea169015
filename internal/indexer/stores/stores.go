// Package stores opens every backing store of the indexing pipeline from
// configuration and closes them together.
package stores

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/blob"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/mathindex"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/offsetmap"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/pipeline"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/termindex"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/resilience"
)

// File names under indexer.dataDir.
const (
	TermDir     = "terms"
	MathFile    = "math.db"
	OffsetsFile = "offsets.db"
	URLBlobFile = "url.db"
	TextFile    = "text.db"
)

// Set is the collection of opened stores.
type Set struct {
	Terms   *termindex.TermIndex
	Math    *mathindex.Store
	Offsets *offsetmap.Store
	URLs    blob.Index
	Texts   blob.Index

	redis *redis.Client
}

// Open opens all stores concurrently. If any of them fails, the ones that
// did open are closed again.
func Open(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*Set, error) {
	dir := cfg.Indexer.DataDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	s := &Set{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := termindex.Open(termindex.Config{
			DataDir:                filepath.Join(dir, TermDir),
			SegmentMaxSize:         cfg.Indexer.SegmentMaxSize,
			MaxSegmentsBeforeMerge: cfg.Indexer.MaxSegmentsBeforeMerge,
		}, m)
		if err != nil {
			return fmt.Errorf("opening term index: %w", err)
		}
		s.Terms = t
		return nil
	})
	g.Go(func() error {
		st, err := mathindex.Open(gctx, filepath.Join(dir, MathFile))
		if err != nil {
			return fmt.Errorf("opening math index: %w", err)
		}
		s.Math = st
		return nil
	})
	g.Go(func() error {
		st, err := offsetmap.Open(filepath.Join(dir, OffsetsFile))
		if err != nil {
			return fmt.Errorf("opening offset map: %w", err)
		}
		s.Offsets = st
		return nil
	})
	g.Go(func() error {
		return s.openBlobs(gctx, cfg)
	})

	err := g.Wait()
	if err == nil {
		err = s.resumeDocIDs(ctx)
	}
	if err != nil {
		if cerr := s.Close(); cerr != nil {
			slog.Error("closing stores after failed open", "error", cerr)
		}
		return nil, err
	}
	return s, nil
}

// resumeDocIDs moves term index ID assignment past every ID the offset map
// or the math index already holds. Both are written before the term index
// flushes a document, so after a crash they can be ahead of the segments.
func (s *Set) resumeDocIDs(ctx context.Context) error {
	offsets, err := s.Offsets.MaxDocID()
	if err != nil {
		return fmt.Errorf("reading last offset doc id: %w", err)
	}
	math, err := s.Math.MaxDocID(ctx)
	if err != nil {
		return fmt.Errorf("reading last math doc id: %w", err)
	}
	s.Terms.Resume(max(offsets, math))
	return nil
}

func (s *Set) openBlobs(ctx context.Context, cfg *config.Config) error {
	switch cfg.Blob.Backend {
	case config.BlobBackendRedis:
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting blob backend: %w", err)
		}
		s.redis = client
		s.URLs = blob.NewRedisIndex(client, cfg.Redis.KeyPrefix, blob.ChannelURL,
			resilience.NewBreaker("redis-blob-url", resilience.BreakerConfig{}))
		s.Texts = blob.NewRedisIndex(client, cfg.Redis.KeyPrefix, blob.ChannelText,
			resilience.NewBreaker("redis-blob-text", resilience.BreakerConfig{}))
		return nil
	default:
		urls, err := blob.OpenBolt(filepath.Join(cfg.Indexer.DataDir, URLBlobFile))
		if err != nil {
			return fmt.Errorf("opening url blob store: %w", err)
		}
		s.URLs = urls
		texts, err := blob.OpenBolt(filepath.Join(cfg.Indexer.DataDir, TextFile))
		if err != nil {
			return fmt.Errorf("opening text blob store: %w", err)
		}
		s.Texts = texts
		return nil
	}
}

// Pipeline returns the stores as the pipeline sees them.
func (s *Set) Pipeline() pipeline.Stores {
	return pipeline.Stores{
		Terms:   s.Terms,
		Math:    s.Math,
		Offsets: s.Offsets,
		URLs:    s.URLs,
		Texts:   s.Texts,
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Register adds a readiness probe per store to c.
func (s *Set) Register(c *health.Checker) {
	if s.Math != nil {
		c.Register("math_index", s.Math.Ping)
	}
	if s.Offsets != nil {
		c.Register("offset_map", func(context.Context) error { return s.Offsets.Ping() })
	}
	if p, ok := s.URLs.(pinger); ok {
		c.Register("blob_url", p.Ping)
	}
	if p, ok := s.Texts.(pinger); ok {
		c.Register("blob_text", p.Ping)
	}
}

// Close closes every opened store and reports all failures.
func (s *Set) Close() error {
	var err error
	if s.Terms != nil {
		if cErr := s.Terms.Close(); cErr != nil {
			err = multierror.Append(err, fmt.Errorf("term index: %w", cErr))
		}
	}
	if s.Math != nil {
		if cErr := s.Math.Close(); cErr != nil {
			err = multierror.Append(err, fmt.Errorf("math index: %w", cErr))
		}
	}
	if s.Offsets != nil {
		if cErr := s.Offsets.Close(); cErr != nil {
			err = multierror.Append(err, fmt.Errorf("offset map: %w", cErr))
		}
	}
	for name, b := range map[string]blob.Index{"url": s.URLs, "text": s.Texts} {
		if b == nil {
			continue
		}
		if cErr := b.Close(); cErr != nil {
			err = multierror.Append(err, fmt.Errorf("%s blobs: %w", name, cErr))
		}
	}
	if s.redis != nil {
		if cErr := s.redis.Close(); cErr != nil {
			err = multierror.Append(err, fmt.Errorf("redis: %w", cErr))
		}
	}
	return err
}
