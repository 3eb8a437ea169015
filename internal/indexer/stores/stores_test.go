package stores

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/blob"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/offsetmap"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/pipeline"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/metrics"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Indexer.DataDir = t.TempDir()
	return cfg
}

func TestOpenIndexReopen(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	set, err := Open(ctx, cfg, metrics.New(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctrl := pipeline.New(set.Pipeline(), pipeline.Config{
		MaxCorpusFileSize: cfg.Indexer.MaxCorpusFileSize,
		SettleTimeout:     cfg.Indexer.MaintenanceSettleTimeout,
	}, pipeline.Deps{})

	doc := `{"url":"http://a/1","text":"The formula $x^2$ holds"}`
	id, err := ctrl.ProcessDocument(ctx, strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if id != 1 {
		t.Fatalf("first doc ID = %d, want 1", id)
	}

	postings, err := set.Math.Lookup(ctx, "x/sup.base")
	if err != nil || len(postings) != 1 || postings[0].Position != 2 {
		t.Errorf("math lookup = %+v, %v", postings, err)
	}
	v, err := set.Offsets.Get(offsetmap.Key{DocID: 1, Position: 2})
	if err != nil || v.Offset != 12 || v.Len != 5 {
		t.Errorf("offset of math slice = %+v, %v", v, err)
	}
	w := blob.NewWriter(set.URLs, set.Texts)
	url, err := w.Read(ctx, blob.ChannelURL, 1)
	if err != nil || string(url) != "http://a/1" {
		t.Errorf("url blob = %q, %v", url, err)
	}

	if err := ctrl.Close(ctx); err != nil {
		t.Fatalf("controller Close: %v", err)
	}
	if err := set.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	set, err = Open(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer set.Close()
	if got := set.Terms.LastDocID(); got != index.DocID(1) {
		t.Errorf("LastDocID after reopen = %d, want 1", got)
	}
	text, err := blob.NewWriter(set.URLs, set.Texts).Read(ctx, blob.ChannelText, 1)
	if err != nil || !strings.Contains(string(text), "$x^2$") {
		t.Errorf("text blob after reopen = %q, %v", text, err)
	}
}

func TestReopenAfterCrashSkipsUsedIDs(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	set, err := Open(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctrl := pipeline.New(set.Pipeline(), pipeline.Config{
		MaxCorpusFileSize: cfg.Indexer.MaxCorpusFileSize,
		SettleTimeout:     cfg.Indexer.MaintenanceSettleTimeout,
	}, pipeline.Deps{})
	if _, err := ctrl.ProcessDocument(ctx, strings.NewReader(
		`{"url":"http://a/1","text":"The formula $x^2$ holds"}`)); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}

	// The term index dies with its memory index unflushed.
	for _, c := range []interface{ Close() error }{set.Math, set.Offsets, set.URLs, set.Texts} {
		if err := c.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	set, err = Open(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer set.Close()
	if got := set.Terms.LastDocID(); got != 1 {
		t.Fatalf("LastDocID after crash = %d, want 1", got)
	}

	ctrl = pipeline.New(set.Pipeline(), pipeline.Config{
		MaxCorpusFileSize: cfg.Indexer.MaxCorpusFileSize,
		SettleTimeout:     cfg.Indexer.MaintenanceSettleTimeout,
	}, pipeline.Deps{})
	id, err := ctrl.ProcessDocument(ctx, strings.NewReader(`{"url":"http://a/2","text":"again"}`))
	if err != nil {
		t.Fatalf("ProcessDocument after crash: %v", err)
	}
	if id != 2 {
		t.Fatalf("doc ID after crash = %d, want 2", id)
	}
	entries, err := set.Offsets.ForDoc(2)
	if err != nil || len(entries) != 1 {
		t.Errorf("offsets of new doc = %+v, %v, want one entry", entries, err)
	}
	counts, err := set.Math.ForDoc(ctx, 2)
	if err != nil || len(counts) != 0 {
		t.Errorf("math postings of new doc = %v, %v, want none", counts, err)
	}
}

func TestRegisterProbes(t *testing.T) {
	set, err := Open(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer set.Close()

	c := health.NewChecker()
	set.Register(c)
	report := c.Run(context.Background())
	if report.Status != health.StatusUp {
		t.Errorf("status = %s: %+v", report.Status, report.Components)
	}
	for _, name := range []string{"math_index", "offset_map", "blob_url", "blob_text"} {
		if _, ok := report.Components[name]; !ok {
			t.Errorf("probe %s not registered", name)
		}
	}
}

func TestOpenRedisUnreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Blob.Backend = config.BlobBackendRedis
	cfg.Redis.Addr = "127.0.0.1:1"
	if _, err := Open(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected an error for an unreachable redis")
	}
}
