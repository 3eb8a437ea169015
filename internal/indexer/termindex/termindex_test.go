package termindex

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/metrics"
)

func openTest(t *testing.T, cfg Config) *TermIndex {
	t.Helper()
	if cfg.DataDir == "" {
		cfg.DataDir = t.TempDir()
	}
	ti, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return ti
}

func indexDoc(t *testing.T, ti *TermIndex, terms ...string) index.DocID {
	t.Helper()
	if err := ti.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for _, term := range terms {
		ti.Add(term)
	}
	id, err := ti.End()
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	return id
}

func waitSettled(t *testing.T, ti *TermIndex) {
	t.Helper()
	select {
	case <-ti.Settled():
	case <-time.After(5 * time.Second):
		t.Fatal("maintenance did not settle")
	}
}

func TestDocIDsAreSequential(t *testing.T) {
	ti := openTest(t, Config{SegmentMaxSize: 1 << 30})
	defer ti.Close()

	for want := index.DocID(1); want <= 5; want++ {
		if got := indexDoc(t, ti, "term"); got != want {
			t.Fatalf("docID = %d, want %d", got, want)
		}
	}
	if ti.LastDocID() != 5 {
		t.Errorf("LastDocID = %d, want 5", ti.LastDocID())
	}
	if ti.DocLen(3) != 1 {
		t.Errorf("DocLen(3) = %d, want 1", ti.DocLen(3))
	}
}

func TestLifecycleErrors(t *testing.T) {
	ti := openTest(t, Config{SegmentMaxSize: 1 << 30})
	defer ti.Close()

	if _, err := ti.End(); !errors.Is(err, apperrors.ErrNoOpenDocument) {
		t.Errorf("End without Begin: got %v", err)
	}
	if err := ti.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := ti.Begin(); !errors.Is(err, apperrors.ErrDocumentOpen) {
		t.Errorf("second Begin: got %v", err)
	}
}

func TestMaintainBelowThresholdIsNoop(t *testing.T) {
	ti := openTest(t, Config{SegmentMaxSize: 1 << 30})
	defer ti.Close()
	indexDoc(t, ti, "a", "b")
	if ti.Maintain() {
		t.Fatal("expected no maintenance below threshold")
	}
}

func TestMaintainFlushesAndRecovers(t *testing.T) {
	dir := t.TempDir()
	ti := openTest(t, Config{DataDir: dir, SegmentMaxSize: 1, MaxSegmentsBeforeMerge: 8})

	indexDoc(t, ti, "the", "math_exp", "is", "positive")
	if !ti.Maintain() {
		t.Fatal("expected maintenance to run above threshold")
	}
	waitSettled(t, ti)
	if ti.Segments() != 1 {
		t.Fatalf("segments = %d, want 1", ti.Segments())
	}
	indexDoc(t, ti, "positive")

	postings, err := ti.Search("positive")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(postings) != 2 || postings[0].DocID != 1 || postings[1].DocID != 2 {
		t.Fatalf("unexpected postings across segment and memory: %+v", postings)
	}
	if err := ti.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openTest(t, Config{DataDir: dir, SegmentMaxSize: 1 << 30})
	defer reopened.Close()
	if reopened.LastDocID() != 2 {
		t.Fatalf("recovered LastDocID = %d, want 2", reopened.LastDocID())
	}
	if got := indexDoc(t, reopened, "next"); got != 3 {
		t.Errorf("first docID after reopen = %d, want 3", got)
	}
}

func TestMaintainMergesSegments(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	ti, err := Open(Config{DataDir: t.TempDir(), SegmentMaxSize: 1, MaxSegmentsBeforeMerge: 2}, m)
	if err != nil {
		t.Fatal(err)
	}
	defer ti.Close()

	for i := 0; i < 3; i++ {
		indexDoc(t, ti, "shared", "x")
		if !ti.Maintain() {
			t.Fatalf("cycle %d: expected maintenance to run", i)
		}
		waitSettled(t, ti)
	}
	if ti.Segments() != 1 {
		t.Fatalf("segments after merge = %d, want 1", ti.Segments())
	}
	postings, err := ti.Search("shared")
	if err != nil {
		t.Fatal(err)
	}
	if len(postings) != 3 {
		t.Fatalf("expected 3 postings after merge, got %d", len(postings))
	}
	if got := testutil.ToFloat64(m.SegmentFlushesTotal.WithLabelValues("merge", "ok")); got != 1 {
		t.Errorf("merge counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SegmentFlushesTotal.WithLabelValues("flush", "ok")); got != 3 {
		t.Errorf("flush counter = %v, want 3", got)
	}
}

func TestEmptyDocumentSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ti := openTest(t, Config{DataDir: dir, SegmentMaxSize: 1 << 30})
	indexDoc(t, ti, "a", "b", "c")
	indexDoc(t, ti)
	if err := ti.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openTest(t, Config{DataDir: dir, SegmentMaxSize: 1 << 30})
	defer reopened.Close()
	if reopened.LastDocID() != 2 {
		t.Fatalf("recovered LastDocID = %d, want 2", reopened.LastDocID())
	}
	if reopened.DocLen(1) != 3 || reopened.DocLen(2) != 0 {
		t.Errorf("DocLen = %d, %d; want 3, 0", reopened.DocLen(1), reopened.DocLen(2))
	}
}

func TestResumeSkipsAhead(t *testing.T) {
	ti := openTest(t, Config{SegmentMaxSize: 1 << 20})
	defer ti.Close()
	indexDoc(t, ti, "a")

	ti.Resume(0)
	if got := ti.LastDocID(); got != 1 {
		t.Fatalf("Resume behind the index moved LastDocID to %d", got)
	}
	ti.Resume(5)
	if id := indexDoc(t, ti, "b"); id != 6 {
		t.Errorf("doc after Resume(5) = %d, want 6", id)
	}
	if got := ti.DocLen(3); got != 0 {
		t.Errorf("skipped doc length = %d, want 0", got)
	}
}
