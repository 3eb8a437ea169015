// Package termindex is the inverted term index store. It owns document ID
// assignment, buffers one open document at a time, and performs maintenance
// (segment flush and merge) in the background.
package termindex

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/metrics"
)

// Config controls the memory threshold and merge policy.
type Config struct {
	DataDir                string
	SegmentMaxSize         int64
	MaxSegmentsBeforeMerge int
}

type TermIndex struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	memIndex *index.MemoryIndex
	writer   *segment.Writer

	readerMu sync.RWMutex
	readers  []*segment.Reader

	// Open document state. Only the single pipeline goroutine touches it.
	open    bool
	current []string
	lastID  index.DocID

	docLenMu sync.RWMutex
	docLens  map[index.DocID]int

	maintMu  sync.Mutex
	settled  chan struct{}
	maintErr error
}

// Open loads existing segments from cfg.DataDir and resumes document ID
// assignment after the largest ID found. m may be nil.
func Open(cfg Config, m *metrics.Metrics) (*TermIndex, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating term index directory: %w", err)
	}
	if cfg.MaxSegmentsBeforeMerge < 2 {
		cfg.MaxSegmentsBeforeMerge = 2
	}
	t := &TermIndex{
		cfg:      cfg,
		logger:   logger.WithComponent("term-index"),
		metrics:  m,
		memIndex: index.NewMemoryIndex(),
		writer:   segment.NewWriter(cfg.DataDir),
		docLens:  make(map[index.DocID]int),
		settled:  closedChan(),
	}
	if err := t.loadExistingSegments(); err != nil {
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	return t, nil
}

// LastDocID is the ID assigned to the most recently finished document, or
// zero for an empty index.
func (t *TermIndex) LastDocID() index.DocID {
	return t.lastID
}

// Resume makes the next assigned ID follow after, when after is past the
// last ID recovered from segments. Stores written under predicted IDs can
// hold documents the memory index lost in a crash; their IDs are skipped.
func (t *TermIndex) Resume(after index.DocID) {
	if after <= t.lastID {
		return
	}
	t.logger.Warn("skipping document ids found only in side stores",
		"recovered_last_doc_id", t.lastID,
		"resume_after", after,
	)
	t.lastID = after
}

// Begin opens a new document. Only one document may be open at a time.
func (t *TermIndex) Begin() error {
	if t.open {
		return apperrors.ErrDocumentOpen
	}
	t.open = true
	t.current = t.current[:0]
	return nil
}

// Add appends term at the next position of the open document.
func (t *TermIndex) Add(term string) {
	t.current = append(t.current, term)
}

// End finishes the open document and returns its newly assigned ID.
func (t *TermIndex) End() (index.DocID, error) {
	if !t.open {
		return 0, apperrors.ErrNoOpenDocument
	}
	t.open = false
	docID := t.lastID + 1
	terms := make([]string, len(t.current))
	copy(terms, t.current)
	if err := t.memIndex.AddDocument(docID, terms); err != nil {
		return 0, fmt.Errorf("adding doc %d to memory index: %w", docID, err)
	}
	t.lastID = docID

	t.docLenMu.Lock()
	t.docLens[docID] = len(terms)
	t.docLenMu.Unlock()

	t.logger.Debug("document indexed in memory",
		"doc_id", docID,
		"terms", len(terms),
		"mem_size", t.memIndex.Size(),
	)
	return docID, nil
}

// DocLen returns the number of terms docID was indexed with, including
// documents recovered from segments.
func (t *TermIndex) DocLen(docID index.DocID) int {
	t.docLenMu.RLock()
	defer t.docLenMu.RUnlock()
	return t.docLens[docID]
}

// Maintain starts a flush of the memory index once it has reached the
// configured size, followed by a merge when too many segments exist. It
// returns true when a cycle was started; the cycle completes when the
// channel returned by Settled is closed.
func (t *TermIndex) Maintain() bool {
	t.maintMu.Lock()
	defer t.maintMu.Unlock()

	select {
	case <-t.settled:
	default:
		return false
	}
	if t.memIndex.Size() < t.cfg.SegmentMaxSize {
		return false
	}

	snapshot := t.memIndex.Snapshot()
	t.memIndex.Reset()
	done := make(chan struct{})
	t.settled = done
	t.logger.Info("memory index reached max size, flushing to disk",
		"terms", len(snapshot.Entries),
		"docs", len(snapshot.Docs),
		"threshold", t.cfg.SegmentMaxSize,
	)
	go func() {
		defer close(done)
		err := t.flushSnapshot(snapshot)
		if err == nil {
			err = t.mergeIfNeeded()
		}
		if err != nil {
			t.logger.Error("index maintenance failed", "error", err)
			t.maintMu.Lock()
			t.maintErr = err
			t.maintMu.Unlock()
		}
	}()
	return true
}

// Settled returns a channel that is closed once no maintenance cycle is
// running.
func (t *TermIndex) Settled() <-chan struct{} {
	t.maintMu.Lock()
	defer t.maintMu.Unlock()
	return t.settled
}

// Search returns the postings for term across memory and all segments.
// Documents held by a running maintenance cycle show up once it settles.
func (t *TermIndex) Search(term string) (index.PostingList, error) {
	postings := t.memIndex.Search(term)
	t.readerMu.RLock()
	readers := make([]*segment.Reader, len(t.readers))
	copy(readers, t.readers)
	t.readerMu.RUnlock()

	for _, r := range readers {
		found, err := r.Search(term)
		if err != nil {
			return nil, fmt.Errorf("searching segment %s: %w", r.Path(), err)
		}
		postings = append(postings, found...)
	}
	sort.Slice(postings, func(i, j int) bool {
		return postings[i].DocID < postings[j].DocID
	})
	return postings, nil
}

// Segments returns the number of on-disk segments.
func (t *TermIndex) Segments() int {
	t.readerMu.RLock()
	defer t.readerMu.RUnlock()
	return len(t.readers)
}

// Close waits for running maintenance, flushes what is left in memory and
// closes every segment.
func (t *TermIndex) Close() error {
	<-t.Settled()
	err := t.flushSnapshot(t.memIndex.Snapshot())
	if err == nil {
		t.memIndex.Reset()
	}

	t.readerMu.Lock()
	defer t.readerMu.Unlock()
	for _, r := range t.readers {
		if cerr := r.Close(); cerr != nil {
			t.logger.Error("closing segment reader", "error", cerr)
		}
	}
	t.readers = nil

	t.maintMu.Lock()
	defer t.maintMu.Unlock()
	if err == nil {
		err = t.maintErr
	}
	return err
}

func (t *TermIndex) flushSnapshot(snapshot index.Snapshot) error {
	if snapshot.Empty() {
		return nil
	}
	name, err := t.writer.Write(snapshot)
	if err != nil {
		t.observeFlush("flush", err)
		return fmt.Errorf("writing segment: %w", err)
	}
	r, err := segment.OpenReader(filepath.Join(t.cfg.DataDir, name))
	if err != nil {
		t.observeFlush("flush", err)
		return fmt.Errorf("opening new segment for reading: %w", err)
	}
	t.readerMu.Lock()
	t.readers = append(t.readers, r)
	active := len(t.readers)
	t.readerMu.Unlock()
	t.observeFlush("flush", nil)
	t.logger.Info("segment flushed",
		"segment", name,
		"terms", r.Terms(),
		"docs", r.DocCount(),
		"active_segments", active,
	)
	return nil
}

func (t *TermIndex) mergeIfNeeded() error {
	t.readerMu.RLock()
	readers := make([]*segment.Reader, len(t.readers))
	copy(readers, t.readers)
	t.readerMu.RUnlock()
	if len(readers) <= t.cfg.MaxSegmentsBeforeMerge {
		return nil
	}

	merged, err := segment.Merge(readers)
	if err != nil {
		t.observeFlush("merge", err)
		return fmt.Errorf("merging segments: %w", err)
	}
	name, err := t.writer.Write(merged)
	if err != nil {
		t.observeFlush("merge", err)
		return fmt.Errorf("writing merged segment: %w", err)
	}
	r, err := segment.OpenReader(filepath.Join(t.cfg.DataDir, name))
	if err != nil {
		t.observeFlush("merge", err)
		return fmt.Errorf("opening merged segment: %w", err)
	}

	t.readerMu.Lock()
	// Keep segments flushed after the merge snapshot was taken.
	remaining := []*segment.Reader{r}
	for _, existing := range t.readers {
		if !contains(readers, existing) {
			remaining = append(remaining, existing)
		}
	}
	t.readers = remaining
	active := len(t.readers)
	t.readerMu.Unlock()

	for _, old := range readers {
		old.Close()
		if err := os.Remove(old.Path()); err != nil {
			t.logger.Warn("removing merged segment", "segment", old.Path(), "error", err)
		}
	}
	t.observeFlush("merge", nil)
	t.logger.Info("segments merged",
		"merged", len(readers),
		"segment", name,
		"active_segments", active,
	)
	return nil
}

func (t *TermIndex) observeFlush(op string, err error) {
	if t.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	t.metrics.SegmentFlushesTotal.WithLabelValues(op, status).Inc()
	t.readerMu.RLock()
	t.metrics.ActiveSegments.Set(float64(len(t.readers)))
	t.readerMu.RUnlock()
}

func (t *TermIndex) loadExistingSegments() error {
	entries, err := os.ReadDir(t.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("reading data directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), segment.Extension) {
			continue
		}
		path := filepath.Join(t.cfg.DataDir, entry.Name())
		r, err := segment.OpenReader(path)
		if err != nil {
			t.logger.Error("failed to open segment, skipping",
				"segment", entry.Name(),
				"error", err,
			)
			continue
		}
		t.readers = append(t.readers, r)
		if r.MaxDocID() > t.lastID {
			t.lastID = r.MaxDocID()
		}
		for _, d := range r.DocLens() {
			t.docLens[d.DocID] = d.Len
		}
	}
	sort.Slice(t.readers, func(i, j int) bool {
		return t.readers[i].MaxDocID() < t.readers[j].MaxDocID()
	})
	t.logger.Info("segment recovery complete",
		"segments_loaded", len(t.readers),
		"last_doc_id", t.lastID,
	)
	return nil
}

func contains(readers []*segment.Reader, r *segment.Reader) bool {
	for _, x := range readers {
		if x == r {
			return true
		}
	}
	return false
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
