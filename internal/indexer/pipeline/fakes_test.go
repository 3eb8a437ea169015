package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/lexer"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/offsetmap"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/texparse"
	apperrors "github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/metrics"
)

// recorder keeps the order in which the stores were called.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) index(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.events {
		if e == event {
			return i
		}
	}
	return -1
}

type fakeTerms struct {
	rec  *recorder
	last index.DocID
	open bool
	cur  []string
	docs map[index.DocID][]string
	// skew is added to every assigned ID.
	skew     index.DocID
	maintain bool
	settled  chan struct{}
}

func (f *fakeTerms) LastDocID() index.DocID { return f.last }

func (f *fakeTerms) Begin() error {
	if f.open {
		return apperrors.ErrDocumentOpen
	}
	f.open = true
	f.cur = nil
	f.rec.add("begin")
	return nil
}

func (f *fakeTerms) Add(term string) {
	f.cur = append(f.cur, term)
	f.rec.add("term:%s", term)
}

func (f *fakeTerms) End() (index.DocID, error) {
	if !f.open {
		return 0, apperrors.ErrNoOpenDocument
	}
	f.open = false
	id := f.last + 1 + f.skew
	f.last = id
	f.docs[id] = f.cur
	f.rec.add("end:%d", id)
	return id, nil
}

func (f *fakeTerms) Maintain() bool {
	if !f.maintain {
		return false
	}
	f.maintain = false
	f.settled = make(chan struct{})
	f.rec.add("maintain")
	return true
}

func (f *fakeTerms) Settled() <-chan struct{} {
	if f.settled == nil {
		c := make(chan struct{})
		close(c)
		return c
	}
	return f.settled
}

type mathAdd struct {
	docID index.DocID
	pos   index.Position
	paths []string
}

type fakeMath struct {
	rec  *recorder
	adds []mathAdd
	err  error
}

func (f *fakeMath) Add(_ context.Context, docID index.DocID, pos index.Position, sp *texparse.Subpaths) error {
	f.rec.add("math:%d:%d", docID, pos)
	if f.err != nil {
		return f.err
	}
	var paths []string
	for _, p := range sp.All() {
		paths = append(paths, p.Path())
	}
	f.adds = append(f.adds, mathAdd{docID: docID, pos: pos, paths: paths})
	return nil
}

type fakeOffsets struct {
	rec       *recorder
	entries   []offsetmap.Entry
	flushes   int
	commits   int
	err       error
	commitErr error
}

func (f *fakeOffsets) Put(k offsetmap.Key, v offsetmap.Value) error {
	f.rec.add("offset:%d:%d", k.DocID, k.Position)
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, offsetmap.Entry{Key: k, Value: v})
	return nil
}

func (f *fakeOffsets) Commit() error {
	f.commits++
	f.rec.add("commit")
	return f.commitErr
}

func (f *fakeOffsets) Flush() error {
	f.flushes++
	return nil
}

type fakeBlob struct {
	rec     *recorder
	name    string
	records map[index.DocID][]byte
	err     error
}

func (f *fakeBlob) Put(_ context.Context, docID index.DocID, record []byte) error {
	f.rec.add("blob:%s:%d", f.name, docID)
	if f.err != nil {
		return f.err
	}
	f.records[docID] = record
	return nil
}

func (f *fakeBlob) Get(_ context.Context, docID index.DocID) ([]byte, error) {
	r, ok := f.records[docID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return r, nil
}

func (f *fakeBlob) Close() error { return nil }

type fakeReporter struct {
	mu      sync.Mutex
	indexed []index.DocID
	started int
	settled []error
}

func (f *fakeReporter) Indexed(res Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, res.DocID)
}

func (f *fakeReporter) MaintenanceStarted(index.DocID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *fakeReporter) MaintenanceSettled(_ time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled = append(f.settled, err)
}

type harness struct {
	rec      *recorder
	terms    *fakeTerms
	math     *fakeMath
	offsets  *fakeOffsets
	urls     *fakeBlob
	texts    *fakeBlob
	reporter *fakeReporter
	metrics  *metrics.Metrics
	ctrl     *Controller
}

func newHarness(t testing.TB, cfg Config, deps Deps) *harness {
	t.Helper()
	rec := &recorder{}
	h := &harness{
		rec:      rec,
		terms:    &fakeTerms{rec: rec, docs: map[index.DocID][]string{}},
		math:     &fakeMath{rec: rec},
		offsets:  &fakeOffsets{rec: rec},
		urls:     &fakeBlob{rec: rec, name: "url", records: map[index.DocID][]byte{}},
		texts:    &fakeBlob{rec: rec, name: "text", records: map[index.DocID][]byte{}},
		reporter: &fakeReporter{},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	h.rebuild(cfg, deps)
	return h
}

// rebuild creates a fresh controller over the current fakes.
func (h *harness) rebuild(cfg Config, deps Deps) {
	if cfg.MaxCorpusFileSize == 0 {
		cfg.MaxCorpusFileSize = 1 << 20
	}
	deps.Metrics = h.metrics
	deps.Reporter = h.reporter
	h.ctrl = New(Stores{
		Terms:   h.terms,
		Math:    h.math,
		Offsets: h.offsets,
		URLs:    h.urls,
		Texts:   h.texts,
	}, cfg, deps)
}

func scripted(slices ...lexer.Slice) lexer.Lexer {
	return func(r io.Reader, handle func(lexer.Slice)) error {
		if _, err := io.ReadAll(r); err != nil {
			return err
		}
		for _, s := range slices {
			handle(s)
		}
		return nil
	}
}

func span(s string, offset uint32) lexer.Span {
	return lexer.Span{Str: s, Offset: offset}
}
