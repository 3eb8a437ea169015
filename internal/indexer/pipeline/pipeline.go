// Package pipeline indexes corpus documents one at a time into the term
// index, the math index, the offset map and the two blob channels.
//
// The document ID is predicted as LastDocID+1 before the term index assigns
// it, because the URL blob, every offset entry and the text blob are written
// under that ID while the document is still open. The Controller is the only
// writer of the term index and checks the prediction when the document ends.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/blob"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/lexer"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/offsetmap"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/texparse"
	apperrors "github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/resilience"
)

// MathSentinel is added to the term index in place of every math
// expression, so term and math positions stay in step.
const MathSentinel = "math_exp"

// TermIndex is the inverted index. It assigns document IDs.
type TermIndex interface {
	LastDocID() index.DocID
	Begin() error
	Add(term string)
	End() (index.DocID, error)
	Maintain() bool
	Settled() <-chan struct{}
}

// MathIndex stores the subpaths of one expression at a document position.
type MathIndex interface {
	Add(ctx context.Context, docID index.DocID, pos index.Position, subpaths *texparse.Subpaths) error
}

// OffsetStore maps document positions back to byte ranges. Entries put
// while a document is open are written together by Commit.
type OffsetStore interface {
	Put(k offsetmap.Key, v offsetmap.Value) error
	Commit() error
	Flush() error
}

// TexParser parses a stripped math expression. The caller releases the
// returned subpaths.
type TexParser func(tex string, strict bool) (*texparse.Subpaths, error)

// Stores are the backing stores a Controller writes to. The Controller does
// not close them.
type Stores struct {
	Terms   TermIndex
	Math    MathIndex
	Offsets OffsetStore
	URLs    blob.Index
	Texts   blob.Index
}

// Config holds the per-document limits and the maintenance wait bound.
type Config struct {
	MaxCorpusFileSize int64
	TexStrict         bool
	SettleTimeout     time.Duration
}

// Result summarises one indexed document.
type Result struct {
	DocID     index.DocID
	URL       string
	Positions int
	MathOK    int
	MathFail  int
	Duration  time.Duration
}

// Hook is called after every successfully indexed document. Errors are
// logged and do not affect indexing.
type Hook interface {
	AfterDocument(ctx context.Context, res Result) error
}

// Reporter is told about indexing progress and maintenance stalls.
type Reporter interface {
	Indexed(res Result)
	MaintenanceStarted(after index.DocID)
	MaintenanceSettled(waited time.Duration, err error)
}

// Deps are the optional collaborators of a Controller. Nil fields get the
// default lexer, the default TeX parser, and no metrics, reporting or hooks.
type Deps struct {
	Lexer    lexer.Lexer
	Parser   TexParser
	Metrics  *metrics.Metrics
	Reporter Reporter
	Hooks    []Hook
}

// Controller runs the document pipeline. ProcessDocument calls are
// serialised.
type Controller struct {
	stores  Stores
	blobs   *blob.Writer
	cfg     Config
	lex     lexer.Lexer
	parse   TexParser
	metrics *metrics.Metrics
	report  Reporter
	hooks   []Hook
	logger  *slog.Logger

	mu        sync.Mutex
	lastDocID index.DocID
	pending   bool
	poisoned  error
}

func New(stores Stores, cfg Config, deps Deps) *Controller {
	c := &Controller{
		stores:    stores,
		blobs:     blob.NewWriter(stores.URLs, stores.Texts),
		cfg:       cfg,
		lex:       deps.Lexer,
		parse:     deps.Parser,
		metrics:   deps.Metrics,
		report:    deps.Reporter,
		hooks:     deps.Hooks,
		logger:    logger.WithComponent("pipeline"),
		lastDocID: stores.Terms.LastDocID(),
	}
	if c.lex == nil {
		c.lex = lexer.Lex
	}
	if c.parse == nil {
		c.parse = texparse.Parse
	}
	if c.report == nil {
		c.report = nopReporter{}
	}
	return c
}

// LastDocID is the ID of the most recently indexed document.
func (c *Controller) LastDocID() index.DocID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastDocID
}

// ProcessDocument indexes one JSON corpus document read from r and returns
// its ID. Envelope errors are recoverable and leave every store untouched.
// Errors matching apperrors.ErrFatal stop the Controller for good.
func (c *Controller) ProcessDocument(ctx context.Context, r io.Reader) (index.DocID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.poisoned != nil {
		return 0, apperrors.Fatal(fmt.Errorf("%w: %v", apperrors.ErrSessionPoisoned, c.poisoned))
	}
	if err := c.awaitSettle(ctx); err != nil {
		return 0, err
	}

	env, err := ReadEnvelope(r, c.cfg.MaxCorpusFileSize)
	if err != nil {
		c.logger.Warn("document rejected", "error", err)
		if c.metrics != nil {
			c.metrics.DocsRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
		}
		return 0, err
	}

	start := time.Now()
	res, err := c.index(ctx, env)
	if err != nil {
		c.poisoned = err
		c.logger.Error("indexing stopped", "predicted_doc_id", c.lastDocID+1, "error", err)
		return 0, err
	}
	res.Duration = time.Since(start)

	if c.metrics != nil {
		c.metrics.DocsIndexedTotal.Inc()
	}
	c.logger.Debug("document indexed",
		"doc_id", res.DocID,
		"positions", res.Positions,
		"math_ok", res.MathOK,
		"math_failed", res.MathFail,
	)
	c.report.Indexed(res)
	for _, h := range c.hooks {
		if err := h.AfterDocument(ctx, res); err != nil {
			c.logger.Warn("after-document hook failed", "doc_id", res.DocID, "error", err)
		}
	}

	c.maybeMaintain()
	return res.DocID, nil
}

// index writes one accepted document to every store. Every error it
// returns is fatal.
func (c *Controller) index(ctx context.Context, env Envelope) (Result, error) {
	s := &session{c: c, ctx: ctx, docID: c.lastDocID + 1}

	c.writeBlob(ctx, blob.ChannelURL, s.docID, env.URL, false)

	if err := c.stores.Terms.Begin(); err != nil {
		return Result{}, apperrors.Fatal(fmt.Errorf("beginning document %d: %w", s.docID, err))
	}
	if err := c.lex(strings.NewReader(env.Text), s.handleSlice); err != nil {
		return Result{}, apperrors.Fatal(fmt.Errorf("lexing document %d: %w", s.docID, err))
	}
	s.commitOffsets()

	c.writeBlob(ctx, blob.ChannelText, s.docID, env.Text, true)

	got, err := c.stores.Terms.End()
	if err != nil {
		return Result{}, apperrors.Fatal(fmt.Errorf("ending document %d: %w", s.docID, err))
	}
	if got != s.docID {
		return Result{}, &apperrors.InvariantError{Expected: uint32(s.docID), Got: uint32(got)}
	}
	c.lastDocID = got

	return Result{
		DocID:     got,
		URL:       env.URL,
		Positions: int(s.pos),
		MathOK:    s.mathOK,
		MathFail:  s.mathFail,
	}, nil
}

// writeBlob is best effort: a failure leaves the document searchable
// without its raw payload.
func (c *Controller) writeBlob(ctx context.Context, ch blob.Channel, docID index.DocID, payload string, compress bool) {
	if err := c.blobs.Write(ctx, ch, docID, []byte(payload), compress); err != nil {
		c.logger.Warn("blob write failed", "channel", ch, "doc_id", docID, "error", err)
		if c.metrics != nil {
			c.metrics.BlobWriteFailuresTotal.WithLabelValues(string(ch)).Inc()
		}
	}
}

func (c *Controller) maybeMaintain() {
	if !c.stores.Terms.Maintain() {
		return
	}
	c.pending = true
	if c.metrics != nil {
		c.metrics.MaintenanceCyclesTotal.Inc()
	}
	c.logger.Info("index maintaining", "after_doc_id", c.lastDocID)
	c.report.MaintenanceStarted(c.lastDocID)
}

// awaitSettle blocks until a pending maintenance cycle finishes, then makes
// the offset map durable. A cycle that outlives SettleTimeout is logged and
// no longer waited for.
func (c *Controller) awaitSettle(ctx context.Context) error {
	if !c.pending {
		return nil
	}
	start := time.Now()
	err := resilience.Await(ctx, c.stores.Terms.Settled(), c.cfg.SettleTimeout, "term index maintenance")
	waited := time.Since(start)
	if err != nil && ctx.Err() != nil {
		return err
	}
	c.pending = false
	if c.metrics != nil {
		c.metrics.MaintenanceSettleDuration.Observe(waited.Seconds())
	}
	c.report.MaintenanceSettled(waited, err)
	if err != nil {
		c.logger.Warn("maintenance did not settle in time, continuing", "waited", waited, "error", err)
	}
	if err := c.stores.Offsets.Flush(); err != nil {
		c.logger.Error("offset store flush failed", "error", err)
	}
	return nil
}

// Close waits for outstanding maintenance and flushes the offset map.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.awaitSettle(ctx); err != nil {
		return err
	}
	if err := c.stores.Offsets.Flush(); err != nil {
		return fmt.Errorf("flushing offset store: %w", err)
	}
	return nil
}

type nopReporter struct{}

func (nopReporter) Indexed(Result)                          {}
func (nopReporter) MaintenanceStarted(index.DocID)          {}
func (nopReporter) MaintenanceSettled(time.Duration, error) {}
