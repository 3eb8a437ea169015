// Package progress reports indexing progress and term index maintenance
// stalls, either as a terminal spinner or as periodic log lines.
package progress

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/pipeline"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/logger"
)

// NewReporter returns a Terminal reporter on stderr, or a Log reporter when
// running under CI.
func NewReporter() pipeline.Reporter {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return NewLog(logger.WithComponent("progress"), 1000)
	}
	return NewTerminal(os.Stderr)
}

// Terminal shows a spinner with the number of indexed documents.
type Terminal struct {
	mu      sync.Mutex
	bar     *progressbar.ProgressBar
	indexed int
	stalls  int
}

func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("indexing"),
			progressbar.OptionShowCount(),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		),
	}
}

func (t *Terminal) Indexed(res pipeline.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.indexed++
	_ = t.bar.Add(1)
}

func (t *Terminal) MaintenanceStarted(after index.DocID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stalls++
	t.bar.Describe(fmt.Sprintf("[index maintaining after doc %d...]", after))
}

func (t *Terminal) MaintenanceSettled(waited time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	desc := "indexing"
	if err != nil {
		desc = "indexing (maintenance still running)"
	}
	t.bar.Describe(desc)
}

// Finish clears the spinner.
func (t *Terminal) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.bar.Finish()
}

// Log writes a progress line every `every` documents and one per
// maintenance stall.
type Log struct {
	logger *slog.Logger
	every  int

	mu      sync.Mutex
	indexed int
}

func NewLog(logger *slog.Logger, every int) *Log {
	if every <= 0 {
		every = 1000
	}
	return &Log{logger: logger, every: every}
}

func (l *Log) Indexed(res pipeline.Result) {
	l.mu.Lock()
	l.indexed++
	n := l.indexed
	l.mu.Unlock()
	if n%l.every == 0 {
		l.logger.Info("indexing progress", "documents", n, "last_doc_id", res.DocID)
	}
}

func (l *Log) MaintenanceStarted(after index.DocID) {
	l.logger.Info("index maintaining", "after_doc_id", after)
}

func (l *Log) MaintenanceSettled(waited time.Duration, err error) {
	if err != nil {
		l.logger.Warn("index maintenance still running", "waited", waited, "error", err)
		return
	}
	l.logger.Info("index maintenance settled", "waited", waited)
}

func (l *Log) Finish() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Info("indexing finished", "documents", l.indexed)
}
