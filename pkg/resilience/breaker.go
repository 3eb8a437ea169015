// Package resilience provides the fault-tolerance helpers used around the
// indexer's best-effort side channels: a circuit breaker for remote blob
// writes, backoff retry for notifications, and a bounded wait for term index
// maintenance to settle.
package resilience

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/logger"
)

// BreakerConfig controls when a Breaker trips and how long it stays open.
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// Breaker fails calls fast after FailureThreshold consecutive failures.
// Once ResetTimeout has elapsed a single probe call is let through; its
// outcome closes or re-opens the circuit.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	failures int
	openedAt time.Time
	open     bool
	probing  bool
}

func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		logger: logger.WithComponent("circuit-breaker").With("name", name),
		now:    time.Now,
	}
}

// Execute runs fn unless the circuit is open.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

// Open reports whether calls are currently being rejected.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return nil
	}
	if b.probing || b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
		return fmt.Errorf("%w: %s", apperrors.ErrCircuitOpen, b.name)
	}
	b.probing = true
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	wasProbe := b.probing
	b.probing = false
	if err == nil {
		if b.open {
			b.logger.Info("circuit closed (recovered)")
		}
		b.open = false
		b.failures = 0
		return
	}
	b.failures++
	if wasProbe || b.failures >= b.cfg.FailureThreshold {
		if !b.open || wasProbe {
			b.logger.Warn("circuit opened", "consecutive_failures", b.failures, "error", err)
		}
		b.open = true
		b.openedAt = b.now()
	}
}
