// Package health probes the indexer's backing stores and serves the result
// on liveness and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/logger"
)

type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// ProbeTimeout bounds each probe independently of the request deadline.
const ProbeTimeout = 2 * time.Second

// Probe checks one store. A nil error means it is usable.
type Probe func(ctx context.Context) error

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// Checker holds the named probes of one indexer process.
type Checker struct {
	mu     sync.RWMutex
	probes map[string]Probe
	logger *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		probes: make(map[string]Probe),
		logger: logger.WithComponent("health"),
	}
}

// Register adds a probe, replacing any probe of the same name.
func (c *Checker) Register(name string, probe Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = probe
}

// Run probes every store at once. The report is down if any probe failed.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	names := make([]string, 0, len(c.probes))
	probes := make([]Probe, 0, len(c.probes))
	for name, p := range c.probes {
		names = append(names, name)
		probes = append(probes, p)
	}
	c.mu.RUnlock()

	results := make([]ComponentHealth, len(probes))
	var wg sync.WaitGroup
	for i := range probes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = probe(ctx, probes[i])
		}(i)
	}
	wg.Wait()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(results)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for i, res := range results {
		report.Components[names[i]] = res
		if res.Status == StatusDown {
			report.Status = StatusDown
			c.logger.Warn("store probe failed", "store", names[i], "error", res.Message)
		}
	}
	return report
}

func probe(ctx context.Context, p Probe) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()
	start := time.Now()
	res := ComponentHealth{Status: StatusUp}
	if err := p(ctx); err != nil {
		res.Status = StatusDown
		res.Message = err.Error()
	}
	res.Latency = time.Since(start).Round(time.Millisecond).String()
	return res
}

// LiveHandler answers 200 while the process can serve HTTP at all.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers 200 only when every store probe succeeds.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		code := http.StatusOK
		if report.Status != StatusUp {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
