// Package notify publishes an index-complete event for every indexed
// document.
package notify

import (
	"context"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/pipeline"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/resilience"
)

// IndexComplete is the JSON payload of an index-complete event.
type IndexComplete struct {
	RunID      string    `json:"run_id"`
	DocID      uint32    `json:"doc_id"`
	URL        string    `json:"url"`
	Positions  int       `json:"positions"`
	MathOK     int       `json:"math_ok"`
	MathFailed int       `json:"math_failed"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// KafkaNotifier is a pipeline.Hook. Publishing is retried with backoff.
type KafkaNotifier struct {
	pub   Publisher
	runID string
	retry resilience.RetryConfig
	now   func() time.Time
}

func NewKafkaNotifier(pub Publisher, runID string, retry resilience.RetryConfig) *KafkaNotifier {
	return &KafkaNotifier{pub: pub, runID: runID, retry: retry, now: time.Now}
}

func (n *KafkaNotifier) AfterDocument(ctx context.Context, res pipeline.Result) error {
	event := kafka.Event{
		Key: strconv.FormatUint(uint64(res.DocID), 10),
		Value: IndexComplete{
			RunID:      n.runID,
			DocID:      uint32(res.DocID),
			URL:        res.URL,
			Positions:  res.Positions,
			MathOK:     res.MathOK,
			MathFailed: res.MathFail,
			IndexedAt:  n.now().UTC(),
		},
	}
	return resilience.Retry(ctx, "publish index-complete", n.retry, func() error {
		return n.pub.Publish(ctx, event)
	})
}
