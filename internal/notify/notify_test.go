package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/pipeline"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/resilience"
)

type flakyPublisher struct {
	failures int
	events   []kafka.Event
}

func (f *flakyPublisher) Publish(_ context.Context, e kafka.Event) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("leader not available")
	}
	f.events = append(f.events, e)
	return nil
}

var fastRetry = resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

func TestAfterDocumentRetries(t *testing.T) {
	pub := &flakyPublisher{failures: 2}
	n := NewKafkaNotifier(pub, "01RUN", fastRetry)
	if err := n.AfterDocument(context.Background(), pipeline.Result{DocID: 9, URL: "u", Positions: 4}); err != nil {
		t.Fatalf("AfterDocument: %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	e := pub.events[0]
	body, ok := e.Value.(IndexComplete)
	if e.Key != "9" || !ok || body.RunID != "01RUN" || body.DocID != 9 || body.Positions != 4 {
		t.Errorf("event = %+v", e)
	}
}

func TestAfterDocumentGivesUp(t *testing.T) {
	pub := &flakyPublisher{failures: 5}
	n := NewKafkaNotifier(pub, "r", fastRetry)
	if err := n.AfterDocument(context.Background(), pipeline.Result{DocID: 1}); err == nil {
		t.Fatal("expected an error after all attempts failed")
	}
	if pub.failures != 2 {
		t.Errorf("attempts = %d, want 3", 5-pub.failures)
	}
}
