package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	apperrors "github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/errors"
)

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	closed    bool
	cancel    context.CancelFunc
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		f.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func messages(values ...string) []kafka.Message {
	out := make([]kafka.Message, len(values))
	for i, v := range values {
		out[i] = kafka.Message{Offset: int64(i), Value: []byte(v)}
	}
	return out
}

func TestConsumerSkipsRecoverable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &fakeReader{msgs: messages("ok", "bad", "ok"), cancel: cancel}
	var seen []string
	c := NewConsumerFromReader(r, "corpus", func(_ context.Context, _, value []byte) error {
		seen = append(seen, string(value))
		if string(value) == "bad" {
			return apperrors.ErrMalformedEnvelope
		}
		return nil
	})
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(seen) != 3 || len(r.committed) != 3 {
		t.Errorf("seen = %v, committed = %v", seen, r.committed)
	}
	if !r.closed {
		t.Error("reader not closed")
	}
}

func TestConsumerStopsOnFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeReader{msgs: messages("ok", "boom", "ok"), cancel: cancel}
	c := NewConsumerFromReader(r, "corpus", func(_ context.Context, _, value []byte) error {
		if string(value) == "boom" {
			return apperrors.Fatal(errors.New("doc id mismatch"))
		}
		return nil
	})
	err := c.Start(ctx)
	if !errors.Is(err, apperrors.ErrFatal) {
		t.Fatalf("err = %v, want fatal", err)
	}
	if len(r.committed) != 1 || r.committed[0] != 0 {
		t.Errorf("committed = %v, want only offset 0", r.committed)
	}
	if len(r.msgs) != 1 {
		t.Errorf("consumer kept reading after a fatal error")
	}
}
