// Package consumer indexes corpus documents delivered on a Kafka topic, one
// JSON document per message.
package consumer

import (
	"bytes"
	"context"
	"io"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/logger"
)

// Processor is the pipeline entry point.
type Processor interface {
	ProcessDocument(ctx context.Context, r io.Reader) (index.DocID, error)
}

// HandleMessage returns a kafka.MessageHandler that indexes each message
// value. Pipeline errors are passed through unchanged, so the consumer skips
// rejected documents and stops on fatal ones.
func HandleMessage(p Processor) kafka.MessageHandler {
	log := logger.WithComponent("index-consumer")
	return func(ctx context.Context, key, value []byte) error {
		docID, err := p.ProcessDocument(ctx, bytes.NewReader(value))
		if err != nil {
			return err
		}
		log.Debug("message indexed", "key", string(key), "doc_id", docID)
		return nil
	}
}
