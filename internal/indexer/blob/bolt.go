package blob

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/errors"
)

var bucketBlobs = []byte("blobs")

// BoltIndex keeps one channel in its own bbolt file.
type BoltIndex struct {
	db *bbolt.DB
}

func OpenBolt(path string) (*BoltIndex, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening blob store %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBlobs)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating blobs bucket: %w", err)
	}
	return &BoltIndex{db: db}, nil
}

func docKey(docID index.DocID) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, uint32(docID))
	return k
}

func (b *BoltIndex) Put(_ context.Context, docID index.DocID, record []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBlobs).Put(docKey(docID), record)
	})
}

func (b *BoltIndex) Get(_ context.Context, docID index.DocID) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketBlobs).Get(docKey(docID))
		if data == nil {
			return fmt.Errorf("blob for doc %d: %w", docID, apperrors.ErrNotFound)
		}
		// bbolt memory is only valid inside the transaction.
		out = append([]byte(nil), data...)
		return nil
	})
	return out, err
}

func (b *BoltIndex) Ping(_ context.Context) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketBlobs) == nil {
			return fmt.Errorf("blobs bucket missing")
		}
		return nil
	})
}

func (b *BoltIndex) Close() error {
	return b.db.Close()
}
