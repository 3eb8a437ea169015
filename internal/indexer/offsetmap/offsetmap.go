// Package offsetmap stores the reverse map from (document, position) to the
// byte range of the token in the document's text field.
package offsetmap

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/errors"
)

const (
	KeySize   = 8
	ValueSize = 12
)

var bucketOffsets = []byte("offsets")

// Key is encoded as big-endian docID then position, so a cursor over one
// document's prefix visits its positions in order.
type Key struct {
	DocID    index.DocID
	Position index.Position
}

func (k Key) Encode() []byte {
	b := make([]byte, KeySize)
	binary.BigEndian.PutUint32(b[0:4], uint32(k.DocID))
	binary.BigEndian.PutUint32(b[4:8], uint32(k.Position))
	return b
}

func DecodeKey(b []byte) (Key, error) {
	if len(b) != KeySize {
		return Key{}, fmt.Errorf("offset key has %d bytes, want %d", len(b), KeySize)
	}
	return Key{
		DocID:    index.DocID(binary.BigEndian.Uint32(b[0:4])),
		Position: index.Position(binary.BigEndian.Uint32(b[4:8])),
	}, nil
}

// Value is the token's byte offset and length in the text field.
type Value struct {
	Offset uint32
	Len    uint64
}

func (v Value) Encode() []byte {
	b := make([]byte, ValueSize)
	binary.BigEndian.PutUint32(b[0:4], v.Offset)
	binary.BigEndian.PutUint64(b[4:12], v.Len)
	return b
}

func DecodeValue(b []byte) (Value, error) {
	if len(b) != ValueSize {
		return Value{}, fmt.Errorf("offset value has %d bytes, want %d", len(b), ValueSize)
	}
	return Value{
		Offset: binary.BigEndian.Uint32(b[0:4]),
		Len:    binary.BigEndian.Uint64(b[4:12]),
	}, nil
}

// Entry is one decoded mapping.
type Entry struct {
	Key
	Value
}

// Store is a bbolt-backed offset map. Put buffers entries in memory and
// Commit writes the buffer in one transaction, so a document's entries land
// together. Commits are not fsynced; Flush makes everything committed so far
// durable. Reads see committed entries only.
type Store struct {
	db *bbolt.DB

	mu      sync.Mutex
	pending []Entry
}

func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second, NoSync: true})
	if err != nil {
		return nil, fmt.Errorf("opening offset store %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketOffsets)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating offsets bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Put(k Key, v Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, Entry{Key: k, Value: v})
	return nil
}

// Commit writes every buffered entry. The buffer is emptied even when the
// transaction fails.
func (s *Store) Commit() error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketOffsets)
		for _, e := range batch {
			if err := b.Put(e.Key.Encode(), e.Value.Encode()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("committing %d offset entries: %w", len(batch), err)
	}
	return nil
}

// MaxDocID returns the largest document ID with a committed entry, or zero.
func (s *Store) MaxDocID() (index.DocID, error) {
	var id index.DocID
	err := s.db.View(func(tx *bbolt.Tx) error {
		k, _ := tx.Bucket(bucketOffsets).Cursor().Last()
		if k == nil {
			return nil
		}
		key, err := DecodeKey(k)
		if err != nil {
			return err
		}
		id = key.DocID
		return nil
	})
	return id, err
}

func (s *Store) Get(k Key) (Value, error) {
	var v Value
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketOffsets).Get(k.Encode())
		if data == nil {
			return fmt.Errorf("offset for doc %d position %d: %w", k.DocID, k.Position, apperrors.ErrNotFound)
		}
		var err error
		v, err = DecodeValue(data)
		return err
	})
	return v, err
}

// ForDoc returns every entry of docID in position order.
func (s *Store) ForDoc(docID index.DocID) ([]Entry, error) {
	prefix := make([]byte, 4)
	binary.BigEndian.PutUint32(prefix, uint32(docID))

	var entries []Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketOffsets).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			key, err := DecodeKey(k)
			if err != nil {
				return err
			}
			val, err := DecodeValue(v)
			if err != nil {
				return err
			}
			entries = append(entries, Entry{Key: key, Value: val})
		}
		return nil
	})
	return entries, err
}

// Flush commits buffered entries and syncs the database file to disk.
func (s *Store) Flush() error {
	if err := s.Commit(); err != nil {
		return err
	}
	if err := s.db.Sync(); err != nil {
		return fmt.Errorf("syncing offset store: %w", err)
	}
	return nil
}

// Ping verifies the offsets bucket is readable.
func (s *Store) Ping() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketOffsets) == nil {
			return fmt.Errorf("offsets bucket missing")
		}
		return nil
	})
}

func (s *Store) Close() error {
	if err := s.Commit(); err != nil {
		s.db.Close()
		return err
	}
	if err := s.db.Sync(); err != nil {
		s.db.Close()
		return fmt.Errorf("syncing offset store: %w", err)
	}
	return s.db.Close()
}

func hasPrefix(b, prefix []byte) bool {
	return len(b) >= len(prefix) && string(b[:len(prefix)]) == string(prefix)
}
