// Package bbolt provides a BoltDB-backed ledger with CBOR-encoded items.
package bbolt

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
	"github.com/openkfw/trubudget/internal/services/budget/ledger"
	"go.etcd.io/bbolt"
)

const (
	streamsBucket = "streams"
	itemsBucket   = "items"
)

type streamRecord struct {
	Stream ledger.Stream `cbor:"stream"`
	Order  uint64        `cbor:"order"`
}

// Store provides a BoltDB-backed ledger.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed ledger at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// GetOrCreateStream creates the stream when missing.
func (s *Store) GetOrCreateStream(ctx context.Context, kind event.StreamKind, name string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("stream name is required")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		streams := tx.Bucket([]byte(streamsBucket))
		if streams == nil {
			return fmt.Errorf("streams bucket is missing")
		}
		if payload := streams.Get([]byte(name)); payload != nil {
			var record streamRecord
			if err := unmarshal(payload, &record); err != nil {
				return fmt.Errorf("unmarshal stream %s: %w", name, err)
			}
			if record.Stream.Kind != kind {
				return fmt.Errorf("%w: %s is %s", ledger.ErrStreamKindMismatch, name, record.Stream.Kind)
			}
			return nil
		}
		order, err := streams.NextSequence()
		if err != nil {
			return fmt.Errorf("next stream order: %w", err)
		}
		payload, err := marshal(streamRecord{
			Stream: ledger.Stream{Name: name, Kind: kind, CreatedAt: time.Now().UTC()},
			Order:  order,
		})
		if err != nil {
			return fmt.Errorf("marshal stream %s: %w", name, err)
		}
		if err := streams.Put([]byte(name), payload); err != nil {
			return err
		}
		if _, err := tx.Bucket([]byte(itemsBucket)).CreateBucket([]byte(name)); err != nil {
			return fmt.Errorf("create items bucket for %s: %w", name, err)
		}
		return nil
	})
}

// AppendEvent appends data under key.
func (s *Store) AppendEvent(ctx context.Context, stream, key string, data ledger.Data) (uint64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}

	var seq uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := streamItems(tx, stream)
		if err != nil {
			return err
		}
		if seq, err = bucket.NextSequence(); err != nil {
			return fmt.Errorf("next seq for %s: %w", stream, err)
		}
		payload, err := marshal(ledger.Item{Stream: stream, Key: key, Seq: seq, Data: data})
		if err != nil {
			return fmt.Errorf("marshal item: %w", err)
		}
		return bucket.Put(seqKey(seq), payload)
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// ReadEvents returns the items under key.
func (s *Store) ReadEvents(ctx context.Context, stream, key string) ([]ledger.Item, error) {
	items, err := s.ReadStream(ctx, stream, 0)
	if err != nil {
		return nil, err
	}
	out := items[:0]
	for _, item := range items {
		if item.Key == key {
			out = append(out, item)
		}
	}
	return out, nil
}

// ReadStream returns the items after seq.
func (s *Store) ReadStream(ctx context.Context, stream string, after uint64) ([]ledger.Item, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	var out []ledger.Item
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := streamItems(tx, stream)
		if err != nil {
			return err
		}
		cursor := bucket.Cursor()
		for k, v := cursor.Seek(seqKey(after + 1)); k != nil; k, v = cursor.Next() {
			var item ledger.Item
			if err := unmarshal(v, &item); err != nil {
				return fmt.Errorf("unmarshal item %s/%d: %w", stream, binary.BigEndian.Uint64(k), err)
			}
			out = append(out, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Streams lists streams of kind in creation order.
func (s *Store) Streams(ctx context.Context, kind event.StreamKind) ([]ledger.Stream, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	var records []streamRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(streamsBucket)).ForEach(func(k, v []byte) error {
			var record streamRecord
			if err := unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshal stream %s: %w", k, err)
			}
			if record.Stream.Kind == kind {
				records = append(records, record)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Order < records[j].Order })
	out := make([]ledger.Stream, len(records))
	for i, record := range records {
		out[i] = record.Stream
	}
	return out, nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{streamsBucket, itemsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func streamItems(tx *bbolt.Tx, stream string) (*bbolt.Bucket, error) {
	items := tx.Bucket([]byte(itemsBucket))
	if items == nil {
		return nil, fmt.Errorf("items bucket is missing")
	}
	bucket := items.Bucket([]byte(stream))
	if bucket == nil {
		return nil, fmt.Errorf("%w: %s", ledger.ErrStreamNotFound, stream)
	}
	return bucket, nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
