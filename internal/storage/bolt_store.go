package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adda-Baaj/fia-docwatch/internal/domain"
	bolt "go.etcd.io/bbolt"
)

const (
	watermarkBucket  = "watermarks"
	digestBucket     = "digests"
	deliveryBucket   = "deliveries"
	expiryValueBytes = 8
)

// boltStore implements a Store backed by BoltDB. Every commit is a single fsynced transaction.
type boltStore struct {
	db              *bolt.DB
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	deliveryTTL     time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string, opts Options) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{watermarkBucket, digestBucket, deliveryBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	store := &boltStore{
		db:              db,
		deliveryTTL:     opts.DeliveryTTL,
		cleanupInterval: opts.CleanupInterval,
		now:             time.Now,
	}
	store.lastCleanup.Store(store.now().Unix())
	return store, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// ReadWatermark returns the last appended timestamp for the source.
// Entries are append-only and monotonic, so the last key holds the maximum.
func (b *boltStore) ReadWatermark(sourceID string) (time.Time, error) {
	if err := validSourceID(sourceID); err != nil {
		return time.Time{}, err
	}

	wm := domain.SentinelWatermark
	err := b.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(watermarkBucket))
		if root == nil {
			return fmt.Errorf("watermark bucket missing")
		}
		log := root.Bucket([]byte(sourceID))
		if log == nil {
			return nil
		}
		_, v := log.Cursor().Last()
		if v == nil {
			return nil
		}
		ts, err := decodeTimestamp(v)
		if err != nil {
			return fmt.Errorf("watermark for %q is corrupt: %w", sourceID, err)
		}
		wm = ts
		return nil
	})
	return wm, err
}

// AppendWatermark appends ts to the source's sequence-keyed log.
func (b *boltStore) AppendWatermark(sourceID string, ts time.Time) error {
	if err := validSourceID(sourceID); err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(watermarkBucket))
		if root == nil {
			return fmt.Errorf("watermark bucket missing")
		}
		log, err := root.CreateBucketIfNotExists([]byte(sourceID))
		if err != nil {
			return err
		}

		current := domain.SentinelWatermark
		if _, v := log.Cursor().Last(); v != nil {
			if current, err = decodeTimestamp(v); err != nil {
				return fmt.Errorf("watermark for %q is corrupt: %w", sourceID, err)
			}
		}
		advance, err := checkAdvance(current, ts)
		if err != nil || !advance {
			return err
		}

		seq, err := log.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return log.Put(key, encodeTimestamp(ts))
	})
}

// ReadDigest returns the stored page digest, or "" when none exists.
func (b *boltStore) ReadDigest(sourceID string) (string, error) {
	if err := validSourceID(sourceID); err != nil {
		return "", err
	}

	var digest string
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(digestBucket))
		if bucket == nil {
			return fmt.Errorf("digest bucket missing")
		}
		digest = string(bucket.Get([]byte(sourceID)))
		return nil
	})
	return digest, err
}

// ReplaceDigest overwrites the stored page digest.
func (b *boltStore) ReplaceDigest(sourceID, digest string) error {
	if err := validSourceID(sourceID); err != nil {
		return err
	}
	if digest == "" {
		return fmt.Errorf("digest is empty")
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(digestBucket))
		if bucket == nil {
			return fmt.Errorf("digest bucket missing")
		}
		return bucket.Put([]byte(sourceID), []byte(digest))
	})
}

// SeenDelivery checks if a document with the given key has already been sent.
func (b *boltStore) SeenDelivery(key string) (bool, error) {
	if b == nil || b.db == nil {
		return false, nil
	}

	now := b.now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return false, err
	}

	var exists bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(deliveryBucket))
		if bucket == nil {
			return fmt.Errorf("delivery bucket missing")
		}

		k := []byte(key)
		value := bucket.Get(k)
		if value == nil {
			exists = false
			return nil
		}

		expiry, ok := decodeExpiry(value)
		if !ok || !expiry.After(now) {
			exists = false
			return bucket.Delete(k)
		}

		exists = true
		return nil
	})
	return exists, err
}

// MarkDelivery records a document key as sent.
func (b *boltStore) MarkDelivery(key string) error {
	if b == nil || b.db == nil {
		return nil
	}

	now := b.now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(deliveryBucket))
		if bucket == nil {
			return fmt.Errorf("delivery bucket missing")
		}
		buf := make([]byte, expiryValueBytes)
		binary.BigEndian.PutUint64(buf, uint64(now.Add(b.deliveryTTL).Unix()))
		return bucket.Put([]byte(key), buf)
	})
}

// maybeCleanupExpired removes expired delivery keys on a fixed cadence to avoid unbounded growth.
func (b *boltStore) maybeCleanupExpired(now time.Time) error {
	last := time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	b.cleanupMu.Lock()
	defer b.cleanupMu.Unlock()

	last = time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(deliveryBucket))
		if bucket == nil {
			return fmt.Errorf("delivery bucket missing")
		}

		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			expiry, ok := decodeExpiry(v)
			if !ok || !expiry.After(now) {
				if err := cursor.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil {
		b.lastCleanup.Store(now.Unix())
	}
	return err
}

// decodeExpiry decodes the expiry time from the stored byte slice.
func decodeExpiry(value []byte) (time.Time, bool) {
	if len(value) != expiryValueBytes {
		return time.Time{}, false
	}
	unix := int64(binary.BigEndian.Uint64(value))
	if unix <= 0 {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}

func encodeTimestamp(ts time.Time) []byte {
	return []byte(ts.UTC().Format(time.RFC3339))
}

func decodeTimestamp(value []byte) (time.Time, error) {
	return time.Parse(time.RFC3339, string(value))
}
