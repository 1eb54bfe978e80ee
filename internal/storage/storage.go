// Package storage persists pipeline progress: watermarks, page digests and delivered documents.
package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrWatermarkRegression is returned when a commit would move a watermark backwards.
var ErrWatermarkRegression = errors.New("watermark regression")

// WatermarkLog is the timestamp-log variant of the processed marker.
type WatermarkLog interface {
	// ReadWatermark returns the newest committed timestamp or the sentinel when nothing was committed.
	ReadWatermark(sourceID string) (time.Time, error)
	// AppendWatermark durably records ts as processed.
	AppendWatermark(sourceID string, ts time.Time) error
}

// DigestSlot is the page-hash variant of the processed marker.
type DigestSlot interface {
	// ReadDigest returns the last committed page digest, or "" when none exists.
	ReadDigest(sourceID string) (string, error)
	// ReplaceDigest atomically overwrites the stored digest.
	ReplaceDigest(sourceID, digest string) error
}

// DeliveryLedger remembers documents that were already sent.
type DeliveryLedger interface {
	SeenDelivery(key string) (bool, error)
	MarkDelivery(key string) error
}

// Store bundles every persisted marker kind behind one handle.
type Store interface {
	WatermarkLog
	DigestSlot
	DeliveryLedger
	Close() error
}

// Options controls location and retention characteristics for concrete store implementations.
type Options struct {
	Dir             string
	BBoltPath       string
	Location        *time.Location
	DeliveryTTL     time.Duration
	CleanupInterval time.Duration
}

const (
	TypeFile   = "file"
	TypeBBolt  = "bbolt"
	TypeMemory = "memory"

	defaultDeliveryTTL     = 30 * 24 * time.Hour
	defaultCleanupInterval = 12 * time.Hour
)

// NewStore creates the configured storage backend.
func NewStore(typ string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", TypeFile:
		if strings.TrimSpace(opts.Dir) == "" {
			return nil, fmt.Errorf("file storage requires a state directory")
		}
		return openFileStore(opts)
	case TypeBBolt:
		if strings.TrimSpace(opts.BBoltPath) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(opts.BBoltPath, opts)
	case TypeMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.DeliveryTTL <= 0 {
		opts.DeliveryTTL = defaultDeliveryTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

// checkAdvance validates a watermark commit against the current value.
// It reports whether the commit changes anything.
func checkAdvance(current, next time.Time) (bool, error) {
	switch {
	case next.Before(current):
		return false, fmt.Errorf("%w: %s is before %s", ErrWatermarkRegression, next.Format(time.RFC3339), current.Format(time.RFC3339))
	case next.Equal(current):
		return false, nil
	default:
		return true, nil
	}
}

func validSourceID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("source id is empty")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("source id %q is not a valid state key", id)
	}
	return nil
}
