package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Adda-Baaj/fia-docwatch/internal/domain"
)

func openTestBolt(t *testing.T, path string, opts Options) *boltStore {
	t.Helper()
	raw, err := openBolt(path, normalizeOptions(opts))
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	return raw.(*boltStore)
}

func TestBoltStoreWatermarkSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	store := openTestBolt(t, path, Options{})
	wm, err := store.ReadWatermark("race")
	if err != nil {
		t.Fatalf("ReadWatermark: %v", err)
	}
	if !wm.Equal(domain.SentinelWatermark) {
		t.Fatalf("expected sentinel, got %v", wm)
	}

	committed := mustTS(t, "10.03.24 15:00")
	if err := store.AppendWatermark("race", committed); err != nil {
		t.Fatalf("AppendWatermark: %v", err)
	}
	if err := store.AppendWatermark("race", mustTS(t, "10.03.24 14:00")); !errors.Is(err, ErrWatermarkRegression) {
		t.Fatalf("expected regression error, got %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openTestBolt(t, path, Options{})
	defer reopened.Close()
	wm, err = reopened.ReadWatermark("race")
	if err != nil {
		t.Fatalf("ReadWatermark after reopen: %v", err)
	}
	if !wm.Equal(committed) {
		t.Fatalf("watermark = %v, want %v", wm, committed)
	}
}

func TestBoltStoreDigestSlot(t *testing.T) {
	store := openTestBolt(t, filepath.Join(t.TempDir(), "state.db"), Options{})
	defer store.Close()

	if d, err := store.ReadDigest("index"); err != nil || d != "" {
		t.Fatalf("expected empty digest, got %q err=%v", d, err)
	}
	if err := store.ReplaceDigest("index", "abc"); err != nil {
		t.Fatalf("ReplaceDigest: %v", err)
	}
	if d, _ := store.ReadDigest("index"); d != "abc" {
		t.Fatalf("digest = %q", d)
	}
	if err := store.ReplaceDigest("index", ""); err == nil {
		t.Fatalf("expected error for empty digest")
	}
}

func TestBoltStoreMarksAndExpiresDeliveries(t *testing.T) {
	opts := Options{
		DeliveryTTL:     time.Hour,
		CleanupInterval: time.Hour,
	}
	store := openTestBolt(t, filepath.Join(t.TempDir(), "state.db"), opts)
	defer store.Close()

	now := time.Now()
	store.now = func() time.Time { return now }

	seen, err := store.SeenDelivery("race|/doc.pdf|10.03.24 15:00")
	if err != nil || seen {
		t.Fatalf("expected unseen delivery, seen=%v err=%v", seen, err)
	}
	if err := store.MarkDelivery("race|/doc.pdf|10.03.24 15:00"); err != nil {
		t.Fatalf("MarkDelivery: %v", err)
	}
	seen, err = store.SeenDelivery("race|/doc.pdf|10.03.24 15:00")
	if err != nil || !seen {
		t.Fatalf("expected delivery marked as seen, got seen=%v err=%v", seen, err)
	}

	// Jump past both the TTL and the cleanup cadence.
	now = now.Add(2 * time.Hour)
	seen, err = store.SeenDelivery("race|/doc.pdf|10.03.24 15:00")
	if err != nil {
		t.Fatalf("SeenDelivery after expiry: %v", err)
	}
	if seen {
		t.Fatalf("expected entry to expire and be removed")
	}
}

func TestNewStoreSupportsMemory(t *testing.T) {
	store, err := NewStore("memory", Options{})
	if err != nil {
		t.Fatalf("NewStore memory: %v", err)
	}
	if err := store.AppendWatermark("race", mustTS(t, "10.03.24 15:00")); err != nil {
		t.Fatalf("memory store AppendWatermark: %v", err)
	}
	if _, err := NewStore("redis", Options{}); err == nil {
		t.Fatalf("expected error for unsupported store type")
	}
}
