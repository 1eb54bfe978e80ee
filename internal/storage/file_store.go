package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Adda-Baaj/fia-docwatch/internal/domain"
	"github.com/Adda-Baaj/fia-docwatch/internal/fsutil"
)

const (
	watermarkLogExt = ".log"
	digestFileExt   = ".digest"
	deliveryLogExt  = ".delivered"
)

// fileStore keeps an append-only timestamp log, a digest file and an append-only
// delivery log per source. A single process is expected to own the directory.
type fileStore struct {
	dir string
	loc *time.Location
	mu  sync.Mutex

	deliveryTTL     time.Duration
	cleanupInterval time.Duration
	ledgers         map[string]*deliveryLog
	now             func() time.Time
}

func openFileStore(opts Options) (Store, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &fileStore{
		dir:             opts.Dir,
		loc:             opts.Location,
		deliveryTTL:     opts.DeliveryTTL,
		cleanupInterval: opts.CleanupInterval,
		ledgers:         map[string]*deliveryLog{},
		now:             time.Now,
	}, nil
}

// Close is a no-op; every operation opens and releases its own file handle.
func (f *fileStore) Close() error { return nil }

// ReadWatermark returns the maximum timestamp in the source's log.
func (f *fileStore) ReadWatermark(sourceID string) (time.Time, error) {
	if err := validSourceID(sourceID); err != nil {
		return time.Time{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.readLog(sourceID)
}

// AppendWatermark appends ts as a new line and fsyncs before returning.
func (f *fileStore) AppendWatermark(sourceID string, ts time.Time) error {
	if err := validSourceID(sourceID); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.readLog(sourceID)
	if err != nil {
		return err
	}
	advance, err := checkAdvance(current, ts)
	if err != nil || !advance {
		return err
	}

	line := domain.FormatTimestamp(ts.In(f.loc)) + "\n"
	if err := appendLine(f.dir, f.logPath(sourceID), line); err != nil {
		return fmt.Errorf("append watermark: %w", err)
	}
	return nil
}

// ReadDigest returns the stored digest or "" when none exists.
func (f *fileStore) ReadDigest(sourceID string) (string, error) {
	if err := validSourceID(sourceID); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.digestPath(sourceID))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read digest: %w", err)
	}
	digest := strings.TrimSpace(string(raw))
	if strings.ContainsAny(digest, " \t\r\n") {
		return "", fmt.Errorf("digest file for %q is corrupt", sourceID)
	}
	return digest, nil
}

// ReplaceDigest overwrites the digest via temp file + rename.
func (f *fileStore) ReplaceDigest(sourceID, digest string) error {
	if err := validSourceID(sourceID); err != nil {
		return err
	}
	digest = strings.TrimSpace(digest)
	if digest == "" {
		return fmt.Errorf("digest is empty")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := fsutil.WriteFileAtomic(f.digestPath(sourceID), strings.NewReader(digest+"\n"), 0o644); err != nil {
		return fmt.Errorf("replace digest: %w", err)
	}
	return nil
}

// readLog returns the maximum timestamp in the watermark log. A trailing fragment without
// a newline is an interrupted append and is not part of the committed state.
func (f *fileStore) readLog(sourceID string) (time.Time, error) {
	raw, err := os.ReadFile(f.logPath(sourceID))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.SentinelWatermark, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read watermark log: %w", err)
	}

	complete := raw[:bytes.LastIndexByte(raw, '\n')+1]
	wm := domain.SentinelWatermark
	for i, line := range strings.Split(string(complete), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ts, err := domain.ParseTimestamp(line, f.loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("watermark log %s line %d: %w", sourceID, i+1, err)
		}
		if ts.After(wm) {
			wm = ts
		}
	}
	return wm, nil
}

func (f *fileStore) logPath(sourceID string) string {
	return filepath.Join(f.dir, sourceID+watermarkLogExt)
}

func (f *fileStore) digestPath(sourceID string) string {
	return filepath.Join(f.dir, sourceID+digestFileExt)
}
