package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Adda-Baaj/fia-docwatch/internal/fsutil"
)

// deliveryLog is the in-memory view of one source's <id>.delivered file. Each line is
// "<expiry RFC3339>\t<key>"; the newest line for a key wins.
type deliveryLog struct {
	entries     map[string]time.Time
	lastCompact time.Time
}

// SeenDelivery reports whether key was marked and has not expired yet.
func (f *fileStore) SeenDelivery(key string) (bool, error) {
	sourceID, err := deliverySource(key)
	if err != nil {
		return false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ledger, err := f.loadDeliveries(sourceID)
	if err != nil {
		return false, err
	}
	expiry, ok := ledger.entries[key]
	return ok && expiry.After(f.now()), nil
}

// MarkDelivery appends key to the source's delivery log and fsyncs before returning.
func (f *fileStore) MarkDelivery(key string) error {
	sourceID, err := deliverySource(key)
	if err != nil {
		return err
	}
	if strings.ContainsAny(key, "\t\r\n") {
		return fmt.Errorf("delivery key %q contains control characters", key)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ledger, err := f.loadDeliveries(sourceID)
	if err != nil {
		return err
	}
	now := f.now()
	if err := f.compactDeliveries(sourceID, ledger, now); err != nil {
		return err
	}

	expiry := now.Add(f.deliveryTTL).UTC()
	line := expiry.Format(time.RFC3339) + "\t" + key + "\n"
	if err := appendLine(f.dir, f.deliveryPath(sourceID), line); err != nil {
		return fmt.Errorf("append delivery: %w", err)
	}
	ledger.entries[key] = expiry
	return nil
}

// loadDeliveries reads the source's delivery file on first use. Expired entries are dropped
// on load.
func (f *fileStore) loadDeliveries(sourceID string) (*deliveryLog, error) {
	if ledger, ok := f.ledgers[sourceID]; ok {
		return ledger, nil
	}

	now := f.now()
	ledger := &deliveryLog{entries: map[string]time.Time{}, lastCompact: now}
	raw, err := os.ReadFile(f.deliveryPath(sourceID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read delivery log: %w", err)
	}

	complete := raw[:bytes.LastIndexByte(raw, '\n')+1]
	for i, line := range strings.Split(string(complete), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rawExpiry, key, ok := strings.Cut(line, "\t")
		if !ok || key == "" {
			return nil, fmt.Errorf("delivery log %s line %d is corrupt", sourceID, i+1)
		}
		expiry, err := time.Parse(time.RFC3339, rawExpiry)
		if err != nil {
			return nil, fmt.Errorf("delivery log %s line %d: %w", sourceID, i+1, err)
		}
		if expiry.After(now) {
			ledger.entries[key] = expiry
		} else {
			delete(ledger.entries, key)
		}
	}

	f.ledgers[sourceID] = ledger
	return ledger, nil
}

// compactDeliveries rewrites the delivery file without expired keys once per cleanup
// interval.
func (f *fileStore) compactDeliveries(sourceID string, ledger *deliveryLog, now time.Time) error {
	if now.Sub(ledger.lastCompact) < f.cleanupInterval {
		return nil
	}

	var buf bytes.Buffer
	for key, expiry := range ledger.entries {
		if !expiry.After(now) {
			delete(ledger.entries, key)
			continue
		}
		buf.WriteString(expiry.UTC().Format(time.RFC3339) + "\t" + key + "\n")
	}
	if _, err := fsutil.WriteFileAtomic(f.deliveryPath(sourceID), &buf, 0o644); err != nil {
		return fmt.Errorf("compact delivery log: %w", err)
	}
	ledger.lastCompact = now
	return nil
}

func (f *fileStore) deliveryPath(sourceID string) string {
	return filepath.Join(f.dir, sourceID+deliveryLogExt)
}

// deliverySource extracts the source id that prefixes a document key.
func deliverySource(key string) (string, error) {
	sourceID, _, ok := strings.Cut(key, "|")
	if !ok {
		return "", fmt.Errorf("delivery key %q has no source prefix", key)
	}
	if err := validSourceID(sourceID); err != nil {
		return "", err
	}
	return sourceID, nil
}

// appendLine appends one newline-terminated record, dropping a torn tail left by an
// interrupted append, and fsyncs the file (and the directory when the file is new).
func appendLine(dir, path, line string) error {
	var size, validEnd int64
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		size = int64(len(raw))
		validEnd = int64(bytes.LastIndexByte(raw, '\n') + 1)
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	if validEnd < size {
		if err := file.Truncate(validEnd); err != nil {
			return err
		}
	}
	if _, err := file.WriteString(line); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	if size == 0 {
		return fsutil.SyncDir(dir)
	}
	return nil
}
