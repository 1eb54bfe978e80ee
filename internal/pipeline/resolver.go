package pipeline

import (
	"slices"
	"time"

	"github.com/Adda-Baaj/fia-docwatch/internal/domain"
)

// ResolveNew returns the records published strictly after watermark, oldest first.
// Records sharing a timestamp keep their page order. The input slice is not modified.
func ResolveNew(records []domain.DocumentRecord, watermark time.Time) []domain.DocumentRecord {
	if len(records) == 0 {
		return nil
	}

	ordered := slices.Clone(records)
	slices.SortStableFunc(ordered, func(a, b domain.DocumentRecord) int {
		return a.PublishedAt.Compare(b.PublishedAt)
	})

	start, _ := slices.BinarySearchFunc(ordered, watermark, func(rec domain.DocumentRecord, wm time.Time) int {
		if rec.PublishedAt.After(wm) {
			return 1
		}
		return -1
	})
	return ordered[start:]
}

// PageChanged reports whether digest differs from the stored one. No stored digest
// counts as a change.
func PageChanged(digest, stored string) bool {
	return stored == "" || digest != stored
}
