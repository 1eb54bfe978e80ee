// Package domain contains core models shared by the watcher pipeline.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the published-date format used by the document index ("DD.MM.YY HH:MM").
const DateLayout = "02.01.06 15:04"

// SentinelWatermark is the watermark assumed when no state has been persisted yet
// ("01.01.01 00:00"). Any real document published after it is considered new.
var SentinelWatermark = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// SourceSnapshot is one fetched copy of a document index page. It is never persisted whole.
type SourceSnapshot struct {
	SourceID    string
	URL         string
	FetchedAt   time.Time
	Body        []byte
	ContentHash string
}

// Template is a title pattern that marks a document row as interesting.
type Template struct {
	Name  string `json:"name" yaml:"name"`
	Match string `json:"match" yaml:"match"`
}

// DocumentRecord is a single publishable document found on the index page.
type DocumentRecord struct {
	SourceID        string    `json:"source_id"`
	PublishedAt     time.Time `json:"published_at"`
	RelativeLink    string    `json:"relative_link"`
	Title           string    `json:"title"`
	MatchedTemplate string    `json:"matched_template"`
}

// PublishedLabel formats the publication time the same way the index page does.
func (d DocumentRecord) PublishedLabel() string {
	return FormatTimestamp(d.PublishedAt)
}

// Key identifies a document across cycles.
func (d DocumentRecord) Key() string {
	return strings.Join([]string{d.SourceID, d.RelativeLink, d.PublishedLabel()}, "|")
}

// DeliveryResult tracks how far a single document got through the delivery chain.
type DeliveryResult struct {
	Document     DocumentRecord
	ArtifactPath string
	Downloaded   bool
	Converted    bool
	Sent         bool
	Deduplicated bool
	Err          error
}

// Delivered reports whether the document may advance the watermark.
func (r DeliveryResult) Delivered() bool {
	return r.Sent && r.Err == nil
}

// Stage names the step the delivery stopped at.
func (r DeliveryResult) Stage() string {
	switch {
	case r.Delivered():
		return "sent"
	case r.Converted:
		return "dispatch"
	case r.Downloaded:
		return "convert"
	default:
		return "download"
	}
}

// ParseTimestamp parses a "DD.MM.YY HH:MM" label in the given location.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	ts, err := time.ParseInLocation(DateLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return ts, nil
}

// FormatTimestamp renders ts in the "DD.MM.YY HH:MM" layout.
func FormatTimestamp(ts time.Time) string {
	return ts.Format(DateLayout)
}
