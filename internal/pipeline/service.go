package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adda-Baaj/fia-docwatch/internal/logger"
	"github.com/Adda-Baaj/fia-docwatch/internal/metrics"
	"github.com/Adda-Baaj/fia-docwatch/internal/storage"
	"github.com/Adda-Baaj/fia-docwatch/pkg/publishers"
	"github.com/Adda-Baaj/fia-docwatch/pkg/sources"
)

var errNotSent = errors.New("document was not sent")

// SourceReport summarizes one source's part of a cycle.
type SourceReport struct {
	SourceID  string    `json:"source_id"`
	Mode      string    `json:"mode"`
	Detected  int       `json:"detected"`
	Delivered int       `json:"delivered"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped_rows"`
	Watermark time.Time `json:"watermark,omitzero"`
	Changed   bool      `json:"changed"`
	Error     string    `json:"error,omitempty"`
	Err       error     `json:"-"`
}

// Service runs one detection and delivery cycle across sources.
type Service struct {
	fetcher     PageFetcher
	extractor   RecordExtractor
	store       storage.Store
	deliverer   ItemDeliverer
	dispatcher  Dispatcher
	itemTimeout time.Duration
	log         logger.Logger
}

// NewService wires the cycle service. dispatcher is used for page change notices.
func NewService(fetcher PageFetcher, extractor RecordExtractor, store storage.Store, deliverer ItemDeliverer, dispatcher Dispatcher, itemTimeout time.Duration, log logger.Logger) *Service {
	if log == nil {
		log = logger.NopLogger{}
	}
	if itemTimeout <= 0 {
		itemTimeout = defaultItemTimeout
	}
	return &Service{
		fetcher:     fetcher,
		extractor:   extractor,
		store:       store,
		deliverer:   deliverer,
		dispatcher:  dispatcher,
		itemTimeout: itemTimeout,
		log:         log,
	}
}

// Run processes every source in order. A failing source never prevents the others from
// running; all failures are joined into the returned error.
func (s *Service) Run(ctx context.Context, srcs []sources.Source) ([]SourceReport, error) {
	if s == nil || s.fetcher == nil || s.store == nil {
		return nil, fmt.Errorf("pipeline service is not initialized")
	}
	if len(srcs) == 0 {
		return nil, fmt.Errorf("no sources configured")
	}

	reports := make([]SourceReport, 0, len(srcs))
	var errs []error
	for _, src := range srcs {
		if ctx.Err() != nil {
			break
		}

		report := s.runSource(ctx, src)
		if report.Err != nil {
			report.Error = report.Err.Error()
		}
		reports = append(reports, report)
		if report.Err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", src.ID, report.Err))
			s.log.ErrorObj("source cycle failed", "source_error", map[string]any{
				"source_id": src.ID,
				"error":     report.Err.Error(),
			})
			continue
		}
		s.log.InfoObj("source cycle completed", "source_result", report)
	}
	return reports, errors.Join(errs...)
}

func (s *Service) runSource(ctx context.Context, src sources.Source) SourceReport {
	switch src.Mode {
	case sources.ModePageHash:
		return s.runPageHash(ctx, src)
	case sources.ModeTimestampLog, "":
		return s.runTimestampLog(ctx, src)
	default:
		return SourceReport{SourceID: src.ID, Mode: src.Mode, Err: fmt.Errorf("unsupported mode %q", src.Mode)}
	}
}

// runTimestampLog delivers every document newer than the watermark, oldest first. The
// watermark only moves across the leading run of successful deliveries, so a failed item
// and everything after it is detected again next cycle.
func (s *Service) runTimestampLog(ctx context.Context, src sources.Source) SourceReport {
	report := SourceReport{SourceID: src.ID, Mode: sources.ModeTimestampLog}

	wm, err := s.store.ReadWatermark(src.ID)
	if err != nil {
		report.Err = fmt.Errorf("read watermark: %w", err)
		return report
	}
	report.Watermark = wm

	snap, err := s.fetcher.Fetch(ctx, src)
	if err != nil {
		metrics.ObserveFetch(src.ID, "error")
		report.Err = fmt.Errorf("fetch: %w", err)
		return report
	}
	metrics.ObserveFetch(src.ID, "ok")

	extracted, err := s.extractor.Extract(snap, src.Templates, sources.SelectorsFor(src))
	if err != nil {
		report.Err = fmt.Errorf("extract: %w", err)
		return report
	}
	report.Skipped = len(extracted.Skipped)
	for _, rowErr := range extracted.Skipped {
		s.log.WarnObj("document row skipped", "row_skipped", map[string]any{
			"source_id": src.ID,
			"row":       rowErr.Index,
			"rows":      extracted.Rows,
			"reason":    rowErr.Reason,
		})
	}
	if !sources.NewestFirst(extracted.Records) {
		s.log.WarnObj("index page is not ordered newest-first", "source_id", src.ID)
	}

	fresh := ResolveNew(extracted.Records, wm)
	report.Detected = len(fresh)

	var errs []error
	held := false
	for i, rec := range fresh {
		if ctx.Err() != nil {
			s.log.InfoObj("cycle interrupted between documents", "source_interrupted", map[string]any{
				"source_id": src.ID,
				"pending":   len(fresh) - i,
			})
			break
		}

		res := s.deliverer.Deliver(ctx, src, rec)
		metrics.ObserveDocument(src.ID, res.Stage())
		if !res.Delivered() {
			cause := res.Err
			if cause == nil {
				cause = errNotSent
			}
			report.Failed++
			held = true
			errs = append(errs, fmt.Errorf("deliver %s at stage %s: %w", rec.Key(), res.Stage(), cause))
			continue
		}
		report.Delivered++

		if held {
			continue
		}
		// Documents sharing a timestamp are committed together, after the last of them.
		if i+1 < len(fresh) && fresh[i+1].PublishedAt.Equal(rec.PublishedAt) {
			continue
		}
		if err := s.store.AppendWatermark(src.ID, rec.PublishedAt); err != nil {
			held = true
			errs = append(errs, fmt.Errorf("commit watermark: %w", err))
			continue
		}
		report.Watermark = rec.PublishedAt
	}

	metrics.SetWatermark(src.ID, report.Watermark)
	report.Err = errors.Join(errs...)
	return report
}

// runPageHash notifies once when the page digest differs from the stored one. The digest
// is only replaced after the notice went out.
func (s *Service) runPageHash(ctx context.Context, src sources.Source) SourceReport {
	report := SourceReport{SourceID: src.ID, Mode: sources.ModePageHash}

	stored, err := s.store.ReadDigest(src.ID)
	if err != nil {
		report.Err = fmt.Errorf("read digest: %w", err)
		return report
	}

	snap, err := s.fetcher.Fetch(ctx, src)
	if err != nil {
		metrics.ObserveFetch(src.ID, "error")
		report.Err = fmt.Errorf("fetch: %w", err)
		return report
	}
	metrics.ObserveFetch(src.ID, "ok")

	if !PageChanged(snap.ContentHash, stored) {
		return report
	}
	report.Changed = true
	report.Detected = 1
	metrics.ObservePageChange(src.ID)

	if s.dispatcher == nil {
		report.Failed = 1
		report.Err = errors.New("no dispatcher configured")
		return report
	}

	itemCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.itemTimeout)
	defer cancel()

	evt := publishers.NewPageChangedEvent(src.ID, src.Name, src.SourceURL)
	if _, err := s.dispatcher.Publish(itemCtx, evt); err != nil {
		report.Failed = 1
		report.Err = fmt.Errorf("dispatch page change: %w", err)
		return report
	}
	if err := s.store.ReplaceDigest(src.ID, snap.ContentHash); err != nil {
		report.Err = fmt.Errorf("commit digest: %w", err)
		return report
	}
	report.Delivered = 1
	return report
}

// Status is a point-in-time view of the watch loop.
type Status struct {
	Running      bool           `json:"running"`
	Cycles       int64          `json:"cycles"`
	FailedCycles int64          `json:"failed_cycles"`
	LastStart    time.Time      `json:"last_start,omitzero"`
	LastEnd      time.Time      `json:"last_end,omitzero"`
	NextRun      time.Time      `json:"next_run,omitzero"`
	LastError    string         `json:"last_error,omitempty"`
	LastReports  []SourceReport `json:"last_reports,omitempty"`
	ScheduleMode string         `json:"schedule_mode"`
	PollInterval string         `json:"poll_interval"`
	Sources      []string       `json:"sources"`
}
