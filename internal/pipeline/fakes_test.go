package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Adda-Baaj/fia-docwatch/internal/convert"
	"github.com/Adda-Baaj/fia-docwatch/internal/domain"
	"github.com/Adda-Baaj/fia-docwatch/pkg/publishers"
	"github.com/Adda-Baaj/fia-docwatch/pkg/sources"
)

// fakeFetcher serves a fixed snapshot per source and writes downloads to disk.
type fakeFetcher struct {
	mu          sync.Mutex
	snapshots   map[string]domain.SourceSnapshot
	fetchErr    map[string]error
	downloadErr map[string]error
	downloads   []string
	ctxErrs     []error
}

func (f *fakeFetcher) Fetch(_ context.Context, src sources.Source) (domain.SourceSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr[src.ID]; err != nil {
		return domain.SourceSnapshot{}, err
	}
	return f.snapshots[src.ID], nil
}

func (f *fakeFetcher) Download(ctx context.Context, _ sources.Source, link, dest string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, link)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if err := f.downloadErr[link]; err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}
	return 4, os.WriteFile(dest, []byte("%PDF"), 0o644)
}

// fakeExtractor returns preset records per source.
type fakeExtractor struct {
	records map[string][]domain.DocumentRecord
	skipped map[string][]sources.RowError
}

func (f *fakeExtractor) Extract(snap domain.SourceSnapshot, _ []domain.Template, _ sources.Selectors) (sources.ExtractResult, error) {
	return sources.ExtractResult{
		Records: f.records[snap.SourceID],
		Skipped: f.skipped[snap.SourceID],
	}, nil
}

// fakeConverter passes the download through as an image artifact.
type fakeConverter struct {
	err error
}

func (f fakeConverter) Convert(_ context.Context, input string, _ int) (convert.Artifact, error) {
	if f.err != nil {
		return convert.Artifact{}, f.err
	}
	return convert.Artifact{Path: input + ".jpg", Kind: convert.KindImage, ContentType: "image/jpeg"}, nil
}

// fakeDispatcher records events and fails for selected document links.
type fakeDispatcher struct {
	mu     sync.Mutex
	events []publishers.Event
	failOn map[string]bool
	err    error
}

func (f *fakeDispatcher) Publish(_ context.Context, evt publishers.Event) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	if f.err != nil {
		return 0, f.err
	}
	for link := range f.failOn {
		if strings.HasSuffix(evt.DocumentURL, link) {
			return 0, errors.New("publisher unavailable")
		}
	}
	return 1, nil
}

// fakeDeliverer decides per link whether delivery succeeds.
type fakeDeliverer struct {
	mu        sync.Mutex
	attempted []string
	failOn    map[string]bool
	onDeliver func(link string)
}

func (f *fakeDeliverer) Deliver(_ context.Context, _ sources.Source, rec domain.DocumentRecord) domain.DeliveryResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempted = append(f.attempted, rec.RelativeLink)
	if f.onDeliver != nil {
		f.onDeliver(rec.RelativeLink)
	}
	if f.failOn[rec.RelativeLink] {
		return domain.DeliveryResult{Document: rec, Downloaded: true, Err: errors.New("download timed out")}
	}
	return domain.DeliveryResult{Document: rec, Downloaded: true, Converted: true, Sent: true}
}
