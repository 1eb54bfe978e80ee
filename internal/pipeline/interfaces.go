package pipeline

import (
	"context"

	"github.com/Adda-Baaj/fia-docwatch/internal/domain"
	"github.com/Adda-Baaj/fia-docwatch/pkg/publishers"
	"github.com/Adda-Baaj/fia-docwatch/pkg/sources"
)

// PageFetcher retrieves index pages and documents.
type PageFetcher interface {
	Fetch(ctx context.Context, src sources.Source) (domain.SourceSnapshot, error)
	Download(ctx context.Context, src sources.Source, link, dest string) (int64, error)
}

// RecordExtractor turns a fetched page into document records.
type RecordExtractor interface {
	Extract(snap domain.SourceSnapshot, templates []domain.Template, sel sources.Selectors) (sources.ExtractResult, error)
}

// Dispatcher fans an event out to every notification endpoint.
type Dispatcher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// ItemDeliverer runs the download, convert and dispatch chain for one document.
type ItemDeliverer interface {
	Deliver(ctx context.Context, src sources.Source, rec domain.DocumentRecord) domain.DeliveryResult
}
