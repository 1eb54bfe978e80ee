package pipeline

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/Adda-Baaj/fia-docwatch/internal/convert"
	"github.com/Adda-Baaj/fia-docwatch/internal/domain"
	"github.com/Adda-Baaj/fia-docwatch/internal/logger"
	"github.com/Adda-Baaj/fia-docwatch/internal/storage"
	"github.com/Adda-Baaj/fia-docwatch/pkg/publishers"
	"github.com/Adda-Baaj/fia-docwatch/pkg/sources"
)

const (
	defaultItemTimeout = 2 * time.Minute
	maxSlugLen         = 60
)

// DelivererConfig tunes a Deliverer.
type DelivererConfig struct {
	DownloadDir string
	RenderPage  int
	ItemTimeout time.Duration
}

// Deliverer downloads a document, converts it, and dispatches it to every publisher.
type Deliverer struct {
	fetcher    PageFetcher
	converter  convert.Converter
	dispatcher Dispatcher
	ledger     storage.DeliveryLedger
	cfg        DelivererConfig
	log        logger.Logger
}

// NewDeliverer wires the delivery chain. ledger may be nil.
func NewDeliverer(fetcher PageFetcher, converter convert.Converter, dispatcher Dispatcher, ledger storage.DeliveryLedger, cfg DelivererConfig, log logger.Logger) *Deliverer {
	if log == nil {
		log = logger.NopLogger{}
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = defaultItemTimeout
	}
	return &Deliverer{
		fetcher:    fetcher,
		converter:  converter,
		dispatcher: dispatcher,
		ledger:     ledger,
		cfg:        cfg,
		log:        log,
	}
}

// Deliver runs the chain for rec and reports how far it got. Once started, an item runs to
// completion or its own timeout even if ctx is cancelled.
func (d *Deliverer) Deliver(ctx context.Context, src sources.Source, rec domain.DocumentRecord) domain.DeliveryResult {
	res := domain.DeliveryResult{Document: rec}
	key := rec.Key()

	if d.ledger != nil {
		seen, err := d.ledger.SeenDelivery(key)
		switch {
		case err != nil:
			d.log.WarnObj("delivery ledger lookup failed", "ledger_error", map[string]any{
				"key":   key,
				"error": err.Error(),
			})
		case seen:
			d.log.InfoObj("document already delivered", "document_dedup", map[string]any{
				"source_id": src.ID,
				"key":       key,
			})
			res.Sent = true
			res.Deduplicated = true
			return res
		}
	}

	itemCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.ItemTimeout)
	defer cancel()

	docURL, err := src.ResolveLink(rec.RelativeLink)
	if err != nil {
		res.Err = fmt.Errorf("resolve document link: %w", err)
		return res
	}

	dest := d.documentPath(src.ID, rec)
	if _, err := d.fetcher.Download(itemCtx, src, rec.RelativeLink, dest); err != nil {
		res.Err = fmt.Errorf("download: %w", err)
		return res
	}
	res.Downloaded = true

	art, err := d.converter.Convert(itemCtx, dest, d.cfg.RenderPage)
	if err != nil {
		res.Err = fmt.Errorf("convert: %w", err)
		return res
	}
	res.Converted = true
	res.ArtifactPath = art.Path

	evt := publishers.NewDocumentEvent(src.ID, src.Name, rec, docURL).
		WithArtifact(art.Path, string(art.Kind), art.ContentType)
	if _, err := d.dispatcher.Publish(itemCtx, evt); err != nil {
		res.Err = fmt.Errorf("dispatch: %w", err)
		return res
	}
	res.Sent = true

	if d.ledger != nil {
		if err := d.ledger.MarkDelivery(key); err != nil {
			d.log.WarnObj("delivery ledger update failed", "ledger_error", map[string]any{
				"key":   key,
				"error": err.Error(),
			})
		}
	}
	return res
}

// documentPath is <download_dir>/<source>/<YYYYMMDD-HHMM>-<slug>.pdf.
func (d *Deliverer) documentPath(sourceID string, rec domain.DocumentRecord) string {
	name := slugify(rec.Title)
	if name == "" {
		name = slugify(strings.TrimSuffix(path.Base(rec.RelativeLink), path.Ext(rec.RelativeLink)))
	}
	if name == "" {
		name = "document"
	}
	return filepath.Join(d.cfg.DownloadDir, sourceID, rec.PublishedAt.Format("20060102-1504")+"-"+name+".pdf")
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}
	out := b.String()
	if len(out) > maxSlugLen {
		out = out[:maxSlugLen]
	}
	return strings.Trim(out, "-")
}
