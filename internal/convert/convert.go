// Package convert turns downloaded documents into artifacts that can be posted to a chat.
package convert

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Kind classifies a delivery artifact.
type Kind string

const (
	KindImage    Kind = "image"
	KindDocument Kind = "document"

	ModeImage    = "image"
	ModeDocument = "document"
)

// Artifact is a file ready for dispatch.
type Artifact struct {
	Path        string
	Kind        Kind
	ContentType string
}

// Converter produces a distributable artifact from a downloaded document.
type Converter interface {
	Convert(ctx context.Context, input string, page int) (Artifact, error)
}

// Options configures the converter built by New.
type Options struct {
	PdftoppmPath      string
	DPI               int
	MaxImageDimension int
	JPEGQuality       int
}

// New returns the converter for mode: "image" rasterizes one page, "document" forwards the PDF.
func New(mode string, opts Options) (Converter, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeImage:
		return NewRasterizer(opts), nil
	case ModeDocument:
		return Passthrough{}, nil
	default:
		return nil, fmt.Errorf("unsupported convert mode %q", mode)
	}
}

// Passthrough delivers the downloaded PDF as-is.
type Passthrough struct{}

// Convert checks the input exists and wraps it as a document artifact.
func (Passthrough) Convert(_ context.Context, input string, _ int) (Artifact, error) {
	info, err := os.Stat(input)
	if err != nil {
		return Artifact{}, fmt.Errorf("stat document: %w", err)
	}
	if info.Size() == 0 {
		return Artifact{}, fmt.Errorf("document %s is empty", input)
	}
	return Artifact{Path: input, Kind: KindDocument, ContentType: "application/pdf"}, nil
}
