package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Adda-Baaj/fia-docwatch/internal/fsutil"
	"golang.org/x/image/draw"
)

const (
	defaultPdftoppm    = "pdftoppm"
	defaultDPI         = 110
	defaultMaxDim      = 2560
	defaultJPEGQuality = 88
)

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Rasterizer renders a single PDF page to JPEG with poppler's pdftoppm, then bounds the
// image size so chat platforms accept it.
type Rasterizer struct {
	binary  string
	dpi     int
	maxDim  int
	quality int
	run     runFunc
}

// NewRasterizer builds a rasterizer, filling unset options with defaults.
func NewRasterizer(opts Options) *Rasterizer {
	r := &Rasterizer{
		binary:  strings.TrimSpace(opts.PdftoppmPath),
		dpi:     opts.DPI,
		maxDim:  opts.MaxImageDimension,
		quality: opts.JPEGQuality,
		run:     execRun,
	}
	if r.binary == "" {
		r.binary = defaultPdftoppm
	}
	if r.dpi <= 0 {
		r.dpi = defaultDPI
	}
	if r.maxDim <= 0 {
		r.maxDim = defaultMaxDim
	}
	if r.quality <= 0 || r.quality > 100 {
		r.quality = defaultJPEGQuality
	}
	return r
}

// Convert renders the zero-based page of input next to it as <name>-p<N>.jpg.
func (r *Rasterizer) Convert(ctx context.Context, input string, page int) (Artifact, error) {
	if page < 0 {
		return Artifact{}, fmt.Errorf("page index %d is negative", page)
	}
	if _, err := os.Stat(input); err != nil {
		return Artifact{}, fmt.Errorf("stat document: %w", err)
	}

	prefix, err := r.render(ctx, input, page)
	if err != nil && page > 0 && errors.Is(err, errPageRange) {
		// Short documents (a one-page grid, for instance) fall back to their first page.
		prefix, err = r.render(ctx, input, 0)
	}
	if err != nil {
		return Artifact{}, err
	}

	output := prefix + ".jpg"
	if err := r.bound(output); err != nil {
		return Artifact{}, err
	}
	return Artifact{Path: output, Kind: KindImage, ContentType: "image/jpeg"}, nil
}

// errPageRange marks a pdftoppm run that failed because the document has fewer pages.
var errPageRange = errors.New("page out of range")

// pdftoppm exits with this code when -f/-l lie beyond the last page.
const exitPageRange = 99

func (r *Rasterizer) render(ctx context.Context, input string, page int) (string, error) {
	pageNo := strconv.Itoa(page + 1)
	prefix := strings.TrimSuffix(input, filepath.Ext(input)) + "-p" + pageNo
	args := []string{
		"-jpeg",
		"-r", strconv.Itoa(r.dpi),
		"-f", pageNo,
		"-l", pageNo,
		"-singlefile",
		input,
		prefix,
	}
	out, err := r.run(ctx, r.binary, args...)
	if err == nil {
		return prefix, nil
	}
	msg := strings.TrimSpace(string(out))
	if pageRangeFailure(err, msg) {
		err = fmt.Errorf("%w: %w", errPageRange, err)
	}
	return "", fmt.Errorf("render page %s of %s: %w: %s", pageNo, filepath.Base(input), err, msg)
}

func pageRangeFailure(err error, output string) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == exitPageRange {
		return true
	}
	return strings.Contains(output, "Wrong page range")
}

// bound downscales the rendered image in place when its longest side exceeds maxDim.
func (r *Rasterizer) bound(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open rendered page: %w", err)
	}
	src, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("decode rendered page: %w", err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := max(w, h)
	if longest <= r.maxDim {
		return nil
	}

	scale := float64(r.maxDim) / float64(longest)
	dstW := max(1, int(float64(w)*scale))
	dstH := max(1, int(float64(h)*scale))
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: r.quality}); err != nil {
		return fmt.Errorf("encode resized page: %w", err)
	}
	if _, err := fsutil.WriteFileAtomic(path, &buf, 0o644); err != nil {
		return fmt.Errorf("write resized page: %w", err)
	}
	return nil
}
