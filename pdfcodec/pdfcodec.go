// Package pdfcodec implements the compose.Codec capability on pdfcpu.
//
// One request maps to one open pdfcpu context: the document is parsed once,
// every overlay is stamped against that in-memory context, and the result
// is written once. Placements use pdfcpu's watermark layering with absolute
// bottom-left positioning in points, which matches the coordinate semantics
// the compositor computes.
package pdfcodec

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/kamiladigital/pdf-editor/compose"
	"github.com/kamiladigital/pdf-editor/coord"
	"github.com/kamiladigital/pdf-editor/overlay"
)

// A4 fallback dimensions in points, used when a page reports no usable
// media box.
const (
	fallbackWidthPt  = 595.0
	fallbackHeightPt = 842.0
)

// Config configures the codec.
type Config struct {
	// MaxDocumentBytes caps the accepted input size (default 50 MiB).
	MaxDocumentBytes int64

	// MaxPages caps the page count (default 5000).
	MaxPages int

	// Logger for debug messages.
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxDocumentBytes <= 0 {
		c.MaxDocumentBytes = 50 << 20
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 5000
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Codec opens PDF documents. Stateless; one Codec serves any number of
// concurrent requests, each with its own document handle.
type Codec struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Codec.
func New(cfg Config) *Codec {
	cfg.defaults()
	return &Codec{cfg: cfg, logger: cfg.Logger}
}

// Open parses and validates the document, decrypting with password when
// non-empty. Failures are classified into the compose sentinel kinds.
func (c *Codec) Open(ctx context.Context, doc []byte, password string) (compose.Document, error) {
	if int64(len(doc)) > c.cfg.MaxDocumentBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d byte ceiling",
			compose.ErrDocumentCorrupt, len(doc), c.cfg.MaxDocumentBytes)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conf := model.NewDefaultConfiguration()
	conf.UserPW = password
	conf.OwnerPW = password

	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(doc), conf)
	if err != nil {
		return nil, classifyOpenErr(err, password)
	}
	if err := pctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("%w: page count: %v", compose.ErrDocumentCorrupt, err)
	}
	if pctx.PageCount > c.cfg.MaxPages {
		return nil, fmt.Errorf("%w: %d pages exceeds %d page ceiling",
			compose.ErrDocumentCorrupt, pctx.PageCount, c.cfg.MaxPages)
	}

	return &document{
		pctx:   pctx,
		snap:   snapshot(pctx),
		logger: c.logger,
	}, nil
}

// classifyOpenErr maps a pdfcpu read failure onto the request-level error
// kinds. pdfcpu does not export typed encryption errors, so encryption
// failures are recognized by message; whether a password was supplied
// decides PasswordRequired versus WrongPassword.
func classifyOpenErr(err error, password string) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "password") ||
		strings.Contains(msg, "encrypt") ||
		strings.Contains(msg, "decrypt") {
		if password == "" {
			return fmt.Errorf("%w: %v", compose.ErrPasswordRequired, err)
		}
		return fmt.Errorf("%w: %v", compose.ErrWrongPassword, err)
	}
	return fmt.Errorf("%w: %v", compose.ErrDocumentCorrupt, err)
}

// snapshot captures page count and per-page geometry once. Pages without a
// usable media box fall back to A4, matching what the interactive editor
// assumes when geometry is unknown.
func snapshot(pctx *model.Context) coord.DocumentSnapshot {
	snap := coord.DocumentSnapshot{
		PageCount: pctx.PageCount,
		Pages:     make([]coord.PageGeometry, pctx.PageCount),
	}
	dims, err := pctx.PageDims()
	for i := range snap.Pages {
		g := coord.PageGeometry{WidthPt: fallbackWidthPt, HeightPt: fallbackHeightPt}
		if err == nil && i < len(dims) && dims[i].Width > 0 && dims[i].Height > 0 {
			g = coord.PageGeometry{WidthPt: dims[i].Width, HeightPt: dims[i].Height}
		}
		snap.Pages[i] = g
	}
	return snap
}

// document is one open handle. Not safe for concurrent mutation; the
// compositor serializes all calls.
type document struct {
	pctx   *model.Context
	snap   coord.DocumentSnapshot
	logger *slog.Logger
	closed bool
}

func (d *document) Snapshot() coord.DocumentSnapshot { return d.snap }

// PlaceText stamps a text run. The watermark is positioned bottom-left
// with an absolute offset, so p carries the final PDF-space coordinates
// untouched.
func (d *document) PlaceText(page int, p coord.TextPlacement, text string, fontSizePt float64, color overlay.RGB) error {
	if d.closed {
		return fmt.Errorf("pdfcodec: handle closed")
	}
	desc := fmt.Sprintf("font:Helvetica, points:%d, color:%s, pos:bl, off:%.2f %.2f, scale:1 abs, rot:0, opacity:1.0",
		int(fontSizePt+0.5), color.Hex(), p.X, p.BaselineY)

	wm, err := api.TextWatermark(text, desc, true, false, types.POINTS)
	if err != nil {
		return fmt.Errorf("pdfcodec: text watermark: %w", err)
	}
	if err := pdfcpu.AddWatermarks(d.pctx, types.IntSet{page: true}, wm); err != nil {
		return fmt.Errorf("pdfcodec: stamp text on page %d: %w", page, err)
	}
	d.logger.Debug("text placed", "page", page, "x", p.X, "baseline_y", p.BaselineY)
	return nil
}

// PlaceImage stamps a canonical PNG. pdfcpu scales images aspect-locked,
// so the relative scale pins one dimension against the page and the
// normalizer's aspect-matched pixel grid makes the other land as well.
func (d *document) PlaceImage(page int, pngData []byte, p coord.ImagePlacement) error {
	if d.closed {
		return fmt.Errorf("pdfcodec: handle closed")
	}
	g, ok := d.snap.Page(page)
	if !ok {
		return fmt.Errorf("pdfcodec: page %d outside snapshot", page)
	}
	pngCfg, err := png.DecodeConfig(bytes.NewReader(pngData))
	if err != nil {
		return fmt.Errorf("pdfcodec: image header: %w", err)
	}
	relScale, err := imageRelScale(pngCfg.Width, pngCfg.Height, p, g)
	if err != nil {
		return err
	}
	desc := fmt.Sprintf("pos:bl, off:%.2f %.2f, scale:%.6f rel, rot:0, opacity:1.0",
		p.X, p.Y, relScale)

	wm, err := api.ImageWatermarkForReader(bytes.NewReader(pngData), desc, true, false, types.POINTS)
	if err != nil {
		return fmt.Errorf("pdfcodec: image watermark: %w", err)
	}
	if err := pdfcpu.AddWatermarks(d.pctx, types.IntSet{page: true}, wm); err != nil {
		return fmt.Errorf("pdfcodec: stamp image on page %d: %w", page, err)
	}
	d.logger.Debug("image placed", "page", page, "x", p.X, "y", p.Y, "w", p.Width, "h", p.Height)
	return nil
}

// imageRelScale picks the relative watermark scale so the rendered box
// matches the placement. pdfcpu anchors relative image scaling on the page
// width for landscape and square images but on the page height for
// portrait ones, so the governing dimension follows the pixel aspect.
func imageRelScale(pixelW, pixelH int, p coord.ImagePlacement, g coord.PageGeometry) (float64, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return 0, fmt.Errorf("pdfcodec: degenerate image box %.2fx%.2fpt", p.Width, p.Height)
	}
	var s float64
	if pixelW >= pixelH {
		s = p.Width / g.WidthPt
	} else {
		s = p.Height / g.HeightPt
	}
	if s > 1 {
		s = 1
	}
	return s, nil
}

// Serialize writes the composed document. Callers see the bytes only if
// this succeeds in full.
func (d *document) Serialize(w io.Writer) error {
	if d.closed {
		return fmt.Errorf("pdfcodec: handle closed")
	}
	if err := api.WriteContext(d.pctx, w); err != nil {
		return fmt.Errorf("%w: %v", compose.ErrSerializationFailed, err)
	}
	return nil
}

// Close releases the handle. The pdfcpu context is heap-only, so releasing
// means dropping the reference and refusing further calls.
func (d *document) Close() error {
	d.closed = true
	d.pctx = nil
	return nil
}
