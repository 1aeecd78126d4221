// Package compose orchestrates one compositing request: open the base
// document, snapshot its geometry once, place every overlay in input-list
// order against that snapshot, serialize once, and report per-overlay
// warnings alongside the output.
//
// Per-overlay failures (bad page, undecodable image, rejected placement)
// never abort a request; request-level failures carry one of the sentinel
// error kinds in codec.go. List order is stacking order: later overlays
// render above earlier ones wherever they overlap.
package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kamiladigital/pdf-editor/coord"
	"github.com/kamiladigital/pdf-editor/overlay"
	"github.com/kamiladigital/pdf-editor/raster"
)

// Reason codes for per-overlay warnings. Stable: callers key UI behavior
// off them.
type Reason string

const (
	ReasonInvalidPage       Reason = "InvalidPage"
	ReasonImageDecodeFailed Reason = "ImageDecodeFailed"
	ReasonPlacementFailed   Reason = "PlacementFailed"
)

// Warning records one skipped overlay and why.
type Warning struct {
	OverlayID string `json:"overlayId"`
	Reason    Reason `json:"reasonCode"`
	Detail    string `json:"detail,omitempty"`
}

// Result is a successful composition: final document bytes plus the
// warnings accumulated along the way.
type Result struct {
	Output   []byte
	Warnings []Warning
}

// Config configures a Compositor.
type Config struct {
	// Codec opens and mutates documents. Required.
	Codec Codec

	// NormalizeWorkers bounds concurrent image normalization
	// (default: GOMAXPROCS). Normalization is pure and CPU-bound, so
	// overlays decode in parallel; all document mutation stays
	// single-writer.
	NormalizeWorkers int

	// DecodeBudget is the per-image normalization deadline (default 10s).
	DecodeBudget time.Duration

	// Logger for debug/progress messages.
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NormalizeWorkers <= 0 {
		c.NormalizeWorkers = runtime.GOMAXPROCS(0)
	}
	if c.DecodeBudget <= 0 {
		c.DecodeBudget = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Compositor runs compositing requests. Stateless across requests: every
// call to Compose opens, mutates and serializes its own document handle.
type Compositor struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Compositor. It panics if cfg.Codec is nil, since no request
// can ever succeed without one.
func New(cfg Config) *Compositor {
	if cfg.Codec == nil {
		panic("compose: Config.Codec is required")
	}
	cfg.defaults()
	return &Compositor{cfg: cfg, logger: cfg.Logger}
}

// normalized is the outcome of pre-normalizing one image overlay.
type normalized struct {
	img *raster.Normalized
	err error
}

// Compose runs one request end to end. The overlays must already pass
// overlay.ValidateBatch; Compose re-checks and rejects the whole request
// otherwise, since an invalid overlay shape is a caller bug, not a
// per-overlay warning.
func (c *Compositor) Compose(ctx context.Context, doc []byte, password string, overlays []overlay.Overlay) (*Result, error) {
	if err := overlay.ValidateBatch(overlays); err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}

	handle, err := c.cfg.Codec.Open(ctx, doc, password)
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	snap := handle.Snapshot()
	c.logger.Debug("document opened",
		"pages", snap.PageCount, "overlays", len(overlays))

	norm, err := c.normalizeImages(ctx, overlays, snap)
	if err != nil {
		return nil, err
	}

	var warnings []Warning
	warn := func(id string, reason Reason, detail string) {
		warnings = append(warnings, Warning{OverlayID: id, Reason: reason, Detail: detail})
		c.logger.Debug("overlay skipped", "overlay", id, "reason", string(reason), "detail", detail)
	}

	for i, ov := range overlays {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("compose cancelled: %w", err)
		}

		g, ok := snap.Page(ov.PageNr())
		if !ok {
			warn(ov.OverlayID(), ReasonInvalidPage,
				fmt.Sprintf("page %d outside 1..%d", ov.PageNr(), snap.PageCount))
			continue
		}

		switch o := ov.(type) {
		case overlay.Text:
			o = o.Normalized()
			p := coord.ForText(o.XPct, o.YPct, o.FontSizePt, g)
			if err := handle.PlaceText(o.Page, p, o.Text, o.FontSizePt, o.Color); err != nil {
				warn(o.ID, ReasonPlacementFailed, err.Error())
			}
		case overlay.Image:
			n := norm[i]
			if n == nil {
				// Pre-normalization only skips invalid pages, which
				// the page check above already caught.
				warn(o.ID, ReasonImageDecodeFailed, "image not normalized")
				continue
			}
			if n.err != nil {
				warn(o.ID, ReasonImageDecodeFailed, n.err.Error())
				continue
			}
			p := coord.ForImage(o.XPct, o.YPct, o.WidthPct, o.HeightPct, g)
			if err := handle.PlaceImage(o.Page, n.img.PNG, p); err != nil {
				warn(o.ID, ReasonPlacementFailed, err.Error())
			}
		}
	}

	var buf bytes.Buffer
	if err := handle.Serialize(&buf); err != nil {
		if errors.Is(err, ErrSerializationFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}

	c.logger.Info("document composed",
		"pages", snap.PageCount,
		"overlays", len(overlays),
		"warnings", len(warnings),
		"output_bytes", buf.Len())
	return &Result{Output: buf.Bytes(), Warnings: warnings}, nil
}

// normalizeImages decodes and re-encodes every image overlay concurrently,
// ahead of the strictly serialized placement phase. Results are indexed by
// overlay position; decode failures are recorded per overlay, never
// returned — only cancellation aborts.
func (c *Compositor) normalizeImages(ctx context.Context, overlays []overlay.Overlay, snap coord.DocumentSnapshot) ([]*normalized, error) {
	out := make([]*normalized, len(overlays))

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(c.cfg.NormalizeWorkers)

	for i, ov := range overlays {
		img, isImage := ov.(overlay.Image)
		if !isImage {
			continue
		}
		g, ok := snap.Page(img.Page)
		if !ok {
			continue // placement loop records the InvalidPage warning
		}
		box := coord.ForImage(img.XPct, img.YPct, img.WidthPct, img.HeightPct, g)

		grp.Go(func() error {
			imgCtx, cancel := context.WithTimeout(grpCtx, c.cfg.DecodeBudget)
			defer cancel()
			n, err := raster.NormalizeToAspect(imgCtx, img.Raster, box.Width/box.Height)
			out[i] = &normalized{img: n, err: err}
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, fmt.Errorf("compose: normalize: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("compose cancelled: %w", err)
	}
	return out, nil
}
