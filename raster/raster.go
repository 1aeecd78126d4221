// Package raster normalizes heterogeneous raster input into one canonical
// embeddable form: RGBA PNG. Decoding absorbs the format edge cases
// (interlacing, palettes, animation, alternate color spaces) so the
// compositor only ever hands the PDF codec a single well-known byte shape.
//
// Supported inputs: PNG, JPEG, GIF (first frame), WebP, BMP and TIFF,
// sniffed from the bytes themselves. Input may additionally be wrapped as a
// base64 data URL, the form browser canvases export.
package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"strings"

	xdraw "golang.org/x/image/draw"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxInputBytes caps the accepted raster payload size.
const MaxInputBytes = 10 << 20 // 10 MiB

// maxPixels bounds the decoded pixel grid. Rejecting outsized dimensions
// before the full decode keeps the per-image time and memory budget flat.
const maxPixels = 40 << 20 // ~40 MP

// Normalized is a canonical image: PNG-encoded RGBA plus its pixel grid
// dimensions.
type Normalized struct {
	PNG    []byte
	Width  int
	Height int
}

// AspectRatio returns width over height.
func (n *Normalized) AspectRatio() float64 {
	return float64(n.Width) / float64(n.Height)
}

// DecodePayload unwraps a raster payload as delivered on the wire: a
// "data:image/...;base64," URL, bare base64, or raw bytes (detected by a
// recognizable image signature).
func DecodePayload(s string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		_, b64, found := strings.Cut(rest, ",")
		if !found {
			return nil, fmt.Errorf("raster: malformed data URL")
		}
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("raster: data URL payload: %w", err)
		}
		return data, nil
	}
	if looksLikeImage([]byte(s)) {
		return []byte(s), nil
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("raster: payload is neither a known image signature nor base64: %w", err)
	}
	return data, nil
}

var signatures = [][]byte{
	{0x89, 'P', 'N', 'G'},        // PNG
	{0xff, 0xd8, 0xff},           // JPEG
	[]byte("GIF8"),               // GIF
	[]byte("RIFF"),               // WebP container
	[]byte("BM"),                 // BMP
	{'I', 'I', 0x2a, 0x00},       // TIFF little-endian
	{'M', 'M', 0x00, 0x2a},       // TIFF big-endian
}

func looksLikeImage(data []byte) bool {
	for _, sig := range signatures {
		if bytes.HasPrefix(data, sig) {
			return true
		}
	}
	return false
}

// Normalize decodes data and re-encodes it as RGBA PNG. The context bounds
// the work: it is checked between the decode and encode phases so a
// cancelled request stops promptly.
func Normalize(ctx context.Context, data []byte) (*Normalized, error) {
	img, err := decode(ctx, data)
	if err != nil {
		return nil, err
	}
	return encode(ctx, img)
}

// NormalizeToAspect decodes data like Normalize and additionally resamples
// the pixel grid to the given width/height aspect ratio. The PDF stamping
// path scales images aspect-locked, so matching the pixel aspect to the
// requested placement box up front is what makes independent width/height
// percentages land exactly.
func NormalizeToAspect(ctx context.Context, data []byte, aspect float64) (*Normalized, error) {
	if aspect <= 0 {
		return nil, fmt.Errorf("raster: aspect %.4f must be positive", aspect)
	}
	img, err := decode(ctx, data)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	cur := float64(b.Dx()) / float64(b.Dy())
	// Within half a percent the resample would be invisible; keep the
	// original pixels.
	if ratio := cur / aspect; ratio > 0.995 && ratio < 1.005 {
		return encode(ctx, img)
	}

	w, h := b.Dx(), b.Dy()
	if cur > aspect {
		h = int(float64(w)/aspect + 0.5)
	} else {
		w = int(float64(h)*aspect + 0.5)
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	for w*h > maxPixels {
		w = (w + 1) / 2
		h = (h + 1) / 2
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("raster: %w", err)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return encode(ctx, dst)
}

func decode(ctx context.Context, data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("raster: empty input")
	}
	if len(data) > MaxInputBytes {
		return nil, fmt.Errorf("raster: input %d bytes exceeds %d byte ceiling", len(data), MaxInputBytes)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("raster: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("raster: undecodable input: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("raster: degenerate dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("raster: %dx%d exceeds pixel budget", cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("raster: decode %s: %w", format, err)
	}
	return img, nil
}

func encode(ctx context.Context, img image.Image) (*Normalized, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("raster: %w", err)
	}

	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return nil, fmt.Errorf("raster: png encode: %w", err)
	}
	return &Normalized{
		PNG:    buf.Bytes(),
		Width:  rgba.Bounds().Dx(),
		Height: rgba.Bounds().Dy(),
	}, nil
}
