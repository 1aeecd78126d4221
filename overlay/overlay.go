// Package overlay defines the typed elements an editor places on PDF pages:
// text runs and raster images, positioned in normalized page-fraction
// coordinates (percent of page width/height, top-left origin).
//
// An Overlay is immutable once constructed. The editor layer mutates its
// working set through the command types in commands.go and hands the
// compositor a flat ordered snapshot per request; nothing here persists
// state across requests.
package overlay

import (
	"fmt"
	"strings"
)

// MaxRasterBytes is the hard ceiling for an image overlay payload.
// Oversized payloads are rejected at validation, never later in the batch.
const MaxRasterBytes = 10 << 20 // 10 MiB

// DefaultFontSizePt is applied when a text overlay omits its font size.
const DefaultFontSizePt = 12.0

// RGB is an opaque 8-bit-per-channel color.
type RGB struct {
	R, G, B uint8
}

// Black is the default text color.
var Black = RGB{}

// ParseHexColor parses a 6-hex-digit RGB string, with or without a
// leading '#' (e.g. "#1a2b3c" or "1A2B3C").
func ParseHexColor(s string) (RGB, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return RGB{}, fmt.Errorf("color %q: want 6 hex digits", s)
	}
	var c RGB
	if _, err := fmt.Sscanf(h, "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return RGB{}, fmt.Errorf("color %q: %w", s, err)
	}
	return c, nil
}

// Hex renders the color as "#rrggbb".
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Overlay is one positioned element, either a Text or an Image.
// The interface is sealed: the two concrete types in this package are the
// only implementations, so a type switch over them is exhaustive.
type Overlay interface {
	// OverlayID returns the caller-assigned id, unique within a request.
	OverlayID() string
	// PageNr returns the 1-based target page.
	PageNr() int
	// Validate checks the overlay independently of any document.
	// Page bounds need the document snapshot and are entirely the
	// compositor's concern: an out-of-range page is dropped with a
	// warning there, never rejected here.
	Validate() error

	sealed()
}

// Text is a positioned text run.
type Text struct {
	ID         string
	Page       int     // 1-based
	XPct, YPct float64 // [0,100), top-left origin
	Text       string
	FontSizePt float64 // positive; DefaultFontSizePt when zero
	Color      RGB
}

// Image is a positioned raster image.
type Image struct {
	ID         string
	Page       int     // 1-based
	XPct, YPct float64 // [0,100), top-left origin
	WidthPct   float64 // (0,100], fraction of page width
	HeightPct  float64 // (0,100], fraction of page height
	Raster     []byte  // undecoded raster bytes, any supported format
}

func (t Text) OverlayID() string { return t.ID }
func (t Text) PageNr() int       { return t.Page }
func (t Text) sealed()           {}

func (i Image) OverlayID() string { return i.ID }
func (i Image) PageNr() int       { return i.Page }
func (i Image) sealed()           {}

// Normalized returns a copy with defaults applied: font size and color
// fall back to DefaultFontSizePt and Black.
func (t Text) Normalized() Text {
	if t.FontSizePt == 0 {
		t.FontSizePt = DefaultFontSizePt
	}
	return t
}

// Validate checks the text overlay's fields.
func (t Text) Validate() error {
	if err := validateCommon(t.ID, t.XPct, t.YPct); err != nil {
		return err
	}
	if strings.TrimSpace(t.Text) == "" {
		return fmt.Errorf("overlay %s: empty text", t.ID)
	}
	if t.FontSizePt < 0 {
		return fmt.Errorf("overlay %s: font size %.2f must be positive", t.ID, t.FontSizePt)
	}
	return nil
}

// Validate checks the image overlay's fields, including the raster byte
// ceiling. Decodability is checked by the normalizer during compositing.
func (i Image) Validate() error {
	if err := validateCommon(i.ID, i.XPct, i.YPct); err != nil {
		return err
	}
	if len(i.Raster) == 0 {
		return fmt.Errorf("overlay %s: empty raster payload", i.ID)
	}
	if len(i.Raster) > MaxRasterBytes {
		return fmt.Errorf("overlay %s: raster payload %d bytes exceeds %d byte ceiling",
			i.ID, len(i.Raster), MaxRasterBytes)
	}
	if i.WidthPct <= 0 || i.WidthPct > 100 {
		return fmt.Errorf("overlay %s: width %.2f%% outside (0,100]", i.ID, i.WidthPct)
	}
	if i.HeightPct <= 0 || i.HeightPct > 100 {
		return fmt.Errorf("overlay %s: height %.2f%% outside (0,100]", i.ID, i.HeightPct)
	}
	return nil
}

func validateCommon(id string, xPct, yPct float64) error {
	if id == "" {
		return fmt.Errorf("overlay: missing id")
	}
	if xPct < 0 || xPct >= 100 {
		return fmt.Errorf("overlay %s: x %.2f%% outside [0,100)", id, xPct)
	}
	if yPct < 0 || yPct >= 100 {
		return fmt.Errorf("overlay %s: y %.2f%% outside [0,100)", id, yPct)
	}
	return nil
}

// ValidateBatch validates each overlay and checks id uniqueness across the
// request. The returned error names the first offending overlay.
func ValidateBatch(overlays []Overlay) error {
	seen := make(map[string]struct{}, len(overlays))
	for _, ov := range overlays {
		if err := ov.Validate(); err != nil {
			return err
		}
		id := ov.OverlayID()
		if _, dup := seen[id]; dup {
			return fmt.Errorf("overlay %s: duplicate id in request", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
