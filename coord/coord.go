// Package coord converts normalized overlay positions into absolute PDF
// placements. Normalized coordinates are percentages of the page dimensions
// with a top-left origin; PDF user space is points with a bottom-left
// origin. All functions are pure: they consult only the supplied geometry,
// never document state.
package coord

// PageGeometry is one page's media box size in points. It is immutable for
// the duration of a compositing request.
type PageGeometry struct {
	WidthPt  float64
	HeightPt float64
}

// DocumentSnapshot is the per-request geometry capture: page count and the
// geometry of every page, read once before any overlay is applied. All
// placements in a request are computed against the same snapshot, even if
// the underlying document structure mutates while embedding.
type DocumentSnapshot struct {
	PageCount int
	Pages     []PageGeometry
}

// Page returns the geometry of a 1-based page number.
func (s DocumentSnapshot) Page(nr int) (PageGeometry, bool) {
	if nr < 1 || nr > s.PageCount || nr > len(s.Pages) {
		return PageGeometry{}, false
	}
	return s.Pages[nr-1], true
}

// TextPlacement is an absolute text anchor: X and the baseline Y, both in
// points from the bottom-left page corner.
type TextPlacement struct {
	X         float64
	BaselineY float64
}

// ImagePlacement is an absolute image box: bottom-left origin plus width
// and height, all in points.
type ImagePlacement struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// ForText maps a normalized text position onto a page. The top of the glyph
// box aligns with the normalized position, so the baseline sits one font
// size below it: growing the font moves the baseline strictly downward and
// never shifts X.
func ForText(xPct, yPct, fontSizePt float64, g PageGeometry) TextPlacement {
	return TextPlacement{
		X:         xPct / 100 * g.WidthPt,
		BaselineY: g.HeightPt - yPct/100*g.HeightPt - fontSizePt,
	}
}

// ForImage maps a normalized image box onto a page. The normalized position
// is the box's top-left corner; the returned origin is its bottom-left
// corner in PDF space.
func ForImage(xPct, yPct, widthPct, heightPct float64, g PageGeometry) ImagePlacement {
	w := widthPct / 100 * g.WidthPt
	h := heightPct / 100 * g.HeightPt
	return ImagePlacement{
		X:      xPct / 100 * g.WidthPt,
		Y:      g.HeightPt - yPct/100*g.HeightPt - h,
		Width:  w,
		Height: h,
	}
}
