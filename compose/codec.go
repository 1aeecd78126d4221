package compose

import (
	"context"
	"errors"
	"io"

	"github.com/kamiladigital/pdf-editor/coord"
	"github.com/kamiladigital/pdf-editor/overlay"
)

// Request-level failure kinds. They are branch-able with errors.Is so a
// caller can decide between re-prompting for a password, rejecting the file
// and retrying, rather than parsing message text.
var (
	// ErrPasswordRequired: the document is encrypted and no (or an
	// insufficient) password was supplied.
	ErrPasswordRequired = errors.New("document password required")
	// ErrWrongPassword: a password was supplied but does not open the
	// document.
	ErrWrongPassword = errors.New("wrong document password")
	// ErrDocumentCorrupt: the document cannot be parsed for any other
	// reason, or exceeds the size/page ceilings.
	ErrDocumentCorrupt = errors.New("document corrupt")
	// ErrSerializationFailed: the composed document could not be written.
	// No partial output is ever exposed.
	ErrSerializationFailed = errors.New("document serialization failed")
)

// Codec is the document capability the compositor drives but does not
// implement: parse, mutate and serialize the document binary format.
type Codec interface {
	// Open parses doc, decrypting with password when non-empty. Failures
	// wrap ErrPasswordRequired, ErrWrongPassword or ErrDocumentCorrupt.
	Open(ctx context.Context, doc []byte, password string) (Document, error)
}

// Document is one open document handle. Implementations hold internal
// mutable structure that is not safe for concurrent mutation; the
// compositor serializes all calls (single-writer discipline).
type Document interface {
	// Snapshot reports page count and per-page geometry. The compositor
	// calls it exactly once per request, before any placement.
	Snapshot() coord.DocumentSnapshot

	// PlaceText embeds a text run at an absolute placement on a 1-based
	// page. Coordinates are points, bottom-left origin.
	PlaceText(page int, p coord.TextPlacement, text string, fontSizePt float64, color overlay.RGB) error

	// PlaceImage embeds a canonical PNG into an absolute box on a 1-based
	// page.
	PlaceImage(page int, pngData []byte, p coord.ImagePlacement) error

	// Serialize writes the final document bytes.
	Serialize(w io.Writer) error

	// Close releases the handle. Safe to call after a failed or
	// abandoned request.
	Close() error
}
