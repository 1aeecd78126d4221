package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kamiladigital/pdf-editor/compose"
	"github.com/kamiladigital/pdf-editor/overlay"
	"github.com/kamiladigital/pdf-editor/raster"
)

// wireOverlay is the kind-tagged overlay shape on the wire. Positional and
// size fields are floating-point percentages in [0,100]; colorHex is a
// 6-hex-digit RGB string; rasterData is a data URL or base64 payload.
type wireOverlay struct {
	Kind string  `json:"kind"`
	ID   string  `json:"id"`
	Page int     `json:"page"`
	XPct float64 `json:"xPct"`
	YPct float64 `json:"yPct"`

	// text fields
	Text       string  `json:"text,omitempty"`
	FontSizePt float64 `json:"fontSizePt,omitempty"`
	ColorHex   string  `json:"colorHex,omitempty"`

	// image fields
	WidthPct   float64 `json:"widthPct,omitempty"`
	HeightPct  float64 `json:"heightPct,omitempty"`
	RasterData string  `json:"rasterData,omitempty"`
}

// toOverlay converts the wire shape into a model overlay. Validation proper
// happens at the model boundary; this only decodes payload wrapping.
func (w wireOverlay) toOverlay() (overlay.Overlay, error) {
	switch w.Kind {
	case "text":
		color := overlay.Black
		if w.ColorHex != "" {
			c, err := overlay.ParseHexColor(w.ColorHex)
			if err != nil {
				return nil, fmt.Errorf("overlay %s: %w", w.ID, err)
			}
			color = c
		}
		return overlay.Text{
			ID:         w.ID,
			Page:       w.Page,
			XPct:       w.XPct,
			YPct:       w.YPct,
			Text:       w.Text,
			FontSizePt: w.FontSizePt,
			Color:      color,
		}, nil
	case "image":
		data, err := raster.DecodePayload(w.RasterData)
		if err != nil {
			return nil, fmt.Errorf("overlay %s: %w", w.ID, err)
		}
		return overlay.Image{
			ID:        w.ID,
			Page:      w.Page,
			XPct:      w.XPct,
			YPct:      w.YPct,
			WidthPct:  w.WidthPct,
			HeightPct: w.HeightPct,
			Raster:    data,
		}, nil
	default:
		return nil, fmt.Errorf("overlay %s: unknown kind %q", w.ID, w.Kind)
	}
}

type uploadResponse struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	Pages     int    `json:"pages"`
	Encrypted bool   `json:"encrypted"`
}

type pageDim struct {
	WidthPt  float64 `json:"widthPt"`
	HeightPt float64 `json:"heightPt"`
}

type infoResponse struct {
	PageCount int       `json:"pageCount"`
	Pages     []pageDim `json:"pages"`
}

type processRequest struct {
	ID       string        `json:"id"`
	Password string        `json:"password,omitempty"`
	Overlays []wireOverlay `json:"overlays"`
}

type processResponse struct {
	OutputID    string            `json:"outputId"`
	DownloadURL string            `json:"downloadUrl"`
	Warnings    []compose.Warning `json:"warnings"`
}

type eventEntry struct {
	Type       string `json:"type"`
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Action     string `json:"action"`
	Details    string `json:"details,omitempty"`
	Success    bool   `json:"success"`
}

type errorResponse struct {
	ErrorKind string `json:"errorKind"`
	Message   string `json:"message"`
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %v", err)
	}
	return nil
}

// decodeOverlays converts the wire batch, preserving list order (which is
// also stacking order).
func decodeOverlays(ws []wireOverlay) ([]overlay.Overlay, error) {
	out := make([]overlay.Overlay, 0, len(ws))
	for _, wo := range ws {
		ov, err := wo.toOverlay()
		if err != nil {
			return nil, err
		}
		out = append(out, ov)
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorResponse{ErrorKind: kind, Message: msg})
}

// errorKindOf maps a request-level compositing failure to its stable wire
// kind and HTTP status.
func errorKindOf(err error) (kind string, status int) {
	switch {
	case errors.Is(err, compose.ErrPasswordRequired):
		return "PasswordRequired", http.StatusUnauthorized
	case errors.Is(err, compose.ErrWrongPassword):
		return "WrongPassword", http.StatusForbidden
	case errors.Is(err, compose.ErrDocumentCorrupt):
		return "DocumentCorrupt", http.StatusUnprocessableEntity
	case errors.Is(err, compose.ErrSerializationFailed):
		return "SerializationFailed", http.StatusInternalServerError
	default:
		return "ValidationError", http.StatusBadRequest
	}
}
