package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kamiladigital/pdf-editor/compose"
	"github.com/kamiladigital/pdf-editor/observability"
	"github.com/kamiladigital/pdf-editor/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload receives a PDF, probes its geometry and registers it.
// Encrypted documents are accepted and flagged; their geometry is resolved
// later through /api/info with a password.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes())
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes()); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "ValidationError",
			fmt.Sprintf("upload exceeds %d MB", s.cfg.MaxUploadMB))
		return
	}
	file, header, err := r.FormFile("pdf")
	if err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "no PDF file provided")
		return
	}
	defer file.Close()

	if filepath.Ext(header.Filename) != ".pdf" {
		writeError(w, http.StatusBadRequest, "ValidationError", "only PDF files are accepted")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "failed to read upload")
		return
	}

	pages := 0
	encrypted := false
	handle, err := s.codec.Open(r.Context(), data, "")
	switch {
	case err == nil:
		pages = handle.Snapshot().PageCount
		handle.Close()
	case errors.Is(err, compose.ErrPasswordRequired):
		encrypted = true
	default:
		kind, status := errorKindOf(err)
		writeError(w, status, kind, "invalid PDF file")
		return
	}

	doc, err := s.store.Put(r.Context(), store.RoleSource, header.Filename, pages, encrypted, data)
	if err != nil {
		s.logger.Error("store upload", "error", err)
		writeError(w, http.StatusInternalServerError, "StorageError", "failed to save file")
		return
	}

	s.logEvent(r, observability.Event{
		Type: "document_uploaded", EntityType: "document", EntityID: doc.ID,
		Action: "upload", Success: true,
	})
	writeJSON(w, http.StatusOK, uploadResponse{
		ID:        doc.ID,
		Filename:  doc.Filename,
		Pages:     pages,
		Encrypted: encrypted,
	})
}

// handleInfo reports page count and per-page geometry for a stored
// document. An optional ?password= unlocks encrypted documents.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, err := s.store.ReadBytes(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "document not found")
		return
	}
	if err != nil {
		s.logger.Error("read document", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "StorageError", "failed to read document")
		return
	}

	handle, err := s.codec.Open(r.Context(), data, r.URL.Query().Get("password"))
	if err != nil {
		kind, status := errorKindOf(err)
		writeError(w, status, kind, "cannot read document geometry")
		return
	}
	snap := handle.Snapshot()
	handle.Close()

	// Encrypted uploads register with zero pages; backfill once unlocked.
	if doc, err := s.store.Get(r.Context(), id); err == nil && doc.Pages == 0 && snap.PageCount > 0 {
		if err := s.store.SetPages(r.Context(), id, snap.PageCount); err != nil {
			s.logger.Warn("backfill pages", "id", id, "error", err)
		}
	}

	resp := infoResponse{PageCount: snap.PageCount, Pages: make([]pageDim, 0, len(snap.Pages))}
	for _, g := range snap.Pages {
		resp.Pages = append(resp.Pages, pageDim{WidthPt: g.WidthPt, HeightPt: g.HeightPt})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleProcess runs one compositing request: resolve the document
// reference, decode the overlay batch, compose, register the output.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", err.Error())
		return
	}

	batch, err := decodeOverlays(req.Overlays)
	if err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", err.Error())
		return
	}

	data, err := s.store.ReadBytes(r.Context(), req.ID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "document not found, upload first")
		return
	}
	if err != nil {
		s.logger.Error("read document", "id", req.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "StorageError", "failed to read document")
		return
	}

	res, err := s.comp.Compose(r.Context(), data, req.Password, batch)
	if err != nil {
		kind, status := errorKindOf(err)
		s.logEvent(r, observability.Event{
			Type: "compose_failed", EntityType: "document", EntityID: req.ID,
			Action: "process", Details: fmt.Sprintf(`{"kind":%q}`, kind), Success: false,
		})
		writeError(w, status, kind, err.Error())
		return
	}

	srcPages := 0
	if doc, err := s.store.Get(r.Context(), req.ID); err == nil {
		srcPages = doc.Pages
	}
	out, err := s.store.Put(r.Context(), store.RoleOutput, "edited.pdf", srcPages, false, res.Output)
	if err != nil {
		s.logger.Error("store output", "error", err)
		writeError(w, http.StatusInternalServerError, "StorageError", "failed to save output")
		return
	}

	s.logEvent(r, observability.Event{
		Type: "document_composed", EntityType: "document", EntityID: out.ID,
		Action: "process", Success: true,
	})

	warnings := res.Warnings
	if warnings == nil {
		warnings = []compose.Warning{}
	}
	writeJSON(w, http.StatusOK, processResponse{
		OutputID:    out.ID,
		DownloadURL: "/api/download/" + out.ID,
		Warnings:    warnings,
	})
}

// handleEvents exposes the newest business events of one type, for
// operational debugging. 404 when event logging is disabled.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotFound, "NotFound", "event log not enabled")
		return
	}
	evType := r.URL.Query().Get("type")
	if evType == "" {
		writeError(w, http.StatusBadRequest, "ValidationError", "type query parameter is required")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			writeError(w, http.StatusBadRequest, "ValidationError", "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	evs, err := s.events.Recent(r.Context(), evType, limit)
	if err != nil {
		s.logger.Error("recent events", "error", err)
		writeError(w, http.StatusInternalServerError, "StorageError", "failed to read events")
		return
	}
	out := make([]eventEntry, 0, len(evs))
	for _, ev := range evs {
		out = append(out, eventEntry{
			Type:       ev.Type,
			EntityType: ev.EntityType,
			EntityID:   ev.EntityID,
			Action:     ev.Action,
			Details:    ev.Details,
			Success:    ev.Success,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleDownload serves a composed document.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, err := s.store.ReadBytes(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "file not found")
		return
	}
	if err != nil {
		s.logger.Error("read output", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "StorageError", "failed to read file")
		return
	}

	short := id
	if len(short) > 12 {
		short = short[:12]
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "edited-"+short+".pdf"))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
