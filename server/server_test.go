package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kamiladigital/pdf-editor/compose"
	"github.com/kamiladigital/pdf-editor/coord"
	"github.com/kamiladigital/pdf-editor/dbopen"
	"github.com/kamiladigital/pdf-editor/observability"
	"github.com/kamiladigital/pdf-editor/overlay"
	"github.com/kamiladigital/pdf-editor/store"
)

// stubCodec is a minimal in-memory codec so handler tests run without a
// real PDF engine.
type stubCodec struct {
	password string
	pages    int
}

type stubDoc struct {
	pages  int
	placed int
}

func (c *stubCodec) Open(ctx context.Context, doc []byte, password string) (compose.Document, error) {
	if c.password != "" {
		if password == "" {
			return nil, fmt.Errorf("%w: encrypted", compose.ErrPasswordRequired)
		}
		if password != c.password {
			return nil, fmt.Errorf("%w: bad key", compose.ErrWrongPassword)
		}
	}
	return &stubDoc{pages: c.pages}, nil
}

func (d *stubDoc) Snapshot() coord.DocumentSnapshot {
	snap := coord.DocumentSnapshot{PageCount: d.pages}
	for i := 0; i < d.pages; i++ {
		snap.Pages = append(snap.Pages, coord.PageGeometry{WidthPt: 612, HeightPt: 792})
	}
	return snap
}

func (d *stubDoc) PlaceText(page int, p coord.TextPlacement, text string, fontSizePt float64, color overlay.RGB) error {
	d.placed++
	return nil
}

func (d *stubDoc) PlaceImage(page int, pngData []byte, p coord.ImagePlacement) error {
	d.placed++
	return nil
}

func (d *stubDoc) Serialize(w io.Writer) error {
	_, err := fmt.Fprintf(w, "composed with %d placements", d.placed)
	return err
}

func (d *stubDoc) Close() error { return nil }

func newTestServer(t *testing.T, codec compose.Codec) (*Server, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "docs.db"), filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := DefaultConfig()
	comp := compose.New(compose.Config{Codec: codec})
	return New(cfg, st, codec, comp, nil, nil), st
}

func multipartPDF(t *testing.T, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("pdf", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()
	return &body, mw.FormDataContentType()
}

func TestUploadAndInfo(t *testing.T) {
	srv, _ := newTestServer(t, &stubCodec{pages: 2})
	router := srv.Router()

	body, ctype := multipartPDF(t, "contract.pdf", []byte("%PDF fake"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body)
	}
	var up uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &up); err != nil {
		t.Fatal(err)
	}
	if up.Pages != 2 || up.Encrypted || !strings.HasPrefix(up.ID, "doc_") {
		t.Fatalf("upload response = %+v", up)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/info/"+up.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("info status = %d: %s", rec.Code, rec.Body)
	}
	var info infoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.PageCount != 2 || len(info.Pages) != 2 || info.Pages[0].WidthPt != 612 {
		t.Fatalf("info response = %+v", info)
	}
}

func TestUploadRejectsNonPDF(t *testing.T) {
	srv, _ := newTestServer(t, &stubCodec{pages: 1})
	body, ctype := multipartPDF(t, "notes.txt", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestProcessAndDownload(t *testing.T) {
	srv, st := newTestServer(t, &stubCodec{pages: 2})
	router := srv.Router()

	doc, err := st.Put(context.Background(), store.RoleSource, "a.pdf", 2, false, []byte("%PDF fake"))
	if err != nil {
		t.Fatal(err)
	}

	payload := fmt.Sprintf(`{
		"id": %q,
		"overlays": [
			{"kind":"text","id":"t1","page":1,"xPct":10,"yPct":15,"text":"hello","fontSizePt":14,"colorHex":"#ff0000"},
			{"kind":"text","id":"t2","page":9,"xPct":10,"yPct":15,"text":"off the end"}
		]
	}`, doc.ID)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/process", strings.NewReader(payload)))
	if rec.Code != http.StatusOK {
		t.Fatalf("process status = %d: %s", rec.Code, rec.Body)
	}
	var resp processResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(resp.OutputID, "out_") {
		t.Fatalf("output id = %q", resp.OutputID)
	}
	if len(resp.Warnings) != 1 || resp.Warnings[0].Reason != compose.ReasonInvalidPage || resp.Warnings[0].OverlayID != "t2" {
		t.Fatalf("warnings = %+v, want one InvalidPage for t2", resp.Warnings)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, resp.DownloadURL, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "1 placements") {
		t.Fatalf("unexpected output body: %s", rec.Body)
	}
}

func TestProcessErrorKinds(t *testing.T) {
	srv, st := newTestServer(t, &stubCodec{pages: 1, password: "secret"})
	router := srv.Router()

	doc, err := st.Put(context.Background(), store.RoleSource, "locked.pdf", 0, true, []byte("%PDF enc"))
	if err != nil {
		t.Fatal(err)
	}

	run := func(password string) (int, errorResponse) {
		body := fmt.Sprintf(`{"id":%q,"password":%q,"overlays":[
			{"kind":"text","id":"t1","page":1,"xPct":1,"yPct":1,"text":"x"}]}`, doc.ID, password)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/process", strings.NewReader(body)))
		var er errorResponse
		json.Unmarshal(rec.Body.Bytes(), &er)
		return rec.Code, er
	}

	if code, er := run(""); code != http.StatusUnauthorized || er.ErrorKind != "PasswordRequired" {
		t.Fatalf("no password: %d %+v", code, er)
	}
	if code, er := run("nope"); code != http.StatusForbidden || er.ErrorKind != "WrongPassword" {
		t.Fatalf("wrong password: %d %+v", code, er)
	}
	if code, _ := run("secret"); code != http.StatusOK {
		t.Fatalf("correct password: %d", code)
	}
}

func TestProcessBadRequests(t *testing.T) {
	srv, st := newTestServer(t, &stubCodec{pages: 1})
	router := srv.Router()

	doc, err := st.Put(context.Background(), store.RoleSource, "a.pdf", 1, false, []byte("%PDF"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{"id":`, http.StatusBadRequest},
		{"unknown kind", fmt.Sprintf(`{"id":%q,"overlays":[{"kind":"video","id":"v1","page":1}]}`, doc.ID), http.StatusBadRequest},
		{"missing document", `{"id":"doc_missing","overlays":[]}`, http.StatusNotFound},
		{"duplicate ids", fmt.Sprintf(`{"id":%q,"overlays":[
			{"kind":"text","id":"a","page":1,"xPct":1,"yPct":1,"text":"x"},
			{"kind":"text","id":"a","page":1,"xPct":2,"yPct":2,"text":"y"}]}`, doc.ID), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/process", strings.NewReader(tt.body)))
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.code, rec.Body)
			}
		})
	}
}

func TestDownloadMissing(t *testing.T) {
	srv, _ := newTestServer(t, &stubCodec{pages: 1})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/download/out_missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestEventsEndpoint(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "docs.db"), filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	db := dbopen.OpenMemory(t, dbopen.WithSchema(observability.Schema))
	events := observability.NewEventLogger(db, "pdfeditor")
	codec := &stubCodec{pages: 1}
	comp := compose.New(compose.Config{Codec: codec})
	router := New(DefaultConfig(), st, codec, comp, events, nil).Router()

	body, ctype := multipartPDF(t, "a.pdf", []byte("%PDF fake"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?type=document_uploaded", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("events status = %d: %s", rec.Code, rec.Body)
	}
	var got []eventEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Type != "document_uploaded" || !got[0].Success {
		t.Fatalf("events = %+v", got)
	}
	if !strings.HasPrefix(got[0].EntityID, "doc_") {
		t.Fatalf("entity id = %q", got[0].EntityID)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing type: status = %d, want 400", rec.Code)
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?type=x&limit=0", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: status = %d, want 400", rec.Code)
	}
}

func TestEventsEndpointDisabled(t *testing.T) {
	srv, _ := newTestServer(t, &stubCodec{pages: 1})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?type=document_uploaded", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, &stubCodec{pages: 1})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/upload", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatal("missing CORS header")
	}
}
