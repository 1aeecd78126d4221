package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "documents.db"), filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	data := []byte("%PDF-1.7 fake bytes")
	doc, err := s.Put(ctx, RoleSource, "contract.pdf", 3, false, data)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(doc.ID, "doc_") {
		t.Fatalf("source id = %q, want doc_ prefix", doc.ID)
	}

	got, err := s.Get(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Filename != "contract.pdf" || got.Pages != 3 || got.Role != RoleSource || got.Encrypted {
		t.Fatalf("metadata mismatch: %+v", got)
	}
	if got.SizeBytes != int64(len(data)) {
		t.Fatalf("size = %d, want %d", got.SizeBytes, len(data))
	}

	bytes, err := s.ReadBytes(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if string(bytes) != string(data) {
		t.Fatal("blob bytes mismatch")
	}
}

func TestOutputIDPrefix(t *testing.T) {
	s := openTestStore(t)
	doc, err := s.Put(context.Background(), RoleOutput, "edited.pdf", 1, false, []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(doc.ID, "out_") {
		t.Fatalf("output id = %q, want out_ prefix", doc.ID)
	}
}

func TestNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "doc_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get: err = %v, want ErrNotFound", err)
	}
	if _, err := s.ReadBytes(ctx, "doc_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ReadBytes: err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "doc_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete: err = %v, want ErrNotFound", err)
	}
	if err := s.SetPages(ctx, "doc_missing", 4); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetPages: err = %v, want ErrNotFound", err)
	}
}

func TestSetPages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc, err := s.Put(ctx, RoleSource, "locked.pdf", 0, true, []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetPages(ctx, doc.ID, 7); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Pages != 7 || !got.Encrypted {
		t.Fatalf("after backfill: %+v", got)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc, err := s.Put(ctx, RoleSource, "a.pdf", 1, false, []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, doc.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := s.ReadBytes(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("blob survived delete: %v", err)
	}
}

func TestSweepOutputs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	src, err := s.Put(ctx, RoleSource, "src.pdf", 1, false, []byte("s"))
	if err != nil {
		t.Fatal(err)
	}
	out, err := s.Put(ctx, RoleOutput, "edited.pdf", 1, false, []byte("o"))
	if err != nil {
		t.Fatal(err)
	}

	// Nothing is old enough yet.
	n, err := s.SweepOutputs(ctx, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("swept %d, want 0", n)
	}

	// With a negative age every output is expired; sources stay.
	n, err = s.SweepOutputs(ctx, -time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	if _, err := s.Get(ctx, out.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("output survived sweep: %v", err)
	}
	if _, err := s.Get(ctx, src.ID); err != nil {
		t.Fatalf("source swept: %v", err)
	}
}
