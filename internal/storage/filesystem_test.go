package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"gaitserver/internal/domain"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), "http://localhost:8080/static")
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return s
}

func TestFileStorePutGetExists(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()
	key := "abc/estimation.bin"
	payload := []byte("payload bytes")

	ok, err := s.Exists(ctx, key)
	if err != nil || ok {
		t.Fatalf("Exists(fresh key) = %v, %v, want false, nil", ok, err)
	}

	if err := s.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), "application/octet-stream"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	ok, err = s.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Exists(after put) = %v, %v, want true, nil", ok, err)
	}

	rc, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("Get() = %q, want %q", got, payload)
	}
}

func TestFileStoreGetMissing(t *testing.T) {
	s := newTestFileStore(t)
	if _, err := s.Get(context.Background(), "nope/input.mp4"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestFileStoreDeleteIdempotent(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()
	key := "abc/analysis.bin"

	if err := s.Put(ctx, key, strings.NewReader("x"), 1, "application/octet-stream"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete(existing) error = %v", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete(missing) error = %v, want nil", err)
	}
}

func TestFileStorePutOverwrites(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()
	key := "abc/estimation.bin"

	for _, payload := range []string{"first version", "second"} {
		if err := s.Put(ctx, key, strings.NewReader(payload), int64(len(payload)), "application/octet-stream"); err != nil {
			t.Fatalf("Put(%q) error = %v", payload, err)
		}
	}
	rc, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "second" {
		t.Fatalf("Get() = %q, want the overwritten value", got)
	}
}

func TestFileStorePresign(t *testing.T) {
	s := newTestFileStore(t)
	u, err := s.Presign(context.Background(), "abc/output.mp4", 0)
	if err != nil {
		t.Fatalf("Presign() error = %v", err)
	}
	if got := u.String(); got != "http://localhost:8080/static/abc/output.mp4" {
		t.Fatalf("Presign() = %q", got)
	}
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "abc/input.mp4", "abc/input.mp4", false},
		{"leading slash", "/abc/input.mp4", "abc/input.mp4", false},
		{"dot prefix", "./abc/input.mp4", "abc/input.mp4", false},
		{"traversal", "../../etc/passwd", "", true},
		{"empty", "   ", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := sanitizeKey(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("sanitizeKey(%q) expected error, got %q", tc.in, got)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("sanitizeKey(%q) = %q, %v, want %q", tc.in, got, err, tc.want)
			}
		})
	}
}
