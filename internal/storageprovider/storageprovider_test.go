package storageprovider

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/RidiculousBuffal/TCSA/internal/errorutil"
	"github.com/RidiculousBuffal/TCSA/internal/storageutil"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{name: "memory bucket", url: "mem://"},
		{name: "file bucket", url: "file://" + filepath.ToSlash(t.TempDir())},
		{name: "in-memory badger", url: "badger://"},
		{name: "badger directory", url: "badger://" + filepath.ToSlash(t.TempDir())},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Open(ctx, tt.url)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer p.Close()

			w, err := p.Put(ctx, "analyses/a.json")
			if err != nil {
				t.Fatalf("we should be able to write: %v", err)
			}
			if _, err := w.Write([]byte("payload")); err != nil {
				t.Fatalf("we should be able to write: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("we should be able to commit: %v", err)
			}

			r, err := p.Get(ctx, "analyses/a.json")
			if err != nil {
				t.Fatalf("we should be able to read: %v", err)
			}
			defer r.Close()
			b, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("we should be able to read: %v", err)
			}
			if string(b) != "payload" || r.Size() != int64(len("payload")) {
				t.Fatalf("unexpected object content %q of size %d", string(b), r.Size())
			}

			if _, err := p.Get(ctx, "analyses/missing.json"); !errors.Is(err, storageutil.ErrObjectNotFound) {
				t.Fatalf("expected an object not found error, got %v", err)
			}
		})
	}
}

func TestOpenUnsupportedScheme(t *testing.T) {
	_, err := Open(context.Background(), "ftp://bucket")
	if !errors.Is(err, errorutil.ErrInvalidConfig) {
		t.Fatalf("expected an invalid config error, got %v", err)
	}
}
