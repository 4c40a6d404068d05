package sampleio

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/RidiculousBuffal/TCSA/internal/errorutil"
	"github.com/RidiculousBuffal/TCSA/internal/testutil"
)

const (
	perfInput = "contender 4243 [001] 10.5: 1 cycles:\n\t4005d6 worker (/tmp/contender)\n\n"
	jsonInput = `{"samples":[{"thread_id":"4243","process_name":"contender","timestamp":10.5,"event":"cycles","cpu":1,"call_stack":["4005d6 worker (/tmp/contender)"]}]}`
)

func compress(t *testing.T, data string) []byte {
	t.Helper()
	var b bytes.Buffer
	zw := lz4.NewWriter(&b)
	if _, err := zw.Write([]byte(data)); err != nil {
		t.Fatalf("can't compress: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("can't compress: %v", err)
	}
	return b.Bytes()
}

func compressZstd(t *testing.T, data string) []byte {
	t.Helper()
	var b bytes.Buffer
	zw, err := zstd.NewWriter(&b)
	if err != nil {
		t.Fatalf("can't compress: %v", err)
	}
	if _, err := zw.Write([]byte(data)); err != nil {
		t.Fatalf("can't compress: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("can't compress: %v", err)
	}
	return b.Bytes()
}

func TestLoadFormats(t *testing.T) {
	dir := t.TempDir()
	files := map[string][]byte{
		"trace.txt":      []byte(perfInput),
		"trace.json":     []byte(jsonInput),
		"trace.json.lz4": compress(t, jsonInput),
		"trace.perf.lz4": compress(t, perfInput),
		"trace.json.zst": compressZstd(t, jsonInput),
		"trace.txt.zst":  compressZstd(t, perfInput),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), content, 0o600); err != nil {
			t.Fatalf("can't write %s: %v", name, err)
		}
	}

	l := NewLoader(time.Second, 0)
	want, err := Decode(strings.NewReader(perfInput), "trace.txt", FormatAuto)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(want) != 1 {
		t.Fatalf("expected a single sample, got %d", len(want))
	}

	for name := range files {
		t.Run(name, func(t *testing.T) {
			got, err := l.Load(context.Background(), filepath.Join(dir, name), FormatAuto)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := testutil.Diff(got, want); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestLoadExplicitFormat(t *testing.T) {
	l := NewLoader(time.Second, 0)
	l.stdin = strings.NewReader(jsonInput)
	samples, err := l.Load(context.Background(), Stdin, FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 1 || samples[0].ThreadID != "4243" {
		t.Fatalf("unexpected samples: %+v", samples)
	}
}

func TestLoadURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/trace.json":
			_, _ = w.Write([]byte(jsonInput))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	l := NewLoader(time.Second, 0)
	samples, err := l.Load(context.Background(), server.URL+"/trace.json?token=abc", FormatAuto)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 1 || len(samples[0].CallStack) != 1 {
		t.Fatalf("unexpected samples: %+v", samples)
	}

	if _, err := l.Load(context.Background(), server.URL+"/missing.json", FormatAuto); err == nil {
		t.Fatal("expected an error on a missing trace")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name string
		want Format
	}{
		{name: "", want: FormatAuto},
		{name: "auto", want: FormatAuto},
		{name: "PERF", want: FormatPerf},
		{name: "json", want: FormatJSON},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.name)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tt.want {
			t.Fatalf("expected %q, got %q", tt.want, got)
		}
	}
	if _, err := ParseFormat("pprof"); !errors.Is(err, errorutil.ErrInvalidConfig) {
		t.Fatalf("expected an invalid config error, got %v", err)
	}
}
