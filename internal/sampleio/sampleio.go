// Package sampleio loads sample sets from files, standard input or HTTP.
package sampleio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/RidiculousBuffal/TCSA/internal/errorutil"
	"github.com/RidiculousBuffal/TCSA/internal/perfscript"
	"github.com/RidiculousBuffal/TCSA/internal/sample"
)

type Format string

const (
	FormatAuto Format = "auto"
	FormatPerf Format = "perf"
	FormatJSON Format = "json"

	// Stdin is the location reading from standard input.
	Stdin = "-"

	lz4Extension  = ".lz4"
	zstdExtension = ".zst"
)

type Loader struct {
	http  *httpclient.Client
	stdin io.Reader
}

func NewLoader(timeout time.Duration, retries int) *Loader {
	backoff := heimdall.NewConstantBackoff(500*time.Millisecond, 100*time.Millisecond)
	return &Loader{
		http: httpclient.NewClient(
			httpclient.WithHTTPTimeout(timeout),
			httpclient.WithRetryCount(retries),
			httpclient.WithRetrier(heimdall.NewRetrier(backoff)),
		),
		stdin: os.Stdin,
	}
}

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(name)); f {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatPerf, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown input format %q", errorutil.ErrInvalidConfig, name)
	}
}

// Load reads the samples found at location, a path, an http(s) URL or Stdin.
// Locations ending with .lz4 or .zst are decompressed first.
func (l *Loader) Load(ctx context.Context, location string, format Format) ([]sample.Sample, error) {
	rc, err := l.open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return Decode(rc, location, format)
}

// Decode reads samples from r, name being used to detect compression and the
// format when it is FormatAuto.
func Decode(r io.Reader, name string, format Format) ([]sample.Sample, error) {
	name = strings.ToLower(name)
	if i := strings.IndexAny(name, "?#"); i != -1 && isURL(name) {
		name = name[:i]
	}
	switch {
	case strings.HasSuffix(name, lz4Extension):
		r = lz4.NewReader(r)
		name = strings.TrimSuffix(name, lz4Extension)
	case strings.HasSuffix(name, zstdExtension):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
		name = strings.TrimSuffix(name, zstdExtension)
	}
	if format == FormatAuto {
		format = FormatPerf
		if strings.HasSuffix(name, ".json") {
			format = FormatJSON
		}
	}
	if format == FormatJSON {
		return sample.Decode(r)
	}
	return perfscript.Parse(r)
}

func isURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

func (l *Loader) open(ctx context.Context, location string) (io.ReadCloser, error) {
	switch {
	case location == Stdin:
		return io.NopCloser(l.stdin), nil
	case isURL(location):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, err
		}
		resp, err := l.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetching %s: unexpected status %d", location, resp.StatusCode)
		}
		return resp.Body, nil
	default:
		return os.Open(location)
	}
}
