package storageprovider

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/RidiculousBuffal/TCSA/internal/errorutil"
	"github.com/RidiculousBuffal/TCSA/internal/storageutil"
)

// Provider is an object handler holding resources to release.
type Provider interface {
	storageutil.ObjectHandler
	Close() error
}

type handler struct {
	storageutil.ObjectHandler
	close func() error
}

func (h handler) Close() error {
	return h.close()
}

// Open returns the provider for a storage URL. Supported schemes are
// file://, mem:// and s3://<bucket> (gocloud blob), gs://<bucket>[/prefix]
// (Google Cloud Storage) and badger://[dir] (Badger, in memory without a
// directory).
func Open(ctx context.Context, rawURL string) (Provider, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: storage url %q: %v", errorutil.ErrInvalidConfig, rawURL, err)
	}
	switch u.Scheme {
	case "file", "mem", "s3":
		bucket, err := blob.OpenBucket(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		return handler{ObjectHandler: &Blob{Bucket: bucket}, close: bucket.Close}, nil
	case "gs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		var oh storageutil.ObjectHandler = &Gcs{BucketHandle: client.Bucket(u.Host)}
		if prefix := strings.Trim(u.Path, "/"); prefix != "" {
			oh = prefixed{ObjectHandler: oh, prefix: prefix}
		}
		return handler{ObjectHandler: oh, close: client.Close}, nil
	case "badger":
		b, err := OpenBadger(path.Join(u.Host, u.Path))
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unsupported storage scheme %q", errorutil.ErrInvalidConfig, u.Scheme)
	}
}

type prefixed struct {
	storageutil.ObjectHandler
	prefix string
}

func (p prefixed) Put(ctx context.Context, name string) (io.WriteCloser, error) {
	return p.ObjectHandler.Put(ctx, path.Join(p.prefix, name))
}

func (p prefixed) Get(ctx context.Context, name string) (storageutil.ReadSizeCloser, error) {
	return p.ObjectHandler.Get(ctx, path.Join(p.prefix, name))
}
