package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/padak/ceo-xmass-review/internal/logger"
)

// GCS implements Backend on a Google Cloud Storage bucket. Blobs live
// under a fixed key prefix; the display name and tag set are carried in
// object metadata. Listing is a prefix scan filtered by tag membership,
// which is fine at the respondent counts this tool targets.
type GCS struct {
	client *storage.Client
	bucket string
	log    *logger.Logger
}

var _ Backend = (*GCS)(nil)

const (
	gcsKeyPrefix = "answers/"

	gcsMetaTimeout     = 30 * time.Second
	gcsTransferTimeout = 2 * time.Minute
)

// OpenGCS builds a client for the given bucket. A non-empty endpoint
// switches to an unauthenticated client for emulator use; otherwise
// default application credentials apply.
func OpenGCS(ctx context.Context, bucket, endpoint string, log *logger.Logger) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("gcs backend requires a bucket name")
	}
	var opts []option.ClientOption
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	} else {
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	log.Info("gcs backend ready", "bucket", bucket, "endpoint", endpoint)
	return &GCS{client: client, bucket: bucket, log: log}, nil
}

func (g *GCS) Close() error { return g.client.Close() }

func (g *GCS) List(ctx context.Context, tag string) ([]Blob, error) {
	ctx, cancel := context.WithTimeout(ctx, gcsMetaTimeout)
	defer cancel()
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: gcsKeyPrefix})
	out := []Blob{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects under %q: %w", gcsKeyPrefix, err)
		}
		blob := blobFromAttrs(attrs)
		if blob.HasTag(tag) {
			out = append(out, blob)
		}
	}
	return out, nil
}

func blobFromAttrs(attrs *storage.ObjectAttrs) Blob {
	b := Blob{
		ID:      attrs.Name,
		Name:    attrs.Metadata["name"],
		Size:    attrs.Size,
		Created: attrs.Created,
	}
	if raw := attrs.Metadata["tags"]; raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				b.Tags = append(b.Tags, t)
			}
		}
	}
	return b
}

func (g *GCS) Download(ctx context.Context, id string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, gcsTransferTimeout)
	defer cancel()
	r, err := g.client.Bucket(g.bucket).Object(id).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", id, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", id, err)
	}
	return data, nil
}

func (g *GCS) Upload(ctx context.Context, name string, tags []string, data []byte) (Blob, error) {
	ctx, cancel := context.WithTimeout(ctx, gcsTransferTimeout)
	defer cancel()
	key := gcsKeyPrefix + uuid.NewString()
	obj := g.client.Bucket(g.bucket).Object(key)
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	w.Metadata = map[string]string{
		"name": name,
		"tags": strings.Join(tags, ","),
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return Blob{}, fmt.Errorf("write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return Blob{}, fmt.Errorf("finish object %s: %w", key, err)
	}
	return Blob{
		ID:      key,
		Name:    name,
		Tags:    append([]string(nil), tags...),
		Size:    int64(len(data)),
		Created: time.Now().UTC(),
	}, nil
}

func (g *GCS) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, gcsMetaTimeout)
	defer cancel()
	err := g.client.Bucket(g.bucket).Object(id).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete object %s: %w", id, err)
	}
	return nil
}
