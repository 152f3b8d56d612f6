// Package bronze writes harvested pages verbatim to the object store,
// keyed so a partition's raw data can always be re-derived without
// re-calling the source API.
package bronze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"hydropipe/internal/model"
	"hydropipe/pkg/apperror"
)

// ObjectPutter is the subset of objectstore.Client the writer needs.
type ObjectPutter interface {
	EnsureBucket(ctx context.Context, bucket string) error
	PutObject(ctx context.Context, bucket, key string, body []byte, contentType string) error
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// Writer persists Pages to one bucket, one object per (api, partition,
// endpoint path).
type Writer struct {
	objects ObjectPutter
	bucket  string
}

// New builds a Writer backed by objects, targeting bucket.
func New(objects ObjectPutter, bucket string) *Writer {
	return &Writer{objects: objects, bucket: bucket}
}

// Key returns the object key for one page, matching the source
// pipeline's layout: {api}/{partitionKey}/{endpointPath}.{ext}.
func Key(api, partitionKey, endpointPath string, raw bool) string {
	ext := "json"
	if raw {
		ext = "gml"
	}
	return fmt.Sprintf("%s/%s/%s.%s", api, partitionKey, endpointPath, ext)
}

// WritePage serializes page and stores it at its derived key. JSON pages
// are re-encoded with indentation and HTML escaping disabled, matching a
// human-diffable archival format; GML pages are stored as the raw bytes
// the harvester already decoded.
func (w *Writer) WritePage(ctx context.Context, page model.Page) (string, error) {
	if err := w.objects.EnsureBucket(ctx, w.bucket); err != nil {
		return "", apperror.Wrap(err, apperror.CodeStoreWrite, fmt.Sprintf("ensuring bucket %s", w.bucket))
	}

	key := Key(page.API, page.PartitionKey, page.Endpoint, len(page.Raw) > 0)

	body := page.Raw
	contentType := page.ContentType
	if len(body) == 0 {
		encoded, err := encodeJSON(page.Records)
		if err != nil {
			return "", apperror.Wrap(err, apperror.CodeStoreWrite, fmt.Sprintf("encoding page %s", key))
		}
		body = encoded
		contentType = "application/json"
	}

	if err := w.objects.PutObject(ctx, w.bucket, key, body, contentType); err != nil {
		return "", apperror.Wrap(err, apperror.CodeStoreWrite, fmt.Sprintf("storing %s", key))
	}

	return key, nil
}

// ReadPage reads back a previously written page's raw bytes by key.
func (w *Writer) ReadPage(ctx context.Context, key string) ([]byte, error) {
	body, err := w.objects.GetObject(ctx, w.bucket, key)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeStoreWrite, fmt.Sprintf("reading %s", key))
	}
	return body, nil
}

func encodeJSON(records []map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
