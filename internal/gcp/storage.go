package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// ObjectURI formats a gs:// URI.
func ObjectURI(bucket, object string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, object)
}

// ParseObjectURI splits a gs:// URI into bucket and object name.
func ParseObjectURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// uri: %q", uri)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("gs:// uri has no object: %q", uri)
	}
	return bucket, object, nil
}

// SaveToGCSAtomically writes data to a GCS object only if it doesn't already exist.
// An existing object is not an error; duplicate deliveries are skipped.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName, contentType string, data []byte) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			slog.Info("Object already exists, skipping write.", "gcsObject", objectName)
			return nil
		}
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			slog.Info("Object already exists, skipping write.", "gcsObject", objectName)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// Bucket is a write-once object store on a single GCS bucket.
type Bucket struct {
	Name   string
	handle *storage.BucketHandle
}

// NewBucket binds name on client.
func NewBucket(client *storage.Client, name string) *Bucket {
	return &Bucket{Name: name, handle: client.Bucket(name)}
}

// Save writes the object once and returns its gs:// URI.
func (b *Bucket) Save(ctx context.Context, objectName, contentType string, data []byte) (string, error) {
	if err := SaveToGCSAtomically(ctx, b.handle, objectName, contentType, data); err != nil {
		return "", err
	}
	return ObjectURI(b.Name, objectName), nil
}

// Reader fetches whole objects by gs:// URI from any bucket.
type Reader struct {
	Client *storage.Client
	// Limit caps the bytes read; zero means no cap.
	Limit int64
}

// Read returns the content of the object at uri.
func (r *Reader) Read(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseObjectURI(uri)
	if err != nil {
		return nil, err
	}
	return r.ReadObject(ctx, bucket, object)
}

// ReadObject returns the content of bucket/object.
func (r *Reader) ReadObject(ctx context.Context, bucket, object string) ([]byte, error) {
	gcsReader, err := r.Client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for %s: %w", ObjectURI(bucket, object), err)
	}
	defer gcsReader.Close()

	var src io.Reader = gcsReader
	if r.Limit > 0 {
		src = io.LimitReader(gcsReader, r.Limit)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object %s: %w", ObjectURI(bucket, object), err)
	}
	return data, nil
}
