package services

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/Lllllllleong/croppulse/internal/gcp"
	"github.com/Lllllllleong/croppulse/internal/imaging"
)

// GCSEvent is the payload of a Cloud Storage object finalize event.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

// ObjectReader fetches one object.
type ObjectReader interface {
	ReadObject(ctx context.Context, bucket, object string) ([]byte, error)
}

// IntakeConfig holds all configuration for the intake service.
type IntakeConfig struct {
	ImagesBucket string
}

// IntakeFunction normalizes raw photo uploads into compressed JPEGs.
type IntakeFunction struct {
	raw    ObjectReader
	images ObjectSaver
	config IntakeConfig
}

// NewIntake creates a new IntakeFunction instance.
func NewIntake(ctx context.Context) (*IntakeFunction, error) {
	imagesBucket := gcp.GetEnv("IMAGES_BUCKET", "")
	if imagesBucket == "" {
		return nil, fmt.Errorf("IMAGES_BUCKET environment variable must be set")
	}
	storageClient, err := gcp.NewStorageClient(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("Image intake initialized.", "imagesBucket", imagesBucket)
	return &IntakeFunction{
		raw:    &gcp.Reader{Client: storageClient, Limit: maxPhotoBytes},
		images: gcp.NewBucket(storageClient, imagesBucket),
		config: IntakeConfig{ImagesBucket: imagesBucket},
	}, nil
}

// NormalizedName is the images-bucket object for a raw upload.
func NormalizedName(object string) string {
	return strings.TrimSuffix(object, path.Ext(object)) + ".jpg"
}

// Process compresses one uploaded photo and stores it as JPEG. Non-image objects and
// objects already in the images bucket are skipped. Undecodable images are logged and
// skipped so the event is not retried forever.
func (f *IntakeFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if e.Bucket == f.config.ImagesBucket {
		logCtx.Info("Skipping object in the images bucket.")
		return nil
	}
	if e.ContentType != "" && !strings.HasPrefix(e.ContentType, "image/") {
		logCtx.Info("Skipping non-image object.", "contentType", e.ContentType)
		return nil
	}
	logCtx.Info("Processing new upload.")

	data, err := f.raw.ReadObject(ctx, e.Bucket, e.Name)
	if err != nil {
		logCtx.Error("Failed to read upload.", "error", err)
		return err
	}

	img, err := imaging.EnsureJPEG(&imaging.Image{Name: e.Name, ContentType: e.ContentType, Data: data})
	if err != nil {
		logCtx.Error("Upload is not a decodable image, skipping.", "error", err)
		return nil
	}
	compressed, err := imaging.Compress(img)
	if err != nil {
		logCtx.Warn("Image compression failed, using original.", "error", err)
		compressed = img
	}

	dest := NormalizedName(e.Name)
	uri, err := f.images.Save(ctx, dest, compressed.ContentType, compressed.Data)
	if err != nil {
		logCtx.Error("Failed to store normalized image.", "error", err)
		return err
	}
	logCtx.Info("Upload normalized.", "output", uri, "inBytes", len(data), "outBytes", len(compressed.Data))
	return nil
}
