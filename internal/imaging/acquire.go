// Package imaging turns picker results into upload-ready JPEG photos.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"net/http"

	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// MaxImageSize is the byte size above which photos are compressed.
	MaxImageSize = 1024 * 1024
	// MaxWidth is the width compressed photos are scaled down to.
	MaxWidth = 1024
	// CompressQuality is the JPEG quality of compressed photos.
	CompressQuality = 50

	GalleryQuality = 100
	CameraQuality  = 70

	aspectW = 4
	aspectH = 3
)

// Source is where a photo came from.
type Source int

const (
	Gallery Source = iota
	Camera
)

func (s Source) String() string {
	if s == Camera {
		return "camera"
	}
	return "gallery"
}

// quality mirrors the picker settings: full quality from the gallery, 0.7 from the camera.
func (s Source) quality() int {
	if s == Camera {
		return CameraQuality
	}
	return GalleryQuality
}

// PickResult is what a camera or gallery picker hands back.
type PickResult struct {
	Canceled bool
	Source   Source
	Name     string
	Data     []byte
}

// Image is an acquired photo.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
	Width       int
	Height      int
}

// Acquirer crops picker output to 4:3 and optionally compresses it.
type Acquirer struct {
	Compress bool
	Logger   *slog.Logger
}

// NewAcquirer returns an Acquirer with compression enabled.
func NewAcquirer() *Acquirer {
	return &Acquirer{Compress: true, Logger: slog.Default()}
}

// Acquire converts a picker result into a JPEG Image. A canceled pick returns a nil
// image and a nil error.
func (a *Acquirer) Acquire(res PickResult) (*Image, error) {
	if res.Canceled {
		return nil, nil
	}
	if len(res.Data) == 0 {
		return nil, fmt.Errorf("picked image %q is empty", res.Name)
	}

	src, format, err := image.Decode(bytes.NewReader(res.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %q: %w", res.Name, err)
	}

	img := &Image{
		Name:        res.Name,
		ContentType: contentType(format, res.Data),
		Data:        res.Data,
		Width:       src.Bounds().Dx(),
		Height:      src.Bounds().Dy(),
	}

	if cropped, ok := cropToAspect(src, aspectW, aspectH); ok {
		data, err := encodeJPEG(cropped, res.Source.quality())
		if err != nil {
			return nil, fmt.Errorf("failed to re-encode cropped image: %w", err)
		}
		img.Data = data
		img.ContentType = "image/jpeg"
		img.Width, img.Height = cropped.Bounds().Dx(), cropped.Bounds().Dy()
	} else if img.ContentType != "image/jpeg" {
		data, err := encodeJPEG(src, res.Source.quality())
		if err != nil {
			return nil, fmt.Errorf("failed to re-encode image %q as jpeg: %w", res.Name, err)
		}
		img.Data = data
		img.ContentType = "image/jpeg"
	}

	if a.Compress {
		return a.compress(img), nil
	}
	return img, nil
}

// Compress shrinks img when it exceeds MaxImageSize. Failures return img unchanged.
func (a *Acquirer) compress(img *Image) *Image {
	out, err := Compress(img)
	if err != nil {
		a.logger().Warn("Image compression failed, using original.", "image", img.Name, "error", err)
		return img
	}
	return out
}

func (a *Acquirer) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// Compress downsizes images larger than MaxImageSize to at most MaxWidth pixels
// wide and re-encodes them at CompressQuality. Smaller images are returned as is.
func Compress(img *Image) (*Image, error) {
	if len(img.Data) <= MaxImageSize {
		return img, nil
	}

	src, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image for compression: %w", err)
	}

	scaled := scaleToWidth(src, MaxWidth)
	data, err := encodeJPEG(scaled, CompressQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode compressed image: %w", err)
	}

	return &Image{
		Name:        img.Name,
		ContentType: "image/jpeg",
		Data:        data,
		Width:       scaled.Bounds().Dx(),
		Height:      scaled.Bounds().Dy(),
	}, nil
}

// cropToAspect center-crops src to w:h. It reports false when src already has that aspect.
func cropToAspect(src image.Image, w, h int) (image.Image, bool) {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	if sw*h == sh*w {
		return src, false
	}

	cw, ch := sw, sw*h/w
	if ch > sh {
		cw, ch = sh*w/h, sh
	}
	if cw == 0 || ch == 0 {
		return src, false
	}

	x0 := b.Min.X + (sw-cw)/2
	y0 := b.Min.Y + (sh-ch)/2
	dst := image.NewRGBA(image.Rect(0, 0, cw, ch))
	draw.Draw(dst, dst.Bounds(), src, image.Pt(x0, y0), draw.Src)
	return dst, true
}

func scaleToWidth(src image.Image, maxWidth int) image.Image {
	b := src.Bounds()
	if b.Dx() <= maxWidth {
		return src
	}
	height := b.Dy() * maxWidth / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func contentType(format string, data []byte) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	}
	return http.DetectContentType(data)
}

// EnsureJPEG re-encodes img as a full-quality JPEG unless it already is one.
func EnsureJPEG(img *Image) (*Image, error) {
	if img.ContentType == "image/jpeg" {
		return img, nil
	}
	src, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %q: %w", img.Name, err)
	}
	data, err := encodeJPEG(src, GalleryQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image %q as jpeg: %w", img.Name, err)
	}
	return &Image{
		Name:        img.Name,
		ContentType: "image/jpeg",
		Data:        data,
		Width:       src.Bounds().Dx(),
		Height:      src.Bounds().Dy(),
	}, nil
}

// Blank returns a plain light-grey JPEG of the given size.
func Blank(width, height int) (*Image, error) {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.Gray{Y: 0xee}}, image.Point{}, draw.Src)
	data, err := encodeJPEG(dst, GalleryQuality)
	if err != nil {
		return nil, err
	}
	return &Image{Name: "blank.jpg", ContentType: "image/jpeg", Data: data, Width: width, Height: height}, nil
}
