// Package report renders a diagnosis as a one-page PDF and stores it.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/Lllllllleong/croppulse/internal/auth"
	"github.com/Lllllllleong/croppulse/internal/history"
	"github.com/Lllllllleong/croppulse/internal/imaging"
	"github.com/Lllllllleong/croppulse/internal/models"
	"github.com/Lllllllleong/croppulse/internal/triage"
)

const (
	// ContentType of stored reports.
	ContentType = "application/pdf"

	lineWidth = 90

	photoImport = "formsize:A4, position:bc, offset:0 40, scalefactor:0.6 rel"
	textStamp   = "fontname:Helvetica, points:10, position:tl, offset:40 -40, scalefactor:1 abs, " +
		"rotation:0, aligntext:l, fillcolor:#1b1b1b, bgcolor:#ffffff, margins:6"
)

// reportNamespace derives stable report ids from prediction ids.
var reportNamespace = uuid.MustParse("6f1c2b8e-3d41-4b6a-9a0e-2f3c5d7e8a90")

// Content is what a report shows.
type Content struct {
	Bundle     *triage.Bundle
	Treatments []string
	CapturedAt string
}

// Lines is the text block stamped on the page.
func Lines(c Content) []string {
	b := c.Bundle
	lines := []string{
		"CropPulse Diagnosis Report",
		"",
		"Plant Type: " + b.PlantType,
		"Disease: " + b.Disease,
		"Confidence: " + triage.FormatConfidence(b.Confidence) + "%",
	}
	if t, err := models.ParseTimestamp(c.CapturedAt); err == nil {
		lines = append(lines, "Captured: "+t.UTC().Format("2 Jan 2006 15:04 MST"))
	}

	lines = append(lines, "", "Follow-up Answers:")
	questions := b.OrderedQuestions()
	if len(questions) == 0 {
		lines = append(lines, "  None recorded")
	}
	for _, q := range questions {
		answer := "No"
		if b.Answers[q] {
			answer = "Yes"
		}
		lines = append(lines, wrap("  "+q+": "+answer, lineWidth)...)
	}

	lines = append(lines, "", "Treatments:")
	for _, t := range c.Treatments {
		lines = append(lines, wrap("  - "+t, lineWidth)...)
	}
	return lines
}

// wrap breaks s on spaces so no line is longer than width, unless a single word is.
func wrap(s string, width int) []string {
	indent := s[:len(s)-len(strings.TrimLeft(s, " "))]
	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{s}
	}
	var out []string
	cur := indent + words[0]
	for _, w := range words[1:] {
		if len(cur)+1+len(w) > width {
			out = append(out, cur)
			cur = indent + "    " + w
			continue
		}
		cur += " " + w
	}
	return append(out, cur)
}

func pdfConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// Render builds the PDF: the photo on the lower part of an A4 page with the text block
// stamped at the top. An empty photo renders a blank placeholder.
func Render(photo []byte, c Content) ([]byte, error) {
	tempDir, err := os.MkdirTemp("", "report-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	img, err := photoOrBlank(photo)
	if err != nil {
		return nil, err
	}
	imgPath := filepath.Join(tempDir, "photo.jpg")
	if err := os.WriteFile(imgPath, img.Data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write photo to temp file: %w", err)
	}

	imp, err := api.Import(photoImport, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("failed to parse import settings: %w", err)
	}
	pagePath := filepath.Join(tempDir, "page.pdf")
	if err := api.ImportImagesFile([]string{imgPath}, pagePath, imp, pdfConfig()); err != nil {
		return nil, fmt.Errorf("failed to import photo into PDF: %w", err)
	}

	stampedPath := filepath.Join(tempDir, "stamped.pdf")
	text := strings.Join(Lines(c), "\n")
	if err := api.AddTextWatermarksFile(pagePath, stampedPath, nil, true, text, textStamp, pdfConfig()); err != nil {
		return nil, fmt.Errorf("failed to stamp report text: %w", err)
	}

	outPath := filepath.Join(tempDir, "report.pdf")
	if err := api.OptimizeFile(stampedPath, outPath, pdfConfig()); err != nil {
		return nil, fmt.Errorf("failed to optimize report: %w", err)
	}
	if n, err := api.PageCountFile(outPath); err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	} else if n != 1 {
		return nil, fmt.Errorf("report has %d pages, want 1", n)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered report: %w", err)
	}
	return data, nil
}

func photoOrBlank(photo []byte) (*imaging.Image, error) {
	if len(photo) == 0 {
		return imaging.Blank(1024, 768)
	}
	img, err := imaging.EnsureJPEG(&imaging.Image{Name: "photo", Data: photo})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare photo: %w", err)
	}
	return img, nil
}

// DetailReader loads a prediction with its follow-up and treatments.
type DetailReader interface {
	Detail(ctx context.Context, sess auth.Session, predictionID string) (*history.Detail, error)
}

// ImageReader fetches a stored photo by gs:// URI.
type ImageReader interface {
	Read(ctx context.Context, uri string) ([]byte, error)
}

// ObjectSaver stores an object once and returns its URI.
type ObjectSaver interface {
	Save(ctx context.Context, objectName, contentType string, data []byte) (string, error)
}

// Exported describes a stored report.
type Exported struct {
	PredictionID string `json:"predictionId"`
	ObjectName   string `json:"objectName"`
	URI          string `json:"uri"`
}

// Exporter renders reports for stored predictions.
type Exporter struct {
	History DetailReader
	Images  ImageReader
	Reports ObjectSaver
}

// ObjectName is where the report for a prediction is stored. It is stable, so exporting
// the same prediction twice keeps the first report.
func ObjectName(userID, predictionID string) string {
	id := uuid.NewSHA1(reportNamespace, []byte(predictionID))
	return fmt.Sprintf("reports/%s/%s.pdf", userID, id)
}

// Export renders the report for one of the caller's predictions and stores it. A photo
// that cannot be fetched is replaced by the blank placeholder.
func (e *Exporter) Export(ctx context.Context, sess auth.Session, predictionID string) (*Exported, error) {
	logCtx := slog.With("userId", sess.UserID, "predictionId", predictionID)
	d, err := e.History.Detail(ctx, sess, predictionID)
	if err != nil {
		return nil, err
	}

	var photo []byte
	if uri := d.Prediction.ImageURI; uri != "" && e.Images != nil {
		photo, err = e.Images.Read(ctx, uri)
		if err != nil {
			logCtx.Warn("Failed to fetch prediction photo, using placeholder.", "imageUri", uri, "error", err)
			photo = nil
		}
	}

	start := time.Now()
	pdf, err := Render(photo, Content{
		Bundle:     triage.BundleFromRecord(d.Prediction, d.FollowUp),
		Treatments: d.Treatments,
		CapturedAt: d.Prediction.CapturedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}

	name := ObjectName(sess.UserID, predictionID)
	uri, err := e.Reports.Save(ctx, name, ContentType, pdf)
	if err != nil {
		return nil, fmt.Errorf("failed to store report: %w", err)
	}
	logCtx.Info("Report exported.", "gcsObject", name, "bytes", len(pdf), "duration", time.Since(start).String())
	return &Exported{PredictionID: predictionID, ObjectName: name, URI: uri}, nil
}
