// Package inference calls the remote plant disease classifier.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/Lllllllleong/croppulse/internal/models"
)

const (
	// DefaultBaseURL is the classifier deployment the mobile app talks to.
	DefaultBaseURL = "https://llama-ready-verbally.ngrok-free.app"
	// DefaultPlantType is used by the prediction flow when no plant type is chosen.
	DefaultPlantType = "apple"
	// FieldPlantType is the default of the field scanning flow.
	FieldPlantType = "corn"
)

// PlantTypes are the plant types the classifier has been trained on.
var PlantTypes = []string{
	"apple", "bell_pepper", "cherry", "corn", "grape",
	"peach", "potato", "strawberry", "tomato",
}

// Client posts photos to the classifier's /predict endpoint.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a Client for baseURL, or DefaultBaseURL when it is empty.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: http.DefaultClient,
	}
}

// Predict classifies a JPEG photo for the given plant type. There are no retries and no
// client-side timeout beyond what ctx imposes.
func (c *Client) Predict(ctx context.Context, image []byte, plantType string) (*models.Prediction, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("no image to classify")
	}
	if plantType == "" {
		plantType = DefaultPlantType
	}

	body, contentType, err := multipartImage(image)
	if err != nil {
		return nil, err
	}

	endpoint := c.BaseURL + "/predict?plant_type=" + url.QueryEscape(plantType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build predict request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("classifier returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var p models.Prediction
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode classifier response: %w", err)
	}
	if p.Disease == "" {
		return nil, fmt.Errorf("classifier response has no predicted_disease")
	}
	return &p, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func multipartImage(image []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create multipart file part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", fmt.Errorf("failed to write image to multipart body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
