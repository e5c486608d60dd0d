package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/Lllllllleong/croppulse/internal/auth"
	"github.com/Lllllllleong/croppulse/internal/gcp"
	"github.com/Lllllllleong/croppulse/internal/imaging"
	"github.com/Lllllllleong/croppulse/internal/inference"
	"github.com/Lllllllleong/croppulse/internal/models"
	"github.com/Lllllllleong/croppulse/internal/store"
	"github.com/Lllllllleong/croppulse/internal/triage"
)

const (
	maxUploadBytes = 16 << 20
	// QuestionsUnavailable is shown when a prediction has no loadable questions.
	QuestionsUnavailable = "Unable to load follow-up questions."
)

// ObjectSaver stores an object once and returns its gs:// URI.
type ObjectSaver interface {
	Save(ctx context.Context, objectName, contentType string, data []byte) (string, error)
}

// PredictorConfig holds all configuration for the predictor service.
type PredictorConfig struct {
	ProjectID    string
	InferenceURL string
	ImagesBucket string
}

// PredictorFunction classifies uploaded photos and returns their follow-up questions.
type PredictorFunction struct {
	acquirer   *imaging.Acquirer
	classifier triage.Classifier
	questions  *triage.QuestionResolver
	images     ObjectSaver
	config     PredictorConfig
}

func loadPredictorConfig() (*PredictorConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	imagesBucket := gcp.GetEnv("IMAGES_BUCKET", "")
	if imagesBucket == "" {
		return nil, fmt.Errorf("IMAGES_BUCKET environment variable must be set")
	}
	return &PredictorConfig{
		ProjectID:    projectID,
		InferenceURL: gcp.GetEnv("INFERENCE_URL", inference.DefaultBaseURL),
		ImagesBucket: imagesBucket,
	}, nil
}

// NewPredictor creates a new PredictorFunction instance.
func NewPredictor(ctx context.Context) (*PredictorFunction, error) {
	config, err := loadPredictorConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, err
	}
	storageClient, err := gcp.NewStorageClient(ctx)
	if err != nil {
		return nil, err
	}

	f := &PredictorFunction{
		acquirer:   imaging.NewAcquirer(),
		classifier: inference.NewClient(config.InferenceURL),
		questions:  &triage.QuestionResolver{Store: store.New(firestoreClient)},
		images:     gcp.NewBucket(storageClient, config.ImagesBucket),
		config:     *config,
	}
	slog.Info("Disease predictor initialized.", "inferenceUrl", config.InferenceURL, "imagesBucket", config.ImagesBucket)
	return f, nil
}

// Process acquires and classifies the photo, then uploads the normalized photo. A failed
// classification uploads nothing. An upload failure leaves ImageURI empty; a question
// lookup failure keeps the prediction.
func (f *PredictorFunction) Process(ctx context.Context, sess auth.Session, plantType string, pick imaging.PickResult) (*models.PredictResponse, error) {
	if !sess.Valid() {
		return nil, auth.ErrUnauthenticated
	}
	plantType, err := triage.PlantTypeOrDefault(plantType)
	if err != nil {
		return nil, err
	}
	if len(pick.Data) == 0 {
		return nil, models.Invalid(triage.ErrNoImage.Error())
	}
	logCtx := slog.With("userId", sess.UserID, "plantType", plantType, "source", pick.Source.String())

	wf := &triage.Workflow{
		Session:          sess,
		PlantType:        plantType,
		Acquirer:         f.acquirer,
		Classifier:       f.classifier,
		QuestionResolver: f.questions,
	}
	if _, err := wf.Acquire(pick); err != nil {
		logCtx.Warn("Rejected unreadable image.", "error", err)
		return nil, models.Invalid("The selected file is not a supported image")
	}
	img := wf.Image()

	p, qErr := wf.Predict(ctx)
	if p == nil {
		return nil, qErr
	}

	var imageURI string
	objectName := fmt.Sprintf("uploads/%s/%s.jpg", sess.UserID, uuid.NewString())
	if uri, err := f.images.Save(ctx, objectName, img.ContentType, img.Data); err != nil {
		logCtx.Error("Failed to upload photo.", "gcsObject", objectName, "error", err)
	} else {
		imageURI = uri
	}

	resp := &models.PredictResponse{
		ImageURI:   imageURI,
		PlantType:  plantType,
		Prediction: *wf.Prediction(),
		Questions:  wf.Questions(),
	}
	if resp.Questions == nil {
		resp.Questions = []string{}
	}
	if qErr != nil {
		resp.QuestionsError = QuestionsUnavailable
	}
	logCtx.Info("Prediction complete.", "disease", resp.Prediction.Disease, "questions", len(resp.Questions))
	return resp, nil
}

// ServeHTTP accepts a multipart form with the photo in "file" and optional "plantType"
// and "source" (camera or gallery) fields.
func (f *PredictorFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	authenticated(f.handle).ServeHTTP(w, r)
}

func (f *PredictorFunction) handle(w http.ResponseWriter, r *http.Request, sess auth.Session, logCtx *slog.Logger) {
	if r.Method != http.MethodPost {
		writeJSON(w, logCtx, http.StatusMethodNotAllowed, models.ErrorResponse{Error: "Method Not Allowed"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, logCtx, models.Invalid("Bad Request: could not parse upload"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, logCtx, models.Invalid(triage.ErrNoImage.Error()))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, logCtx, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	source := imaging.Gallery
	if r.FormValue("source") == imaging.Camera.String() {
		source = imaging.Camera
	}
	res, err := f.Process(r.Context(), sess, r.FormValue("plantType"), imaging.PickResult{
		Source: source,
		Name:   header.Filename,
		Data:   data,
	})
	if err != nil {
		writeError(w, logCtx, err)
		return
	}
	writeJSON(w, logCtx, http.StatusOK, res)
}
