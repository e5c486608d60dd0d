package models

// These structs define the JSON payloads exchanged between the mobile client and the
// HTTP functions, and between the triage function and its Cloud Workflow.

// PredictResponse is the output of the disease-predictor function.
type PredictResponse struct {
	ImageURI   string     `json:"imageUri"`
	PlantType  string     `json:"plantType"`
	Prediction Prediction `json:"prediction"`
	Questions  []string   `json:"questions"`
	// QuestionsError is set when the prediction succeeded but its questions could not be loaded.
	QuestionsError string `json:"questionsError,omitempty"`
}

// SubmitTriageRequest is the input for the triage-submitter function. Answers holds
// true, false or null per question.
type SubmitTriageRequest struct {
	PlantType  string           `json:"plantType"`
	Prediction Prediction       `json:"prediction"`
	Answers    map[string]*bool `json:"answers"`
	ImageURI   string           `json:"imageUri"`
}

// SubmitTriageResponse is the output of the triage-submitter function.
type SubmitTriageResponse struct {
	PredictionID string   `json:"predictionId"`
	FollowUpID   string   `json:"followUpId"`
	Treatments   []string `json:"treatments"`
	ExecutionID  string   `json:"executionId,omitempty"`
}

// TreatmentsResponse is the output of the treatments lookup.
type TreatmentsResponse struct {
	Disease    string   `json:"disease"`
	PlantType  string   `json:"plantType"`
	Treatments []string `json:"treatments"`
}

// TriageWorkflowArgs is the argument of a triage workflow execution.
type TriageWorkflowArgs struct {
	PredictionID string `json:"predictionId"`
	FollowUpID   string `json:"followUpId"`
	UserID       string `json:"userId"`
}

// DispatchRequest is the input for the diagnosis-dispatcher function. Either PredictionID
// names a stored prediction, or the live fields describe an unsaved session.
type DispatchRequest struct {
	Target       string           `json:"target"`
	PredictionID string           `json:"predictionId,omitempty"`
	PlantType    string           `json:"plantType,omitempty"`
	Prediction   *Prediction      `json:"prediction,omitempty"`
	Questions    []string         `json:"questions,omitempty"`
	Answers      map[string]*bool `json:"answers,omitempty"`
}

// ChatRequest is the input for the crop-assistant function.
type ChatRequest struct {
	Message string `json:"message"`
}

// CreatePostRequest creates a community post.
type CreatePostRequest struct {
	Content string `json:"content"`
	Tag     string `json:"tag"`
}

// CommentRequest adds a comment to a post.
type CommentRequest struct {
	Content string `json:"content"`
}

// ReactionRequest likes or dislikes a post or comment.
type ReactionRequest struct {
	Reaction string `json:"reaction"`
}

// FertilizerRequest calculates or saves a ratio.
type FertilizerRequest struct {
	Crop   string  `json:"crop"`
	AreaM2 float64 `json:"areaM2"`
}

// ExportReportRequest is the input for the report-exporter function.
type ExportReportRequest struct {
	PredictionID string `json:"predictionId"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
