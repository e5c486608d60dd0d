package models

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// Firestore collection names shared with the mobile app.
const (
	PredictionsCollection       = "generalUserPredictions"
	FollowUpsCollection         = "predictionFollowUps"
	FollowUpQuestionsCollection = "diseaseFollowUpQuestions"
	TreatmentsCollection        = "treatments"
	PostsCollection             = "posts"
	UsersCollection             = "generalUsers"
	FertilizerRatiosCollection  = "fertilizerRatios"
)

// Prediction is the classifier's answer for one photo.
type Prediction struct {
	Disease    string  `json:"predicted_disease"`
	Confidence float64 `json:"confidence"`
}

// PredictionRecord is a saved classification result owned by one user.
// Field names follow the documents the mobile client already writes.
type PredictionRecord struct {
	ID         string  `firestore:"-" json:"id"`
	UserID     string  `firestore:"userId" json:"userId"`
	PlantType  string  `firestore:"plantType" json:"plantType"`
	Disease    string  `firestore:"prediction" json:"prediction"`
	Confidence float64 `firestore:"confidence" json:"confidence"`
	CapturedAt string  `firestore:"dateTime" json:"dateTime"`
	ImageURI   string  `firestore:"imageUri,omitempty" json:"imageUri,omitempty"`
}

// Validate checks the record before it is written.
func (r *PredictionRecord) Validate() error {
	if err := requireFields(map[string]string{
		"userId":     r.UserID,
		"plantType":  r.PlantType,
		"prediction": r.Disease,
	}); err != nil {
		return fmt.Errorf("invalid prediction record: %w", err)
	}
	if err := validConfidence(r.Confidence); err != nil {
		return fmt.Errorf("invalid prediction record: %w", err)
	}
	if _, err := ParseTimestamp(r.CapturedAt); err != nil {
		return fmt.Errorf("invalid prediction record: %w", err)
	}
	return nil
}

// Captured returns CapturedAt as a time, or the zero time if it cannot be parsed.
func (r *PredictionRecord) Captured() time.Time {
	t, _ := ParseTimestamp(r.CapturedAt)
	return t
}

// FollowUpRecord holds the yes/no answers given for a PredictionRecord.
type FollowUpRecord struct {
	ID           string          `firestore:"-" json:"id"`
	PredictionID string          `firestore:"predictionId" json:"predictionId"`
	UserID       string          `firestore:"userId" json:"userId"`
	Disease      string          `firestore:"disease" json:"disease"`
	PlantType    string          `firestore:"plantType" json:"plantType"`
	Answers      map[string]bool `firestore:"followUpAnswers" json:"followUpAnswers"`
	Confidence   float64         `firestore:"confidence" json:"confidence"`
	CapturedAt   string          `firestore:"dateTime" json:"dateTime"`
}

// Validate checks the record before it is written.
func (r *FollowUpRecord) Validate() error {
	if err := requireFields(map[string]string{
		"predictionId": r.PredictionID,
		"userId":       r.UserID,
		"disease":      r.Disease,
		"plantType":    r.PlantType,
	}); err != nil {
		return fmt.Errorf("invalid follow-up record: %w", err)
	}
	if r.Answers == nil {
		return fmt.Errorf("invalid follow-up record: followUpAnswers is required")
	}
	if err := validConfidence(r.Confidence); err != nil {
		return fmt.Errorf("invalid follow-up record: %w", err)
	}
	if _, err := ParseTimestamp(r.CapturedAt); err != nil {
		return fmt.Errorf("invalid follow-up record: %w", err)
	}
	return nil
}

// QuestionSet is the ordered follow-up questionnaire for a disease and plant type.
type QuestionSet struct {
	Disease   string   `firestore:"disease" json:"disease"`
	PlantType string   `firestore:"plantType,omitempty" json:"plantType,omitempty"`
	Questions []string `firestore:"questions" json:"questions"`
}

// TreatmentEntry lists recommended treatments for a disease and plant type.
type TreatmentEntry struct {
	Disease   string   `firestore:"disease" json:"disease"`
	PlantType string   `firestore:"plantType" json:"plantType"`
	Treatment []string `firestore:"treatment" json:"treatment"`
}

// Comment is embedded in a Post's comments array.
type Comment struct {
	Content      string   `firestore:"content" json:"content"`
	AuthorID     string   `firestore:"authorId" json:"authorId"`
	AuthorEmail  string   `firestore:"authorEmail" json:"authorEmail"`
	AuthorName   string   `firestore:"authorName" json:"authorName"`
	CreatedAt    string   `firestore:"createdAt" json:"createdAt"`
	Likes        []string `firestore:"likes" json:"likes"`
	Dislikes     []string `firestore:"dislikes" json:"dislikes"`
	IsAIResponse bool     `firestore:"isAIResponse,omitempty" json:"isAIResponse,omitempty"`
}

// Post is a community board entry.
type Post struct {
	ID          string    `firestore:"-" json:"id"`
	Content     string    `firestore:"content" json:"content"`
	AuthorID    string    `firestore:"authorId" json:"authorId"`
	AuthorEmail string    `firestore:"authorEmail" json:"authorEmail"`
	AuthorName  string    `firestore:"authorName" json:"authorName"`
	Tag         string    `firestore:"tag" json:"tag"`
	CreatedAt   string    `firestore:"createdAt" json:"createdAt"`
	Comments    []Comment `firestore:"comments" json:"comments"`
	Likes       []string  `firestore:"likes" json:"likes"`
	Dislikes    []string  `firestore:"dislikes" json:"dislikes"`
}

// Validate checks the post before it is written.
func (p *Post) Validate() error {
	if err := requireFields(map[string]string{
		"content":  strings.TrimSpace(p.Content),
		"authorId": p.AuthorID,
		"tag":      p.Tag,
	}); err != nil {
		return fmt.Errorf("invalid post: %w", err)
	}
	for i, c := range p.Comments {
		if strings.TrimSpace(c.Content) == "" || c.AuthorID == "" {
			return fmt.Errorf("invalid post: comment %d needs content and authorId", i)
		}
	}
	return nil
}

// Location is a latitude/longitude pair stored on the user profile.
type Location struct {
	Latitude  *float64 `firestore:"latitude" json:"latitude"`
	Longitude *float64 `firestore:"longitude" json:"longitude"`
}

// IsSet reports whether both coordinates are present.
func (l Location) IsSet() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// UserProfile is the generalUsers document keyed by the user id.
type UserProfile struct {
	ID            string   `firestore:"-" json:"id"`
	Email         string   `firestore:"email" json:"email"`
	Name          string   `firestore:"name,omitempty" json:"name,omitempty"`
	PlantTypes    string   `firestore:"plantTypes,omitempty" json:"plantTypes,omitempty"`
	Location      Location `firestore:"location,omitempty" json:"location"`
	UserType      string   `firestore:"userType,omitempty" json:"userType,omitempty"`
	CreatedAt     string   `firestore:"createdAt,omitempty" json:"createdAt,omitempty"`
	EmailVerified bool     `firestore:"emailVerified" json:"emailVerified"`
}

// FertilizerRatio is a saved fertilizer calculation for one crop.
type FertilizerRatio struct {
	ID         string  `firestore:"-" json:"id"`
	UserID     string  `firestore:"userId" json:"userId"`
	Crop       string  `firestore:"crop" json:"crop"`
	Area       float64 `firestore:"area" json:"area"`
	Nitrogen   float64 `firestore:"nitrogen" json:"nitrogen"`
	Phosphorus float64 `firestore:"phosphorus" json:"phosphorus"`
	Potassium  float64 `firestore:"potassium" json:"potassium"`
	CreatedAt  string  `firestore:"createdAt" json:"createdAt"`
}

// Validate checks the ratio before it is written.
func (r *FertilizerRatio) Validate() error {
	if err := requireFields(map[string]string{"userId": r.UserID, "crop": r.Crop}); err != nil {
		return fmt.Errorf("invalid fertilizer ratio: %w", err)
	}
	if !(r.Area > 0) {
		return fmt.Errorf("invalid fertilizer ratio: area must be positive")
	}
	return nil
}

// Timestamp formats t the way the mobile client does (ISO-8601, UTC, milliseconds).
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// ParseTimestamp parses a client-generated ISO-8601 timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func requireFields(fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	// map order is random; keep the message stable
	slices.Sort(missing)
	return fmt.Errorf("missing %s", strings.Join(missing, ", "))
}

func validConfidence(c float64) error {
	if math.IsNaN(c) || c < 0 || c > 100 {
		return fmt.Errorf("confidence %v out of range 0-100", c)
	}
	return nil
}
