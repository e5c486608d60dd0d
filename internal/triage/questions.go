package triage

import (
	"context"
	"fmt"
	"slices"

	"github.com/Lllllllleong/croppulse/internal/models"
)

// GenericDisease is the disease value of the question set used when no
// disease-specific set exists.
const GenericDisease = "generic"

// DefaultQuestions are asked when neither a specific nor a generic set is stored.
var DefaultQuestions = []string{
	"Are there visible symptoms on the plant?",
	"Have you noticed any changes in plant growth?",
	"Are there any environmental stress factors?",
}

// QuestionStore looks up stored question sets. An empty plantType matches any plant
// type. A miss returns a nil set and a nil error.
type QuestionStore interface {
	FindQuestionSet(ctx context.Context, disease, plantType string) (*models.QuestionSet, error)
}

// QuestionResolver picks the follow-up questions for a prediction.
type QuestionResolver struct {
	Store QuestionStore
}

// Resolve returns the questions for disease and plantType, trying the exact pair, then the
// generic set, then DefaultQuestions. A stored set with no questions counts as a miss.
func (r *QuestionResolver) Resolve(ctx context.Context, disease, plantType string) ([]string, error) {
	set, err := r.Store.FindQuestionSet(ctx, disease, plantType)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch questions for %s/%s: %w", disease, plantType, err)
	}
	if set != nil && len(set.Questions) > 0 {
		return slices.Clone(set.Questions), nil
	}

	set, err = r.Store.FindQuestionSet(ctx, GenericDisease, "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch generic questions: %w", err)
	}
	if set != nil && len(set.Questions) > 0 {
		return slices.Clone(set.Questions), nil
	}

	return slices.Clone(DefaultQuestions), nil
}
