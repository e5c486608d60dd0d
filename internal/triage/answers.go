package triage

import (
	"errors"
	"fmt"
	"slices"
)

// ErrUnanswered is returned when a save or dispatch is attempted before every
// follow-up question has a yes or no answer.
var ErrUnanswered = errors.New("all follow-up questions must be answered")

// ErrUnknownQuestion is returned when an answer targets a question that is not in the set.
var ErrUnknownQuestion = errors.New("unknown follow-up question")

// Answers holds a tri-state answer (unanswered, yes, no) for each question of a set.
type Answers struct {
	questions []string
	values    map[string]*bool
}

// NewAnswers starts every question unanswered.
func NewAnswers(questions []string) *Answers {
	a := &Answers{
		questions: slices.Clone(questions),
		values:    make(map[string]*bool, len(questions)),
	}
	for _, q := range questions {
		a.values[q] = nil
	}
	return a
}

// AnswersFrom builds Answers from an existing map. Entries for questions outside the set
// are ignored.
func AnswersFrom(questions []string, values map[string]*bool) *Answers {
	a := NewAnswers(questions)
	for _, q := range a.questions {
		if v, ok := values[q]; ok && v != nil {
			b := *v
			a.values[q] = &b
		}
	}
	return a
}

// Yes selects yes for q, or clears it if yes was already selected.
func (a *Answers) Yes(q string) error {
	return a.toggle(q, true)
}

// No selects no for q, or clears it if no was already selected.
func (a *Answers) No(q string) error {
	return a.toggle(q, false)
}

func (a *Answers) toggle(q string, choice bool) error {
	cur, ok := a.values[q]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownQuestion, q)
	}
	if cur != nil && *cur == choice {
		a.values[q] = nil
		return nil
	}
	a.values[q] = &choice
	return nil
}

// Clear resets q to unanswered.
func (a *Answers) Clear(q string) error {
	if _, ok := a.values[q]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownQuestion, q)
	}
	a.values[q] = nil
	return nil
}

// Get returns the answer for q and whether q has been answered.
func (a *Answers) Get(q string) (value bool, answered bool) {
	v := a.values[q]
	if v == nil {
		return false, false
	}
	return *v, true
}

// AllAnswered reports whether every question has a value. It is true for an empty set.
func (a *Answers) AllAnswered() bool {
	for _, q := range a.questions {
		if a.values[q] == nil {
			return false
		}
	}
	return true
}

// Questions returns the questions in their original order.
func (a *Answers) Questions() []string {
	return slices.Clone(a.questions)
}

// Map returns the answered questions. Call it only once AllAnswered is true to get the
// complete record.
func (a *Answers) Map() map[string]bool {
	out := make(map[string]bool, len(a.questions))
	for _, q := range a.questions {
		if v := a.values[q]; v != nil {
			out[q] = *v
		}
	}
	return out
}

// Complete returns the answer map, or ErrUnanswered if any question is still open.
func (a *Answers) Complete() (map[string]bool, error) {
	if a == nil {
		return nil, ErrUnanswered
	}
	if !a.AllAnswered() {
		return nil, ErrUnanswered
	}
	return a.Map(), nil
}
