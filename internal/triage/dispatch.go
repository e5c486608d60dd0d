package triage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/Lllllllleong/croppulse/internal/models"
)

// Target is where a diagnosis bundle is handed off to.
type Target string

const (
	TargetChat      Target = "chat"
	TargetCommunity Target = "community"
)

// ErrUnknownTarget is returned for targets other than chat and community.
var ErrUnknownTarget = errors.New("unknown dispatch target")

// Bundle is the diagnosis summary consumed by every dispatch target.
type Bundle struct {
	PlantType  string
	Disease    string
	Confidence float64
	// Questions fixes the order answers are rendered in.
	Questions []string
	Answers   map[string]bool
}

// NewBundle builds a bundle from a live session. Every question must be answered.
func NewBundle(plantType string, p models.Prediction, answers *Answers) (*Bundle, error) {
	complete, err := answers.Complete()
	if err != nil {
		return nil, err
	}
	return &Bundle{
		PlantType:  plantType,
		Disease:    p.Disease,
		Confidence: p.Confidence,
		Questions:  answers.Questions(),
		Answers:    complete,
	}, nil
}

// BundleFromRecord builds a bundle from a stored prediction and its optional follow-up.
// Stored answers carry no order, so questions are sorted alphabetically.
func BundleFromRecord(pred *models.PredictionRecord, followUp *models.FollowUpRecord) *Bundle {
	b := &Bundle{
		PlantType:  pred.PlantType,
		Disease:    pred.Disease,
		Confidence: pred.Confidence,
		Answers:    map[string]bool{},
	}
	if followUp == nil {
		return b
	}
	for q, v := range followUp.Answers {
		b.Questions = append(b.Questions, q)
		b.Answers[q] = v
	}
	slices.Sort(b.Questions)
	return b
}

// Handoff is pre-filled content for a target. What the user finally sends is not tracked.
type Handoff struct {
	Target  Target `json:"target"`
	Content string `json:"content"`
}

// Dispatch renders b for target.
func Dispatch(b *Bundle, target Target) (*Handoff, error) {
	switch target {
	case TargetChat:
		return &Handoff{Target: target, Content: ChatPrompt(b)}, nil
	case TargetCommunity:
		return &Handoff{Target: target, Content: CommunityPost(b)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}
}

// ChatPrompt asks the assistant to confirm, treat and prevent the diagnosed disease.
func ChatPrompt(b *Bundle) string {
	conf := FormatConfidence(b.Confidence)
	var sb strings.Builder
	fmt.Fprintf(&sb, "I have a %s plant diagnosed with %s (%s%% confidence).\n", b.PlantType, b.Disease, conf)
	sb.WriteString("Can you provide:\n")
	sb.WriteString("1. Methods to confirm this diagnosis\n")
	sb.WriteString("2. Effective treatment options\n")
	sb.WriteString("3. Preventive measures for future occurrences\n")
	sb.WriteString("\n")
	sb.WriteString("Additional context:\n")
	fmt.Fprintf(&sb, "- Plant Type: %s\n", b.PlantType)
	fmt.Fprintf(&sb, "- Confidence Level: %s%%\n", conf)
	fmt.Fprintf(&sb, "- Follow-up Answers: %s", answersJSON(b))
	return sb.String()
}

// CommunityPost is the body of a pre-filled community post.
func CommunityPost(b *Bundle) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Plant Type: %s\n", b.PlantType)
	fmt.Fprintf(&sb, "Disease: %s\n", b.Disease)
	fmt.Fprintf(&sb, "Confidence: %s%%\n", FormatConfidence(b.Confidence))
	sb.WriteString("\n")
	sb.WriteString("Follow-up Information:\n")
	for _, q := range b.OrderedQuestions() {
		answer := "No"
		if b.Answers[q] {
			answer = "Yes"
		}
		fmt.Fprintf(&sb, "%s: %s\n", q, answer)
	}
	sb.WriteString("\n")
	sb.WriteString("I would appreciate any advice or experience with treating this condition.")
	return sb.String()
}

// OrderedQuestions returns the answered questions in bundle order, then any stragglers sorted.
func (b *Bundle) OrderedQuestions() []string {
	out := make([]string, 0, len(b.Answers))
	seen := make(map[string]bool, len(b.Answers))
	for _, q := range b.Questions {
		if _, ok := b.Answers[q]; ok && !seen[q] {
			out = append(out, q)
			seen[q] = true
		}
	}
	var rest []string
	for q := range b.Answers {
		if !seen[q] {
			rest = append(rest, q)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

// answersJSON encodes the answers as a JSON object keeping question order.
func answersJSON(b *Bundle) string {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, q := range b.OrderedQuestions() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(q)
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatBool(b.Answers[q]))
	}
	buf.WriteByte('}')
	return buf.String()
}

// FormatConfidence renders a percentage without trailing zeros.
func FormatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', -1, 64)
}
