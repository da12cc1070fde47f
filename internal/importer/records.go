package importer

import (
	"strings"

	"github.com/quizbank/importer/internal/domain"
)

// RecordInput is one raw record as submitted for import. Payload and
// attributes are opaque to the pipeline; only the identity code and the
// subject/topic classification matter here.
type RecordInput struct {
	Code       string         `json:"code,omitempty"`
	Subject    int            `json:"subject"`
	Topic      int            `json:"topic"`
	Payload    map[string]any `json:"payload"`
	Attributes map[string]any `json:"attributes,omitempty"`
	State      string         `json:"state,omitempty"`

	// Problems carries coercion failures found while parsing an uploaded
	// file. The validator folds them into the row's hard errors.
	Problems []string `json:"-"`
}

// ValidRecord pairs a validated record with its 1-based input row number.
// The row number survives into processing so late failures can still be
// attributed to the original input row.
type ValidRecord struct {
	Row    int         `json:"row"`
	Record RecordInput `json:"record"`
}

// Rules is the schema/business-rule capability applied to every record during
// validation. Implementations return one message per violated rule and must
// not touch persistent state.
type Rules interface {
	Check(record RecordInput) []string
}

// BaseRules applies the minimal shape checks a question must pass before it
// can be persisted.
type BaseRules struct{}

// Check implements Rules.
func (BaseRules) Check(record RecordInput) []string {
	var problems []string

	text, _ := record.Payload["text"].(string)
	if strings.TrimSpace(text) == "" {
		problems = append(problems, "payload.text is required")
	}

	if options, ok := record.Payload["options"].([]any); ok && len(options) < 2 {
		problems = append(problems, "payload.options needs at least two entries")
	}

	if _, err := domain.ParseQuestionState(record.State); err != nil {
		problems = append(problems, err.Error())
	}

	return problems
}
