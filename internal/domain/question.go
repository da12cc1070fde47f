package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QuestionState tracks where a question sits in its editorial lifecycle.
type QuestionState string

const (
	QuestionStateDraft     QuestionState = "draft"
	QuestionStateReview    QuestionState = "review"
	QuestionStateActive    QuestionState = "active"
	QuestionStatePublished QuestionState = "published"
	QuestionStateArchived  QuestionState = "archived"
)

// ParseQuestionState validates a lifecycle state coming from input data.
// An empty value resolves to the draft default.
func ParseQuestionState(raw string) (QuestionState, error) {
	switch QuestionState(raw) {
	case "":
		return QuestionStateDraft, nil
	case QuestionStateDraft, QuestionStateReview, QuestionStateActive,
		QuestionStatePublished, QuestionStateArchived:
		return QuestionState(raw), nil
	default:
		return "", fmt.Errorf("unknown lifecycle state %q", raw)
	}
}

// Question is one content record flowing through the import pipeline. The
// pipeline only cares about its identity code and classification; payload and
// attributes are carried opaquely.
type Question struct {
	ID         uuid.UUID      `json:"id"`
	Code       string         `json:"code"`
	Subject    int            `json:"subject"`
	Topic      int            `json:"topic"`
	Payload    map[string]any `json:"payload"`
	Attributes map[string]any `json:"attributes"`
	State      QuestionState  `json:"state"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NewQuestion creates a question with a fresh id. Maps are deep copied so the
// caller's input cannot mutate the stored record.
func NewQuestion(code string, subject, topic int, payload, attributes map[string]any, state QuestionState) Question {
	if state == "" {
		state = QuestionStateDraft
	}
	now := time.Now()
	return Question{
		ID:         uuid.New(),
		Code:       code,
		Subject:    subject,
		Topic:      topic,
		Payload:    copyValues(payload),
		Attributes: copyValues(attributes),
		State:      state,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// PayloadJSON marshals the opaque payload for JSONB storage.
func (q Question) PayloadJSON() ([]byte, error) {
	if q.Payload == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(q.Payload)
}

// AttributesJSON marshals the opaque attributes for JSONB storage.
func (q Question) AttributesJSON() ([]byte, error) {
	if q.Attributes == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(q.Attributes)
}

func copyValues(values map[string]any) map[string]any {
	if values == nil {
		return map[string]any{}
	}
	copied := make(map[string]any, len(values))
	for key, value := range values {
		copied[key] = value
	}
	return copied
}
