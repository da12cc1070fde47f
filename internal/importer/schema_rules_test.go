package importer

import (
	"testing"

	"github.com/quizbank/importer/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSchemaRules(t *testing.T, fields map[string]config.Field) SchemaRules {
	t.Helper()
	rules, err := NewSchemaRules(fields)
	require.NoError(t, err)
	return rules
}

func TestNewSchemaRulesRejectsUnknownType(t *testing.T) {
	_, err := NewSchemaRules(map[string]config.Field{
		"score": {Type: "decimal"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `schema field "score"`)
}

func TestSchemaRulesRequiredField(t *testing.T) {
	rules := mustSchemaRules(t, map[string]config.Field{
		"text":   {Type: "text", Required: true},
		"points": {Type: "number", Required: true},
	})

	problems := rules.Check(RecordInput{Payload: map[string]any{"text": "q"}})
	assert.Equal(t, []string{`required payload field "points" is missing`}, problems)
}

func TestSchemaRulesTypeChecks(t *testing.T) {
	rules := mustSchemaRules(t, map[string]config.Field{
		"text":    {Type: "text", Required: true},
		"points":  {Type: "number"},
		"timed":   {Type: "boolean"},
		"options": {Type: "list"},
	})

	tests := []struct {
		name    string
		payload map[string]any
		want    []string
	}{
		{
			name:    "all valid",
			payload: map[string]any{"text": "q", "points": 2.0, "timed": true, "options": []any{"a", "b"}},
			want:    nil,
		},
		{
			name:    "string forms from file uploads",
			payload: map[string]any{"text": "q", "points": "2.5", "timed": "true"},
			want:    nil,
		},
		{
			name:    "wrong number",
			payload: map[string]any{"text": "q", "points": "lots"},
			want:    []string{`payload field "points" must be a number, got "lots"`},
		},
		{
			name:    "wrong boolean",
			payload: map[string]any{"text": "q", "timed": 3.0},
			want:    []string{`payload field "timed" must be a boolean, got float64`},
		},
		{
			name:    "wrong list",
			payload: map[string]any{"text": "q", "options": "a|b"},
			want:    []string{`payload field "options" must be a list, got string`},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, rules.Check(RecordInput{Payload: tc.payload}))
		})
	}
}

func TestSchemaRulesRejectsUnknownFields(t *testing.T) {
	rules := mustSchemaRules(t, map[string]config.Field{
		"text": {Type: "text", Required: true},
	})

	problems := rules.Check(RecordInput{Payload: map[string]any{"text": "q", "hint": "psst"}})
	assert.Equal(t, []string{`payload field "hint" is not in the schema`}, problems)
}

func TestSchemaRulesKeepsBaseChecks(t *testing.T) {
	rules := mustSchemaRules(t, map[string]config.Field{
		"text": {Type: "text"},
	})

	problems := rules.Check(RecordInput{Payload: map[string]any{}})
	assert.Contains(t, problems, "payload.text is required")
}
