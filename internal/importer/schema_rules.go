package importer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/quizbank/importer/internal/config"
)

// FieldType names the value shape a payload field must carry.
type FieldType string

const (
	FieldTypeText    FieldType = "TEXT"
	FieldTypeNumber  FieldType = "NUMBER"
	FieldTypeBoolean FieldType = "BOOLEAN"
	FieldTypeList    FieldType = "LIST"
)

// ParseFieldType resolves a configured type name, case insensitively.
func ParseFieldType(raw string) (FieldType, error) {
	switch FieldType(strings.ToUpper(strings.TrimSpace(raw))) {
	case FieldTypeText:
		return FieldTypeText, nil
	case FieldTypeNumber:
		return FieldTypeNumber, nil
	case FieldTypeBoolean:
		return FieldTypeBoolean, nil
	case FieldTypeList:
		return FieldTypeList, nil
	default:
		return "", fmt.Errorf("unknown field type %q", raw)
	}
}

// FieldSpec declares one expected payload field.
type FieldSpec struct {
	Type     FieldType
	Required bool
}

// SchemaRules checks payloads against a configured field schema on top of
// the base checks. Unknown payload fields are rejected; the schema is the
// contract for what a question may carry.
type SchemaRules struct {
	fields map[string]FieldSpec
	names  []string
}

// NewSchemaRules builds the rule set from configuration.
func NewSchemaRules(fields map[string]config.Field) (SchemaRules, error) {
	specs := make(map[string]FieldSpec, len(fields))
	names := make([]string, 0, len(fields))
	for name, field := range fields {
		fieldType, err := ParseFieldType(field.Type)
		if err != nil {
			return SchemaRules{}, fmt.Errorf("schema field %q: %w", name, err)
		}
		specs[name] = FieldSpec{Type: fieldType, Required: field.Required}
		names = append(names, name)
	}
	sort.Strings(names)
	return SchemaRules{fields: specs, names: names}, nil
}

// Check implements Rules.
func (s SchemaRules) Check(record RecordInput) []string {
	problems := BaseRules{}.Check(record)

	for _, name := range s.names {
		spec := s.fields[name]
		value, exists := record.Payload[name]

		if spec.Required && (!exists || value == nil) {
			problems = append(problems, fmt.Sprintf("required payload field %q is missing", name))
			continue
		}
		if !exists || value == nil {
			continue
		}
		if err := checkFieldType(name, value, spec.Type); err != nil {
			problems = append(problems, err.Error())
		}
	}

	var extras []string
	for name := range record.Payload {
		if _, known := s.fields[name]; !known {
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	for _, name := range extras {
		problems = append(problems, fmt.Sprintf("payload field %q is not in the schema", name))
	}

	return problems
}

// checkFieldType accepts the natural JSON decoding of each type plus the
// string forms file uploads produce, since every spreadsheet cell arrives as
// a string.
func checkFieldType(name string, value any, fieldType FieldType) error {
	switch fieldType {
	case FieldTypeText:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("payload field %q must be text, got %T", name, value)
		}
	case FieldTypeNumber:
		switch v := value.(type) {
		case float64, int, int64, json.Number:
		case string:
			if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
				return fmt.Errorf("payload field %q must be a number, got %q", name, v)
			}
		default:
			return fmt.Errorf("payload field %q must be a number, got %T", name, value)
		}
	case FieldTypeBoolean:
		switch v := value.(type) {
		case bool:
		case string:
			if _, err := strconv.ParseBool(strings.TrimSpace(v)); err != nil {
				return fmt.Errorf("payload field %q must be a boolean, got %q", name, v)
			}
		default:
			return fmt.Errorf("payload field %q must be a boolean, got %T", name, value)
		}
	case FieldTypeList:
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("payload field %q must be a list, got %T", name, value)
		}
	}
	return nil
}
