package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/quizbank/importer/internal/config"
	"github.com/quizbank/importer/internal/domain"
	"github.com/quizbank/importer/internal/repository"
)

// RowReport groups per-row messages for the validation response.
type RowReport struct {
	Row      int      `json:"row"`
	Messages []string `json:"messages"`
}

// ValidationResult partitions the submitted records. Records with warnings
// stay in the valid partition; warnings never block processing.
type ValidationResult struct {
	Valid    []ValidRecord            `json:"valid"`
	Invalid  []RowReport              `json:"invalid"`
	Warnings []RowReport              `json:"warnings"`
	Summary  domain.ValidationSummary `json:"summary"`
}

// Validator runs the pre-processing checks over a submitted record list.
// It reads the store for duplicate-code lookups but never writes to it.
type Validator struct {
	questions repository.QuestionRepository
	rules     Rules
	cfg       config.Import
}

// NewValidator creates a validator with the given rule capability.
func NewValidator(questions repository.QuestionRepository, rules Rules, cfg config.Import) *Validator {
	if rules == nil {
		rules = BaseRules{}
	}
	return &Validator{questions: questions, rules: rules, cfg: cfg}
}

// Validate checks every record and partitions the list. Row numbers are
// 1-based over the input order.
//
// A record whose explicit identity code collides with an existing question is
// not rejected: the code is cleared so the processor generates a fresh one,
// and the collision is reported as a warning. Bulk imports should not fail
// wholesale over incidental code collisions.
func (v *Validator) Validate(ctx context.Context, records []RecordInput) (ValidationResult, error) {
	result := ValidationResult{
		Valid:    []ValidRecord{},
		Invalid:  []RowReport{},
		Warnings: []RowReport{},
	}

	for idx, record := range records {
		row := idx + 1

		problems := append([]string(nil), record.Problems...)
		problems = append(problems, v.rules.Check(record)...)
		problems = append(problems, v.checkClassification(record)...)
		if len(problems) > 0 {
			result.Invalid = append(result.Invalid, RowReport{Row: row, Messages: problems})
			continue
		}

		var warnings []string
		if code := strings.TrimSpace(record.Code); code != "" {
			exists, err := v.questions.CodeExists(ctx, code)
			if err != nil {
				return ValidationResult{}, fmt.Errorf("failed to check identity code %q: %w", code, err)
			}
			if exists {
				warnings = append(warnings, fmt.Sprintf("identity code %q already exists; a new code will be generated", code))
				record.Code = ""
			} else {
				record.Code = code
			}
		}

		if len(warnings) > 0 {
			result.Warnings = append(result.Warnings, RowReport{Row: row, Messages: warnings})
		}
		result.Valid = append(result.Valid, ValidRecord{Row: row, Record: record})
	}

	result.Summary = domain.ValidationSummary{
		Valid:    len(result.Valid),
		Invalid:  len(result.Invalid),
		Warnings: len(result.Warnings),
	}

	return result, nil
}

func (v *Validator) checkClassification(record RecordInput) []string {
	var problems []string
	if record.Subject < v.cfg.SubjectMin || record.Subject > v.cfg.SubjectMax {
		problems = append(problems, fmt.Sprintf("subject %d outside valid range %d-%d", record.Subject, v.cfg.SubjectMin, v.cfg.SubjectMax))
	}
	if record.Topic < v.cfg.TopicMin || record.Topic > v.cfg.TopicMax {
		problems = append(problems, fmt.Sprintf("topic %d outside valid range %d-%d", record.Topic, v.cfg.TopicMin, v.cfg.TopicMax))
	}
	return problems
}

// LedgerIssues flattens row reports into ledger issues, one per row, with the
// row's messages joined.
func LedgerIssues(reports []RowReport) []domain.RowIssue {
	issues := make([]domain.RowIssue, 0, len(reports))
	for _, report := range reports {
		issues = append(issues, domain.RowIssue{
			Row:     report.Row,
			Message: strings.Join(report.Messages, "; "),
		})
	}
	return issues
}
