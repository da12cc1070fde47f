package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	"github.com/quizbank/importer/internal/domain"
	"github.com/quizbank/importer/internal/repository"

	"github.com/xuri/excelize/v2"
)

// Format identifies a supported export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat resolves a format query value. An empty value defaults to CSV.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	return string(f)
}

// File is a fully rendered export ready to be served as a download.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Service renders stored questions into downloadable files. Exports are
// synchronous; the row counts here do not justify a job queue.
type Service struct {
	questions repository.QuestionRepository
}

// NewService creates the export service.
func NewService(questions repository.QuestionRepository) *Service {
	return &Service{questions: questions}
}

// Export lists the matching questions and renders them in the requested
// format. The column layout mirrors the upload format, so an exported file
// can be re-imported as is.
func (s *Service) Export(ctx context.Context, filter repository.QuestionFilter, format Format) (File, error) {
	questions, err := s.questions.List(ctx, filter)
	if err != nil {
		return File{}, fmt.Errorf("failed to list questions for export: %w", err)
	}

	headers, rows := tabulate(questions)

	var data []byte
	switch format {
	case FormatXLSX:
		data, err = renderXLSX(headers, rows)
	default:
		data, err = renderCSV(headers, rows)
	}
	if err != nil {
		return File{}, err
	}

	return File{
		Name:        fmt.Sprintf("questions.%s", format.Extension()),
		ContentType: format.ContentType(),
		Data:        data,
	}, nil
}

// tabulate flattens questions into a header row plus one string row per
// question. Fixed columns come first; payload and attribute columns follow in
// sorted order, attributes under their "attr_" prefix.
func tabulate(questions []domain.Question) ([]string, [][]string) {
	payloadKeys := map[string]struct{}{}
	attrKeys := map[string]struct{}{}
	for _, question := range questions {
		for key := range question.Payload {
			if key != "options" {
				payloadKeys[key] = struct{}{}
			}
		}
		for key := range question.Attributes {
			attrKeys[key] = struct{}{}
		}
	}

	payloadColumns := sortedKeys(payloadKeys)
	attrColumns := sortedKeys(attrKeys)

	headers := []string{"code", "subject", "topic", "state", "options"}
	headers = append(headers, payloadColumns...)
	for _, key := range attrColumns {
		headers = append(headers, "attr_"+key)
	}

	rows := make([][]string, 0, len(questions))
	for _, question := range questions {
		row := make([]string, 0, len(headers))
		row = append(row,
			question.Code,
			fmt.Sprintf("%d", question.Subject),
			fmt.Sprintf("%d", question.Topic),
			string(question.State),
			renderOptions(question.Payload["options"]),
		)
		for _, key := range payloadColumns {
			row = append(row, renderCell(question.Payload[key]))
		}
		for _, key := range attrColumns {
			row = append(row, renderCell(question.Attributes[key]))
		}
		rows = append(rows, row)
	}

	return headers, rows
}

// renderOptions joins an options list with "|", the separator the upload
// parser splits on.
func renderOptions(value any) string {
	options, ok := value.([]any)
	if !ok {
		return renderCell(value)
	}
	parts := make([]string, 0, len(options))
	for _, option := range options {
		parts = append(parts, renderCell(option))
	}
	return strings.Join(parts, "|")
}

func renderCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		// JSON numbers decode as float64; keep integral values clean.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case bool:
		return fmt.Sprintf("%t", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func renderCSV(headers []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}

	return buf.Bytes(), nil
}

func renderXLSX(headers []string, rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)

	writeRow := func(index int, cells []string) error {
		cell, err := excelize.CoordinatesToCellName(1, index)
		if err != nil {
			return err
		}
		values := make([]any, len(cells))
		for i, value := range cells {
			values[i] = value
		}
		return f.SetSheetRow(sheet, cell, &values)
	}

	if err := writeRow(1, headers); err != nil {
		return nil, fmt.Errorf("failed to write xlsx header: %w", err)
	}
	for i, row := range rows {
		if err := writeRow(i+2, row); err != nil {
			return nil, fmt.Errorf("failed to write xlsx row: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
