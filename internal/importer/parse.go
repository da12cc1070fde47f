package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned when an uploaded file is not supported.
var ErrUnsupportedFormat = errors.New("unsupported file format")

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// Recognized columns. "options" cells are split on "|"; columns prefixed
// "attr_" land in attributes; any other column is carried into the payload
// verbatim.
const (
	columnCode    = "code"
	columnSubject = "subject"
	columnTopic   = "topic"
	columnState   = "state"
	columnOptions = "options"
	attrPrefix    = "attr_"
)

// ParseFile converts an uploaded CSV or XLSX file into import records, one
// per data row. Cell coercion failures do not abort parsing; they are
// attached to the affected record and surface as validation errors for that
// row.
func ParseFile(fileName string, payload []byte) ([]RecordInput, string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	var (
		rows [][]string
		err  error
	)
	switch ext {
	case ".csv":
		rows, err = parseCSV(payload)
	case ".xlsx":
		rows, err = parseExcel(payload)
	default:
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, "", err
	}

	records, err := rowsToRecords(rows)
	if err != nil {
		return nil, "", err
	}
	return records, strings.TrimPrefix(ext, "."), nil
}

func parseCSV(payload []byte) ([][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	rows, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return rows, nil
}

func parseExcel(payload []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return rows, nil
}

func rowsToRecords(rows [][]string) ([]RecordInput, error) {
	var headerRow []string
	var dataRows [][]string
	for _, row := range rows {
		if len(cleanRow(row)) == 0 {
			continue
		}
		if headerRow == nil {
			headerRow = row
			continue
		}
		dataRows = append(dataRows, row)
	}
	if headerRow == nil {
		return nil, errors.New("no header row detected")
	}

	headers := sanitizeHeaders(headerRow)
	records := make([]RecordInput, 0, len(dataRows))
	for _, row := range dataRows {
		row = padRow(row, len(headers))
		records = append(records, rowToRecord(headers, row))
	}

	return records, nil
}

func rowToRecord(headers []string, row []string) RecordInput {
	record := RecordInput{
		Payload:    map[string]any{},
		Attributes: map[string]any{},
	}

	for idx, header := range headers {
		value := strings.TrimSpace(row[idx])
		if value == "" {
			continue
		}

		switch header {
		case columnCode:
			record.Code = value
		case columnState:
			record.State = value
		case columnSubject:
			subject, err := strconv.Atoi(value)
			if err != nil {
				record.Problems = append(record.Problems, fmt.Sprintf("unable to coerce subject %q to integer", value))
				continue
			}
			record.Subject = subject
		case columnTopic:
			topic, err := strconv.Atoi(value)
			if err != nil {
				record.Problems = append(record.Problems, fmt.Sprintf("unable to coerce topic %q to integer", value))
				continue
			}
			record.Topic = topic
		case columnOptions:
			parts := strings.Split(value, "|")
			options := make([]any, 0, len(parts))
			for _, part := range parts {
				options = append(options, strings.TrimSpace(part))
			}
			record.Payload[columnOptions] = options
		default:
			if strings.HasPrefix(header, attrPrefix) {
				record.Attributes[strings.TrimPrefix(header, attrPrefix)] = value
			} else {
				record.Payload[header] = value
			}
		}
	}

	return record
}

func cleanRow(row []string) []string {
	var cleaned []string
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			cleaned = append(cleaned, cell)
		}
	}
	return cleaned
}

func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	for idx, value := range raw {
		name := strings.ToLower(strings.TrimSpace(value))
		name = strings.ReplaceAll(name, " ", "_")
		name = strings.ReplaceAll(name, ".", "_")
		name = strings.ReplaceAll(name, "-", "_")
		name = strings.Trim(name, "_")
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1

		headers[idx] = name
	}

	return headers
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}
