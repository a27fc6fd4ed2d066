package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// RawRow is one unprocessed entry from an upload or webhook payload,
// keyed by the original header text. Index is 1-based within the batch.
type RawRow struct {
	Index  int
	Values map[string]string
}

// Decode turns uploaded file bytes into raw rows. The extension of
// fileName selects the format: .csv or .xlsx (first sheet only). The
// first non-empty line is the header row; subsequent non-empty lines
// become rows indexed from 1 in input order.
func Decode(fileName string, payload []byte) ([]RawRow, error) {
	if len(payload) == 0 {
		return nil, errors.New("file is empty")
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return decodeCSV(payload)
	case ".xlsx":
		return decodeExcel(payload)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func decodeCSV(payload []byte) ([]RawRow, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	return tableToRows(records)
}

func decodeExcel(payload []byte) ([]RawRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	return tableToRows(records)
}

// tableToRows picks the first non-empty line as headers and zips every
// following non-empty line into a raw row. Short rows are padded, long
// rows truncated to the header width.
func tableToRows(records [][]string) ([]RawRow, error) {
	var headers []string
	var dataRows [][]string

	for _, record := range records {
		if isEmptyRow(record) {
			continue
		}
		if headers == nil {
			headers = make([]string, len(record))
			for i, cell := range record {
				headers[i] = strings.TrimSpace(cell)
			}
			continue
		}
		dataRows = append(dataRows, padRow(record, len(headers)))
	}

	if headers == nil {
		return nil, errors.New("no header row detected")
	}

	rows := make([]RawRow, 0, len(dataRows))
	for i, record := range dataRows {
		values := make(map[string]string, len(headers))
		for col, header := range headers {
			if header == "" {
				continue
			}
			if existing, ok := values[header]; ok && strings.TrimSpace(existing) != "" {
				continue
			}
			values[header] = record[col]
		}
		rows = append(rows, RawRow{Index: i + 1, Values: values})
	}

	return rows, nil
}

// RowsFromJSON converts pre-parsed webhook payload entries into raw rows
// without reinterpreting them; values are only stringified. Indexing
// starts at 1 in payload order.
func RowsFromJSON(entries []map[string]any) []RawRow {
	rows := make([]RawRow, 0, len(entries))
	for i, entry := range entries {
		values := make(map[string]string, len(entry))
		for key, value := range entry {
			values[strings.TrimSpace(key)] = stringifyCell(value)
		}
		rows = append(rows, RawRow{Index: i + 1, Values: values})
	}
	return rows
}

func stringifyCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
