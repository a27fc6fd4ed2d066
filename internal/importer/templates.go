package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/vetfieldhq/vetfield/internal/domain"
)

// TemplateCSV renders the upload template for one record type: the
// primary header spelling of every field in table order, plus one example
// data row. Operators download this to learn the expected column names;
// the file re-imports cleanly as-is.
func TemplateCSV(table AliasTable) ([]byte, error) {
	headers := make([]string, 0, len(table.Fields))
	example := make([]string, 0, len(table.Fields))
	for _, field := range table.Fields {
		header := field.Canonical
		if len(field.Aliases) > 0 {
			header = field.Aliases[0]
		}
		headers = append(headers, header)
		example = append(example, field.Example)
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write template header: %w", err)
	}
	if err := writer.Write(example); err != nil {
		return nil, fmt.Errorf("failed to write template example row: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush template: %w", err)
	}
	return buf.Bytes(), nil
}

// TemplateFileName returns the download name for a record type's template.
func TemplateFileName(recordType domain.RecordType) string {
	return strings.ToLower(recordType.TableType()) + "_import_template.csv"
}
