package domain

import (
	"time"

	"github.com/google/uuid"
)

// ImportError describes one failed row. Field names the offending column
// or the pipeline stage ("decode", "client", "persist") when the failure
// is not tied to a single column.
type ImportError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ImportBatchResult aggregates the outcome of one import invocation.
// Success is true exactly when no row failed; SuccessCount plus
// ErrorCount always equals TotalRows.
type ImportBatchResult struct {
	BatchID          string        `json:"batchId"`
	RecordType       RecordType    `json:"recordType"`
	Source           string        `json:"source"`
	TotalRows        int           `json:"totalRows"`
	SuccessCount     int           `json:"successCount"`
	ErrorCount       int           `json:"errorCount"`
	Errors           []ImportError `json:"errors"`
	CreatedRecordIDs []uuid.UUID   `json:"createdRecordIds"`
	Success          bool          `json:"success"`
}

// ImportRun is the persisted summary of one finished batch.
type ImportRun struct {
	ID          uuid.UUID     `json:"id"`
	BatchID     string        `json:"batch_id"`
	RecordType  RecordType    `json:"record_type"`
	Source      string        `json:"source"`
	FileName    string        `json:"file_name"`
	TotalRows   int           `json:"total_rows"`
	SuccessRows int           `json:"success_rows"`
	ErrorRows   int           `json:"error_rows"`
	Errors      []ImportError `json:"errors"`
	CreatedBy   uuid.UUID     `json:"created_by"`
	CreatedAt   time.Time     `json:"created_at"`
}
