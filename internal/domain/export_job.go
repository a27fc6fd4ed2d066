package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExportJobStatus tracks the lifecycle of an asynchronous record export.
type ExportJobStatus string

const (
	ExportJobStatusPending   ExportJobStatus = "PENDING"
	ExportJobStatusRunning   ExportJobStatus = "RUNNING"
	ExportJobStatusCompleted ExportJobStatus = "COMPLETED"
	ExportJobStatusFailed    ExportJobStatus = "FAILED"
	ExportJobStatusCancelled ExportJobStatus = "CANCELLED"
)

// ExportJob is one queued CSV snapshot of a record type.
type ExportJob struct {
	ID            uuid.UUID       `json:"id"`
	RecordType    RecordType      `json:"record_type"`
	Status        ExportJobStatus `json:"status"`
	RowsRequested int             `json:"rows_requested"`
	RowsExported  int             `json:"rows_exported"`
	BytesWritten  int64           `json:"bytes_written"`
	FilePath      *string         `json:"file_path,omitempty"`
	FileMimeType  *string         `json:"file_mime_type,omitempty"`
	FileByteSize  *int64          `json:"file_byte_size,omitempty"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
	RequestedBy   uuid.UUID       `json:"requested_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
