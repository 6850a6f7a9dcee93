package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ImportRunStatus captures bulk run lifecycle states.
type ImportRunStatus string

const (
	ImportRunQueued     ImportRunStatus = "QUEUED"
	ImportRunProcessing ImportRunStatus = "PROCESSING"
	ImportRunFinished   ImportRunStatus = "FINISHED"
	ImportRunFailed     ImportRunStatus = "FAILED"
)

// ImportRun is the persisted record of one bulk execution.
type ImportRun struct {
	ID             string          `db:"id" json:"id"`
	SessionID      *string         `db:"session_id" json:"session_id,omitempty"`
	Kind           ImportKind      `db:"kind" json:"kind"`
	Operation      Operation       `db:"operation" json:"operation"`
	Status         ImportRunStatus `db:"status" json:"status"`
	Progress       int             `db:"progress" json:"progress"`
	Total          int             `db:"total" json:"total"`
	Success        int             `db:"success" json:"success"`
	Failed         int             `db:"failed" json:"failed"`
	Errors         RowErrors       `db:"errors" json:"errors"`
	SourceChecksum *string         `db:"source_checksum" json:"source_checksum,omitempty"`
	ErrorMessage   *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedBy      string          `db:"created_by" json:"created_by"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	StartedAt      *time.Time      `db:"started_at" json:"started_at,omitempty"`
	FinishedAt     *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
}

// Outcome returns the run counters as a BulkOutcome.
func (r *ImportRun) Outcome() BulkOutcome {
	errs := []RowError(r.Errors)
	if errs == nil {
		errs = []RowError{}
	}
	return BulkOutcome{Success: r.Success, Failed: r.Failed, Errors: errs}
}

// RowErrors stores per-row failures as JSONB.
type RowErrors []RowError

// Value marshals the errors to JSON for persistence.
func (e RowErrors) Value() (driver.Value, error) {
	if e == nil {
		e = RowErrors{}
	}
	data, err := json.Marshal([]RowError(e))
	if err != nil {
		return nil, fmt.Errorf("marshal import run errors: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the slice.
func (e *RowErrors) Scan(value interface{}) error {
	if value == nil {
		*e = RowErrors{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for RowErrors", value)
	}
	if len(data) == 0 {
		*e = RowErrors{}
		return nil
	}
	var decoded []RowError
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("unmarshal import run errors: %w", err)
	}
	*e = decoded
	return nil
}
