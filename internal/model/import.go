package model

import "time"

type ImportRow struct {
	RowNumber int    `json:"row_number"`
	StudentID string `json:"student_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Section   string `json:"section,omitempty"`
}

type ImportIssueSeverity string

const (
	ImportIssueError   ImportIssueSeverity = "error"
	ImportIssueWarning ImportIssueSeverity = "warning"
)

type ImportRowIssue struct {
	RowNumber int                 `json:"row_number"`
	StudentID string              `json:"student_id,omitempty"`
	Field     string              `json:"field,omitempty"`
	Severity  ImportIssueSeverity `json:"severity"`
	Message   string              `json:"message"`
}

type ImportResult struct {
	SessionID      string           `json:"session_id"`
	FileName       string           `json:"file_name"`
	TotalRows      int              `json:"total_rows"`
	SuccessCount   int              `json:"success_count"`
	ErrorCount     int              `json:"error_count"`
	WarningCount   int              `json:"warning_count"`
	DuplicateCount int              `json:"duplicate_count"`
	Issues         []ImportRowIssue `json:"issues,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     time.Time        `json:"finished_at"`
}

type ImportPhase string

const (
	ImportPhaseParse    ImportPhase = "parse"
	ImportPhaseValidate ImportPhase = "validate"
	ImportPhaseDedupe   ImportPhase = "dedupe"
	ImportPhaseInsert   ImportPhase = "insert"
	ImportPhaseDone     ImportPhase = "done"
)

// ImportProgress percentages increase monotonically across all phases, not
// just the insert phase, so a caller sees continuous movement.
type ImportProgress struct {
	Phase   ImportPhase `json:"phase"`
	Percent int         `json:"percent"`
	Message string      `json:"message,omitempty"`
}
