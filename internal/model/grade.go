package model

import "time"

// GradedResult is produced once per scan by the grading step and consumed
// exactly once by the persistence gateway.
type GradedResult struct {
	StudentID       string    `json:"student_id"`
	ExamID          string    `json:"exam_id"`
	Score           float64   `json:"score"`
	TotalPoints     float64   `json:"total_points"`
	Percentage      float64   `json:"percentage"`
	CorrectAnswers  int       `json:"correct_answers"`
	TotalQuestions  int       `json:"total_questions"`
	GradeEquivalent string    `json:"grade_equivalent"`
	DateScanned     time.Time `json:"date_scanned"`
}

// GradeStorageRecord is the durable form of a GradedResult. At most one may
// ever exist per (student_id, exam_id) pair; the authoritative store enforces
// that pair as a unique key and every write path re-checks it first.
type GradeStorageRecord struct {
	ID              string    `json:"id,omitempty"`
	StudentID       string    `json:"student_id"`
	ExamID          string    `json:"exam_id"`
	Score           float64   `json:"score"`
	TotalPoints     float64   `json:"total_points"`
	Percentage      float64   `json:"percentage"`
	CorrectAnswers  int       `json:"correct_answers"`
	TotalQuestions  int       `json:"total_questions"`
	GradeEquivalent string    `json:"grade_equivalent"`
	DateScanned     time.Time `json:"date_scanned"`
	SavedBy         string    `json:"saved_by"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
}

func NewGradeStorageRecord(g GradedResult, savedBy string) GradeStorageRecord {
	return GradeStorageRecord{
		StudentID:       g.StudentID,
		ExamID:          g.ExamID,
		Score:           g.Score,
		TotalPoints:     g.TotalPoints,
		Percentage:      g.Percentage,
		CorrectAnswers:  g.CorrectAnswers,
		TotalQuestions:  g.TotalQuestions,
		GradeEquivalent: g.GradeEquivalent,
		DateScanned:     g.DateScanned,
		SavedBy:         savedBy,
	}
}

type SaveStatus string

const (
	SaveStatusSaved     SaveStatus = "saved"
	SaveStatusDuplicate SaveStatus = "duplicate"
	SaveStatusPending   SaveStatus = "pending"
	SaveStatusError     SaveStatus = "error"
)

type SaveOutcome struct {
	Status   SaveStatus `json:"status"`
	RecordID string     `json:"record_id,omitempty"`
	Message  string     `json:"message,omitempty"`
}
