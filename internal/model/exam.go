package model

import "time"

type ExamStatus string

const (
	ExamStatusDraft    ExamStatus = "DRAFT"
	ExamStatusActive   ExamStatus = "ACTIVE"
	ExamStatusClosed   ExamStatus = "CLOSED"
	ExamStatusArchived ExamStatus = "ARCHIVED"
)

type Exam struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Section     string     `json:"section,omitempty"`
	TotalPoints float64    `json:"total_points"`
	Status      ExamStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (e *Exam) IsAcceptingScans() bool {
	return e.Status == ExamStatusActive
}
