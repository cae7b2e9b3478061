package remote

import (
	"context"

	"examscan-pipeline/internal/model"
)

// Store is the authoritative roster/grade store: a remote document-style API
// queried by equality and inclusion predicates. It is ground truth; the local
// mirror is only a fallback when it cannot be reached.
//
// Lookup failures are classified through pkg/errors: ErrNotFound for a clean
// miss on point gets, TransientError for connectivity-class faults,
// RejectedError for definite rejections, ErrDuplicateRecord when a write hits
// the store's unique guard.
type Store interface {
	GetStudent(ctx context.Context, studentID string) (*model.StudentRecord, error)
	ListStudents(ctx context.Context, sectionID string) ([]model.StudentRecord, error)

	// ExistingStudentIDs answers a batched existence query. The backend caps
	// inclusion predicates, so callers chunk ids before calling.
	ExistingStudentIDs(ctx context.Context, ids []string) ([]string, error)
	InsertStudents(ctx context.Context, students []model.StudentRecord) error
	DeleteStudents(ctx context.Context, ids []string) error

	GetExam(ctx context.Context, examID string) (*model.Exam, error)

	// FindGrade queries by the (studentID, examID) natural key. A nil record
	// with a nil error means no durable record exists for the pair.
	FindGrade(ctx context.Context, studentID, examID string) (*model.GradeStorageRecord, error)
	InsertGrade(ctx context.Context, rec model.GradeStorageRecord) (string, error)
}
