package gateway

import (
	"context"
	"fmt"

	"examscan-pipeline/internal/eventlog"
	"examscan-pipeline/internal/logger"
	"examscan-pipeline/internal/model"
	"examscan-pipeline/internal/session"
	pkgerr "examscan-pipeline/pkg/errors"

	"github.com/rs/zerolog"
)

// GradeStore is the authoritative-store slice a save needs.
type GradeStore interface {
	GetExam(ctx context.Context, examID string) (*model.Exam, error)
	FindGrade(ctx context.Context, studentID, examID string) (*model.GradeStorageRecord, error)
	InsertGrade(ctx context.Context, rec model.GradeStorageRecord) (string, error)
}

// Validator re-checks the scanned identifier; the gateway reuses the
// resolver rather than duplicating its logic.
type Validator interface {
	Validate(ctx context.Context, studentID, sectionID string) model.ValidationResult
}

// OfflineQueue receives records whose commit failed for a connectivity-class
// reason.
type OfflineQueue interface {
	Append(ctx context.Context, rec model.GradeStorageRecord) (string, error)
}

// Gateway turns a graded result into a durable record at most once per
// (studentID, examID) pair. Correctness under concurrency comes from
// re-running the duplicate check at commit time, not from in-process locks:
// a validation computed seconds ago can be stale by the time we write.
type Gateway struct {
	store     GradeStore
	validator Validator
	queue     OfflineQueue
	sessions  session.Provider
	events    *eventlog.Recorder
	log       zerolog.Logger
}

func New(store GradeStore, validator Validator, queue OfflineQueue, sessions session.Provider, events *eventlog.Recorder) *Gateway {
	return &Gateway{
		store:     store,
		validator: validator,
		queue:     queue,
		sessions:  sessions,
		events:    events,
		log:       logger.Get(),
	}
}

// Save commits graded under the natural-key invariant. Outcomes: saved,
// duplicate (record already durable), pending (queued for later sync), or
// error. Preconditions run in order and each short-circuits.
func (g *Gateway) Save(ctx context.Context, graded model.GradedResult, examID string) model.SaveOutcome {
	operator := g.sessions.Current()
	if operator == "" {
		return g.finish(ctx, graded.StudentID, examID, model.SaveOutcome{
			Status:  model.SaveStatusError,
			Message: "no active session",
		})
	}

	validation := g.validator.Validate(ctx, graded.StudentID, "")
	if !validation.IsValid() {
		return g.finish(ctx, graded.StudentID, examID, model.SaveOutcome{
			Status:  model.SaveStatusError,
			Message: validation.Message,
		})
	}

	if outcome, blocked := g.checkExamActive(ctx, graded.StudentID, examID); blocked {
		return g.finish(ctx, graded.StudentID, examID, outcome)
	}

	// Duplicate check is fail-closed: without a completed probe we never
	// commit, whatever earlier checks concluded.
	existing, err := g.store.FindGrade(ctx, graded.StudentID, examID)
	if err != nil {
		return g.finish(ctx, graded.StudentID, examID, model.SaveOutcome{
			Status:  model.SaveStatusError,
			Message: fmt.Sprintf("duplicate check failed: %v", err),
		})
	}
	if existing != nil {
		return g.finish(ctx, graded.StudentID, examID, model.SaveOutcome{
			Status:   model.SaveStatusDuplicate,
			RecordID: existing.ID,
			Message:  "a grade for this student and exam already exists",
		})
	}

	rec := model.NewGradeStorageRecord(graded, operator)
	recordID, err := g.store.InsertGrade(ctx, rec)
	if err != nil {
		return g.finish(ctx, graded.StudentID, examID, g.classifyCommitFailure(ctx, rec, err))
	}

	return g.finish(ctx, graded.StudentID, examID, model.SaveOutcome{
		Status:   model.SaveStatusSaved,
		RecordID: recordID,
		Message:  "grade saved",
	})
}

// checkExamActive is fail-open: a transient failure of this availability
// check does not block the save, while a definite "not found" or inactive
// lifecycle state does.
func (g *Gateway) checkExamActive(ctx context.Context, studentID, examID string) (model.SaveOutcome, bool) {
	exam, err := g.store.GetExam(ctx, examID)
	if err != nil {
		if pkgerr.IsNotFound(err) {
			return model.SaveOutcome{
				Status:  model.SaveStatusError,
				Message: "exam not found",
			}, true
		}
		g.log.Warn().Err(err).
			Str("student_id", studentID).
			Str("exam_id", examID).
			Msg("Exam lookup failed, proceeding without active check")
		return model.SaveOutcome{}, false
	}
	if !exam.IsAcceptingScans() {
		return model.SaveOutcome{
			Status:  model.SaveStatusError,
			Message: fmt.Sprintf("exam is %s, not accepting scans", exam.Status),
		}, true
	}
	return model.SaveOutcome{}, false
}

func (g *Gateway) classifyCommitFailure(ctx context.Context, rec model.GradeStorageRecord, err error) model.SaveOutcome {
	switch {
	case pkgerr.IsDuplicate(err):
		// The store's unique guard fired between our probe and the write.
		return model.SaveOutcome{
			Status:  model.SaveStatusDuplicate,
			Message: "a grade for this student and exam already exists",
		}
	case pkgerr.IsTransient(err):
		if _, qErr := g.queue.Append(ctx, rec); qErr != nil {
			return model.SaveOutcome{
				Status:  model.SaveStatusError,
				Message: fmt.Sprintf("commit failed and record could not be queued: %v", qErr),
			}
		}
		return model.SaveOutcome{
			Status:  model.SaveStatusPending,
			Message: "store unreachable, grade queued for sync",
		}
	default:
		// Definite rejections are never queued: a record the store will
		// always refuse only wastes a retry slot.
		return model.SaveOutcome{
			Status:  model.SaveStatusError,
			Message: fmt.Sprintf("commit rejected: %v", err),
		}
	}
}

func (g *Gateway) finish(ctx context.Context, studentID, examID string, outcome model.SaveOutcome) model.SaveOutcome {
	g.events.Record(ctx, eventlog.Event{
		Kind:      eventlog.KindSave,
		StudentID: studentID,
		ExamID:    examID,
		Status:    string(outcome.Status),
		Message:   outcome.Message,
	})
	return outcome
}
