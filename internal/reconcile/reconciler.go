package reconcile

import (
	"context"
	"sync/atomic"

	"examscan-pipeline/internal/eventlog"
	"examscan-pipeline/internal/logger"
	"examscan-pipeline/internal/model"
	pkgerr "examscan-pipeline/pkg/errors"

	"github.com/rs/zerolog"
)

// GradeStore is the authoritative-store slice a drain pass needs.
type GradeStore interface {
	FindGrade(ctx context.Context, studentID, examID string) (*model.GradeStorageRecord, error)
	InsertGrade(ctx context.Context, rec model.GradeStorageRecord) (string, error)
}

type Queue interface {
	Entries(ctx context.Context) ([]model.QueueEntry, error)
	Remove(ctx context.Context, id string) error
	MarkAttempt(ctx context.Context, id string) error
}

// Reconciler drains the offline queue back into the authoritative store.
// Draining is idempotent and safe to call repeatedly; overlapping calls
// collapse into one pass.
type Reconciler struct {
	store    GradeStore
	queue    Queue
	events   *eventlog.Recorder
	draining atomic.Bool
	log      zerolog.Logger
}

func New(store GradeStore, queue Queue, events *eventlog.Recorder) *Reconciler {
	return &Reconciler{
		store:  store,
		queue:  queue,
		events: events,
		log:    logger.Get(),
	}
}

// DrainQueue walks the queue in insertion order, re-deriving the duplicate
// precondition before every commit. An entry is removed only on a confirmed
// commit, confirmed duplicate, or confirmed rejection; a failed entry never
// blocks the ones behind it.
func (r *Reconciler) DrainQueue(ctx context.Context) error {
	if !r.draining.CompareAndSwap(false, true) {
		r.log.Debug().Msg("Drain already in progress, skipping")
		return nil
	}
	defer r.draining.Store(false)

	entries, err := r.queue.Entries(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	r.log.Info().Int("pending", len(entries)).Msg("Draining offline queue")

	for i := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.drainEntry(ctx, &entries[i])
	}
	return nil
}

func (r *Reconciler) drainEntry(ctx context.Context, entry *model.QueueEntry) {
	rec := entry.Record
	log := r.log.With().
		Str("entry_id", entry.ID).
		Str("student_id", rec.StudentID).
		Str("exam_id", rec.ExamID).
		Logger()

	// State may have changed since queuing: another device may have synced
	// the same scan. The probe must complete before any write; a transient
	// probe failure leaves the entry for the next pass.
	existing, err := r.store.FindGrade(ctx, rec.StudentID, rec.ExamID)
	if err != nil {
		log.Warn().Err(err).Msg("Duplicate check unavailable, keeping entry")
		_ = r.queue.MarkAttempt(ctx, entry.ID)
		return
	}
	if existing != nil {
		log.Info().Str("record_id", existing.ID).Msg("Queued grade is now a duplicate, dropping")
		if err := r.queue.Remove(ctx, entry.ID); err != nil {
			log.Error().Err(err).Msg("Failed to remove duplicate entry")
			return
		}
		r.record(ctx, rec, "duplicate", "queued grade already durable, dropped")
		return
	}

	recordID, err := r.store.InsertGrade(ctx, rec)
	switch {
	case err == nil:
		if err := r.queue.Remove(ctx, entry.ID); err != nil {
			// The commit is durable; next pass re-probes, finds the
			// duplicate, and removes the entry then.
			log.Error().Err(err).Msg("Committed but failed to remove entry")
			return
		}
		log.Info().Str("record_id", recordID).Msg("Queued grade committed")
		r.record(ctx, rec, "synced", "queued grade committed")
	case pkgerr.IsDuplicate(err):
		log.Info().Msg("Store reported duplicate on commit, dropping entry")
		if r.queue.Remove(ctx, entry.ID) == nil {
			r.record(ctx, rec, "duplicate", "store unique guard fired, dropped")
		}
	case pkgerr.IsTransient(err):
		log.Warn().Err(err).Int("attempts", entry.Attempts+1).Msg("Commit still failing, keeping entry")
		_ = r.queue.MarkAttempt(ctx, entry.ID)
	default:
		// Rejections are not retried indefinitely; the loss is logged.
		log.Error().Err(err).Msg("Queued grade rejected by store, dropping")
		if r.queue.Remove(ctx, entry.ID) == nil {
			r.record(ctx, rec, "rejected", err.Error())
		}
	}
}

func (r *Reconciler) record(ctx context.Context, rec model.GradeStorageRecord, status, message string) {
	r.events.Record(ctx, eventlog.Event{
		Kind:      eventlog.KindSync,
		StudentID: rec.StudentID,
		ExamID:    rec.ExamID,
		Status:    status,
		Message:   message,
	})
}
