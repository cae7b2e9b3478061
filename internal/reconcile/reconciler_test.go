package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"examscan-pipeline/internal/eventlog"
	"examscan-pipeline/internal/model"
	pkgerr "examscan-pipeline/pkg/errors"
)

type fakeStore struct {
	findCalls   int
	existing    map[string]*model.GradeStorageRecord
	findErrs    map[string]error
	insertErrs  map[string]error
	insertCalls []string
}

func pairKey(studentID, examID string) string {
	return studentID + "/" + examID
}

func (f *fakeStore) FindGrade(ctx context.Context, studentID, examID string) (*model.GradeStorageRecord, error) {
	f.findCalls++
	if err := f.findErrs[pairKey(studentID, examID)]; err != nil {
		return nil, err
	}
	return f.existing[pairKey(studentID, examID)], nil
}

func (f *fakeStore) InsertGrade(ctx context.Context, rec model.GradeStorageRecord) (string, error) {
	key := pairKey(rec.StudentID, rec.ExamID)
	f.insertCalls = append(f.insertCalls, key)
	if err := f.insertErrs[key]; err != nil {
		return "", err
	}
	if f.existing == nil {
		f.existing = make(map[string]*model.GradeStorageRecord)
	}
	stored := rec
	stored.ID = "rec-" + rec.StudentID
	f.existing[key] = &stored
	return stored.ID, nil
}

type fakeQueue struct {
	entries  []model.QueueEntry
	attempts map[string]int
}

func newFakeQueue(records ...model.GradeStorageRecord) *fakeQueue {
	q := &fakeQueue{attempts: make(map[string]int)}
	for i, rec := range records {
		q.entries = append(q.entries, model.QueueEntry{
			ID:       rec.StudentID + "-entry",
			Seq:      int64(i + 1),
			Record:   rec,
			QueuedAt: time.Now(),
		})
	}
	return q
}

func (f *fakeQueue) Entries(ctx context.Context) ([]model.QueueEntry, error) {
	out := make([]model.QueueEntry, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

func (f *fakeQueue) Remove(ctx context.Context, id string) error {
	for i, e := range f.entries {
		if e.ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeQueue) MarkAttempt(ctx context.Context, id string) error {
	f.attempts[id]++
	return nil
}

func queuedGrade(studentID, examID string) model.GradeStorageRecord {
	return model.GradeStorageRecord{
		StudentID: studentID,
		ExamID:    examID,
		Score:     40,
		SavedBy:   "op-1",
	}
}

func newTestReconciler(store *fakeStore, q *fakeQueue) *Reconciler {
	return New(store, q, eventlog.New(nil, "", 0))
}

func TestDrainQueue(t *testing.T) {
	t.Run("empty queue is a no-op", func(t *testing.T) {
		store := &fakeStore{}
		q := newFakeQueue()
		r := newTestReconciler(store, q)

		if err := r.DrainQueue(context.Background()); err != nil {
			t.Fatalf("DrainQueue: %v", err)
		}
		if store.findCalls != 0 || len(store.insertCalls) != 0 {
			t.Error("empty drain touched the store")
		}
	})

	t.Run("drains entries in insertion order", func(t *testing.T) {
		store := &fakeStore{}
		q := newFakeQueue(
			queuedGrade("11111111", "exam-1"),
			queuedGrade("22222222", "exam-1"),
			queuedGrade("33333333", "exam-1"),
		)
		r := newTestReconciler(store, q)

		if err := r.DrainQueue(context.Background()); err != nil {
			t.Fatalf("DrainQueue: %v", err)
		}

		want := []string{"11111111/exam-1", "22222222/exam-1", "33333333/exam-1"}
		if len(store.insertCalls) != len(want) {
			t.Fatalf("insert calls = %v", store.insertCalls)
		}
		for i, key := range want {
			if store.insertCalls[i] != key {
				t.Errorf("insert order[%d] = %s, want %s", i, store.insertCalls[i], key)
			}
		}
		if len(q.entries) != 0 {
			t.Errorf("queue holds %d entries after full drain, want 0", len(q.entries))
		}
	})

	t.Run("entry that became duplicate is dropped without a write", func(t *testing.T) {
		store := &fakeStore{
			existing: map[string]*model.GradeStorageRecord{
				"11111111/exam-1": {ID: "rec-other-device", StudentID: "11111111", ExamID: "exam-1"},
			},
		}
		q := newFakeQueue(queuedGrade("11111111", "exam-1"))
		r := newTestReconciler(store, q)

		if err := r.DrainQueue(context.Background()); err != nil {
			t.Fatalf("DrainQueue: %v", err)
		}
		if len(store.insertCalls) != 0 {
			t.Error("duplicate entry was written anyway")
		}
		if len(q.entries) != 0 {
			t.Error("duplicate entry left in queue")
		}
	})

	t.Run("transient failure keeps entry and does not block later entries", func(t *testing.T) {
		store := &fakeStore{
			insertErrs: map[string]error{
				"11111111/exam-1": pkgerr.NewTransientError(errors.New("unavailable"), "store unavailable"),
			},
		}
		q := newFakeQueue(
			queuedGrade("11111111", "exam-1"),
			queuedGrade("22222222", "exam-1"),
		)
		r := newTestReconciler(store, q)

		if err := r.DrainQueue(context.Background()); err != nil {
			t.Fatalf("DrainQueue: %v", err)
		}
		if len(q.entries) != 1 || q.entries[0].Record.StudentID != "11111111" {
			t.Fatalf("queue after drain = %+v, want only the failed entry", q.entries)
		}
		if q.attempts["11111111-entry"] != 1 {
			t.Errorf("attempts = %d, want 1", q.attempts["11111111-entry"])
		}
		if store.existing["22222222/exam-1"] == nil {
			t.Error("later entry was not committed")
		}
	})

	t.Run("transient probe failure keeps entry", func(t *testing.T) {
		store := &fakeStore{
			findErrs: map[string]error{
				"11111111/exam-1": pkgerr.NewTransientError(errors.New("timeout"), "store unavailable"),
			},
		}
		q := newFakeQueue(queuedGrade("11111111", "exam-1"))
		r := newTestReconciler(store, q)

		if err := r.DrainQueue(context.Background()); err != nil {
			t.Fatalf("DrainQueue: %v", err)
		}
		if len(store.insertCalls) != 0 {
			t.Error("committed without a completed duplicate check")
		}
		if len(q.entries) != 1 {
			t.Error("entry dropped on an indeterminate probe")
		}
	})

	t.Run("rejected entry is dropped", func(t *testing.T) {
		store := &fakeStore{
			insertErrs: map[string]error{
				"11111111/exam-1": pkgerr.NewRejectedError(errors.New("forbidden"), "permission denied"),
			},
		}
		q := newFakeQueue(queuedGrade("11111111", "exam-1"))
		r := newTestReconciler(store, q)

		if err := r.DrainQueue(context.Background()); err != nil {
			t.Fatalf("DrainQueue: %v", err)
		}
		if len(q.entries) != 0 {
			t.Error("rejected entry left in queue; rejections are not retried")
		}
	})

	t.Run("repeated drains are idempotent", func(t *testing.T) {
		store := &fakeStore{}
		q := newFakeQueue(queuedGrade("11111111", "exam-1"))
		r := newTestReconciler(store, q)

		for i := 0; i < 3; i++ {
			if err := r.DrainQueue(context.Background()); err != nil {
				t.Fatalf("DrainQueue pass %d: %v", i+1, err)
			}
		}
		if len(store.insertCalls) != 1 {
			t.Errorf("insert calls = %d across repeated drains, want 1", len(store.insertCalls))
		}
	})
}
