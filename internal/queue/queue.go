package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"examscan-pipeline/internal/logger"
	"examscan-pipeline/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Queue is the durable FIFO of grade records awaiting commit. It lives in the
// local database so entries survive process restarts; an entry is removed
// only after a confirmed commit, duplicate, or rejection determination.
type Queue struct {
	db *sql.DB

	// Append and Remove are single-writer; Entries reads the last snapshot.
	mu  sync.Mutex
	log zerolog.Logger
}

func New(db *sql.DB) *Queue {
	return &Queue{
		db:  db,
		log: logger.Get(),
	}
}

func (q *Queue) Append(ctx context.Context, rec model.GradeStorageRecord) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	payload, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO offline_queue (id, payload, attempts, queued_at) VALUES (?, ?, 0, ?)`,
		id, payload, time.Now().Unix())
	if err != nil {
		return "", err
	}

	q.log.Info().
		Str("entry_id", id).
		Str("student_id", rec.StudentID).
		Str("exam_id", rec.ExamID).
		Msg("Grade queued for offline sync")

	return id, nil
}

// Entries returns all queued entries in insertion order.
func (q *Queue) Entries(ctx context.Context) ([]model.QueueEntry, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT seq, id, payload, attempts, queued_at FROM offline_queue ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.QueueEntry
	for rows.Next() {
		var entry model.QueueEntry
		var payload []byte
		var queuedAt int64
		if err := rows.Scan(&entry.Seq, &entry.ID, &payload, &entry.Attempts, &queuedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &entry.Record); err != nil {
			return nil, err
		}
		entry.QueuedAt = time.Unix(queuedAt, 0)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (q *Queue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, err := q.db.ExecContext(ctx, `DELETE FROM offline_queue WHERE id = ?`, id)
	return err
}

// MarkAttempt bumps the attempt counter after a failed commit, purely for
// observability; entries are not aged out by attempt count.
func (q *Queue) MarkAttempt(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, err := q.db.ExecContext(ctx,
		`UPDATE offline_queue SET attempts = attempts + 1 WHERE id = ?`, id)
	return err
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM offline_queue`).Scan(&n)
	return n, err
}
