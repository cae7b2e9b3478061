package model

import "time"

// QueueEntry is a grade record awaiting durable commit. Entries survive
// process restarts and are drained in insertion order.
type QueueEntry struct {
	ID       string             `json:"id"`
	Seq      int64              `json:"seq"`
	Record   GradeStorageRecord `json:"record"`
	Attempts int                `json:"attempts"`
	QueuedAt time.Time          `json:"queued_at"`
}
