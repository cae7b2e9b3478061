// Package eventlog records pipeline events on a best-effort basis. No
// consumer depends on delivery: the recorder's own failures are caught and
// discarded internally, and Record never returns an error.
package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"examscan-pipeline/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindSave       Kind = "save"
	KindSync       Kind = "sync"
	KindImport     Kind = "import"
	KindCache      Kind = "cache"
)

type Event struct {
	Kind      Kind      `json:"kind"`
	StudentID string    `json:"student_id,omitempty"`
	ExamID    string    `json:"exam_id,omitempty"`
	Status    string    `json:"status"`
	Source    string    `json:"source,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Recorder struct {
	rdb     *redis.Client
	list    string
	listCap int64
	log     zerolog.Logger
}

// New builds a recorder writing to the structured log. When rdb is non-nil,
// events are additionally mirrored to a capped Redis list for external
// inspection; mirror failures are swallowed like every other recorder fault.
func New(rdb *redis.Client, list string, listCap int64) *Recorder {
	return &Recorder{
		rdb:     rdb,
		list:    list,
		listCap: listCap,
		log:     logger.Get(),
	}
}

func (r *Recorder) Record(ctx context.Context, ev Event) {
	defer func() {
		// A panicking sink must not take the pipeline down with it.
		_ = recover()
	}()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	r.log.Info().
		Str("event", string(ev.Kind)).
		Str("student_id", ev.StudentID).
		Str("exam_id", ev.ExamID).
		Str("status", ev.Status).
		Str("source", ev.Source).
		Msg(ev.Message)

	if r.rdb == nil || r.list == "" {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	pipe := r.rdb.Pipeline()
	pipe.LPush(ctx, r.list, data)
	if r.listCap > 0 {
		pipe.LTrim(ctx, r.list, 0, r.listCap-1)
	}
	_, _ = pipe.Exec(ctx)
}
