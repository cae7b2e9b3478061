package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"examscan-pipeline/internal/localstore"
	"examscan-pipeline/internal/logger"
	"examscan-pipeline/internal/model"

	"github.com/rs/zerolog"
)

// RosterSource is the slice of the authoritative store a refresh needs.
type RosterSource interface {
	ListStudents(ctx context.Context, sectionID string) ([]model.StudentRecord, error)
}

// Store is the bounded-staleness roster mirror. It is a fallback only: a
// record read here must never outrank a contemporaneous authoritative read.
type Store struct {
	db     *sql.DB
	cipher *localstore.Cipher
	source RosterSource
	ttl    time.Duration

	// Structural operations (refresh, clear) are single-writer; point reads
	// and searches run unsynchronized against the last committed snapshot.
	mu  sync.Mutex
	log zerolog.Logger
}

func New(db *sql.DB, cipher *localstore.Cipher, source RosterSource, ttl time.Duration) *Store {
	return &Store{
		db:     db,
		cipher: cipher,
		source: source,
		ttl:    ttl,
		log:    logger.Get(),
	}
}

// Refresh pulls the roster (full, or section-scoped when sectionID is set)
// and replaces the mirror inside a single transaction, so a failure mid-pull
// never leaves the mirror half-written.
func (s *Store) Refresh(ctx context.Context, sectionID string) (int, error) {
	students, err := s.source.ListStudents(ctx, sectionID)
	if err != nil {
		return 0, fmt.Errorf("roster pull failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if sectionID == "" {
		_, err = tx.ExecContext(ctx, `DELETE FROM students`)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM students WHERE section = ?`, sectionID)
	}
	if err != nil {
		return 0, err
	}

	insert := `INSERT INTO students (student_id, first_name, last_name, section, is_active, payload, updated_at)
			   VALUES (?, ?, ?, ?, ?, ?, ?)
			   ON CONFLICT(student_id) DO UPDATE SET
				   first_name = excluded.first_name,
				   last_name = excluded.last_name,
				   section = excluded.section,
				   is_active = excluded.is_active,
				   payload = excluded.payload,
				   updated_at = excluded.updated_at`

	now := time.Now()
	for i := range students {
		payload, err := s.sealRecord(&students[i])
		if err != nil {
			return 0, err
		}
		_, err = tx.ExecContext(ctx, insert,
			students[i].StudentID, students[i].FirstName, students[i].LastName,
			students[i].Section, boolToInt(students[i].IsActive), payload, now.Unix())
		if err != nil {
			return 0, err
		}
	}

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`).Scan(&total); err != nil {
		return 0, err
	}

	expiresAt := now.Add(s.ttl)
	_, err = tx.ExecContext(ctx, `INSERT INTO cache_meta (id, last_sync_at, student_count, expires_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_sync_at = excluded.last_sync_at,
			student_count = excluded.student_count,
			expires_at = excluded.expires_at`,
		now.Unix(), total, expiresAt.Unix())
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	s.log.Info().
		Str("section", sectionID).
		Int("pulled", len(students)).
		Int("total", total).
		Time("expires_at", expiresAt).
		Msg("Roster mirror refreshed")

	return len(students), nil
}

// Lookup is a point read by primary key. A missing record is (nil, nil).
func (s *Store) Lookup(ctx context.Context, studentID string) (*model.StudentRecord, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM students WHERE student_id = ?`, studentID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.openRecord(payload)
}

type SearchQuery struct {
	Text       string
	SectionID  string
	ActiveOnly bool
	SortBy     string // "name" (default) or "id"
	SortDesc   bool
	Limit      int
	Offset     int
}

// Search supports substring match on name/id plus section and active filters,
// returning one page of records and the total match count.
func (s *Store) Search(ctx context.Context, q SearchQuery) ([]model.StudentRecord, int, error) {
	var conds []string
	var args []interface{}

	if q.Text != "" {
		pattern := "%" + strings.ToLower(q.Text) + "%"
		conds = append(conds, `(LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR student_id LIKE ?)`)
		args = append(args, pattern, pattern, pattern)
	}
	if q.SectionID != "" {
		conds = append(conds, `section = ?`)
		args = append(args, q.SectionID)
	}
	if q.ActiveOnly {
		conds = append(conds, `is_active = 1`)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := "last_name, first_name"
	if q.SortBy == "id" {
		order = "student_id"
	}
	if q.SortDesc {
		order = strings.ReplaceAll(order, ",", " DESC,") + " DESC"
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`SELECT payload FROM students%s ORDER BY %s LIMIT ? OFFSET ?`, where, order)
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, q.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []model.StudentRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, 0, err
		}
		rec, err := s.openRecord(payload)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, *rec)
	}
	return records, total, rows.Err()
}

// Clear wipes the mirror and its metadata.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM students`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_meta`); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Metadata(ctx context.Context) (model.CacheMetadata, error) {
	var meta model.CacheMetadata
	var lastSync, expires int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_sync_at, student_count, expires_at FROM cache_meta WHERE id = 1`).
		Scan(&lastSync, &meta.StudentCount, &expires)
	if err != nil && err != sql.ErrNoRows {
		return model.CacheMetadata{}, err
	}
	if err == nil {
		meta.LastSyncAt = time.Unix(lastSync, 0)
		meta.ExpiresAt = time.Unix(expires, 0)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(LENGTH(payload)), 0) FROM students`).Scan(&meta.SizeInBytes); err != nil {
		return model.CacheMetadata{}, err
	}

	meta.EncryptionEnabled = s.cipher != nil
	return meta, nil
}

func (s *Store) sealRecord(rec *model.StudentRecord) ([]byte, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if s.cipher == nil {
		return raw, nil
	}
	return s.cipher.Seal(raw)
}

func (s *Store) openRecord(payload []byte) (*model.StudentRecord, error) {
	raw := payload
	if s.cipher != nil {
		var err error
		raw, err = s.cipher.Open(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to unseal record: %w", err)
		}
	}
	var rec model.StudentRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
