package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"examscan-pipeline/internal/config"
	"examscan-pipeline/internal/eventlog"
	"examscan-pipeline/internal/logger"
	"examscan-pipeline/internal/model"
	pkgerr "examscan-pipeline/pkg/errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Progress percentages reserved per phase. Each phase only ever moves the
// reported percentage forward, so the caller sees continuous motion across
// parse, validate, dedupe, and insert rather than a bar that jumps at the end.
const (
	progressParsed    = 15
	progressValidated = 30
	progressDeduped   = 45
	progressInserted  = 95
	progressDone      = 100
)

// StudentStore is the authoritative-store slice an import needs.
type StudentStore interface {
	ExistingStudentIDs(ctx context.Context, ids []string) ([]string, error)
	InsertStudents(ctx context.Context, students []model.StudentRecord) error
	DeleteStudents(ctx context.Context, ids []string) error
}

// CacheRefresher resyncs the roster mirror after a completed import.
type CacheRefresher interface {
	Refresh(ctx context.Context, sectionID string) (int, error)
}

type FileMeta struct {
	FileName    string
	ContentType string
}

type Importer struct {
	store     StudentStore
	cache     CacheRefresher
	events    *eventlog.Recorder
	cfg       config.ImportConfig
	parser    *Parser
	validator *RowValidator
	log       zerolog.Logger
}

func New(store StudentStore, cache CacheRefresher, events *eventlog.Recorder, cfg config.ImportConfig) *Importer {
	return &Importer{
		store:     store,
		cache:     cache,
		events:    events,
		cfg:       cfg,
		parser:    NewParser(),
		validator: NewRowValidator(),
		log:       logger.Get(),
	}
}

// ProcessImport runs the staged pipeline: file gate, parse, per-row
// validation, duplicate detection (intra-file and cross-store), batched
// insert, best-effort cache resync. A fatal fault after insertion has begun
// rolls back this session's committed rows before surfacing the error.
func (im *Importer) ProcessImport(ctx context.Context, data []byte, meta FileMeta, onProgress func(model.ImportProgress)) (*model.ImportResult, error) {
	result := &model.ImportResult{
		SessionID: uuid.NewString(),
		FileName:  meta.FileName,
		StartedAt: time.Now(),
	}

	log := im.log.With().Str("session_id", result.SessionID).Str("file", meta.FileName).Logger()
	log.Info().Int("size_bytes", len(data)).Msg("Import session started")
	im.recordSession(ctx, result.SessionID, "started", meta.FileName)

	progress := newProgressTracker(onProgress)

	// File-level gate: reject before parsing anything.
	if err := im.checkFile(data, meta); err != nil {
		result.Issues = append(result.Issues, model.ImportRowIssue{
			RowNumber: 0,
			Severity:  model.ImportIssueError,
			Message:   err.Error(),
		})
		result.ErrorCount = 1
		result.FinishedAt = time.Now()
		im.recordSession(ctx, result.SessionID, "rejected", err.Error())
		return result, nil
	}

	rows, err := im.parser.Parse(data, meta.FileName)
	if err != nil {
		result.Issues = append(result.Issues, model.ImportRowIssue{
			RowNumber: 0,
			Severity:  model.ImportIssueError,
			Message:   err.Error(),
		})
		result.ErrorCount = 1
		result.FinishedAt = time.Now()
		im.recordSession(ctx, result.SessionID, "rejected", err.Error())
		return result, nil
	}
	result.TotalRows = len(rows)
	progress.report(model.ImportPhaseParse, progressParsed, fmt.Sprintf("%d rows parsed", len(rows)))

	eligible := im.validateRows(rows, result)
	eligible = im.dedupeWithinFile(eligible, result)
	progress.report(model.ImportPhaseValidate, progressValidated, "rows validated")

	eligible, err = im.dedupeAgainstStore(ctx, eligible, result)
	if err != nil {
		result.FinishedAt = time.Now()
		im.recordSession(ctx, result.SessionID, "failed", err.Error())
		return result, fmt.Errorf("duplicate detection failed: %w", err)
	}
	progress.report(model.ImportPhaseDedupe, progressDeduped, "duplicates resolved")

	if err := im.insertBatches(ctx, eligible, result, progress); err != nil {
		result.FinishedAt = time.Now()
		im.recordSession(ctx, result.SessionID, "failed", err.Error())
		return result, err
	}

	// Resync is best-effort: its failure never changes the import outcome.
	if im.cache != nil && result.SuccessCount > 0 {
		if _, err := im.cache.Refresh(ctx, ""); err != nil {
			log.Warn().Err(err).Msg("Post-import cache resync failed")
		}
	}

	progress.report(model.ImportPhaseDone, progressDone, "import complete")
	result.FinishedAt = time.Now()

	log.Info().
		Int("total", result.TotalRows).
		Int("success", result.SuccessCount).
		Int("errors", result.ErrorCount).
		Int("warnings", result.WarningCount).
		Int("duplicates", result.DuplicateCount).
		Msg("Import session completed")
	im.recordSession(ctx, result.SessionID, "completed",
		fmt.Sprintf("%d/%d rows imported", result.SuccessCount, result.TotalRows))

	return result, nil
}

func (im *Importer) checkFile(data []byte, meta FileMeta) error {
	if int64(len(data)) > im.cfg.MaxFileSizeBytes {
		return pkgerr.ErrFileTooLarge
	}
	if len(data) == 0 {
		return pkgerr.ErrEmptyFile
	}

	name := strings.ToLower(meta.FileName)
	if !strings.HasSuffix(name, ".xlsx") && !strings.HasSuffix(name, ".csv") {
		return pkgerr.ErrInvalidFileType
	}
	switch meta.ContentType {
	case "", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"text/csv", "application/csv", "application/octet-stream":
		return nil
	default:
		return pkgerr.ErrInvalidFileType
	}
}

func (im *Importer) validateRows(rows []model.ImportRow, result *model.ImportResult) []model.ImportRow {
	var eligible []model.ImportRow
	for _, row := range rows {
		issues := im.validator.ValidateRow(row)
		for _, issue := range issues {
			result.Issues = append(result.Issues, issue)
			if issue.Severity == model.ImportIssueError {
				result.ErrorCount++
			} else {
				result.WarningCount++
			}
		}
		// Warning-only rows stay eligible for insert.
		if !hasError(issues) {
			eligible = append(eligible, row)
		}
	}
	return eligible
}

// dedupeWithinFile drops every row whose student ID appears more than once in
// the file. All rows sharing the ID go, not just the later ones: there is no
// basis to pick which of the conflicting rows is the right one.
func (im *Importer) dedupeWithinFile(rows []model.ImportRow, result *model.ImportResult) []model.ImportRow {
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.StudentID]++
	}

	var eligible []model.ImportRow
	for _, row := range rows {
		if counts[row.StudentID] > 1 {
			result.Issues = append(result.Issues, model.ImportRowIssue{
				RowNumber: row.RowNumber,
				StudentID: row.StudentID,
				Field:     "student_id",
				Severity:  model.ImportIssueError,
				Message:   "duplicate student ID within file",
			})
			result.ErrorCount++
			result.DuplicateCount++
			continue
		}
		eligible = append(eligible, row)
	}
	return eligible
}

// dedupeAgainstStore runs batched existence queries; the backend caps
// inclusion predicates, so IDs are chunked.
func (im *Importer) dedupeAgainstStore(ctx context.Context, rows []model.ImportRow, result *model.ImportResult) ([]model.ImportRow, error) {
	if len(rows) == 0 {
		return rows, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.StudentID
	}

	existing := make(map[string]bool)
	for start := 0; start < len(ids); start += im.cfg.ExistenceBatchSize {
		end := start + im.cfg.ExistenceBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		found, err := im.store.ExistingStudentIDs(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		for _, id := range found {
			existing[id] = true
		}
	}

	var eligible []model.ImportRow
	for _, row := range rows {
		if existing[row.StudentID] {
			result.Issues = append(result.Issues, model.ImportRowIssue{
				RowNumber: row.RowNumber,
				StudentID: row.StudentID,
				Field:     "student_id",
				Severity:  model.ImportIssueError,
				Message:   "student ID already exists",
			})
			result.ErrorCount++
			result.DuplicateCount++
			continue
		}
		eligible = append(eligible, row)
	}
	return eligible, nil
}

func (im *Importer) insertBatches(ctx context.Context, rows []model.ImportRow, result *model.ImportResult, progress *progressTracker) error {
	if len(rows) == 0 {
		return nil
	}

	now := time.Now()
	var committed []string

	for start := 0; start < len(rows); start += im.cfg.InsertBatchSize {
		end := start + im.cfg.InsertBatchSize
		if end > len(rows) {
			end = len(rows)
		}

		batch := make([]model.StudentRecord, 0, end-start)
		batchIDs := make([]string, 0, end-start)
		for _, row := range rows[start:end] {
			batch = append(batch, model.StudentRecord{
				StudentID: row.StudentID,
				FirstName: row.FirstName,
				LastName:  row.LastName,
				Email:     row.Email,
				Section:   row.Section,
				IsActive:  true,
				CreatedAt: now,
				UpdatedAt: now,
			})
			batchIDs = append(batchIDs, row.StudentID)
		}

		if err := im.store.InsertStudents(ctx, batch); err != nil {
			// Fatal fault mid-insert: an import is all-or-nothing once
			// insertion has begun. Undo what this session committed.
			im.rollback(ctx, committed)
			result.SuccessCount = 0
			return fmt.Errorf("batch insert failed after %d rows: %w", len(committed), err)
		}
		committed = append(committed, batchIDs...)
		result.SuccessCount += len(batchIDs)

		pct := progressDeduped + (progressInserted-progressDeduped)*len(committed)/len(rows)
		progress.report(model.ImportPhaseInsert, pct,
			fmt.Sprintf("%d/%d rows inserted", len(committed), len(rows)))
	}
	return nil
}

func (im *Importer) rollback(ctx context.Context, committed []string) {
	if len(committed) == 0 {
		return
	}
	im.log.Warn().Int("rows", len(committed)).Msg("Rolling back committed import rows")
	if err := im.store.DeleteStudents(ctx, committed); err != nil {
		// Nothing more this session can do; operators resolve it from the log.
		im.log.Error().Err(err).Int("rows", len(committed)).
			Msg("Rollback failed, store holds a partial import")
	}
}

func (im *Importer) recordSession(ctx context.Context, sessionID, status, message string) {
	im.events.Record(ctx, eventlog.Event{
		Kind:    eventlog.KindImport,
		Status:  status,
		Source:  sessionID,
		Message: message,
	})
}

// progressTracker clamps reported percentages to be monotonically
// non-decreasing whatever order phases report in.
type progressTracker struct {
	fn   func(model.ImportProgress)
	last int
}

func newProgressTracker(fn func(model.ImportProgress)) *progressTracker {
	return &progressTracker{fn: fn}
}

func (p *progressTracker) report(phase model.ImportPhase, percent int, message string) {
	if percent < p.last {
		percent = p.last
	}
	p.last = percent
	if p.fn != nil {
		p.fn(model.ImportProgress{Phase: phase, Percent: percent, Message: message})
	}
}
