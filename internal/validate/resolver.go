package validate

import (
	"context"
	"fmt"
	"regexp"

	"examscan-pipeline/internal/eventlog"
	"examscan-pipeline/internal/logger"
	"examscan-pipeline/internal/model"
	pkgerr "examscan-pipeline/pkg/errors"

	"github.com/rs/zerolog"
)

// studentIDPattern is the fixed-width scanner identifier format.
var studentIDPattern = regexp.MustCompile(`^\d{8}$`)

// StudentSource is the authoritative point-lookup the resolver tries first.
type StudentSource interface {
	GetStudent(ctx context.Context, studentID string) (*model.StudentRecord, error)
}

// CacheSource is the fallback mirror consulted when the authoritative path
// is unreachable. A (nil, nil) answer means the mirror has no such record.
type CacheSource interface {
	Lookup(ctx context.Context, studentID string) (*model.StudentRecord, error)
}

// Resolver decides whether a scanned identifier denotes a real, active,
// correctly-enrolled student. Both lookup stages produce the same result
// shape, so callers never care which stage answered.
type Resolver struct {
	remote StudentSource
	cache  CacheSource
	events *eventlog.Recorder
	policy RetryPolicy
	log    zerolog.Logger
}

func NewResolver(remote StudentSource, cache CacheSource, events *eventlog.Recorder, policy RetryPolicy) *Resolver {
	return &Resolver{
		remote: remote,
		cache:  cache,
		events: events,
		policy: policy,
		log:    logger.Get(),
	}
}

// Validate resolves studentID against the authoritative store, falling back
// to the offline mirror when the store is unreachable. Ordinary negative
// outcomes are statuses, never errors.
func (r *Resolver) Validate(ctx context.Context, studentID, sectionID string) model.ValidationResult {
	return r.validate(ctx, studentID, sectionID, false)
}

// ValidateOffline skips the authoritative stage entirely, for callers that
// already know the network is down.
func (r *Resolver) ValidateOffline(ctx context.Context, studentID, sectionID string) model.ValidationResult {
	return r.validate(ctx, studentID, sectionID, true)
}

func (r *Resolver) validate(ctx context.Context, studentID, sectionID string, offline bool) model.ValidationResult {
	// Format gate: no network, no cache.
	if !studentIDPattern.MatchString(studentID) {
		return r.record(ctx, model.ValidationResult{
			StudentID: studentID,
			Status:    model.ValidationInvalidFormat,
			Source:    model.SourceLocalFormat,
			Message:   "student ID must be exactly 8 digits",
		})
	}

	if !offline {
		result, reachable := r.tryAuthoritative(ctx, studentID, sectionID)
		if reachable {
			return r.record(ctx, result)
		}
	}

	return r.record(ctx, r.tryCache(ctx, studentID, sectionID))
}

// tryAuthoritative runs the bounded retry loop against the remote store.
// reachable=false means every attempt failed for a connectivity-class reason
// and the caller should fall back to the mirror.
func (r *Resolver) tryAuthoritative(ctx context.Context, studentID, sectionID string) (model.ValidationResult, bool) {
	var lastErr error
	for attempt := 0; attempt < r.policy.Attempts; attempt++ {
		if attempt > 0 {
			if err := r.policy.Wait(ctx); err != nil {
				break
			}
		}

		student, err := r.remote.GetStudent(ctx, studentID)
		if err == nil {
			return r.classify(studentID, sectionID, student, model.SourceAuthoritative), true
		}
		if pkgerr.IsNotFound(err) {
			return model.ValidationResult{
				StudentID: studentID,
				Status:    model.ValidationInvalidID,
				Source:    model.SourceAuthoritative,
				Message:   "no student found with this ID",
			}, true
		}
		if !pkgerr.IsTransient(err) {
			// A definite rejection is an answer of sorts, but not one the
			// mirror can improve on; surface it as indeterminate.
			return model.ValidationResult{
				StudentID: studentID,
				Status:    model.ValidationError,
				Source:    model.SourceAuthoritative,
				Message:   fmt.Sprintf("lookup rejected: %v", err),
			}, true
		}

		lastErr = err
		r.log.Warn().Err(err).Str("student_id", studentID).Int("attempt", attempt+1).
			Msg("Authoritative lookup failed, retrying")
	}

	r.log.Warn().Err(lastErr).Str("student_id", studentID).
		Msg("Authoritative lookups exhausted, falling back to cache")
	return model.ValidationResult{}, false
}

func (r *Resolver) tryCache(ctx context.Context, studentID, sectionID string) model.ValidationResult {
	if r.cache == nil {
		return model.ValidationResult{
			StudentID: studentID,
			Status:    model.ValidationError,
			Source:    model.SourceCache,
			Message:   "authoritative store unreachable and no offline cache configured",
		}
	}

	student, err := r.cache.Lookup(ctx, studentID)
	if err != nil {
		return model.ValidationResult{
			StudentID: studentID,
			Status:    model.ValidationError,
			Source:    model.SourceCache,
			Message:   fmt.Sprintf("offline cache lookup failed: %v", err),
		}
	}
	if student == nil {
		return model.ValidationResult{
			StudentID: studentID,
			Status:    model.ValidationInvalidID,
			Source:    model.SourceCache,
			Message:   "no student found in offline cache",
		}
	}

	result := r.classify(studentID, sectionID, student, model.SourceCache)
	if result.Status == model.ValidationValid {
		result.Status = model.ValidationOfflineCached
		result.Message = "validated against offline cache"
	}
	return result
}

func (r *Resolver) classify(studentID, sectionID string, student *model.StudentRecord, source model.ValidationSource) model.ValidationResult {
	switch {
	case !student.IsActive:
		return model.ValidationResult{
			StudentID: studentID,
			Status:    model.ValidationInactiveStudent,
			Source:    source,
			Message:   "student record is deactivated",
			Student:   student,
		}
	case sectionID != "" && student.Section != sectionID:
		return model.ValidationResult{
			StudentID: studentID,
			Status:    model.ValidationNotInSection,
			Source:    source,
			Message:   fmt.Sprintf("student is enrolled in %q, not %q", student.Section, sectionID),
			Student:   student,
		}
	default:
		return model.ValidationResult{
			StudentID: studentID,
			Status:    model.ValidationValid,
			Source:    source,
			Message:   "student validated",
			Student:   student,
		}
	}
}

func (r *Resolver) record(ctx context.Context, result model.ValidationResult) model.ValidationResult {
	r.events.Record(ctx, eventlog.Event{
		Kind:      eventlog.KindValidation,
		StudentID: result.StudentID,
		Status:    string(result.Status),
		Source:    string(result.Source),
		Message:   result.Message,
	})
	return result
}
