package model

type ValidationStatus string

const (
	ValidationValid           ValidationStatus = "VALID"
	ValidationOfflineCached   ValidationStatus = "OFFLINE_CACHED"
	ValidationInvalidFormat   ValidationStatus = "INVALID_FORMAT"
	ValidationInvalidID       ValidationStatus = "INVALID_ID"
	ValidationInactiveStudent ValidationStatus = "INACTIVE_STUDENT"
	ValidationNotInSection    ValidationStatus = "NOT_IN_SECTION"
	ValidationError           ValidationStatus = "VALIDATION_ERROR"
)

type ValidationSource string

const (
	SourceAuthoritative ValidationSource = "authoritative"
	SourceCache         ValidationSource = "cache"
	SourceLocalFormat   ValidationSource = "local-format-check"
)

// ValidationResult is the single outcome shape shared by both lookup stages,
// so callers never need to know which stage answered.
type ValidationResult struct {
	StudentID string           `json:"student_id"`
	Status    ValidationStatus `json:"status"`
	Source    ValidationSource `json:"source"`
	Message   string           `json:"message"`
	Student   *StudentRecord   `json:"student,omitempty"`
}

// IsValid reports whether the student may be graded. OFFLINE_CACHED counts:
// the record was found and active, just answered by the stale-bounded mirror.
func (r ValidationResult) IsValid() bool {
	return r.Status == ValidationValid || r.Status == ValidationOfflineCached
}

// Determinate reports whether the outcome is an actual answer rather than
// "could not determine" (both lookup stages structurally failed).
func (r ValidationResult) Determinate() bool {
	return r.Status != ValidationError
}
