package importer

import (
	"fmt"
	"regexp"

	"examscan-pipeline/internal/model"

	"github.com/go-playground/validator/v10"
)

const maxNameLength = 50

var studentIDPattern = regexp.MustCompile(`^\d{8}$`)

type RowValidator struct {
	validate *validator.Validate
}

func NewRowValidator() *RowValidator {
	return &RowValidator{
		validate: validator.New(),
	}
}

// ValidateRow classifies a row's defects. Errors exclude the row from
// insertion; warnings (dubious email, over-long names) leave it eligible.
func (v *RowValidator) ValidateRow(row model.ImportRow) []model.ImportRowIssue {
	var issues []model.ImportRowIssue

	addIssue := func(field string, severity model.ImportIssueSeverity, message string) {
		issues = append(issues, model.ImportRowIssue{
			RowNumber: row.RowNumber,
			StudentID: row.StudentID,
			Field:     field,
			Severity:  severity,
			Message:   message,
		})
	}

	if row.StudentID == "" {
		addIssue("student_id", model.ImportIssueError, "student ID is required")
	} else if !studentIDPattern.MatchString(row.StudentID) {
		addIssue("student_id", model.ImportIssueError, "student ID must be exactly 8 digits")
	}

	if row.FirstName == "" {
		addIssue("first_name", model.ImportIssueError, "first name is required")
	} else if len(row.FirstName) > maxNameLength {
		addIssue("first_name", model.ImportIssueWarning,
			fmt.Sprintf("first name exceeds %d characters", maxNameLength))
	}

	if row.LastName == "" {
		addIssue("last_name", model.ImportIssueError, "last name is required")
	} else if len(row.LastName) > maxNameLength {
		addIssue("last_name", model.ImportIssueWarning,
			fmt.Sprintf("last name exceeds %d characters", maxNameLength))
	}

	if row.Email != "" {
		if err := v.validate.Var(row.Email, "email"); err != nil {
			addIssue("email", model.ImportIssueWarning, "email address looks malformed")
		}
	}

	return issues
}

func hasError(issues []model.ImportRowIssue) bool {
	for _, issue := range issues {
		if issue.Severity == model.ImportIssueError {
			return true
		}
	}
	return false
}
