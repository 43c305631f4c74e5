package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrExamNotFound indicates the exam identifier does not resolve.
	ErrExamNotFound = errors.New("exam not found")
	// ErrSubmissionNotFound indicates the submission identifier does not resolve.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrQuestionNotFound indicates a submitted question ID is not part of the exam.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrDuplicateSubmission is returned when a (student, exam) pair already has a submission.
	ErrDuplicateSubmission = errors.New("duplicate submission for student and exam")
	// ErrExamNotStarted is returned for submissions before the exam window opens.
	ErrExamNotStarted = errors.New("exam not started")
	// ErrExamEnded is returned for submissions after the exam window closes.
	ErrExamEnded = errors.New("exam ended")
	// ErrExamInactive is returned for submissions against a deactivated exam.
	ErrExamInactive = errors.New("exam is not active")
)

// ValidationError reports malformed question, rubric, or submission data.
// It is raised before grading starts, never silently coerced.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// ConfigurationError reports an unusable grading configuration, such as an
// unknown grader kind or a missing remote credential.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Reason
}
