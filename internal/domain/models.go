package domain

import (
	"strings"
	"time"
)

// QuestionType enumerates the kinds of questions the grading engine understands.
type QuestionType string

const (
	QuestionMCQ         QuestionType = "mcq"
	QuestionShortAnswer QuestionType = "short_answer"
	QuestionEssay       QuestionType = "essay"
)

// SubmissionStatus tracks a submission through the grading lifecycle.
type SubmissionStatus string

const (
	StatusPending   SubmissionStatus = "pending"
	StatusGrading   SubmissionStatus = "grading"
	StatusCompleted SubmissionStatus = "completed"
	StatusFailed    SubmissionStatus = "failed"
)

// Rubric is an optional structured grading policy attached to a question.
type Rubric struct {
	Keywords         []string `json:"keywords,omitempty"`
	KeywordWeight    float64  `json:"keyword_weight,omitempty"`
	SimilarityWeight float64  `json:"similarity_weight,omitempty"`
	MinLength        int      `json:"min_length,omitempty"`
}

// Question belongs to exactly one exam; Order is unique within it.
type Question struct {
	ID            string            `json:"id"`
	ExamID        string            `json:"examId"`
	Text          string            `json:"text"`
	Type          QuestionType      `json:"type"`
	Marks         float64           `json:"marks"`
	Order         int               `json:"order"`
	Options       map[string]string `json:"options,omitempty"` // MCQ only: choice key -> label
	CorrectAnswer string            `json:"correctAnswer,omitempty"`
	Rubric        *Rubric           `json:"rubric,omitempty"`
	CaseSensitive bool              `json:"caseSensitive,omitempty"` // MCQ only
}

// Validate rejects malformed question data before grading starts.
func (q Question) Validate() error {
	if q.Marks < 0 {
		return &ValidationError{Field: "marks", Reason: "must be non-negative"}
	}
	if q.Type == QuestionMCQ {
		if len(q.Options) == 0 {
			return &ValidationError{Field: "options", Reason: "MCQ questions must have options"}
		}
		if strings.TrimSpace(q.CorrectAnswer) == "" {
			return &ValidationError{Field: "correctAnswer", Reason: "MCQ questions must have a correct answer"}
		}
	}
	return nil
}

// Exam is a timed collection of ordered questions.
type Exam struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	CourseCode      string     `json:"courseCode,omitempty"`
	DurationMinutes int        `json:"durationMinutes"`
	TotalMarks      float64    `json:"totalMarks"`
	PassingMarks    float64    `json:"passingMarks"`
	StartTime       *time.Time `json:"startTime,omitempty"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	IsActive        bool       `json:"isActive"`
	Instructions    string     `json:"instructions,omitempty"`
	Questions       []Question `json:"questions,omitempty"` // ordered by Order
}

// Answer binds one submission to one question (the pair is unique).
type Answer struct {
	ID            string     `json:"id"`
	SubmissionID  string     `json:"submissionId"`
	QuestionID    string     `json:"questionId"`
	Text          string     `json:"text"`
	MarksObtained *float64   `json:"marksObtained,omitempty"`
	Feedback      string     `json:"feedback,omitempty"`
	IsCorrect     *bool      `json:"isCorrect,omitempty"`
	GradedBy      string     `json:"gradedBy,omitempty"`
	GradedAt      *time.Time `json:"gradedAt,omitempty"`

	// Question is populated when the submission is loaded for grading.
	// Grading mutates the answer, never the question.
	Question *Question `json:"-"`
}

// Submission is one student's completed attempt at one exam.
// At most one submission exists per (student, exam) pair.
type Submission struct {
	ID               string           `json:"id"`
	StudentID        string           `json:"studentId"`
	ExamID           string           `json:"examId"`
	Status           SubmissionStatus `json:"status"`
	StartedAt        *time.Time       `json:"startedAt,omitempty"`
	SubmittedAt      time.Time        `json:"submittedAt"`
	GradedAt         *time.Time       `json:"gradedAt,omitempty"`
	Score            *float64         `json:"score,omitempty"`
	Percentage       *float64         `json:"percentage,omitempty"`
	TimeTakenMinutes int              `json:"timeTakenMinutes"`
	Answers          []Answer         `json:"answers,omitempty"` // ordered by question order
}

// AnswerDetail is the per-answer slice of a grading result.
type AnswerDetail struct {
	QuestionID    string  `json:"questionId"`
	MarksObtained float64 `json:"marksObtained"`
	MarksPossible float64 `json:"marksPossible"`
	Feedback      string  `json:"feedback"`
}

// GradingResult aggregates one grading pass over a submission.
// It is ephemeral: the durable record lives on Submission and its Answers.
type GradingResult struct {
	SubmissionID  string         `json:"submissionId"`
	TotalScore    float64        `json:"totalScore"`
	TotalPossible float64        `json:"totalPossible"`
	Percentage    float64        `json:"percentage"`
	Details       []AnswerDetail `json:"details"`
}
