package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"exam-grading-service/internal/domain"
	"exam-grading-service/internal/grading"
	"github.com/google/uuid"
)

// ExamRepository loads exam content with its ordered questions
// (from cache/backing store).
type ExamRepository interface {
	GetExam(ctx context.Context, examID string) (domain.Exam, error)
}

// SubmissionStore abstracts the durable store for submissions and answers.
// CreateSubmission must insert the submission and its answers atomically and
// surface domain.ErrDuplicateSubmission without creating a row when the
// (student, exam) pair already exists. CompleteGrading must write the graded
// answers and the submission's final score/status in one transaction.
type SubmissionStore interface {
	CreateSubmission(ctx context.Context, sub *domain.Submission) error
	GetSubmission(ctx context.Context, id string) (domain.Submission, error)
	SetStatus(ctx context.Context, id string, status domain.SubmissionStatus) error
	CompleteGrading(ctx context.Context, sub *domain.Submission) error
}

// GraderSelector resolves a grader by kind ("" means the configured default).
type GraderSelector interface {
	Select(kind string) (grading.Grader, error)
}

// AnswerInput is one answer in a submission request.
type AnswerInput struct {
	QuestionID string `json:"questionId"`
	Text       string `json:"text"`
}

// CreateSubmissionRequest carries everything needed to submit an exam.
type CreateSubmissionRequest struct {
	StudentID string        `json:"studentId"`
	ExamID    string        `json:"examId"`
	StartedAt *time.Time    `json:"startedAt,omitempty"`
	Answers   []AnswerInput `json:"answers"`
}

// SubmissionService owns the submission grading protocol: intake rules
// (time window, duplicates, completeness) and the pending → grading →
// completed/failed state machine.
type SubmissionService struct {
	exams    ExamRepository
	store    SubmissionStore
	selector GraderSelector
	feed     *ResultsFeed
	now      func() time.Time
}

func NewSubmissionService(exams ExamRepository, store SubmissionStore, selector GraderSelector, feed *ResultsFeed) *SubmissionService {
	return &SubmissionService{
		exams:    exams,
		store:    store,
		selector: selector,
		feed:     feed,
		now:      time.Now,
	}
}

// Create validates and persists a new submission, then grades it
// synchronously. The returned submission is always the persisted row; when
// grading fails the submission stays (status failed) and the grading error
// is returned alongside it.
func (s *SubmissionService) Create(ctx context.Context, req CreateSubmissionRequest) (domain.Submission, *domain.GradingResult, error) {
	if req.StudentID == "" {
		return domain.Submission{}, nil, &domain.ValidationError{Field: "studentId", Reason: "required"}
	}
	if req.ExamID == "" {
		return domain.Submission{}, nil, &domain.ValidationError{Field: "examId", Reason: "required"}
	}

	exam, err := s.exams.GetExam(ctx, req.ExamID)
	if err != nil {
		return domain.Submission{}, nil, err
	}
	if !exam.IsActive {
		return domain.Submission{}, nil, domain.ErrExamInactive
	}

	now := s.now()
	if exam.StartTime != nil && now.Before(*exam.StartTime) {
		return domain.Submission{}, nil, domain.ErrExamNotStarted
	}
	if exam.EndTime != nil && now.After(*exam.EndTime) {
		return domain.Submission{}, nil, domain.ErrExamEnded
	}

	answers, err := buildAnswers(exam, req.Answers)
	if err != nil {
		return domain.Submission{}, nil, err
	}

	sub := domain.Submission{
		ID:               uuid.NewString(),
		StudentID:        req.StudentID,
		ExamID:           req.ExamID,
		Status:           domain.StatusPending,
		StartedAt:        req.StartedAt,
		SubmittedAt:      now,
		TimeTakenMinutes: timeTaken(req.StartedAt, now, exam.DurationMinutes),
		Answers:          answers,
	}
	for i := range sub.Answers {
		sub.Answers[i].SubmissionID = sub.ID
	}

	// The duplicate check and the insert are atomic inside the store: a
	// race between two submissions for the same (student, exam) pair
	// yields exactly one row.
	if err := s.store.CreateSubmission(ctx, &sub); err != nil {
		return domain.Submission{}, nil, err
	}

	result, err := s.Grade(ctx, sub.ID, "")
	if err != nil {
		if reloaded, loadErr := s.store.GetSubmission(ctx, sub.ID); loadErr == nil {
			sub = reloaded
		}
		return sub, nil, fmt.Errorf("grading submission %s: %w", sub.ID, err)
	}
	reloaded, err := s.store.GetSubmission(ctx, sub.ID)
	if err != nil {
		return sub, &result, nil
	}
	return reloaded, &result, nil
}

// Grade runs one grading pass over an existing submission. Calling it again
// re-reads the current answers and re-derives the score; it never skips
// already-graded answers. kind selects the grader, "" means configured
// default.
func (s *SubmissionService) Grade(ctx context.Context, submissionID, kind string) (domain.GradingResult, error) {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return domain.GradingResult{}, err
	}

	// Status moves to grading before any scoring happens.
	if err := s.store.SetStatus(ctx, sub.ID, domain.StatusGrading); err != nil {
		return domain.GradingResult{}, err
	}
	sub.Status = domain.StatusGrading

	grader, err := s.selector.Select(kind)
	if err != nil {
		s.markFailed(ctx, sub.ID)
		return domain.GradingResult{}, err
	}

	result, err := grader.GradeSubmission(ctx, &sub)
	if err != nil {
		s.markFailed(ctx, sub.ID)
		return domain.GradingResult{}, err
	}

	score := result.TotalScore
	percentage := result.Percentage
	if exam, examErr := s.exams.GetExam(ctx, sub.ExamID); examErr == nil && exam.TotalMarks > 0 {
		percentage = score / exam.TotalMarks * 100
	}
	gradedAt := s.now()

	sub.Score = &score
	sub.Percentage = &percentage
	sub.GradedAt = &gradedAt
	sub.Status = domain.StatusCompleted

	// Final score, status, and every graded answer land in one transaction.
	if err := s.store.CompleteGrading(ctx, &sub); err != nil {
		s.markFailed(ctx, sub.ID)
		return domain.GradingResult{}, err
	}

	result.Percentage = percentage
	if s.feed != nil {
		s.feed.Publish(GradedEvent{
			SubmissionID: sub.ID,
			ExamID:       sub.ExamID,
			StudentID:    sub.StudentID,
			Score:        score,
			Percentage:   percentage,
			GradedBy:     grader.Name(),
			GradedAt:     gradedAt,
		})
	}
	return result, nil
}

// Get returns a submission with its answers.
func (s *SubmissionService) Get(ctx context.Context, submissionID string) (domain.Submission, error) {
	return s.store.GetSubmission(ctx, submissionID)
}

// markFailed is best-effort: the original grading error is what callers see.
func (s *SubmissionService) markFailed(ctx context.Context, submissionID string) {
	if err := s.store.SetStatus(ctx, submissionID, domain.StatusFailed); err != nil {
		log.Printf("mark submission %s failed: %v", submissionID, err)
	}
}

// buildAnswers pairs the request's answers with the exam's questions and
// rejects incomplete or unexpected answer sets.
func buildAnswers(exam domain.Exam, inputs []AnswerInput) ([]domain.Answer, error) {
	questions := make(map[string]*domain.Question, len(exam.Questions))
	for i := range exam.Questions {
		questions[exam.Questions[i].ID] = &exam.Questions[i]
	}

	answers := make([]domain.Answer, 0, len(inputs))
	provided := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		q, ok := questions[in.QuestionID]
		if !ok {
			return nil, &domain.ValidationError{Field: "answers", Reason: fmt.Sprintf("question %s is not part of the exam", in.QuestionID)}
		}
		if _, dup := provided[in.QuestionID]; dup {
			return nil, &domain.ValidationError{Field: "answers", Reason: fmt.Sprintf("duplicate answer for question %s", in.QuestionID)}
		}
		provided[in.QuestionID] = struct{}{}
		answers = append(answers, domain.Answer{
			ID:         uuid.NewString(),
			QuestionID: in.QuestionID,
			Text:       in.Text,
			Question:   q,
		})
	}

	if len(provided) != len(questions) {
		missing := make([]string, 0)
		for id := range questions {
			if _, ok := provided[id]; !ok {
				missing = append(missing, id)
			}
		}
		return nil, &domain.ValidationError{
			Field:  "answers",
			Reason: "missing answers for questions: " + strings.Join(missing, ", "),
		}
	}
	return answers, nil
}

// timeTaken caps the elapsed time at the exam duration; without a start
// timestamp the full duration is assumed.
func timeTaken(startedAt *time.Time, now time.Time, durationMinutes int) int {
	if startedAt == nil {
		return durationMinutes
	}
	minutes := int(now.Sub(*startedAt).Minutes())
	if minutes < 0 {
		minutes = 0
	}
	if minutes > durationMinutes {
		return durationMinutes
	}
	return minutes
}
