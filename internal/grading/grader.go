package grading

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"exam-grading-service/internal/domain"
)

// Grader turns (question, submitted text) into (marks, feedback), either one
// answer at a time or for a whole submission.
type Grader interface {
	// Name tags graded answers so results record which backend produced them.
	Name() string
	// GradeAnswer scores a single answer. A nil rubric falls back to the
	// question's own rubric.
	GradeAnswer(ctx context.Context, q domain.Question, answerText string, rubric *domain.Rubric) (float64, string, error)
	// GradeSubmission scores every answer in question order, mutating the
	// submission's answers in place. A failure on one answer never aborts
	// the rest: it records zero marks with an explanatory feedback string.
	GradeSubmission(ctx context.Context, sub *domain.Submission) (domain.GradingResult, error)
}

// LocalGrader grades deterministically with the built-in strategies.
type LocalGrader struct {
	strategies map[domain.QuestionType]strategy
	now        func() time.Time
}

func NewLocalGrader() *LocalGrader {
	return &LocalGrader{
		strategies: builtinStrategies(),
		now:        time.Now,
	}
}

func (g *LocalGrader) Name() string { return "local" }

func (g *LocalGrader) GradeAnswer(_ context.Context, q domain.Question, answerText string, rubric *domain.Rubric) (float64, string, error) {
	if strings.TrimSpace(answerText) == "" {
		return 0, noAnswerFeedback, nil
	}
	if err := q.Validate(); err != nil {
		return 0, "", err
	}
	s, ok := g.strategies[q.Type]
	if !ok {
		return 0, "", fmt.Errorf("unknown question type %q", q.Type)
	}
	return s.grade(q, answerText, effectiveRubric(q, rubric))
}

func (g *LocalGrader) GradeSubmission(ctx context.Context, sub *domain.Submission) (domain.GradingResult, error) {
	// Full marks required for correctness under deterministic grading.
	return gradeAnswers(ctx, g, sub, 1.0, g.now)
}

var errQuestionNotLoaded = errors.New("question not loaded for answer")

// gradeAnswers is the submission loop shared by grader implementations. The
// correctFraction is the share of max marks an answer needs to count as
// correct; it differs per grader because remote scoring is inexact.
func gradeAnswers(ctx context.Context, g Grader, sub *domain.Submission, correctFraction float64, now func() time.Time) (domain.GradingResult, error) {
	sortAnswersByQuestionOrder(sub.Answers)

	result := domain.GradingResult{
		SubmissionID: sub.ID,
		Details:      make([]domain.AnswerDetail, 0, len(sub.Answers)),
	}
	for i := range sub.Answers {
		a := &sub.Answers[i]
		if a.Question == nil {
			recordAnswer(a, g.Name(), now(), 0, "Grading failed: "+errQuestionNotLoaded.Error(), false)
			result.Details = append(result.Details, domain.AnswerDetail{
				QuestionID: a.QuestionID,
				Feedback:   a.Feedback,
			})
			continue
		}
		q := *a.Question

		marks, feedback, err := g.GradeAnswer(ctx, q, a.Text, q.Rubric)
		if err != nil {
			marks = 0
			feedback = "Grading failed: " + err.Error()
		}
		correct := err == nil && marks >= q.Marks*correctFraction
		recordAnswer(a, g.Name(), now(), marks, feedback, correct)

		result.TotalScore += marks
		result.TotalPossible += q.Marks
		result.Details = append(result.Details, domain.AnswerDetail{
			QuestionID:    q.ID,
			MarksObtained: marks,
			MarksPossible: q.Marks,
			Feedback:      feedback,
		})
	}
	if result.TotalPossible > 0 {
		result.Percentage = result.TotalScore / result.TotalPossible * 100
	}
	return result, nil
}

func recordAnswer(a *domain.Answer, service string, at time.Time, marks float64, feedback string, correct bool) {
	a.MarksObtained = &marks
	a.Feedback = feedback
	a.IsCorrect = &correct
	a.GradedBy = service
	a.GradedAt = &at
}

func sortAnswersByQuestionOrder(answers []domain.Answer) {
	sort.SliceStable(answers, func(i, j int) bool {
		qi, qj := answers[i].Question, answers[j].Question
		if qi == nil || qj == nil {
			return qi != nil
		}
		return qi.Order < qj.Order
	})
}
