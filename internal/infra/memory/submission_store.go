package memory

import (
	"context"
	"sort"
	"sync"

	"exam-grading-service/internal/domain"
)

// SubmissionStore is an in-memory implementation of app.SubmissionStore.
// The (student, exam) uniqueness check and the insert happen under one lock,
// mirroring the transactional guarantee of the Postgres store.
type SubmissionStore struct {
	loader ExamLoader

	mu      sync.RWMutex
	byID    map[string]domain.Submission
	byOwner map[ownerKey]string // (student, exam) -> submission ID
}

type ownerKey struct {
	studentID string
	examID    string
}

func NewSubmissionStore(loader ExamLoader) *SubmissionStore {
	return &SubmissionStore{
		loader:  loader,
		byID:    make(map[string]domain.Submission),
		byOwner: make(map[ownerKey]string),
	}
}

func (s *SubmissionStore) CreateSubmission(_ context.Context, sub *domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ownerKey{studentID: sub.StudentID, examID: sub.ExamID}
	if _, exists := s.byOwner[key]; exists {
		return domain.ErrDuplicateSubmission
	}
	s.byOwner[key] = sub.ID
	s.byID[sub.ID] = cloneSubmission(*sub)
	return nil
}

func (s *SubmissionStore) GetSubmission(ctx context.Context, id string) (domain.Submission, error) {
	s.mu.RLock()
	sub, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	sub = cloneSubmission(sub)

	exam, err := s.loader.LoadExam(ctx, sub.ExamID)
	if err != nil {
		return domain.Submission{}, err
	}
	attachQuestions(&sub, exam)
	return sub, nil
}

func (s *SubmissionStore) SetStatus(_ context.Context, id string, status domain.SubmissionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.byID[id]
	if !ok {
		return domain.ErrSubmissionNotFound
	}
	sub.Status = status
	s.byID[id] = sub
	return nil
}

func (s *SubmissionStore) CompleteGrading(_ context.Context, sub *domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[sub.ID]; !ok {
		return domain.ErrSubmissionNotFound
	}
	s.byID[sub.ID] = cloneSubmission(*sub)
	return nil
}

// ListByExam returns completed submissions for an exam, most recent first.
func (s *SubmissionStore) ListByExam(_ context.Context, examID string) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Submission, 0)
	for _, sub := range s.byID {
		if sub.ExamID == examID {
			out = append(out, cloneSubmission(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out, nil
}

func cloneSubmission(sub domain.Submission) domain.Submission {
	answers := make([]domain.Answer, len(sub.Answers))
	copy(answers, sub.Answers)
	for i := range answers {
		answers[i].Question = nil
	}
	sub.Answers = answers
	return sub
}

func attachQuestions(sub *domain.Submission, exam domain.Exam) {
	questions := make(map[string]*domain.Question, len(exam.Questions))
	for i := range exam.Questions {
		questions[exam.Questions[i].ID] = &exam.Questions[i]
	}
	for i := range sub.Answers {
		sub.Answers[i].Question = questions[sub.Answers[i].QuestionID]
	}
	sort.SliceStable(sub.Answers, func(i, j int) bool {
		qi, qj := sub.Answers[i].Question, sub.Answers[j].Question
		if qi == nil || qj == nil {
			return qi != nil
		}
		return qi.Order < qj.Order
	})
}
