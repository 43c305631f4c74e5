package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"exam-grading-service/internal/domain"
	"exam-grading-service/internal/infra/memory"
)

func storeExam() domain.Exam {
	return domain.Exam{
		ID:       "exam-1",
		IsActive: true,
		Questions: []domain.Question{
			{ID: "q2", Type: domain.QuestionShortAnswer, Marks: 40, Order: 2},
			{ID: "q1", Type: domain.QuestionMCQ, Marks: 60, Order: 1},
		},
	}
}

func newStore() *memory.SubmissionStore {
	loader := memory.NewStaticExamLoader(map[string]domain.Exam{"exam-1": storeExam()})
	return memory.NewSubmissionStore(loader)
}

func sampleSubmission(id string) domain.Submission {
	return domain.Submission{
		ID:          id,
		StudentID:   "student-1",
		ExamID:      "exam-1",
		Status:      domain.StatusPending,
		SubmittedAt: time.Now(),
		Answers: []domain.Answer{
			{ID: "a1", SubmissionID: id, QuestionID: "q1", Text: "B"},
			{ID: "a2", SubmissionID: id, QuestionID: "q2", Text: "words"},
		},
	}
}

func TestCreateAndGetSubmission(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	sub := sampleSubmission("sub-1")
	if err := store.CreateSubmission(ctx, &sub); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := store.GetSubmission(ctx, "sub-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got.Answers) != 2 {
		t.Fatalf("expected 2 answers, got %d", len(got.Answers))
	}
	// Answers come back in question order with questions attached.
	if got.Answers[0].QuestionID != "q1" || got.Answers[1].QuestionID != "q2" {
		t.Fatalf("answers not in question order: %+v", got.Answers)
	}
	for _, a := range got.Answers {
		if a.Question == nil || a.Question.ID != a.QuestionID {
			t.Fatalf("answer %q missing its question", a.QuestionID)
		}
	}
}

func TestCreateSubmissionRejectsDuplicateOwner(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	first := sampleSubmission("sub-1")
	if err := store.CreateSubmission(ctx, &first); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	second := sampleSubmission("sub-2")
	err := store.CreateSubmission(ctx, &second)
	if !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	// A different student submitting the same exam is fine.
	third := sampleSubmission("sub-3")
	third.StudentID = "student-2"
	if err := store.CreateSubmission(ctx, &third); err != nil {
		t.Fatalf("create for second student failed: %v", err)
	}
}

func TestGetSubmissionIsolatesCaller(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	sub := sampleSubmission("sub-1")
	if err := store.CreateSubmission(ctx, &sub); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := store.GetSubmission(ctx, "sub-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	marks := 99.0
	got.Answers[0].MarksObtained = &marks

	again, err := store.GetSubmission(ctx, "sub-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if again.Answers[0].MarksObtained != nil {
		t.Fatal("mutating a returned submission must not affect the store")
	}
}

func TestSetStatusAndCompleteGrading(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	sub := sampleSubmission("sub-1")
	if err := store.CreateSubmission(ctx, &sub); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := store.SetStatus(ctx, "sub-1", domain.StatusGrading); err != nil {
		t.Fatalf("set status failed: %v", err)
	}
	got, _ := store.GetSubmission(ctx, "sub-1")
	if got.Status != domain.StatusGrading {
		t.Fatalf("expected grading status, got %q", got.Status)
	}

	score := 85.0
	pct := 85.0
	now := time.Now()
	marks := 60.0
	got.Score = &score
	got.Percentage = &pct
	got.GradedAt = &now
	got.Status = domain.StatusCompleted
	got.Answers[0].MarksObtained = &marks
	if err := store.CompleteGrading(ctx, &got); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	final, _ := store.GetSubmission(ctx, "sub-1")
	if final.Status != domain.StatusCompleted || final.Score == nil || *final.Score != 85 {
		t.Fatalf("grading result not persisted: %+v", final)
	}
	if final.Answers[0].MarksObtained == nil || *final.Answers[0].MarksObtained != 60 {
		t.Fatalf("graded answers not persisted: %+v", final.Answers[0])
	}
}

func TestSubmissionNotFound(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	if _, err := store.GetSubmission(ctx, "nope"); !errors.Is(err, domain.ErrSubmissionNotFound) {
		t.Fatalf("expected not-found on get, got %v", err)
	}
	if err := store.SetStatus(ctx, "nope", domain.StatusGrading); !errors.Is(err, domain.ErrSubmissionNotFound) {
		t.Fatalf("expected not-found on set status, got %v", err)
	}
	missing := sampleSubmission("nope")
	if err := store.CompleteGrading(ctx, &missing); !errors.Is(err, domain.ErrSubmissionNotFound) {
		t.Fatalf("expected not-found on complete, got %v", err)
	}
}

func TestListByExamNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	older := sampleSubmission("sub-1")
	older.SubmittedAt = time.Now().Add(-time.Hour)
	newer := sampleSubmission("sub-2")
	newer.StudentID = "student-2"

	if err := store.CreateSubmission(ctx, &older); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := store.CreateSubmission(ctx, &newer); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	subs, err := store.ListByExam(ctx, "exam-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(subs) != 2 || subs[0].ID != "sub-2" || subs[1].ID != "sub-1" {
		t.Fatalf("expected newest first, got %+v", subs)
	}
}
