package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"exam-grading-service/internal/domain"
	"exam-grading-service/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestExamCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		ExamLoader: memory.NewStaticExamLoader(map[string]domain.Exam{
			"exam-1": sampleExam(),
		}),
	}
	cache := NewExamCache(client, loader, time.Minute)

	exam, err := cache.GetExam(context.Background(), "exam-1")
	if err != nil {
		t.Fatalf("get exam: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if len(exam.Questions) != 1 || exam.Questions[0].Rubric == nil {
		t.Fatalf("exam lost structure through the cache: %+v", exam)
	}

	// Second call should hit cache, loader not incremented.
	again, err := cache.GetExam(context.Background(), "exam-1")
	if err != nil {
		t.Fatalf("get exam: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if len(again.Questions) != 1 || again.Questions[0].Rubric == nil ||
		again.Questions[0].Rubric.KeywordWeight != 0.5 {
		t.Fatalf("cached exam lost its rubric: %+v", again.Questions)
	}
}

func TestExamCacheInvalidate(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{
		ExamLoader: memory.NewStaticExamLoader(map[string]domain.Exam{
			"exam-1": sampleExam(),
		}),
	}
	cache := NewExamCache(newClient(mr), loader, time.Minute)

	if _, err := cache.GetExam(context.Background(), "exam-1"); err != nil {
		t.Fatalf("get exam: %v", err)
	}
	if err := cache.Invalidate(context.Background(), "exam-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := cache.GetExam(context.Background(), "exam-1"); err != nil {
		t.Fatalf("get exam: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidation, got %d calls", loader.calls)
	}
}

func TestExamCacheRecoversFromCorruptEntry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{
		ExamLoader: memory.NewStaticExamLoader(map[string]domain.Exam{
			"exam-1": sampleExam(),
		}),
	}
	cache := NewExamCache(newClient(mr), loader, time.Minute)

	if err := mr.Set("exam:exam-1", "not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	exam, err := cache.GetExam(context.Background(), "exam-1")
	if err != nil {
		t.Fatalf("get exam: %v", err)
	}
	if exam.ID != "exam-1" || loader.calls != 1 {
		t.Fatalf("expected reload past corrupt entry, got %+v (calls=%d)", exam, loader.calls)
	}
}

func TestExamCachePropagatesMiss(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	cache := NewExamCache(newClient(mr), memory.NewStaticExamLoader(nil), time.Minute)

	_, err = cache.GetExam(context.Background(), "missing")
	if !errors.Is(err, domain.ErrExamNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

type countingLoader struct {
	memory.ExamLoader
	calls int
}

func (l *countingLoader) LoadExam(ctx context.Context, examID string) (domain.Exam, error) {
	l.calls++
	return l.ExamLoader.LoadExam(ctx, examID)
}

func sampleExam() domain.Exam {
	return domain.Exam{
		ID:         "exam-1",
		Title:      "Chemistry basics",
		TotalMarks: 10,
		IsActive:   true,
		Questions: []domain.Question{
			{
				ID:            "q1",
				Type:          domain.QuestionShortAnswer,
				Marks:         10,
				Order:         1,
				CorrectAnswer: "atoms bond by sharing electrons",
				Rubric: &domain.Rubric{
					Keywords:         []string{"atoms", "electrons"},
					KeywordWeight:    0.5,
					SimilarityWeight: 0.5,
				},
			},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
