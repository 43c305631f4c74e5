package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"exam-grading-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// ExamLoader fetches exam content from a backing store (e.g., Postgres).
type ExamLoader interface {
	LoadExam(ctx context.Context, examID string) (domain.Exam, error)
}

// ExamRepository caches exams with TTL to avoid repeated store hits while a
// cohort submits the same exam.
type ExamRepository struct {
	loader ExamLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedExam
}

type cachedExam struct {
	exam      domain.Exam
	expiresAt time.Time
}

func NewExamRepository(loader ExamLoader, ttl time.Duration) *ExamRepository {
	return &ExamRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedExam),
	}
}

func (r *ExamRepository) GetExam(ctx context.Context, examID string) (domain.Exam, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[examID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.exam, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(examID, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[examID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.exam, nil
		}
		r.mu.RUnlock()

		exam, err := r.loader.LoadExam(ctx, examID)
		if err != nil {
			return domain.Exam{}, err
		}

		r.mu.Lock()
		r.cache[examID] = cachedExam{
			exam:      exam,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return exam, nil
	})
	if err != nil {
		return domain.Exam{}, err
	}
	return result.(domain.Exam), nil
}

func (r *ExamRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticExamLoader is a simple loader backed by an in-memory map (useful for
// tests/demos).
type StaticExamLoader struct {
	exams map[string]domain.Exam
}

func NewStaticExamLoader(exams map[string]domain.Exam) *StaticExamLoader {
	return &StaticExamLoader{exams: exams}
}

func (l *StaticExamLoader) LoadExam(_ context.Context, examID string) (domain.Exam, error) {
	if exam, ok := l.exams[examID]; ok {
		return exam, nil
	}
	return domain.Exam{}, domain.ErrExamNotFound
}
