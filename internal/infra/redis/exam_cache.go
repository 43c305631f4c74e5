package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"exam-grading-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ExamLoader fetches exam content from a backing store (e.g., Postgres).
type ExamLoader interface {
	LoadExam(ctx context.Context, examID string) (domain.Exam, error)
}

// ExamCache keeps exams in Redis as JSON blobs and falls back to a loader on
// cache miss. Unlike session-style data, exams carry nested rubrics and
// options, so a single JSON value per exam beats a flattened hash.
type ExamCache struct {
	client *redis.Client
	loader ExamLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewExamCache(client *redis.Client, loader ExamLoader, ttl time.Duration) *ExamCache {
	return &ExamCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *ExamCache) GetExam(ctx context.Context, examID string) (domain.Exam, error) {
	key := c.key(examID)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var exam domain.Exam
		if err := json.Unmarshal(raw, &exam); err == nil {
			return exam, nil
		}
		// Corrupt cache entry; drop it and reload.
		_ = c.client.Del(ctx, key).Err()
	}

	result, err, _ := c.sf.Do(examID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var exam domain.Exam
			if err := json.Unmarshal(raw, &exam); err == nil {
				return exam, nil
			}
		}

		exam, err := c.loader.LoadExam(ctx, examID)
		if err != nil {
			return domain.Exam{}, err
		}

		if data, err := json.Marshal(exam); err == nil {
			_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()
		}
		return exam, nil
	})
	if err != nil {
		return domain.Exam{}, err
	}
	return result.(domain.Exam), nil
}

// Invalidate drops a cached exam, for when an instructor edits questions.
func (c *ExamCache) Invalidate(ctx context.Context, examID string) error {
	return c.client.Del(ctx, c.key(examID)).Err()
}

func (c *ExamCache) key(examID string) string {
	return "exam:" + examID
}

func (c *ExamCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
