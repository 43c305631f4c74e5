package app

import (
	"sync"
	"time"
)

// GradedEvent is published once per completed grading pass.
type GradedEvent struct {
	SubmissionID string    `json:"submissionId"`
	ExamID       string    `json:"examId"`
	StudentID    string    `json:"studentId"`
	Score        float64   `json:"score"`
	Percentage   float64   `json:"percentage"`
	GradedBy     string    `json:"gradedBy"`
	GradedAt     time.Time `json:"gradedAt"`
}

// ResultsFeed fans out graded-submission events to per-exam subscribers,
// typically instructors watching results arrive over a websocket.
type ResultsFeed struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan GradedEvent]struct{}
}

func NewResultsFeed() *ResultsFeed {
	return &ResultsFeed{
		subscribers: make(map[string]map[chan GradedEvent]struct{}),
	}
}

// Subscribe returns a channel of grading events for one exam. The caller
// must invoke the returned cancel function to avoid leaks.
func (f *ResultsFeed) Subscribe(examID string) (<-chan GradedEvent, func()) {
	ch := make(chan GradedEvent, 8)

	f.mu.Lock()
	subs, ok := f.subscribers[examID]
	if !ok {
		subs = make(map[chan GradedEvent]struct{})
		f.subscribers[examID] = subs
	}
	subs[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if subs, ok := f.subscribers[examID]; ok {
			if _, live := subs[ch]; live {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(f.subscribers, examID)
			}
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of the event's exam. Slow
// subscribers drop their oldest event rather than blocking grading.
func (f *ResultsFeed) Publish(ev GradedEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for ch := range f.subscribers[ev.ExamID] {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
