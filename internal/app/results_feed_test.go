package app_test

import (
	"testing"

	"exam-grading-service/internal/app"
)

func TestResultsFeedDeliversToExamSubscribers(t *testing.T) {
	feed := app.NewResultsFeed()

	ch1, cancel1 := feed.Subscribe("exam-1")
	defer cancel1()
	ch2, cancel2 := feed.Subscribe("exam-2")
	defer cancel2()

	feed.Publish(app.GradedEvent{SubmissionID: "s1", ExamID: "exam-1"})

	select {
	case ev := <-ch1:
		if ev.SubmissionID != "s1" {
			t.Fatalf("unexpected event %+v", ev)
		}
	default:
		t.Fatal("subscriber for exam-1 should have received the event")
	}
	select {
	case ev := <-ch2:
		t.Fatalf("subscriber for exam-2 should not receive exam-1 events, got %+v", ev)
	default:
	}
}

func TestResultsFeedDropsOldestWhenSlow(t *testing.T) {
	feed := app.NewResultsFeed()
	ch, cancel := feed.Subscribe("exam-1")
	defer cancel()

	// Overflow the subscriber buffer; publishing must never block.
	for i := 0; i < 20; i++ {
		feed.Publish(app.GradedEvent{SubmissionID: "s", ExamID: "exam-1", Score: float64(i)})
	}

	var last app.GradedEvent
	count := 0
	for {
		select {
		case ev := <-ch:
			last = ev
			count++
			continue
		default:
		}
		break
	}
	if count == 0 || count > 8 {
		t.Fatalf("expected a bounded backlog, got %d events", count)
	}
	if last.Score != 19 {
		t.Fatalf("newest event should survive the overflow, got score %v", last.Score)
	}
}

func TestResultsFeedCancelIsIdempotent(t *testing.T) {
	feed := app.NewResultsFeed()
	ch, cancel := feed.Subscribe("exam-1")

	cancel()
	cancel()

	if _, open := <-ch; open {
		t.Fatal("channel should be closed after cancel")
	}

	// Publishing to an exam with no subscribers is a no-op.
	feed.Publish(app.GradedEvent{ExamID: "exam-1"})
}
