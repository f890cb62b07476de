package app

import (
	"testing"

	"github.com/pslgod1/DigitalTest/internal/domain"
)

func TestResultsHubPublishToUnwatchedTest(t *testing.T) {
	hub := NewResultsHub()
	// Must not panic or block.
	hub.Publish(domain.AttemptUpdate{TestID: 1, AttemptID: 1})
}

func TestResultsHubDropsOldestForSlowSubscriber(t *testing.T) {
	hub := NewResultsHub()
	updates, cancel := hub.Subscribe(1)
	defer cancel()

	// Overflow the buffer without reading; Publish must never block.
	for i := 0; i < 20; i++ {
		hub.Publish(domain.AttemptUpdate{TestID: 1, AttemptID: int64(i)})
	}

	var last domain.AttemptUpdate
	received := 0
drain:
	for {
		select {
		case update := <-updates:
			last = update
			received++
		default:
			break drain
		}
	}
	if received == 0 || received > 8 {
		t.Fatalf("received %d buffered updates, want 1..8", received)
	}
	if last.AttemptID != 19 {
		t.Fatalf("latest update lost, last seen attempt %d", last.AttemptID)
	}
}

func TestResultsHubCancelIsIdempotent(t *testing.T) {
	hub := NewResultsHub()
	updates, cancel := hub.Subscribe(2)

	cancel()
	cancel()

	if _, ok := <-updates; ok {
		t.Fatal("expected channel to be closed after cancel")
	}

	// Publishing after cancel must not panic.
	hub.Publish(domain.AttemptUpdate{TestID: 2})
}

func TestResultsHubIsolatesTests(t *testing.T) {
	hub := NewResultsHub()
	a, cancelA := hub.Subscribe(1)
	defer cancelA()
	b, cancelB := hub.Subscribe(2)
	defer cancelB()

	hub.Publish(domain.AttemptUpdate{TestID: 1, AttemptID: 10})

	select {
	case update := <-a:
		if update.AttemptID != 10 {
			t.Fatalf("unexpected update %+v", update)
		}
	default:
		t.Fatal("subscriber of test 1 got nothing")
	}
	select {
	case update := <-b:
		t.Fatalf("subscriber of test 2 got foreign update %+v", update)
	default:
	}
}
