package app

import (
	"sync"

	"github.com/pslgod1/DigitalTest/internal/domain"
)

// ResultsHub fans attempt progress out to live result watchers, one feed per
// test. Publishing to a test nobody watches is a no-op.
type ResultsHub struct {
	mu    sync.RWMutex
	feeds map[int64]*resultsFeed
}

type resultsFeed struct {
	mu          sync.Mutex
	subscribers map[chan domain.AttemptUpdate]struct{}
}

func NewResultsHub() *ResultsHub {
	return &ResultsHub{feeds: make(map[int64]*resultsFeed)}
}

// Subscribe returns a channel that receives progress updates for a test.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *ResultsHub) Subscribe(testID int64) (<-chan domain.AttemptUpdate, func()) {
	h.mu.Lock()
	feed, ok := h.feeds[testID]
	if !ok {
		feed = &resultsFeed{subscribers: make(map[chan domain.AttemptUpdate]struct{})}
		h.feeds[testID] = feed
	}
	h.mu.Unlock()

	ch := make(chan domain.AttemptUpdate, 8)
	feed.mu.Lock()
	feed.subscribers[ch] = struct{}{}
	feed.mu.Unlock()

	cancel := func() {
		feed.mu.Lock()
		if _, ok := feed.subscribers[ch]; ok {
			delete(feed.subscribers, ch)
			close(ch)
		}
		feed.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an update to every subscriber of the update's test.
func (h *ResultsHub) Publish(update domain.AttemptUpdate) {
	h.mu.RLock()
	feed, ok := h.feeds[update.TestID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	feed.mu.Lock()
	defer feed.mu.Unlock()
	for ch := range feed.subscribers {
		select {
		case ch <- update:
		default:
			// Drop the oldest buffered update so slow watchers never block.
			select {
			case <-ch:
			default:
			}
			ch <- update
		}
	}
}
