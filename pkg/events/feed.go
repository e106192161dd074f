package events

import "sync"

// Feed fans committed envelopes out to in-process subscribers (the WebSocket
// hub, metrics, tests). Publish never blocks the ledger: a subscriber whose
// buffer is full misses the envelope and must catch up from the durable log.
type Feed struct {
	mu   sync.RWMutex
	subs map[int]chan Envelope
	next int
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan Envelope)}
}

// Subscribe registers a buffered subscriber channel. The returned cancel
// function unregisters it and closes the channel.
func (f *Feed) Subscribe(buffer int) (<-chan Envelope, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.next
	f.next++
	ch := make(chan Envelope, buffer)
	f.subs[id] = ch

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if ch, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers env to every subscriber with buffer room.
func (f *Feed) Publish(env Envelope) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, ch := range f.subs {
		select {
		case ch <- env:
		default:
			// Buffer full, skip this subscriber
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (f *Feed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
