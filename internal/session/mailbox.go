package session

import (
	"sync"

	"candlecore/internal/kline"
)

// MailboxCapacity is the maximum number of pending DetectEvents a session
// holds before further matches are dropped rather than queued.
const MailboxCapacity = 5

// mailbox is a bounded, non-blocking event queue for one session. A full
// mailbox never blocks the detector; it sets overflow and silently drops
// the event instead, exactly like the session registry's overflow flag.
type mailbox struct {
	mu       sync.Mutex
	events   []kline.DetectEvent
	overflow bool
}

func newMailbox() *mailbox {
	return &mailbox{}
}

// enqueue adds event if there is room, else sets overflow.
func (m *mailbox) enqueue(event kline.DetectEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.events) >= MailboxCapacity {
		m.overflow = true
		return
	}
	m.events = append(m.events, event)
}

// drain returns and clears every pending event along with whether any
// were dropped for overflow since the last drain.
func (m *mailbox) drain() ([]kline.DetectEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := m.events
	overflow := m.overflow
	m.events = nil
	m.overflow = false
	return events, overflow
}

// clear empties the mailbox without returning its contents, used when a
// session replaces its configuration — pending matches evaluated under the
// old filters must not surface under the new one.
func (m *mailbox) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
	m.overflow = false
}
