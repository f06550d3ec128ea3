package mood

import "time"

// HistoryCapacity is the number of events a History keeps.
const HistoryCapacity = 10

// History is a bounded, insertion-ordered log of accepted events. When full,
// recording evicts the oldest entry. It is not safe for concurrent use; the
// session event loop owns it.
type History struct {
	events   []Event
	capacity int
}

// NewHistory creates an empty history with the default capacity.
func NewHistory() *History {
	return NewHistoryWithCapacity(HistoryCapacity)
}

// NewHistoryWithCapacity creates an empty history holding at most n events.
func NewHistoryWithCapacity(n int) *History {
	if n <= 0 {
		n = HistoryCapacity
	}
	return &History{
		events:   make([]Event, 0, n),
		capacity: n,
	}
}

// Record appends e, evicting the oldest event on overflow.
func (h *History) Record(e Event) {
	if len(h.events) == h.capacity {
		copy(h.events, h.events[1:])
		h.events = h.events[:len(h.events)-1]
	}
	h.events = append(h.events, e)
}

// Recent returns a copy of the log, most recent last.
func (h *History) Recent() []Event {
	out := make([]Event, len(h.events))
	copy(out, h.events)
	return out
}

// RecentFirst returns a copy of the log, most recent first (display order).
func (h *History) RecentFirst() []Event {
	out := make([]Event, len(h.events))
	for i, e := range h.events {
		out[len(h.events)-1-i] = e
	}
	return out
}

// Latest returns the most recently recorded event.
func (h *History) Latest() (Event, bool) {
	if len(h.events) == 0 {
		return Event{}, false
	}
	return h.events[len(h.events)-1], true
}

// Len returns the number of events held.
func (h *History) Len() int {
	return len(h.events)
}

// Capacity returns the maximum number of events held.
func (h *History) Capacity() int {
	return h.capacity
}

// Dominant returns the most frequent category in the window. Ties go to the
// category seen most recently.
func (h *History) Dominant() (Category, bool) {
	if len(h.events) == 0 {
		return "", false
	}
	counts := make(map[Category]int, len(allCategories))
	lastSeen := make(map[Category]int, len(allCategories))
	for i, e := range h.events {
		counts[e.Category]++
		lastSeen[e.Category] = i
	}

	var best Category
	bestCount := -1
	for c, n := range counts {
		if n > bestCount || (n == bestCount && lastSeen[c] > lastSeen[best]) {
			best, bestCount = c, n
		}
	}
	return best, true
}

// Span returns the time between the oldest and newest events.
func (h *History) Span() time.Duration {
	if len(h.events) < 2 {
		return 0
	}
	return h.events[len(h.events)-1].Timestamp.Sub(h.events[0].Timestamp)
}
