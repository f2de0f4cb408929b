package overflow

import "github.com/lixenwraith/barrager/config"

// Entry is a high-priority fragment waiting for a lane
type Entry struct {
	Content string
	Options config.Options
}

// Queue is an unbounded FIFO of entries in arrival order
// No deduplication, no expiry; the owning scheduler serializes access
type Queue struct {
	items []Entry
	head  int
}

// New creates an empty queue
func New() *Queue {
	return &Queue{}
}

// Enqueue appends e at the tail
func (q *Queue) Enqueue(e Entry) {
	q.items = append(q.items, e)
}

// Dequeue removes and returns the head entry
func (q *Queue) Dequeue() (Entry, bool) {
	if q.head >= len(q.items) {
		return Entry{}, false
	}
	e := q.items[q.head]
	q.items[q.head] = Entry{}
	q.head++

	// Compact once the consumed prefix dominates the backing array
	if q.head > 32 && q.head*2 >= len(q.items) {
		q.items = append(q.items[:0:0], q.items[q.head:]...)
		q.head = 0
	}
	return e, true
}

// Peek returns the head entry without removing it
func (q *Queue) Peek() (Entry, bool) {
	if q.head >= len(q.items) {
		return Entry{}, false
	}
	return q.items[q.head], true
}

// Len returns the number of waiting entries
func (q *Queue) Len() int {
	return len(q.items) - q.head
}

// Clear drops every waiting entry
func (q *Queue) Clear() {
	q.items = nil
	q.head = 0
}
