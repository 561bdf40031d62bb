package queue

import "math/rand"

// RepeatMode mirrors the player's repeat cycle.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatOne
	RepeatAll
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	}
	return "off"
}

// Queue is an ordered sequence of items with a cursor. It is not safe for
// concurrent use; the owning player serializes access under its own lock.
type Queue struct {
	items  []*Item
	index  int
	repeat RepeatMode

	shuffled bool
	backup   []*Item
}

func New(items ...*Item) *Queue {
	q := &Queue{}
	q.Append(items...)
	return q
}

func (q *Queue) Size() int     { return len(q.items) }
func (q *Queue) IsEmpty() bool { return len(q.items) == 0 }
func (q *Queue) Index() int    { return q.index }

func (q *Queue) RepeatMode() RepeatMode     { return q.repeat }
func (q *Queue) SetRepeatMode(m RepeatMode) { q.repeat = m }

// Item returns the item under the cursor, or nil on an empty queue.
func (q *Queue) Item() *Item {
	return q.At(q.index)
}

// At returns the item at position i, or nil when out of range.
func (q *Queue) At(i int) *Item {
	if i < 0 || i >= len(q.items) {
		return nil
	}
	return q.items[i]
}

// Append adds items to the end of the queue preserving their order.
func (q *Queue) Append(items ...*Item) {
	for _, it := range items {
		if it == nil {
			continue
		}
		q.items = append(q.items, it)
		if q.shuffled {
			q.backup = append(q.backup, it)
		}
	}
}

// Remove deletes the item at position i. Removing before the cursor shifts
// the cursor back so the current item keeps playing; removing the current
// item leaves the cursor in place (now addressing the next item), clamped to
// the new end.
func (q *Queue) Remove(i int) {
	if i < 0 || i >= len(q.items) {
		return
	}
	removed := q.items[i]
	q.items = append(q.items[:i], q.items[i+1:]...)
	if q.shuffled {
		for bi, it := range q.backup {
			if it == removed {
				q.backup = append(q.backup[:bi], q.backup[bi+1:]...)
				break
			}
		}
	}
	switch {
	case i < q.index:
		q.index--
	case q.index >= len(q.items) && q.index > 0:
		q.index = len(q.items) - 1
	}
}

// SetIndex moves the cursor to i, clamping to the last position. On an empty
// queue it is a no-op.
func (q *Queue) SetIndex(i int) {
	if len(q.items) == 0 {
		return
	}
	if i < 0 {
		i = 0
	}
	if i >= len(q.items) {
		i = len(q.items) - 1
	}
	q.index = i
}

// OffsetIndex moves the cursor by delta. Under repeat-all the cursor wraps
// around both ends; otherwise it clamps at the boundaries.
func (q *Queue) OffsetIndex(delta int) {
	if len(q.items) == 0 {
		return
	}
	next := q.index + delta
	if q.repeat == RepeatAll {
		next %= len(q.items)
		if next < 0 {
			next += len(q.items)
		}
		q.index = next
		return
	}
	q.SetIndex(next)
}

// IndexOf locates an item by identity first, then by URL equality.
// Returns -1 when absent.
func (q *Queue) IndexOf(item *Item) int {
	if item == nil {
		return -1
	}
	for i, it := range q.items {
		if it == item {
			return i
		}
	}
	for i, it := range q.items {
		if it.URL == item.URL {
			return i
		}
	}
	return -1
}

func (q *Queue) IsShuffled() bool { return q.shuffled }

// Shuffle reorders the queue randomly, keeping the current item as the item
// under the cursor by moving it to the front. The pre-shuffle ordering is
// retained for Unshuffle.
func (q *Queue) Shuffle() {
	if q.shuffled || len(q.items) < 2 {
		return
	}
	current := q.Item()

	q.backup = make([]*Item, len(q.items))
	copy(q.backup, q.items)

	rand.Shuffle(len(q.items), func(i, j int) {
		q.items[i], q.items[j] = q.items[j], q.items[i]
	})

	if pos := q.IndexOf(current); pos > 0 {
		q.items[0], q.items[pos] = q.items[pos], q.items[0]
	}
	q.index = 0
	q.shuffled = true
}

// Unshuffle restores the pre-shuffle ordering and points the cursor back at
// the item that was playing.
func (q *Queue) Unshuffle() {
	if !q.shuffled {
		return
	}
	current := q.Item()

	q.items = q.backup
	q.backup = nil
	q.shuffled = false

	if pos := q.IndexOf(current); pos >= 0 {
		q.index = pos
	} else {
		q.index = 0
	}
}

// SetRecovery stores a resume offset in milliseconds for the item at
// position i. A later SetRecovery for the same position supersedes it.
func (q *Queue) SetRecovery(i int, positionMs int64) {
	it := q.At(i)
	if it == nil {
		return
	}
	it.recoveryPosition = positionMs
}

// ResetRecovery returns the item at position i to the unset sentinel.
func (q *Queue) ResetRecovery(i int) {
	q.SetRecovery(i, RecoveryUnset)
}
