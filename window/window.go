// Package window maintains the bounded, time-ordered, deduplicated view
// of one channel's messages that drives the active conversation view.
package window

import (
	"sort"
	"time"

	"chat-relay/domain"
)

// MessageWindow is the in-memory message view: an id set plus a
// timestamp-ordered slice. Both structures always hold exactly the same
// message ids; every mutation goes through helpers that update them
// together. The window is not safe for concurrent use; the service
// serializes access.
type MessageWindow struct {
	max     int
	ids     map[domain.SubjectID]struct{}
	ordered []domain.Message
}

func NewMessageWindow(max int) *MessageWindow {
	return &MessageWindow{
		max: max,
		ids: make(map[domain.SubjectID]struct{}),
	}
}

func (w *MessageWindow) Len() int {
	return len(w.ordered)
}

func (w *MessageWindow) Contains(id domain.SubjectID) bool {
	_, ok := w.ids[id]
	return ok
}

// OldestAt returns the timestamp of the oldest loaded message.
func (w *MessageWindow) OldestAt() (time.Time, bool) {
	if len(w.ordered) == 0 {
		return time.Time{}, false
	}
	return w.ordered[0].CreatedAt, true
}

// NewestAt returns the timestamp of the newest loaded message.
func (w *MessageWindow) NewestAt() (time.Time, bool) {
	if len(w.ordered) == 0 {
		return time.Time{}, false
	}
	return w.ordered[len(w.ordered)-1].CreatedAt, true
}

// Covers reports whether ts falls strictly between the oldest and
// newest loaded timestamps, i.e. a checkout at ts is already satisfied.
func (w *MessageWindow) Covers(ts time.Time) bool {
	oldest, ok := w.OldestAt()
	if !ok {
		return false
	}
	newest, _ := w.NewestAt()
	return ts.After(oldest) && ts.Before(newest)
}

// Messages returns a copy of the loaded messages in ascending order.
func (w *MessageWindow) Messages() []domain.Message {
	out := make([]domain.Message, len(w.ordered))
	copy(out, w.ordered)
	return out
}

// Integrate merges a batch into the window. New ids are inserted in
// order; known ids are overwritten in place when replaceExisting is set
// (edit/translate updates) and silently ignored otherwise. Afterwards
// the window is trimmed back to its maximum from the oldest end when
// truncateOlder is set, else from the newest end. Returns how many
// messages were added and how many evicted, so the caller can decide
// whether anything actually changed.
func (w *MessageWindow) Integrate(batch []domain.Message, truncateOlder, replaceExisting bool) (added, evicted int) {
	for _, msg := range batch {
		if _, ok := w.ids[msg.ID]; ok {
			if replaceExisting {
				w.overwrite(msg)
			}
			continue
		}
		w.insert(msg)
		added++
	}
	for len(w.ordered) > w.max {
		if truncateOlder {
			w.removeAt(0)
		} else {
			w.removeAt(len(w.ordered) - 1)
		}
		evicted++
	}
	return added, evicted
}

// Remove drops one message by id (message-deleted handling).
func (w *MessageWindow) Remove(id domain.SubjectID) bool {
	if _, ok := w.ids[id]; !ok {
		return false
	}
	for i := range w.ordered {
		if w.ordered[i].ID == id {
			w.removeAt(i)
			return true
		}
	}
	// ids and ordered diverged; prevented by construction.
	panic("window: id set and ordered map out of sync")
}

// Clear empties the window (channel view switch).
func (w *MessageWindow) Clear() {
	w.ids = make(map[domain.SubjectID]struct{})
	w.ordered = w.ordered[:0]
}

func (w *MessageWindow) insert(msg domain.Message) {
	idx := sort.Search(len(w.ordered), func(i int) bool {
		return msg.Before(w.ordered[i])
	})
	w.ordered = append(w.ordered, domain.Message{})
	copy(w.ordered[idx+1:], w.ordered[idx:])
	w.ordered[idx] = msg
	w.ids[msg.ID] = struct{}{}
}

func (w *MessageWindow) overwrite(msg domain.Message) {
	for i := range w.ordered {
		if w.ordered[i].ID == msg.ID {
			w.ordered[i].Content = msg.Content
			return
		}
	}
}

// removeAt deletes from both structures together, never one without
// the other.
func (w *MessageWindow) removeAt(i int) {
	delete(w.ids, w.ordered[i].ID)
	w.ordered = append(w.ordered[:i], w.ordered[i+1:]...)
}
