package window

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-relay/domain"
)

func makeMessages(channelID domain.SubjectID, base time.Time, count int) []domain.Message {
	messages := make([]domain.Message, count)
	for i := range messages {
		messages[i] = domain.Message{
			ID:        domain.NewSubjectID(),
			ChannelID: channelID,
			SenderID:  domain.NewSubjectID(),
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return messages
}

// assertConsistent checks the id-set/ordered-map invariant: same ids in
// both structures, ascending order, size within bounds.
func assertConsistent(req *require.Assertions, w *MessageWindow, max int) {
	messages := w.Messages()
	req.Len(w.ids, len(messages))
	req.LessOrEqual(len(messages), max)
	for i, msg := range messages {
		req.True(w.Contains(msg.ID))
		if i > 0 {
			req.True(messages[i-1].Before(msg))
		}
	}
}

func TestMessageWindow_IntegrateDeduplicates(t *testing.T) {
	req := require.New(t)
	channel := domain.NewSubjectID()
	base := time.Now().UTC()
	w := NewMessageWindow(128)
	batch := makeMessages(channel, base, 10)

	added, evicted := w.Integrate(batch, true, false)
	req.Equal(10, added)
	req.Zero(evicted)

	// The same batch again changes nothing
	added, evicted = w.Integrate(batch, true, false)
	req.Zero(added)
	req.Zero(evicted)
	req.Equal(10, w.Len())
	assertConsistent(req, w, 128)
}

func TestMessageWindow_OutOfOrderIntegrationStaysSorted(t *testing.T) {
	req := require.New(t)
	channel := domain.NewSubjectID()
	base := time.Now().UTC()
	w := NewMessageWindow(128)
	batch := makeMessages(channel, base, 8)

	// Interleave: newest half first
	w.Integrate(batch[4:], true, false)
	w.Integrate(batch[:4], true, false)

	messages := w.Messages()
	req.Len(messages, 8)
	for i := range messages {
		req.Equal(batch[i].ID, messages[i].ID)
	}
	assertConsistent(req, w, 128)
}

func TestMessageWindow_BoundedEvictionOldestEnd(t *testing.T) {
	req := require.New(t)
	channel := domain.NewSubjectID()
	base := time.Now().UTC()
	w := NewMessageWindow(128)

	full := makeMessages(channel, base, 128)
	w.Integrate(full, true, false)
	req.Equal(128, w.Len())

	// Given a full window, ten newer messages evict exactly the ten oldest
	newer := makeMessages(channel, base.Add(129*time.Minute), 10)
	added, evicted := w.Integrate(newer, true, false)
	req.Equal(10, added)
	req.Equal(10, evicted)
	req.Equal(128, w.Len())

	for _, msg := range full[:10] {
		req.False(w.Contains(msg.ID))
	}
	for _, msg := range newer {
		req.True(w.Contains(msg.ID))
	}
	assertConsistent(req, w, 128)
}

func TestMessageWindow_BoundedEvictionNewestEnd(t *testing.T) {
	req := require.New(t)
	channel := domain.NewSubjectID()
	base := time.Now().UTC()
	w := NewMessageWindow(16)

	newer := makeMessages(channel, base.Add(time.Hour), 16)
	w.Integrate(newer, false, false)

	// Paginating backwards keeps the oldest end
	older := makeMessages(channel, base, 4)
	added, evicted := w.Integrate(older, false, false)
	req.Equal(4, added)
	req.Equal(4, evicted)
	req.Equal(16, w.Len())

	for _, msg := range older {
		req.True(w.Contains(msg.ID))
	}
	for _, msg := range newer[12:] {
		req.False(w.Contains(msg.ID))
	}
	assertConsistent(req, w, 16)
}

func TestMessageWindow_ReplaceExistingOverwritesInPlace(t *testing.T) {
	req := require.New(t)
	channel := domain.NewSubjectID()
	base := time.Now().UTC()
	w := NewMessageWindow(128)
	batch := makeMessages(channel, base, 3)
	w.Integrate(batch, true, false)

	edited := batch[1]
	edited.Content = "edited content"

	// Without replaceExisting the duplicate is silently ignored
	added, _ := w.Integrate([]domain.Message{edited}, true, false)
	req.Zero(added)
	req.Equal("message 1", w.Messages()[1].Content)

	// With replaceExisting it overwrites in place
	added, _ = w.Integrate([]domain.Message{edited}, true, true)
	req.Zero(added)
	req.Equal("edited content", w.Messages()[1].Content)
	req.Equal(3, w.Len())
}

func TestMessageWindow_CoversIsStrictlyInside(t *testing.T) {
	req := require.New(t)
	channel := domain.NewSubjectID()
	base := time.Now().UTC()
	w := NewMessageWindow(128)

	req.False(w.Covers(base))

	w.Integrate(makeMessages(channel, base, 5), true, false)
	oldest, _ := w.OldestAt()
	newest, _ := w.NewestAt()

	req.True(w.Covers(base.Add(2 * time.Minute)))
	req.False(w.Covers(oldest))
	req.False(w.Covers(newest))
	req.False(w.Covers(newest.Add(time.Hour)))
}

func TestMessageWindow_RemoveKeepsBothStructures(t *testing.T) {
	req := require.New(t)
	channel := domain.NewSubjectID()
	base := time.Now().UTC()
	w := NewMessageWindow(128)
	batch := makeMessages(channel, base, 5)
	w.Integrate(batch, true, false)

	req.True(w.Remove(batch[2].ID))
	req.False(w.Remove(batch[2].ID))
	req.Equal(4, w.Len())
	req.False(w.Contains(batch[2].ID))
	assertConsistent(req, w, 128)
}
