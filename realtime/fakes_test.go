package realtime

import (
	"context"
	"sync"

	"chat-relay/domain"
)

// recordingBroadcaster captures every transport call, safe for the
// concurrent fan-out the components under test perform.
type recordingBroadcaster struct {
	mu     sync.Mutex
	sends  []sentEvent
	joins  map[domain.GroupName][]string
	leaves map[domain.GroupName][]string
	err    error
}

type sentEvent struct {
	group   domain.GroupName
	event   string
	payload any
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{
		joins:  make(map[domain.GroupName][]string),
		leaves: make(map[domain.GroupName][]string),
	}
}

func (b *recordingBroadcaster) SendToGroup(_ context.Context, group domain.GroupName, eventName string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sends = append(b.sends, sentEvent{group: group, event: eventName, payload: payload})
	return b.err
}

func (b *recordingBroadcaster) AddConnectionToGroup(_ context.Context, connID string, group domain.GroupName) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.joins[group] = append(b.joins[group], connID)
	return b.err
}

func (b *recordingBroadcaster) RemoveConnectionFromGroup(_ context.Context, connID string, group domain.GroupName) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaves[group] = append(b.leaves[group], connID)
	return b.err
}

func (b *recordingBroadcaster) sentEvents(eventName string) []sentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []sentEvent
	for _, s := range b.sends {
		if s.event == eventName {
			out = append(out, s)
		}
	}
	return out
}

// staticDirectory answers membership lookups from a fixed map.
type staticDirectory struct {
	channels map[domain.SubjectID][]domain.SubjectID
	err      error
}

func (d *staticDirectory) GetChannelsForUser(_ context.Context, userID domain.SubjectID) ([]domain.SubjectID, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.channels[userID], nil
}

func (d *staticDirectory) IsMember(_ context.Context, channelID, userID domain.SubjectID) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	for _, ch := range d.channels[userID] {
		if ch == channelID {
			return true, nil
		}
	}
	return false, nil
}
