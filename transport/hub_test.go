package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-relay/domain"
	"chat-relay/errors"
)

// Sessions under test never touch their socket: only the outbox is
// exercised, so a nil websocket.Conn is fine.
func newTestSession(hub *Hub) *Session {
	session := newSession(hub, nil, slog.Default())
	hub.register(session)
	return session
}

func receivedFrame(t *testing.T, session *Session) Frame {
	t.Helper()
	select {
	case data := <-session.send:
		var frame Frame
		require.NoError(t, json.Unmarshal(data, &frame))
		return frame
	default:
		t.Fatal("expected a frame in the outbox")
		return Frame{}
	}
}

func TestHub_SendToGroupReachesOnlyMembers(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	hub := NewHub(slog.Default())
	group := domain.UserGroup(domain.NewSubjectID())

	member := newTestSession(hub)
	outsider := newTestSession(hub)
	req.NoError(hub.AddConnectionToGroup(ctx, member.ID, group))

	payload := map[string]string{"hello": "world"}
	req.NoError(hub.SendToGroup(ctx, group, "test.event", payload))

	frame := receivedFrame(t, member)
	req.Equal("test.event", frame.Event)
	var decoded map[string]string
	req.NoError(json.Unmarshal(frame.Data, &decoded))
	req.Equal(payload, decoded)

	select {
	case <-outsider.send:
		t.Fatal("outsider received a group frame")
	default:
	}
}

func TestHub_UnknownConnectionCannotJoin(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	hub := NewHub(slog.Default())
	group := domain.UserGroup(domain.NewSubjectID())

	err := hub.AddConnectionToGroup(ctx, "no-such-conn", group)
	req.ErrorIs(err, errors.ErrUnknownConnection)

	// Leaving a group never joined is a no-op
	req.NoError(hub.RemoveConnectionFromGroup(ctx, "no-such-conn", group))
}

func TestHub_DropRemovesFromEveryGroup(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	hub := NewHub(slog.Default())
	groupA := domain.UserGroup(domain.NewSubjectID())
	groupB := domain.ChannelGroup(domain.NewSubjectID())

	session := newTestSession(hub)
	req.NoError(hub.AddConnectionToGroup(ctx, session.ID, groupA))
	req.NoError(hub.AddConnectionToGroup(ctx, session.ID, groupB))

	hub.drop(session)

	req.NoError(hub.SendToGroup(ctx, groupA, "test.event", nil))
	req.NoError(hub.SendToGroup(ctx, groupB, "test.event", nil))
	select {
	case <-session.send:
		t.Fatal("dropped session received a frame")
	default:
	}

	err := hub.SendToConn(session.ID, "test.event", nil)
	req.ErrorIs(err, errors.ErrUnknownConnection)
}

func TestHub_SendToConn(t *testing.T) {
	req := require.New(t)
	hub := NewHub(slog.Default())
	session := newTestSession(hub)

	req.NoError(hub.SendToConn(session.ID, "ping", nil))
	frame := receivedFrame(t, session)
	req.Equal("ping", frame.Event)
	req.Empty(frame.Data)
}

func TestHub_SendToClosedSessionNeverPanics(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	hub := NewHub(slog.Default())
	group := domain.UserGroup(domain.NewSubjectID())
	session := newTestSession(hub)
	req.NoError(hub.AddConnectionToGroup(ctx, session.ID, group))

	// The expiry path closes the session while it is still routable;
	// broadcasts racing that close must be dropped, not panic.
	session.close()
	session.close() // idempotent

	req.NoError(hub.SendToGroup(ctx, group, "test.event", nil))
	req.NoError(hub.SendToConn(session.ID, "test.event", nil))
	select {
	case <-session.send:
		t.Fatal("closed session accepted a frame")
	default:
	}
}

func TestHub_FullOutboxDropsInsteadOfBlocking(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	hub := NewHub(slog.Default())
	group := domain.UserGroup(domain.NewSubjectID())
	session := newTestSession(hub)
	req.NoError(hub.AddConnectionToGroup(ctx, session.ID, group))

	// One more than the outbox holds: must return, not block
	for i := 0; i <= outboxSize; i++ {
		req.NoError(hub.SendToGroup(ctx, group, "test.event", nil))
	}
	req.Len(session.send, outboxSize)
}
