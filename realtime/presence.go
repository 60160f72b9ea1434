package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samber/lo"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
)

// PresenceCoordinator owns the connect/disconnect choreography: it
// updates the registry and group membership, starts liveness watching,
// and emits a presence-changed broadcast exactly once per actual
// online/offline transition, never once per connection.
type PresenceCoordinator struct {
	log         *slog.Logger
	registry    *ConnectionRegistry
	groups      *GroupMembership
	liveness    *ConnectionLiveness
	directory   contract.ChannelDirectory
	broadcaster contract.Broadcaster
}

func NewPresenceCoordinator(
	log *slog.Logger,
	registry *ConnectionRegistry,
	groups *GroupMembership,
	liveness *ConnectionLiveness,
	directory contract.ChannelDirectory,
	broadcaster contract.Broadcaster,
) *PresenceCoordinator {
	return &PresenceCoordinator{
		log:         log,
		registry:    registry,
		groups:      groups,
		liveness:    liveness,
		directory:   directory,
		broadcaster: broadcaster,
	}
}

// OnConnected registers a freshly authenticated connection. A zero
// subject is a valid transient handshake state and no-ops.
func (p *PresenceCoordinator) OnConnected(ctx context.Context, conn *Conn, subjectID domain.SubjectID) {
	if conn == nil || subjectID.IsZero() {
		return
	}
	conn.Bind(subjectID)

	// The per-bag lock serializes this test-and-set against concurrent
	// connects for the same subject, so only one of them observes the
	// empty-to-nonempty transition.
	cameOnline := p.registry.RegisterConnection(subjectID, conn)

	groups := p.resolveGroups(ctx, subjectID)
	p.groups.AddToGroups(ctx, conn, groups...)

	if cameOnline {
		p.broadcastPresence(ctx, groups, subjectID, true)
	}
	p.liveness.Watch(conn)
	p.log.Debug("Connection registered", "conn", conn.ID, "subject", subjectID, "cameOnline", cameOnline)
}

// OnDisconnected tears a connection down. It is the single
// deregistration path, shared by explicit closes and liveness expiry.
func (p *PresenceCoordinator) OnDisconnected(ctx context.Context, conn *Conn) {
	if conn == nil {
		return
	}
	p.liveness.Unwatch(conn.ID)
	left := p.groups.RemoveAll(ctx, conn)

	subjectID := conn.Subject()
	if subjectID.IsZero() {
		return
	}
	wentOffline := p.registry.UnregisterConnection(subjectID, conn)
	if wentOffline {
		p.broadcastPresence(ctx, left, subjectID, false)
	}
	p.log.Debug("Connection deregistered", "conn", conn.ID, "subject", subjectID, "wentOffline", wentOffline)
}

// ExpireConnection is the liveness termination path. Same semantics as
// an explicit disconnect.
func (p *PresenceCoordinator) ExpireConnection(ctx context.Context, conn *Conn) {
	p.OnDisconnected(ctx, conn)
}

// resolveGroups returns the subject's own user group plus one group per
// channel it belongs to. A directory failure degrades to the user group
// alone; membership fan-out is eventually consistent.
func (p *PresenceCoordinator) resolveGroups(ctx context.Context, subjectID domain.SubjectID) []domain.GroupName {
	groups := []domain.GroupName{domain.UserGroup(subjectID)}
	channels, err := p.directory.GetChannelsForUser(ctx, subjectID)
	if err != nil {
		p.log.Warn("Channel membership lookup failed", "subject", subjectID, "err", err)
		return groups
	}
	return append(groups, lo.Map(channels, func(channelID domain.SubjectID, _ int) domain.GroupName {
		return domain.ChannelGroup(channelID)
	})...)
}

// broadcastPresence fans the transition out to every group, one
// concurrent best-effort send per group.
func (p *PresenceCoordinator) broadcastPresence(ctx context.Context, groups []domain.GroupName, subjectID domain.SubjectID, online bool) {
	payload := event.PresenceChanged{SubjectID: subjectID, Online: online}
	var wg sync.WaitGroup
	for _, group := range groups {
		wg.Add(1)
		go func(group domain.GroupName) {
			defer wg.Done()
			if err := p.broadcaster.SendToGroup(ctx, group, event.PresenceChangedName, payload); err != nil {
				p.log.Warn("Presence broadcast failed", "group", group, "err", err)
			}
		}(group)
	}
	wg.Wait()
}
