package realtime

import (
	"context"
	"log/slog"
	"sync"

	"chat-relay/contract"
	"chat-relay/domain"
)

// GroupMembership maps connections to the broadcast groups they are
// subscribed to. A single lock guards both indexes: add/remove volume
// is low relative to read fan-out frequency, so sharding by group is
// not worth the complexity here.
//
// Transport join/leave calls are issued outside the critical section
// and awaited together; individual failures are logged and swallowed.
// Membership bookkeeping is eventually consistent with the transport's
// actual routing.
type GroupMembership struct {
	mu      sync.Mutex
	byConn  map[string]map[domain.GroupName]struct{}
	byGroup map[domain.GroupName]map[string]*Conn

	broadcaster contract.Broadcaster
	log         *slog.Logger
}

func NewGroupMembership(log *slog.Logger, broadcaster contract.Broadcaster) *GroupMembership {
	return &GroupMembership{
		byConn:      make(map[string]map[domain.GroupName]struct{}),
		byGroup:     make(map[domain.GroupName]map[string]*Conn),
		broadcaster: broadcaster,
		log:         log,
	}
}

// AddToGroups records the associations and joins the transport groups.
func (g *GroupMembership) AddToGroups(ctx context.Context, conn *Conn, groups ...domain.GroupName) {
	if conn == nil || len(groups) == 0 {
		return
	}
	added := make([]domain.GroupName, 0, len(groups))

	g.mu.Lock()
	memberships, ok := g.byConn[conn.ID]
	if !ok {
		memberships = make(map[domain.GroupName]struct{})
		g.byConn[conn.ID] = memberships
	}
	for _, group := range groups {
		if _, ok := memberships[group]; ok {
			continue
		}
		memberships[group] = struct{}{}
		members, ok := g.byGroup[group]
		if !ok {
			members = make(map[string]*Conn)
			g.byGroup[group] = members
		}
		members[conn.ID] = conn
		added = append(added, group)
	}
	g.mu.Unlock()

	g.eachGroup(added, func(group domain.GroupName) {
		if err := g.broadcaster.AddConnectionToGroup(ctx, conn.ID, group); err != nil {
			g.log.Warn("Transport group join failed", "conn", conn.ID, "group", group, "err", err)
		}
	})
}

// RemoveFromGroups drops the associations and leaves the transport groups.
func (g *GroupMembership) RemoveFromGroups(ctx context.Context, conn *Conn, groups ...domain.GroupName) {
	if conn == nil || len(groups) == 0 {
		return
	}
	removed := make([]domain.GroupName, 0, len(groups))

	g.mu.Lock()
	for _, group := range groups {
		if g.removeLocked(conn.ID, group) {
			removed = append(removed, group)
		}
	}
	g.mu.Unlock()

	g.eachGroup(removed, func(group domain.GroupName) {
		if err := g.broadcaster.RemoveConnectionFromGroup(ctx, conn.ID, group); err != nil {
			g.log.Warn("Transport group leave failed", "conn", conn.ID, "group", group, "err", err)
		}
	})
}

// RemoveAll drops every association of the connection (disconnect path)
// and returns the groups it belonged to, so the caller can broadcast a
// presence transition to them.
func (g *GroupMembership) RemoveAll(ctx context.Context, conn *Conn) []domain.GroupName {
	if conn == nil {
		return nil
	}
	g.mu.Lock()
	memberships := g.byConn[conn.ID]
	removed := make([]domain.GroupName, 0, len(memberships))
	for group := range memberships {
		if g.removeLocked(conn.ID, group) {
			removed = append(removed, group)
		}
	}
	g.mu.Unlock()

	g.eachGroup(removed, func(group domain.GroupName) {
		if err := g.broadcaster.RemoveConnectionFromGroup(ctx, conn.ID, group); err != nil {
			g.log.Warn("Transport group leave failed", "conn", conn.ID, "group", group, "err", err)
		}
	})
	return removed
}

// ClearGroup removes every association of a group. Used when the
// group's backing entity (a deleted channel) is torn down.
func (g *GroupMembership) ClearGroup(ctx context.Context, group domain.GroupName) {
	g.mu.Lock()
	members := g.byGroup[group]
	connIDs := make([]string, 0, len(members))
	for connID := range members {
		connIDs = append(connIDs, connID)
	}
	for _, connID := range connIDs {
		g.removeLocked(connID, group)
	}
	g.mu.Unlock()

	var wg sync.WaitGroup
	for _, connID := range connIDs {
		wg.Add(1)
		go func(connID string) {
			defer wg.Done()
			if err := g.broadcaster.RemoveConnectionFromGroup(ctx, connID, group); err != nil {
				g.log.Warn("Transport group leave failed", "conn", connID, "group", group, "err", err)
			}
		}(connID)
	}
	wg.Wait()
}

// GetConnectionsForGroup returns a snapshot of the group's connections.
func (g *GroupMembership) GetConnectionsForGroup(group domain.GroupName) []*Conn {
	g.mu.Lock()
	defer g.mu.Unlock()
	members := g.byGroup[group]
	snapshot := make([]*Conn, 0, len(members))
	for _, conn := range members {
		snapshot = append(snapshot, conn)
	}
	return snapshot
}

// GroupsForConnection returns a snapshot of the connection's groups.
func (g *GroupMembership) GroupsForConnection(conn *Conn) []domain.GroupName {
	if conn == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	memberships := g.byConn[conn.ID]
	snapshot := make([]domain.GroupName, 0, len(memberships))
	for group := range memberships {
		snapshot = append(snapshot, group)
	}
	return snapshot
}

// removeLocked unlinks one association from both indexes. Empty index
// entries are deleted so nothing stale remains reachable.
func (g *GroupMembership) removeLocked(connID string, group domain.GroupName) bool {
	memberships, ok := g.byConn[connID]
	if !ok {
		return false
	}
	if _, ok := memberships[group]; !ok {
		return false
	}
	delete(memberships, group)
	if len(memberships) == 0 {
		delete(g.byConn, connID)
	}
	if members, ok := g.byGroup[group]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(g.byGroup, group)
		}
	}
	return true
}

// eachGroup issues one transport call per group concurrently and waits
// for all of them. Best-effort: failures are handled by the callback.
func (g *GroupMembership) eachGroup(groups []domain.GroupName, fn func(domain.GroupName)) {
	var wg sync.WaitGroup
	for _, group := range groups {
		wg.Add(1)
		go func(group domain.GroupName) {
			defer wg.Done()
			fn(group)
		}(group)
	}
	wg.Wait()
}
