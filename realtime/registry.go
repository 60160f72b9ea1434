package realtime

import (
	"log/slog"
	"sync"

	"chat-relay/domain"
)

// ConnectionBag holds every live connection of one subject. Each bag
// has its own lock, so operations on different subjects never contend.
type ConnectionBag struct {
	mu    sync.Mutex
	conns map[string]*Conn
	// dead marks a bag that has been emptied and detached from the
	// registry map; a caller that raced the removal must retry against
	// the fresh bag instead of mutating this one.
	dead bool
}

func newConnectionBag() *ConnectionBag {
	return &ConnectionBag{conns: make(map[string]*Conn)}
}

// ConnectionRegistry maps a subject id to its bag of live connections.
// The outer map has its own lock used only for bag lookup/insertion;
// all per-subject mutation happens under the bag's lock.
type ConnectionRegistry struct {
	mu   sync.RWMutex
	bags map[domain.SubjectID]*ConnectionBag
	log  *slog.Logger
}

func NewConnectionRegistry(log *slog.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		bags: make(map[domain.SubjectID]*ConnectionBag),
		log:  log,
	}
}

// lockedBag returns the subject's bag with its lock held, creating it
// if absent. The caller must unlock it.
func (r *ConnectionRegistry) lockedBag(subjectID domain.SubjectID) *ConnectionBag {
	for {
		r.mu.RLock()
		bag := r.bags[subjectID]
		r.mu.RUnlock()

		if bag == nil {
			r.mu.Lock()
			bag = r.bags[subjectID]
			if bag == nil {
				bag = newConnectionBag()
				r.bags[subjectID] = bag
			}
			r.mu.Unlock()
		}

		bag.mu.Lock()
		if bag.dead {
			bag.mu.Unlock()
			continue
		}
		return bag
	}
}

// RegisterConnection idempotently adds the handle to the subject's bag
// and reports whether the subject just transitioned to "present"
// (the bag was empty before). Registering under the zero subject is a
// silent no-op: an unauthenticated connection has no presence.
func (r *ConnectionRegistry) RegisterConnection(subjectID domain.SubjectID, conn *Conn) bool {
	if subjectID.IsZero() || conn == nil {
		return false
	}
	bag := r.lockedBag(subjectID)
	defer bag.mu.Unlock()

	if _, ok := bag.conns[conn.ID]; ok {
		return false
	}
	wasEmpty := len(bag.conns) == 0
	bag.conns[conn.ID] = conn
	return wasEmpty
}

// UnregisterConnection removes the handle and reports whether the
// subject just transitioned to "absent" (the bag became empty). An
// empty bag is detached from the registry so no stale entry persists.
func (r *ConnectionRegistry) UnregisterConnection(subjectID domain.SubjectID, conn *Conn) bool {
	if subjectID.IsZero() || conn == nil {
		return false
	}
	r.mu.RLock()
	bag := r.bags[subjectID]
	r.mu.RUnlock()
	if bag == nil {
		return false
	}

	bag.mu.Lock()
	if bag.dead {
		bag.mu.Unlock()
		return false
	}
	if _, ok := bag.conns[conn.ID]; !ok {
		bag.mu.Unlock()
		return false
	}
	delete(bag.conns, conn.ID)
	becameEmpty := len(bag.conns) == 0
	if becameEmpty {
		bag.dead = true
	}
	bag.mu.Unlock()

	if becameEmpty {
		r.mu.Lock()
		if r.bags[subjectID] == bag {
			delete(r.bags, subjectID)
		}
		r.mu.Unlock()
	}
	return becameEmpty
}

// IsPresent reports whether the subject has at least one live connection.
func (r *ConnectionRegistry) IsPresent(subjectID domain.SubjectID) bool {
	r.mu.RLock()
	bag := r.bags[subjectID]
	r.mu.RUnlock()
	if bag == nil {
		return false
	}
	bag.mu.Lock()
	defer bag.mu.Unlock()
	return !bag.dead && len(bag.conns) > 0
}

// GetConnections returns a snapshot of the subject's connections taken
// under the bag lock. Callers never see internal structures, so they
// may iterate freely while other goroutines mutate the registry.
func (r *ConnectionRegistry) GetConnections(subjectID domain.SubjectID) []*Conn {
	r.mu.RLock()
	bag := r.bags[subjectID]
	r.mu.RUnlock()
	if bag == nil {
		return nil
	}
	bag.mu.Lock()
	defer bag.mu.Unlock()
	if bag.dead {
		return nil
	}
	snapshot := make([]*Conn, 0, len(bag.conns))
	for _, c := range bag.conns {
		snapshot = append(snapshot, c)
	}
	return snapshot
}

// Stats returns the number of present subjects and the total number of
// registered connections, for telemetry.
func (r *ConnectionRegistry) Stats() (subjects, connections int) {
	r.mu.RLock()
	bags := make([]*ConnectionBag, 0, len(r.bags))
	for _, bag := range r.bags {
		bags = append(bags, bag)
	}
	r.mu.RUnlock()

	for _, bag := range bags {
		bag.mu.Lock()
		if !bag.dead && len(bag.conns) > 0 {
			subjects++
			connections += len(bag.conns)
		}
		bag.mu.Unlock()
	}
	return subjects, connections
}
