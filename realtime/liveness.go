package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// WatchState is the liveness state of one watched connection.
type WatchState int

const (
	// Alive: the connection showed activity recently.
	Alive WatchState = iota
	// Waiting: a keepalive probe was sent, no answer yet.
	Waiting
	// Terminated: the connection exceeded the expiry threshold and has
	// been removed from the watch table.
	Terminated
)

type connWatch struct {
	conn         *Conn
	lastActivity time.Time
	state        WatchState
}

// ConnectionLiveness watches every connection for inactivity. After
// activityThreshold of silence a keepalive probe is sent once; after
// expireThreshold the connection is expired through the same
// deregistration path as an explicit disconnect. This bounds the
// staleness caused by peers whose transport never signalled closure.
type ConnectionLiveness struct {
	mu      sync.Mutex
	watches map[string]*connWatch

	activityThreshold time.Duration
	expireThreshold   time.Duration
	sweepInterval     time.Duration

	probe  func(ctx context.Context, conn *Conn)
	expire func(ctx context.Context, conn *Conn)

	now func() time.Time
	log *slog.Logger
}

func NewConnectionLiveness(log *slog.Logger, activityThreshold, expireThreshold, sweepInterval time.Duration) *ConnectionLiveness {
	return &ConnectionLiveness{
		watches:           make(map[string]*connWatch),
		activityThreshold: activityThreshold,
		expireThreshold:   expireThreshold,
		sweepInterval:     sweepInterval,
		now:               time.Now,
		log:               log,
	}
}

// SetCallbacks wires the probe (transport keepalive send) and expire
// (deregistration) paths. Must be called before Run.
func (l *ConnectionLiveness) SetCallbacks(probe, expire func(ctx context.Context, conn *Conn)) {
	l.probe = probe
	l.expire = expire
}

// Watch starts watching a connection, in the Alive state.
func (l *ConnectionLiveness) Watch(conn *Conn) {
	if conn == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.watches[conn.ID] = &connWatch{conn: conn, lastActivity: l.now(), state: Alive}
}

// Unwatch stops watching; used on explicit disconnect.
func (l *ConnectionLiveness) Unwatch(connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.watches, connID)
}

// OnPingReceived resets the watch to Alive. Called on explicit pings
// and on any implicit activity that proves the peer is there.
func (l *ConnectionLiveness) OnPingReceived(connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	watch, ok := l.watches[connID]
	if !ok {
		return
	}
	watch.lastActivity = l.now()
	watch.state = Alive
}

// State reports the current watch state of a connection.
func (l *ConnectionLiveness) State(connID string) (WatchState, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	watch, ok := l.watches[connID]
	if !ok {
		return Terminated, false
	}
	return watch.state, true
}

// Run executes the sweep loop at a fixed interval until the context is
// cancelled.
func (l *ConnectionLiveness) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Sweep(ctx)
		}
	}
}

// Sweep performs one pass over the watch table. Connections older than
// the expire barrier are removed and expired; Alive connections older
// than the activity barrier are probed once and marked Waiting.
// Probe and expire callbacks run outside the lock: they touch the
// transport and the registries, never the watch table.
func (l *ConnectionLiveness) Sweep(ctx context.Context) {
	now := l.now()
	activityBarrier := now.Add(-l.activityThreshold)
	expireBarrier := now.Add(-l.expireThreshold)

	var toProbe, toExpire []*Conn

	l.mu.Lock()
	for connID, watch := range l.watches {
		switch {
		case watch.lastActivity.Before(expireBarrier):
			watch.state = Terminated
			delete(l.watches, connID)
			toExpire = append(toExpire, watch.conn)
		case watch.lastActivity.Before(activityBarrier) && watch.state == Alive:
			watch.state = Waiting
			toProbe = append(toProbe, watch.conn)
		}
	}
	l.mu.Unlock()

	for _, conn := range toProbe {
		l.log.Debug("Sending keepalive probe", "conn", conn.ID)
		if l.probe != nil {
			l.probe(ctx, conn)
		}
	}
	for _, conn := range toExpire {
		l.log.Info("Expiring stale connection", "conn", conn.ID, "subject", conn.Subject())
		if l.expire != nil {
			l.expire(ctx, conn)
		}
	}
}
