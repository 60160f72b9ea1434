// Package transport carries wire events over websocket connections and
// implements the broadcast-group routing the realtime layer fans out to.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/samber/lo"

	"chat-relay/domain"
	"chat-relay/errors"
)

// Frame is the wire envelope of every event in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeFrame(eventName string, payload any) ([]byte, error) {
	frame := Frame{Event: eventName}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		frame.Data = data
	}
	return json.Marshal(frame)
}

// Hub owns the transport-side routing table: session id to session, and
// group name to member sessions. It implements contract.Broadcaster.
// Group routing here is deliberately independent of the realtime
// layer's bookkeeping; the two converge through the join/leave calls.
type Hub struct {
	log *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	groups   map[domain.GroupName]map[string]*Session
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:      log,
		sessions: make(map[string]*Session),
		groups:   make(map[domain.GroupName]map[string]*Session),
	}
}

func (h *Hub) register(session *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[session.ID] = session
}

// drop removes the session from every group and from the session table.
func (h *Hub) drop(session *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, session.ID)
	for group, members := range h.groups {
		delete(members, session.ID)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
}

// AddConnectionToGroup subscribes a live session to a group.
func (h *Hub) AddConnectionToGroup(_ context.Context, connID string, group domain.GroupName) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	session, ok := h.sessions[connID]
	if !ok {
		return errors.ErrUnknownConnection
	}
	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]*Session)
		h.groups[group] = members
	}
	members[connID] = session
	return nil
}

// RemoveConnectionFromGroup unsubscribes a session from a group.
func (h *Hub) RemoveConnectionFromGroup(_ context.Context, connID string, group domain.GroupName) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.groups[group]
	if !ok {
		return nil
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.groups, group)
	}
	return nil
}

// SendToGroup encodes the event once and enqueues it on every member
// session. Enqueueing is best-effort: a full outbox drops the frame for
// that session rather than blocking the fan-out.
func (h *Hub) SendToGroup(_ context.Context, group domain.GroupName, eventName string, payload any) error {
	data, err := encodeFrame(eventName, payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := lo.Values(h.groups[group])
	h.mu.RUnlock()

	for _, session := range targets {
		session.enqueue(data)
	}
	return nil
}

// closeSession closes the session's socket if it is still registered.
// Used by the liveness expiry path; the read loop's exit then drives the
// normal deregistration.
func (h *Hub) closeSession(connID string) {
	h.mu.RLock()
	session, ok := h.sessions[connID]
	h.mu.RUnlock()
	if ok {
		session.close()
	}
}

// SendToConn enqueues one event on a single session. Used for the
// keepalive probe and for direct replies.
func (h *Hub) SendToConn(connID string, eventName string, payload any) error {
	data, err := encodeFrame(eventName, payload)
	if err != nil {
		return err
	}
	h.mu.RLock()
	session, ok := h.sessions[connID]
	h.mu.RUnlock()
	if !ok {
		return errors.ErrUnknownConnection
	}
	session.enqueue(data)
	return nil
}
