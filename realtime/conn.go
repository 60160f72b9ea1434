// Package realtime tracks live connections: which subject owns them,
// which broadcast groups they belong to, whether they are still alive,
// and the presence transitions that follow from all of that.
package realtime

import (
	"sync"

	"chat-relay/domain"
)

// Conn is a non-owning handle on one live network session. The transport
// layer creates it at upgrade time; the realtime layer only bookkeeps it.
type Conn struct {
	// ID is the transport-level identifier, unique per session.
	ID string

	mu      sync.Mutex
	subject domain.SubjectID
}

func NewConn(id string) *Conn {
	return &Conn{ID: id}
}

// Bind attaches the authenticated subject to the handle. The zero
// subject means "no identity" and is never bound.
func (c *Conn) Bind(subject domain.SubjectID) {
	if subject.IsZero() {
		return
	}
	c.mu.Lock()
	c.subject = subject
	c.mu.Unlock()
}

// Subject returns the bound identity, or the zero value when the
// connection is unauthenticated.
func (c *Conn) Subject() domain.SubjectID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subject
}
