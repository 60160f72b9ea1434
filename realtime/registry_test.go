package realtime

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-relay/domain"
)

func TestConnectionRegistry_RegisterAndUnregisterTransitions(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry(slog.Default())
	subject := domain.NewSubjectID()
	connA := NewConn("conn-a")
	connB := NewConn("conn-b")

	// Given no connection is registered
	req.False(registry.IsPresent(subject))

	// When the first connection registers, the subject comes online
	req.True(registry.RegisterConnection(subject, connA))
	req.True(registry.IsPresent(subject))

	// Registering the same handle again is an idempotent no-op
	req.False(registry.RegisterConnection(subject, connA))

	// A second connection is not a transition
	req.False(registry.RegisterConnection(subject, connB))
	req.Len(registry.GetConnections(subject), 2)

	// Removing one of two connections keeps the subject present
	req.False(registry.UnregisterConnection(subject, connA))
	req.True(registry.IsPresent(subject))

	// Removing the last connection is the offline transition
	req.True(registry.UnregisterConnection(subject, connB))
	req.False(registry.IsPresent(subject))
	req.Empty(registry.GetConnections(subject))
}

func TestConnectionRegistry_NoStaleEmptyBag(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry(slog.Default())
	subject := domain.NewSubjectID()
	conn := NewConn("conn-a")

	registry.RegisterConnection(subject, conn)
	registry.UnregisterConnection(subject, conn)

	// The empty bag must be gone entirely, not linger with zero members
	subjects, connections := registry.Stats()
	req.Zero(subjects)
	req.Zero(connections)

	// And the subject can come back online afterwards
	req.True(registry.RegisterConnection(subject, conn))
}

func TestConnectionRegistry_ZeroSubjectNoOps(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry(slog.Default())
	conn := NewConn("conn-a")

	req.False(registry.RegisterConnection(domain.SubjectID{}, conn))
	req.False(registry.IsPresent(domain.SubjectID{}))
	req.False(registry.UnregisterConnection(domain.SubjectID{}, conn))
}

func TestConnectionRegistry_UnknownSubjectAndHandle(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry(slog.Default())
	subject := domain.NewSubjectID()

	req.False(registry.UnregisterConnection(subject, NewConn("ghost")))
	req.Nil(registry.GetConnections(subject))

	registry.RegisterConnection(subject, NewConn("conn-a"))
	// Unregistering a handle that never registered is not a transition
	req.False(registry.UnregisterConnection(subject, NewConn("ghost")))
	req.True(registry.IsPresent(subject))
}

func TestConnectionRegistry_ConcurrentChurnStaysConsistent(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry(slog.Default())
	subject := domain.NewSubjectID()

	const n = 64
	var wg sync.WaitGroup
	var mu sync.Mutex
	onlineTransitions, offlineTransitions := 0, 0

	// N goroutines each register then unregister their own connection.
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := NewConn(fmt.Sprintf("conn-%d", i))
			first := registry.RegisterConnection(subject, conn)
			last := registry.UnregisterConnection(subject, conn)
			mu.Lock()
			if first {
				onlineTransitions++
			}
			if last {
				offlineTransitions++
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	// Every observed online transition has a matching offline one, and
	// the registry ends empty.
	req.Equal(onlineTransitions, offlineTransitions)
	req.GreaterOrEqual(onlineTransitions, 1)
	req.False(registry.IsPresent(subject))
	subjects, connections := registry.Stats()
	req.Zero(subjects)
	req.Zero(connections)
}
