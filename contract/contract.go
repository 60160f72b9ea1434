//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"chat-relay/domain"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Direction selects which side of a reference timestamp a message query
// covers. Both directions are inclusive at the boundary.
type Direction int

const (
	Older Direction = iota
	Newer
)

// ChannelDirectory resolves channel membership for a user.
type ChannelDirectory interface {
	GetChannelsForUser(ctx context.Context, userID domain.SubjectID) ([]domain.SubjectID, error)
	IsMember(ctx context.Context, channelID, userID domain.SubjectID) (bool, error)
}

// MessageStore is the persistence collaborator for message history and
// read horizons. QueryMessages returns messages ordered by timestamp
// ascending; the reference boundary is inclusive in both directions.
type MessageStore interface {
	QueryMessages(ctx context.Context, channelID domain.SubjectID, reference time.Time, direction Direction, limit int) ([]domain.Message, error)
	CreateMessage(ctx context.Context, channelID, senderID domain.SubjectID, content string) (domain.Message, error)
	UpdateReadHorizon(ctx context.Context, channelID, userID domain.SubjectID, ts time.Time) (bool, error)
}

// Broadcaster is the transport fan-out collaborator. All calls are
// best-effort: a delivery failure never invalidates the caller's
// bookkeeping.
type Broadcaster interface {
	SendToGroup(ctx context.Context, group domain.GroupName, eventName string, payload any) error
	AddConnectionToGroup(ctx context.Context, connID string, group domain.GroupName) error
	RemoveConnectionFromGroup(ctx context.Context, connID string, group domain.GroupName) error
}
