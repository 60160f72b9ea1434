// Package event defines the wire events exchanged with clients.
// Event names are part of the protocol and must not change.
package event

import (
	"time"

	"chat-relay/domain"
)

const (
	PresenceChangedName    = "presence.changed"
	MessageIncomingName    = "message.incoming"
	MessageUpdatedName     = "message.updated"
	MessageDeletedName     = "message.deleted"
	ReadHorizonChangedName = "readhorizon.changed"
	PingName               = "ping"
	PongName               = "pong"

	// Client-to-server requests.
	MessageSendName        = "message.send"
	ReadHorizonAdvanceName = "readhorizon.advance"
)

type MessageSend struct {
	ChannelID domain.SubjectID `json:"channelId"`
	Content   string           `json:"content"`
}

type ReadHorizonAdvance struct {
	ChannelID       domain.SubjectID `json:"channelId"`
	TimestampMillis int64            `json:"timestampMillis"`
}

type PresenceChanged struct {
	SubjectID domain.SubjectID `json:"subjectId"`
	Online    bool             `json:"online"`
}

type MessageIncoming struct {
	Message domain.Message `json:"message"`
}

type MessageUpdated struct {
	Message domain.Message `json:"message"`
}

type MessageDeleted struct {
	ChannelID domain.SubjectID `json:"channelId"`
	MessageID domain.SubjectID `json:"messageId"`
}

type ReadHorizonChanged struct {
	ChannelID       domain.SubjectID `json:"channelId"`
	UserID          domain.SubjectID `json:"userId"`
	TimestampMillis int64            `json:"timestampMillis"`
}

func NewReadHorizonChanged(channelID, userID domain.SubjectID, ts time.Time) ReadHorizonChanged {
	return ReadHorizonChanged{
		ChannelID:       channelID,
		UserID:          userID,
		TimestampMillis: ts.UnixMilli(),
	}
}
