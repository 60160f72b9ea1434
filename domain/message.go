// Package domain contains core concepts of the realtime chat core.
// This file defines Message records and related rules.
package domain

import "time"

// Message represents one chat message as stored and broadcast.
type Message struct {
	ID        SubjectID `json:"id"`
	ChannelID SubjectID `json:"channelId"`
	SenderID  SubjectID `json:"senderId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Before orders messages by timestamp, breaking ties by id so the
// ordering is total and stable across processes.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID.Compare(other.ID) < 0
}
