// Package repositories persists messages and channel membership in
// BadgerDB. Keys embed a zero-padded nanosecond timestamp so that a
// plain lexicographic prefix scan yields chronological order.
package repositories

import (
	"fmt"
	"time"

	"chat-relay/domain"
)

// messageKey is "msg:{channel}:{padded-ts}:{id}". The padded timestamp
// keeps keys sorted by time; the id disambiguates two messages that
// land on the same nanosecond.
func messageKey(channelID domain.SubjectID, at time.Time, id domain.SubjectID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", channelID, at.UnixNano(), id))
}

func messagePrefix(channelID domain.SubjectID) []byte {
	return []byte(fmt.Sprintf("msg:%s:", channelID))
}

// messageSeekUpper is the largest possible key at the given timestamp,
// so a reverse seek lands on the newest message with ts <= at. The
// boundary is inclusive.
func messageSeekUpper(channelID domain.SubjectID, at time.Time) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:\xff", channelID, at.UnixNano()))
}

// messageSeekLower sorts before every id at the given timestamp, so a
// forward seek lands on the oldest message with ts >= at. Inclusive.
func messageSeekLower(channelID domain.SubjectID, at time.Time) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:", channelID, at.UnixNano()))
}

// participationKey is "part:{channel}:{user}".
func participationKey(channelID, userID domain.SubjectID) []byte {
	return []byte(fmt.Sprintf("part:%s:%s", channelID, userID))
}

// userChannelKey is "chans:{user}:{channel}", the reverse index used by
// GetChannelsForUser.
func userChannelKey(userID, channelID domain.SubjectID) []byte {
	return []byte(fmt.Sprintf("chans:%s:%s", userID, channelID))
}

func userChannelPrefix(userID domain.SubjectID) []byte {
	return []byte(fmt.Sprintf("chans:%s:", userID))
}
