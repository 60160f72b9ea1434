package repositories

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-relay/domain"
)

func TestChannelRepository_JoinLeaveMembership(t *testing.T) {
	req := require.New(t)
	repo := NewChannelRepository(openTestDB(t), slog.Default())
	ctx := context.Background()
	channel := domain.NewSubjectID()
	user := domain.NewSubjectID()

	member, err := repo.IsMember(ctx, channel, user)
	req.NoError(err)
	req.False(member)

	req.NoError(repo.JoinChannel(ctx, channel, user))
	member, err = repo.IsMember(ctx, channel, user)
	req.NoError(err)
	req.True(member)

	req.NoError(repo.LeaveChannel(ctx, channel, user))
	member, err = repo.IsMember(ctx, channel, user)
	req.NoError(err)
	req.False(member)
}

func TestChannelRepository_JoinIsIdempotent(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	channels := NewChannelRepository(db, slog.Default())
	messages := NewMessageRepository(db, slog.Default())
	ctx := context.Background()
	channel := domain.NewSubjectID()
	user := domain.NewSubjectID()
	horizon := time.Now().UTC().Truncate(time.Millisecond)

	req.NoError(channels.JoinChannel(ctx, channel, user))
	moved, err := messages.UpdateReadHorizon(ctx, channel, user, horizon)
	req.NoError(err)
	req.True(moved)

	// Re-joining keeps the existing participation, horizon included
	req.NoError(channels.JoinChannel(ctx, channel, user))
	participation, found, err := messages.GetParticipation(channel, user)
	req.NoError(err)
	req.True(found)
	req.Equal(horizon, participation.LastReadAt.Truncate(time.Millisecond))
}

func TestChannelRepository_GetChannelsForUser(t *testing.T) {
	req := require.New(t)
	repo := NewChannelRepository(openTestDB(t), slog.Default())
	ctx := context.Background()
	user := domain.NewSubjectID()
	other := domain.NewSubjectID()

	channelA := domain.NewSubjectID()
	channelB := domain.NewSubjectID()
	channelC := domain.NewSubjectID()
	req.NoError(repo.JoinChannel(ctx, channelA, user))
	req.NoError(repo.JoinChannel(ctx, channelB, user))
	req.NoError(repo.JoinChannel(ctx, channelC, other))

	channels, err := repo.GetChannelsForUser(ctx, user)
	req.NoError(err)
	req.ElementsMatch([]domain.SubjectID{channelA, channelB}, channels)

	// Leaving keeps the reverse index consistent
	req.NoError(repo.LeaveChannel(ctx, channelA, user))
	channels, err = repo.GetChannelsForUser(ctx, user)
	req.NoError(err)
	req.ElementsMatch([]domain.SubjectID{channelB}, channels)

	// A user with no memberships gets an empty slice
	channels, err = repo.GetChannelsForUser(ctx, domain.NewSubjectID())
	req.NoError(err)
	req.Empty(channels)
}
