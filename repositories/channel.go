package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"chat-relay/domain"
)

// ChannelRepository implements contract.ChannelDirectory on BadgerDB.
// Membership is stored twice: the participation record under the
// channel, and a reverse index entry under the user for the
// GetChannelsForUser scan.
type ChannelRepository struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time
}

func NewChannelRepository(db *badger.DB, log *slog.Logger) *ChannelRepository {
	return &ChannelRepository{db: db, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// JoinChannel creates the participation record. Joining twice keeps the
// original join timestamp and read horizon.
func (c *ChannelRepository) JoinChannel(ctx context.Context, channelID, userID domain.SubjectID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	participation := domain.Participation{
		ChannelID: channelID,
		UserID:    userID,
		JoinedAt:  c.now(),
	}
	data, err := json.Marshal(participation)
	if err != nil {
		return err
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(participationKey(channelID, userID)); err == nil {
			return nil // already a member
		}
		if err := txn.Set(participationKey(channelID, userID), data); err != nil {
			return err
		}
		return txn.Set(userChannelKey(userID, channelID), nil)
	})
	if err != nil {
		return fmt.Errorf("join channel: %w", err)
	}
	return nil
}

// LeaveChannel removes both the participation record and the reverse
// index entry.
func (c *ChannelRepository) LeaveChannel(ctx context.Context, channelID, userID domain.SubjectID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(participationKey(channelID, userID)); err != nil {
			return err
		}
		return txn.Delete(userChannelKey(userID, channelID))
	})
	if err != nil {
		return fmt.Errorf("leave channel: %w", err)
	}
	return nil
}

func (c *ChannelRepository) IsMember(ctx context.Context, channelID, userID domain.SubjectID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := c.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(participationKey(channelID, userID))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("membership lookup: %w", err)
	}
	return true, nil
}

// GetChannelsForUser scans the reverse index. The channel id is the
// key suffix; values are empty.
func (c *ChannelRepository) GetChannelsForUser(ctx context.Context, userID domain.SubjectID) ([]domain.SubjectID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var channels []domain.SubjectID
	prefix := userChannelPrefix(userID)
	err := c.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false // keys carry everything we need

		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			suffix := string(it.Item().Key()[len(prefix):])
			channelID, err := domain.ParseSubjectID(suffix)
			if err != nil {
				c.log.Warn("Skipping malformed membership key", "key", string(it.Item().Key()))
				continue
			}
			channels = append(channels, channelID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("channels for user: %w", err)
	}
	return channels, nil
}
