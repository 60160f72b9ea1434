package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"chat-relay/contract"
	"chat-relay/domain"
	relayerrors "chat-relay/errors"
)

// horizonRetries bounds the optimistic-transaction retry loop of
// UpdateReadHorizon under write contention.
const horizonRetries = 5

// MessageRepository implements contract.MessageStore on BadgerDB.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// CreateMessage persists a new message with a fresh id and a server
// timestamp, and returns the stored record.
func (m *MessageRepository) CreateMessage(ctx context.Context, channelID, senderID domain.SubjectID, content string) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	msg := domain.Message{
		ID:        domain.NewSubjectID(),
		ChannelID: channelID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: m.now(),
	}
	if err := m.StoreMessage(msg); err != nil {
		return domain.Message{}, fmt.Errorf("create message: %w", err)
	}
	return msg, nil
}

// StoreMessage persists an already-formed message record.
func (m *MessageRepository) StoreMessage(msg domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := messageKey(msg.ChannelID, msg.CreatedAt, msg.ID)
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// QueryMessages returns up to limit messages on one side of the
// reference timestamp, ascending. The boundary is inclusive in both
// directions: a message stamped exactly at the reference is returned.
func (m *MessageRepository) QueryMessages(ctx context.Context, channelID domain.SubjectID, reference time.Time, direction contract.Direction, limit int) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var raw [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(channelID)
		options := badger.DefaultIteratorOptions
		options.Reverse = direction == contract.Older

		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		if direction == contract.Older {
			seekKey = messageSeekUpper(channelID, reference)
		} else {
			seekKey = messageSeekLower(channelID, reference)
		}

		for it.Seek(seekKey); it.ValidForPrefix(prefix) && len(raw) < limit; it.Next() {
			err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	messages := make([]domain.Message, 0, len(raw))
	for _, data := range raw {
		var msg domain.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		messages = append(messages, msg)
	}
	// The reverse scan collected newest-first; callers always get
	// ascending order.
	if direction == contract.Older {
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
	}
	return messages, nil
}

// DeleteMessage removes a message record. The timestamp is part of the
// key, so the caller must pass the stored CreatedAt.
func (m *MessageRepository) DeleteMessage(msg domain.Message) error {
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(messageKey(msg.ChannelID, msg.CreatedAt, msg.ID))
	})
}

// UpdateReadHorizon advances the participation's last-read timestamp
// and reports whether it moved. The horizon is monotonic: an older
// timestamp leaves the record untouched and returns false. Runs inside
// an optimistic transaction, retried on write conflicts.
func (m *MessageRepository) UpdateReadHorizon(ctx context.Context, channelID, userID domain.SubjectID, ts time.Time) (bool, error) {
	key := participationKey(channelID, userID)
	for attempt := 0; attempt < horizonRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		var moved bool
		err := m.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			if err != nil {
				return err
			}
			var participation domain.Participation
			err = item.Value(func(value []byte) error {
				return json.Unmarshal(value, &participation)
			})
			if err != nil {
				return err
			}
			if !participation.AdvanceReadHorizon(ts) {
				moved = false
				return nil
			}
			data, err := json.Marshal(participation)
			if err != nil {
				return err
			}
			moved = true
			return txn.Set(key, data)
		})
		switch {
		case err == nil:
			return moved, nil
		case err == badger.ErrKeyNotFound:
			// Not a participant; silently no new data.
			return false, nil
		case err == badger.ErrConflict:
			continue
		default:
			return false, fmt.Errorf("update read horizon: %w", err)
		}
	}
	return false, relayerrors.ErrHorizonUpdateRetry
}

// GetParticipation reads the membership record for (channel, user).
func (m *MessageRepository) GetParticipation(channelID, userID domain.SubjectID) (domain.Participation, bool, error) {
	var participation domain.Participation
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(participationKey(channelID, userID))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &participation)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Participation{}, false, nil
	}
	if err != nil {
		return domain.Participation{}, false, err
	}
	return participation, true, nil
}
