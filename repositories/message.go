package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"duochat/domain"
	"duochat/domain/event"
	"duochat/errors"
)

// diskMessage is the stored shape of a message row.
type diskMessage struct {
	ID             uuid.UUID     `json:"id"`
	ChatID         uuid.UUID     `json:"chat_id"`
	SenderID       uuid.UUID     `json:"sender_id"`
	Content        *string       `json:"content,omitempty"`
	AttachmentURL  *string       `json:"attachment_url,omitempty"`
	AttachmentType *string       `json:"attachment_type,omitempty"`
	At             time.Time     `json:"at"`
	Status         domain.Status `json:"status"`
}

// messageKey is formatted as "msg:{chat_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using the message UUID as a collision
//     disconnector if two messages land on the same nanosecond.
func messageKey(chatID uuid.UUID, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", chatID, at.UnixNano(), id))
}

// messageIDKey is the secondary index resolving a message ID to its row key.
func messageIDKey(id uuid.UUID) []byte {
	return []byte("msgid:" + id.String())
}

func chatPrefix(chatID uuid.UUID) []byte {
	return []byte("msg:" + chatID.String() + ":")
}

// InsertMessage creates a message with status sent and announces it on the
// chat's topic. The sender never mutates the row again after this.
func (s *Store) InsertMessage(ctx context.Context, chatID, senderID uuid.UUID, content *string, attachment *domain.AttachmentRef) (domain.Message, error) {
	msg := domain.Message{
		ID:         uuid.New(),
		ChatID:     chatID,
		SenderID:   senderID,
		Content:    content,
		Attachment: attachment,
		CreatedAt:  time.Now().UTC(),
		Status:     domain.StatusSent,
	}
	row := fromMessage(msg)
	bytes, err := json.Marshal(row)
	if err != nil {
		return domain.Message{}, err
	}

	key := messageKey(chatID, msg.CreatedAt, msg.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(chatKey(chatID)); err != nil {
			return errors.ErrChatNotFound
		}
		if err := txn.Set(key, bytes); err != nil {
			return err
		}
		return txn.Set(messageIDKey(msg.ID), key)
	})
	if err != nil {
		return domain.Message{}, err
	}

	s.publish(event.MessageInserted{Message: msg})
	return msg, nil
}

// ListMessages returns the full history of a chat. Thanks to the padded
// timestamp in the key, a forward prefix scan comes out already sorted.
func (s *Store) ListMessages(ctx context.Context, chatID uuid.UUID) ([]domain.Message, error) {
	var messages []domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := chatPrefix(chatID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			msg, err := decodeMessage(it.Item())
			if err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	return messages, err
}

// GetLatestMessage seeks the highest possible timestamp for the chat and
// walks backwards one step, so only a single row is read.
func (s *Store) GetLatestMessage(ctx context.Context, chatID uuid.UUID) (*domain.Message, error) {
	var latest *domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := chatPrefix(chatID)
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		it.Seek(seekKey)
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		msg, err := decodeMessage(it.Item())
		if err != nil {
			return err
		}
		latest = &msg
		return nil
	})
	return latest, err
}

// CountMessages counts rows in a chat not authored by notSender whose
// status is in statuses. This is the unread-count query.
func (s *Store) CountMessages(ctx context.Context, chatID, notSender uuid.UUID, statuses []domain.Status) (int, error) {
	wanted := statusSet(statuses)
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := chatPrefix(chatID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			msg, err := decodeMessage(it.Item())
			if err != nil {
				return err
			}
			if msg.SenderID == notSender {
				continue
			}
			if _, ok := wanted[msg.Status]; ok {
				count++
			}
		}
		return nil
	})
	return count, err
}

// UpdateMessageStatus conditionally advances one message. When the current
// status is not in allowedPrior the row is left untouched and changed=false
// is returned with a nil error: the desired end state was already reached,
// possibly by a concurrent writer.
func (s *Store) UpdateMessageStatus(ctx context.Context, id uuid.UUID, to domain.Status, allowedPrior []domain.Status) (bool, error) {
	prior := statusSet(allowedPrior)
	var updated *domain.Message
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(messageIDKey(id))
		if err != nil {
			return errors.ErrMessageNotFound
		}
		var rowKey []byte
		if err := item.Value(func(v []byte) error {
			rowKey = append([]byte{}, v...)
			return nil
		}); err != nil {
			return err
		}

		rowItem, err := txn.Get(rowKey)
		if err != nil {
			return errors.ErrMessageNotFound
		}
		msg, err := decodeMessage(rowItem)
		if err != nil {
			return err
		}
		if _, ok := prior[msg.Status]; !ok {
			return nil
		}
		if !msg.Status.CanAdvanceTo(to) {
			return errors.ErrStatusRegression
		}

		msg.Status = to
		bytes, err := json.Marshal(fromMessage(msg))
		if err != nil {
			return err
		}
		if err := txn.Set(rowKey, bytes); err != nil {
			return err
		}
		updated = &msg
		return nil
	})
	if err != nil {
		return false, err
	}
	if updated == nil {
		return false, nil
	}

	s.publish(event.MessageUpdated{Message: *updated})
	return true, nil
}

// UpdateChatStatuses advances every qualifying message in a chat in a
// single transaction: not authored by notSender, current status in
// allowedPrior. One update event is published per changed row.
func (s *Store) UpdateChatStatuses(ctx context.Context, chatID, notSender uuid.UUID, allowedPrior []domain.Status, to domain.Status) ([]domain.Message, error) {
	prior := statusSet(allowedPrior)
	var changed []domain.Message
	err := s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := chatPrefix(chatID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			msg, err := decodeMessage(it.Item())
			if err != nil {
				return err
			}
			if msg.SenderID == notSender {
				continue
			}
			if _, ok := prior[msg.Status]; !ok {
				continue
			}
			if !msg.Status.CanAdvanceTo(to) {
				return errors.ErrStatusRegression
			}

			msg.Status = to
			bytes, err := json.Marshal(fromMessage(msg))
			if err != nil {
				return err
			}
			key := append([]byte{}, it.Item().Key()...)
			if err := txn.Set(key, bytes); err != nil {
				return err
			}
			changed = append(changed, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, msg := range changed {
		s.publish(event.MessageUpdated{Message: msg})
	}
	return changed, nil
}

func decodeMessage(item *badger.Item) (domain.Message, error) {
	var row diskMessage
	if err := item.Value(func(v []byte) error {
		return json.Unmarshal(v, &row)
	}); err != nil {
		return domain.Message{}, err
	}
	return toMessage(row), nil
}

func statusSet(statuses []domain.Status) map[domain.Status]struct{} {
	set := make(map[domain.Status]struct{}, len(statuses))
	for _, st := range statuses {
		set[st] = struct{}{}
	}
	return set
}

func fromMessage(msg domain.Message) diskMessage {
	row := diskMessage{
		ID:       msg.ID,
		ChatID:   msg.ChatID,
		SenderID: msg.SenderID,
		Content:  msg.Content,
		At:       msg.CreatedAt,
		Status:   msg.Status,
	}
	if msg.Attachment != nil {
		row.AttachmentURL = &msg.Attachment.URL
		row.AttachmentType = &msg.Attachment.MimeType
	}
	return row
}

func toMessage(row diskMessage) domain.Message {
	msg := domain.Message{
		ID:        row.ID,
		ChatID:    row.ChatID,
		SenderID:  row.SenderID,
		Content:   row.Content,
		CreatedAt: row.At,
		Status:    row.Status,
	}
	if row.AttachmentURL != nil && row.AttachmentType != nil {
		msg.Attachment = &domain.AttachmentRef{URL: *row.AttachmentURL, MimeType: *row.AttachmentType}
	}
	return msg
}
