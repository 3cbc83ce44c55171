package repositories

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"duochat/domain"
	"duochat/errors"
)

// diskChat is the stored shape of a chat row. The participant pair lives
// inside the row, so one point read answers GetParticipants.
type diskChat struct {
	ID           uuid.UUID    `json:"id"`
	CreatedAt    time.Time    `json:"created_at"`
	Participants [2]uuid.UUID `json:"participants"`
}

func chatKey(id uuid.UUID) []byte {
	return []byte("chat:" + id.String())
}

// pairKey is the dedup guard for one-to-one chats: the two participant IDs
// in lexical order always hash to the same key, whichever user creates the
// chat first.
func pairKey(a, b uuid.UUID) []byte {
	lo, hi := a.String(), b.String()
	if lo > hi {
		lo, hi = hi, lo
	}
	return []byte("pair:" + lo + ":" + hi)
}

func userChatKey(userID, chatID uuid.UUID) []byte {
	return []byte("userchats:" + userID.String() + ":" + chatID.String())
}

// CreateChat creates the one chat between two users. If the pair already
// owns a chat, that chat is returned instead of a duplicate: the pair key
// guards even callers that skipped FindExistingChat.
func (s *Store) CreateChat(ctx context.Context, userA, userB uuid.UUID) (domain.Chat, error) {
	if userA == userB {
		return domain.Chat{}, errors.ErrSelfChat
	}

	chat := domain.Chat{
		ID:           uuid.New(),
		CreatedAt:    time.Now().UTC(),
		Participants: [2]uuid.UUID{userA, userB},
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(pairKey(userA, userB))
		if err == nil {
			return item.Value(func(v []byte) error {
				existingID, err := uuid.Parse(string(v))
				if err != nil {
					return err
				}
				existing, err := getChat(txn, existingID)
				if err != nil {
					return err
				}
				chat = existing
				return nil
			})
		}

		bytes, err := json.Marshal(diskChat{ID: chat.ID, CreatedAt: chat.CreatedAt, Participants: chat.Participants})
		if err != nil {
			return err
		}
		if err := txn.Set(chatKey(chat.ID), bytes); err != nil {
			return err
		}
		if err := txn.Set(pairKey(userA, userB), []byte(chat.ID.String())); err != nil {
			return err
		}
		if err := txn.Set(userChatKey(userA, chat.ID), nil); err != nil {
			return err
		}
		return txn.Set(userChatKey(userB, chat.ID), nil)
	})
	if err != nil {
		return domain.Chat{}, err
	}
	return chat, nil
}

// FindExistingChat resolves the chat between two users, if any.
func (s *Store) FindExistingChat(ctx context.Context, userA, userB uuid.UUID) (uuid.UUID, bool, error) {
	var chatID uuid.UUID
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pairKey(userA, userB))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		return item.Value(func(v []byte) error {
			id, err := uuid.Parse(string(v))
			if err != nil {
				return err
			}
			chatID = id
			found = true
			return nil
		})
	})
	return chatID, found, err
}

// ListParticipantChats scans the user's membership index.
func (s *Store) ListParticipantChats(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var chatIDs []uuid.UUID
	prefix := []byte("userchats:" + userID.String() + ":")
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			raw := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
			id, err := uuid.Parse(raw)
			if err != nil {
				return err
			}
			chatIDs = append(chatIDs, id)
		}
		return nil
	})
	return chatIDs, err
}

// GetChats resolves chat rows by ID. Unknown IDs are skipped, not errors:
// a chat deleted between the listing and this call should not sink the
// whole chat list.
func (s *Store) GetChats(ctx context.Context, ids []uuid.UUID) ([]domain.Chat, error) {
	var chats []domain.Chat
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			chat, err := getChat(txn, id)
			if err != nil {
				if err == errors.ErrChatNotFound {
					continue
				}
				return err
			}
			chats = append(chats, chat)
		}
		return nil
	})
	return chats, err
}

// GetParticipants returns the two members of a chat.
func (s *Store) GetParticipants(ctx context.Context, chatID uuid.UUID) ([]uuid.UUID, error) {
	var participants []uuid.UUID
	err := s.db.View(func(txn *badger.Txn) error {
		chat, err := getChat(txn, chatID)
		if err != nil {
			return err
		}
		participants = chat.Participants[:]
		return nil
	})
	return participants, err
}

func getChat(txn *badger.Txn, id uuid.UUID) (domain.Chat, error) {
	item, err := txn.Get(chatKey(id))
	if err != nil {
		return domain.Chat{}, errors.ErrChatNotFound
	}
	var row diskChat
	if err := item.Value(func(v []byte) error {
		return json.Unmarshal(v, &row)
	}); err != nil {
		return domain.Chat{}, err
	}
	return domain.Chat{ID: row.ID, CreatedAt: row.CreatedAt, Participants: row.Participants}, nil
}
