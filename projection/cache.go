// Package projection builds local views from query results and observed events.
// Handles ordering, deduplication, and derived aggregates.
// Does not emit events or interact with UI directly.
package projection

import (
	"iter"
	"sort"

	"github.com/google/uuid"

	"duochat/domain"
	"duochat/domain/event"
)

// MessageCache is the ordered, deduplicated view of one chat's messages.
// It is scoped to a single chat and owned by a single event loop, so it
// does no locking. The gateway remains the source of truth: the cache can
// always be rebuilt wholesale through Load.
type MessageCache struct {
	chatID   uuid.UUID
	messages []domain.Message
}

func NewMessageCache(chatID uuid.UUID) *MessageCache {
	return &MessageCache{chatID: chatID}
}

func (c *MessageCache) ChatID() uuid.UUID {
	return c.chatID
}

// Load replaces the cache with a freshly queried history. The gateway
// already returns ascending order; sorting again keeps the invariant even
// against a misbehaving collaborator.
func (c *MessageCache) Load(messages []domain.Message) {
	c.messages = make([]domain.Message, len(messages))
	copy(c.messages, messages)
	sort.Slice(c.messages, func(i, j int) bool {
		return c.messages[i].Before(c.messages[j])
	})
}

// Merge applies one bus event. Inserts land at their sort position, updates
// replace the status of the existing row in place. Re-applying the same
// event any number of times leaves the cache unchanged, and a stale update
// can never move a status backward. Events belonging to another chat are
// ignored; the caller still forwards those to the chat list aggregator.
func (c *MessageCache) Merge(e event.BusEvent) bool {
	var msg domain.Message
	switch evt := e.(type) {
	case event.MessageInserted:
		msg = evt.Message
	case event.MessageUpdated:
		msg = evt.Message
	default:
		return false
	}
	if msg.ChatID != c.chatID {
		return false
	}
	return c.apply(msg)
}

// apply upserts one row. Position is found by binary search on
// (CreatedAt, ID); CreatedAt is immutable so an update always lands on
// the row it targets without moving it.
func (c *MessageCache) apply(msg domain.Message) bool {
	pos := sort.Search(len(c.messages), func(i int) bool {
		return !c.messages[i].Before(msg)
	})
	if pos < len(c.messages) && c.messages[pos].ID == msg.ID {
		existing := &c.messages[pos]
		if existing.Status == msg.Status || !existing.Status.CanAdvanceTo(msg.Status) {
			return false
		}
		existing.Status = msg.Status
		return true
	}

	c.messages = append(c.messages, domain.Message{})
	copy(c.messages[pos+1:], c.messages[pos:])
	c.messages[pos] = msg
	return true
}

func (c *MessageCache) Len() int {
	return len(c.messages)
}

// Get returns the cached row for an identifier, if present.
func (c *MessageCache) Get(id uuid.UUID) (domain.Message, bool) {
	for _, m := range c.messages {
		if m.ID == id {
			return m, true
		}
	}
	return domain.Message{}, false
}

// Snapshot copies the current state for readers outside the owning loop.
func (c *MessageCache) Snapshot() []domain.Message {
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// All yields the cached messages in order. The sequence is restartable and
// stops early when the consumer does.
func (c *MessageCache) All() iter.Seq[domain.Message] {
	return func(yield func(domain.Message) bool) {
		for _, m := range c.messages {
			if !yield(m) {
				return
			}
		}
	}
}
