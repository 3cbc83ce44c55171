package event

import (
	"github.com/google/uuid"

	"duochat/domain"
)

// TopicPresence is the single shared topic every client joins for heartbeats.
const TopicPresence = "presence:online"

// TopicMessages is the table-wide change feed: every message insert or
// update lands here as well as on its chat topic. The chat list aggregator
// listens here to catch status changes across all of a user's chats.
const TopicMessages = "messages"

// ChatTopic scopes message events to one chat.
func ChatTopic(chatID uuid.UUID) string {
	return "chat:" + chatID.String()
}

// BusEvent is anything delivered by the realtime event bus.
type BusEvent interface {
	Topic() string
}

// MessageInserted is emitted when a new message row appears.
type MessageInserted struct {
	Message domain.Message
}

func (e MessageInserted) Topic() string {
	return ChatTopic(e.Message.ChatID)
}

// MessageUpdated is emitted when a message row changes, in practice only
// its delivery status.
type MessageUpdated struct {
	Message domain.Message
}

func (e MessageUpdated) Topic() string {
	return ChatTopic(e.Message.ChatID)
}

// PresenceJoined announces new sessions under a user key.
type PresenceJoined struct {
	Key      uuid.UUID
	Sessions []domain.Session
}

func (e PresenceJoined) Topic() string { return TopicPresence }

// PresenceLeft announces sessions that disappeared under a user key.
type PresenceLeft struct {
	Key      uuid.UUID
	Sessions []domain.Session
}

func (e PresenceLeft) Topic() string { return TopicPresence }

// PresenceSynced carries the full session table, replacing local state wholesale.
type PresenceSynced struct {
	State map[uuid.UUID][]domain.Session
}

func (e PresenceSynced) Topic() string { return TopicPresence }
