// Package domain contains core concepts of the chat system.
// This file defines Chat and the derived per-chat summary.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Chat is a one-to-one conversation. The participant pair is immutable
// and a pair of users never owns more than one chat.
type Chat struct {
	ID           uuid.UUID
	CreatedAt    time.Time
	Participants [2]uuid.UUID
}

func (c Chat) HasParticipant(userID uuid.UUID) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// Peer returns the other participant from userID's point of view.
func (c Chat) Peer(userID uuid.UUID) uuid.UUID {
	if c.Participants[0] == userID {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// Profile is the public face of a user.
type Profile struct {
	ID            uuid.UUID
	Name          string
	AvatarURL     *string
	StatusMessage *string
	LastSeen      *time.Time
}

// ChatSummary is a derived view over one chat: latest message and how many
// messages the viewer has not read yet. It is recomputed, never mutated.
type ChatSummary struct {
	ChatID       uuid.UUID
	CreatedAt    time.Time
	Participants []Profile
	LastMessage  *Message
	Unread       int
}

// SortTime is the timestamp summaries are ordered by: the latest message
// when one exists, otherwise the chat creation time.
func (s ChatSummary) SortTime() time.Time {
	if s.LastMessage != nil {
		return s.LastMessage.CreatedAt
	}
	return s.CreatedAt
}
