// Package domain contains core concepts of the chat system.
// This file defines presence sessions. A user is online while at least
// one of their sessions is joined on the shared presence topic.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session is one joined client instance on the presence topic.
// A user with two open clients owns two sessions under the same key.
type Session struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	OnlineAt time.Time
}

// PresenceRecord is the set of live sessions for one user.
type PresenceRecord struct {
	UserID   uuid.UUID
	Sessions []Session
}

func (r PresenceRecord) Online() bool {
	return len(r.Sessions) > 0
}
