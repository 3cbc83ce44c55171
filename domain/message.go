// Package domain contains core concepts of the chat system.
// This file defines Message entities and the delivery status lifecycle.
// Messages are immutable after creation except for their status.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the delivery state of a message. It only ever moves forward.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// rank orders statuses along the sent -> delivered -> read lifecycle.
func (s Status) rank() int {
	switch s {
	case StatusSent:
		return 0
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	}
	return -1
}

func (s Status) Valid() bool {
	return s.rank() >= 0
}

// CanAdvanceTo reports whether moving from s to next respects monotonicity.
// Equal statuses are allowed so a duplicated event stays a no-op.
func (s Status) CanAdvanceTo(next Status) bool {
	return next.Valid() && s.Valid() && next.rank() >= s.rank()
}

// AttachmentRef points at an uploaded file. Storage itself lives elsewhere,
// the core only carries the reference around.
type AttachmentRef struct {
	URL      string
	MimeType string
}

// Message represents one chat message.
// Invariant: Content and Attachment are never both nil.
type Message struct {
	ID         uuid.UUID
	ChatID     uuid.UUID
	SenderID   uuid.UUID
	Content    *string
	Attachment *AttachmentRef
	CreatedAt  time.Time
	Status     Status
}

// Before defines the canonical cache ordering: ascending creation time,
// message ID as the tie breaker so the order is total and deterministic.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID.String() < other.ID.String()
}

// UnreadFor reports whether this message counts against viewer's unread total:
// authored by someone else and not yet read.
func (m Message) UnreadFor(viewerID uuid.UUID) bool {
	return m.SenderID != viewerID && (m.Status == StatusSent || m.Status == StatusDelivered)
}
