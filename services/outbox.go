package services

import (
	"time"

	"github.com/google/uuid"

	"duochat/domain"
)

// OutboxState is the three-state contract of one optimistic send: the
// entry is pending until the gateway answers, then either confirmed or
// failed. It never moves backward.
type OutboxState int

const (
	OutboxPending OutboxState = iota
	OutboxConfirmed
	OutboxFailed
)

func (s OutboxState) String() string {
	switch s {
	case OutboxPending:
		return "pending"
	case OutboxConfirmed:
		return "confirmed"
	case OutboxFailed:
		return "failed"
	}
	return "unknown"
}

// OutboxEntry tracks one send from the moment the UI shows it optimistically.
// A failed entry keeps its draft so the user can retry; the durable message
// is only set once confirmed.
type OutboxEntry struct {
	LocalID   uuid.UUID
	ChatID    uuid.UUID
	Draft     domain.Draft
	QueuedAt  time.Time
	State     OutboxState
	Message   *domain.Message
	FailCause error
}

// Notice is a non-fatal, user-visible incident: a failed send, a receipt
// that could not be written, a degraded chat list. The worst case on
// sustained failure is a stale view, never a crash.
type Notice struct {
	At   time.Time
	Text string
}
