// Package delivery advances messages along the sent -> delivered -> read
// lifecycle. Every transition is a conditional update against the gateway,
// so a stale trigger can never move a status backward.
package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"duochat/contract"
	"duochat/domain"
)

var (
	deliverablePrior = []domain.Status{domain.StatusSent}
	readablePrior    = []domain.Status{domain.StatusSent, domain.StatusDelivered}
)

// Receipts runs the recipient side of the delivery state machine. Only a
// participant other than the sender ever transitions a message, and every
// successful transition surfaces to other clients as a bus update event
// published by the gateway.
type Receipts struct {
	gateway contract.Gateway
	log     *slog.Logger
}

func NewReceipts(gateway contract.Gateway, log *slog.Logger) *Receipts {
	return &Receipts{gateway: gateway, log: log}
}

// MarkDelivered moves every `sent` message addressed to the viewer in this
// chat to `delivered`. Called when the viewer's client comes online for a
// chat; a failure is retried on the next receipt or focus trigger.
func (r *Receipts) MarkDelivered(ctx context.Context, chatID, viewerID uuid.UUID) error {
	changed, err := r.gateway.UpdateChatStatuses(ctx, chatID, viewerID, deliverablePrior, domain.StatusDelivered)
	if err != nil {
		return fmt.Errorf("marking chat delivered: %w", err)
	}
	if len(changed) > 0 {
		r.log.Debug("Messages delivered", "chat", chatID, "count", len(changed))
	}
	return nil
}

// MarkDeliveredOne acknowledges a single incoming row from a realtime
// insert event. The viewer's own messages are never touched, and a message
// already past `sent` is left alone: the conditional update reporting a
// no-op is success, the desired end state is already reached.
func (r *Receipts) MarkDeliveredOne(ctx context.Context, msg domain.Message, viewerID uuid.UUID) error {
	if msg.SenderID == viewerID {
		return nil
	}
	changed, err := r.gateway.UpdateMessageStatus(ctx, msg.ID, domain.StatusDelivered, deliverablePrior)
	if err != nil {
		return fmt.Errorf("marking message delivered: %w", err)
	}
	if changed {
		r.log.Debug("Message delivered", "message", msg.ID)
	}
	return nil
}

// MarkRead moves every qualifying message in the chat to `read` when the
// viewer brings the chat into the foreground. Read implies delivered, so
// `sent` rows jump straight to `read`.
func (r *Receipts) MarkRead(ctx context.Context, chatID, viewerID uuid.UUID) error {
	changed, err := r.gateway.UpdateChatStatuses(ctx, chatID, viewerID, readablePrior, domain.StatusRead)
	if err != nil {
		return fmt.Errorf("marking chat read: %w", err)
	}
	if len(changed) > 0 {
		r.log.Debug("Messages read", "chat", chatID, "count", len(changed))
	}
	return nil
}
