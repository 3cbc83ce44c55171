//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"

	"duochat/domain"
	"duochat/domain/event"
)

// Gateway is the remote data store the client talks to. It owns all durable
// state; everything the core keeps in memory must be reconstructable from it.
type Gateway interface {
	ListParticipantChats(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	GetChats(ctx context.Context, ids []uuid.UUID) ([]domain.Chat, error)
	GetParticipants(ctx context.Context, chatID uuid.UUID) ([]uuid.UUID, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (domain.Profile, error)

	// ListMessages returns the full history of a chat, ascending by creation time.
	ListMessages(ctx context.Context, chatID uuid.UUID) ([]domain.Message, error)
	GetLatestMessage(ctx context.Context, chatID uuid.UUID) (*domain.Message, error)
	// CountMessages counts messages in a chat not authored by notSender whose
	// status is in statuses.
	CountMessages(ctx context.Context, chatID, notSender uuid.UUID, statuses []domain.Status) (int, error)

	InsertMessage(ctx context.Context, chatID, senderID uuid.UUID, content *string, attachment *domain.AttachmentRef) (domain.Message, error)
	// UpdateMessageStatus conditionally advances one message. The update only
	// applies when the current status is in allowedPrior; otherwise it reports
	// changed=false with a nil error, which callers treat as success.
	UpdateMessageStatus(ctx context.Context, id uuid.UUID, to domain.Status, allowedPrior []domain.Status) (changed bool, err error)
	// UpdateChatStatuses is the bulk form: every message in the chat not
	// authored by notSender whose status is in allowedPrior moves to `to`.
	// Returns the rows that actually changed.
	UpdateChatStatuses(ctx context.Context, chatID, notSender uuid.UUID, allowedPrior []domain.Status, to domain.Status) ([]domain.Message, error)

	FindExistingChat(ctx context.Context, userA, userB uuid.UUID) (uuid.UUID, bool, error)
	CreateChat(ctx context.Context, userA, userB uuid.UUID) (domain.Chat, error)

	UpdateLastSeen(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// Subscription is a live feed of bus events for one topic.
type Subscription interface {
	Events() <-chan event.BusEvent
	// Cancel stops delivery and releases the subscription. Idempotent,
	// safe to call from any goroutine and any number of times.
	Cancel()
}

// EventBus is the realtime side: per-chat change feeds plus the shared
// presence topic.
type EventBus interface {
	Subscribe(topic string) (Subscription, error)
	// Track announces a live session on the presence topic.
	Track(ctx context.Context, topic string, session domain.Session) error
	// Untrack withdraws a session. Withdrawing an unknown session is a no-op.
	Untrack(ctx context.Context, topic string, session domain.Session) error
}

// Publisher is the producer side of the bus, used by the gateway to surface
// row changes as realtime events.
type Publisher interface {
	Publish(evt event.BusEvent)
}

// EventSink consumes bus events forwarded by a dispatcher.
type EventSink interface {
	Consume(ctx context.Context, e event.BusEvent) error
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
