// Package services exposes the chat core to the UI layer: read-only views
// over the projections plus the imperative actions a client can take.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"duochat/contract"
	"duochat/delivery"
	"duochat/domain"
	"duochat/domain/event"
	"duochat/errors"
	"duochat/moderation"
	"duochat/presence"
	"duochat/projection"
)

// Session is one client instance for one user. All state mutations
// serialize through a single mutex, giving the event-loop model: handlers
// never interleave mid-update, and async results are checked against the
// current selection epoch before they are applied.
type Session struct {
	mu         sync.Mutex
	gateway    contract.Gateway
	bus        contract.EventBus
	receipts   *delivery.Receipts
	aggregator *projection.ChatListAggregator
	tracker    *presence.Tracker
	moderator  *moderation.Moderator
	log        *slog.Logger

	userID           uuid.UUID
	maxContentLength int

	// epoch identifies the current selection. A fetch started under an
	// older epoch is discarded instead of corrupting the new chat's cache.
	epoch   int
	active  *projection.MessageCache
	chatSub contract.Subscription

	outbox  []OutboxEntry
	notices []Notice
}

type SessionDeps struct {
	Gateway contract.Gateway
	Bus     contract.EventBus
	Tracker *presence.Tracker
	// Moderator censors outgoing content when set; nil sends drafts verbatim.
	Moderator        *moderation.Moderator
	Log              *slog.Logger
	UserID           uuid.UUID
	MaxContentLength int
}

func NewSession(deps SessionDeps) *Session {
	return &Session{
		gateway:          deps.Gateway,
		bus:              deps.Bus,
		receipts:         delivery.NewReceipts(deps.Gateway, deps.Log),
		aggregator:       projection.NewChatListAggregator(deps.Gateway, deps.Log, deps.UserID),
		tracker:          deps.Tracker,
		moderator:        deps.Moderator,
		log:              deps.Log,
		userID:           deps.UserID,
		maxContentLength: deps.MaxContentLength,
	}
}

// Start builds the chat list, joins the presence topic, and returns the
// background workers to run under the caller's supervisor: the table-wide
// message pump, the presence pump, and nothing else. A failed initial
// build degrades to an empty list with a notice, it does not abort the
// session.
func (s *Session) Start(ctx context.Context) ([]contract.Worker, error) {
	if err := s.aggregator.BuildAll(ctx); err != nil {
		s.notify("Failed to load chats", err)
	}

	sub, err := s.bus.Subscribe(event.TopicMessages)
	if err != nil {
		return nil, fmt.Errorf("subscribing message feed: %w", err)
	}

	var workers []contract.Worker
	workers = append(workers, &messagePump{session: s, sub: sub})

	presencePump, err := s.tracker.Track(ctx, s.userID)
	if err != nil {
		sub.Cancel()
		return nil, fmt.Errorf("joining presence: %w", err)
	}
	if presencePump != nil {
		workers = append(workers, presencePump)
	}
	return workers, nil
}

// Close tears the session down: leaves the active chat, the message feed,
// and the presence topic. Safe to call more than once.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.chatSub != nil {
		s.chatSub.Cancel()
		s.chatSub = nil
	}
	s.active = nil
	s.epoch++
	s.mu.Unlock()

	s.tracker.Release(ctx)
}

// SelectChat makes chatID the active conversation: the previous chat topic
// is left (idempotently), the history is fetched and loaded wholesale, and
// incoming messages start being acknowledged as delivered. Any history
// fetch still in flight for a previously selected chat is discarded when
// it completes.
func (s *Session) SelectChat(ctx context.Context, chatID uuid.UUID) error {
	// Subscribe before touching the current selection, so a failure here
	// leaves the previous chat fully functional.
	sub, err := s.bus.Subscribe(event.ChatTopic(chatID))
	if err != nil {
		return fmt.Errorf("subscribing chat topic: %w", err)
	}

	s.mu.Lock()
	if s.chatSub != nil {
		s.chatSub.Cancel()
	}
	s.chatSub = sub
	s.epoch++
	epoch := s.epoch
	cache := projection.NewMessageCache(chatID)
	s.active = cache
	s.mu.Unlock()

	go s.pumpChat(sub, epoch)

	// The suspension point: other handlers run while the history loads.
	history, err := s.gateway.ListMessages(ctx, chatID)

	s.mu.Lock()
	if s.epoch != epoch {
		// A different chat was selected while we were loading.
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.mu.Unlock()
		s.notify("Failed to load messages", err)
		return nil
	}
	// Events that raced the load and already landed in the cache are
	// re-applied on top of the fresh history, so the wholesale replace
	// never loses a newer status than the one the query saw.
	buffered := cache.Snapshot()
	cache.Load(history)
	for _, msg := range buffered {
		cache.Merge(event.MessageUpdated{Message: msg})
	}
	s.mu.Unlock()

	// Entering the chat means this recipient's client is connected: every
	// pending `sent` message addressed to us becomes `delivered`.
	if err := s.receipts.MarkDelivered(ctx, chatID, s.userID); err != nil {
		s.notify("Delivery receipt failed", err)
	}
	return nil
}

// Focus marks the active chat as read: the viewer brought it into the
// foreground. Failures surface as a notice and the transition is retried
// on the next focus.
func (s *Session) Focus(ctx context.Context) error {
	s.mu.Lock()
	cache := s.active
	s.mu.Unlock()
	if cache == nil {
		return errors.ErrNoChatSelected
	}

	if err := s.receipts.MarkRead(ctx, cache.ChatID(), s.userID); err != nil {
		s.notify("Read receipt failed", err)
	}
	return nil
}

// SendMessage validates and censors the draft synchronously, shows it
// optimistically as a pending outbox entry, then inserts through the gateway. A gateway
// failure flips the entry to failed and surfaces a notice; the draft stays
// available for retry, nothing is silently lost.
func (s *Session) SendMessage(ctx context.Context, draft domain.Draft) (uuid.UUID, error) {
	if err := draft.Validate(s.maxContentLength); err != nil {
		return uuid.Nil, err
	}
	if s.moderator != nil && draft.Content != nil {
		censored, matched := s.moderator.Censor(*draft.Content)
		if len(matched) > 0 {
			s.log.Info("Outgoing message censored", "matches", len(matched))
			draft.Content = &censored
		}
	}

	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return uuid.Nil, errors.ErrNoChatSelected
	}
	chatID := s.active.ChatID()
	entry := OutboxEntry{
		LocalID:  uuid.New(),
		ChatID:   chatID,
		Draft:    draft,
		QueuedAt: time.Now().UTC(),
		State:    OutboxPending,
	}
	s.outbox = append(s.outbox, entry)
	localID := entry.LocalID
	s.mu.Unlock()

	msg, err := s.gateway.InsertMessage(ctx, chatID, s.userID, draft.Content, draft.Attachment())

	s.mu.Lock()
	for i := range s.outbox {
		if s.outbox[i].LocalID != localID {
			continue
		}
		if err != nil {
			s.outbox[i].State = OutboxFailed
			s.outbox[i].FailCause = err
		} else {
			s.outbox[i].State = OutboxConfirmed
			s.outbox[i].Message = &msg
		}
		break
	}
	if err == nil && s.active != nil && s.active.ChatID() == chatID {
		// The insert event arrives through the bus as well; merging here
		// just makes our own message visible without waiting for it, and
		// the duplicate merge is a no-op.
		s.active.Merge(event.MessageInserted{Message: msg})
	}
	s.mu.Unlock()

	if err != nil {
		s.notify("Failed to send message", err)
		return uuid.Nil, fmt.Errorf("sending message: %w", err)
	}
	return msg.ID, nil
}

// CreateOrReuseChat resolves the one chat between this user and another,
// creating it only when none exists. Calling it twice in direct succession
// yields the same identifier.
func (s *Session) CreateOrReuseChat(ctx context.Context, otherUserID uuid.UUID) (uuid.UUID, error) {
	if otherUserID == uuid.Nil {
		return uuid.Nil, errors.ErrBadIdentifier
	}
	if otherUserID == s.userID {
		return uuid.Nil, errors.ErrSelfChat
	}

	if chatID, found, err := s.gateway.FindExistingChat(ctx, s.userID, otherUserID); err == nil && found {
		return chatID, nil
	} else if err != nil {
		s.notify("Chat lookup failed", err)
		return uuid.Nil, fmt.Errorf("finding chat: %w", err)
	}

	chat, err := s.gateway.CreateChat(ctx, s.userID, otherUserID)
	if err != nil {
		s.notify("Failed to create chat", err)
		return uuid.Nil, fmt.Errorf("creating chat: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggregator.Refresh(ctx, chat.ID)
	return chat.ID, nil
}

// Messages returns the ordered message list of the active chat.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	return s.active.Snapshot()
}

// Summaries returns the chat list, most recently active first.
func (s *Session) Summaries() []domain.ChatSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aggregator.Summaries()
}

// IsOnline answers from the local presence table, no round trip.
func (s *Session) IsOnline(userID uuid.UUID) bool {
	return s.tracker.IsOnline(userID)
}

// LastSeen resolves the persisted timestamp for an offline user.
func (s *Session) LastSeen(ctx context.Context, userID uuid.UUID) (*time.Time, error) {
	return s.tracker.LastSeen(ctx, userID)
}

// Outbox returns a snapshot of the optimistic send log.
func (s *Session) Outbox() []OutboxEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OutboxEntry, len(s.outbox))
	copy(out, s.outbox)
	return out
}

// Notices drains the accumulated user-visible notices.
func (s *Session) Notices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notices
	s.notices = nil
	return out
}

func (s *Session) notify(text string, err error) {
	s.log.Warn(text, "err", err)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, Notice{At: time.Now().UTC(), Text: fmt.Sprintf("%s: %v", text, err)})
}

// pumpChat feeds the active chat's topic into its cache until the
// subscription is cancelled. Cache merges deduplicate and order rows, so
// an event racing the initial history load is harmless. Incoming rows from
// the peer are acknowledged as delivered, which surfaces back to the peer
// as an update event.
func (s *Session) pumpChat(sub contract.Subscription, epoch int) {
	for e := range sub.Events() {
		s.mu.Lock()
		if s.epoch != epoch || s.active == nil {
			s.mu.Unlock()
			return
		}
		s.active.Merge(e)
		s.mu.Unlock()

		if inserted, ok := e.(event.MessageInserted); ok {
			ctx := context.Background()
			if err := s.receipts.MarkDeliveredOne(ctx, inserted.Message, s.userID); err != nil {
				s.notify("Delivery receipt failed", err)
			}
		}
	}
}

// messagePump forwards the table-wide message feed to the chat list
// aggregator so unread counts and previews stay current across all chats.
type messagePump struct {
	session *Session
	sub     contract.Subscription
}

func (w *messagePump) Run(ctx context.Context) error {
	defer w.sub.Cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-w.sub.Events():
			if !ok {
				return nil
			}
			w.session.mu.Lock()
			if err := w.session.aggregator.Consume(ctx, e); err != nil {
				w.session.log.Warn("Chat list refresh failed", "err", err)
			}
			w.session.mu.Unlock()
		}
	}
}
