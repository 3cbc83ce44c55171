// Package runtime provides the realtime plumbing between the gateway and
// the per-client projections: topic subscriptions, event fanout, and the
// shared presence table.
package runtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"duochat/contract"
	"duochat/domain"
	"duochat/domain/event"
)

// Bus is an in-process realtime event bus. It provides best-effort fanout
// with no guarantees regarding delivery, ordering across topics, durability,
// or retries. Bus is not a message broker; projections tolerate missed
// events by recomputing from the gateway.
//
// Bus is safe for concurrent use by multiple goroutines.
type Bus struct {
	mu      sync.RWMutex
	log     *slog.Logger
	buffer  int
	nextID  int
	subs    map[string]map[int]*subscription
	tracked map[uuid.UUID]map[uuid.UUID]domain.Session
}

func NewBus(log *slog.Logger, buffer int) *Bus {
	return &Bus{
		log:     log,
		buffer:  buffer,
		subs:    make(map[string]map[int]*subscription),
		tracked: make(map[uuid.UUID]map[uuid.UUID]domain.Session),
	}
}

// Subscribe opens a feed for one topic. A new presence subscriber receives
// a full-state sync first, so its local table starts from the current truth
// instead of replaying history.
func (b *Bus) Subscribe(topic string) (contract.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscription{
		bus:    b,
		topic:  topic,
		id:     b.nextID,
		events: make(chan event.BusEvent, b.buffer),
	}
	if _, ok := b.subs[topic]; !ok {
		b.subs[topic] = make(map[int]*subscription)
	}
	b.subs[topic][sub.id] = sub

	if topic == event.TopicPresence {
		sub.deliver(b.log, event.PresenceSynced{State: b.snapshotLocked()})
	}
	return sub, nil
}

// Publish fans an event out to every subscriber of its topic. Message
// events additionally reach the table-wide feed. A slow subscriber loses
// the event instead of blocking the producer.
func (b *Bus) Publish(evt event.BusEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[evt.Topic()] {
		sub.deliver(b.log, evt)
	}
	switch evt.(type) {
	case event.MessageInserted, event.MessageUpdated:
		for _, sub := range b.subs[event.TopicMessages] {
			sub.deliver(b.log, evt)
		}
	}
}

// Track announces a live session under its user key.
func (b *Bus) Track(_ context.Context, _ string, session domain.Session) error {
	b.mu.Lock()
	byID, ok := b.tracked[session.UserID]
	if !ok {
		byID = make(map[uuid.UUID]domain.Session)
		b.tracked[session.UserID] = byID
	}
	byID[session.ID] = session
	b.mu.Unlock()

	b.Publish(event.PresenceJoined{Key: session.UserID, Sessions: []domain.Session{session}})
	return nil
}

// Untrack withdraws a session. Withdrawing twice, or withdrawing a session
// that never joined, does nothing.
func (b *Bus) Untrack(_ context.Context, _ string, session domain.Session) error {
	b.mu.Lock()
	byID, ok := b.tracked[session.UserID]
	if ok {
		_, ok = byID[session.ID]
		delete(byID, session.ID)
		if len(byID) == 0 {
			delete(b.tracked, session.UserID)
		}
	}
	b.mu.Unlock()

	if ok {
		b.Publish(event.PresenceLeft{Key: session.UserID, Sessions: []domain.Session{session}})
	}
	return nil
}

// snapshotLocked copies the tracked-session table. Callers hold b.mu.
func (b *Bus) snapshotLocked() map[uuid.UUID][]domain.Session {
	state := make(map[uuid.UUID][]domain.Session, len(b.tracked))
	for key, byID := range b.tracked {
		sessions := make([]domain.Session, 0, len(byID))
		for _, s := range byID {
			sessions = append(sessions, s)
		}
		state[key] = sessions
	}
	return state
}

func (b *Bus) remove(topic string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if byID, ok := b.subs[topic]; ok {
		delete(byID, id)
		if len(byID) == 0 {
			delete(b.subs, topic)
		}
	}
}

type subscription struct {
	bus    *Bus
	topic  string
	id     int
	events chan event.BusEvent
	once   sync.Once
}

func (s *subscription) Events() <-chan event.BusEvent {
	return s.events
}

// Cancel detaches the subscription and closes its feed. Any number of
// calls collapse into one.
func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.bus.remove(s.topic, s.id)
		close(s.events)
	})
}

func (s *subscription) deliver(log *slog.Logger, evt event.BusEvent) {
	select {
	case s.events <- evt:
	default:
		log.Warn("Subscriber too slow, dropping event", "topic", s.topic)
	}
}
