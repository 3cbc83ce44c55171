// Package presence derives online state from the shared heartbeat topic.
// One process-wide Tracker owns the session table: it starts with the
// first subscriber and stops when the last one releases it.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"duochat/contract"
	"duochat/domain"
	"duochat/domain/event"
	"duochat/errors"
)

// Tracker joins the shared presence topic with one session per client
// instance and mirrors everyone's sessions locally, so IsOnline answers
// without a network round trip. A user stays online while any of their
// sessions remains joined; losing one of two sessions must not flicker
// them offline.
type Tracker struct {
	mu       sync.RWMutex
	bus      contract.EventBus
	gateway  contract.Gateway
	log      *slog.Logger
	sessions map[uuid.UUID]map[uuid.UUID]domain.Session

	refs int
	self domain.Session
	sub  contract.Subscription
}

func NewTracker(bus contract.EventBus, gateway contract.Gateway, log *slog.Logger) *Tracker {
	return &Tracker{
		bus:      bus,
		gateway:  gateway,
		log:      log,
		sessions: make(map[uuid.UUID]map[uuid.UUID]domain.Session),
	}
}

// Track registers this client's heartbeat session for userID. The first
// call subscribes to the presence topic and announces the session; later
// calls only bump the reference count. Returns the pump worker feeding the
// session table, to be run under the caller's supervisor.
func (t *Tracker) Track(ctx context.Context, userID uuid.UUID) (contract.Worker, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refs++
	if t.refs > 1 {
		return nil, nil
	}

	sub, err := t.bus.Subscribe(event.TopicPresence)
	if err != nil {
		t.refs--
		return nil, fmt.Errorf("joining presence topic: %w", err)
	}
	t.sub = sub
	t.self = domain.Session{ID: uuid.New(), UserID: userID, OnlineAt: time.Now().UTC()}

	if err := t.bus.Track(ctx, event.TopicPresence, t.self); err != nil {
		sub.Cancel()
		t.sub = nil
		t.refs--
		return nil, fmt.Errorf("announcing session: %w", err)
	}
	return &pumpWorker{tracker: t, sub: sub}, nil
}

// Release drops one reference. The last release withdraws the session,
// cancels the subscription and persists a final last-seen timestamp.
// Releasing an already stopped tracker is a no-op.
func (t *Tracker) Release(ctx context.Context) {
	t.mu.Lock()
	if t.refs == 0 {
		t.mu.Unlock()
		return
	}
	t.refs--
	if t.refs > 0 {
		t.mu.Unlock()
		return
	}
	sub, self := t.sub, t.self
	t.sub = nil
	t.sessions = make(map[uuid.UUID]map[uuid.UUID]domain.Session)
	t.mu.Unlock()

	if err := t.bus.Untrack(ctx, event.TopicPresence, self); err != nil {
		t.log.Warn("Presence untrack failed", "err", err)
	}
	if sub != nil {
		sub.Cancel()
	}
	// Best effort: teardown must not block on this write succeeding.
	if err := t.gateway.UpdateLastSeen(ctx, self.UserID, time.Now().UTC()); err != nil {
		t.log.Warn("Final last-seen write failed", "user", self.UserID, "err", err)
	}
}

// IsOnline reports whether at least one session exists for the user,
// synchronously from local state.
func (t *Tracker) IsOnline(userID uuid.UUID) bool {
	return t.Record(userID).Online()
}

// Record returns the live sessions of a user as a snapshot.
func (t *Tracker) Record(userID uuid.UUID) domain.PresenceRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	record := domain.PresenceRecord{UserID: userID}
	for _, s := range t.sessions[userID] {
		record.Sessions = append(record.Sessions, s)
	}
	return record
}

// LastSeen resolves the persisted last-seen timestamp. Only meaningful for
// offline users; for an online user it returns nil without a lookup.
func (t *Tracker) LastSeen(ctx context.Context, userID uuid.UUID) (*time.Time, error) {
	if t.IsOnline(userID) {
		return nil, nil
	}
	profile, err := t.gateway.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("last-seen lookup: %w", err)
	}
	return profile.LastSeen, nil
}

// Consume applies one presence event to the session table: full-state sync
// replaces it wholesale, join adds sessions under a key, leave removes them
// and flips the user offline only once the set is empty.
func (t *Tracker) Consume(_ context.Context, e event.BusEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.refs == 0 {
		return errors.ErrTrackerStopped
	}

	switch evt := e.(type) {
	case event.PresenceSynced:
		fresh := make(map[uuid.UUID]map[uuid.UUID]domain.Session, len(evt.State))
		for key, sessions := range evt.State {
			byID := make(map[uuid.UUID]domain.Session, len(sessions))
			for _, s := range sessions {
				byID[s.ID] = s
			}
			fresh[key] = byID
		}
		t.sessions = fresh
	case event.PresenceJoined:
		byID, ok := t.sessions[evt.Key]
		if !ok {
			byID = make(map[uuid.UUID]domain.Session)
			t.sessions[evt.Key] = byID
		}
		for _, s := range evt.Sessions {
			byID[s.ID] = s
		}
	case event.PresenceLeft:
		byID, ok := t.sessions[evt.Key]
		if !ok {
			return nil
		}
		for _, s := range evt.Sessions {
			delete(byID, s.ID)
		}
		if len(byID) == 0 {
			delete(t.sessions, evt.Key)
			t.log.Debug("User went offline", "user", evt.Key)
		}
	}
	return nil
}

// Session returns this client's own heartbeat session.
func (t *Tracker) Session() domain.Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.self
}

// pumpWorker feeds bus events into the tracker until the subscription is
// cancelled or the context ends.
type pumpWorker struct {
	tracker *Tracker
	sub     contract.Subscription
}

func (w *pumpWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-w.sub.Events():
			if !ok {
				return nil
			}
			if err := w.tracker.Consume(ctx, e); err != nil {
				return nil
			}
		}
	}
}
