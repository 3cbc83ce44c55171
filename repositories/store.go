// Package repositories persists chats, messages, and profiles in BadgerDB
// and surfaces every row change as a realtime bus event, the way a remote
// data gateway would push change notifications to its subscribers.
package repositories

import (
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"duochat/contract"
	"duochat/domain/event"
)

// Store is the durable side of the system. It implements contract.Gateway;
// all client-side caches are projections of what lives here.
type Store struct {
	db        *badger.DB
	log       *slog.Logger
	publisher contract.Publisher
}

// NewStore wires the gateway to its database and, optionally, to the event
// bus. A nil publisher keeps writes silent, which tests use to simulate a
// gateway whose realtime channel is down.
func NewStore(db *badger.DB, log *slog.Logger, publisher contract.Publisher) *Store {
	return &Store{db: db, log: log, publisher: publisher}
}

func (s *Store) publish(evt event.BusEvent) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(evt)
}
