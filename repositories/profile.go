package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"duochat/domain"
	"duochat/errors"
)

type diskProfile struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	AvatarURL     *string    `json:"avatar_url,omitempty"`
	StatusMessage *string    `json:"status_message,omitempty"`
	LastSeen      *time.Time `json:"last_seen,omitempty"`
}

func profileKey(id uuid.UUID) []byte {
	return []byte("profile:" + id.String())
}

// SaveProfile upserts a user's public profile.
func (s *Store) SaveProfile(ctx context.Context, profile domain.Profile) error {
	bytes, err := json.Marshal(diskProfile{
		ID:            profile.ID,
		Name:          profile.Name,
		AvatarURL:     profile.AvatarURL,
		StatusMessage: profile.StatusMessage,
		LastSeen:      profile.LastSeen,
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(profileKey(profile.ID), bytes)
	})
}

// GetProfile is a point lookup by user ID.
func (s *Store) GetProfile(ctx context.Context, userID uuid.UUID) (domain.Profile, error) {
	var profile domain.Profile
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(profileKey(userID))
		if err != nil {
			return errors.ErrProfileNotFound
		}
		var row diskProfile
		if err := item.Value(func(v []byte) error {
			return json.Unmarshal(v, &row)
		}); err != nil {
			return err
		}
		profile = domain.Profile{
			ID:            row.ID,
			Name:          row.Name,
			AvatarURL:     row.AvatarURL,
			StatusMessage: row.StatusMessage,
			LastSeen:      row.LastSeen,
		}
		return nil
	})
	return profile, err
}

// UpdateLastSeen stamps the profile with the moment the user was last
// known online. Unknown users get a skeleton profile so the timestamp is
// never lost to ordering between signup and first heartbeat.
func (s *Store) UpdateLastSeen(ctx context.Context, userID uuid.UUID, at time.Time) error {
	return s.db.Update(func(txn *badger.Txn) error {
		row := diskProfile{ID: userID}
		if item, err := txn.Get(profileKey(userID)); err == nil {
			if err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &row)
			}); err != nil {
				return err
			}
		}
		row.LastSeen = &at
		bytes, err := json.Marshal(row)
		if err != nil {
			return err
		}
		return txn.Set(profileKey(userID), bytes)
	})
}
