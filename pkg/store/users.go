package store

import (
	"encoding/json"
	"fmt"

	"chatzalo/pkg/metrics"
	"chatzalo/pkg/models"

	"github.com/cockroachdb/pebble"
)

// GetUser loads the user keyed by email.
func (s *Store) GetUser(email string) (*models.User, error) {
	tr := metrics.Track("store.get_user")
	defer tr.Finish()

	b, err := s.get(GenUserKey(email))
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", email, err)
	}
	return &u, nil
}

// UserExists reports whether a user record exists for email.
func (s *Store) UserExists(email string) (bool, error) {
	return s.has(GenUserKey(email))
}

// CreateUser stores a new user; fails with ErrExists when the email is taken.
func (s *Store) CreateUser(u *models.User) error {
	tr := metrics.Track("store.create_user")
	defer tr.Finish()

	s.mu.Lock()
	defer s.mu.Unlock()
	exists, err := s.has(GenUserKey(u.Email))
	if err != nil {
		return err
	}
	if exists {
		return ErrExists
	}
	now := s.now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return s.PutUsers(u)
}

// PutUsers writes every user in one batch, so paired edits such as friend
// links land together or not at all.
func (s *Store) PutUsers(users ...*models.User) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	tr := metrics.Track("store.put_users")
	defer tr.Finish()

	b := s.db.NewBatch()
	defer b.Close()
	if err := s.stageUsers(b, users...); err != nil {
		return err
	}
	return s.apply(b)
}

func (s *Store) stageUsers(b *pebble.Batch, users ...*models.User) error {
	now := s.now()
	for _, u := range users {
		if u == nil || u.Email == "" {
			return fmt.Errorf("put user: missing email")
		}
		u.UpdatedAt = now
		data, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("encode user %s: %w", u.Email, err)
		}
		if err := b.Set([]byte(GenUserKey(u.Email)), data, nil); err != nil {
			return err
		}
	}
	return nil
}

// ScanUsers returns the users matching pred, in email order. A nil pred
// matches everything.
func (s *Store) ScanUsers(pred func(*models.User) bool) ([]*models.User, error) {
	tr := metrics.Track("store.scan_users")
	defer tr.Finish()

	var out []*models.User
	err := s.iterPrefix(UserPrefix, func(k, v []byte) (bool, error) {
		var u models.User
		if err := json.Unmarshal(v, &u); err != nil {
			return false, fmt.Errorf("decode %s: %w", k, err)
		}
		if pred == nil || pred(&u) {
			out = append(out, &u)
		}
		return true, nil
	})
	return out, err
}

// GetUsers loads several users, skipping emails without a record.
func (s *Store) GetUsers(emails []string) ([]*models.User, error) {
	out := make([]*models.User, 0, len(emails))
	for _, e := range emails {
		u, err := s.GetUser(e)
		if IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}
