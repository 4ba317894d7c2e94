package social

import (
	"context"
	"strings"

	"chatzalo/pkg/coordinator"
	"chatzalo/pkg/events"
	"chatzalo/pkg/models"
	"chatzalo/pkg/utils"
)

const minPhoneDigits = 8

// ProfileUpdate holds the self-editable profile fields. Nil leaves a field
// unchanged; an empty avatar or phone clears it.
type ProfileUpdate struct {
	FullName *string `json:"fullName"`
	Avatar   *string `json:"avatar"`
	Phone    *string `json:"phoneNumber"`
}

// UserQuery looks a user up by exact email or phone number. Email wins
// when both are set.
type UserQuery struct {
	Email string
	Phone string
}

// Profile returns the public view of email.
func (s *Service) Profile(ctx context.Context, email string) (models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return models.Profile{}, err
	}
	email, err := normalizeTarget("email", email)
	if err != nil {
		return models.Profile{}, err
	}
	u, err := s.loadUser(email)
	if err != nil {
		return models.Profile{}, err
	}
	return u.Profile(), nil
}

// UpdateProfile edits email's own profile under the same user lock the
// friend graph uses, so concurrent friend edits are not lost. Friends get a
// friendListUpdate carrying the new profile.
func (s *Service) UpdateProfile(ctx context.Context, email string, in ProfileUpdate) (models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return models.Profile{}, err
	}
	p, friends, err := s.updateProfile(email, in)
	if err == nil && len(friends) > 0 {
		s.notify.EmitToUsers(friends, events.FriendListUpdate, events.FriendListPayload{Type: ListProfile, Friend: &p}, "")
	}
	return p, s.observe("update_profile", err)
}

func (s *Service) updateProfile(email string, in ProfileUpdate) (models.Profile, []string, error) {
	var phone string
	if in.Phone != nil {
		phone = utils.NormalizePhone(*in.Phone)
		if phone != "" && len(strings.TrimPrefix(phone, "+")) < minPhoneDigits {
			return models.Profile{}, nil, invalid("phoneNumber", "is too short")
		}
	}

	release := s.locks.Lock(userLockKey(email))
	defer release()
	u, err := s.loadUser(email)
	if err != nil {
		return models.Profile{}, nil, err
	}

	changed := false
	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		if name == "" {
			return models.Profile{}, nil, invalid("fullName", "must not be empty")
		}
		changed = changed || name != u.FullName
		u.FullName = name
	}
	if in.Avatar != nil {
		avatar := strings.TrimSpace(*in.Avatar)
		changed = changed || avatar != u.Avatar
		u.Avatar = avatar
	}
	if in.Phone != nil && phone != u.Phone {
		if phone != "" {
			taken, err := s.store.ScanUsers(func(o *models.User) bool { return o.Phone == phone && o.Email != email })
			if err != nil {
				return models.Profile{}, nil, persist("update_profile", err)
			}
			if len(taken) > 0 {
				return models.Profile{}, nil, invalid("phoneNumber", "already in use")
			}
		}
		u.Phone = phone
		changed = true
	}
	if !changed {
		return u.Profile(), nil, nil
	}
	u.UpdatedAt = s.now()
	if err := s.store.PutUsers(u); err != nil {
		return models.Profile{}, nil, persist("update_profile", err)
	}
	return u.Profile(), append([]string(nil), u.Friends...), nil
}

// SearchUsers finds the single user matching q.
func (s *Service) SearchUsers(ctx context.Context, q UserQuery) (models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return models.Profile{}, err
	}
	p, err := s.searchUsers(q)
	return p, s.observe("search_users", err)
}

func (s *Service) searchUsers(q UserQuery) (models.Profile, error) {
	if email := utils.NormalizeEmail(q.Email); email != "" {
		u, err := s.loadUser(email)
		if err != nil {
			return models.Profile{}, err
		}
		return u.Profile(), nil
	}
	phone := utils.NormalizePhone(q.Phone)
	if phone == "" {
		return models.Profile{}, invalid("query", "email or phoneNumber is required")
	}
	found, err := s.store.ScanUsers(func(u *models.User) bool { return u.Phone == phone })
	if err != nil {
		return models.Profile{}, persist("search_users", err)
	}
	if len(found) == 0 {
		return models.Profile{}, coordinator.ErrNotFound
	}
	return found[0].Profile(), nil
}
