package social

import (
	"context"

	"chatzalo/pkg/coordinator"
	"chatzalo/pkg/events"
	"chatzalo/pkg/models"
	"chatzalo/pkg/store"
	"chatzalo/pkg/utils"
)

// friendRequestUpdate types
const (
	RequestNew      = "newRequest"
	RequestRejected = "rejected"
	ListNewFriend   = "newFriend"
	ListUnfriend    = "unfriend"
	ListProfile     = "profileUpdated"
)

// pair loads both users under their locks. The returned release must be
// called once the records are written.
func (s *Service) pair(a, b string) (*models.User, *models.User, func(), error) {
	release := s.locks.LockMany(userLockKey(a), userLockKey(b))
	ua, err := s.loadUser(a)
	if err != nil {
		release()
		return nil, nil, nil, err
	}
	ub, err := s.loadUser(b)
	if err != nil {
		release()
		return nil, nil, nil, err
	}
	return ua, ub, release, nil
}

// SendFriendRequest records a pending request from -> to and notifies to.
func (s *Service) SendFriendRequest(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.observe("friend_request", s.sendRequest(from, to))
}

func (s *Service) sendRequest(from, to string) error {
	to, err := normalizeTarget("receiverEmail", to)
	if err != nil {
		return err
	}
	if to == from {
		return invalid("receiverEmail", "must differ from sender")
	}
	sender, receiver, release, err := s.pair(from, to)
	if err != nil {
		return err
	}
	defer release()

	switch {
	case sender.IsFriend(to):
		return invalid("receiverEmail", "already a friend")
	case sender.HasSentTo(to):
		return invalid("receiverEmail", "request already pending")
	case sender.HasReceivedFrom(to):
		return invalid("receiverEmail", "a request from this user is waiting")
	}
	now := s.now()
	sender.SentRequests = append(sender.SentRequests, models.FriendRequest{Email: to, Status: models.RequestPending, At: now})
	receiver.RecvRequests = append(receiver.RecvRequests, models.FriendRequest{Email: from, Status: models.RequestPending, At: now})
	if err := s.store.PutUsers(sender, receiver); err != nil {
		return persist("friend_request", err)
	}
	s.notify.EmitToUser(to, events.FriendRequestUpdate, events.FriendRequestPayload{Type: RequestNew, Sender: sender.Profile()})
	return nil
}

// WithdrawFriendRequest cancels a pending request from -> to.
func (s *Service) WithdrawFriendRequest(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.observe("friend_withdraw", s.withdraw(from, to))
}

func (s *Service) withdraw(from, to string) error {
	to, err := normalizeTarget("receiverEmail", to)
	if err != nil {
		return err
	}
	sender, receiver, release, err := s.pair(from, to)
	if err != nil {
		return err
	}
	defer release()
	if !sender.HasSentTo(to) {
		return coordinator.ErrNotFound
	}
	sender.DropRequests(to)
	receiver.DropRequests(from)
	if err := s.store.PutUsers(sender, receiver); err != nil {
		return persist("friend_withdraw", err)
	}
	s.notify.EmitToUser(to, events.FriendRequestWithdrawn, events.WithdrawnPayload{SenderEmail: from})
	return nil
}

// AcceptFriendRequest makes actor and requester friends. Both records are
// written in one batch.
func (s *Service) AcceptFriendRequest(ctx context.Context, actor, requester string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.observe("friend_accept", s.accept(actor, requester))
}

func (s *Service) accept(actor, requester string) error {
	requester, err := normalizeTarget("email", requester)
	if err != nil {
		return err
	}
	me, them, release, err := s.pair(actor, requester)
	if err != nil {
		return err
	}
	defer release()
	if !me.HasReceivedFrom(requester) {
		return coordinator.ErrNotFound
	}
	me.DropRequests(requester)
	them.DropRequests(actor)
	me.Friends, _ = utils.AddUnique(me.Friends, requester)
	them.Friends, _ = utils.AddUnique(them.Friends, actor)
	if err := s.store.PutUsers(me, them); err != nil {
		return persist("friend_accept", err)
	}
	mine, theirs := me.Profile(), them.Profile()
	s.notify.EmitToUser(requester, events.FriendListUpdate, events.FriendListPayload{Type: ListNewFriend, Friend: &mine})
	s.notify.EmitToUser(actor, events.FriendListUpdate, events.FriendListPayload{Type: ListNewFriend, Friend: &theirs})
	return nil
}

// RejectFriendRequest drops a pending request from requester.
func (s *Service) RejectFriendRequest(ctx context.Context, actor, requester string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.observe("friend_reject", s.reject(actor, requester))
}

func (s *Service) reject(actor, requester string) error {
	requester, err := normalizeTarget("email", requester)
	if err != nil {
		return err
	}
	me, them, release, err := s.pair(actor, requester)
	if err != nil {
		return err
	}
	defer release()
	if !me.HasReceivedFrom(requester) {
		return coordinator.ErrNotFound
	}
	me.DropRequests(requester)
	them.DropRequests(actor)
	if err := s.store.PutUsers(me, them); err != nil {
		return persist("friend_reject", err)
	}
	s.notify.EmitToUser(requester, events.FriendRequestUpdate, events.FriendRequestPayload{Type: RequestRejected, Sender: me.Profile()})
	return nil
}

// Unfriend removes the friendship both ways and permanently deletes the
// pair's conversation.
func (s *Service) Unfriend(ctx context.Context, actor, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target = utils.NormalizeEmail(target)
	err := s.unfriend(actor, target)
	if err == nil {
		_, err = s.coord.PurgeConversation(ctx, actor, target)
	}
	if err == nil {
		s.notify.EmitToUser(target, events.FriendListUpdate, events.FriendListPayload{Type: ListUnfriend, Email: actor})
		s.notify.EmitToUser(actor, events.FriendListUpdate, events.FriendListPayload{Type: ListUnfriend, Email: target})
	}
	return s.observe("unfriend", err)
}

func (s *Service) unfriend(actor, target string) error {
	target, err := normalizeTarget("targetEmail", target)
	if err != nil {
		return err
	}
	me, them, release, err := s.pair(actor, target)
	if err != nil {
		return err
	}
	defer release()
	if !me.IsFriend(target) {
		return coordinator.ErrNotFound
	}
	me.Friends, _ = utils.Remove(me.Friends, target)
	them.Friends, _ = utils.Remove(them.Friends, actor)
	if err := s.store.PutUsers(me, them); err != nil {
		return persist("unfriend", err)
	}
	return nil
}

// FriendEmails returns email's friend list.
func (s *Service) FriendEmails(email string) ([]string, error) {
	u, err := s.loadUser(email)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), u.Friends...), nil
}

// CanReach reports whether from may send ephemeral signals such as typing
// to to: they are friends or already share a conversation.
func (s *Service) CanReach(from, to string) (bool, error) {
	u, err := s.loadUser(from)
	if err != nil {
		return false, err
	}
	if u.IsFriend(to) {
		return true, nil
	}
	_, err = s.store.GetConversation(models.ConversationID(from, to))
	switch {
	case err == nil:
		return true, nil
	case store.IsNotFound(err):
		return false, nil
	default:
		return false, persist("can_reach", err)
	}
}

// Friends returns the profiles of email's friends. Friends whose record has
// gone missing are skipped.
func (s *Service) Friends(ctx context.Context, email string) ([]models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emails, err := s.FriendEmails(email)
	if err != nil {
		return nil, err
	}
	users, err := s.store.GetUsers(emails)
	if err != nil {
		return nil, persist("friends", err)
	}
	out := make([]models.Profile, 0, len(users))
	for _, u := range users {
		out = append(out, u.Profile())
	}
	return out, nil
}

// Requests lists email's pending received and sent requests.
func (s *Service) Requests(ctx context.Context, email string) (received, sent []models.FriendRequest, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	u, err := s.loadUser(email)
	if err != nil {
		return nil, nil, err
	}
	return u.RecvRequests, u.SentRequests, nil
}
