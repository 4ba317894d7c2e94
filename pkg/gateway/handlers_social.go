package gateway

import (
	"context"

	"chatzalo/pkg/coordinator"
	"chatzalo/pkg/events"
)

func required(field, v string) error {
	if v == "" {
		return &coordinator.ValidationError{Field: field, Reason: "is required"}
	}
	return nil
}

// onJoinGroup subscribes the connection to a group room; members only.
func (m *Manager) onJoinGroup(_ context.Context, s *Session, f events.Frame) error {
	gid := f.Str("groupId")
	if err := required("groupId", gid); err != nil {
		return err
	}
	ok, err := m.social.IsMember(gid, s.Email())
	if err != nil {
		return err
	}
	if !ok {
		return coordinator.ErrForbidden
	}
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.State() == StateAuthenticated {
		m.rooms.Join(gid, s.ID())
	}
	return nil
}

func (m *Manager) onLeaveGroup(_ context.Context, s *Session, f events.Frame) error {
	gid := f.Str("groupId")
	if err := required("groupId", gid); err != nil {
		return err
	}
	m.rooms.Leave(gid, s.ID())
	return nil
}

// onAddMember adds the listed members; AddMembers posts their join
// messages. With no list it only subscribes the sender to the room, since a
// member cannot announce joining a group it is already in.
func (m *Manager) onAddMember(ctx context.Context, s *Session, f events.Frame) error {
	gid := f.Str("groupId")
	if err := required("groupId", gid); err != nil {
		return err
	}
	var members []string
	for _, r := range f.Data.Get("members").Array() {
		members = append(members, r.String())
	}
	if len(members) == 0 {
		return m.onJoinGroup(ctx, s, f)
	}
	_, err := m.social.AddMembers(ctx, actor(s), gid, members)
	return err
}

func (m *Manager) onLeaveGroupWeb(ctx context.Context, s *Session, f events.Frame) error {
	gid := f.Str("groupId")
	if err := required("groupId", gid); err != nil {
		return err
	}
	_, err := m.social.Leave(ctx, actor(s), gid)
	return err
}

func (m *Manager) onFriendRequest(ctx context.Context, s *Session, f events.Frame) error {
	return m.social.SendFriendRequest(ctx, s.Email(), f.Str("receiverEmail"))
}

// onWithdrawRequest always answers withdrawConfirmed, with the failure
// reason when there is one.
func (m *Manager) onWithdrawRequest(ctx context.Context, s *Session, f events.Frame) error {
	reply := map[string]any{"success": true}
	if err := m.social.WithdrawFriendRequest(ctx, s.Email(), f.Str("receiverEmail")); err != nil {
		reply = map[string]any{"success": false, "error": errorCode(err)}
	}
	m.router.EmitToConnection(s.ID(), events.WithdrawConfirmed, reply)
	return nil
}

func (m *Manager) onAcceptRequest(ctx context.Context, s *Session, f events.Frame) error {
	return m.social.AcceptFriendRequest(ctx, s.Email(), f.Str("email"))
}

func (m *Manager) onUnfriend(ctx context.Context, s *Session, f events.Frame) error {
	return m.social.Unfriend(ctx, s.Email(), f.Str("targetEmail"))
}

// onUserStatus tells friends the user's status. Going online also answers
// with which friends are currently online.
func (m *Manager) onUserStatus(_ context.Context, s *Session, f events.Frame) error {
	online := f.Str("status") == "online"
	friends := m.broadcastStatus(s.Email(), online)
	if online {
		if friends == nil {
			friends = []string{}
		}
		m.router.EmitToConnection(s.ID(), events.InitialFriendStatuses, events.InitialStatusesPayload{
			Friends:       friends,
			OnlineFriends: m.presence.FilterOnline(friends),
		})
	}
	return nil
}

// onCallUser rings every device of the callee. Call signaling uses the same
// email identity as chat presence.
func (m *Manager) onCallUser(_ context.Context, s *Session, f events.Frame) error {
	to := f.Str("toUserId")
	if err := required("toUserId", to); err != nil {
		return err
	}
	p := events.CallPayload{FromUserID: s.Email(), ToUserID: to, RoomID: f.Str("roomId")}
	if m.router.EmitToUser(to, events.IncomingCall, p) == 0 {
		return coordinator.ErrNotFound
	}
	return nil
}

// relayCall forwards call-accepted/declined/cancelled/ended to the peer.
func (m *Manager) relayCall(_ context.Context, s *Session, f events.Frame) error {
	to := f.Str("toUserId")
	if err := required("toUserId", to); err != nil {
		return err
	}
	m.router.EmitToUser(to, f.Name, events.CallPayload{FromUserID: s.Email(), ToUserID: to, RoomID: f.Str("roomId")})
	return nil
}
