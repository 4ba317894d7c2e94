package gateway

import (
	"context"
	"errors"

	"chatzalo/pkg/coordinator"
	"chatzalo/pkg/events"
	"chatzalo/pkg/logger"
	"chatzalo/pkg/transport"
)

const codeRateLimited = "rate_limited"

type handlerFunc func(ctx context.Context, s *Session, f events.Frame) error

var errUnknownEvent = errors.New("unknown event")

// dispatch is the read-loop callback of one session.
func (m *Manager) dispatch(s *Session) transport.MessageHandler {
	return func(ctx context.Context, _ *transport.Connection, raw []byte) {
		f, err := events.Decode(raw)
		if s.State() != StateAuthenticated {
			m.firstFrame(s, f, err)
			return
		}
		if err != nil {
			m.replyError(s, "", err)
			return
		}
		h, ok := m.handlers[f.Name]
		if !ok {
			m.replyError(s, f.Name, errUnknownEvent)
			return
		}
		if !m.limiter.Allow(s.Email()) {
			m.router.EmitToConnection(s.ID(), events.Error, events.ErrorPayload{
				Event: f.Name, Code: codeRateLimited, Message: "too many events",
			})
			return
		}
		if err := h(ctx, s, f); err != nil {
			m.replyError(s, f.Name, err)
		}
	}
}

// firstFrame handles traffic before the session is authenticated. Only an
// authenticate frame with a valid token is accepted; anything else closes
// the socket with 4401.
func (m *Manager) firstFrame(s *Session, f events.Frame, decodeErr error) {
	if s.State() == StateClosed {
		return
	}
	if decodeErr != nil || f.Name != events.Authenticate {
		m.rejected("unauthenticated_frame", s.ID(), decodeErr)
		s.conn.CloseWith(transport.StatusUnauthorized, "authenticate first")
		return
	}
	id, err := m.auth.Authenticate(f.Str("token"))
	if err != nil {
		m.rejected("invalid_token", s.ID(), err)
		s.conn.CloseWith(transport.StatusUnauthorized, "invalid token")
		return
	}
	if m.Open(s, id) {
		m.router.EmitToConnection(s.ID(), events.Authenticated, map[string]string{"email": id.Email, "userId": id.UserID})
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, events.ErrBadFrame), errors.Is(err, errUnknownEvent):
		return coordinator.CodeValidation
	default:
		return coordinator.Code(err)
	}
}

// replyError sends an error frame to the originating connection only.
func (m *Manager) replyError(s *Session, event string, err error) {
	code := errorCode(err)
	msg := err.Error()
	if code == coordinator.CodePersistence {
		logger.Error("ws_event_failed", "conn", s.ID(), "event", event, "error", err)
		msg = "internal error"
	}
	m.router.EmitToConnection(s.ID(), events.Error, events.ErrorPayload{Event: event, Code: code, Message: msg})
}

func (m *Manager) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		events.Authenticate: noop,
		events.Register:     noop,
		events.Logout:       m.onLogout,

		events.JoinGroup:  m.onJoinGroup,
		events.LeaveGroup: m.onLeaveGroup,

		events.NewMessage:           m.onDirectMessage,
		events.GroupMessage:         m.onGroupMessage,
		events.MessageRead:          m.onMessageRead,
		events.TypingStart:          m.onTyping,
		events.TypingStop:           m.onTyping,
		events.MessageRecalled:      m.onRecall,
		events.RecallGroupMessage:   m.onRecall,
		events.MessageDeleted:       m.onSoftDelete,
		events.MessageReaction:      m.onReaction,
		events.GroupMessageReaction: m.onReaction,
		events.ForwardMessage:       m.onForward,

		events.AddMemberGroup: m.onAddMember,
		events.LeaveGroupWeb:  m.onLeaveGroupWeb,

		events.FriendRequestSent:     m.onFriendRequest,
		events.WithdrawFriendRequest: m.onWithdrawRequest,
		events.FriendRequestAccepted: m.onAcceptRequest,
		events.Unfriend:              m.onUnfriend,
		events.UserStatus:            m.onUserStatus,

		events.CallUser:      m.onCallUser,
		events.CallAccepted:  m.relayCall,
		events.CallDeclined:  m.relayCall,
		events.CallCancelled: m.relayCall,
		events.CallEnded:     m.relayCall,
	}
}

// identity is taken from the token; legacy register frames carry nothing
// the server needs.
func noop(context.Context, *Session, events.Frame) error { return nil }

func (m *Manager) onLogout(_ context.Context, s *Session, _ events.Frame) error {
	m.Disconnect(s)
	return nil
}
