package gateway

import (
	"context"

	"github.com/tidwall/gjson"

	"chatzalo/pkg/coordinator"
	"chatzalo/pkg/events"
	"chatzalo/pkg/models"
	"chatzalo/pkg/utils"
)

type outgoingMessage struct {
	ID      string                `json:"id"`
	Content models.MessageContent `json:"content"`
}

type directMessageIn struct {
	ReceiverEmail string          `json:"receiverEmail"`
	Message       outgoingMessage `json:"message"`
}

type groupMessageIn struct {
	GroupID string          `json:"groupId"`
	Message outgoingMessage `json:"message"`
}

type forwardIn struct {
	MessageID     string `json:"messageId"`
	TargetGroupID string `json:"targetGroupId"`
	TargetEmail   string `json:"targetEmail"`
}

func actor(s *Session) coordinator.Actor {
	return coordinator.Actor{Email: s.Email(), ConnID: s.ID()}
}

// bindMessage decodes a send frame. A bare string in "message" is taken as
// text content.
func bindMessage(f events.Frame, v any, msg *outgoingMessage) error {
	if r := f.Data.Get("message"); r.Type == gjson.String {
		*msg = outgoingMessage{Content: models.Text(r.Str)}
		return nil
	}
	return f.Bind(v)
}

func (m *Manager) ack(s *Session, event string, owner models.Owner, msg *models.Message) {
	ref := events.RefFor(owner, "")
	if msg != nil {
		ref.MessageID = msg.ID
	}
	m.router.EmitToConnection(s.ID(), event, events.AckPayload{MessageRef: ref, Message: msg})
}

func (m *Manager) onDirectMessage(ctx context.Context, s *Session, f events.Frame) error {
	var in directMessageIn
	in.ReceiverEmail = f.Str("receiverEmail")
	if err := bindMessage(f, &in, &in.Message); err != nil {
		return err
	}
	owner := models.ConversationOwner(s.Email(), in.ReceiverEmail)
	msg, err := m.coord.Append(ctx, actor(s), owner, models.Message{
		ID:            in.Message.ID,
		ReceiverEmail: in.ReceiverEmail,
		Content:       in.Message.Content,
	})
	if err != nil {
		return err
	}
	m.ack(s, events.MessageSent, owner, &msg)
	return nil
}

func (m *Manager) onGroupMessage(ctx context.Context, s *Session, f events.Frame) error {
	var in groupMessageIn
	in.GroupID = f.Str("groupId")
	if err := bindMessage(f, &in, &in.Message); err != nil {
		return err
	}
	owner := models.GroupOwner(in.GroupID)
	msg, err := m.coord.Append(ctx, actor(s), owner, models.Message{
		ID:      in.Message.ID,
		Content: in.Message.Content,
	})
	if err != nil {
		return err
	}
	m.ack(s, events.GroupMessageSent, owner, &msg)
	return nil
}

func (m *Manager) onMessageRead(ctx context.Context, s *Session, f events.Frame) error {
	_, err := m.coord.MarkRead(ctx, actor(s), f.Str("messageId"))
	return err
}

// onTyping relays typingStart/typingStop to the receiver's devices, only
// between friends or users who already share a conversation.
func (m *Manager) onTyping(_ context.Context, s *Session, f events.Frame) error {
	to := utils.NormalizeEmail(f.Str("receiverEmail"))
	if to == "" || to == s.Email() {
		return &coordinator.ValidationError{Field: "receiverEmail", Reason: "is required"}
	}
	ok, err := m.social.CanReach(s.Email(), to)
	if err != nil {
		return err
	}
	if !ok {
		return coordinator.ErrForbidden
	}
	m.router.EmitToUser(to, f.Name, events.TypingPayload{SenderEmail: s.Email()})
	return nil
}

func (m *Manager) onRecall(ctx context.Context, s *Session, f events.Frame) error {
	msg, owner, err := m.coord.Recall(ctx, actor(s), f.Str("messageId"))
	if err != nil {
		return err
	}
	m.ack(s, events.MessageRecallConfirmed, owner, &msg)
	return nil
}

func (m *Manager) onSoftDelete(ctx context.Context, s *Session, f events.Frame) error {
	id := f.Str("messageId")
	owner, err := m.coord.SoftDeleteForUser(ctx, actor(s), id)
	if err != nil {
		return err
	}
	m.router.EmitToConnection(s.ID(), events.MessageDeleteConfirmed, events.AckPayload{MessageRef: events.RefFor(owner, id)})
	return nil
}

func (m *Manager) onReaction(ctx context.Context, s *Session, f events.Frame) error {
	id := f.Str("messageId")
	msg, _, err := m.coord.React(ctx, actor(s), id, f.Str("reaction"))
	if err != nil {
		return err
	}
	owner := models.ConversationOwner(msg.SenderEmail, msg.ReceiverEmail)
	if msg.GroupID != "" {
		owner = models.GroupOwner(msg.GroupID)
	}
	m.ack(s, events.MessageReactionConfirmed, owner, &msg)
	return nil
}

func (m *Manager) onForward(ctx context.Context, s *Session, f events.Frame) error {
	var in forwardIn
	if err := f.Bind(&in); err != nil {
		return err
	}
	msg, err := m.coord.Forward(ctx, actor(s), in.MessageID, coordinator.ForwardTarget{
		GroupID: in.TargetGroupID,
		Email:   in.TargetEmail,
	})
	if err != nil {
		return err
	}
	owner := models.GroupOwner(msg.GroupID)
	if msg.GroupID == "" {
		owner = models.ConversationOwner(msg.SenderEmail, msg.ReceiverEmail)
	}
	m.ack(s, events.MessageForwarded, owner, &msg)
	return nil
}
