package api

import (
	"errors"
	"sort"
	"time"

	"github.com/valyala/fasthttp"

	respond "chatzalo/pkg/api/router"
	"chatzalo/pkg/coordinator"
	"chatzalo/pkg/models"
	"chatzalo/pkg/router"
	"chatzalo/pkg/utils"
)

type sendRequest struct {
	ID      string                `json:"id"`
	Content models.MessageContent `json:"content"`
}

type forwardRequest struct {
	TargetGroupID string `json:"targetGroupId"`
	TargetEmail   string `json:"targetEmail"`
}

type reactionRequest struct {
	Reaction string `json:"reaction"`
}

type messagePage struct {
	Messages   []models.Message          `json:"messages"`
	Pagination models.PaginationResponse `json:"pagination"`
}

type conversationSummary struct {
	ID          string              `json:"id"`
	Peer        string              `json:"peer"`
	LastMessage *models.LastMessage `json:"lastMessage,omitempty"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

func peerParam(ctx *fasthttp.RequestCtx) string {
	return utils.NormalizeEmail(router.Param(ctx, "email"))
}

func (s *Server) listConversations(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
	convs, err := s.store.ListConversationsFor(me.Email)
	if err != nil {
		respond.WriteError(ctx, &coordinator.PersistenceError{Op: "list_conversations", Err: err})
		return
	}
	out := make([]conversationSummary, 0, len(convs))
	for _, c := range convs {
		sum := conversationSummary{ID: c.ID, Peer: c.Peer(me.Email), UpdatedAt: c.UpdatedAt}
		for i := len(c.Messages) - 1; i >= 0; i-- {
			m := c.Messages[i]
			if m.IsHiddenFor(me.Email) {
				continue
			}
			sum.LastMessage = models.PreviewOf(m)
			break
		}
		out = append(out, sum)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	respond.WriteJSON(ctx, fasthttp.StatusOK, map[string]any{"conversations": out})
}

func (s *Server) writePage(ctx *fasthttp.RequestCtx, me coordinator.Actor, owner models.Owner) {
	req, err := respond.ParsePagination(ctx)
	if err != nil {
		respond.WriteError(ctx, err)
		return
	}
	msgs, err := s.coord.ReadListFiltered(ctx, owner, me.Email)
	// a conversation exists only after its first message
	if errors.Is(err, coordinator.ErrNotFound) && !owner.IsGroup() {
		msgs, err = []models.Message{}, nil
	}
	if err != nil {
		respond.WriteError(ctx, err)
		return
	}
	page, meta := models.Page(msgs, req)
	respond.WriteJSON(ctx, fasthttp.StatusOK, messagePage{Messages: page, Pagination: meta})
}

func (s *Server) conversationMessages(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
	s.writePage(ctx, me, models.ConversationOwner(me.Email, peerParam(ctx)))
}

func (s *Server) groupMessages(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
	s.writePage(ctx, me, models.GroupOwner(router.Param(ctx, "id")))
}

func (s *Server) send(ctx *fasthttp.RequestCtx, me coordinator.Actor, owner models.Owner, receiver string) {
	var in sendRequest
	if err := respond.Bind(ctx, &in); err != nil {
		respond.WriteError(ctx, err)
		return
	}
	msg, err := s.coord.Append(ctx, me, owner, models.Message{ID: in.ID, ReceiverEmail: receiver, Content: in.Content})
	if err != nil {
		respond.WriteError(ctx, err)
		return
	}
	respond.WriteJSON(ctx, fasthttp.StatusCreated, msg)
}

func (s *Server) sendDirect(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
	peer := peerParam(ctx)
	s.send(ctx, me, models.ConversationOwner(me.Email, peer), peer)
}

func (s *Server) sendGroup(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
	s.send(ctx, me, models.GroupOwner(router.Param(ctx, "id")), "")
}

func (s *Server) hide(ctx *fasthttp.RequestCtx, me coordinator.Actor, owner models.Owner) {
	n, err := s.coord.HideAllForUser(ctx, me, owner)
	if err != nil {
		respond.WriteError(ctx, err)
		return
	}
	respond.WriteJSON(ctx, fasthttp.StatusOK, map[string]int{"hidden": n})
}

func (s *Server) hideConversation(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
	s.hide(ctx, me, models.ConversationOwner(me.Email, peerParam(ctx)))
}

func (s *Server) hideGroup(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
	s.hide(ctx, me, models.GroupOwner(router.Param(ctx, "id")))
}

func (s *Server) recall(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
	msg, _, err := s.coord.Recall(ctx, me, router.Param(ctx, "id"))
	if err != nil {
		respond.WriteError(ctx, err)
		return
	}
	respond.WriteJSON(ctx, fasthttp.StatusOK, msg)
}

func (s *Server) react(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
	var in reactionRequest
	if err := respond.Bind(ctx, &in); err != nil {
		respond.WriteError(ctx, err)
		return
	}
	msg, active, err := s.coord.React(ctx, me, router.Param(ctx, "id"), in.Reaction)
	if err != nil {
		respond.WriteError(ctx, err)
		return
	}
	respond.WriteJSON(ctx, fasthttp.StatusOK, map[string]any{"message": msg, "active": active})
}

func (s *Server) forward(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
	var in forwardRequest
	if err := respond.Bind(ctx, &in); err != nil {
		respond.WriteError(ctx, err)
		return
	}
	msg, err := s.coord.Forward(ctx, me, router.Param(ctx, "id"), coordinator.ForwardTarget{
		GroupID: in.TargetGroupID,
		Email:   in.TargetEmail,
	})
	if err != nil {
		respond.WriteError(ctx, err)
		return
	}
	respond.WriteJSON(ctx, fasthttp.StatusCreated, msg)
}

func (s *Server) markRead(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
	msg, err := s.coord.MarkRead(ctx, me, router.Param(ctx, "id"))
	if err != nil {
		respond.WriteError(ctx, err)
		return
	}
	respond.WriteJSON(ctx, fasthttp.StatusOK, msg)
}

func (s *Server) softDelete(ctx *fasthttp.RequestCtx, me coordinator.Actor) {
	if _, err := s.coord.SoftDeleteForUser(ctx, me, router.Param(ctx, "id")); err != nil {
		respond.WriteError(ctx, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

