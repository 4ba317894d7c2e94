package social

import (
	"context"
	"strings"

	"chatzalo/pkg/coordinator"
	"chatzalo/pkg/events"
	"chatzalo/pkg/logger"
	"chatzalo/pkg/models"
	"chatzalo/pkg/store"
	"chatzalo/pkg/utils"
)

const maxGroupName = 100

// GroupInput describes a group at creation.
type GroupInput struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Avatar            string   `json:"avatar"`
	Members           []string `json:"members"`
	AllowMemberInvite bool     `json:"allowMemberInvite"`
}

// GroupInfo is a partial edit of a group's descriptive fields; nil fields
// are left alone.
type GroupInfo struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Avatar      *string `json:"avatar"`
}

func (s *Service) loadGroup(id string) (*models.Group, error) {
	if id == "" {
		return nil, invalid("groupId", "is required")
	}
	g, err := s.store.GetGroup(id)
	if store.IsNotFound(err) || (err == nil && g.Deleted()) {
		return nil, coordinator.ErrNotFound
	}
	if err != nil {
		return nil, persist("load_group", err)
	}
	return g, nil
}

func (s *Service) displayName(email string) string {
	u, err := s.store.GetUser(email)
	if err != nil {
		return email
	}
	return u.Profile().FullName
}

// editGroup runs fn on the group under its owner lock and writes the result
// when fn reports a change. Everyone who was or is a member hears
// groupUpdated.
func (s *Service) editGroup(actor, groupID string, fn func(g *models.Group) (bool, error)) (models.Group, error) {
	release := s.coord.LockOwner(models.GroupOwner(groupID))
	defer release()

	g, err := s.loadGroup(groupID)
	if err != nil {
		return models.Group{}, err
	}
	if !g.IsMember(actor) {
		return models.Group{}, coordinator.ErrForbidden
	}
	before := append([]string(nil), g.Members...)
	changed, err := fn(g)
	if err != nil {
		return models.Group{}, err
	}
	if !changed {
		return g.Summary(), nil
	}
	if err := s.store.UpdateGroup(g); err != nil {
		return models.Group{}, persist("update_group", err)
	}
	sum := g.Summary()
	audience := utils.Dedupe(append(before, g.Members...))
	if g.Deleted() {
		s.notify.EmitToUsers(audience, events.GroupDeleted, map[string]string{"groupId": g.ID}, "")
	} else {
		s.notify.EmitToUsers(audience, events.GroupUpdated, events.GroupPayload{Group: sum}, "")
	}
	return sum, nil
}

func requireAdmin(g *models.Group, actor string) error {
	if !g.IsAdmin(actor) {
		return coordinator.ErrForbidden
	}
	return nil
}

func requireMember(g *models.Group, email string) error {
	if !g.IsMember(email) {
		return invalid("email", "is not a member")
	}
	return nil
}

// CreateGroup creates a group with creator as its only admin. Every listed
// member must be a registered user.
func (s *Service) CreateGroup(ctx context.Context, creator coordinator.Actor, in GroupInput) (models.Group, error) {
	if err := ctx.Err(); err != nil {
		return models.Group{}, err
	}
	g, err := s.createGroup(creator, in)
	if err == nil {
		s.systemMessage(ctx, creator, g.ID, models.ActionCreated, s.displayName(creator.Email), events.GroupMessageJoin)
		s.notify.EmitToUsers(g.Members, events.GroupUpdated, events.GroupPayload{Group: g}, "")
	}
	return g, s.observe("create_group", err)
}

func (s *Service) createGroup(creator coordinator.Actor, in GroupInput) (models.Group, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.Group{}, invalid("name", "is required")
	}
	if len(name) > maxGroupName {
		return models.Group{}, invalid("name", "is too long")
	}
	members := []string{creator.Email}
	for _, m := range in.Members {
		if m = utils.NormalizeEmail(m); m != "" {
			members, _ = utils.AddUnique(members, m)
		}
	}
	for _, m := range members {
		ok, err := s.store.UserExists(m)
		if err != nil {
			return models.Group{}, persist("create_group", err)
		}
		if !ok {
			return models.Group{}, coordinator.ErrNotFound
		}
	}
	g := &models.Group{
		ID:                utils.GenID(),
		Name:              name,
		Description:       strings.TrimSpace(in.Description),
		Avatar:            in.Avatar,
		Creator:           creator.Email,
		Members:           members,
		Admins:            []string{creator.Email},
		AllowMemberInvite: in.AllowMemberInvite,
		CreatedAt:         s.now(),
	}
	if err := s.store.CreateGroup(g); err != nil {
		return models.Group{}, persist("create_group", err)
	}
	return g.Summary(), nil
}

// Group returns the group's metadata to one of its members.
func (s *Service) Group(ctx context.Context, viewer, groupID string) (models.Group, error) {
	if err := ctx.Err(); err != nil {
		return models.Group{}, err
	}
	g, err := s.loadGroup(groupID)
	if err != nil {
		return models.Group{}, err
	}
	if !g.IsMember(viewer) {
		return models.Group{}, coordinator.ErrForbidden
	}
	return g.Summary(), nil
}

// GroupsFor lists the live groups email belongs to.
func (s *Service) GroupsFor(ctx context.Context, email string) ([]models.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	gs, err := s.store.ListGroupsForMember(email)
	if err != nil {
		return nil, persist("list_groups", err)
	}
	out := make([]models.Group, 0, len(gs))
	for _, g := range gs {
		out = append(out, *g)
	}
	return out, nil
}

// IsMember reports whether email belongs to the live group groupID.
func (s *Service) IsMember(groupID, email string) (bool, error) {
	g, err := s.loadGroup(groupID)
	if err != nil {
		return false, err
	}
	return g.IsMember(email), nil
}

// AddMembers adds registered users to the group. The actor needs invite
// rights (admin, deputy, or any member when member invites are on). Each
// new member gets a join message in the group.
func (s *Service) AddMembers(ctx context.Context, actor coordinator.Actor, groupID string, emails []string) (models.Group, error) {
	if err := ctx.Err(); err != nil {
		return models.Group{}, err
	}
	var added []string
	g, err := s.editGroup(actor.Email, groupID, func(g *models.Group) (bool, error) {
		if !g.CanInvite(actor.Email) {
			return false, coordinator.ErrForbidden
		}
		for _, e := range emails {
			e = utils.NormalizeEmail(e)
			if e == "" || g.IsMember(e) {
				continue
			}
			ok, err := s.store.UserExists(e)
			if err != nil {
				return false, persist("add_members", err)
			}
			if !ok {
				return false, coordinator.ErrNotFound
			}
			g.Members = append(g.Members, e)
			added = append(added, e)
		}
		return len(added) > 0, nil
	})
	if err == nil {
		for _, e := range added {
			s.systemMessage(ctx, actor, groupID, models.ActionJoin, s.displayName(e), events.GroupMessageJoin)
		}
	}
	return g, s.observe("add_members", err)
}

// RemoveMember takes target out of the group. Admins may remove anyone but
// the creator; deputies may remove plain members.
func (s *Service) RemoveMember(ctx context.Context, actor coordinator.Actor, groupID, target string) (models.Group, error) {
	if err := ctx.Err(); err != nil {
		return models.Group{}, err
	}
	target = utils.NormalizeEmail(target)
	if target == actor.Email {
		return models.Group{}, s.observe("remove_member", invalid("email", "use leave to remove yourself"))
	}
	g, err := s.editGroup(actor.Email, groupID, func(g *models.Group) (bool, error) {
		if err := requireMember(g, target); err != nil {
			return false, err
		}
		switch {
		case target == g.Creator:
			return false, coordinator.ErrForbidden
		case g.IsAdmin(actor.Email):
		case g.IsDeputy(actor.Email) && !g.IsAdmin(target) && !g.IsDeputy(target):
		default:
			return false, coordinator.ErrForbidden
		}
		return g.RemoveMember(target), nil
	})
	if err == nil {
		s.notify.EvictFromRoom(groupID, target)
		s.systemMessage(ctx, actor, groupID, models.ActionRemoved, s.displayName(target), events.GroupMessageLeave)
	}
	return g, s.observe("remove_member", err)
}

// AddAdmin grants admin to a member without touching existing admins.
func (s *Service) AddAdmin(ctx context.Context, actor coordinator.Actor, groupID, target string) (models.Group, error) {
	if err := ctx.Err(); err != nil {
		return models.Group{}, err
	}
	target = utils.NormalizeEmail(target)
	g, err := s.editGroup(actor.Email, groupID, func(g *models.Group) (bool, error) {
		if err := requireAdmin(g, actor.Email); err != nil {
			return false, err
		}
		if err := requireMember(g, target); err != nil {
			return false, err
		}
		var changed bool
		g.Admins, changed = utils.AddUnique(g.Admins, target)
		g.Deputies, _ = utils.Remove(g.Deputies, target)
		return changed, nil
	})
	return g, s.observe("add_admin", err)
}

// RemoveAdmin revokes admin from target. The creator and the last admin
// cannot be demoted.
func (s *Service) RemoveAdmin(ctx context.Context, actor coordinator.Actor, groupID, target string) (models.Group, error) {
	if err := ctx.Err(); err != nil {
		return models.Group{}, err
	}
	target = utils.NormalizeEmail(target)
	g, err := s.editGroup(actor.Email, groupID, func(g *models.Group) (bool, error) {
		if err := requireAdmin(g, actor.Email); err != nil {
			return false, err
		}
		if !g.IsAdmin(target) {
			return false, nil
		}
		if target == g.Creator {
			return false, coordinator.ErrForbidden
		}
		if len(g.Admins) == 1 {
			return false, invalid("email", "group needs at least one admin")
		}
		g.Admins, _ = utils.Remove(g.Admins, target)
		return true, nil
	})
	return g, s.observe("remove_admin", err)
}

// TransferSoleAdmin makes target the only admin and the group's creator.
// Every other admin, including the actor, becomes a plain member.
func (s *Service) TransferSoleAdmin(ctx context.Context, actor coordinator.Actor, groupID, target string) (models.Group, error) {
	if err := ctx.Err(); err != nil {
		return models.Group{}, err
	}
	target = utils.NormalizeEmail(target)
	g, err := s.editGroup(actor.Email, groupID, func(g *models.Group) (bool, error) {
		if err := requireAdmin(g, actor.Email); err != nil {
			return false, err
		}
		if err := requireMember(g, target); err != nil {
			return false, err
		}
		if len(g.Admins) == 1 && g.Admins[0] == target && g.Creator == target {
			return false, nil
		}
		g.Admins = []string{target}
		g.Creator = target
		g.Deputies, _ = utils.Remove(g.Deputies, target)
		return true, nil
	})
	return g, s.observe("transfer_admin", err)
}

// AddDeputy grants the deputy role to a non-admin member.
func (s *Service) AddDeputy(ctx context.Context, actor coordinator.Actor, groupID, target string) (models.Group, error) {
	if err := ctx.Err(); err != nil {
		return models.Group{}, err
	}
	target = utils.NormalizeEmail(target)
	g, err := s.editGroup(actor.Email, groupID, func(g *models.Group) (bool, error) {
		if err := requireAdmin(g, actor.Email); err != nil {
			return false, err
		}
		if err := requireMember(g, target); err != nil {
			return false, err
		}
		if g.IsAdmin(target) {
			return false, invalid("email", "is already an admin")
		}
		var changed bool
		g.Deputies, changed = utils.AddUnique(g.Deputies, target)
		return changed, nil
	})
	return g, s.observe("add_deputy", err)
}

func (s *Service) RemoveDeputy(ctx context.Context, actor coordinator.Actor, groupID, target string) (models.Group, error) {
	if err := ctx.Err(); err != nil {
		return models.Group{}, err
	}
	target = utils.NormalizeEmail(target)
	g, err := s.editGroup(actor.Email, groupID, func(g *models.Group) (bool, error) {
		if err := requireAdmin(g, actor.Email); err != nil {
			return false, err
		}
		var changed bool
		g.Deputies, changed = utils.Remove(g.Deputies, target)
		return changed, nil
	})
	return g, s.observe("remove_deputy", err)
}

// SetAllowMemberInvite toggles whether plain members may add others.
func (s *Service) SetAllowMemberInvite(ctx context.Context, actor coordinator.Actor, groupID string, allow bool) (models.Group, error) {
	if err := ctx.Err(); err != nil {
		return models.Group{}, err
	}
	g, err := s.editGroup(actor.Email, groupID, func(g *models.Group) (bool, error) {
		if err := requireAdmin(g, actor.Email); err != nil {
			return false, err
		}
		if g.AllowMemberInvite == allow {
			return false, nil
		}
		g.AllowMemberInvite = allow
		return true, nil
	})
	return g, s.observe("invite_toggle", err)
}

// UpdateInfo edits name, description or avatar. Admins and deputies only.
func (s *Service) UpdateInfo(ctx context.Context, actor coordinator.Actor, groupID string, info GroupInfo) (models.Group, error) {
	if err := ctx.Err(); err != nil {
		return models.Group{}, err
	}
	g, err := s.editGroup(actor.Email, groupID, func(g *models.Group) (bool, error) {
		if !g.IsAdmin(actor.Email) && !g.IsDeputy(actor.Email) {
			return false, coordinator.ErrForbidden
		}
		changed := false
		if info.Name != nil {
			name := strings.TrimSpace(*info.Name)
			if name == "" || len(name) > maxGroupName {
				return false, invalid("name", "must be 1-100 bytes")
			}
			changed = changed || name != g.Name
			g.Name = name
		}
		if info.Description != nil {
			d := strings.TrimSpace(*info.Description)
			changed = changed || d != g.Description
			g.Description = d
		}
		if info.Avatar != nil {
			changed = changed || *info.Avatar != g.Avatar
			g.Avatar = *info.Avatar
		}
		return changed, nil
	})
	return g, s.observe("update_group", err)
}

// Leave removes the actor from the group after posting a leave message. If
// the last admin leaves, the first deputy (or else the first remaining
// member) is promoted. A group left empty is tombstoned.
func (s *Service) Leave(ctx context.Context, actor coordinator.Actor, groupID string) (models.Group, error) {
	if err := ctx.Err(); err != nil {
		return models.Group{}, err
	}
	if ok, err := s.IsMember(groupID, actor.Email); err != nil || !ok {
		if err == nil {
			err = coordinator.ErrForbidden
		}
		return models.Group{}, s.observe("leave_group", err)
	}
	s.systemMessage(ctx, actor, groupID, models.ActionLeave, s.displayName(actor.Email), events.GroupMessageLeave)

	g, err := s.editGroup(actor.Email, groupID, func(g *models.Group) (bool, error) {
		g.RemoveMember(actor.Email)
		if len(g.Members) == 0 {
			now := s.now()
			g.DeletedAt = &now
			return true, nil
		}
		if len(g.Admins) == 0 {
			heir := g.Members[0]
			if len(g.Deputies) > 0 {
				heir = g.Deputies[0]
			}
			g.Admins = []string{heir}
			g.Deputies, _ = utils.Remove(g.Deputies, heir)
		}
		if g.Creator == actor.Email {
			g.Creator = g.Admins[0]
		}
		return true, nil
	})
	if err == nil {
		s.notify.EvictFromRoom(groupID, actor.Email)
	}
	return g, s.observe("leave_group", err)
}

// Delete tombstones the group. Admins only. The record stays until the
// retention runner purges it; reads treat it as gone immediately.
func (s *Service) Delete(ctx context.Context, actor coordinator.Actor, groupID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var members []string
	_, err := s.editGroup(actor.Email, groupID, func(g *models.Group) (bool, error) {
		if err := requireAdmin(g, actor.Email); err != nil {
			return false, err
		}
		now := s.now()
		g.DeletedAt = &now
		members = append(members, g.Members...)
		return true, nil
	})
	if err == nil {
		for _, m := range members {
			s.notify.EvictFromRoom(groupID, m)
		}
	}
	return s.observe("delete_group", err)
}

// systemMessage appends a membership notice. Failures are logged; the
// membership change already happened.
func (s *Service) systemMessage(ctx context.Context, actor coordinator.Actor, groupID string, action models.SystemAction, subject, event string) {
	if _, err := s.coord.AppendSystem(ctx, actor, groupID, action, subject, event); err != nil {
		logger.Warn("group_system_message_failed", "group", groupID, "action", string(action), "error", err)
	}
}
