package chat

import (
	"context"
	"strings"

	"whatschat/models"
)

// CreateGroup creates a group administered by adminID. The admin is always
// a member; duplicate member ids are collapsed.
func (e *Engine) CreateGroup(ctx context.Context, name, description string, memberIDs []string, adminID string) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyGroupName
	}

	var group models.Group
	err := e.mutateAndNotify(ctx, "create group", func(snap *models.Snapshot) (bool, error) {
		members := make([]string, 0, len(memberIDs)+1)
		for _, id := range append(append([]string(nil), memberIDs...), adminID) {
			if contains(members, id) {
				continue
			}
			if _, ok := snap.User(id); !ok {
				return false, ErrUserNotFound
			}
			members = append(members, id)
		}

		group = models.Group{
			ID:          e.id("g_"),
			Name:        name,
			Description: strings.TrimSpace(description),
			Avatar:      name,
			MemberIDs:   members,
			AdminID:     adminID,
			CreatedAt:   e.timestamp(),
		}
		snap.Groups = append(snap.Groups, group)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (e *Engine) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	g, ok := snap.Group(groupID)
	if !ok {
		return nil, ErrGroupNotFound
	}
	group := *g
	return &group, nil
}

// AddGroupMember adds userID to the group. Only the admin may add members.
func (e *Engine) AddGroupMember(ctx context.Context, adminID, groupID, userID string) error {
	return e.mutateAndNotify(ctx, "add group member", func(snap *models.Snapshot) (bool, error) {
		g, ok := snap.Group(groupID)
		if !ok {
			return false, ErrGroupNotFound
		}
		if g.AdminID != adminID {
			return false, ErrNotGroupAdmin
		}
		if _, ok := snap.User(userID); !ok {
			return false, ErrUserNotFound
		}
		if g.HasMember(userID) {
			return false, ErrAlreadyMember
		}
		g.MemberIDs = append(g.MemberIDs, userID)
		return true, nil
	})
}

// LeaveGroup removes userID from the group. An admin who leaves hands the
// group to the first remaining member. The group is kept even when empty.
func (e *Engine) LeaveGroup(ctx context.Context, userID, groupID string) error {
	return e.mutateAndNotify(ctx, "leave group", func(snap *models.Snapshot) (bool, error) {
		g, ok := snap.Group(groupID)
		if !ok {
			return false, ErrGroupNotFound
		}
		if !g.HasMember(userID) {
			return false, ErrNotGroupMember
		}

		g.MemberIDs = without(g.MemberIDs, userID)
		if g.AdminID == userID {
			g.AdminID = ""
			if len(g.MemberIDs) > 0 {
				g.AdminID = g.MemberIDs[0]
			}
		}
		// Fewer readers may now be outstanding.
		refreshGroupStatus(snap, g)
		return true, nil
	})
}
