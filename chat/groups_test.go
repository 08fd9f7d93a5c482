package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatschat/models"
)

func TestCreateGroup(t *testing.T) {
	f := newFixture(t)
	engine, _ := f.engine(t)
	ctx := context.Background()

	group, err := engine.CreateGroup(ctx, " Book Club ", "Monthly reads",
		[]string{"user_2", "user_2", "user_3", "user_1"}, "user_1")
	require.NoError(t, err)
	assert.Equal(t, "g_1", group.ID)
	assert.Equal(t, "Book Club", group.Name)
	assert.Equal(t, []string{"user_2", "user_3", "user_1"}, group.MemberIDs)
	assert.Equal(t, "user_1", group.AdminID)
	assert.False(t, group.CreatedAt.IsZero())

	stored, err := engine.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, group, stored)
}

func TestCreateGroup_Errors(t *testing.T) {
	f := newFixture(t)
	engine, _ := f.engine(t)
	ctx := context.Background()

	_, err := engine.CreateGroup(ctx, "  ", "", nil, "user_1")
	assert.ErrorIs(t, err, ErrEmptyGroupName)

	_, err = engine.CreateGroup(ctx, "X", "", []string{"user_404"}, "user_1")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = engine.GetGroup(ctx, "g_404")
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestGroupMessaging(t *testing.T) {
	f := newFixture(t)
	engine, _ := f.engine(t)
	ctx := context.Background()

	group, err := engine.CreateGroup(ctx, "Team", "", []string{"user_2", "user_3"}, "user_1")
	require.NoError(t, err)

	msg, err := engine.SendMessage(ctx, "user_1", group.ID, "standup in 5")
	require.NoError(t, err)
	assert.Equal(t, group.ID, msg.GroupID)
	assert.Empty(t, msg.ReceiverID)

	stored, err := engine.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, "standup in 5", stored.LastMessage)
	require.NotNil(t, stored.LastMessageTime)
	assert.True(t, stored.LastMessageTime.Equal(msg.Timestamp))

	for _, user := range []string{"user_2", "user_3"} {
		contacts, err := engine.GetContacts(ctx, user)
		require.NoError(t, err)
		c := findContact(t, contacts, group.ID)
		assert.Equal(t, 1, c.UnreadCount)
		assert.Equal(t, "standup in 5", c.LastMessage)
	}

	require.NoError(t, engine.MarkAsRead(ctx, "user_2", group.ID))
	msgs, err := engine.GetMessages(ctx, "user_2", group.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"user_2"}, msgs[0].ReadBy)
	assert.NotEqual(t, models.StatusRead, msgs[0].Status, "user_3 has not read it yet")

	contacts, err := engine.GetContacts(ctx, "user_2")
	require.NoError(t, err)
	assert.Zero(t, findContact(t, contacts, group.ID).UnreadCount)

	require.NoError(t, engine.MarkAsRead(ctx, "user_3", group.ID))
	msgs, err = engine.GetMessages(ctx, "user_3", group.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, msgs[0].Status)
}

func TestGroupMessaging_NonMember(t *testing.T) {
	f := newFixture(t)
	engine, _ := f.engine(t)
	ctx := context.Background()

	group, err := engine.CreateGroup(ctx, "Pair", "", []string{"user_2"}, "user_1")
	require.NoError(t, err)

	_, err = engine.SendMessage(ctx, "user_3", group.ID, "let me in")
	assert.ErrorIs(t, err, ErrNotGroupMember)

	_, err = engine.GetMessages(ctx, "user_3", group.ID)
	assert.ErrorIs(t, err, ErrNotGroupMember)

	err = engine.MarkAsRead(ctx, "user_3", group.ID)
	assert.ErrorIs(t, err, ErrNotGroupMember)

	contacts, err := engine.GetContacts(ctx, "user_3")
	require.NoError(t, err)
	assert.NotContains(t, contactIDs(contacts), group.ID)
}

func TestAddGroupMember(t *testing.T) {
	f := newFixture(t)
	engine, _ := f.engine(t)
	ctx := context.Background()

	group, err := engine.CreateGroup(ctx, "Pair", "", []string{"user_2"}, "user_1")
	require.NoError(t, err)

	err = engine.AddGroupMember(ctx, "user_2", group.ID, "user_3")
	assert.ErrorIs(t, err, ErrNotGroupAdmin)
	assert.True(t, IsUnauthorized(err))

	require.NoError(t, engine.AddGroupMember(ctx, "user_1", group.ID, "user_3"))
	err = engine.AddGroupMember(ctx, "user_1", group.ID, "user_3")
	assert.ErrorIs(t, err, ErrAlreadyMember)

	err = engine.AddGroupMember(ctx, "user_1", "g_404", "user_3")
	assert.ErrorIs(t, err, ErrGroupNotFound)

	stored, err := engine.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"user_2", "user_1", "user_3"}, stored.MemberIDs)
}

func TestLeaveGroup(t *testing.T) {
	f := newFixture(t)
	engine, _ := f.engine(t)
	ctx := context.Background()

	group, err := engine.CreateGroup(ctx, "Trio", "", []string{"user_2", "user_3"}, "user_1")
	require.NoError(t, err)

	_, err = engine.SendMessage(ctx, "user_2", group.ID, "hi all")
	require.NoError(t, err)
	require.NoError(t, engine.MarkAsRead(ctx, "user_1", group.ID))

	// Once user_3 leaves, the only outstanding reader is gone.
	require.NoError(t, engine.LeaveGroup(ctx, "user_3", group.ID))
	msgs, err := engine.GetMessages(ctx, "user_1", group.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, msgs[0].Status)

	require.NoError(t, engine.LeaveGroup(ctx, "user_1", group.ID))
	stored, err := engine.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"user_2"}, stored.MemberIDs)
	assert.Equal(t, "user_2", stored.AdminID, "admin handed to first remaining member")

	err = engine.LeaveGroup(ctx, "user_1", group.ID)
	assert.ErrorIs(t, err, ErrNotGroupMember)

	require.NoError(t, engine.LeaveGroup(ctx, "user_2", group.ID))
	stored, err = engine.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.MemberIDs)
	assert.Empty(t, stored.AdminID)
}
