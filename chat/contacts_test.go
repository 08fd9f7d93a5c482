package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatschat/models"
)

func contactIDs(contacts []models.Contact) []string {
	ids := make([]string, len(contacts))
	for i, c := range contacts {
		ids[i] = c.ID
	}
	return ids
}

func findContact(t *testing.T, contacts []models.Contact, id string) models.Contact {
	t.Helper()
	for _, c := range contacts {
		if c.ID == id {
			return c
		}
	}
	t.Fatalf("contact %s not found", id)
	return models.Contact{}
}

func TestGetContacts_Seed(t *testing.T) {
	f := newFixture(t)
	engine, _ := f.engine(t)

	contacts, err := engine.GetContacts(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"user_2", "user_3"}, contactIDs(contacts))

	alex := contacts[0]
	assert.Equal(t, "Alex Johnson", alex.Name)
	assert.Equal(t, "tech_alex", alex.Username)
	assert.Zero(t, alex.UnreadCount)
	assert.Nil(t, alex.LastMessageTime)
	assert.False(t, alex.IsGroup)
}

func TestGetContacts_Presence(t *testing.T) {
	f := newFixture(t)
	engine, _ := f.engine(t, WithPresence(func(context.Context) ([]string, error) {
		return []string{"user_2", "user_9"}, nil
	}))
	ctx := context.Background()

	_, err := engine.CreateGroup(ctx, "Family", "", []string{"user_2"}, "user_1")
	require.NoError(t, err)

	contacts, err := engine.GetContacts(ctx, "user_1")
	require.NoError(t, err)
	require.Len(t, contacts, 3)
	assert.Equal(t, models.PresenceOnline, findContact(t, contacts, "user_2").Status)
	assert.Equal(t, models.PresenceOffline, findContact(t, contacts, "user_3").Status)
	for _, c := range contacts {
		if c.IsGroup {
			assert.Empty(t, c.Status)
		}
	}
}

func TestGetContacts_PresenceUnknown(t *testing.T) {
	f := newFixture(t)
	plain, _ := f.engine(t)
	failing, _ := f.engine(t, WithPresence(func(context.Context) ([]string, error) {
		return nil, errors.New("relay down")
	}))

	for _, engine := range []*Engine{plain, failing} {
		contacts, err := engine.GetContacts(context.Background(), "user_1")
		require.NoError(t, err)
		for _, c := range contacts {
			assert.Empty(t, c.Status, c.ID)
		}
	}
}

func TestGetContacts_UnknownUser(t *testing.T) {
	f := newFixture(t)
	engine, _ := f.engine(t)

	_, err := engine.GetContacts(context.Background(), "user_404")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUnreadScenario(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.engine(t)
	bob, _ := f.engine(t)
	ctx := context.Background()

	sent, err := alice.SendMessage(ctx, "user_1", "user_2", "hi")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, sent.Status)

	contacts, err := bob.GetContacts(ctx, "user_2")
	require.NoError(t, err)
	c := findContact(t, contacts, "user_1")
	assert.Equal(t, 1, c.UnreadCount)
	assert.Equal(t, "hi", c.LastMessage)
	require.NotNil(t, c.LastMessageTime)
	assert.True(t, c.LastMessageTime.Equal(sent.Timestamp))

	// The sender has nothing unread.
	contacts, err = alice.GetContacts(ctx, "user_1")
	require.NoError(t, err)
	assert.Zero(t, findContact(t, contacts, "user_2").UnreadCount)

	require.NoError(t, bob.MarkAsRead(ctx, "user_2", "user_1"))

	contacts, err = bob.GetContacts(ctx, "user_2")
	require.NoError(t, err)
	assert.Zero(t, findContact(t, contacts, "user_1").UnreadCount)

	msgs, err := bob.GetMessages(ctx, "user_2", "user_1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.StatusRead, msgs[0].Status)
}

func TestGetContacts_OrderedByRecentActivity(t *testing.T) {
	f := newFixture(t)
	engine, _ := f.engine(t)
	ctx := context.Background()

	group, err := engine.CreateGroup(ctx, "Family", "", []string{"user_3"}, "user_1")
	require.NoError(t, err)

	contacts, err := engine.GetContacts(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"user_2", "user_3", group.ID}, contactIDs(contacts),
		"no activity: adjacency order, then groups")

	_, err = engine.SendMessage(ctx, "user_3", "user_1", "hello dear")
	require.NoError(t, err)
	contacts, err = engine.GetContacts(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"user_3", "user_2", group.ID}, contactIDs(contacts))

	_, err = engine.SendMessage(ctx, "user_1", group.ID, "dinner?")
	require.NoError(t, err)
	contacts, err = engine.GetContacts(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, []string{group.ID, "user_3", "user_2"}, contactIDs(contacts))

	g := findContact(t, contacts, group.ID)
	assert.True(t, g.IsGroup)
	assert.Equal(t, "dinner?", g.LastMessage)
	assert.Zero(t, g.UnreadCount)
}

func TestGetContacts_Deterministic(t *testing.T) {
	f := newFixture(t)
	engine, _ := f.engine(t)
	ctx := context.Background()

	_, err := engine.SendMessage(ctx, "user_2", "user_1", "a")
	require.NoError(t, err)
	_, err = engine.SendMessage(ctx, "user_3", "user_1", "b")
	require.NoError(t, err)

	first, err := engine.GetContacts(ctx, "user_1")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := engine.GetContacts(ctx, "user_1")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAddContact_Symmetric(t *testing.T) {
	f := newFixture(t)
	engine, _ := f.engine(t)
	ctx := context.Background()

	added, err := engine.AddContact(ctx, "user_2", "GRANNY_LOVE")
	require.NoError(t, err)
	assert.Equal(t, "user_3", added.ID)

	snap, err := engine.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user_1", "user_3"}, snap.Contacts["user_2"])
	assert.Equal(t, []string{"user_1", "user_2"}, snap.Contacts["user_3"])
}

func TestAddContact_ByID(t *testing.T) {
	f := newFixture(t)
	engine, _ := f.engine(t)
	ctx := context.Background()

	dana, err := engine.Register(ctx, RegisterRequest{
		Name: "Dana", Username: "dana", Email: "dana@example.com", Password: "x",
	})
	require.NoError(t, err)

	_, err = engine.AddContact(ctx, dana.ID, "user_1")
	require.NoError(t, err)

	snap, err := engine.Snapshot(ctx)
	require.NoError(t, err)
	assert.Contains(t, snap.Contacts[dana.ID], "user_1")
	assert.Contains(t, snap.Contacts["user_1"], dana.ID)
}

func TestAddContact_Errors(t *testing.T) {
	f := newFixture(t)
	engine, _ := f.engine(t)
	ctx := context.Background()

	before, err := engine.Snapshot(ctx)
	require.NoError(t, err)

	_, err = engine.AddContact(ctx, "user_1", "sofia_m")
	assert.ErrorIs(t, err, ErrSelfContact)

	_, err = engine.AddContact(ctx, "user_1", "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = engine.AddContact(ctx, "user_1", "")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = engine.AddContact(ctx, "user_1", "tech_alex")
	assert.ErrorIs(t, err, ErrAlreadyContact)

	after, err := engine.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed adds do not mutate")
}

func TestRemoveContact(t *testing.T) {
	f := newFixture(t)
	engine, _ := f.engine(t)
	ctx := context.Background()

	require.NoError(t, engine.RemoveContact(ctx, "user_1", "user_2"))

	snap, err := engine.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user_3"}, snap.Contacts["user_1"])
	assert.Empty(t, snap.Contacts["user_2"])

	err = engine.RemoveContact(ctx, "user_1", "user_2")
	assert.ErrorIs(t, err, ErrContactNotFound)
}
