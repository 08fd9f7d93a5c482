package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatschat/models"
)

func TestDecode_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "definitely not json"},
		{"truncated", `{"users": [`},
		{"null", `null`},
		{"missing users", `{"messages": [], "contacts": {}}`},
		{"missing messages", `{"users": [], "contacts": {}}`},
		{"missing contacts", `{"users": [], "messages": []}`},
		{"trailing data", `{"users": [], "messages": [], "contacts": {}} {}`},
		{"user without id", `{"users": [{"name": "x"}], "messages": [], "contacts": {}}`},
		{"duplicate user", `{"users": [{"id": "a"}, {"id": "a"}], "messages": [], "contacts": {}}`},
		{"both targets", `{"users": [], "messages": [{"id": "m", "receiverId": "a", "groupId": "g", "status": "sent"}], "contacts": {}}`},
		{"no target", `{"users": [], "messages": [{"id": "m", "status": "sent"}], "contacts": {}}`},
		{"unknown status", `{"users": [], "messages": [{"id": "m", "receiverId": "a", "status": "ackn"}], "contacts": {}}`},
		{"bad timestamp", `{"users": [], "messages": [{"id": "m", "receiverId": "a", "status": "sent", "timestamp": "yesterday"}], "contacts": {}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := Decode([]byte(tt.data))
			assert.Nil(t, snap)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestDecode_MissingGroupsIsEmpty(t *testing.T) {
	snap, err := Decode([]byte(`{"users": [], "messages": [], "contacts": {}}`))
	require.NoError(t, err)
	assert.NotNil(t, snap.Groups)
	assert.Empty(t, snap.Groups)
}

func TestEncode_NilSectionsBecomeEmpty(t *testing.T) {
	snap := &models.Snapshot{}

	data, err := Encode(snap)
	require.NoError(t, err)
	assert.JSONEq(t, `{"users": [], "messages": [], "contacts": {}, "groups": []}`, string(data))

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, snap, decoded)
}

func TestEncode_DoesNotPersistVersion(t *testing.T) {
	snap := &models.Snapshot{Version: 42}

	data, err := Encode(snap)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "42")
}

func TestMemoryStore_RoundTripAndStaleWrite(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	seed, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seed.Version)

	snap := sampleSnapshot(t)
	require.NoError(t, m.Save(ctx, snap))
	assert.Equal(t, int64(1), snap.Version)

	loaded, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)

	// Loaded copies are independent of each other.
	loaded.Users[0].Name = "changed"
	again, err := m.Load(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, "changed", again.Users[0].Name)

	assert.ErrorIs(t, m.Save(ctx, seed), ErrStaleWrite)
}

func TestMemoryStore_CorruptBlobFailsClosed(t *testing.T) {
	m := NewMemoryStore()
	m.data = []byte("{broken")
	m.version = 7

	_, err := m.Load(context.Background())
	assert.ErrorIs(t, err, ErrCorrupt)
}
