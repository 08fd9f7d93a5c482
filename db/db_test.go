package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatschat/models"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "test.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSnapshot(t *testing.T) *models.Snapshot {
	t.Helper()

	snap, err := Seed()
	require.NoError(t, err)

	ts := time.Date(2025, 3, 14, 15, 9, 26, 535897932, time.UTC)
	last := ts.Add(time.Minute)
	snap.Messages = append(snap.Messages,
		models.Message{ID: "m1", SenderID: "user_1", ReceiverID: "user_2", Text: "hi", Timestamp: ts, Status: models.StatusSent},
		models.Message{ID: "m2", SenderID: "user_2", GroupID: "g_1", Text: "hello all", Timestamp: last, Status: models.StatusDelivered, ReadBy: []string{"user_1"}},
	)
	snap.Groups = append(snap.Groups, models.Group{
		ID:              "g_1",
		Name:            "Family",
		MemberIDs:       []string{"user_1", "user_2", "user_3"},
		AdminID:         "user_2",
		CreatedAt:       ts,
		LastMessage:     "hello all",
		LastMessageTime: &last,
	})
	return snap
}

func TestNew_CreatesSchema(t *testing.T) {
	s := setupTestStore(t)

	assert.True(t, s.columnExists("snapshots", "value"))
	assert.True(t, s.columnExists("snapshots", "updated_at"))
	assert.Equal(t, DefaultKey, s.Key())
}

func TestNew_MigratesOldSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")

	data, err := Encode(sampleSnapshot(t))
	require.NoError(t, err)

	conn, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = conn.Exec(`CREATE TABLE snapshots (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		version INTEGER NOT NULL
	)`)
	require.NoError(t, err)
	_, err = conn.Exec("INSERT INTO snapshots (key, value, version) VALUES (?, ?, 7)", DefaultKey, string(data))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	s, err := New(path, "")
	require.NoError(t, err)
	defer s.Close()

	assert.True(t, s.columnExists("snapshots", "updated_at"))

	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), snap.Version)
	assert.Len(t, snap.Messages, 2)

	require.NoError(t, s.Save(context.Background(), snap))
	assert.Equal(t, int64(8), snap.Version)
}

func TestNew_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := New(path, "")
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, s.Close())
	}
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/dir/test.db", "")
	assert.Error(t, err)
}

func TestLoad_EmptyStoreReturnsSeed(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	snap, err := s.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(0), snap.Version)
	require.Len(t, snap.Users, 3)
	assert.Equal(t, "user_1", snap.Users[0].ID)
	assert.Empty(t, snap.Messages)
	assert.Empty(t, snap.Groups)
	assert.Equal(t, []string{"user_2", "user_3"}, snap.Contacts["user_1"])

	// Loading the seed does not write it.
	version, err := s.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	snap := sampleSnapshot(t)
	require.NoError(t, s.Save(ctx, snap))
	assert.Equal(t, int64(1), snap.Version)

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)
	assert.True(t, loaded.Messages[0].Timestamp.Equal(snap.Messages[0].Timestamp))
}

func TestSave_NormalizesLocalTimestamps(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	snap := sampleSnapshot(t)
	zone := time.FixedZone("UTC+3", 3*60*60)
	snap.Messages[0].Timestamp = time.Date(2025, 1, 1, 12, 0, 0, 0, zone)

	require.NoError(t, s.Save(ctx, snap))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)
	assert.Equal(t, 9, loaded.Messages[0].Timestamp.Hour())
}

func TestSave_StaleWriteRejected(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first, err := s.Load(ctx)
	require.NoError(t, err)
	second, err := s.Load(ctx)
	require.NoError(t, err)

	first.Users[0].Name = "first"
	require.NoError(t, s.Save(ctx, first))

	second.Users[0].Name = "second"
	assert.ErrorIs(t, s.Save(ctx, second), ErrStaleWrite)
	assert.Equal(t, int64(0), second.Version)

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", loaded.Users[0].Name)

	// A writer that reloads can save again.
	loaded.Users[0].Name = "third"
	require.NoError(t, s.Save(ctx, loaded))
	assert.Equal(t, int64(2), loaded.Version)
}

func TestLoad_CorruptBlobFailsClosed(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.conn.Exec(
		"INSERT INTO snapshots (key, value, version) VALUES (?, ?, 1)",
		DefaultKey, `{"users": [{"id": "user_1"`,
	)
	require.NoError(t, err)

	snap, err := s.Load(ctx)
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, ErrCorrupt)

	// The corrupt row is left alone for the operator.
	var value string
	require.NoError(t, s.conn.QueryRow("SELECT value FROM snapshots WHERE key = ?", DefaultKey).Scan(&value))
	assert.Contains(t, value, "user_1")
}

func TestKeysAreIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	v3, err := New(path, "whatschat_db_v3")
	require.NoError(t, err)
	defer v3.Close()
	v4, err := New(path, "whatschat_db_v4")
	require.NoError(t, err)
	defer v4.Close()

	snap := sampleSnapshot(t)
	require.NoError(t, v3.Save(ctx, snap))

	other, err := v4.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, other.Messages)
	assert.Equal(t, int64(0), other.Version)
}
