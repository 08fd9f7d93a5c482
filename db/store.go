package db

import (
	"context"
	"errors"
	"sync"

	"whatschat/models"
)

// DefaultKey is the slot the snapshot lives under. Bump the suffix whenever
// the snapshot shape changes so old blobs are never read as the new shape.
const DefaultKey = "whatschat_db_v3"

var (
	// ErrCorrupt means the persisted snapshot could not be decoded. The store
	// refuses to continue rather than reseed over existing data.
	ErrCorrupt = errors.New("store: snapshot is corrupt")

	// ErrStaleWrite means another writer saved since the snapshot was loaded.
	ErrStaleWrite = errors.New("store: stale write")
)

// Store persists the whole snapshot. Every Save rewrites the full record.
type Store interface {
	// Load returns the current snapshot, or the seed snapshot at version 0
	// when nothing has been saved yet.
	Load(ctx context.Context) (*models.Snapshot, error)

	// Save writes snap if the stored version still equals snap.Version and
	// then increments snap.Version. Otherwise it returns ErrStaleWrite.
	Save(ctx context.Context, snap *models.Snapshot) error
}

// MemoryStore keeps the encoded snapshot in process memory. Contexts running
// in the same process share one MemoryStore the way browser tabs share one
// storage slot.
type MemoryStore struct {
	mu      sync.Mutex
	data    []byte
	version int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(ctx context.Context) (*models.Snapshot, error) {
	m.mu.Lock()
	data, version := m.data, m.version
	m.mu.Unlock()

	if data == nil {
		return Seed()
	}

	snap, err := Decode(data)
	if err != nil {
		return nil, err
	}
	snap.Version = version
	return snap, nil
}

func (m *MemoryStore) Save(ctx context.Context, snap *models.Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.Version != m.version {
		return ErrStaleWrite
	}
	m.data = data
	m.version++
	snap.Version = m.version
	return nil
}
