package state

import (
	"context"
	"errors"
)

var ErrSnapshotNotFound = errors.New("session snapshot not found")

// Snapshot is the durable form of one session and its tenant profile. The
// host loads snapshots at startup and saves after mutating turns; the
// snapshot store never mutates concurrently with the engine.
type Snapshot struct {
	Session ConversationSession `json:"session"`
	Profile TenantProfile       `json:"profile"`
}

// Store is the persistence contract behind the in-memory session store.
type Store interface {
	Load(ctx context.Context, sessionID string) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Delete(ctx context.Context, sessionID string) error
}
