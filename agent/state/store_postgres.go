package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	statusx "github.com/rentalgenie/rental-genie-agent/agent/status"
)

// sessionRecord is the durable row for one session snapshot. The full
// snapshot lives in a jsonb payload; status and timestamps are lifted into
// columns so the dashboard can filter without unpacking json.
type sessionRecord struct {
	bun.BaseModel `bun:"table:tenant_sessions,alias:ts"`

	SessionID string          `bun:"session_id,pk"`
	Status    string          `bun:"status,notnull"`
	Platform  string          `bun:"platform,notnull"`
	Payload   json.RawMessage `bun:"payload,type:jsonb,notnull"`
	UpdatedAt time.Time       `bun:"updated_at,notnull"`
}

type PostgresConfig struct {
	DSN     string        `envconfig:"DSN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// PostgresSnapshotStore persists session snapshots in Postgres (Supabase in
// production) through bun.
type PostgresSnapshotStore struct {
	db *bun.DB
}

var _ Store = (*PostgresSnapshotStore)(nil)

func NewPostgresSnapshotStore(cfg PostgresConfig) (*PostgresSnapshotStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithTimeout(timeout),
	))
	return &PostgresSnapshotStore{db: bun.NewDB(sqldb, pgdialect.New())}, nil
}

// Init creates the snapshot table when it does not exist yet.
func (s *PostgresSnapshotStore) Init(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*sessionRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create tenant_sessions table: %w", err)
	}
	return nil
}

func (s *PostgresSnapshotStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}

	rec := new(sessionRecord)
	err := s.db.NewSelect().
		Model(rec).
		Where("session_id = ?", sessionID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, sessionID)
		}
		return nil, fmt.Errorf("load snapshot %s: %w", sessionID, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(rec.Payload, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", sessionID, err)
	}
	return &snap, nil
}

func (s *PostgresSnapshotStore) Save(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return errors.New("snapshot is nil")
	}
	if strings.TrimSpace(snap.Session.SessionID) == "" {
		return ErrInvalidSession
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	rec := &sessionRecord{
		SessionID: snap.Session.SessionID,
		Status:    string(snap.Profile.Status),
		Platform:  string(snap.Session.Platform),
		Payload:   payload,
		UpdatedAt: snap.Profile.UpdatedAt.UTC(),
	}

	_, err = s.db.NewInsert().
		Model(rec).
		On("CONFLICT (session_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("platform = EXCLUDED.platform").
		Set("payload = EXCLUDED.payload").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.Session.SessionID, err)
	}
	return nil
}

func (s *PostgresSnapshotStore) Delete(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	_, err := s.db.NewDelete().
		Model((*sessionRecord)(nil)).
		Where("session_id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", sessionID, err)
	}
	return nil
}

// ListByStatus returns the stored profiles currently in the given status,
// for dashboard queries that outlive any one process.
func (s *PostgresSnapshotStore) ListByStatus(ctx context.Context, st statusx.TenantStatus) ([]*TenantProfile, error) {
	if !statusx.IsValid(st) {
		return nil, fmt.Errorf("%w: %q", statusx.ErrUnknownStatus, st)
	}

	var recs []sessionRecord
	err := s.db.NewSelect().
		Model(&recs).
		Where("status = ?", string(st)).
		Order("session_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list snapshots by status %s: %w", st, err)
	}

	out := make([]*TenantProfile, 0, len(recs))
	for _, rec := range recs {
		var snap Snapshot
		if err := json.Unmarshal(rec.Payload, &snap); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot %s: %w", rec.SessionID, err)
		}
		profile := snap.Profile
		out = append(out, &profile)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *PostgresSnapshotStore) Close() error {
	return s.db.Close()
}
