// Package state persists per-path sync baselines and per-provider change
// cursors in SQLite.
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/deltasync/internal/db"
	"github.com/openmined/deltasync/internal/delta"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_state (
    local_path TEXT PRIMARY KEY,
    remote_id TEXT NOT NULL DEFAULT '',
    provider TEXT NOT NULL DEFAULT '',
    local_modified TEXT NOT NULL, -- RFC3339
    remote_modified TEXT NOT NULL, -- RFC3339
    local_hash TEXT NOT NULL DEFAULT '',
    remote_hash TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'synced',
    last_sync TEXT,
    version INTEGER NOT NULL DEFAULT 0,
    is_deleted INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sync_state_remote_id ON sync_state(remote_id);
CREATE INDEX IF NOT EXISTS idx_sync_state_status ON sync_state(status);

CREATE TABLE IF NOT EXISTS sync_cursors (
    provider TEXT PRIMARY KEY,
    cursor TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`

const stateColumns = `local_path, remote_id, provider, local_modified, remote_modified,
	local_hash, remote_hash, status, last_sync, version`

var ErrStoreClosed = errors.New("state store is not open")

// dbSyncState is the row shape of sync_state; times are stored as TEXT.
type dbSyncState struct {
	LocalPath      string         `db:"local_path"`
	RemoteID       string         `db:"remote_id"`
	Provider       string         `db:"provider"`
	LocalModified  string         `db:"local_modified"`
	RemoteModified string         `db:"remote_modified"`
	LocalHash      string         `db:"local_hash"`
	RemoteHash     string         `db:"remote_hash"`
	Status         string         `db:"status"`
	LastSync       sql.NullString `db:"last_sync"`
	Version        int64          `db:"version"`
}

// Store is the SQLite implementation of delta.StateStore.
type Store struct {
	db     *sqlx.DB
	dbPath string
}

var _ delta.StateStore = (*Store)(nil)

// Open opens or creates the state database at dbPath. db.MemoryPath gives a
// throwaway store.
func Open(dbPath string) (*Store, error) {
	conn, err := db.NewSqliteDB(db.WithPath(dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize state schema: %w", err)
	}

	slog.Debug("state store open", "path", dbPath, "driver", db.DriverModule())
	return &Store{db: conn, dbPath: dbPath}, nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) Close() error {
	if s.db == nil {
		return ErrStoreClosed
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("close state store: %w", err)
	}
	return nil
}

// GetSyncStateByPath returns nil, nil when the path is not tracked.
func (s *Store) GetSyncStateByPath(path string) (*delta.SyncState, error) {
	return s.getOne("local_path", path)
}

// GetSyncStateByRemoteID returns nil, nil when no path maps to remoteID.
func (s *Store) GetSyncStateByRemoteID(remoteID string) (*delta.SyncState, error) {
	return s.getOne("remote_id", remoteID)
}

func (s *Store) getOne(column, value string) (*delta.SyncState, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	var row dbSyncState
	query := "SELECT " + stateColumns + " FROM sync_state WHERE " + column + " = ? AND is_deleted = 0 LIMIT 1"
	if err := s.db.Get(&row, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query state %s: %w", value, err)
	}
	return row.toState()
}

// GetAllSyncStates returns every tracked path ordered by path.
func (s *Store) GetAllSyncStates() ([]*delta.SyncState, error) {
	return s.selectStates("SELECT " + stateColumns + " FROM sync_state WHERE is_deleted = 0 ORDER BY local_path")
}

// GetSyncStatesByStatus returns tracked paths with the given status.
func (s *Store) GetSyncStatesByStatus(status delta.FileSyncStatus) ([]*delta.SyncState, error) {
	return s.selectStates("SELECT "+stateColumns+" FROM sync_state WHERE status = ? AND is_deleted = 0 ORDER BY local_path", status.String())
}

func (s *Store) selectStates(query string, args ...any) ([]*delta.SyncState, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	var rows []dbSyncState
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("query states: %w", err)
	}

	states := make([]*delta.SyncState, 0, len(rows))
	for _, row := range rows {
		st, err := row.toState()
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}

// UpdateSyncState inserts or replaces the row for state.LocalPath and clears
// any soft delete mark.
func (s *Store) UpdateSyncState(state *delta.SyncState) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	if state == nil {
		return delta.ErrNilState
	}
	if state.LocalPath == "" {
		return fmt.Errorf("update state: empty path")
	}

	row := fromState(state)
	query := `INSERT INTO sync_state (` + stateColumns + `, is_deleted)
	          VALUES (:local_path, :remote_id, :provider, :local_modified, :remote_modified,
	                  :local_hash, :remote_hash, :status, :last_sync, :version, 0)
	          ON CONFLICT(local_path) DO UPDATE SET
	              remote_id = excluded.remote_id,
	              provider = excluded.provider,
	              local_modified = excluded.local_modified,
	              remote_modified = excluded.remote_modified,
	              local_hash = excluded.local_hash,
	              remote_hash = excluded.remote_hash,
	              status = excluded.status,
	              last_sync = excluded.last_sync,
	              version = excluded.version,
	              is_deleted = 0`
	if _, err := s.db.NamedExec(query, row); err != nil {
		return fmt.Errorf("update state %s: %w", state.LocalPath, err)
	}
	slog.Debug("state set", "path", state.LocalPath, "status", state.Status, "hash", state.LocalHash)
	return nil
}

// DeleteSyncState removes the row for path. Missing paths are not an error.
func (s *Store) DeleteSyncState(path string) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	if _, err := s.db.Exec("DELETE FROM sync_state WHERE local_path = ?", path); err != nil {
		return fmt.Errorf("delete state %s: %w", path, err)
	}
	slog.Debug("state deleted", "path", path)
	return nil
}

// MarkDeleted hides path from reads without dropping its row.
func (s *Store) MarkDeleted(path string) error {
	return s.exec("mark deleted "+path, "UPDATE sync_state SET is_deleted = 1 WHERE local_path = ?", path)
}

// UpdateStatus sets the status of a tracked path.
func (s *Store) UpdateStatus(path string, status delta.FileSyncStatus) error {
	return s.exec("update status "+path, "UPDATE sync_state SET status = ? WHERE local_path = ?", status.String(), path)
}

// Rename moves the baseline of oldPath to newPath.
func (s *Store) Rename(oldPath, newPath string) error {
	return s.exec("rename "+oldPath, "UPDATE sync_state SET local_path = ? WHERE local_path = ?", newPath, oldPath)
}

func (s *Store) exec(op, query string, args ...any) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Count returns the number of tracked paths.
func (s *Store) Count() (int, error) {
	if s.db == nil {
		return 0, ErrStoreClosed
	}
	var count int
	if err := s.db.Get(&count, "SELECT COUNT(*) FROM sync_state WHERE is_deleted = 0"); err != nil {
		return 0, fmt.Errorf("count states: %w", err)
	}
	return count, nil
}

// Stats counts tracked paths per status.
func (s *Store) Stats() (map[delta.FileSyncStatus]int, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := s.db.Select(&rows, "SELECT status, COUNT(*) AS count FROM sync_state WHERE is_deleted = 0 GROUP BY status"); err != nil {
		return nil, fmt.Errorf("state stats: %w", err)
	}

	stats := make(map[delta.FileSyncStatus]int, len(rows))
	for _, row := range rows {
		status, err := delta.ParseFileSyncStatus(row.Status)
		if err != nil {
			return nil, err
		}
		stats[status] = row.Count
	}
	return stats, nil
}

// GetCursor returns the saved change cursor of provider, or "" if none.
func (s *Store) GetCursor(provider string) (string, error) {
	if s.db == nil {
		return "", ErrStoreClosed
	}
	var cursor string
	if err := s.db.Get(&cursor, "SELECT cursor FROM sync_cursors WHERE provider = ?", provider); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get cursor %s: %w", provider, err)
	}
	return cursor, nil
}

// SetCursor saves the change cursor of provider.
func (s *Store) SetCursor(provider, cursor string) error {
	query := `INSERT INTO sync_cursors (provider, cursor, updated_at) VALUES (?, ?, ?)
	          ON CONFLICT(provider) DO UPDATE SET cursor = excluded.cursor, updated_at = excluded.updated_at`
	if err := s.exec("set cursor "+provider, query, provider, cursor, formatTime(time.Now())); err != nil {
		return err
	}
	slog.Debug("cursor set", "provider", provider, "cursor", cursor)
	return nil
}

func (r dbSyncState) toState() (*delta.SyncState, error) {
	localModified, err := parseTime(r.LocalModified)
	if err != nil {
		return nil, fmt.Errorf("parse local_modified of %s: %w", r.LocalPath, err)
	}
	remoteModified, err := parseTime(r.RemoteModified)
	if err != nil {
		return nil, fmt.Errorf("parse remote_modified of %s: %w", r.LocalPath, err)
	}
	status, err := delta.ParseFileSyncStatus(r.Status)
	if err != nil {
		return nil, fmt.Errorf("state %s: %w", r.LocalPath, err)
	}

	st := &delta.SyncState{
		LocalPath:      r.LocalPath,
		RemoteID:       r.RemoteID,
		Provider:       r.Provider,
		LocalModified:  localModified,
		RemoteModified: remoteModified,
		LocalHash:      r.LocalHash,
		RemoteHash:     r.RemoteHash,
		Status:         status,
		Version:        r.Version,
	}
	if r.LastSync.Valid {
		lastSync, err := parseTime(r.LastSync.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_sync of %s: %w", r.LocalPath, err)
		}
		st.LastSync = &lastSync
	}
	return st, nil
}

func fromState(st *delta.SyncState) dbSyncState {
	row := dbSyncState{
		LocalPath:      st.LocalPath,
		RemoteID:       st.RemoteID,
		Provider:       st.Provider,
		LocalModified:  formatTime(st.LocalModified),
		RemoteModified: formatTime(st.RemoteModified),
		LocalHash:      st.LocalHash,
		RemoteHash:     st.RemoteHash,
		Status:         st.Status.String(),
		Version:        st.Version,
	}
	if st.LastSync != nil {
		row.LastSync = sql.NullString{String: formatTime(*st.LastSync), Valid: true}
	}
	return row
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
