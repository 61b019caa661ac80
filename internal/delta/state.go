package delta

import (
	"fmt"
	"time"
)

// FileSyncStatus is the lifecycle status recorded for a tracked path.
type FileSyncStatus uint8

const (
	StatusSynced FileSyncStatus = iota
	StatusPendingUpload
	StatusPendingDownload
	StatusSyncing
	StatusConflict
	StatusError
	StatusIgnored
)

var fileSyncStatusNames = [...]string{
	StatusSynced:          "synced",
	StatusPendingUpload:   "pending_upload",
	StatusPendingDownload: "pending_download",
	StatusSyncing:         "syncing",
	StatusConflict:        "conflict",
	StatusError:           "error",
	StatusIgnored:         "ignored",
}

func (s FileSyncStatus) String() string {
	if int(s) < len(fileSyncStatusNames) {
		return fileSyncStatusNames[s]
	}
	return fmt.Sprintf("FileSyncStatus(%d)", uint8(s))
}

// ParseFileSyncStatus returns the status named by s.
func ParseFileSyncStatus(s string) (FileSyncStatus, error) {
	for i, name := range fileSyncStatusNames {
		if name == s {
			return FileSyncStatus(i), nil
		}
	}
	return StatusSynced, fmt.Errorf("unknown sync status %q", s)
}

func (s FileSyncStatus) MarshalText() ([]byte, error) {
	if int(s) >= len(fileSyncStatusNames) {
		return nil, fmt.Errorf("invalid sync status %d", uint8(s))
	}
	return []byte(fileSyncStatusNames[s]), nil
}

func (s *FileSyncStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseFileSyncStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// SyncState is the persisted baseline for one path: what the local file and
// the remote object looked like the last time the path was reconciled.
type SyncState struct {
	LocalPath      string         `json:"local_path" yaml:"local_path"`
	RemoteID       string         `json:"remote_id" yaml:"remote_id"`
	Provider       string         `json:"provider" yaml:"provider"`
	LocalModified  time.Time      `json:"local_modified" yaml:"local_modified"`
	RemoteModified time.Time      `json:"remote_modified" yaml:"remote_modified"`
	LocalHash      string         `json:"local_hash,omitempty" yaml:"local_hash,omitempty"`
	RemoteHash     string         `json:"remote_hash,omitempty" yaml:"remote_hash,omitempty"`
	Status         FileSyncStatus `json:"status" yaml:"status"`
	LastSync       *time.Time     `json:"last_sync,omitempty" yaml:"last_sync,omitempty"`
	Version        int64          `json:"version" yaml:"version"`
}

// StateReader is the read side of the sync state store.
type StateReader interface {
	// GetSyncStateByPath returns nil, nil when the path is not tracked.
	GetSyncStateByPath(path string) (*SyncState, error)
	GetAllSyncStates() ([]*SyncState, error)
}

// StateWriter is the write side of the sync state store.
type StateWriter interface {
	UpdateSyncState(state *SyncState) error
	DeleteSyncState(path string) error
}

// StateStore is the persisted synchronization-state store.
type StateStore interface {
	StateReader
	StateWriter
}
