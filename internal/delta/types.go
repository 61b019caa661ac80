package delta

import (
	"fmt"
	"time"
)

// DeltaAction is the kind of change detected for one path on one side.
type DeltaAction uint8

const (
	ActionCreate DeltaAction = iota
	ActionModify
	ActionDelete
	ActionMove
	ActionNoChange
)

var deltaActionNames = [...]string{
	ActionCreate:   "create",
	ActionModify:   "modify",
	ActionDelete:   "delete",
	ActionMove:     "move",
	ActionNoChange: "no_change",
}

func (a DeltaAction) String() string {
	if int(a) < len(deltaActionNames) {
		return deltaActionNames[a]
	}
	return fmt.Sprintf("DeltaAction(%d)", uint8(a))
}

func (a DeltaAction) MarshalText() ([]byte, error) {
	if int(a) >= len(deltaActionNames) {
		return nil, fmt.Errorf("invalid delta action %d", uint8(a))
	}
	return []byte(deltaActionNames[a]), nil
}

func (a *DeltaAction) UnmarshalText(text []byte) error {
	for i, name := range deltaActionNames {
		if name == string(text) {
			*a = DeltaAction(i)
			return nil
		}
	}
	return fmt.Errorf("unknown delta action %q", text)
}

// MergedAction is the transfer decision for one path after merging both sides.
type MergedAction uint8

const (
	MergeUpload MergedAction = iota
	MergeDownload
	MergeDeleteRemote
	MergeDeleteLocal
	MergeConflict
	MergeNone
)

var mergedActionNames = [...]string{
	MergeUpload:       "upload",
	MergeDownload:     "download",
	MergeDeleteRemote: "delete_remote",
	MergeDeleteLocal:  "delete_local",
	MergeConflict:     "conflict",
	MergeNone:         "none",
}

func (a MergedAction) String() string {
	if int(a) < len(mergedActionNames) {
		return mergedActionNames[a]
	}
	return fmt.Sprintf("MergedAction(%d)", uint8(a))
}

func (a MergedAction) MarshalText() ([]byte, error) {
	if int(a) >= len(mergedActionNames) {
		return nil, fmt.Errorf("invalid merged action %d", uint8(a))
	}
	return []byte(mergedActionNames[a]), nil
}

func (a *MergedAction) UnmarshalText(text []byte) error {
	for i, name := range mergedActionNames {
		if name == string(text) {
			*a = MergedAction(i)
			return nil
		}
	}
	return fmt.Errorf("unknown merged action %q", text)
}

// DeltaEntry is a single change detected on one side (local or remote).
// Hash is empty for directories and deletions without a known baseline.
type DeltaEntry struct {
	Path     string      `json:"path" yaml:"path"`
	Action   DeltaAction `json:"action" yaml:"action"`
	Hash     string      `json:"hash,omitempty" yaml:"hash,omitempty"`
	Size     int64       `json:"size" yaml:"size"`
	Modified time.Time   `json:"modified" yaml:"modified"`
	IsDir    bool        `json:"is_dir" yaml:"is_dir"`
}

// MergedDelta is the reconciliation decision for one path.
type MergedDelta struct {
	Path        string       `json:"path" yaml:"path"`
	Action      MergedAction `json:"action" yaml:"action"`
	Local       *DeltaEntry  `json:"local,omitempty" yaml:"local,omitempty"`
	Remote      *DeltaEntry  `json:"remote,omitempty" yaml:"remote,omitempty"`
	HasConflict bool         `json:"has_conflict" yaml:"has_conflict"`
}
