package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/openmined/deltasync/internal/delta"
)

// Outcome is what an executor reports after handling one merged decision.
// Delta and State are handed to delta.Applier as is: Create and Modify store
// State, Delete forgets Delta.Path.
type Outcome struct {
	Delta delta.DeltaEntry
	State *delta.SyncState
}

// Executor carries out a merged decision, typically by transferring data. A
// nil Outcome with a nil error leaves the path's state untouched.
type Executor interface {
	Execute(ctx context.Context, md delta.MergedDelta) (*Outcome, error)
}

type ExecutorFunc func(ctx context.Context, md delta.MergedDelta) (*Outcome, error)

func (f ExecutorFunc) Execute(ctx context.Context, md delta.MergedDelta) (*Outcome, error) {
	return f(ctx, md)
}

// BaselineExecutor accepts the current view of both sides as synced without
// moving any data. It is used to adopt an existing tree.
//
// A path that exists only remotely and has no stored state is skipped: with no
// local copy, recording it would read as a local delete on the next pass.
type BaselineExecutor struct {
	store    delta.StateReader
	provider string
	remoteID func(path string) string
	now      func() time.Time
}

type BaselineOption func(*BaselineExecutor)

// WithRemoteID maps a relative path to the provider's identifier for it.
func WithRemoteID(fn func(path string) string) BaselineOption {
	return func(b *BaselineExecutor) {
		b.remoteID = fn
	}
}

func WithBaselineClock(now func() time.Time) BaselineOption {
	return func(b *BaselineExecutor) {
		b.now = now
	}
}

func NewBaselineExecutor(store delta.StateReader, provider string, opts ...BaselineOption) *BaselineExecutor {
	b := &BaselineExecutor{
		store:    store,
		provider: provider,
		remoteID: func(path string) string { return path },
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *BaselineExecutor) Execute(_ context.Context, md delta.MergedDelta) (*Outcome, error) {
	if isDelete(md.Local) || isDelete(md.Remote) {
		return &Outcome{Delta: delta.DeltaEntry{Path: md.Path, Action: delta.ActionDelete}}, nil
	}

	existing, err := b.store.GetSyncStateByPath(md.Path)
	if err != nil {
		return nil, fmt.Errorf("baseline %s: %w", md.Path, err)
	}
	if md.Local == nil && existing == nil {
		return nil, nil
	}

	action := delta.ActionModify
	st := &delta.SyncState{LocalPath: md.Path, Provider: b.provider}
	if existing != nil {
		*st = *existing
	} else {
		action = delta.ActionCreate
	}

	if md.Local != nil {
		st.LocalHash = md.Local.Hash
		st.LocalModified = md.Local.Modified
	}
	if md.Remote != nil {
		st.Provider = b.provider
		st.RemoteID = b.remoteID(md.Path)
		st.RemoteHash = md.Remote.Hash
		st.RemoteModified = md.Remote.Modified
	}

	st.Status = delta.StatusSynced
	if md.HasConflict {
		st.Status = delta.StatusConflict
	}
	now := b.now()
	st.LastSync = &now
	st.Version++

	return &Outcome{Delta: delta.DeltaEntry{Path: md.Path, Action: action}, State: st}, nil
}

func isDelete(e *delta.DeltaEntry) bool {
	return e != nil && e.Action == delta.ActionDelete
}
