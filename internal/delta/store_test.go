package delta

import (
	"errors"
	"maps"
	"slices"
)

// memStore is an in-memory StateStore for tests.
type memStore struct {
	states    map[string]*SyncState
	getErr    error
	listErr   error
	updateErr error
	deleteErr error
	updates   int
	deletes   int
}

func newMemStore(states ...*SyncState) *memStore {
	s := &memStore{states: make(map[string]*SyncState)}
	for _, st := range states {
		s.states[st.LocalPath] = st
	}
	return s
}

func (s *memStore) GetSyncStateByPath(path string) (*SyncState, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	st, ok := s.states[path]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (s *memStore) GetAllSyncStates() ([]*SyncState, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]*SyncState, 0, len(s.states))
	for _, path := range slices.Sorted(maps.Keys(s.states)) {
		cp := *s.states[path]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) UpdateSyncState(state *SyncState) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	if state.LocalPath == "" {
		return errors.New("empty path")
	}
	cp := *state
	s.states[state.LocalPath] = &cp
	s.updates++
	return nil
}

func (s *memStore) DeleteSyncState(path string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.states, path)
	s.deletes++
	return nil
}
