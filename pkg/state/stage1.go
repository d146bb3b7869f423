package state

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cracklabs/sluice/pkg/log"
	"github.com/cracklabs/sluice/pkg/types"
	"github.com/rs/zerolog"
)

// Stage1Store persists Stage 1 (GRAVEL → PEARLS + SAND) progress.
// Smaller than the Stage 2 store, same discipline: backup-before-write,
// pretty-printed JSON, warnings never block persistence.
type Stage1Store struct {
	path   string
	mu     sync.Mutex
	state  *types.Stage1State
	logger zerolog.Logger
}

// NewStage1Store creates a store backed by the JSON file at path
func NewStage1Store(path string) *Stage1Store {
	return &Stage1Store{
		path:   path,
		logger: log.WithComponent("gravel-state"),
	}
}

// Load reads the state file, returning a fresh default on absence or
// parse failure
func (s *Stage1Store) Load() (*types.Stage1State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != nil {
		return s.state, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Msg("stage 1 state unreadable, starting fresh")
		}
		s.state = &types.Stage1State{Batches: make(map[string]*types.Stage1Record)}
		return s.state, nil
	}

	st := &types.Stage1State{}
	if err := json.Unmarshal(data, st); err != nil {
		s.logger.Warn().Err(err).Msg("stage 1 state unparseable, starting fresh")
		st = &types.Stage1State{}
	}
	if st.Batches == nil {
		st.Batches = make(map[string]*types.Stage1Record)
	}
	s.state = st
	return s.state, nil
}

// Save backs up and writes the state file
func (s *Stage1Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return nil
	}

	if err := backup(s.path); err != nil {
		return fmt.Errorf("failed to back up stage 1 state: %w", err)
	}

	s.state.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stage 1 state: %w", err)
	}
	if err := writeAtomic(s.path, data); err != nil {
		return fmt.Errorf("failed to write stage 1 state: %w", err)
	}
	return nil
}

// Batch returns the record for name, or nil
func (s *Stage1Store) Batch(name string) *types.Stage1Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil
	}
	return s.state.Batches[name]
}

// Complete records a finished Stage 1 batch
func (s *Stage1Store) Complete(name string, rec *types.Stage1Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	rec.Status = types.BatchStatusCompleted
	rec.CompletedAt = &now
	s.state.Batches[name] = rec
}

// Fail records a failed Stage 1 batch
func (s *Stage1Store) Fail(name string, reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.state.Batches[name]
	if !ok {
		rec = &types.Stage1Record{}
		s.state.Batches[name] = rec
	}
	rec.Status = types.BatchStatusFailed
	if reason != nil {
		rec.Error = reason.Error()
	}
}
