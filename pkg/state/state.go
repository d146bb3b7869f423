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

// Store persists the single authoritative view of Stage 2 progress.
// Single-writer: only the orchestrator mutates it; review tools read the
// file directly and rely on the backup-before-write discipline.
type Store struct {
	path   string
	mu     sync.Mutex
	state  *types.State
	logger zerolog.Logger

	debounce *time.Timer
	pending  bool
}

// NewStore creates a store backed by the JSON file at path. The file is
// not read until Load.
func NewStore(path string) *Store {
	return &Store{
		path:   path,
		logger: log.WithComponent("state"),
	}
}

// Load reads the state file if present. Missing fields are filled with
// defaults; a missing or unparseable file yields a fresh default state
// with a logged warning.
func (s *Store) Load() (*types.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != nil {
		return s.state, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("state file unreadable, starting fresh")
		}
		s.state = defaultState()
		return s.state, nil
	}

	st := &types.State{}
	if err := json.Unmarshal(data, st); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("state file unparseable, starting fresh")
		s.state = defaultState()
		return s.state, nil
	}

	migrate(st)
	s.state = st
	return s.state, nil
}

func defaultState() *types.State {
	return &types.State{
		Batches:     make(map[string]*types.BatchRecord),
		AttackStats: make(map[string]*types.AttackStats),
	}
}

// migrate fills fields that older state files lack
func migrate(st *types.State) {
	if st.Batches == nil {
		st.Batches = make(map[string]*types.BatchRecord)
	}
	if st.AttackStats == nil {
		st.AttackStats = make(map[string]*types.AttackStats)
	}
	for _, rec := range st.Batches {
		if rec.AttacksApplied == nil {
			rec.AttacksApplied = []string{}
		}
		if rec.AttacksRemaining == nil {
			rec.AttacksRemaining = []string{}
		}
		if rec.AttackResults == nil {
			rec.AttackResults = []types.AttackResult{}
		}
		if rec.Status == "" {
			rec.Status = types.BatchStatusPending
		}
	}
}

// Save validates, backs up the existing file, and writes the state
// pretty-printed. Validation warnings are logged but never block the
// write: persistence is unconditional.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if s.state == nil {
		return nil
	}

	s.normalize()

	for _, w := range s.validateLocked() {
		s.logger.Warn().Str("path", s.path).Msg("state validation: " + w)
	}

	if err := backup(s.path); err != nil {
		return fmt.Errorf("failed to back up state: %w", err)
	}

	s.state.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := writeAtomic(s.path, data); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	s.pending = false
	return nil
}

// normalize strips derived values before persisting: aggregate rates are
// recomputed from totals so a hand-edited file cannot smuggle stale ones.
func (s *Store) normalize() {
	for _, stats := range s.state.AttackStats {
		if stats.TotalHashes > 0 {
			stats.AvgRate = float64(stats.TotalCracked) / float64(stats.TotalHashes)
		} else {
			stats.AvgRate = 0
		}
	}
}

// SaveDebounced coalesces rapid updates; the pending save is flushed by
// Flush or the next explicit Save.
func (s *Store) SaveDebounced(delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = true
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(delay, func() {
		if err := s.Save(); err != nil {
			s.logger.Error().Err(err).Msg("debounced save failed")
		}
	})
}

// Flush writes any pending debounced save immediately
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	if !s.pending {
		return nil
	}
	return s.saveLocked()
}

// Batch returns the record for name, or nil
func (s *Store) Batch(name string) *types.BatchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil
	}
	return s.state.Batches[name]
}

// State returns the in-memory state. Callers must treat it as read-only;
// mutations go through the store methods.
func (s *Store) State() *types.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// InitBatch creates a pending record. attacksRemaining is seeded from the
// order passed by the caller (the compiled-in default), never from the
// on-disk attackOrder, which may be stale.
func (s *Store) InitBatch(name, hashlistID string, hashCount int64, order []string) *types.BatchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	rec := &types.BatchRecord{
		HashlistID:       hashlistID,
		HashCount:        hashCount,
		AttacksApplied:   []string{},
		AttacksRemaining: append([]string{}, order...),
		TaskIDs:          make(map[string]string),
		AttackResults:    []types.AttackResult{},
		StartedAt:        &now,
		Status:           types.BatchStatusPending,
	}
	s.state.Batches[name] = rec
	return rec
}

// StartAttack marks an attack as submitted
func (s *Store) StartAttack(batch, attack, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.state.Batches[batch]
	if !ok {
		return fmt.Errorf("unknown batch %s", batch)
	}

	now := time.Now().UTC()
	rec.Status = types.BatchStatusInProgress
	rec.LastAttackAt = &now
	if rec.TaskIDs == nil {
		rec.TaskIDs = make(map[string]string)
	}
	rec.TaskIDs[attack] = taskID
	return nil
}

// CompleteAttack moves attack from remaining to applied and records the
// result. Idempotent: a repeated call for the same (batch, attack) logs
// and returns without changing state.
func (s *Store) CompleteAttack(batch, attack string, cracked int64, durationSeconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.state.Batches[batch]
	if !ok {
		return fmt.Errorf("unknown batch %s", batch)
	}

	for _, a := range rec.AttacksApplied {
		if a == attack {
			s.logger.Info().Str("batch", batch).Str("attack", attack).
				Msg("attack already applied, ignoring duplicate completion")
			return nil
		}
	}

	removed := false
	remaining := rec.AttacksRemaining[:0]
	for _, a := range rec.AttacksRemaining {
		if a == attack && !removed {
			removed = true
			continue
		}
		remaining = append(remaining, a)
	}
	rec.AttacksRemaining = remaining

	rate := 0.0
	if rec.HashCount > 0 {
		rate = float64(cracked) / float64(rec.HashCount)
	}

	rec.AttacksApplied = append(rec.AttacksApplied, attack)
	rec.AttackResults = append(rec.AttackResults, types.AttackResult{
		Attack:          attack,
		NewCracks:       cracked,
		DurationSeconds: durationSeconds,
		CrackRate:       rate,
	})
	rec.Cracked += cracked

	now := time.Now().UTC()
	rec.LastAttackAt = &now

	stats, ok := s.state.AttackStats[attack]
	if !ok {
		stats = &types.AttackStats{}
		s.state.AttackStats[attack] = stats
	}
	stats.Attempted++
	stats.TotalCracked += cracked
	stats.TotalHashes += rec.HashCount
	if stats.TotalHashes > 0 {
		stats.AvgRate = float64(stats.TotalCracked) / float64(stats.TotalHashes)
	}
	stats.AvgTimeSeconds += (durationSeconds - stats.AvgTimeSeconds) / float64(stats.Attempted)

	if len(rec.AttacksRemaining) == 0 {
		rec.Status = types.BatchStatusCompleted
		rec.CompletedAt = &now
	}
	return nil
}

// FailBatch marks a batch failed with the error message
func (s *Store) FailBatch(name string, reason error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.state.Batches[name]
	if !ok {
		return fmt.Errorf("unknown batch %s", name)
	}
	rec.Status = types.BatchStatusFailed
	if reason != nil {
		rec.Error = reason.Error()
	}
	return nil
}

// SetFeedback records the feedback summary for a batch
func (s *Store) SetFeedback(name string, fb *types.FeedbackSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.state.Batches[name]
	if !ok {
		return fmt.Errorf("unknown batch %s", name)
	}
	rec.Feedback = fb
	return nil
}

// Validate returns human-readable warnings for invariant violations.
// Violations never block a save; the operator investigates.
func (s *Store) Validate() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validateLocked()
}

func (s *Store) validateLocked() []string {
	var warnings []string
	if s.state == nil {
		return warnings
	}

	for name, rec := range s.state.Batches {
		applied := make(map[string]bool, len(rec.AttacksApplied))
		for _, a := range rec.AttacksApplied {
			applied[a] = true
		}
		for _, a := range rec.AttacksRemaining {
			if applied[a] {
				warnings = append(warnings,
					fmt.Sprintf("%s: attack %q in both applied and remaining", name, a))
			}
		}

		if rec.Cracked > rec.HashCount {
			warnings = append(warnings,
				fmt.Sprintf("%s: cracked %d exceeds hash count %d", name, rec.Cracked, rec.HashCount))
		}

		if rec.Status == types.BatchStatusCompleted {
			if rec.CompletedAt == nil {
				warnings = append(warnings, fmt.Sprintf("%s: completed without timestamp", name))
			}
			if len(rec.AttacksRemaining) > 0 {
				warnings = append(warnings,
					fmt.Sprintf("%s: completed with %d attacks remaining", name, len(rec.AttacksRemaining)))
			}
		}

		if rec.Cracked == 0 && len(rec.AttacksApplied) > 0 {
			warnings = append(warnings,
				fmt.Sprintf("%s: zero cracks after %d attacks (suspicious)", name, len(rec.AttacksApplied)))
		}

		if len(rec.AttackResults) != len(rec.AttacksApplied) {
			warnings = append(warnings,
				fmt.Sprintf("%s: %d results for %d applied attacks", name, len(rec.AttackResults), len(rec.AttacksApplied)))
		}
	}
	return warnings
}

// ReorderByScore rewrites the top-level attackOrder by effective crack
// rate normalized by GPU time, with a 1-minute floor so brand-new attacks
// do not divide by near-zero. Only future batches consult this order.
func (s *Store) ReorderByScore() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	type scored struct {
		name  string
		score float64
	}

	var ranked []scored
	for name, stats := range s.state.AttackStats {
		denom := stats.AvgTimeSeconds
		if denom < 60 {
			denom = 60
		}
		ranked = append(ranked, scored{name: name, score: stats.AvgRate / denom})
	}

	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].score > ranked[j-1].score; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}

	order := make([]string, len(ranked))
	for i, r := range ranked {
		order[i] = r.name
	}
	s.state.AttackOrder = order
	return order
}

// MarkIneffective flags attacks with at least minAttempts attempts and an
// average rate below maxRate. The flag is advisory: the scheduler never
// auto-drops mid-run; the operator decides.
func (s *Store) MarkIneffective(minAttempts int, maxRate float64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var flagged []string
	for name, stats := range s.state.AttackStats {
		if stats.Attempted >= minAttempts && stats.AvgRate < maxRate {
			stats.Ineffective = true
			flagged = append(flagged, name)
		}
	}
	return flagged
}
