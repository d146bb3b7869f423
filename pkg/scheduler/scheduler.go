package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/cracklabs/sluice/pkg/config"
	"github.com/cracklabs/sluice/pkg/coordinator"
	"github.com/cracklabs/sluice/pkg/log"
	"github.com/cracklabs/sluice/pkg/metrics"
	"github.com/cracklabs/sluice/pkg/remote"
	"github.com/cracklabs/sluice/pkg/state"
	"github.com/cracklabs/sluice/pkg/types"
	"github.com/rs/zerolog"
)

// serviceClient is the slice of the coordination service the scheduler
// needs
type serviceClient interface {
	CreateHashlist(ctx context.Context, name string, hashes []string) (string, error)
	CreateTask(ctx context.Context, req coordinator.TaskRequest) (string, error)
	GetTaskStatus(ctx context.Context, taskID string) (*types.TaskStatus, error)
	GetCrackedCount(ctx context.Context, hashlistID string) (int64, error)
}

// Scheduler drives one batch through the ordered attack list, one
// attack at a time. It never reorders mid-batch and never cancels a
// submitted attack; reordering applies only to future batches.
type Scheduler struct {
	store        *state.Store
	svc          serviceClient
	pollInterval time.Duration
	retryBase    time.Duration
	logger       zerolog.Logger

	// sleep is swapped in tests
	sleep func(time.Duration)
}

// New builds a scheduler over the given store and service client
func New(store *state.Store, svc serviceClient, cfg config.ServiceConfig) *Scheduler {
	return &Scheduler{
		store:        store,
		svc:          svc,
		pollInterval: cfg.PollInterval.D(),
		retryBase:    time.Second,
		logger:       log.WithComponent("scheduler"),
		sleep:        time.Sleep,
	}
}

// EnsureBatch returns the batch record, creating it when absent by
// registering a hashlist with the service. A new record's remaining
// attacks are seeded from the compiled-in default order, never from
// the on-disk order.
func (s *Scheduler) EnsureBatch(ctx context.Context, name string, hashes []string) (*types.BatchRecord, error) {
	if rec := s.store.Batch(name); rec != nil {
		return rec, nil
	}

	hashlistID, err := s.svc.CreateHashlist(ctx, name, hashes)
	if err != nil {
		return nil, fmt.Errorf("failed to register hashlist for %s: %w", name, err)
	}

	rec := s.store.InitBatch(name, hashlistID, int64(len(hashes)), DefaultOrder())
	if err := s.store.Save(); err != nil {
		return nil, err
	}
	s.logger.Info().Str("batch", name).Str("hashlist", hashlistID).
		Int("hashes", len(hashes)).Msg("batch registered")
	return rec, nil
}

// RunBatch executes every remaining attack of a batch in order. hashes
// is consulted only when the batch record does not exist yet.
func (s *Scheduler) RunBatch(ctx context.Context, name string, hashes []string) error {
	if _, err := s.EnsureBatch(ctx, name, hashes); err != nil {
		return err
	}

	for {
		rec := s.store.Batch(name)
		if rec == nil {
			return fmt.Errorf("batch %s vanished from state", name)
		}
		if len(rec.AttacksRemaining) == 0 {
			break
		}

		attack := rec.AttacksRemaining[0]
		if err := s.runAttack(ctx, name, rec.HashlistID, attack); err != nil {
			if failErr := s.store.FailBatch(name, err); failErr != nil {
				s.logger.Error().Err(failErr).Msg("failed to record batch failure")
			}
			_ = s.store.Save()
			return err
		}
	}

	metrics.BatchesCompleted.WithLabelValues("stage2").Inc()
	s.logger.Info().Str("batch", name).Msg("all attacks applied")
	return nil
}

// runAttack submits one attack, waits for the service to finish it, and
// records the crack delta against the hashlist's prior total
func (s *Scheduler) runAttack(ctx context.Context, batch, hashlistID, attack string) error {
	spec := Lookup(attack)
	if spec == nil {
		return fmt.Errorf("unknown attack %q in batch %s", attack, batch)
	}
	logger := s.logger.With().Str("batch", batch).Str("attack", attack).Logger()

	before, err := s.svc.GetCrackedCount(ctx, hashlistID)
	if err != nil {
		return fmt.Errorf("failed to read crack count before %s: %w", attack, err)
	}

	taskID, err := s.submit(ctx, hashlistID, spec)
	if err != nil {
		return fmt.Errorf("failed to submit %s: %w", attack, err)
	}
	if err := s.store.StartAttack(batch, attack, taskID); err != nil {
		return err
	}
	if err := s.store.Save(); err != nil {
		return err
	}
	logger.Info().Str("task", taskID).Int("tier", spec.Tier).Msg("attack submitted")

	start := time.Now()
	if err := s.waitForTask(ctx, taskID, logger); err != nil {
		return err
	}

	after, err := s.svc.GetCrackedCount(ctx, hashlistID)
	if err != nil {
		return fmt.Errorf("failed to read crack count after %s: %w", attack, err)
	}
	delta := after - before
	if delta < 0 {
		logger.Warn().Int64("before", before).Int64("after", after).
			Msg("crack count went backwards, recording zero")
		delta = 0
	}
	duration := time.Since(start).Seconds()

	if err := s.store.CompleteAttack(batch, attack, delta, duration); err != nil {
		return err
	}
	if err := s.store.Save(); err != nil {
		return err
	}

	metrics.AttackDuration.WithLabelValues(attack).Observe(duration)
	metrics.AttackCracks.WithLabelValues(attack).Add(float64(delta))
	metrics.CrackedTotal.WithLabelValues("stage2").Add(float64(delta))
	logger.Info().Int64("newCracks", delta).Float64("seconds", duration).
		Msg("attack completed")
	return nil
}

// submit creates the service task, retrying transient failures with
// exponential backoff up to three attempts
func (s *Scheduler) submit(ctx context.Context, hashlistID string, spec *types.AttackSpec) (string, error) {
	req := coordinator.TaskRequest{
		HashlistID:     hashlistID,
		Name:           spec.Name,
		AttackCmd:      spec.Command,
		WordlistFileID: spec.Wordlist,
		RuleFileID:     spec.Rules,
		Mask:           spec.Mask,
	}

	var taskID string
	err := remote.Retry(ctx, 3, s.retryBase, func() error {
		var submitErr error
		taskID, submitErr = s.svc.CreateTask(ctx, req)
		return submitErr
	})
	return taskID, err
}

// waitForTask polls until the task reports completion or archival. A
// submitted attack is never cancelled: poll errors are logged and
// polling continues, because the GPU host keeps working through our
// network trouble.
func (s *Scheduler) waitForTask(ctx context.Context, taskID string, logger zerolog.Logger) error {
	for {
		status, err := s.svc.GetTaskStatus(ctx, taskID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn().Err(err).Msg("task status poll failed, will retry")
		case status.IsArchived || status.PercentComplete >= 100:
			return nil
		default:
			logger.Debug().Float64("pct", status.PercentComplete).
				Int64("progress", status.KeyspaceProgress).Msg("task running")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.sleep(s.pollInterval)
	}
}

// Maintain runs the post-batch maintenance pass: mark ineffective
// attacks and reorder the attack list for future batches by observed
// score. The current batch is never touched.
func (s *Scheduler) Maintain() error {
	marked := s.store.MarkIneffective(3, 0.001)
	for _, name := range marked {
		s.logger.Warn().Str("attack", name).Msg("attack marked ineffective")
	}

	order := s.store.ReorderByScore()
	s.logger.Info().Strs("order", order[:min(len(order), 5)]).
		Msg("attack order updated for future batches")
	return s.store.Save()
}
