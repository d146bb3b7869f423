package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cracklabs/sluice/pkg/coordinator"
	"github.com/cracklabs/sluice/pkg/remote"
	"github.com/cracklabs/sluice/pkg/state"
	"github.com/cracklabs/sluice/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	mu sync.Mutex

	hashlists []string
	tasks     []coordinator.TaskRequest

	createTaskFailures int // fail this many CreateTask calls first

	cracked  []int64             // popped per GetCrackedCount, last sticky
	statuses []*types.TaskStatus // popped per GetTaskStatus, last sticky
	statErrs int                 // fail this many GetTaskStatus calls first
}

func netErr(msg string) error {
	return &remote.Error{Kind: types.FailureNetwork, Op: "test", Err: errors.New(msg)}
}

func (f *fakeService) CreateHashlist(_ context.Context, name string, hashes []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashlists = append(f.hashlists, name)
	return "hl-1", nil
}

func (f *fakeService) CreateTask(_ context.Context, req coordinator.TaskRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createTaskFailures > 0 {
		f.createTaskFailures--
		return "", netErr("submit failed")
	}
	f.tasks = append(f.tasks, req)
	return "task-1", nil
}

func (f *fakeService) GetTaskStatus(_ context.Context, taskID string) (*types.TaskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statErrs > 0 {
		f.statErrs--
		return nil, netErr("status poll failed")
	}
	if len(f.statuses) == 0 {
		return &types.TaskStatus{TaskID: taskID, PercentComplete: 100}, nil
	}
	st := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return st, nil
}

func (f *fakeService) GetCrackedCount(_ context.Context, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.cracked) == 0 {
		return 0, nil
	}
	n := f.cracked[0]
	if len(f.cracked) > 1 {
		f.cracked = f.cracked[1:]
	}
	return n, nil
}

func newTestScheduler(t *testing.T, svc serviceClient) (*Scheduler, *state.Store) {
	t.Helper()
	store := state.NewStore(filepath.Join(t.TempDir(), "state.json"))
	_, err := store.Load()
	require.NoError(t, err)

	s := &Scheduler{
		store:        store,
		svc:          svc,
		pollInterval: time.Millisecond,
		retryBase:    time.Millisecond,
		logger:       zerolog.Nop(),
		sleep:        func(time.Duration) {},
	}
	return s, store
}

func TestEnsureBatchSeedsDefaultOrder(t *testing.T) {
	svc := &fakeService{}
	s, store := newTestScheduler(t, svc)

	// A stale on-disk order must not leak into new batches
	store.State().AttackOrder = []string{"ancient-attack"}

	rec, err := s.EnsureBatch(context.Background(), "batch-0001", []string{"AAAA", "BBBB"})
	require.NoError(t, err)

	assert.Equal(t, DefaultOrder(), rec.AttacksRemaining)
	assert.Equal(t, "hl-1", rec.HashlistID)
	assert.Equal(t, int64(2), rec.HashCount)
	assert.Equal(t, []string{"batch-0001"}, svc.hashlists)
}

func TestEnsureBatchExistingRecordUntouched(t *testing.T) {
	svc := &fakeService{}
	s, store := newTestScheduler(t, svc)
	store.InitBatch("batch-0002", "hl-9", 10, []string{"brute-3"})

	rec, err := s.EnsureBatch(context.Background(), "batch-0002", nil)
	require.NoError(t, err)
	assert.Equal(t, "hl-9", rec.HashlistID)
	assert.Empty(t, svc.hashlists, "no new hashlist for an existing record")
}

func TestRunBatchHappyPath(t *testing.T) {
	svc := &fakeService{
		// before brute-3: 0, after: 100; before brute-4: 100, after: 150
		cracked: []int64{0, 100, 100, 150},
	}
	s, store := newTestScheduler(t, svc)
	store.InitBatch("batch-0003", "hl-1", 1000, []string{"brute-3", "brute-4"})

	require.NoError(t, s.RunBatch(context.Background(), "batch-0003", nil))

	rec := store.Batch("batch-0003")
	assert.Equal(t, types.BatchStatusCompleted, rec.Status)
	assert.Equal(t, int64(150), rec.Cracked)
	assert.Equal(t, []string{"brute-3", "brute-4"}, rec.AttacksApplied)
	require.Len(t, rec.AttackResults, 2)
	assert.Equal(t, int64(100), rec.AttackResults[0].NewCracks)
	assert.Equal(t, int64(50), rec.AttackResults[1].NewCracks)
	assert.NotNil(t, rec.CompletedAt)

	require.Len(t, svc.tasks, 2)
	assert.Equal(t, "brute-3", svc.tasks[0].Name)
	assert.Equal(t, "?a?a?a", svc.tasks[0].Mask)
}

func TestRunBatchSubmitRetriesThenSucceeds(t *testing.T) {
	svc := &fakeService{createTaskFailures: 2}
	s, store := newTestScheduler(t, svc)
	store.InitBatch("batch-0004", "hl-1", 100, []string{"brute-3"})

	require.NoError(t, s.RunBatch(context.Background(), "batch-0004", nil))
	assert.Len(t, svc.tasks, 1)
}

func TestRunBatchSubmitExhaustionFailsBatch(t *testing.T) {
	svc := &fakeService{createTaskFailures: 10}
	s, store := newTestScheduler(t, svc)
	store.InitBatch("batch-0005", "hl-1", 100, []string{"brute-3"})

	err := s.RunBatch(context.Background(), "batch-0005", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "brute-3")

	rec := store.Batch("batch-0005")
	assert.Equal(t, types.BatchStatusFailed, rec.Status)
	assert.NotEmpty(t, rec.Error)
}

func TestRunBatchPollSurvivesTransientErrors(t *testing.T) {
	svc := &fakeService{
		statErrs: 3,
		statuses: []*types.TaskStatus{
			{PercentComplete: 40},
			{PercentComplete: 100},
		},
		cracked: []int64{0, 42},
	}
	s, store := newTestScheduler(t, svc)
	store.InitBatch("batch-0006", "hl-1", 100, []string{"brute-3"})

	require.NoError(t, s.RunBatch(context.Background(), "batch-0006", nil))
	assert.Equal(t, int64(42), store.Batch("batch-0006").Cracked)
}

func TestRunBatchArchivedTaskCounts(t *testing.T) {
	svc := &fakeService{
		statuses: []*types.TaskStatus{{PercentComplete: 80, IsArchived: true}},
		cracked:  []int64{0, 7},
	}
	s, store := newTestScheduler(t, svc)
	store.InitBatch("batch-0007", "hl-1", 100, []string{"brute-3"})

	require.NoError(t, s.RunBatch(context.Background(), "batch-0007", nil))
	assert.Equal(t, types.BatchStatusCompleted, store.Batch("batch-0007").Status)
}

func TestRunBatchNegativeDeltaRecordsZero(t *testing.T) {
	svc := &fakeService{cracked: []int64{50, 40}}
	s, store := newTestScheduler(t, svc)
	store.InitBatch("batch-0008", "hl-1", 100, []string{"brute-3"})

	require.NoError(t, s.RunBatch(context.Background(), "batch-0008", nil))
	rec := store.Batch("batch-0008")
	require.Len(t, rec.AttackResults, 1)
	assert.Equal(t, int64(0), rec.AttackResults[0].NewCracks)
}

func TestRunBatchUnknownAttackFails(t *testing.T) {
	svc := &fakeService{}
	s, store := newTestScheduler(t, svc)
	store.InitBatch("batch-0009", "hl-1", 100, []string{"no-such-attack"})

	err := s.RunBatch(context.Background(), "batch-0009", nil)
	require.Error(t, err)
	assert.Equal(t, types.BatchStatusFailed, store.Batch("batch-0009").Status)
}

func TestDefaultOrderStaging(t *testing.T) {
	order := DefaultOrder()
	require.GreaterOrEqual(t, len(order), 20)

	// Tiers never decrease along the default order
	last := 0
	for _, name := range order {
		tier := Tier(name)
		require.GreaterOrEqual(t, tier, last, "attack %s out of tier order", name)
		last = tier
	}

	assert.Equal(t, "brute-3", order[0])
	assert.Nil(t, Lookup("no-such-attack"))
	assert.Equal(t, -1, Tier("no-such-attack"))
}

func TestDefaultOrderReturnsCopy(t *testing.T) {
	a := DefaultOrder()
	a[0] = "mutated"
	assert.Equal(t, "brute-3", DefaultOrder()[0])
}
