package runner

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mongobee "github.com/philips-internal/emr-mongobee"
	"github.com/philips-internal/emr-mongobee/store"
	"github.com/philips-internal/emr-mongobee/store/memory"
)

// countingAction returns an action and a pointer to its invocation count.
func countingAction() (mongobee.Action, *int) {
	count := 0
	return func(ctx context.Context) error {
		count++
		return nil
	}, &count
}

type failingProvider struct {
	err error
}

func (p failingProvider) FetchChangeUnits(ctx context.Context) ([]mongobee.ChangeUnit, error) {
	return nil, p.err
}

func TestRun_AppliesUnitsInOrderAndRecordsThem(t *testing.T) {
	st := memory.New()
	var order []string
	units := []mongobee.ChangeUnit{
		{ID: "change-001", Author: "alice", Run: func(ctx context.Context) error {
			order = append(order, "change-001")
			return nil
		}},
		{ID: "change-002", Author: "alice", Run: func(ctx context.Context) error {
			order = append(order, "change-002")
			return nil
		}},
	}
	r := New(Config{Store: st, Provider: mongobee.SliceProvider(units)})

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.True(t, report.LockAcquired)
	assert.Equal(t, []string{"change-001", "change-002"}, order)
	require.Len(t, report.Results, 2)
	assert.Equal(t, mongobee.StatusApplied, report.Results[0].Status)
	assert.Equal(t, mongobee.StatusApplied, report.Results[1].Status)
	assert.Len(t, st.ChangeRecords(), 2)
}

func TestRun_SecondRunSkipsAppliedAndReappliesRunAlways(t *testing.T) {
	st := memory.New()
	actionA, countA := countingAction()
	actionB, countB := countingAction()
	units := []mongobee.ChangeUnit{
		{ID: "change-001", Author: "alice", Run: actionA},
		{ID: "change-002", Author: "alice", RunAlways: true, Run: actionB},
	}
	r := New(Config{Store: st, Provider: mongobee.SliceProvider(units)})

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count(mongobee.StatusApplied))
	assert.Len(t, st.ChangeRecords(), 2)

	report, err = r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, *countA)
	assert.Equal(t, 2, *countB)
	require.Len(t, report.Results, 2)
	assert.Equal(t, mongobee.StatusSkipped, report.Results[0].Status)
	assert.Equal(t, mongobee.StatusReapplied, report.Results[1].Status)
	// The run-always unit never gains a second ledger row.
	assert.Len(t, st.ChangeRecords(), 2)
}

func TestRun_ActionFailureIsIsolated(t *testing.T) {
	st := memory.New()
	actionErr := errors.New("column already exists")
	actionC, countC := countingAction()
	units := []mongobee.ChangeUnit{
		{ID: "change-001", Author: "alice", Run: func(ctx context.Context) error { return nil }},
		{ID: "change-002", Author: "alice", Run: func(ctx context.Context) error { return actionErr }},
		{ID: "change-003", Author: "alice", Run: actionC},
	}
	r := New(Config{Store: st, Provider: mongobee.SliceProvider(units)})

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Results, 3)
	assert.Equal(t, mongobee.StatusApplied, report.Results[0].Status)
	assert.Equal(t, mongobee.StatusFailed, report.Results[1].Status)
	assert.ErrorIs(t, report.Results[1].Err, actionErr)
	assert.Equal(t, mongobee.StatusApplied, report.Results[2].Status)
	assert.Equal(t, 1, *countC)

	// The failed unit has no ledger row, so the next run retries it.
	assert.Len(t, st.ChangeRecords(), 2)

	report, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mongobee.StatusFailed, report.Results[1].Status)
}

func TestRun_InvalidUnitAbortsBeforeExecution(t *testing.T) {
	st := memory.New()
	invoked := false
	units := []mongobee.ChangeUnit{
		{ID: "", Author: "alice", Run: func(ctx context.Context) error {
			invoked = true
			return nil
		}},
	}
	r := New(Config{Store: st, Provider: mongobee.SliceProvider(units)})

	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, mongobee.ErrInvalidChangeUnit)
	assert.False(t, invoked)
	assert.Empty(t, st.ChangeRecords())
}

func TestRun_DBUnitWithoutHandleIsFatal(t *testing.T) {
	st := memory.New()
	units := []mongobee.ChangeUnit{
		{ID: "change-001", Author: "alice", RunWithDB: func(ctx context.Context, db *sql.DB) error {
			return nil
		}},
	}
	r := New(Config{Store: st, Provider: mongobee.SliceProvider(units)})

	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database handle")
}

func TestRun_LockReleasedAfterFatalError(t *testing.T) {
	st := memory.New()
	units := []mongobee.ChangeUnit{
		{ID: "change-001", Author: "alice", Run: func(ctx context.Context) error { return nil }},
		{ID: "", Author: "alice", Run: func(ctx context.Context) error { return nil }},
	}
	r := New(Config{Store: st, Provider: mongobee.SliceProvider(units)})

	_, err := r.Run(context.Background())
	require.Error(t, err)

	_, err = st.FindLockRecord(context.Background(), mongobee.LockKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRun_LockReleasedAfterProviderError(t *testing.T) {
	st := memory.New()
	fetchErr := errors.New("registry unavailable")
	r := New(Config{Store: st, Provider: failingProvider{err: fetchErr}})

	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, fetchErr)

	_, err = st.FindLockRecord(context.Background(), mongobee.LockKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRun_LockReleasedAfterNormalCompletion(t *testing.T) {
	st := memory.New()
	r := New(Config{Store: st, Provider: mongobee.SliceProvider(nil)})

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	_, err = st.FindLockRecord(context.Background(), mongobee.LockKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRun_DisabledIsNoOp(t *testing.T) {
	st := memory.New()
	action, count := countingAction()
	units := []mongobee.ChangeUnit{{ID: "change-001", Author: "alice", Run: action}}
	r := New(Config{Store: st, Provider: mongobee.SliceProvider(units), Disabled: true})

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.False(t, report.LockAcquired)
	assert.Empty(t, report.Results)
	assert.Equal(t, 0, *count)
	assert.Empty(t, st.ChangeRecords())

	indexes, err := st.ListChangeIndexes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, indexes)
}

func TestRun_MissingStoreIsFatal(t *testing.T) {
	r := New(Config{Provider: mongobee.SliceProvider(nil)})

	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database handle")
}

func TestRun_MissingProviderIsFatal(t *testing.T) {
	r := New(Config{Store: memory.New()})

	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider")
}

func TestRun_HeldLockIsSilentNoOp(t *testing.T) {
	st := memory.New()
	require.NoError(t, st.EnsureLockIndex(context.Background()))
	require.NoError(t, st.InsertLockRecord(context.Background(), mongobee.LockRecord{
		Key:        mongobee.LockKey,
		Owner:      "other-runner",
		AcquiredAt: time.Now().UTC(),
	}))

	action, count := countingAction()
	units := []mongobee.ChangeUnit{{ID: "change-001", Author: "alice", Run: action}}
	r := New(Config{Store: st, Provider: mongobee.SliceProvider(units)})

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.LockAcquired)
	assert.Empty(t, report.Results)
	assert.Equal(t, 0, *count)
}

func TestRun_HeldLockIsFatalWhenConfigured(t *testing.T) {
	st := memory.New()
	require.NoError(t, st.EnsureLockIndex(context.Background()))
	require.NoError(t, st.InsertLockRecord(context.Background(), mongobee.LockRecord{
		Key:        mongobee.LockKey,
		Owner:      "other-runner",
		AcquiredAt: time.Now().UTC(),
	}))

	r := New(Config{
		Store:             st,
		Provider:          mongobee.SliceProvider(nil),
		FailIfNotAcquired: true,
	})

	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, mongobee.ErrLockNotAcquired)
}

func TestRun_ConcurrentRunnersApplyEachUnitOnce(t *testing.T) {
	st := memory.New()

	var mu sync.Mutex
	invocations := map[string]int{}
	unit := func(id string) mongobee.ChangeUnit {
		return mongobee.ChangeUnit{ID: id, Author: "alice", Run: func(ctx context.Context) error {
			mu.Lock()
			invocations[id]++
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			return nil
		}}
	}
	units := []mongobee.ChangeUnit{unit("change-001"), unit("change-002"), unit("change-003")}

	var wg sync.WaitGroup
	start := make(chan struct{})
	reports := make([]*mongobee.Report, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := New(Config{Store: st, Provider: mongobee.SliceProvider(units)})
			<-start
			report, err := r.Run(context.Background())
			assert.NoError(t, err)
			reports[i] = report
		}(i)
	}
	close(start)
	wg.Wait()

	// Whichever interleaving occurred, each unit's action ran exactly once
	// and the ledger holds exactly one row per unit.
	for _, id := range []string{"change-001", "change-002", "change-003"} {
		assert.Equal(t, 1, invocations[id], id)
	}
	assert.Len(t, st.ChangeRecords(), 3)

	totalApplied := reports[0].Count(mongobee.StatusApplied) + reports[1].Count(mongobee.StatusApplied)
	assert.Equal(t, 3, totalApplied)
}

func TestRun_LedgerAppendErrorIsFatal(t *testing.T) {
	mock := store.NewMockStore()
	insertErr := errors.New("disk full")
	mock.InsertChangeRecordFunc = func(ctx context.Context, record mongobee.ChangeRecord) error {
		return insertErr
	}

	units := []mongobee.ChangeUnit{
		{ID: "change-001", Author: "alice", Run: func(ctx context.Context) error { return nil }},
	}
	r := New(Config{Store: mock, Provider: mongobee.SliceProvider(units)})

	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, insertErr)

	// The lock record is deleted even though the run aborted.
	require.Len(t, mock.DeleteLockRecordCalls, 1)
}

func TestIsExecutionInProgress(t *testing.T) {
	st := memory.New()
	r := New(Config{Store: st, Provider: mongobee.SliceProvider(nil)})

	inProgress, err := r.IsExecutionInProgress(context.Background())
	require.NoError(t, err)
	assert.False(t, inProgress)

	require.NoError(t, st.EnsureLockIndex(context.Background()))
	require.NoError(t, st.InsertLockRecord(context.Background(), mongobee.LockRecord{
		Key:        mongobee.LockKey,
		Owner:      "other-runner",
		AcquiredAt: time.Now().UTC(),
	}))

	inProgress, err = r.IsExecutionInProgress(context.Background())
	require.NoError(t, err)
	assert.True(t, inProgress)
}

func TestRun_RunWithDBUnitReceivesConfiguredHandle(t *testing.T) {
	st := memory.New()
	db := &sql.DB{}
	var got *sql.DB
	units := []mongobee.ChangeUnit{
		{ID: "change-001", Author: "alice", RunWithDB: func(ctx context.Context, handle *sql.DB) error {
			got = handle
			return nil
		}},
	}
	r := New(Config{Store: st, Provider: mongobee.SliceProvider(units), DB: db})

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mongobee.StatusApplied, report.Results[0].Status)
	assert.Same(t, db, got)
}
