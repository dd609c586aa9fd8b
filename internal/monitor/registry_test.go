package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ameen-91/exray/internal/models"
)

// fakeLister is a scriptable RunLister. If block is non-nil, calls
// wait on it before returning.
type fakeLister struct {
	mu    sync.Mutex
	calls int
	runs  []models.Run
	err   error
	block chan struct{}
}

func (f *fakeLister) ListRuns(ctx context.Context, force bool) ([]models.Run, error) {
	f.mu.Lock()
	f.calls++
	runs, err, block := f.runs, f.err, f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return runs, err
}

func (f *fakeLister) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRefreshReplacesSnapshotSorted(t *testing.T) {
	lister := &fakeLister{runs: []models.Run{
		{RunID: "old", CreatedAt: "2025-01-01T00:00:00Z"},
		{RunID: "new", CreatedAt: "2025-02-01T00:00:00Z"},
	}}
	reg := NewRegistry(lister, time.Hour, nil)

	reg.Refresh(context.Background(), false)

	runs := reg.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].RunID)
	assert.Empty(t, reg.Err())
	assert.False(t, reg.Loading())
}

func TestRefreshFailureKeepsStaleSnapshot(t *testing.T) {
	lister := &fakeLister{runs: []models.Run{{RunID: "r1"}}}
	reg := NewRegistry(lister, time.Hour, nil)

	reg.Refresh(context.Background(), false)
	require.Len(t, reg.Runs(), 1)

	lister.mu.Lock()
	lister.err = errors.New("backend unavailable")
	lister.mu.Unlock()

	reg.Refresh(context.Background(), false)

	assert.Len(t, reg.Runs(), 1, "failed poll must not blank the view")
	assert.Equal(t, "backend unavailable", reg.Err())
}

func TestRefreshSuccessClearsError(t *testing.T) {
	lister := &fakeLister{err: errors.New("boom")}
	reg := NewRegistry(lister, time.Hour, nil)

	reg.Refresh(context.Background(), false)
	require.Equal(t, "boom", reg.Err())

	lister.mu.Lock()
	lister.err = nil
	lister.runs = []models.Run{{RunID: "r1"}}
	lister.mu.Unlock()

	reg.Refresh(context.Background(), false)

	assert.Empty(t, reg.Err())
	assert.Len(t, reg.Runs(), 1)
}

func TestPollSkipsWhileRefreshInFlight(t *testing.T) {
	block := make(chan struct{})
	lister := &fakeLister{block: block}
	reg := NewRegistry(lister, time.Hour, nil)

	done := make(chan struct{})
	go func() {
		reg.Refresh(context.Background(), false)
		close(done)
	}()

	require.Eventually(t, reg.Loading, time.Second, time.Millisecond)

	// Timer ticks arriving while the first fetch is outstanding must
	// not issue another network call.
	reg.poll(context.Background())
	reg.poll(context.Background())
	assert.Equal(t, 1, lister.callCount())

	close(block)
	<-done

	// Guard clears once the first call resolves.
	reg.poll(context.Background())
	assert.Equal(t, 2, lister.callCount())
}

func TestLoadingFlagDoesNotFlapAcrossOverlappingCallers(t *testing.T) {
	block := make(chan struct{})
	lister := &fakeLister{block: block}
	reg := NewRegistry(lister, time.Hour, nil)

	first := make(chan struct{})
	go func() {
		reg.Refresh(context.Background(), false)
		close(first)
	}()
	require.Eventually(t, reg.Loading, time.Second, time.Millisecond)

	// A second external caller resolves independently but leaves the
	// loading flag to its owner.
	second := make(chan struct{})
	go func() {
		reg.Refresh(context.Background(), false)
		close(second)
	}()

	require.Eventually(t, func() bool { return lister.callCount() == 2 }, time.Second, time.Millisecond)
	assert.True(t, reg.Loading())

	close(block)
	<-first
	<-second
	assert.False(t, reg.Loading())
}

func TestAutoRefreshTicks(t *testing.T) {
	lister := &fakeLister{}
	reg := NewRegistry(lister, 5*time.Millisecond, nil)
	defer reg.Close()

	reg.SetAutoRefresh(context.Background(), true)

	require.Eventually(t, func() bool { return lister.callCount() >= 2 }, time.Second, time.Millisecond)
}

func TestAutoRefreshStops(t *testing.T) {
	lister := &fakeLister{}
	reg := NewRegistry(lister, 5*time.Millisecond, nil)
	defer reg.Close()

	reg.SetAutoRefresh(context.Background(), true)
	require.Eventually(t, func() bool { return lister.callCount() >= 1 }, time.Second, time.Millisecond)

	reg.SetAutoRefresh(context.Background(), false)
	assert.False(t, reg.AutoRefresh())

	settled := lister.callCount()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, lister.callCount(), settled+1, "timer must stop after disable")
}

func TestSetAutoRefreshTwiceOwnsOneTimer(t *testing.T) {
	lister := &fakeLister{}
	reg := NewRegistry(lister, 20*time.Millisecond, nil)
	defer reg.Close()

	reg.SetAutoRefresh(context.Background(), true)
	reg.SetAutoRefresh(context.Background(), true)

	time.Sleep(70 * time.Millisecond)
	// One timer ticking at 20ms yields ~3 polls in 70ms; a duplicate
	// timer would roughly double that.
	assert.LessOrEqual(t, lister.callCount(), 5)
}

func TestCloseDiscardsLateResult(t *testing.T) {
	block := make(chan struct{})
	lister := &fakeLister{runs: []models.Run{{RunID: "late"}}, block: block}
	reg := NewRegistry(lister, time.Hour, nil)

	done := make(chan struct{})
	go func() {
		reg.Refresh(context.Background(), false)
		close(done)
	}()
	require.Eventually(t, reg.Loading, time.Second, time.Millisecond)

	reg.Close()
	close(block)
	<-done

	assert.Empty(t, reg.Runs(), "result arriving after Close must be discarded")
}

func TestStartFiresImmediateRefreshWithoutAuto(t *testing.T) {
	lister := &fakeLister{runs: []models.Run{{RunID: "r1"}}}
	reg := NewRegistry(lister, time.Hour, nil)
	defer reg.Close()

	reg.Start(context.Background(), false)

	require.Eventually(t, func() bool { return len(reg.Runs()) == 1 }, time.Second, time.Millisecond)
	assert.False(t, reg.AutoRefresh())
}

func TestNotifyFiresOnStateChange(t *testing.T) {
	var mu sync.Mutex
	notified := 0
	lister := &fakeLister{}
	reg := NewRegistry(lister, time.Hour, func() {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	reg.Refresh(context.Background(), false)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, notified, 2) // loading set, then result applied
}
