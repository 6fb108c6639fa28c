package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lazypower/newswire/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New("UTC")
	require.NoError(t, err)
	return s
}

func serve(t *testing.T, s *Scheduler) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("scheduler did not stop")
		}
	})
	return cancel
}

func TestNewBadTimezone(t *testing.T) {
	_, err := New("Mars/Olympus")
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	s := newTestScheduler(t)
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Register(Task{Name: "a", Spec: "@every 1h", Run: noop}))
	require.NoError(t, s.Register(Task{Name: "manual", Run: noop}))
	assert.Error(t, s.Register(Task{Name: "a", Run: noop}), "duplicate name")
	assert.Error(t, s.Register(Task{Name: "b", Spec: "not a spec", Run: noop}))
	assert.Error(t, s.Register(Task{Name: "", Run: noop}))
	assert.Error(t, s.Register(Task{Name: "c"}))
	assert.ElementsMatch(t, []string{"a", "manual"}, s.Tasks())
}

func TestEnqueueRunsTask(t *testing.T) {
	s := newTestScheduler(t)
	ran := make(chan string, 1)
	require.NoError(t, s.Register(Task{Name: "rebuild", Run: func(ctx context.Context) error {
		ran <- logging.CorrelationIDFromContext(ctx)
		return nil
	}}))
	serve(t, s)

	require.NoError(t, s.Enqueue("rebuild"))
	select {
	case id := <-ran:
		assert.NotEmpty(t, id, "tasks run with a correlation id")
	case <-time.After(5 * time.Second):
		t.Fatal("task did not run")
	}
}

func TestEnqueueUnknown(t *testing.T) {
	s := newTestScheduler(t)
	err := s.Enqueue("nope")
	assert.True(t, errors.Is(err, ErrUnknownTask))
}

func TestEnqueueDedupsPending(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.Register(Task{Name: "backfill", Run: func(context.Context) error { return nil }}))

	// Not serving yet, so the first request stays pending.
	require.NoError(t, s.Enqueue("backfill"))
	assert.ErrorIs(t, s.Enqueue("backfill"), ErrQueued)
}

func TestTasksRunSerially(t *testing.T) {
	s := newTestScheduler(t)

	var (
		mu      sync.Mutex
		active  int
		overlap bool
		wg      sync.WaitGroup
	)
	work := func(context.Context) error {
		defer wg.Done()
		mu.Lock()
		active++
		if active > 1 {
			overlap = true
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return nil
	}
	for _, name := range []string{"one", "two", "three"} {
		require.NoError(t, s.Register(Task{Name: name, Run: work}))
	}

	wg.Add(3)
	for _, name := range []string{"one", "two", "three"} {
		require.NoError(t, s.Enqueue(name))
	}
	serve(t, s)

	waitGroup(t, &wg)
	mu.Lock()
	defer mu.Unlock()
	assert.False(t, overlap, "tasks overlapped")
}

func TestFailingAndPanickingTasksDoNotStopWorker(t *testing.T) {
	s := newTestScheduler(t)
	var wg sync.WaitGroup
	require.NoError(t, s.Register(Task{Name: "fails", Run: func(context.Context) error {
		defer wg.Done()
		return errors.New("boom")
	}}))
	require.NoError(t, s.Register(Task{Name: "panics", Run: func(context.Context) error {
		defer wg.Done()
		panic("bad state")
	}}))
	require.NoError(t, s.Register(Task{Name: "ok", Run: func(context.Context) error {
		wg.Done()
		return nil
	}}))
	serve(t, s)

	wg.Add(3)
	for _, name := range []string{"fails", "panics", "ok"} {
		require.NoError(t, s.Enqueue(name))
	}
	waitGroup(t, &wg)
}

func TestRequeueAfterRun(t *testing.T) {
	s := newTestScheduler(t)
	runs := make(chan struct{}, 2)
	require.NoError(t, s.Register(Task{Name: "again", Run: func(context.Context) error {
		runs <- struct{}{}
		return nil
	}}))
	serve(t, s)

	for i := 0; i < 2; i++ {
		require.Eventually(t, func() bool { return s.Enqueue("again") == nil }, 5*time.Second, 10*time.Millisecond)
		select {
		case <-runs:
		case <-time.After(5 * time.Second):
			t.Fatalf("run %d did not happen", i+1)
		}
	}
}

func TestRunning(t *testing.T) {
	s := newTestScheduler(t)
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.Register(Task{Name: "slow", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	assert.Empty(t, s.Running())

	serve(t, s)
	require.NoError(t, s.Enqueue("slow"))
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not start")
	}
	assert.Equal(t, "slow", s.Running())

	close(release)
	require.Eventually(t, func() bool { return s.Running() == "" }, 5*time.Second, 10*time.Millisecond)
}

func waitGroup(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not finish")
	}
}
