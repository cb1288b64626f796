package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"collabforge.io/forge/internal/pkg/logger"
)

func init() {
	// Initialize logger for tests
	_ = logger.Init("error", "json")
}

func newTestPools(t *testing.T) *Pools {
	t.Helper()
	pools, err := NewPools(context.Background(), PoolConfig{GeneralPoolSize: 4, DispatchPoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(pools.Shutdown)
	return pools
}

func TestSubmitRunsTask(t *testing.T) {
	t.Parallel()

	pools := newTestPools(t)

	done := make(chan struct{})
	err := pools.General.Submit(context.Background(), func(ctx context.Context) {
		close(done)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
}

func TestSubmitRejectsCancelledContext(t *testing.T) {
	t.Parallel()

	pools := newTestPools(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pools.General.Submit(ctx, func(context.Context) {
		t.Error("task ran with cancelled context")
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestSubmitDetachedSurvivesRequestContext(t *testing.T) {
	t.Parallel()

	pools := newTestPools(t)

	ran := make(chan struct{})
	require.NoError(t, pools.SubmitDetached(func(ctx context.Context) {
		// Detached tasks see the service context, which stays live
		// until Shutdown.
		select {
		case <-ctx.Done():
			t.Error("service context cancelled prematurely")
		default:
		}
		close(ran)
	}))

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("detached task never ran")
	}
}

func TestShutdownStopsDetachedWork(t *testing.T) {
	t.Parallel()

	pools, err := NewPools(context.Background(), PoolConfig{GeneralPoolSize: 1, DispatchPoolSize: 1})
	require.NoError(t, err)

	var mu sync.Mutex
	var ranAfterShutdown bool

	pools.Shutdown()

	// Submitting after shutdown either errors or the task is dropped
	// by the dead service context; it must never execute.
	_ = pools.SubmitDetached(func(context.Context) {
		mu.Lock()
		ranAfterShutdown = true
		mu.Unlock()
	})

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.False(t, ranAfterShutdown)
}

func TestMetricsReportsCapacity(t *testing.T) {
	t.Parallel()

	pools := newTestPools(t)
	m := pools.Metrics()

	general := m["general"].(map[string]int)
	require.Equal(t, 4, general["cap"])
	dispatch := m["dispatch"].(map[string]int)
	require.Equal(t, 2, dispatch["cap"])
}
