package housekeeping

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/squeaknode/node/internal/logger"
)

func TestPool_RunsJobsOnInterval(t *testing.T) {
	var calls int32
	jobs := []Job{
		{Name: "count", Interval: 10 * time.Millisecond, Run: func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		}},
	}

	p := New(jobs, logger.NewNop())
	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestPool_StopWaitsForJobsToExit(t *testing.T) {
	jobs := []Job{
		{Name: "noop", Interval: 5 * time.Millisecond, Run: func(ctx context.Context) error { return nil }},
	}
	p := New(jobs, logger.NewNop())
	p.Start(context.Background())
	p.Stop()
	// A second Stop must not hang or panic.
	p.Stop()
}

func TestPool_SkipsJobsWithoutInterval(t *testing.T) {
	var calls int32
	jobs := []Job{
		{Name: "disabled", Interval: 0, Run: func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		}},
	}
	p := New(jobs, logger.NewNop())
	p.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	p.Stop()
	require.Equal(t, int32(0), atomic.LoadInt32(&calls))
}
