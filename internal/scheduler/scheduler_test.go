package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domainsync "github.com/ganot/taskdeck/internal/domain/sync"
	"github.com/ganot/taskdeck/internal/domain/task"
	"github.com/ganot/taskdeck/internal/upstream"
)

type countingSync struct {
	runs atomic.Int64
	err  error
}

func (c *countingSync) Run(context.Context, upstream.ProgressFunc) (task.Summary, error) {
	c.runs.Add(1)
	if c.err != nil {
		return task.Summary{}, c.err
	}
	return task.Summary{TaskCount: 1}, nil
}

func TestRun_BootSyncOnly(t *testing.T) {
	svc := &countingSync{}
	sched := New(Options{Sync: svc, SyncOnBoot: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return svc.runs.Load() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	require.Equal(t, int64(1), svc.runs.Load())
}

func TestRun_PeriodicRefresh(t *testing.T) {
	svc := &countingSync{}
	sched := New(Options{Sync: svc, Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return svc.runs.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestRun_KeepsGoingAfterFailures(t *testing.T) {
	svc := &countingSync{err: domainsync.ErrSyncInProgress}
	sched := New(Options{Sync: svc, Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return svc.runs.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
