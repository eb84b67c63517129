package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScheduler(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler("TestScheduler", SchedulerConfig{Interval: 10 * time.Millisecond}, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	s.Start()
	s.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
	time.Sleep(30 * time.Millisecond)
	stopped := runs.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, stopped, runs.Load())

	require.NoError(t, s.RunNow())
	require.Equal(t, stopped+1, runs.Load())
}
