package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (c *countingRefresher) Refresh(ctx context.Context) error {
	c.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("missing deadline")
	}
	return c.err
}

func TestSchedulerRunsRefreshImmediately(t *testing.T) {
	s, err := NewScheduler(time.Second)
	require.NoError(t, err)

	target := &countingRefresher{}
	require.NoError(t, s.AddRefresh("catalog-refresh", time.Hour, target))
	s.Start()
	defer func() {
		assert.NoError(t, s.Stop())
	}()

	assert.Eventually(t, func() bool {
		return target.calls.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerKeepsRunningAfterFailure(t *testing.T) {
	s, err := NewScheduler(time.Second)
	require.NoError(t, err)

	target := &countingRefresher{err: errors.New("bucket unreachable")}
	require.NoError(t, s.AddRefresh("catalog-refresh", 50*time.Millisecond, target))
	s.Start()
	defer func() {
		assert.NoError(t, s.Stop())
	}()

	assert.Eventually(t, func() bool {
		return target.calls.Load() >= 2
	}, 3*time.Second, 10*time.Millisecond)
}

func TestAddRefreshValidates(t *testing.T) {
	s, err := NewScheduler(0)
	require.NoError(t, err)
	defer s.Stop()

	assert.Error(t, s.AddRefresh("x", 0, &countingRefresher{}))
	assert.Error(t, s.AddRefresh("x", time.Minute, nil))
}
