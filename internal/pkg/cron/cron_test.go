package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsJobs(t *testing.T) {
	var runs atomic.Int32
	s := New(nil)
	s.Register(Job{Name: "tick", Interval: 10 * time.Millisecond, Fn: func(context.Context) error {
		runs.Add(1)
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	s.Wait()

	item, err := s.Get("tick")
	require.NoError(t, err)
	assert.Equal(t, StatusFulfill, item.Status)
	assert.NotNil(t, item.LastRunAt)
}

func TestRunRecordsFailure(t *testing.T) {
	s := New(nil)
	s.Register(Job{Name: "campaigns", Interval: time.Hour, Fn: func(context.Context) error {
		return errors.New("smtp down")
	}})

	require.NoError(t, s.Run(context.Background(), "campaigns"))
	assert.Eventually(t, func() bool {
		item, _ := s.Get("campaigns")
		return item.Status == StatusReject
	}, time.Second, 5*time.Millisecond)

	item, _ := s.Get("campaigns")
	assert.Equal(t, "smtp down", item.Message)
}

func TestRunRefusesOverlap(t *testing.T) {
	s := New(nil)
	release := make(chan struct{})
	s.Register(Job{Name: "campaigns", Interval: time.Hour, Fn: func(context.Context) error {
		<-release
		return nil
	}})

	require.NoError(t, s.Run(context.Background(), "campaigns"))
	assert.ErrorIs(t, s.Run(context.Background(), "campaigns"), ErrJobRunning)
	close(release)

	assert.Eventually(t, func() bool {
		item, _ := s.Get("campaigns")
		return item.Status == StatusFulfill
	}, time.Second, 5*time.Millisecond)
	assert.NoError(t, s.Run(context.Background(), "campaigns"))
}

func TestUnknownJob(t *testing.T) {
	s := New(nil)
	assert.ErrorIs(t, s.Run(context.Background(), "nope"), ErrJobNotFound)
	_, err := s.Get("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestListSorted(t *testing.T) {
	s := New(nil)
	noop := func(context.Context) error { return nil }
	s.Register(Job{Name: "b", Interval: time.Hour, Fn: noop})
	s.Register(Job{Name: "a", Interval: time.Hour, Fn: noop})

	items := s.List()
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Name)
	assert.Equal(t, StatusIdle, items[1].Status)
}
