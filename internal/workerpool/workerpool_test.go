package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunExecutesWithArena(t *testing.T) {
	p := New(2)
	var ran int32
	err := p.Run(context.Background(), func(a *Arena) error {
		atomic.AddInt32(&ran, 1)
		a.Scores = append(a.Scores, 1.0)
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, ran)
}

func TestCapacityLimitsConcurrency(t *testing.T) {
	p := New(1)
	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		p.Run(context.Background(), func(a *Arena) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Run(ctx, func(a *Arena) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded, "a second job blocks while the single slot is occupied")

	close(release)
}

func TestArenaResetBetweenJobs(t *testing.T) {
	p := New(1)
	require.NoError(t, p.Run(context.Background(), func(a *Arena) error {
		a.Scores = append(a.Scores, 1, 2, 3)
		return nil
	}))
	require.NoError(t, p.Run(context.Background(), func(a *Arena) error {
		assert.Empty(t, a.Scores, "arena is reset before each job runs")
		return nil
	}))
}

func TestPanicInJobIsRecovered(t *testing.T) {
	p := New(1)
	err := p.Run(context.Background(), func(a *Arena) error {
		panic("boom")
	})
	assert.NoError(t, err, "Run itself never propagates a panic out of a job")

	// The pool must still accept new jobs after recovering a panic.
	require.NoError(t, p.Run(context.Background(), func(a *Arena) error { return nil }))
}

func TestCapacityAndInFlight(t *testing.T) {
	p := New(4)
	assert.Equal(t, 4, p.Capacity())
	assert.Equal(t, 0, p.InFlight())
}

func TestAcceptSerializes(t *testing.T) {
	p := New(2)
	unlock := p.Accept()
	unlock()
}
