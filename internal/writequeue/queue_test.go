package writequeue

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestDoReturnsFunctionError(t *testing.T) {
	q := New(10, testLogger())
	q.Run()
	defer q.Stop()

	sentinel := errors.New("boom")
	err := q.Do(context.Background(), func() error { return sentinel })
	assert.ErrorIs(t, err, sentinel)

	err = q.Do(context.Background(), func() error { return nil })
	assert.NoError(t, err)
}

func TestConcurrentSubmissionsRunOneAtATime(t *testing.T) {
	q := New(100, testLogger())
	q.Run()
	defer q.Stop()

	var mu sync.Mutex
	running := 0
	maxRunning := 0
	total := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := q.Do(context.Background(), func() error {
				mu.Lock()
				running++
				if running > maxRunning {
					maxRunning = running
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				running--
				total++
				mu.Unlock()
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxRunning, "queued functions must never overlap")
	assert.Equal(t, 50, total)
}

func TestDoRespectsContextWhileQueued(t *testing.T) {
	q := New(1, testLogger())
	q.Run()
	defer q.Stop()

	release := make(chan struct{})
	go q.Do(context.Background(), func() error {
		<-release
		return nil
	})

	// Give the blocking job time to occupy the worker.
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Do(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestStopDrainsQueuedWork(t *testing.T) {
	q := New(10, testLogger())
	q.Run()

	done := false
	err := q.Do(context.Background(), func() error {
		done = true
		return nil
	})
	require.NoError(t, err)

	q.Stop()
	assert.True(t, done)
}
