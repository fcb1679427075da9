package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerCancelAndWait(t *testing.T) {
	t.Run("finishes fast enough", func(t *testing.T) {
		testJobs := Jobs{
			FakeJob("Job A", time.Millisecond*100),
			FakeJob("Job B", time.Millisecond*200),
		}

		before := time.Now()
		unfinished := testJobs.CancelAndWait(time.Second * 1)
		after := time.Now()
		assert.WithinDuration(t, after, before, time.Millisecond*500, "tracker.Finish did not finish fast enough")
		assert.Len(t, unfinished, 0)
	})
	t.Run("reports unfinished jobs", func(t *testing.T) {
		testJobs := Jobs{
			FakeJob("Job A", time.Millisecond*100),
			FakeJob("Job B", time.Second*10),
		}

		unfinished := testJobs.CancelAndWait(time.Second * 1)
		assert.Equal(t, []string{"Job B"}, unfinished)
	})
}

func FakeJob(name string, timeout time.Duration) *Job {
	job := New(name)
	go func() {
		<-job.Ctx.Done()
		timer := time.NewTimer(timeout)
		<-timer.C
		job.Finish()
	}()
	return job
}

func TestPeriodically(t *testing.T) {
	t.Run("refuses a non-positive interval", func(t *testing.T) {
		ran := false
		job := Periodically("misconfigured", 0, true, func(ctx context.Context) error {
			ran = true
			return nil
		})

		select {
		case <-job.Finished():
		case <-time.After(time.Second):
			t.Fatal("job with a zero interval did not finish")
		}
		assert.False(t, ran)
	})
	t.Run("runs until canceled", func(t *testing.T) {
		var mu sync.Mutex
		runs := 0
		job := Periodically("counter", 10*time.Millisecond, true, func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			runs++
			return nil
		})

		assert.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return runs >= 3
		}, time.Second, 5*time.Millisecond)

		assert.Empty(t, Jobs{job}.CancelAndWait(time.Second))
	})
	t.Run("survives errors and panics", func(t *testing.T) {
		var mu sync.Mutex
		runs := 0
		job := Periodically("flaky", 10*time.Millisecond, true, func(ctx context.Context) error {
			mu.Lock()
			runs++
			n := runs
			mu.Unlock()
			if n == 1 {
				return errors.New("first run fails")
			}
			if n == 2 {
				panic("second run panics")
			}
			return nil
		})

		assert.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return runs >= 3
		}, time.Second, 5*time.Millisecond)

		assert.Empty(t, Jobs{job}.CancelAndWait(time.Second))
	})
}

func TestFinishTwice(t *testing.T) {
	job := New("twice")
	assert.NotPanics(t, func() {
		job.Finish()
		job.Finish()
	})
	assert.Empty(t, Jobs{job}.ListUnfinished())
}
