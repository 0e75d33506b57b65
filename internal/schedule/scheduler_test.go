package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs  int32
	block chan struct{}
}

func (j *countingJob) Name() string {
	return "counting"
}

func (j *countingJob) Run(ctx context.Context) error {
	atomic.AddInt32(&j.runs, 1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func TestAddJobValidatesSpec(t *testing.T) {
	s := NewCronScheduler(time.Minute)
	require.Error(t, s.AddJob(&countingJob{}, "not a spec"))
	require.NoError(t, s.AddJob(&countingJob{}, ""))
	require.Empty(t, s.runners)

	require.NoError(t, s.AddJob(&countingJob{}, "*/5 * * * *"))
	require.Error(t, s.AddJob(&countingJob{}, "0 * * * *"))
}

func TestRunnerSkipsOverlappingRuns(t *testing.T) {
	s := NewCronScheduler(time.Minute)
	s.Start(context.Background())
	defer s.Stop()

	job := &countingJob{block: make(chan struct{})}
	r := &runner{job: job, spec: "* * * * *", sched: s}
	run := r.Run
	done := make(chan struct{})
	go func() {
		run()
		close(done)
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&job.runs) == 1 }, time.Second, time.Millisecond)

	run()
	require.Equal(t, int32(1), atomic.LoadInt32(&job.runs))

	close(job.block)
	<-done
}

type failingJob struct{}

func (failingJob) Name() string { return "failing" }

func (failingJob) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRunnerBoundsRunByTimeout(t *testing.T) {
	s := NewCronScheduler(20 * time.Millisecond)
	r := &runner{job: failingJob{}, spec: "* * * * *", sched: s}
	start := time.Now()
	r.Run()
	require.Less(t, time.Since(start), time.Second)
	require.False(t, r.running.Load())
}
