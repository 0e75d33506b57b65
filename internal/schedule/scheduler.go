package schedule

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Scheduler interface {
	AddJob(job Job, spec string) error
	Start(ctx context.Context)
	Stop()
}

// CronScheduler runs maintenance jobs on five-field cron specs. A run that
// overlaps the previous one of the same job is skipped, and each run is
// bounded by the configured timeout.
type CronScheduler struct {
	cron    *cron.Cron
	runners map[string]*runner
	timeout time.Duration
	base    atomic.Pointer[context.Context]
	cancel  context.CancelFunc
}

func NewCronScheduler(runTimeout time.Duration) *CronScheduler {
	if runTimeout <= 0 {
		runTimeout = 10 * time.Minute
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &CronScheduler{
		cron:    cron.New(cron.WithParser(parser)),
		runners: make(map[string]*runner),
		timeout: runTimeout,
	}
}

// AddJob schedules job under spec. An empty spec disables the job.
func (c *CronScheduler) AddJob(job Job, spec string) error {
	name := job.Name()
	if _, ok := c.runners[name]; ok {
		return fmt.Errorf("job %s already scheduled", name)
	}
	logger := logutil.GetLogger(context.Background()).With(zap.String("job", name), zap.String("spec", spec))
	if spec == "" {
		logger.Info("job disabled: empty spec")
		return nil
	}
	r := &runner{job: job, spec: spec, sched: c}
	if _, err := c.cron.AddJob(spec, r); err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}
	c.runners[name] = r
	logger.Info("job scheduled")
	return nil
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.base.Store(&ctx)
	c.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (c *CronScheduler) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	<-c.cron.Stop().Done()
}

func (c *CronScheduler) baseContext() context.Context {
	if ctx := c.base.Load(); ctx != nil {
		return *ctx
	}
	return context.Background()
}

// runner adapts a Job to cron.Job.
type runner struct {
	job     Job
	spec    string
	sched   *CronScheduler
	running atomic.Bool
}

func (r *runner) Run() {
	base := r.sched.baseContext()
	logger := logutil.GetLogger(base).With(zap.String("job", r.job.Name()), zap.String("spec", r.spec))
	if !r.running.CompareAndSwap(false, true) {
		logger.Info("job skipped: still running")
		return
	}
	defer r.running.Store(false)

	ctx, cancel := context.WithTimeout(base, r.sched.timeout)
	defer cancel()
	start := time.Now()
	err := r.job.Run(ctx)
	fields := []zap.Field{zap.Duration("duration", time.Since(start))}
	if err != nil {
		logger.Error("job failed", append(fields, zap.Error(err))...)
		return
	}
	logger.Info("job finished", fields...)
}
