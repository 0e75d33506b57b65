package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	TypeOTPEmail     = "otp_email"
	TypeNotification = "notification"
)

var (
	ErrQueueFull = errors.New("job queue is full")
	ErrClosed    = errors.New("job dispatcher is closed")
	// ErrPermanent marks a handler failure that retrying cannot fix.
	ErrPermanent = errors.New("permanent job failure")
)

type Job struct {
	Type      string            `json:"type"`
	Recipient string            `json:"recipient"`
	Payload   map[string]string `json:"payload"`
}

// Dispatcher accepts fire-and-forget jobs.
type Dispatcher interface {
	Enqueue(ctx context.Context, job Job) error
}

type Handler func(ctx context.Context, job Job) error

type DispatcherConfig struct {
	Workers         int
	QueueSize       int
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxElapsed      time.Duration
}

func (c *DispatcherConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 500 * time.Millisecond
	}
	if c.MaxElapsed <= 0 {
		c.MaxElapsed = 2 * time.Minute
	}
}

// LocalDispatcher runs jobs on in-process workers fed by a bounded queue.
// Failed jobs are retried with exponential backoff; jobs still queued at Stop
// are drained before Stop returns.
type LocalDispatcher struct {
	cfg      DispatcherConfig
	queue    chan Job
	handlers map[string]Handler

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewLocalDispatcher(cfg DispatcherConfig) *LocalDispatcher {
	cfg.applyDefaults()
	return &LocalDispatcher{
		cfg:      cfg,
		queue:    make(chan Job, cfg.QueueSize),
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a job type. It must be called before Start.
func (d *LocalDispatcher) Register(jobType string, h Handler) {
	d.handlers[jobType] = h
}

func (d *LocalDispatcher) Start(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for job := range d.queue {
				d.run(ctx, job)
			}
		}()
	}
}

func (d *LocalDispatcher) Enqueue(ctx context.Context, job Job) error {
	if _, ok := d.handlers[job.Type]; !ok {
		return fmt.Errorf("no handler for job type %q", job.Type)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- job:
		return nil
	default:
		logutil.GetLogger(ctx).Error("job dropped, queue full",
			zap.String("type", job.Type), zap.String("recipient", job.Recipient))
		return ErrQueueFull
	}
}

func (d *LocalDispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *LocalDispatcher) newBackOff(ctx context.Context) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = d.cfg.InitialInterval
	expo.MaxElapsedTime = d.cfg.MaxElapsed
	return backoff.WithContext(backoff.WithMaxRetries(expo, d.cfg.MaxRetries), ctx)
}

func (d *LocalDispatcher) run(ctx context.Context, job Job) {
	logger := logutil.GetLogger(ctx).With(zap.String("type", job.Type), zap.String("recipient", job.Recipient))
	h := d.handlers[job.Type]
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := h(ctx, job)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrPermanent) {
			return backoff.Permanent(err)
		}
		logger.Warn("job attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}, d.newBackOff(ctx))
	if err != nil {
		logger.Error("job failed", zap.Int("attempts", attempt), zap.Error(err))
		return
	}
	logger.Debug("job done", zap.Int("attempts", attempt))
}
