package request

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/impersonate-engine/errors"
)

// Delivery runs on a scheduler worker with the worker's context.
type Delivery func(ctx context.Context)

// Unit performs an exchange off the worker pool and returns the delivery to
// run on a worker, or nil.
type Unit func() Delivery

// AttachFunc prepares a worker's OS thread. It runs once per worker before
// the worker accepts deliveries and returns the worker context plus a
// cleanup to run when the worker stops.
type AttachFunc func(ctx context.Context) (context.Context, func(), error)

func noAttach(ctx context.Context) (context.Context, func(), error) {
	return ctx, func() {}, nil
}

type schedState uint8

const (
	schedNew schedState = iota
	schedRunning
	schedStopping
	schedStopped
)

const deliveryQueueSize = 64

// Scheduler runs exchanges on goroutines and their deliveries on a fixed set
// of workers, each locked to an OS thread that was attached once at start.
type Scheduler struct {
	ctx     context.Context
	cancel  context.CancelFunc
	attach  AttachFunc
	logger  *zap.Logger
	queue   chan Delivery
	units   sync.WaitGroup
	workers sync.WaitGroup
	size    int
	mu      sync.RWMutex
	state   schedState
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithWorkers sets the number of delivery workers.
func WithWorkers(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.size = n
		}
	}
}

// WithAttach sets the per-worker attach hook.
func WithAttach(fn AttachFunc) SchedulerOption {
	return func(s *Scheduler) {
		if fn != nil {
			s.attach = fn
		}
	}
}

// WithSchedulerLogger sets the scheduler logger.
func WithSchedulerLogger(l *zap.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScheduler creates a scheduler. It does not accept work until Start.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		attach: noAttach,
		logger: zap.NewNop(),
		size:   runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the workers and waits until each one ran its attach hook.
// If any attach fails the scheduler is stopped and the error returned.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != schedNew {
		return errors.New(errors.PhaseLoad, errors.KindInvalidArgument).
			Detail("scheduler already started").
			Build()
	}

	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.queue = make(chan Delivery, deliveryQueueSize)

	ready := make(chan error, s.size)
	for i := 0; i < s.size; i++ {
		s.workers.Add(1)
		go s.work(i, ready)
	}

	var firstErr error
	for i := 0; i < s.size; i++ {
		if err := <-ready; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		s.cancel()
		close(s.queue)
		s.workers.Wait()
		s.state = schedStopped
		return errors.Wrap(errors.PhaseLoad, errors.KindNotInitialized, firstErr, "failed to attach worker")
	}

	s.state = schedRunning
	s.logger.Debug("scheduler started", zap.Int("workers", s.size))
	return nil
}

func (s *Scheduler) work(n int, ready chan<- error) {
	defer s.workers.Done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ctx, detach, err := s.attach(s.ctx)
	ready <- err
	if err != nil {
		return
	}
	defer detach()

	log := s.logger.With(zap.Int("worker", n))
	for d := range s.queue {
		s.deliver(ctx, log, d)
	}
}

func (s *Scheduler) deliver(ctx context.Context, log *zap.Logger, d Delivery) {
	defer func() {
		if r := recover(); r != nil {
			if errors.IsFatal(r) {
				log.Error("fatal error in delivery", zap.Error(r.(error)))
				return
			}
			log.Error("delivery panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	d(ctx)
}

// Running reports whether the scheduler accepts work.
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == schedRunning
}

// Context returns the scheduler's base context. It is cancelled by Shutdown.
func (s *Scheduler) Context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// Spawn runs unit on its own goroutine and queues its delivery.
func (s *Scheduler) Spawn(unit Unit) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != schedRunning {
		return errors.NotInitialized(errors.PhaseRequest, "scheduler")
	}

	s.units.Add(1)
	go func() {
		defer s.units.Done()
		if d := unit(); d != nil {
			s.queue <- d
		}
	}()
	return nil
}

// Shutdown stops accepting work, cancels in-flight exchanges, drains pending
// deliveries and stops the workers.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.state != schedRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = schedStopping
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.units.Wait()
		close(s.queue)
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.mu.Lock()
		s.state = schedStopped
		s.mu.Unlock()
		s.logger.Debug("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
