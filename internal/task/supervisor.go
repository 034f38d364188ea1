package task

import (
	"Dyvine/internal/apperr"
	"Dyvine/internal/event"
	"Dyvine/internal/metrics"
	"Dyvine/internal/registry"
	"Dyvine/model"
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Job is the body of a background operation.
type Job func(ctx context.Context) error

type running struct {
	kind   model.OperationKind
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor owns every background job of the process. Each job runs in its
// own goroutine with its own cancel func. A job that panics or returns
// without finishing its operation has that operation failed; other jobs are
// unaffected.
type Supervisor struct {
	registry *registry.Registry
	events   event.Publisher
	logger   *slog.Logger
	slots    chan struct{}

	mu     sync.Mutex
	jobs   map[string]*running
	closed bool
	wg     sync.WaitGroup
	base   context.Context
	stop   context.CancelFunc
}

// NewSupervisor builds a Supervisor. maxActive bounds how many limited jobs
// run at once; the rest wait in pending.
func NewSupervisor(reg *registry.Registry, events event.Publisher, maxActive int, logger *slog.Logger) *Supervisor {
	if maxActive <= 0 {
		maxActive = 1
	}
	if events == nil {
		events = event.Noop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	base, stop := context.WithCancel(context.Background())
	return &Supervisor{
		registry: reg,
		events:   events,
		logger:   logger,
		slots:    make(chan struct{}, maxActive),
		jobs:     map[string]*running{},
		base:     base,
		stop:     stop,
	}
}

// Submit starts job for operation opID. Limited jobs wait for a free slot
// before running. Submit fails once Shutdown has begun.
func (s *Supervisor) Submit(opID string, kind model.OperationKind, limited bool, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperr.New(apperr.Internal, "server is shutting down")
	}
	if _, dup := s.jobs[opID]; dup {
		return apperr.Newf(apperr.Conflict, "operation %s is already running", opID)
	}
	ctx, cancel := context.WithCancel(s.base)
	r := &running{kind: kind, cancel: cancel, done: make(chan struct{})}
	s.jobs[opID] = r
	s.wg.Add(1)
	go s.run(ctx, opID, r, limited, job)
	return nil
}

func (s *Supervisor) run(ctx context.Context, opID string, r *running, limited bool, job Job) {
	defer s.wg.Done()
	defer close(r.done)
	defer func() {
		s.mu.Lock()
		delete(s.jobs, opID)
		s.mu.Unlock()
		r.cancel()
	}()

	if limited {
		select {
		case s.slots <- struct{}{}:
			defer func() { <-s.slots }()
		case <-ctx.Done():
			s.settle(opID, apperr.New(apperr.Cancelled, "cancelled before start"))
			return
		}
	}

	m := metrics.Get()
	m.ActiveJobs.Inc()
	defer m.ActiveJobs.Dec()

	err := s.guard(ctx, opID, job)
	s.settle(opID, err)
}

// guard runs job and turns a panic into an error.
func (s *Supervisor) guard(ctx context.Context, opID string, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("job panicked", "operation_id", opID, "panic", rec, "stack", string(debug.Stack()))
			err = apperr.Newf(apperr.Internal, "job panicked: %v", rec)
		}
	}()
	return job(ctx)
}

// settle fails the operation if the job left it non-terminal, then reports
// the final status.
func (s *Supervisor) settle(opID string, jobErr error) {
	ctx := context.Background()
	op, err := s.registry.Get(opID)
	if err != nil {
		s.logger.Warn("finished job has no operation", "operation_id", opID, "err", err)
		return
	}
	if !op.Status.IsTerminal() {
		cause := jobErr
		if cause == nil {
			cause = apperr.New(apperr.Internal, "job exited without a result")
		}
		op, err = s.registry.Update(ctx, opID, func(o *model.Operation) error {
			o.Status = model.StatusFailed
			if o.Kind == model.KindLivestream {
				o.Stage = model.StageFailed
			}
			o.Error = &model.OperationError{
				Code:    string(apperr.CodeOf(cause)),
				Message: cause.Error(),
			}
			return nil
		})
		if err != nil {
			s.logger.Error("fail orphaned operation", "operation_id", opID, "err", err)
			return
		}
	}
	if jobErr != nil {
		s.logger.Warn("job finished with error", "operation_id", opID, "status", op.Status, "err", jobErr)
	}
	s.Report(op)
}

// Report records metrics and publishes the terminal event of op.
func (s *Supervisor) Report(op model.Operation) {
	metrics.Get().OperationsTotal.WithLabelValues(string(op.Kind), string(op.Status)).Inc()
	if err := s.events.PublishOperationFinished(context.Background(), op); err != nil {
		s.logger.Warn("publish operation event failed", "operation_id", op.ID, "err", err)
	}
}

// Cancel signals the job of opID to stop. It returns NotFound when no job
// with that id is running.
func (s *Supervisor) Cancel(opID string) error {
	s.mu.Lock()
	r, ok := s.jobs[opID]
	s.mu.Unlock()
	if !ok {
		return apperr.Newf(apperr.NotFound, "no running job for operation %s", opID)
	}
	r.cancel()
	return nil
}

// Wait blocks until the job of opID is gone.
func (s *Supervisor) Wait(ctx context.Context, opID string) error {
	s.mu.Lock()
	r, ok := s.jobs[opID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the number of jobs that have not finished.
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Shutdown stops accepting jobs, cancels the running ones and waits for them
// until ctx expires.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	n := len(s.jobs)
	s.mu.Unlock()
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %d jobs still running: %w", s.Active(), ctx.Err())
	default:
	}
	s.logger.Info("waiting for background jobs", "count", n)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %d jobs still running: %w", s.Active(), ctx.Err())
	}
}
