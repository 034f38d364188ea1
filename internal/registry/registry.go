// Package registry tracks asynchronous operations. It is the only state shared
// between request handlers and background jobs; every mutation goes through
// Update, which serializes writers per registry.
package registry

import (
	"Dyvine/internal/apperr"
	"Dyvine/model"
	"context"
	"crypto/rand"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Persister archives records outside the process. It is called when a record
// is created and when it reaches a terminal status.
type Persister interface {
	Save(ctx context.Context, op model.Operation) error
	LoadSince(ctx context.Context, since time.Time) ([]model.Operation, error)
	DeleteBefore(ctx context.Context, before time.Time) error
}

// Mutator changes a record in place. Returning an error aborts the update and
// leaves the record untouched.
type Mutator func(op *model.Operation) error

// Option configures a Registry.
type Option func(*Registry)

// WithRetention sets how long terminal records stay readable.
func WithRetention(d time.Duration) Option {
	return func(r *Registry) { r.retention = d }
}

// WithPersister archives records.
func WithPersister(p Persister) Option {
	return func(r *Registry) { r.persister = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry is an in-process table of operation records.
type Registry struct {
	mu        sync.Mutex
	ops       map[string]*model.Operation
	retention time.Duration
	persister Persister
	now       func() time.Time

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		ops:       make(map[string]*model.Operation),
		retention: 24 * time.Hour,
		now:       time.Now,
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) newID() string {
	r.entropyMu.Lock()
	defer r.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(r.now()), r.entropy).String()
}

// Create registers a pending operation and returns its snapshot.
func (r *Registry) Create(ctx context.Context, kind model.OperationKind, userID string) model.Operation {
	now := r.now().UTC()
	op := &model.Operation{
		ID:        r.newID(),
		Kind:      kind,
		UserID:    userID,
		Status:    model.StatusPending,
		Counts:    model.NewCounts(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if kind == model.KindLivestream {
		op.Stage = model.StagePending
	}
	r.mu.Lock()
	r.ops[op.ID] = op
	snapshot := op.Clone()
	r.mu.Unlock()

	r.persist(ctx, snapshot)
	return snapshot
}

// Get returns a snapshot of the record. Unknown and expired ids yield NotFound.
func (r *Registry) Get(id string) (model.Operation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[id]
	if !ok || r.expired(op) {
		return model.Operation{}, apperr.Newf(apperr.NotFound, "operation %s not found", id)
	}
	return op.Clone(), nil
}

// List returns snapshots of live records of the given kinds, newest first.
// An empty status matches every status.
func (r *Registry) List(kinds []model.OperationKind, status model.OperationStatus) []model.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Operation, 0)
	for _, op := range r.ops {
		if r.expired(op) || !kindIn(op.Kind, kinds) {
			continue
		}
		if status != "" && op.Status != status {
			continue
		}
		out = append(out, op.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func kindIn(kind model.OperationKind, kinds []model.OperationKind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Update applies fn atomically. Terminal records are immutable, status changes
// must follow the lifecycle, and progress never decreases.
func (r *Registry) Update(ctx context.Context, id string, fn Mutator) (model.Operation, error) {
	r.mu.Lock()
	op, ok := r.ops[id]
	if !ok || r.expired(op) {
		r.mu.Unlock()
		return model.Operation{}, apperr.Newf(apperr.NotFound, "operation %s not found", id)
	}
	if op.Status.IsTerminal() {
		r.mu.Unlock()
		return model.Operation{}, apperr.Newf(apperr.Conflict, "operation %s is %s", id, op.Status)
	}

	draft := op.Clone()
	if err := fn(&draft); err != nil {
		r.mu.Unlock()
		return model.Operation{}, err
	}
	if draft.ID != op.ID || draft.Kind != op.Kind || !draft.CreatedAt.Equal(op.CreatedAt) {
		r.mu.Unlock()
		return model.Operation{}, apperr.New(apperr.Internal, "operation identity is immutable")
	}
	if !model.CanTransition(op.Status, draft.Status) {
		r.mu.Unlock()
		return model.Operation{}, apperr.Newf(apperr.Conflict, "operation %s cannot move from %s to %s", id, op.Status, draft.Status)
	}
	if draft.Progress < op.Progress {
		draft.Progress = op.Progress
	}
	if draft.Progress > 100 {
		draft.Progress = 100
	}
	now := r.now().UTC()
	draft.UpdatedAt = now
	if draft.Status.IsTerminal() {
		draft.Progress = 100
		if draft.CompletedAt == nil {
			draft.CompletedAt = &now
		}
	}
	*op = draft
	snapshot := op.Clone()
	r.mu.Unlock()

	if snapshot.Status.IsTerminal() {
		r.persist(ctx, snapshot)
	}
	return snapshot, nil
}

// Sweep evicts terminal records older than the retention window and returns
// how many were removed.
func (r *Registry) Sweep(ctx context.Context) int {
	r.mu.Lock()
	removed := 0
	for id, op := range r.ops {
		if r.expired(op) {
			delete(r.ops, id)
			removed++
		}
	}
	r.mu.Unlock()

	if r.persister != nil && r.retention > 0 {
		if err := r.persister.DeleteBefore(ctx, r.now().Add(-r.retention)); err != nil {
			slog.Warn("registry: archive cleanup failed", "error", err)
		}
	}
	return removed
}

// Run sweeps periodically until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(ctx); n > 0 {
				slog.Info("registry: evicted expired operations", "count", n)
			}
		}
	}
}

// Restore reloads archived records inside the retention window. Records that
// were still in flight when the previous process stopped are marked failed,
// since their work is not replayed.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	if r.persister == nil {
		return 0, nil
	}
	since := time.Time{}
	if r.retention > 0 {
		since = r.now().Add(-r.retention)
	}
	ops, err := r.persister.LoadSince(ctx, since)
	if err != nil {
		return 0, err
	}
	now := r.now().UTC()
	restored := 0
	for i := range ops {
		op := ops[i]
		if op.Counts == nil {
			op.Counts = model.NewCounts()
		}
		interrupted := !op.Status.IsTerminal()
		if interrupted {
			op.Status = model.StatusFailed
			op.Progress = 100
			op.Error = &model.OperationError{Code: string(apperr.Internal), Message: "interrupted: process restarted", Stage: op.Stage}
			if op.Kind == model.KindLivestream {
				op.Stage = model.StageFailed
			}
			op.UpdatedAt = now
			op.CompletedAt = &now
		}
		r.mu.Lock()
		if _, exists := r.ops[op.ID]; !exists {
			r.ops[op.ID] = &op
			restored++
		}
		r.mu.Unlock()
		if interrupted {
			r.persist(ctx, op.Clone())
		}
	}
	return restored, nil
}

// expired must be called with mu held.
func (r *Registry) expired(op *model.Operation) bool {
	if r.retention <= 0 || op.CompletedAt == nil {
		return false
	}
	return r.now().Sub(*op.CompletedAt) > r.retention
}

func (r *Registry) persist(ctx context.Context, op model.Operation) {
	if r.persister == nil {
		return
	}
	if err := r.persister.Save(context.WithoutCancel(ctx), op); err != nil {
		slog.Warn("registry: persist operation failed", "operation_id", op.ID, "error", err)
	}
}
