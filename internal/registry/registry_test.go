package registry

import (
	"Dyvine/internal/apperr"
	"Dyvine/model"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memPersister struct {
	mu    sync.Mutex
	saved map[string]model.Operation
	saves int
}

func newMemPersister() *memPersister {
	return &memPersister{saved: map[string]model.Operation{}}
}

func (p *memPersister) Save(ctx context.Context, op model.Operation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved[op.ID] = op
	p.saves++
	return nil
}

func (p *memPersister) LoadSince(ctx context.Context, since time.Time) ([]model.Operation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.Operation
	for _, op := range p.saved {
		if !op.CreatedAt.Before(since) {
			out = append(out, op)
		}
	}
	return out, nil
}

func (p *memPersister) DeleteBefore(ctx context.Context, before time.Time) error {
	return nil
}

func TestCreateAndGet(t *testing.T) {
	r := New()
	op := r.Create(context.Background(), model.KindUserContent, "u1")

	got, err := r.Get(op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, 0, got.Progress)
	assert.Len(t, got.Counts, len(model.Categories))
	assert.Zero(t, got.CountSum())
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.TotalItems)
}

func TestGetUnknownIsNotFound(t *testing.T) {
	r := New()
	_, err := r.Get("nope")
	assert.True(t, apperr.IsCode(err, apperr.NotFound))
}

func TestIDsAreUnique(t *testing.T) {
	r := New()
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		id := r.Create(context.Background(), model.KindPosts, "u").ID
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestSnapshotsAreIsolated(t *testing.T) {
	r := New()
	op := r.Create(context.Background(), model.KindPosts, "u1")
	snap, err := r.Get(op.ID)
	require.NoError(t, err)
	snap.Counts[model.CategoryVideo] = 99

	again, err := r.Get(op.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Counts[model.CategoryVideo])
}

func TestUpdateLifecycle(t *testing.T) {
	ctx := context.Background()
	r := New()
	op := r.Create(ctx, model.KindPosts, "u1")

	_, err := r.Update(ctx, op.ID, func(o *model.Operation) error {
		o.Status = model.StatusRunning
		o.Progress = 40
		return nil
	})
	require.NoError(t, err)

	got, err := r.Update(ctx, op.ID, func(o *model.Operation) error {
		o.Progress = 10
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 40, got.Progress, "progress must not go backwards")

	done, err := r.Update(ctx, op.ID, func(o *model.Operation) error {
		o.Status = model.StatusSuccess
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 100, done.Progress)
	require.NotNil(t, done.CompletedAt)

	_, err = r.Update(ctx, op.ID, func(o *model.Operation) error {
		o.Counts[model.CategoryVideo]++
		return nil
	})
	assert.True(t, apperr.IsCode(err, apperr.Conflict))
}

func TestUpdateRejectsIllegalTransition(t *testing.T) {
	ctx := context.Background()
	r := New()
	op := r.Create(ctx, model.KindPosts, "u1")
	_, err := r.Update(ctx, op.ID, func(o *model.Operation) error {
		o.Status = model.StatusSuccess
		return nil
	})
	assert.True(t, apperr.IsCode(err, apperr.Conflict))
}

func TestUpdateMutatorErrorLeavesRecord(t *testing.T) {
	ctx := context.Background()
	r := New()
	op := r.Create(ctx, model.KindPosts, "u1")
	_, err := r.Update(ctx, op.ID, func(o *model.Operation) error {
		o.Counts[model.CategoryVideo] = 5
		return errors.New("abort")
	})
	require.Error(t, err)
	got, _ := r.Get(op.ID)
	assert.Equal(t, 0, got.Counts[model.CategoryVideo])
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	ctx := context.Background()
	r := New()
	op := r.Create(ctx, model.KindPosts, "u1")
	_, err := r.Update(ctx, op.ID, func(o *model.Operation) error {
		o.Status = model.StatusRunning
		return nil
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Update(ctx, op.ID, func(o *model.Operation) error {
				o.Counts[model.CategoryVideo]++
				o.TotalDownloaded++
				return nil
			})
		}()
	}
	wg.Wait()
	got, err := r.Get(op.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Counts[model.CategoryVideo])
	assert.Equal(t, 50, got.TotalDownloaded)
}

func TestExpiredRecordsAreNotFound(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := New(WithRetention(time.Hour), WithClock(clock.Now))
	op := r.Create(ctx, model.KindPosts, "u1")
	_, err := r.Update(ctx, op.ID, func(o *model.Operation) error {
		o.Status = model.StatusFailed
		return nil
	})
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	_, err = r.Get(op.ID)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = r.Get(op.ID)
	assert.True(t, apperr.IsCode(err, apperr.NotFound))
	assert.Equal(t, 1, r.Sweep(ctx))
	assert.Empty(t, r.List(nil, ""))
}

func TestRunningRecordsNeverExpire(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Now()}
	r := New(WithRetention(time.Minute), WithClock(clock.Now))
	op := r.Create(ctx, model.KindPosts, "u1")
	clock.Advance(time.Hour)
	assert.Zero(t, r.Sweep(ctx))
	_, err := r.Get(op.ID)
	assert.NoError(t, err)
}

func TestListFiltersByKindAndStatus(t *testing.T) {
	ctx := context.Background()
	r := New()
	a := r.Create(ctx, model.KindPosts, "u1")
	r.Create(ctx, model.KindLivestream, "u1")
	c := r.Create(ctx, model.KindUserContent, "u2")

	ops := r.List([]model.OperationKind{model.KindPosts, model.KindUserContent}, model.StatusPending)
	require.Len(t, ops, 2)
	assert.Equal(t, c.ID, ops[0].ID)
	assert.Equal(t, a.ID, ops[1].ID)
	assert.Empty(t, r.List([]model.OperationKind{model.KindPosts}, model.StatusRunning))
}

func TestPersistOnCreateAndTerminal(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()
	r := New(WithPersister(p))
	op := r.Create(ctx, model.KindPosts, "u1")
	_, _ = r.Update(ctx, op.ID, func(o *model.Operation) error {
		o.Status = model.StatusRunning
		return nil
	})
	assert.Equal(t, 1, p.saves)
	_, _ = r.Update(ctx, op.ID, func(o *model.Operation) error {
		o.Status = model.StatusSuccess
		return nil
	})
	assert.Equal(t, 2, p.saves)
	assert.Equal(t, model.StatusSuccess, p.saved[op.ID].Status)
}

func TestRestoreMarksInterruptedFailed(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()
	first := New(WithPersister(p))
	running := first.Create(ctx, model.KindUserContent, "u1")
	finished := first.Create(ctx, model.KindPosts, "u2")
	_, _ = first.Update(ctx, finished.ID, func(o *model.Operation) error {
		o.Status = model.StatusRunning
		return nil
	})
	_, _ = first.Update(ctx, finished.ID, func(o *model.Operation) error {
		o.Status = model.StatusSuccess
		return nil
	})

	second := New(WithPersister(p))
	n, err := second.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := second.Get(running.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, got.Error.Message, "interrupted")

	ok, err := second.Get(finished.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, ok.Status)
}
