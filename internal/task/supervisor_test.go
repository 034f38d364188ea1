package task

import (
	"Dyvine/internal/apperr"
	"Dyvine/internal/orchestrator"
	"Dyvine/internal/registry"
	"Dyvine/internal/source"
	"Dyvine/model"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEvents struct {
	mu  sync.Mutex
	ops []model.Operation
}

func (r *recordingEvents) PublishOperationFinished(ctx context.Context, op model.Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
	return nil
}

func (r *recordingEvents) Close() error { return nil }

func (r *recordingEvents) statuses() []model.OperationStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.OperationStatus, 0, len(r.ops))
	for _, op := range r.ops {
		out = append(out, op.Status)
	}
	return out
}

func finishWith(reg *registry.Registry, opID string, status model.OperationStatus) Job {
	return func(ctx context.Context) error {
		if _, err := reg.Update(ctx, opID, func(o *model.Operation) error {
			o.Status = model.StatusRunning
			return nil
		}); err != nil {
			return err
		}
		_, err := reg.Update(ctx, opID, func(o *model.Operation) error {
			o.Status = status
			return nil
		})
		return err
	}
}

func newSupervisor(t *testing.T, maxActive int) (*Supervisor, *registry.Registry, *recordingEvents) {
	reg := registry.New()
	events := &recordingEvents{}
	s := NewSupervisor(reg, events, maxActive, nil)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, reg, events
}

func TestSubmitRunsJobAndReports(t *testing.T) {
	s, reg, events := newSupervisor(t, 2)
	op := reg.Create(context.Background(), model.KindPosts, "u1")

	require.NoError(t, s.Submit(op.ID, op.Kind, true, finishWith(reg, op.ID, model.StatusSuccess)))
	require.NoError(t, s.Wait(context.Background(), op.ID))

	got, err := reg.Get(op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, got.Status)
	assert.Equal(t, []model.OperationStatus{model.StatusSuccess}, events.statuses())
}

func TestPanicFailsOnlyThatOperation(t *testing.T) {
	s, reg, _ := newSupervisor(t, 2)
	bad := reg.Create(context.Background(), model.KindPosts, "u1")
	good := reg.Create(context.Background(), model.KindPosts, "u2")

	require.NoError(t, s.Submit(bad.ID, bad.Kind, true, func(ctx context.Context) error {
		var m map[string]int
		m["boom"] = 1
		return nil
	}))
	require.NoError(t, s.Submit(good.ID, good.Kind, true, finishWith(reg, good.ID, model.StatusSuccess)))
	require.NoError(t, s.Wait(context.Background(), bad.ID))
	require.NoError(t, s.Wait(context.Background(), good.ID))

	got, err := reg.Get(bad.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, string(apperr.Internal), got.Error.Code)
	assert.Contains(t, got.Error.Message, "panicked")

	other, err := reg.Get(good.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, other.Status)
}

func TestJobLeavingRecordOpenIsFailed(t *testing.T) {
	s, reg, _ := newSupervisor(t, 1)
	op := reg.Create(context.Background(), model.KindPosts, "u1")

	require.NoError(t, s.Submit(op.ID, op.Kind, true, func(ctx context.Context) error {
		return apperr.New(apperr.Upstream, "gateway down")
	}))
	require.NoError(t, s.Wait(context.Background(), op.ID))

	got, err := reg.Get(op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, string(apperr.Upstream), got.Error.Code)
}

func TestSlotsBoundActiveJobs(t *testing.T) {
	s, reg, _ := newSupervisor(t, 1)
	release := make(chan struct{})
	started := make(chan struct{})
	first := reg.Create(context.Background(), model.KindPosts, "u1")
	second := reg.Create(context.Background(), model.KindPosts, "u2")

	require.NoError(t, s.Submit(first.ID, first.Kind, true, func(ctx context.Context) error {
		close(started)
		<-release
		return finishWith(reg, first.ID, model.StatusSuccess)(ctx)
	}))
	<-started
	require.NoError(t, s.Submit(second.ID, second.Kind, true, finishWith(reg, second.ID, model.StatusSuccess)))

	time.Sleep(30 * time.Millisecond)
	got, err := reg.Get(second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)

	close(release)
	require.NoError(t, s.Wait(context.Background(), second.ID))
	got, err = reg.Get(second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, got.Status)
}

func TestCancelWaitingJob(t *testing.T) {
	s, reg, _ := newSupervisor(t, 1)
	release := make(chan struct{})
	defer close(release)
	blocker := reg.Create(context.Background(), model.KindPosts, "u1")
	queued := reg.Create(context.Background(), model.KindPosts, "u2")
	started := make(chan struct{})
	require.NoError(t, s.Submit(blocker.ID, blocker.Kind, true, func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started
	require.NoError(t, s.Submit(queued.ID, queued.Kind, true, finishWith(reg, queued.ID, model.StatusSuccess)))

	require.NoError(t, s.Cancel(queued.ID))
	require.NoError(t, s.Wait(context.Background(), queued.ID))

	got, err := reg.Get(queued.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, string(apperr.Cancelled), got.Error.Code)

	assert.True(t, apperr.IsCode(s.Cancel("nope"), apperr.NotFound))
}

func TestSubmitAfterShutdownFails(t *testing.T) {
	s, reg, _ := newSupervisor(t, 1)
	require.NoError(t, s.Shutdown(context.Background()))
	op := reg.Create(context.Background(), model.KindPosts, "u1")
	assert.Error(t, s.Submit(op.ID, op.Kind, true, finishWith(reg, op.ID, model.StatusSuccess)))
}

func TestShutdownCancelsRunningJobs(t *testing.T) {
	s, reg, _ := newSupervisor(t, 1)
	op := reg.Create(context.Background(), model.KindLivestream, "u1")
	require.NoError(t, s.Submit(op.ID, op.Kind, false, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	got, err := reg.Get(op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, model.StageFailed, got.Stage)
}

type publishedItems struct {
	msgs []ItemRetryMessage
	err  error
}

func (p *publishedItems) PublishItem(ctx context.Context, msg ItemRetryMessage) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func TestEnqueueItemRetry(t *testing.T) {
	pub := &publishedItems{}
	err := EnqueueItemRetry(context.Background(), pub, orchestrator.ItemFailure{
		OperationID: "op1", UserID: "u1", ItemID: "p1", Err: errors.New("timeout"),
	})
	require.NoError(t, err)
	require.Len(t, pub.msgs, 1)

	msg := pub.msgs[0]
	assert.Equal(t, "op1", msg.OperationID)
	assert.Equal(t, "p1", msg.ItemID)
	assert.Equal(t, 0, msg.Attempt)
	assert.Equal(t, "timeout", msg.LastError)
}

type countingProcessor struct {
	calls []string
	err   error
}

func (p *countingProcessor) Process(ctx context.Context, userID string, item model.ContentItem) (orchestrator.ItemResult, error) {
	p.calls = append(p.calls, item.ID)
	return orchestrator.ItemResult{Category: model.CategoryVideo}, p.err
}

func TestProcessItemRetry(t *testing.T) {
	src := source.NewFake()
	src.AddPosts("u1", model.ContentItem{ID: "p1", VideoURL: "https://cdn/v.mp4"})
	proc := &countingProcessor{}
	r := NewItemRetrier(src, proc)

	require.NoError(t, r.ProcessItemRetry(context.Background(), ItemRetryMessage{UserID: "u1", ItemID: "p1"}))
	assert.Equal(t, []string{"p1"}, proc.calls)

	err := r.ProcessItemRetry(context.Background(), ItemRetryMessage{UserID: "u1", ItemID: "gone"})
	assert.True(t, apperr.IsCode(err, apperr.NotFound))
}
