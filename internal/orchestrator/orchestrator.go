// Package orchestrator runs bulk download jobs. A job consumes a lazily
// enumerated item sequence, processes items on a bounded worker pool and
// reports every result to the operation registry.
package orchestrator

import (
	"Dyvine/internal/apperr"
	"Dyvine/internal/enumerate"
	"Dyvine/internal/metrics"
	"Dyvine/internal/registry"
	"Dyvine/internal/telemetry"
	"Dyvine/model"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ItemProcessor handles one content item.
type ItemProcessor interface {
	Process(ctx context.Context, userID string, item model.ContentItem) (ItemResult, error)
}

// ItemFailure describes an item that failed with a retryable error.
type ItemFailure struct {
	OperationID string
	UserID      string
	ItemID      string
	Index       int
	Err         error
}

// FailureHandler receives retryable item failures, typically to hand them to
// the retry queue.
type FailureHandler func(ctx context.Context, f ItemFailure)

// Batch is the work list of one job.
type Batch struct {
	UserID string
	Items  iter.Seq[model.ContentItem]
	// Done reports how enumeration ended. It is called after Items returns.
	Done func() enumerate.Result
	// Expected estimates the number of items for progress reporting. Zero
	// leaves progress at 0 until the job ends.
	Expected int
}

// Orchestrator executes download jobs.
type Orchestrator struct {
	registry    *registry.Registry
	enumerator  *enumerate.Enumerator
	processor   ItemProcessor
	concurrency int
	onFailure   FailureHandler
	logger      *slog.Logger
	tracer      trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency bounds how many items of one job run at once.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithFailureHandler registers a handler for retryable item failures.
func WithFailureHandler(h FailureHandler) Option {
	return func(o *Orchestrator) { o.onFailure = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New builds an Orchestrator.
func New(reg *registry.Registry, enumerator *enumerate.Enumerator, processor ItemProcessor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:    reg,
		enumerator:  enumerator,
		processor:   processor,
		concurrency: 4,
		logger:      slog.Default(),
		tracer:      telemetry.Tracer("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Download enumerates req and runs the resulting batch under operation opID.
func (o *Orchestrator) Download(ctx context.Context, opID string, req enumerate.Request, expected int) error {
	var res enumerate.Result
	if req.MaxItems > 0 && (expected <= 0 || req.MaxItems < expected) {
		expected = req.MaxItems
	}
	return o.Run(ctx, opID, Batch{
		UserID:   req.UserID,
		Items:    o.enumerator.Items(ctx, req, &res),
		Done:     func() enumerate.Result { return res },
		Expected: expected,
	})
}

// tally accumulates item outcomes of one job.
type tally struct {
	mu         sync.Mutex
	dispatched int
	processed  int
	succeeded  int
	failed     int
}

// Run processes batch and drives operation opID from pending to a terminal
// status. Cancelling ctx stops dispatching new items; items already started
// run to completion. The returned error is only set when the registry
// rejected an update.
func (o *Orchestrator) Run(ctx context.Context, opID string, batch Batch) error {
	ctx, span := o.tracer.Start(ctx, "orchestrator.run", trace.WithAttributes(
		attribute.String("operation_id", opID),
		attribute.String("user_id", batch.UserID),
	))
	defer span.End()

	if _, err := o.registry.Update(ctx, opID, func(op *model.Operation) error {
		op.Status = model.StatusRunning
		return nil
	}); err != nil {
		span.RecordError(err)
		return err
	}
	o.logger.Info("download job started", "operation_id", opID, "user_id", batch.UserID)

	// Started items finish even after cancellation.
	itemCtx := context.WithoutCancel(ctx)
	sem := make(chan struct{}, o.concurrency)
	var wg sync.WaitGroup
	t := &tally{}

	index := 0
	for item := range batch.Items {
		if ctx.Err() != nil {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
		i := index
		index++
		t.mu.Lock()
		t.dispatched++
		t.mu.Unlock()
		wg.Add(1)
		go func(i int, item model.ContentItem) {
			defer wg.Done()
			defer func() { <-sem }()
			o.runItem(itemCtx, opID, batch, t, i, item)
		}(i, item)
	}
	wg.Wait()

	res := enumerate.Result{}
	if batch.Done != nil {
		res = batch.Done()
	}
	cancelled := ctx.Err() != nil || res.Stopped

	final, err := o.registry.Update(itemCtx, opID, func(op *model.Operation) error {
		finish(op, res, t, cancelled)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		o.logger.Error("download job finalize failed", "operation_id", opID, "err", err)
		return err
	}
	if final.Status == model.StatusFailed {
		span.SetStatus(codes.Error, string(final.Status))
	}
	span.SetAttributes(
		attribute.String("status", string(final.Status)),
		attribute.Int("downloaded", final.TotalDownloaded),
		attribute.Int("item_errors", len(final.ItemErrors)),
	)
	o.logger.Info("download job finished",
		"operation_id", opID,
		"status", final.Status,
		"downloaded", final.TotalDownloaded,
		"item_errors", len(final.ItemErrors),
	)
	return nil
}

func (o *Orchestrator) runItem(ctx context.Context, opID string, batch Batch, t *tally, index int, item model.ContentItem) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.item", trace.WithAttributes(
		attribute.String("operation_id", opID),
		attribute.String("item_id", item.ID),
		attribute.Int("index", index),
	))
	defer span.End()

	start := time.Now()
	res, err := o.processor.Process(ctx, batch.UserID, item)
	m := metrics.Get()
	outcome := "success"
	if err != nil {
		outcome = "failure"
		span.RecordError(err)
		span.SetStatus(codes.Error, "item failed")
	}
	m.ItemsTotal.WithLabelValues(string(res.Category), outcome).Inc()
	m.ItemDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	t.mu.Lock()
	t.processed++
	if err != nil {
		t.failed++
	} else {
		t.succeeded++
	}
	processed := t.processed
	t.mu.Unlock()

	_, updErr := o.registry.Update(ctx, opID, func(op *model.Operation) error {
		if err != nil {
			op.ItemErrors = append(op.ItemErrors, model.ItemError{
				Index:   index,
				ItemID:  item.ID,
				Code:    string(apperr.CodeOf(err)),
				Message: err.Error(),
			})
		} else {
			if op.Counts == nil {
				op.Counts = model.NewCounts()
			}
			op.Counts[res.Category]++
			op.TotalDownloaded++
		}
		if batch.Expected > 0 {
			op.Progress = min(99, processed*100/batch.Expected)
		}
		return nil
	})
	if updErr != nil {
		o.logger.Warn("record item result failed", "operation_id", opID, "item_id", item.ID, "err", updErr)
	}
	if err != nil {
		o.logger.Warn("item failed", "operation_id", opID, "item_id", item.ID, "index", index, "err", err)
		if o.onFailure != nil && apperr.Retryable(err) {
			o.onFailure(ctx, ItemFailure{
				OperationID: opID,
				UserID:      batch.UserID,
				ItemID:      item.ID,
				Index:       index,
				Err:         err,
			})
		}
	}
}

// finish sets the terminal fields of a bulk job.
func finish(op *model.Operation, res enumerate.Result, t *tally, cancelled bool) {
	t.mu.Lock()
	dispatched, succeeded, failed := t.dispatched, t.succeeded, t.failed
	t.mu.Unlock()

	sort.Slice(op.ItemErrors, func(i, j int) bool { return op.ItemErrors[i].Index < op.ItemErrors[j].Index })
	if res.Truncated || res.Err != nil || cancelled {
		op.ResumeCursor = res.ResumeCursor
	}

	switch {
	case cancelled:
		op.Error = &model.OperationError{
			Code:    string(apperr.Cancelled),
			Message: fmt.Sprintf("cancelled after %d of %d dispatched items", succeeded+failed, dispatched),
		}
		op.Status = partialOrFailed(succeeded)
	case res.Err != nil:
		op.Error = &model.OperationError{
			Code:    string(apperr.CodeOf(res.Err)),
			Message: "enumeration stopped: " + res.Err.Error(),
			Stage:   "enumerate",
		}
		op.Status = partialOrFailed(succeeded)
	default:
		total := dispatched
		op.TotalItems = &total
		switch {
		case failed == 0:
			op.Status = model.StatusSuccess
			op.Error = nil
		case succeeded > 0:
			op.Status = model.StatusPartialSuccess
			op.Error = &model.OperationError{
				Code:    "ITEM_FAILURES",
				Message: fmt.Sprintf("%d of %d items failed", failed, total),
			}
		default:
			op.Status = model.StatusFailed
			code := string(apperr.Internal)
			if len(op.ItemErrors) > 0 {
				code = op.ItemErrors[0].Code
			}
			op.Error = &model.OperationError{
				Code:    code,
				Message: fmt.Sprintf("all %d items failed", total),
			}
		}
	}
}

func partialOrFailed(succeeded int) model.OperationStatus {
	if succeeded > 0 {
		return model.StatusPartialSuccess
	}
	return model.StatusFailed
}
