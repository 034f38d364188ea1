package task

import (
	"Dyvine/internal/orchestrator"
	"Dyvine/internal/source"
	"context"
	"log/slog"
	"time"
)

// ItemRetryMessage is the payload of the item retry queue.
type ItemRetryMessage struct {
	OperationID string    `json:"operation_id"`
	UserID      string    `json:"user_id"`
	ItemID      string    `json:"item_id"`
	Attempt     int       `json:"attempt"`
	LastError   string    `json:"last_error,omitempty"`
	FailedAt    time.Time `json:"failed_at"`
}

// ItemPublisher queues retry messages for the item worker.
type ItemPublisher interface {
	PublishItem(ctx context.Context, msg ItemRetryMessage) error
}

// EnqueueItemRetry publishes a retry message for one failed item.
func EnqueueItemRetry(ctx context.Context, pub ItemPublisher, f orchestrator.ItemFailure) error {
	msg := ItemRetryMessage{
		OperationID: f.OperationID,
		UserID:      f.UserID,
		ItemID:      f.ItemID,
		Attempt:     0,
		FailedAt:    time.Now().UTC(),
	}
	if f.Err != nil {
		msg.LastError = f.Err.Error()
	}
	return pub.PublishItem(ctx, msg)
}

// RetryFailureHandler hands retryable item failures to the retry queue.
// Publish errors are logged; the operation record already holds the failure.
func RetryFailureHandler(pub ItemPublisher, logger *slog.Logger) orchestrator.FailureHandler {
	return func(ctx context.Context, f orchestrator.ItemFailure) {
		if err := EnqueueItemRetry(ctx, pub, f); err != nil {
			logger.Warn("enqueue item retry failed", "operation_id", f.OperationID, "item_id", f.ItemID, "err", err)
		}
	}
}

// ItemRetrier re-runs the item pipeline for queued retries.
type ItemRetrier struct {
	src  source.Source
	proc orchestrator.ItemProcessor
}

func NewItemRetrier(src source.Source, proc orchestrator.ItemProcessor) *ItemRetrier {
	return &ItemRetrier{src: src, proc: proc}
}

// ProcessItemRetry fetches the post again for fresh media urls and processes
// it. The original operation record is not touched.
func (r *ItemRetrier) ProcessItemRetry(ctx context.Context, msg ItemRetryMessage) error {
	post, err := r.src.GetPost(ctx, msg.ItemID)
	if err != nil {
		return err
	}
	_, err = r.proc.Process(ctx, msg.UserID, post)
	return err
}
